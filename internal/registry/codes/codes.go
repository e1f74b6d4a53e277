// Package codes formats and parses the public codes a family issues. All the
// arithmetic here is pure; which number to try next against a live store is
// decided by the service's allocation loop.
package codes

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sasana/internal/registry/models"
)

// ScopeKey returns the counter scope a code drawn at now belongs to. For
// year-scoped families this is the four-digit year; for the rest it is empty
// and all codes share one scope.
func ScopeKey(f models.Family, now time.Time) string {
	if !f.YearScoped {
		return ""
	}
	return strconv.Itoa(now.Year())
}

// ScopePrefix is the literal text in front of the zero-padded number:
// "TRN" for plain families, "SIL2025" for year-scoped ones.
func ScopePrefix(f models.Family, scope string) string {
	return f.Prefix + scope
}

// Max returns the largest number the family's width can carry.
func Max(f models.Family) int64 {
	n := int64(1)
	for i := 0; i < f.Width; i++ {
		n *= 10
	}
	return n - 1
}

// Format renders number n as a public code in the given scope.
// Numbers wider than the family width are refused rather than silently
// widened, so codes keep a fixed shape.
func Format(f models.Family, scope string, n int64) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("code number must be positive, got %d", n)
	}
	if n > Max(f) {
		return "", fmt.Errorf("code number %d exceeds %s's %d-digit space", n, f.Name, f.Width)
	}
	return fmt.Sprintf("%s%0*d", ScopePrefix(f, scope), f.Width, n), nil
}

// Parse extracts the numeric part of code within scope. It returns false for
// codes of another scope or shape; callers skip those rather than fail.
func Parse(f models.Family, scope, code string) (int64, bool) {
	prefix := ScopePrefix(f, scope)
	rest, ok := strings.CutPrefix(code, prefix)
	if !ok || len(rest) != f.Width {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Candidate computes the next number to try given the highest number already
// observed in storage and the floor accumulated from failed attempts. The
// floor only ever grows, so a retry never reproposes a number that already
// lost a race.
func Candidate(f models.Family, observedMax, floor int64) (int64, error) {
	n := observedMax
	if floor > n {
		n = floor
	}
	n++
	if n > Max(f) {
		return 0, fmt.Errorf("family %s exhausted its %d-digit code space", f.Name, f.Width)
	}
	return n, nil
}
