package codes

import (
	"fmt"
	"time"
)

// Strategy selects how the allocation loop proposes candidate numbers.
type Strategy string

const (
	// StrategyScan derives candidates from MAX() over the family's codes.
	// It needs no extra state but concurrent creators can collide and
	// retry.
	StrategyScan Strategy = "scan"
	// StrategyCounter draws candidates from the code_counters table with an
	// atomic bump, which serializes allocation per family and scope and
	// makes collisions between well-behaved writers impossible.
	StrategyCounter Strategy = "counter"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyScan:
		return StrategyScan, nil
	case StrategyCounter:
		return StrategyCounter, nil
	default:
		return "", fmt.Errorf("unknown allocation strategy: %q", s)
	}
}

// AllocatorConfig tunes the create-time allocation loop.
type AllocatorConfig struct {
	Strategy Strategy
	// MaxAttempts bounds the whole loop, including attempts spent on
	// sequence repair. At least 1.
	MaxAttempts int
	// RetryBackoff is slept between attempts, scaled linearly by attempt
	// number. Zero disables sleeping (tests).
	RetryBackoff time.Duration
}

// DefaultAllocatorConfig matches the historical behavior: scan-based
// candidates, ten attempts, a short linear backoff.
func DefaultAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		Strategy:     StrategyScan,
		MaxAttempts:  10,
		RetryBackoff: 25 * time.Millisecond,
	}
}

func (c AllocatorConfig) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("allocator: max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("allocator: retry backoff must not be negative")
	}
	return nil
}

// BackoffFor returns the sleep before the next attempt after the given
// 1-based attempt failed.
func (c AllocatorConfig) BackoffFor(attempt int) time.Duration {
	if c.RetryBackoff <= 0 {
		return 0
	}
	return time.Duration(attempt) * c.RetryBackoff
}
