package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// TransitionTable maps (current status, action) to the resulting status.
// Legality of an action is purely a table lookup; stamping is applied by the
// workflow package once the lookup succeeds.
type TransitionTable map[WorkflowStatus]map[WorkflowAction]WorkflowStatus

// Next returns the target status for action from current, and whether that
// edge exists.
func (t TransitionTable) Next(current WorkflowStatus, action WorkflowAction) (WorkflowStatus, bool) {
	edges, ok := t[current]
	if !ok {
		return "", false
	}
	next, ok := edges[action]
	return next, ok
}

// SourcesFor lists the statuses from which action is legal, sorted for
// stable error messages.
func (t TransitionTable) SourcesFor(action WorkflowAction) []WorkflowStatus {
	var out []WorkflowStatus
	for status, edges := range t {
		if _, ok := edges[action]; ok {
			out = append(out, status)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actions lists the distinct actions the table knows, sorted.
func (t TransitionTable) Actions() []WorkflowAction {
	seen := map[WorkflowAction]struct{}{}
	for _, edges := range t {
		for a := range edges {
			seen[a] = struct{}{}
		}
	}
	out := make([]WorkflowAction, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t TransitionTable) validate() error {
	for status, edges := range t {
		if !status.IsValid() {
			return fmt.Errorf("transition table: unknown source status %q", status)
		}
		for action, next := range edges {
			if !action.IsValid() {
				return fmt.Errorf("transition table: unknown action %q from %q", action, status)
			}
			if !next.IsValid() {
				return fmt.Errorf("transition table: unknown target status %q for %q from %q", next, action, status)
			}
		}
	}
	return nil
}

// PrintThenApprove is the flow used by families whose certificate is printed
// first and approved after the signed scan comes back:
//
//	PENDING -> PRINTED -> PEND-APPROVAL -> COMPLETED | REJECTED
//
// reset_to_pending is legal from every stage, PENDING included, and returns
// the record to intake with its workflow metadata cleared.
func PrintThenApprove() TransitionTable {
	t := TransitionTable{
		StatusPending: {
			ActionMarkPrinted: StatusPrinted,
		},
		StatusPrinted: {
			ActionAttachScan: StatusPendApproval,
		},
		StatusPendApproval: {
			ActionApprove: StatusCompleted,
			ActionReject:  StatusRejected,
		},
		StatusCompleted: {},
		StatusRejected:  {},
	}
	addResetEdges(t)
	return t
}

// ApproveThenPrint is the flow used by families where the registrar approves
// before anything is printed; printing the approved certificate completes
// the record:
//
//	PENDING -> PEND-APPROVAL -> APPROVED -> COMPLETED, or -> REJECTED
func ApproveThenPrint() TransitionTable {
	t := TransitionTable{
		StatusPending: {
			ActionAttachScan: StatusPendApproval,
		},
		StatusPendApproval: {
			ActionApprove: StatusApproved,
			ActionReject:  StatusRejected,
		},
		StatusApproved: {
			ActionMarkPrinted: StatusCompleted,
		},
		StatusCompleted: {},
		StatusRejected:  {},
	}
	addResetEdges(t)
	return t
}

func addResetEdges(t TransitionTable) {
	for status := range t {
		t[status][ActionResetToPending] = StatusPending
	}
}

var tableNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Family describes one record family: where its rows live, how its public
// codes look, and which workflow it follows. Families are code-defined
// configuration; stores interpolate Table into SQL, so RegisterFamilies
// rejects anything that is not a plain lowercase identifier.
type Family struct {
	// Name is the stable identifier callers pass to the service ("temple").
	Name string
	// Table is the backing table for this family's records.
	Table string
	// Prefix is the fixed alphabetic prefix of public codes ("TRN").
	Prefix string
	// Width is the zero-padded digit count after the prefix (and scope).
	Width int
	// YearScoped restarts numbering every calendar year and embeds the
	// four-digit year between prefix and number (SIL2025000001).
	YearScoped bool
	// Transitions is the workflow this family follows.
	Transitions TransitionTable
}

// Validate checks the family definition itself, not any record.
func (f Family) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("family: name is required")
	}
	if !tableNameRe.MatchString(f.Table) {
		return fmt.Errorf("family %s: invalid table name %q", f.Name, f.Table)
	}
	if f.Prefix == "" || strings.ToUpper(f.Prefix) != f.Prefix {
		return fmt.Errorf("family %s: prefix must be non-empty upper case, got %q", f.Name, f.Prefix)
	}
	if f.Width < 1 || f.Width > 18 {
		return fmt.Errorf("family %s: width must be between 1 and 18, got %d", f.Name, f.Width)
	}
	if f.Transitions == nil {
		return fmt.Errorf("family %s: transition table is required", f.Name)
	}
	return f.Transitions.validate()
}

// Default family names.
const (
	FamilyTemple     = "temple"
	FamilyShrine     = "shrine"
	FamilyMonk       = "monk"
	FamilySilmatha   = "silmatha"
	FamilyOrdination = "ordination"
	FamilyCommittee  = "committee"
)

// DefaultFamilies returns the registry catalog the service ships with.
// Callers with different registries can pass their own set through
// WithFamilies.
func DefaultFamilies() []Family {
	return []Family{
		{Name: FamilyTemple, Table: "temple_records", Prefix: "TRN", Width: 7, Transitions: PrintThenApprove()},
		{Name: FamilyShrine, Table: "shrine_records", Prefix: "DVL", Width: 7, Transitions: PrintThenApprove()},
		{Name: FamilyMonk, Table: "monk_records", Prefix: "BHK", Width: 7, Transitions: ApproveThenPrint()},
		{Name: FamilySilmatha, Table: "silmatha_records", Prefix: "SIL", Width: 6, YearScoped: true, Transitions: ApproveThenPrint()},
		{Name: FamilyOrdination, Table: "ordination_records", Prefix: "UPS", Width: 6, YearScoped: true, Transitions: PrintThenApprove()},
		{Name: FamilyCommittee, Table: "committee_records", Prefix: "CMT", Width: 6, Transitions: ApproveThenPrint()},
	}
}

// DefaultFamilySet returns DefaultFamilies indexed and validated. The
// catalog is code-defined, so a failure here is a programming error.
func DefaultFamilySet() FamilySet {
	set, err := NewFamilySet(DefaultFamilies())
	if err != nil {
		panic(err)
	}
	return set
}

// FamilySet indexes families by name.
type FamilySet map[string]Family

// NewFamilySet validates every family and rejects duplicate names, tables
// and prefixes; overlapping prefixes would make code parsing ambiguous.
func NewFamilySet(families []Family) (FamilySet, error) {
	if len(families) == 0 {
		return nil, fmt.Errorf("family set: at least one family is required")
	}
	set := make(FamilySet, len(families))
	tables := map[string]string{}
	prefixes := map[string]string{}
	for _, f := range families {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if _, dup := set[f.Name]; dup {
			return nil, fmt.Errorf("family set: duplicate family name %q", f.Name)
		}
		if prev, dup := tables[f.Table]; dup {
			return nil, fmt.Errorf("family set: table %q shared by %q and %q", f.Table, prev, f.Name)
		}
		if prev, dup := prefixes[f.Prefix]; dup {
			return nil, fmt.Errorf("family set: prefix %q shared by %q and %q", f.Prefix, prev, f.Name)
		}
		set[f.Name] = f
		tables[f.Table] = f.Name
		prefixes[f.Prefix] = f.Name
	}
	return set, nil
}

// Get looks a family up by name.
func (s FamilySet) Get(name string) (Family, bool) {
	f, ok := s[name]
	return f, ok
}

// Names returns the family names sorted.
func (s FamilySet) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
