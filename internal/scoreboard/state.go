// Package scoreboard implements the CDC 6600 scoreboard execution engine:
// the cycle-by-cycle hazard-checked advance of instructions through the
// issue, read-operands, execution, write-result and (optionally)
// update-flags pipeline stages.
package scoreboard

import "fmt"

// ReplicaRef names a functional-unit replica, or the zero value when no
// replica is referenced (the scoreboard's "0" meaning "no producer" / "no
// unit").
type ReplicaRef struct {
	Unit  string
	Index int
}

// IsZero reports whether r refers to no replica.
func (r ReplicaRef) IsZero() bool { return r.Unit == "" }

func (r ReplicaRef) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s_%d", r.Unit, r.Index)
}

// Field identifies one of a replica's mutable bookkeeping fields.
type Field string

const (
	FieldBusy Field = "busy"
	FieldOp   Field = "op"
	FieldFI   Field = "f_i"
	FieldFJ   Field = "f_j"
	FieldFK   Field = "f_k"
	FieldQJ   Field = "q_j"
	FieldQK   Field = "q_k"
	FieldRJ   Field = "r_j"
	FieldRK   Field = "r_k"
)

// ReplicaState is the full scoreboard record for one functional-unit
// replica at a point in time. It is used both as the engine's live,
// mutable bookkeeping and as a frozen snapshot inside ReplicaHistoryEntry
// (per the alternative permitted by SPEC_FULL.md §9: one snapshot per
// changing cycle rather than one history list per individual field).
type ReplicaState struct {
	Busy bool
	Op   int // PC of the most recently issued instruction; -1 until the replica first issues
	FI   string
	FJ   string
	FK   string
	QJ   ReplicaRef
	QK   ReplicaRef
	RJ   bool
	RK   bool
}

func idleReplicaState() ReplicaState {
	return ReplicaState{Op: -1, RJ: true, RK: true}
}

// ReplicaHistoryEntry is one committed change to a replica.
type ReplicaHistoryEntry struct {
	Clock            int
	State            ReplicaState
	Changed          []Field
	ChangedRegisters []string
}

// RegHistoryEntry is one committed change to the register-result table.
type RegHistoryEntry struct {
	Clock    int
	Producer ReplicaRef
}

// replicaPatch accumulates a single cycle's staged mutation for one
// replica; nil fields were left untouched this cycle. This is the
// two-phase commit staging buffer from SPEC_FULL.md §4.3.5.
type replicaPatch struct {
	busy *bool
	op   *int
	fi   *string
	fj   *string
	fk   *string
	qj   *ReplicaRef
	qk   *ReplicaRef
	rj   *bool
	rk   *bool

	changedRegisters []string
}

func boolPtr(b bool) *bool          { return &b }
func intPtr(i int) *int             { return &i }
func strPtr(s string) *string       { return &s }
func refPtr(r ReplicaRef) *ReplicaRef { return &r }
