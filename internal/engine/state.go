package engine

// BlockState is one of the four states a tracked block can be in (spec §3).
// A block with no metadata is implicitly Clean.
type BlockState int8

const (
	Clean BlockState = iota
	Dirty
	NewState
	Deleted
)

func (s BlockState) String() string {
	switch s {
	case Clean:
		return "CLEAN"
	case Dirty:
		return "DIRTY"
	case NewState:
		return "NEW"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// transitionMatrix[from][to] is true iff the transition is allowed (spec §3).
var transitionMatrix = [4][4]bool{
	Clean:   {Clean: false, Dirty: true, NewState: true, Deleted: true},
	Dirty:   {Clean: true, Dirty: false, NewState: false, Deleted: true},
	NewState:     {Clean: false, Dirty: true, NewState: false, Deleted: true},
	Deleted: {Clean: false, Dirty: false, NewState: false, Deleted: false},
}

func validTransition(from, to BlockState) bool {
	return transitionMatrix[from][to]
}

// transitionError renders a human-readable explanation of why from->to is
// forbidden, for InvalidStateTransition errors (spec §4.D).
func transitionError(from, to BlockState) string {
	switch {
	case from == Deleted:
		return "DELETED is terminal: cannot transition from DELETED to " + to.String()
	case from == Dirty && to == NewState:
		return "DIRTY cannot transition directly to NEW"
	case from == NewState && to == Clean:
		return "NEW can only become DIRTY or DELETED, not CLEAN directly"
	default:
		return from.String() + " cannot transition to " + to.String()
	}
}

// Metadata is the per-block record tracked by the engine (spec §3).
type Metadata struct {
	BlockID   uint64
	WALOffset uint64
	Timestamp int64
	State     BlockState
}
