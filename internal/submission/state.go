package submission

// State is a step of the submission flow.
type State int

const (
	Idle State = iota
	Submitting
	IndexedSkip
	Ingesting
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case IndexedSkip:
		return "indexed_skip"
	case Ingesting:
		return "ingesting"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}
