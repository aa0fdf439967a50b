package booking

// State is the orchestrator's position in a booking attempt.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateSlotChosen
	StateSubmitting
	StateConfirmed
	StateConflictDetected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateSlotChosen:
		return "slot_chosen"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateConflictDetected:
		return "conflict_detected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
