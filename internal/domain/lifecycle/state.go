package lifecycle

// State is a node in an invoice or payment lifecycle
type State string

// Invoice lifecycle states. PAID is reachable only through a verified
// webhook transition; OVERDUE is set by an external process.
const (
	StateDraft   State = "DRAFT"
	StateSent    State = "SENT"
	StateOverdue State = "OVERDUE"
	StatePaid    State = "PAID"
)

// Payment lifecycle states, tracked per (invoice, provider key).
const (
	StatePending   State = "PENDING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

var validStates = map[State]bool{
	StateDraft:     true,
	StateSent:      true,
	StateOverdue:   true,
	StatePaid:      true,
	StatePending:   true,
	StateSucceeded: true,
	StateFailed:    true,
}

// Terminal states accept no further transitions; replayed webhook
// deliveries for a terminal payment refresh the stored row but never
// move the state.
var terminalStates = map[State]bool{
	StatePaid:      true,
	StateSucceeded: true,
	StateFailed:    true,
}

// IsTerminal reports whether no further transitions are allowed
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid reports whether s belongs to either lifecycle
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
