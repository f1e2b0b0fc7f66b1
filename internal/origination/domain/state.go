package domain

// State is the lifecycle state of a credit request.
type State string

const (
	StateDraft    State = "DRAFT"
	StateInReview State = "IN_REVIEW"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StateCanceled State = "CANCELED"
)

// transitions lists the legal lifecycle edges. Anything absent is illegal.
var transitions = map[State][]State{
	StateDraft:    {StateInReview, StateCanceled},
	StateInReview: {StateApproved, StateRejected, StateCanceled},
	StateApproved: {},
	StateRejected: {},
	StateCanceled: {},
}

// labels carries the display names inherited from the originating system.
var labels = map[State]string{
	StateDraft:    "Borrador",
	StateInReview: "EnRevision",
	StateApproved: "Aprobada",
	StateRejected: "Rechazada",
	StateCanceled: "Cancelada",
}

// IsValid reports whether s is one of the known lifecycle states.
func (s State) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is permitted from s.
func (s State) IsTerminal() bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

// CanTransitionTo reports whether the edge s -> target is legal.
func (s State) CanTransitionTo(target State) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Label returns the human-readable display name for the state.
func (s State) Label() string {
	return labels[s]
}

// String returns the canonical state name.
func (s State) String() string {
	return string(s)
}

// ParseState validates a stored or submitted state name.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", ErrUnknownState
	}
	return s, nil
}
