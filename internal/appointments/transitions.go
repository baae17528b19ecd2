package appointments

// transitions is the full adjacency table of the appointment state machine.
// COMPLETADA is terminal: it appears as a key with no outgoing edges so that
// membership checks stay total over the whole state set.
var transitions = map[Status][]Status{
	StatusProgramada: {StatusConfirmada, StatusCancelada, StatusReagendada, StatusPresente, StatusNoAsistio},
	StatusConfirmada: {StatusCancelada, StatusReagendada, StatusPresente, StatusNoAsistio, StatusCompletada},
	StatusPresente:   {StatusCompletada, StatusCancelada},
	StatusCancelada:  {StatusReagendada, StatusProgramada},
	StatusReagendada: {StatusConfirmada, StatusProgramada, StatusCancelada},
	StatusNoAsistio:  {StatusReagendada, StatusProgramada},
	StatusCompletada: {},
}

// Known reports whether s is one of the seven recognized lifecycle states.
func (s Status) Known() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the state has no outgoing transitions.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// AllowedNext returns the states reachable from current in one transition.
// The returned slice is a copy; callers may mutate it.
func AllowedNext(current Status) []Status {
	next := transitions[current]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ValidateTransition decides whether requested is a legal next state for
// current. Pure and total: every (current, requested) pair gets an answer,
// and unknown states on either side are denied rather than silently allowed.
func ValidateTransition(current, requested Status) error {
	if !current.Known() {
		return &InvalidTransitionError{From: current, To: requested, UnknownState: true}
	}
	if !requested.Known() {
		return &InvalidTransitionError{From: current, To: requested, UnknownState: true}
	}
	for _, next := range transitions[current] {
		if next == requested {
			return nil
		}
	}
	return &InvalidTransitionError{From: current, To: requested}
}
