package bookings

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// Transition names a status-changing operation.
type Transition string

const (
	TransitionConfirm     Transition = "confirm"
	TransitionCancel      Transition = "cancel"
	TransitionComplete    Transition = "complete"
	TransitionNoShow      Transition = "no_show"
	TransitionMeetingLink Transition = "meeting_link"
)

// preconditions lists the statuses each transition may be applied from.
// Attaching a meeting link keeps the status unchanged.
var preconditions = map[Transition][]Status{
	TransitionConfirm:     {StatusPending},
	TransitionCancel:      {StatusPending, StatusConfirmed},
	TransitionComplete:    {StatusConfirmed},
	TransitionNoShow:      {StatusConfirmed},
	TransitionMeetingLink: {StatusPending, StatusConfirmed},
}

var targets = map[Transition]Status{
	TransitionConfirm:  StatusConfirmed,
	TransitionCancel:   StatusCancelled,
	TransitionComplete: StatusCompleted,
	TransitionNoShow:   StatusNoShow,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// CanTransition reports whether the state machine allows moving s to next.
func (s Status) CanTransition(next Status) bool {
	for t, to := range targets {
		if to != next {
			continue
		}
		for _, from := range preconditions[t] {
			if from == s {
				return true
			}
		}
	}
	return false
}

// Allows reports whether transition t may be applied to a booking in status s.
func (t Transition) Allows(s Status) bool {
	for _, from := range preconditions[t] {
		if from == s {
			return true
		}
	}
	return false
}

// Preconditions returns the statuses t may be applied from.
func (t Transition) Preconditions() []Status {
	out := make([]Status, len(preconditions[t]))
	copy(out, preconditions[t])
	return out
}

func statusStrings(statuses []Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
