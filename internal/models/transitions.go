package models

var transitionMap = map[Status][]Status{
	StatusPending:   {StatusConfirmed},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

// CanTransition reports whether an appointment may move from one status
// to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitionMap[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status frees its slot permanently.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Occupies reports whether an appointment in this status holds its
// (date, time) slot against new bookings.
func Occupies(s Status) bool {
	return s == StatusPending || s == StatusConfirmed
}
