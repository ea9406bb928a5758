package queue

// transitionMap lists the statuses an entry may move to from each status.
// Completed is terminal: the only way out is administrative deletion.
// Unavailable is a parking state and only returns to waiting.
var transitionMap = map[Status][]Status{
	StatusWaiting:     {StatusWaiting, StatusInProgress, StatusCompleted, StatusUnavailable},
	StatusInProgress:  {StatusWaiting, StatusInProgress, StatusCompleted, StatusUnavailable},
	StatusUnavailable: {StatusWaiting, StatusUnavailable},
	StatusCompleted:   {},
}

// CanTransition reports whether an entry may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitionMap[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
