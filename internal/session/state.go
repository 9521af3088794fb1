package session

// State is the session's position in its lifecycle. It is derived from the
// store and the refresh coordinator; nothing sets it directly.
type State int

const (
	// StateAnonymous: no credential.
	StateAnonymous State = iota
	// StateAuthenticated: a valid credential; identity may not be fetched yet.
	StateAuthenticated
	// StateRefreshing: a refresh exchange is in flight.
	StateRefreshing
	// StateExpired: a credential is present but fails validation.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}
