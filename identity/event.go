package identity

// EventType names a session lifecycle change pushed by the identity provider.
// The set is open, providers may emit types not listed here.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// AuthChangeFunc receives change-stream events. session is nil when the event
// carries no session, e.g. EventSignedOut.
type AuthChangeFunc func(event EventType, session *Session)
