package domain

// SessionState represents the lifecycle state of a realtime connection.
type SessionState string

const (
	SessionHandshaking SessionState = "handshaking"
	SessionActive      SessionState = "active"
	SessionClosing     SessionState = "closing"
	SessionClosed      SessionState = "closed"
)

// validSessionTransitions defines the allowed state machine transitions.
// A session that fails registration goes straight from handshaking to closing.
var validSessionTransitions = map[SessionState][]SessionState{
	SessionHandshaking: {SessionActive, SessionClosing},
	SessionActive:      {SessionClosing},
	SessionClosing:     {SessionClosed},
}

// CanTransitionTo reports whether a transition from current state to next is valid.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range validSessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionClosed
}
