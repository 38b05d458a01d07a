package domain

import "time"

// Message is a single direct message between two display names. It is built
// by the router, stamped with the server clock, and never mutated after the
// store has assigned its ID.
type Message struct {
	ID       string    `json:"persistedId"`
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
	Body     string    `json:"message"`
	SentAt   time.Time `json:"timestamp"`
}

// Participant reports whether name is the sender or the receiver.
func (m *Message) Participant(name string) bool {
	return m.Sender == name || m.Receiver == name
}
