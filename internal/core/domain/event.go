package domain

import "encoding/json"

// Inbound event names.
const (
	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Outbound event names.
const (
	EventReceiveMessage     = "receive_message"
	EventUpdateUsers        = "update_users"
	EventUserOffline        = "user_offline"
	EventMessageError       = "message_error"
	EventMessageUndelivered = "message_undelivered"
	EventSessionReplaced    = "session_replaced"
)

// Event is the envelope of every frame on the realtime channel.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// InboundEvent is an Event whose payload has not been decoded yet.
type InboundEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// SendMessagePayload is the body of a send_message frame.
type SendMessagePayload struct {
	Receiver        string `json:"receiver" validate:"required,max=64"`
	Message         string `json:"message" validate:"required"`
	ClientMessageID string `json:"clientMessageId,omitempty" validate:"omitempty,max=128"`
}

// TypingPayload is the body of an inbound typing frame.
type TypingPayload struct {
	Receiver string `json:"receiver" validate:"required,max=64"`
}

// TypingNotice is relayed to the receiver of a typing frame.
type TypingNotice struct {
	Sender string `json:"sender"`
}

// MessageErrorPayload tells a sender its message was not stored.
type MessageErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// UndeliveredPayload tells a sender the message was stored but the
// receiver's connection could not take it.
type UndeliveredPayload struct {
	PersistedID string `json:"persistedId"`
	Receiver    string `json:"receiver"`
}

// SessionReplacedPayload is sent to a connection evicted by a newer one.
type SessionReplacedPayload struct {
	Reason string `json:"reason"`
}

// NewReceiveMessage wraps m for delivery.
func NewReceiveMessage(m *Message) Event {
	return Event{Name: EventReceiveMessage, Data: m}
}

// NewUpdateUsers wraps a roster snapshot. A nil roster is sent as [].
func NewUpdateUsers(roster []string) Event {
	if roster == nil {
		roster = []string{}
	}
	return Event{Name: EventUpdateUsers, Data: roster}
}

// NewUserOffline announces that the identity with id left.
func NewUserOffline(id string) Event {
	return Event{Name: EventUserOffline, Data: id}
}

// NewTyping wraps a typing notice from sender.
func NewTyping(sender string) Event {
	return Event{Name: EventTyping, Data: TypingNotice{Sender: sender}}
}

// NewMessageError reports a failed send to its sender.
func NewMessageError(details string) Event {
	return Event{Name: EventMessageError, Data: MessageErrorPayload{
		Error:   "Failed to send message",
		Details: details,
	}}
}

// NewUndelivered reports a stored but undelivered message.
func NewUndelivered(m *Message) Event {
	return Event{Name: EventMessageUndelivered, Data: UndeliveredPayload{
		PersistedID: m.ID,
		Receiver:    m.Receiver,
	}}
}

// NewSessionReplaced notifies an evicted connection.
func NewSessionReplaced() Event {
	return Event{Name: EventSessionReplaced, Data: SessionReplacedPayload{
		Reason: "signed in from another connection",
	}}
}
