package domain

import "errors"

// Credential errors. Both reject the handshake the same way; the distinction
// only feeds logs and metrics.
var (
	ErrExpiredCredential = errors.New("credential expired")
	ErrInvalidCredential = errors.New("credential invalid")
)

// Routing errors.
var (
	ErrStorage          = errors.New("message storage failed")
	ErrDelivery         = errors.New("message delivery failed")
	ErrDuplicateMessage = errors.New("duplicate message")
	ErrEmptyMessage     = errors.New("message body is empty")
	ErrMessageTooLong   = errors.New("message body too long")
	ErrUnknownReceiver  = errors.New("receiver is required")
)

// Directory errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
