package ports

import "github.com/99minutos/direct-messaging/internal/core/domain"

// Connection is a live realtime session as seen by the routing core.
// Handles are compared by identity, so implementations must be pointers.
type Connection interface {
	// ID is unique per connection, not per identity.
	ID() string
	Identity() domain.Identity
	// Send queues an event for the connection's writer without blocking.
	// It returns domain.ErrDelivery when the connection is closed or its
	// queue is full.
	Send(event domain.Event) error
	// Evict asks the session to close itself because a newer connection
	// for the same identity replaced it. It never blocks.
	Evict()
}

// IdentityVerifier authenticates the credential presented on a handshake.
type IdentityVerifier interface {
	// Verify returns domain.ErrExpiredCredential or domain.ErrInvalidCredential
	// (possibly wrapped) when the credential is rejected.
	Verify(credential string) (domain.Identity, error)
}
