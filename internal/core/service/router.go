package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
	"github.com/99minutos/direct-messaging/internal/core/presence"
	"github.com/99minutos/direct-messaging/internal/pkg/metrics"
)

const defaultMaxMessageLength = 4096

// Deduplicator abstracts the idempotency store (Redis).
type Deduplicator interface {
	// Claim reports true the first time a (sender, clientMessageID) pair is
	// seen and false for every repeat within the retention window.
	Claim(ctx context.Context, senderID, clientMessageID string) (bool, error)
	// Release forgets a claim so the pair can be sent again.
	Release(ctx context.Context, senderID, clientMessageID string) error
}

// Mirror receives every stored message for fan-out outside the process.
// Enqueue must not block the routing path for long.
type Mirror interface {
	Enqueue(msg *domain.Message)
}

// Router owns presence changes and moves events between connections.
type Router struct {
	registry *presence.Registry
	store    ports.MessageStore
	log      zerolog.Logger
	now      func() time.Time

	dedup   Deduplicator
	mirror  Mirror
	typing  *ttlcache.Cache[string, struct{}]
	maxBody int

	// membership serializes registry changes with the broadcasts that
	// follow them so roster snapshots reach clients in mutation order.
	membership sync.Mutex
}

type RouterOption func(*Router)

// WithDeduplicator drops repeated send_message events carrying the same
// client message id.
func WithDeduplicator(d Deduplicator) RouterOption {
	return func(r *Router) { r.dedup = d }
}

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMirror hands every stored message to m after it has been appended.
func WithMirror(m Mirror) RouterOption {
	return func(r *Router) { r.mirror = m }
}

// WithTypingThrottle relays at most one typing notice per sender and
// receiver pair within d. Zero disables throttling.
func WithTypingThrottle(d time.Duration) RouterOption {
	return func(r *Router) {
		if d <= 0 {
			r.typing = nil
			return
		}
		r.typing = ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](d),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
	}
}

// WithMaxMessageLength caps message bodies at n runes.
func WithMaxMessageLength(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.maxBody = n
		}
	}
}

// NewRouter returns a Router over registry and store.
func NewRouter(registry *presence.Registry, store ports.MessageStore, log zerolog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		registry: registry,
		store:    store,
		log:      log,
		now:      time.Now,
		maxBody:  defaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.typing != nil {
		go r.typing.Start()
	}
	return r
}

// Close stops background cache maintenance.
func (r *Router) Close() {
	if r.typing != nil {
		r.typing.Stop()
	}
}

// Connect registers conn, evicts any older connection for the same identity
// and broadcasts the new roster.
func (r *Router) Connect(conn ports.Connection) {
	r.membership.Lock()
	defer r.membership.Unlock()

	identity := conn.Identity()
	if evicted := r.registry.Register(identity, conn); evicted != nil {
		metrics.SessionEvictionsTotal.Inc()
		r.log.Info().
			Str("user_id", identity.ID).
			Str("evicted_conn", evicted.ID()).
			Str("conn", conn.ID()).
			Msg("session replaced")
		evicted.Evict()
	}
	metrics.SessionsActive.Set(float64(r.registry.Len()))

	r.broadcastLocked(domain.NewUpdateUsers(r.registry.Snapshot()))
}

// Disconnect removes conn if it is still the registered handle for its
// identity, then announces the departure and the new roster. A stale handle
// is ignored and Disconnect reports false.
func (r *Router) Disconnect(conn ports.Connection) bool {
	r.membership.Lock()
	defer r.membership.Unlock()

	identity := conn.Identity()
	if !r.registry.Deregister(identity.ID, conn) {
		return false
	}
	metrics.SessionsActive.Set(float64(r.registry.Len()))

	r.broadcastLocked(domain.NewUserOffline(identity.ID))
	r.broadcastLocked(domain.NewUpdateUsers(r.registry.Snapshot()))
	return true
}

// BroadcastRoster pushes the current roster to every registered connection.
func (r *Router) BroadcastRoster() {
	r.membership.Lock()
	defer r.membership.Unlock()

	r.broadcastLocked(domain.NewUpdateUsers(r.registry.Snapshot()))
}

// Online returns the display names currently present.
func (r *Router) Online() []string {
	return r.registry.Snapshot()
}

// RouteMessage stores a message from the sender of from to receiver, then
// hands it to the receiver if online and echoes it back to the sender.
//
// A storage failure is returned wrapped in domain.ErrStorage and nothing is
// delivered. A failed live delivery is not an error: the message is already
// stored, so the sender only gets a message_undelivered notice.
func (r *Router) RouteMessage(ctx context.Context, from ports.Connection, receiver, body, clientMessageID string) (*domain.Message, error) {
	sender := from.Identity()

	if err := r.validate(receiver, body); err != nil {
		metrics.MessagesRoutedTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// 1. Idempotency check, only for clients that tag their sends.
	claimed := false
	if clientMessageID != "" && r.dedup != nil {
		fresh, err := r.dedup.Claim(ctx, sender.ID, clientMessageID)
		switch {
		case err != nil:
			r.log.Warn().Err(err).Str("sender", sender.DisplayName).Msg("dedup check failed, routing anyway")
		case !fresh:
			metrics.MessagesDedupTotal.WithLabelValues("hit").Inc()
			metrics.MessagesRoutedTotal.WithLabelValues("duplicate").Inc()
			return nil, domain.ErrDuplicateMessage
		default:
			claimed = true
			metrics.MessagesDedupTotal.WithLabelValues("miss").Inc()
		}
	}

	// 2. Durable append before any delivery.
	msg := &domain.Message{
		Sender:   sender.DisplayName,
		Receiver: receiver,
		Body:     body,
		SentAt:   r.now().UTC(),
	}

	start := time.Now()
	id, err := r.store.Append(ctx, msg)
	if err != nil {
		metrics.StoreAppendDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		metrics.MessagesRoutedTotal.WithLabelValues("storage_error").Inc()
		// The message was never stored, so a resend with the same id must go through.
		if claimed {
			if relErr := r.dedup.Release(ctx, sender.ID, clientMessageID); relErr != nil {
				r.log.Warn().Err(relErr).Str("sender", sender.DisplayName).Msg("dedup release failed")
			}
		}
		return nil, fmt.Errorf("route message: %w: %w", domain.ErrStorage, err)
	}
	metrics.StoreAppendDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	msg.ID = id

	if r.mirror != nil {
		r.mirror.Enqueue(msg)
	}

	// 3. Live delivery to the receiver, then the echo to the sender.
	event := domain.NewReceiveMessage(msg)
	result := "offline"
	var deliveryErr error
	if to, ok := r.registry.LookupByDisplayName(receiver); ok {
		if to == from {
			result = "self"
		} else if deliveryErr = to.Send(event); deliveryErr != nil {
			result = "undelivered"
		} else {
			result = "delivered"
		}
	}

	if err := from.Send(event); err != nil {
		r.log.Debug().Err(err).Str("conn", from.ID()).Msg("sender echo dropped")
	}

	if deliveryErr != nil {
		metrics.DeliveryFailuresTotal.Inc()
		r.log.Warn().
			Err(deliveryErr).
			Str("message_id", msg.ID).
			Str("sender", msg.Sender).
			Str("receiver", msg.Receiver).
			Msg("live delivery failed, message stored")
		_ = from.Send(domain.NewUndelivered(msg))
	}

	metrics.MessagesRoutedTotal.WithLabelValues(result).Inc()
	r.log.Debug().
		Str("message_id", msg.ID).
		Str("sender", msg.Sender).
		Str("receiver", msg.Receiver).
		Str("result", result).
		Msg("message routed")

	return msg, nil
}

// RouteTyping relays a typing notice from the sender of from to receiver.
// It is best effort: offline receivers and full queues drop it silently.
func (r *Router) RouteTyping(from ports.Connection, receiver string) {
	sender := from.Identity().DisplayName

	to, ok := r.registry.LookupByDisplayName(receiver)
	if !ok || to == from {
		metrics.TypingRelaysTotal.WithLabelValues("offline").Inc()
		return
	}

	if r.typing != nil {
		key := sender + "\x00" + receiver
		if item := r.typing.Get(key); item != nil {
			metrics.TypingRelaysTotal.WithLabelValues("throttled").Inc()
			return
		}
		r.typing.Set(key, struct{}{}, ttlcache.DefaultTTL)
	}

	if err := to.Send(domain.NewTyping(sender)); err != nil {
		metrics.TypingRelaysTotal.WithLabelValues("dropped").Inc()
		return
	}
	metrics.TypingRelaysTotal.WithLabelValues("relayed").Inc()
}

func (r *Router) validate(receiver, body string) error {
	if receiver == "" {
		return domain.ErrUnknownReceiver
	}
	if body == "" {
		return domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > r.maxBody {
		return fmt.Errorf("%w: limit is %d characters", domain.ErrMessageTooLong, r.maxBody)
	}
	return nil
}

func (r *Router) broadcastLocked(event domain.Event) {
	if event.Name == domain.EventUpdateUsers {
		metrics.RosterBroadcastsTotal.Inc()
	}
	for _, conn := range r.registry.Connections() {
		if err := conn.Send(event); err != nil && !errors.Is(err, domain.ErrDelivery) {
			r.log.Warn().Err(err).Str("conn", conn.ID()).Str("event", event.Name).Msg("broadcast send failed")
		}
	}
}
