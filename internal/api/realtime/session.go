package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
)

// Close codes sent to the peer when the server ends a session.
const (
	CloseSessionReplaced = 4001
	CloseSlowConsumer    = 4008
)

// Router is the routing core as seen by a session.
type Router interface {
	Connect(conn ports.Connection)
	Disconnect(conn ports.Connection) bool
	RouteMessage(ctx context.Context, from ports.Connection, receiver, body, clientMessageID string) (*domain.Message, error)
	RouteTyping(from ports.Connection, receiver string)
}

// Options tunes the per-connection pumps.
type Options struct {
	SendBuffer    int
	MaxFrameBytes int64
	PongWait      time.Duration
	PingPeriod    time.Duration
	WriteWait     time.Duration
	RatePerSecond float64
	RateBurst     int
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 * 1024
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 10
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 20
	}
	return o
}

type closeReason struct {
	code int
	text string
}

// Session is one authenticated realtime connection. Inbound frames are
// processed synchronously by the read loop; outbound events go through a
// bounded queue drained by a single writer goroutine.
type Session struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	router   Router
	validate *validator.Validate
	limiter  *rate.Limiter
	typing   *rate.Limiter // separate bucket so typing never starves sends
	opts     Options
	log      zerolog.Logger

	// send is never closed; done signals that no more events are accepted.
	send       chan domain.Event
	done       chan struct{}
	closeOnce  sync.Once
	reason     closeReason
	writerDone chan struct{}

	mu    sync.Mutex
	state domain.SessionState
}

func newSession(conn *websocket.Conn, identity domain.Identity, router Router, validate *validator.Validate, opts Options, log zerolog.Logger) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Session{
		id:         id,
		identity:   identity,
		conn:       conn,
		router:     router,
		validate:   validate,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst),
		typing:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst),
		opts:       opts,
		send:       make(chan domain.Event, opts.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		state:      domain.SessionHandshaking,
		log: log.With().
			Str("conn", id).
			Str("user_id", identity.ID).
			Str("username", identity.DisplayName).
			Logger(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() domain.Identity { return s.identity }

// Send queues event for the writer. A session whose queue is full is treated
// as a slow consumer and closed.
func (s *Session) Send(event domain.Event) error {
	select {
	case <-s.done:
		return fmt.Errorf("%w: connection closed", domain.ErrDelivery)
	default:
	}

	select {
	case s.send <- event:
		return nil
	case <-s.done:
		return fmt.Errorf("%w: connection closed", domain.ErrDelivery)
	default:
		s.log.Warn().Str("event", event.Name).Msg("send queue full, closing slow consumer")
		s.shutdown(CloseSlowConsumer, "send queue overflow")
		return fmt.Errorf("%w: send queue full", domain.ErrDelivery)
	}
}

// Evict closes the session because a newer connection replaced it.
func (s *Session) Evict() {
	s.shutdown(CloseSessionReplaced, "session replaced")
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(next domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransitionTo(next) {
		s.log.Warn().
			Str("from", string(s.state)).
			Str("to", string(next)).
			Msg("invalid session transition ignored")
		return
	}
	s.state = next
}

// shutdown stops accepting events and tells the writer to close the
// connection with the given code. Only the first call has any effect.
func (s *Session) shutdown(code int, text string) {
	s.closeOnce.Do(func() {
		s.reason = closeReason{code: code, text: text}
		close(s.done)
	})
}

// Run drives the session until the peer leaves, the session is evicted or
// ctx is cancelled. Registration happens before any inbound frame is read;
// deregistration happens before the connection is released.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writePump()
	go func() {
		select {
		case <-ctx.Done():
			s.shutdown(websocket.CloseGoingAway, "server shutting down")
		case <-s.done:
		}
	}()

	s.router.Connect(s)
	s.transition(domain.SessionActive)
	s.log.Info().Msg("session opened")

	s.readPump(ctx)

	s.transition(domain.SessionClosing)
	removed := s.router.Disconnect(s)
	s.shutdown(websocket.CloseNormalClosure, "")
	<-s.writerDone
	s.transition(domain.SessionClosed)

	s.log.Info().Bool("deregistered", removed).Msg("session closed")
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(s.opts.MaxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !isExpectedCloseError(err) {
					s.log.Warn().Err(err).Msg("read failed")
				}
			}
			return
		}
		s.dispatch(ctx, raw)
	}
}

func (s *Session) dispatch(ctx context.Context, raw []byte) {
	var in domain.InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		s.log.Debug().Err(err).Msg("malformed frame")
		s.reply(domain.NewMessageError("malformed frame"))
		return
	}

	switch in.Name {
	case domain.EventSendMessage:
		if !s.limiter.Allow() {
			s.reply(domain.NewMessageError("rate limit exceeded"))
			return
		}
		var p domain.SendMessagePayload
		if err := s.decode(in.Data, &p); err != nil {
			s.reply(domain.NewMessageError(err.Error()))
			return
		}
		s.routeMessage(ctx, p)

	case domain.EventTyping:
		if !s.typing.Allow() {
			return
		}
		var p domain.TypingPayload
		if err := s.decode(in.Data, &p); err != nil {
			return
		}
		s.router.RouteTyping(s, p.Receiver)

	default:
		s.log.Debug().Str("event", in.Name).Msg("unknown event ignored")
	}
}

func (s *Session) routeMessage(ctx context.Context, p domain.SendMessagePayload) {
	_, err := s.router.RouteMessage(ctx, s, p.Receiver, p.Message, p.ClientMessageID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateMessage):
		s.log.Debug().Str("client_message_id", p.ClientMessageID).Msg("duplicate send dropped")
	case errors.Is(err, domain.ErrStorage):
		s.log.Error().Err(err).Str("receiver", p.Receiver).Msg("message not stored")
		s.reply(domain.NewMessageError("message could not be stored"))
	default:
		s.reply(domain.NewMessageError(err.Error()))
	}
}

func (s *Session) decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New("malformed payload")
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *Session) reply(event domain.Event) {
	if err := s.Send(event); err != nil {
		s.log.Debug().Err(err).Str("event", event.Name).Msg("reply dropped")
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		close(s.writerDone)
	}()

	for {
		select {
		case event := <-s.send:
			if err := s.write(event); err != nil {
				if !isExpectedCloseError(err) {
					s.log.Warn().Err(err).Msg("write failed")
				}
				s.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-s.done:
			s.flush()
			s.writeClose()
			return
		}
	}
}

// flush writes whatever was queued before the session started closing, then
// the replacement notice when the session was evicted.
func (s *Session) flush() {
	for {
		select {
		case event := <-s.send:
			if err := s.write(event); err != nil {
				return
			}
		default:
			if s.reason.code == CloseSessionReplaced {
				_ = s.write(domain.NewSessionReplaced())
			}
			return
		}
	}
}

func (s *Session) write(event domain.Event) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
	return s.conn.WriteJSON(event)
}

func (s *Session) writeClose() {
	if s.reason.code == websocket.CloseAbnormalClosure {
		return
	}
	msg := websocket.FormatCloseMessage(s.reason.code, s.reason.text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.New("invalid payload")
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "max":
		return fmt.Errorf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
