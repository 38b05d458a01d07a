package realtime

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
	"github.com/99minutos/direct-messaging/internal/pkg/metrics"
)

// Handler upgrades authenticated HTTP requests on GET /ws into sessions.
type Handler struct {
	verifier ports.IdentityVerifier
	router   Router
	upgrader websocket.Upgrader
	validate *validator.Validate
	opts     Options
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHandler wires the handshake. handshakeTimeout bounds the upgrade itself;
// the HTTP server's ReadHeaderTimeout should use the same value.
func NewHandler(verifier ports.IdentityVerifier, router Router, origins *OriginPolicy, handshakeTimeout time.Duration, opts Options, log zerolog.Logger) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		verifier: verifier,
		router:   router,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      origins.Check,
		},
		validate: newValidator(),
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Serve godoc
// @Summary      Open realtime channel
// @Description  Upgrades to a WebSocket after verifying the bearer token passed as ?token= or Authorization header
// @Tags         realtime
// @Param        token  query  string  false  "JWT token"
// @Success      101
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /ws [get]
func (h *Handler) Serve(c echo.Context) error {
	credential := credentialFrom(c.Request())
	identity, err := h.verifier.Verify(credential)
	if err != nil {
		reason := "invalid"
		switch {
		case credential == "":
			reason = "missing"
		case errors.Is(err, domain.ErrExpiredCredential):
			reason = "expired"
		}
		metrics.HandshakeRejectionsTotal.WithLabelValues(reason).Inc()
		h.log.Info().Str("reason", reason).Str("remote", c.RealIP()).Msg("realtime handshake rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server shutting down")
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		metrics.HandshakeRejectionsTotal.WithLabelValues("upgrade").Inc()
		h.log.Debug().Err(err).Str("user_id", identity.ID).Msg("websocket upgrade failed")
		return nil
	}

	newSession(ws, identity, h.router, h.validate, h.opts, h.log).Run(h.ctx)
	return nil
}

// Shutdown closes every open session and waits for them to deregister, or
// until ctx expires. New handshakes are refused from the first call.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func credentialFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get(echo.HeaderAuthorization)
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// newValidator reports payload fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
