// Package stream mirrors stored messages onto a NATS JetStream stream so
// other services can consume the conversation log without touching the
// database.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

const (
	defaultMaxAge  = 7 * 24 * time.Hour
	connectTimeout = 5 * time.Second
)

// Config captures the settings for the JetStream mirror.
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	MaxAge        time.Duration
}

// Enabled reports whether a server URL was configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Publisher writes messages to "<prefix>.<receiver>".
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
	log    zerolog.Logger
}

// Connect dials NATS and makes sure the stream exists.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("nats: no url configured")
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("direct-messaging"),
		nats.Timeout(connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}

	ensureCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	stream, err := js.Stream(ensureCtx, cfg.Stream)
	switch {
	case errors.Is(err, jetstream.ErrStreamNotFound):
		_, err = js.CreateStream(ensureCtx, jetstream.StreamConfig{
			Name:        cfg.Stream,
			Description: "Direct messages mirrored after durable storage",
			Subjects:    []string{cfg.SubjectPrefix + ".>"},
			MaxAge:      maxAge,
			Storage:     jetstream.FileStorage,
			Duplicates:  2 * time.Minute,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream %q: %w", cfg.Stream, err)
		}
		log.Info().Str("stream", cfg.Stream).Msg("stream created")
	case err != nil:
		nc.Close()
		return nil, fmt.Errorf("lookup stream %q: %w", cfg.Stream, err)
	default:
		log.Info().Str("stream", stream.CachedInfo().Config.Name).Msg("found existing stream")
	}

	return &Publisher{nc: nc, js: js, prefix: cfg.SubjectPrefix, log: log}, nil
}

// Publish sends msg to its receiver's subject. The persisted id is used as
// the JetStream message id, so a retried publish is dropped by the server.
func (p *Publisher) Publish(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	subject := Subject(p.prefix, msg.Receiver)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msg.ID)); err != nil {
		return fmt.Errorf("publish to %q: %w", subject, err)
	}
	return nil
}

// Ping reports whether the connection is currently usable.
func (p *Publisher) Ping() error {
	if status := p.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats status %s", status)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

// Subject builds the subject for a receiver. Characters NATS treats as
// separators or wildcards are replaced so a display name is one token.
func Subject(prefix, receiver string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, receiver)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token
}
