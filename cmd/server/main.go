package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99minutos/direct-messaging/internal/api"
	"github.com/99minutos/direct-messaging/internal/api/realtime"
	"github.com/99minutos/direct-messaging/internal/core/ports"
	"github.com/99minutos/direct-messaging/internal/core/presence"
	"github.com/99minutos/direct-messaging/internal/core/service"
	"github.com/99minutos/direct-messaging/internal/infrastructure/db/badgerdb"
	mongostore "github.com/99minutos/direct-messaging/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/direct-messaging/internal/infrastructure/db/redis"
	"github.com/99minutos/direct-messaging/internal/infrastructure/http/handlers"
	"github.com/99minutos/direct-messaging/internal/infrastructure/queue"
	"github.com/99minutos/direct-messaging/internal/infrastructure/stream"
	"github.com/99minutos/direct-messaging/internal/pkg/config"
	"github.com/99minutos/direct-messaging/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// storage is the selected persistence backend.
type storage struct {
	messages ports.MessageStore
	users    ports.UserRepository
	check    handlers.Check
	close    func(ctx context.Context) error
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StoreBackend {
	case config.StoreBadger:
		db, err := badgerdb.Open(badgerdb.Config{Path: cfg.Badger.Path}, logger.Component("badger"))
		if err != nil {
			return nil, err
		}
		return &storage{
			messages: badgerdb.NewMessageStore(db),
			users:    badgerdb.NewUserRepository(db),
			check: func(context.Context) error {
				if db.IsClosed() {
					return errors.New("badger closed")
				}
				return nil
			},
			close: func(context.Context) error { return db.Close() },
		}, nil

	default:
		client, messages, users, err := mongostore.Setup(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, err
		}
		return &storage{
			messages: messages,
			users:    users,
			check:    func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:    client.Disconnect,
		}, nil
	}
}

func run() error {
	// 1. Configuration & logger
	cfg := config.Load()
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.Pretty()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := store.close(closeCtx); err != nil {
			log.Error().Err(err).Msg("closing storage failed")
		}
	}()
	checks := map[string]handlers.Check{cfg.StoreBackend: store.check}

	// 3. Routing core with its optional collaborators
	opts := []service.RouterOption{
		service.WithTypingThrottle(cfg.Realtime.TypingThrottle),
		service.WithMaxMessageLength(cfg.Realtime.MaxMessageLength),
	}

	redisCfg := redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB}
	if redisCfg.Enabled() {
		rdb, err := redisstore.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		opts = append(opts, service.WithDeduplicator(redisstore.NewDedupChecker(rdb, cfg.Redis.DedupTTL)))
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var dispatcher *queue.Dispatcher
	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	defer stopMirror()
	natsCfg := stream.Config{URL: cfg.NATS.URL, Stream: cfg.NATS.Stream, SubjectPrefix: cfg.NATS.SubjectPrefix}
	if natsCfg.Enabled() {
		publisher, err := stream.Connect(ctx, natsCfg, logger.Component("stream"))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer publisher.Close()
		dispatcher = queue.NewDispatcher(cfg.NATS.Workers, publisher, logger.Component("mirror"))
		dispatcher.Start(mirrorCtx)
		opts = append(opts, service.WithMirror(dispatcher))
		checks["nats"] = func(context.Context) error { return publisher.Ping() }
	}

	router := service.NewRouter(presence.NewRegistry(), store.messages, logger.Component("router"), opts...)
	defer router.Close()

	// 4. HTTP surface
	verifier := service.NewTokenVerifier(cfg.JWTSecret)
	rt := realtime.NewHandler(
		verifier,
		router,
		realtime.NewOriginPolicy(cfg.Realtime.AllowedOrigins, logger.Component("realtime")),
		cfg.Realtime.HandshakeTimeout,
		realtime.Options{
			SendBuffer:    cfg.Realtime.SendBuffer,
			MaxFrameBytes: cfg.Realtime.MaxFrameBytes,
			PongWait:      cfg.Realtime.PongWait,
			PingPeriod:    cfg.Realtime.PingPeriod,
			WriteWait:     cfg.Realtime.WriteWait,
			RatePerSecond: cfg.Realtime.RatePerSecond,
			RateBurst:     cfg.Realtime.RateBurst,
		},
		logger.Component("realtime"),
	)

	e := api.NewRouter(api.Dependencies{
		Auth:           service.NewAuthService(store.users, cfg.JWTSecret, cfg.TokenTTL),
		Directory:      service.NewDirectoryService(store.users, store.messages),
		Verifier:       verifier,
		Realtime:       rt,
		Checks:         checks,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
		Log:            logger.Component("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: cfg.Realtime.HandshakeTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// 5. Wait for a signal or a fatal server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down gracefully")
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	}

	// 6. Stop accepting, close sessions, drain the mirror
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown incomplete")
	}
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("realtime sessions did not close in time")
	}
	if dispatcher != nil {
		stopMirror()
		dispatcher.Wait()
	}

	log.Info().Time("at", time.Now().UTC()).Msg("server stopped")
	return nil
}
