// Package badgerdb is an embedded alternative to the MongoDB store, selected
// with STORE_BACKEND=badger for single-node deployments.
package badgerdb

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Config captures the settings for opening the embedded database.
type Config struct {
	Path     string
	InMemory bool
}

// Open opens the database with synchronous writes, so a committed
// transaction is on disk when Update returns.
func Open(cfg Config, log zerolog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(true).
		WithLogger(zerologAdapter{log: log}).
		WithLoggingLevel(badger.WARNING)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").
			WithInMemory(true).
			WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return db, nil
}

// zerologAdapter routes badger's internal logging into zerolog.
type zerologAdapter struct {
	log zerolog.Logger
}

func (a zerologAdapter) Errorf(format string, args ...interface{}) {
	a.log.Error().Msgf(format, args...)
}

func (a zerologAdapter) Warningf(format string, args ...interface{}) {
	a.log.Warn().Msgf(format, args...)
}

func (a zerologAdapter) Infof(format string, args ...interface{}) {
	a.log.Info().Msgf(format, args...)
}

func (a zerologAdapter) Debugf(format string, args ...interface{}) {
	a.log.Debug().Msgf(format, args...)
}
