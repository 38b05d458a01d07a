package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "secret",
	}))
	req.NoError(err)

	req.Equal("5000", cfg.Port)
	req.Equal(StoreMongo, cfg.StoreBackend)
	req.Equal(720*time.Hour, cfg.TokenTTL)
	req.Equal(10*time.Second, cfg.Realtime.HandshakeTimeout)
	req.Equal(256, cfg.Realtime.SendBuffer)
	req.Equal([]string{"*"}, cfg.Realtime.AllowedOrigins)
	req.Empty(cfg.Redis.Addr)
	req.Empty(cfg.NATS.URL)
	req.Equal("dm.messages", cfg.NATS.SubjectPrefix)
	req.True(cfg.Pretty())
}

func TestLoadFrom_Overrides(t *testing.T) {
	req := require.New(t)

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":        "secret",
		"ENV":               "production",
		"STORE_BACKEND":     "badger",
		"REDIS_ADDR":        "redis:6379",
		"ALLOWED_ORIGINS":   "https://a.example,https://b.example",
		"HANDSHAKE_TIMEOUT": "3s",
	}))
	req.NoError(err)

	req.Equal(StoreBadger, cfg.StoreBackend)
	req.Equal("redis:6379", cfg.Redis.Addr)
	req.Equal([]string{"https://a.example", "https://b.example"}, cfg.Realtime.AllowedOrigins)
	req.Equal(3*time.Second, cfg.Realtime.HandshakeTimeout)
	req.False(cfg.Pretty())
}

func TestLoadFrom_RequiresSecret(t *testing.T) {
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.Error(t, err)
}

func TestLoadFrom_RejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend": {"JWT_SECRET": "s", "STORE_BACKEND": "postgres"},
		"ping after pong": {"JWT_SECRET": "s", "PING_PERIOD": "2m", "PONG_WAIT": "1m"},
		"zero buffer":     {"JWT_SECRET": "s", "SEND_BUFFER": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
			require.Error(t, err)
		})
	}
}
