package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo  = "mongo"
	StoreBadger = "badger"
)

type Config struct {
	Port            string        `env:"PORT,             default=5000"`
	Env             string        `env:"ENV,              default=development"`
	JWTSecret       string        `env:"JWT_SECRET,       required"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	TokenTTL        time.Duration `env:"TOKEN_TTL,        default=720h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`
	StoreBackend    string        `env:"STORE_BACKEND,    default=mongo"`

	Mongo    MongoConfig
	Badger   BadgerConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Realtime RealtimeConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=direct_messaging"`
}

type BadgerConfig struct {
	Path string `env:"BADGER_PATH, default=./data/badger"`
}

// RedisConfig is optional: an empty address disables message deduplication.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	DB       int           `env:"REDIS_DB,  default=0"`
	DedupTTL time.Duration `env:"DEDUP_TTL, default=1h"`
}

// NATSConfig is optional: an empty URL disables the message stream mirror.
type NATSConfig struct {
	URL           string `env:"NATS_URL"`
	Stream        string `env:"NATS_STREAM,         default=DIRECT_MESSAGES"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX, default=dm.messages"`
	Workers       int    `env:"PUBLISH_WORKERS,     default=4"`
}

type RealtimeConfig struct {
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT,     default=10s"`
	SendBuffer       int           `env:"SEND_BUFFER,           default=256"`
	MaxFrameBytes    int64         `env:"MAX_FRAME_BYTES,       default=65536"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH,    default=4096"`
	PongWait         time.Duration `env:"PONG_WAIT,             default=60s"`
	PingPeriod       time.Duration `env:"PING_PERIOD,           default=54s"`
	WriteWait        time.Duration `env:"WRITE_WAIT,            default=10s"`
	RatePerSecond    float64       `env:"RATE_LIMIT_PER_SECOND, default=10"`
	RateBurst        int           `env:"RATE_LIMIT_BURST,      default=20"`
	TypingThrottle   time.Duration `env:"TYPING_THROTTLE,       default=1s"`
	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS,       default=*"`
}

// Pretty reports whether logs should be written for humans.
func (c *Config) Pretty() bool {
	return strings.EqualFold(c.Env, "development")
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMongo, StoreBadger:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMongo, StoreBadger, c.StoreBackend)
	}
	if c.Realtime.PingPeriod >= c.Realtime.PongWait {
		return fmt.Errorf("PING_PERIOD (%s) must be shorter than PONG_WAIT (%s)", c.Realtime.PingPeriod, c.Realtime.PongWait)
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive")
	}
	return nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadFrom reads configuration through lookuper and validates it.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
