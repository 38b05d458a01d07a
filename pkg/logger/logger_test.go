package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesJSONAtLevel(t *testing.T) {
	req := require.New(t)
	t.Cleanup(Reset)

	var buf bytes.Buffer
	log := Init(Options{Level: "warn", Output: &buf})

	log.Info().Msg("hidden")
	log.Warn().Str("user", "alice").Msg("shown")

	var entry map[string]any
	req.NoError(json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	req.Equal("shown", entry["message"])
	req.Equal("alice", entry["user"])
	req.Equal("warn", entry["level"])
}

func TestInit_OnlyFirstCallApplies(t *testing.T) {
	req := require.New(t)
	t.Cleanup(Reset)

	var first, second bytes.Buffer
	Init(Options{Output: &first})
	Init(Options{Output: &second})

	log := Get()
	log.Info().Msg("hello")
	req.NotZero(first.Len())
	req.Zero(second.Len())
}

func TestComponent(t *testing.T) {
	req := require.New(t)
	t.Cleanup(Reset)

	req.Equal(zerolog.Disabled, Component("router").GetLevel())

	var buf bytes.Buffer
	Init(Options{Output: &buf})
	log := Component("router")
	log.Info().Msg("up")

	var entry map[string]any
	req.NoError(json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	req.Equal("router", entry["component"])
}

func TestGet_PanicsBeforeInit(t *testing.T) {
	Reset()
	require.Panics(t, func() { Get() })
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, parseLevel(in), "level %q", in)
	}
}
