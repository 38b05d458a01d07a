package stream

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	cases := map[string]string{
		"bob":       "dm.messages.bob",
		"bob.smith": "dm.messages.bob_smith",
		"a*b>c":     "dm.messages.a_b_c",
		"two words": "dm.messages.two_words",
		"":          "dm.messages._",
	}
	for receiver, want := range cases {
		require.Equal(t, want, Subject("dm.messages", receiver), "receiver %q", receiver)
	}
}

func TestConnect_RequiresURL(t *testing.T) {
	require.False(t, Config{}.Enabled())
	_, err := Connect(context.Background(), Config{}, zerolog.Nop())
	require.Error(t, err)
}
