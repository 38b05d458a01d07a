package realtime

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// OriginPolicy decides which browser origins may open a realtime connection.
// Requests without an Origin header come from non-browser clients and are
// always allowed; the credential check still applies to them.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      zerolog.Logger
}

// NewOriginPolicy builds a policy from configured origins. "*" allows any
// origin; malformed entries are logged and ignored.
func NewOriginPolicy(origins []string, log zerolog.Logger) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}), log: log}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

// Check satisfies websocket.Upgrader.CheckOrigin.
func (p *OriginPolicy) Check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}

	p.log.Warn().Str("origin", header).Msg("blocked realtime connection from disallowed origin")
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
