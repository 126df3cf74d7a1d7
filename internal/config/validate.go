package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rileyhilliard/deckhand/internal/errors"
)

// Validate checks the config for errors and returns a structured error naming
// the offending field. Node entries are validated when the fleet registry is
// built from them.
func Validate(cfg *Config) error {
	if cfg.Probe.Timeout <= 0 {
		return fieldError("probe.timeout", "must be a positive duration like 10s")
	}

	s := cfg.Session
	durations := []struct {
		key string
		val time.Duration
	}{
		{"session.stats_interval", s.StatsInterval},
		{"session.action_fallback", s.ActionFallback},
		{"session.auth_timeout", s.AuthTimeout},
		{"session.reconnect_delay", s.ReconnectDelay},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return fieldError(d.key, "must be a positive duration")
		}
	}
	if s.MaxReconnectAttempts < 0 {
		return fieldError("session.max_reconnect_attempts", "can't be negative (0 disables reconnects)")
	}
	if s.HistorySize <= 0 {
		return fieldError("session.history_size", "must be at least 1")
	}

	if cfg.Panel.URL != "" {
		if err := validateURL(cfg.Panel.URL, "http", "https"); err != nil {
			return fieldError("panel.url", err.Error())
		}
	}

	for id, grant := range cfg.Servers {
		key := fmt.Sprintf("servers.%s.socket", id)
		if grant.Socket == "" {
			return fieldError(key, "is required for a static grant")
		}
		if err := validateURL(grant.Socket, "ws", "wss"); err != nil {
			return fieldError(key, err.Error())
		}
	}

	if cfg.Server.Addr == "" {
		return fieldError("server.addr", "is required, e.g. 127.0.0.1:8089")
	}

	return nil
}

func fieldError(key, problem string) error {
	return errors.New(errors.ErrConfig,
		fmt.Sprintf("Config field '%s' %s", key, problem),
		"Fix the value in deckhand.yaml or the matching DECKHAND_* environment variable.")
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("must be a %s:// URL with a host", schemes[0])
}
