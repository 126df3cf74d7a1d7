package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/deckhand/internal/config"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/session"
	sessiontest "github.com/rileyhilliard/deckhand/internal/session/testing"
)

const waitFor = 2 * time.Second

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T, d *sessiontest.Daemon) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Servers = map[string]config.ServerGrant{
		"srv": {Socket: d.URL(), Token: "secret"},
	}
	cfg.Session.StatsInterval = time.Hour
	cfg.Session.ActionFallback = 100 * time.Millisecond
	cfg.Session.AuthTimeout = waitFor
	cfg.Session.ReconnectDelay = 20 * time.Millisecond
	cfg.Session.MaxReconnectAttempts = 1
	cfg.Filters.Path = filepath.Join(t.TempDir(), "filters.yaml")
	return cfg
}

func TestRunExec(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	cfg := testConfig(t, d)

	var out syncBuffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- runExec(context.Background(), &out, cfg, "srv", "say hello",
			500*time.Millisecond, waitFor, logger.Noop())
	}()

	require.True(t, d.WaitFor(session.EventSendCommand, 1, waitFor))
	f, ok := d.Last(session.EventSendCommand)
	require.True(t, ok)
	assert.Equal(t, "say hello", f.Arg(0))

	require.NoError(t, d.Push(session.EventConsoleOutput, "[Server] hello"))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * waitFor):
		t.Fatal("exec did not return")
	}
	assert.Contains(t, out.String(), "[Server] hello")
}

func TestRunExec_AppliesSavedFilters(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	cfg := testConfig(t, d)
	require.NoError(t, writeRules(t, cfg.Filters.Path, `rules:
  - id: quiet
    type: hide
    pattern: "^\\[DEBUG\\]"
    enabled: true
`))

	var out syncBuffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- runExec(context.Background(), &out, cfg, "srv", "list",
			500*time.Millisecond, waitFor, logger.Noop())
	}()

	require.True(t, d.WaitFor(session.EventSendCommand, 1, waitFor))
	require.NoError(t, d.Push(session.EventConsoleOutput, "[DEBUG] tick\nThere are 0 players online"))
	require.NoError(t, <-errCh)

	assert.Contains(t, out.String(), "There are 0 players online")
	assert.NotContains(t, out.String(), "tick")
}

func TestRunExec_UnknownServer(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	cfg := testConfig(t, d)

	var out bytes.Buffer
	err := runExec(context.Background(), &out, cfg, "nope", "help", 0, waitFor, logger.Noop())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrDenied)
	assert.Equal(t, 0, d.Connections(), "denied before dialing")
}

func TestRunExec_BadToken(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	cfg := testConfig(t, d)
	cfg.Servers["srv"] = config.ServerGrant{Socket: d.URL(), Token: "wrong"}

	var out bytes.Buffer
	err := runExec(context.Background(), &out, cfg, "srv", "help", 0, waitFor, logger.Noop())
	require.Error(t, err)
	assert.True(t, dherrors.IsCode(err, dherrors.ErrSession))
	assert.Equal(t, 0, d.Count(session.EventSendCommand))
}

func TestRunExec_ConnectTimeout(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	d.SetSilentAuth(true)
	cfg := testConfig(t, d)

	var out bytes.Buffer
	err := runExec(context.Background(), &out, cfg, "srv", "help", 0, 100*time.Millisecond, logger.Noop())
	require.Error(t, err)
	assert.True(t, dherrors.IsCode(err, dherrors.ErrSession))
}

func TestRunPower(t *testing.T) {
	tests := []struct {
		name     string
		ack      bool
		action   session.PowerAction
		wantLine string
	}{
		{"acknowledged", true, session.ActionStop, "srv stop: acknowledged\n"},
		{"fallback", false, session.ActionRestart, "srv restart: timeout\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sessiontest.NewDaemon(t, "secret")
			d.SetAckPower(tt.ack)
			cfg := testConfig(t, d)

			var out bytes.Buffer
			err := runPower(context.Background(), &out, cfg, "srv", tt.action, waitFor, logger.Noop())
			require.NoError(t, err)
			assert.Equal(t, tt.wantLine, out.String())

			f, ok := d.Last(session.EventSetState)
			require.True(t, ok)
			assert.Equal(t, string(tt.action), f.Arg(0))
		})
	}
}

func TestRunPower_UnknownServer(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	cfg := testConfig(t, d)

	var out bytes.Buffer
	err := runPower(context.Background(), &out, cfg, "nope", session.ActionKill, waitFor, logger.Noop())
	require.ErrorIs(t, err, session.ErrDenied)
	assert.Empty(t, out.String())
}

func TestAuthorizerFor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Servers = map[string]config.ServerGrant{"srv": {Socket: "ws://node1/ws", Token: "t"}}

	chain, ok := authorizerFor(cfg).(session.ChainAuthorizer)
	require.True(t, ok)
	assert.Len(t, chain, 1, "no panel configured")

	cfg.Panel.URL = "https://panel.example.net"
	chain = authorizerFor(cfg).(session.ChainAuthorizer)
	assert.Len(t, chain, 2)

	g, err := chain.Authorize(context.Background(), "srv")
	require.NoError(t, err)
	assert.Equal(t, "t", g.Token, "static grants win over the panel")
}
