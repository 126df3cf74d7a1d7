package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/console"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/session"
)

// authorizerFor grants sockets from the servers section first, then asks
// the panel when one is configured.
func authorizerFor(cfg *config.Config) session.Authorizer {
	chain := session.ChainAuthorizer{session.StaticFromConfig(cfg.Servers)}
	if cfg.Panel.URL != "" {
		chain = append(chain, session.NewPanelAuthorizer(cfg.Panel.URL, cfg.Panel.APIKey, nil))
	}
	return chain
}

// sessionOptions builds session options from config with the saved filter
// rules loaded.
func sessionOptions(cfg *config.Config, log logger.Logger) (session.Options, error) {
	opts := session.OptionsFromConfig(cfg.Session)
	opts.Logger = log
	opts.Publisher = session.LogPublisher{Log: log}

	rules, err := console.NewStore(cfg.Filters.Path).Load()
	if err != nil {
		return opts, err
	}
	opts.Rules = rules
	return opts, nil
}

// printSink writes console lines to w once printing is enabled and signals
// when the session connects or closes.
type printSink struct {
	session.NopSink
	w        io.Writer
	mu       sync.Mutex
	printing atomic.Bool

	connected     chan struct{}
	closed        chan struct{}
	connectedOnce sync.Once
	closedOnce    sync.Once
}

func newPrintSink(w io.Writer) *printSink {
	return &printSink{
		w:         w,
		connected: make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

func (p *printSink) StateChanged(from, to session.State) {
	switch to {
	case session.Connected:
		p.connectedOnce.Do(func() { close(p.connected) })
	case session.Closed:
		p.closedOnce.Do(func() { close(p.closed) })
	}
}

func (p *printSink) ConsoleLines(lines []string) {
	if !p.printing.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(p.w, l)
	}
}

// openConnected opens a session for serverID and waits for the daemon to
// accept its token.
func openConnected(ctx context.Context, cfg *config.Config, serverID string, sink *printSink, log logger.Logger) (*session.Session, error) {
	opts, err := sessionOptions(cfg, log)
	if err != nil {
		return nil, err
	}
	s := session.New(serverID, authorizerFor(cfg), sink, opts)
	if err := s.Open(ctx); err != nil {
		s.Close()
		return nil, err
	}

	select {
	case <-sink.connected:
		return s, nil
	case <-sink.closed:
		s.Close()
		return nil, dherrors.New(dherrors.ErrSession,
			fmt.Sprintf("Could not connect to server %s", serverID),
			"Check the socket URL and token, or run with --debug for details")
	case <-ctx.Done():
		s.Close()
		return nil, dherrors.WrapWithCode(ctx.Err(), dherrors.ErrSession,
			fmt.Sprintf("Timed out connecting to server %s", serverID),
			"Raise --timeout or check that the daemon is reachable")
	}
}
