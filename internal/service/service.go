// Package service runs deckhand's status server under the host's service
// manager (systemd, launchd or the Windows SCM).
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	kardianos "github.com/kardianos/service"

	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
)

const (
	Name        = "deckhand"
	DisplayName = "Deckhand status server"
	Description = "Serves daemon fleet health over HTTP."

	stopTimeout = 10 * time.Second
)

// Actions accepted by Control.
var Actions = []string{"install", "uninstall", "start", "stop", "restart"}

// RunFunc is the long-running work. It must return once ctx is done.
type RunFunc func(ctx context.Context) error

// Program adapts a RunFunc to the service manager's Start/Stop calls.
type Program struct {
	run RunFunc
	log logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// NewProgram wraps run.
func NewProgram(run RunFunc, log logger.Logger) *Program {
	if log == nil {
		log = logger.Noop()
	}
	return &Program{run: run, log: log}
}

// Start launches run in the background. It must not block.
func (p *Program) Start(s kardianos.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("service already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	p.cancel, p.done = cancel, done

	p.log.Info("service starting")
	go func() {
		err := p.run(ctx)
		if err != nil {
			p.log.Error("service stopped: %v", err)
		}
		done <- err
	}()
	return nil
}

// Stop cancels run and waits for it to return.
func (p *Program) Stop(s kardianos.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	p.log.Info("service stopping")
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(stopTimeout):
		return fmt.Errorf("service did not stop within %s", stopTimeout)
	}
}

// New registers p with the host service manager. args are passed to the
// binary when the manager launches it.
func New(p *Program, args []string) (kardianos.Service, error) {
	svc, err := kardianos.New(p, &kardianos.Config{
		Name:        Name,
		DisplayName: DisplayName,
		Description: Description,
		Arguments:   args,
	})
	if err != nil {
		return nil, dherrors.WrapWithCode(err, dherrors.ErrServer,
			"Service manager unavailable",
			"Run 'deckhand serve' directly on this platform")
	}
	return svc, nil
}

// Control performs one of Actions.
func Control(svc kardianos.Service, action string) error {
	if !validAction(action) {
		return dherrors.New(dherrors.ErrServer,
			fmt.Sprintf("Unknown service action: %s", action),
			"Use one of install, uninstall, start, stop, restart")
	}
	if err := kardianos.Control(svc, action); err != nil {
		return dherrors.WrapWithCode(err, dherrors.ErrServer,
			fmt.Sprintf("Service %s failed", action),
			"Installing and controlling services usually needs root or administrator rights")
	}
	return nil
}

func validAction(action string) bool {
	for _, a := range Actions {
		if a == action {
			return true
		}
	}
	return false
}
