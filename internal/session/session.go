// Package session keeps one real-time channel open to a server's daemon.
//
// Everything a session does happens on one loop goroutine: socket reads,
// timer fires and caller requests are posted to an inbox and handled in
// arrival order, so session state needs no locks. Readers see an immutable
// Snapshot published after every event.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/console"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/metrics"
	"github.com/rileyhilliard/deckhand/internal/telemetry"
)

const (
	DefaultStatsInterval        = 5 * time.Second
	DefaultActionFallback       = 2 * time.Second
	DefaultAuthTimeout          = 10 * time.Second
	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 5

	inboxSize  = 64
	sendBuffer = 256
)

var (
	// ErrNotConnected is returned by requests made outside the Connected state.
	ErrNotConnected = errors.New("session not connected")
	// ErrClosed is returned by Open after Close.
	ErrClosed = errors.New("session closed")
	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("session already open")
	// ErrSendBufferFull means the writer fell behind and the message was dropped.
	ErrSendBufferFull = errors.New("session send buffer full")

	errAuthTimeout = errors.New("daemon did not confirm authentication in time")
)

// Resolution says how a power action's wait ended.
type Resolution int

const (
	// ResolvedAcknowledged: a status event arrived.
	ResolvedAcknowledged Resolution = iota + 1
	// ResolvedSuperseded: a newer action replaced it.
	ResolvedSuperseded
	// ResolvedTimeout: the fallback timer fired first.
	ResolvedTimeout
	// ResolvedDisconnected: the transport dropped while waiting.
	ResolvedDisconnected
	// ResolvedNotConnected: the session was not connected when it was issued.
	ResolvedNotConnected
	// ResolvedClosed: the session was closed.
	ResolvedClosed
)

func (r Resolution) String() string {
	switch r {
	case ResolvedAcknowledged:
		return "acknowledged"
	case ResolvedSuperseded:
		return "superseded"
	case ResolvedTimeout:
		return "timeout"
	case ResolvedDisconnected:
		return "disconnected"
	case ResolvedNotConnected:
		return "not-connected"
	case ResolvedClosed:
		return "closed"
	default:
		return "unresolved"
	}
}

// Options tunes a session. Zero durations take the defaults; a zero
// MaxReconnectAttempts closes the session on the first drop.
type Options struct {
	StatsInterval        time.Duration
	ActionFallback       time.Duration
	AuthTimeout          time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	HistorySize          int

	Dialer    Dialer
	Publisher Publisher
	Logger    logger.Logger
	Rules     []console.Rule
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		StatsInterval:        DefaultStatsInterval,
		ActionFallback:       DefaultActionFallback,
		AuthTimeout:          DefaultAuthTimeout,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HistorySize:          telemetry.DefaultHistorySize,
	}
}

// OptionsFromConfig copies the session section of the config.
func OptionsFromConfig(c config.SessionConfig) Options {
	return Options{
		StatsInterval:        c.StatsInterval,
		ActionFallback:       c.ActionFallback,
		AuthTimeout:          c.AuthTimeout,
		ReconnectDelay:       c.ReconnectDelay,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		HistorySize:          c.HistorySize,
	}
}

func (o Options) withDefaults() Options {
	if o.StatsInterval <= 0 {
		o.StatsInterval = DefaultStatsInterval
	}
	if o.ActionFallback <= 0 {
		o.ActionFallback = DefaultActionFallback
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = DefaultAuthTimeout
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnectAttempts < 0 {
		o.MaxReconnectAttempts = 0
	}
	if o.HistorySize <= 0 {
		o.HistorySize = telemetry.DefaultHistorySize
	}
	if o.Dialer == nil {
		o.Dialer = NewWebSocketDialer()
	}
	if o.Publisher == nil {
		o.Publisher = NopPublisher()
	}
	if o.Logger == nil {
		o.Logger = logger.Noop()
	}
	return o
}

// Snapshot is a read-only view of a session after its last handled event.
type Snapshot struct {
	ID         string
	ServerID   string
	State      State
	PowerState string
	Stats      *Stats
	// Ping is the last stats round trip, zero until measured.
	Ping time.Duration
	// NetworkRx and NetworkTx are bytes per second, zero until two stats arrive.
	NetworkRx float64
	NetworkTx float64
	// Pending is the power action awaiting a status event, if any.
	Pending     PowerAction
	Attempts    int
	ConnectedAt time.Time
}

type pendingAction struct {
	seq    uint64
	action PowerAction
	done   func(Resolution)
	since  time.Time
	timer  *time.Timer
}

// Loop events. Everything that changes session state arrives as one of these.
type event interface{}

type openEvent struct{ grant Grant }

type dialedEvent struct {
	gen   uint64
	conn  Conn
	grant Grant
	err   error
}

type messageEvent struct {
	gen uint64
	msg Message
}

type dropEvent struct {
	gen uint64
	err error
}

type authTimeoutEvent struct{ gen uint64 }

type statsTickEvent struct{ gen uint64 }

type retryEvent struct{ gen uint64 }

type reauthEvent struct {
	gen   uint64
	grant Grant
	err   error
}

type powerEvent struct {
	action PowerAction
	done   func(Resolution)
}

type fallbackEvent struct{ seq uint64 }

type sendEvent struct {
	msg   Message
	reply chan error
}

type rulesEvent struct{ pipeline *console.Pipeline }

type closeEvent struct{}

// Session is one daemon channel for one server.
type Session struct {
	id       string
	serverID string
	opts     Options
	auth     Authorizer
	sink     Sink
	log      logger.Logger
	history  *telemetry.History

	ctx    context.Context
	cancel context.CancelFunc

	inbox    chan event
	stopping chan struct{}
	done     chan struct{}
	postMu   sync.RWMutex
	exited   bool

	lifeMu  sync.Mutex
	opening bool
	running bool
	closing bool

	snap atomic.Pointer[Snapshot]

	// Owned by the loop goroutine.
	state            State
	view             Snapshot
	gen              uint64
	grant            Grant
	conn             Conn
	sendCh           chan Message
	pipeline         *console.Pipeline
	rates            *telemetry.RateSampler
	pending          *pendingAction
	actionSeq        uint64
	attempts         int
	authTimer        *time.Timer
	statsTimer       *time.Timer
	retryTimer       *time.Timer
	statsRequestedAt time.Time
}

// New creates a Disconnected session for serverID. Nothing is dialed until Open.
func New(serverID string, auth Authorizer, sink Sink, opts Options) *Session {
	opts = opts.withDefaults()
	if sink == nil {
		sink = NopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       uuid.NewString(),
		serverID: serverID,
		opts:     opts,
		auth:     auth,
		sink:     sink,
		log:      opts.Logger,
		history:  telemetry.NewHistory(opts.HistorySize),
		ctx:      ctx,
		cancel:   cancel,
		inbox:    make(chan event, inboxSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
		state:    Disconnected,
		pipeline: console.Compile(opts.Rules),
		rates:    telemetry.NewRateSampler(),
	}
	s.view = Snapshot{ID: s.id, ServerID: serverID, State: Disconnected}
	s.publishView()
	metrics.RecordSessionTransition("", Disconnected.String())
	return s
}

// ID is the unique instance ID of this session.
func (s *Session) ID() string { return s.id }

// ServerID is the server this session talks to.
func (s *Session) ServerID() string { return s.serverID }

// History holds the cpu, memory, disk and network samples of this session.
func (s *Session) History() *telemetry.History { return s.history }

// Done is closed once the session has reached Closed and its loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the state after the last handled event.
func (s *Session) Snapshot() Snapshot {
	return *s.snap.Load()
}

// Open runs the capability check and starts connecting. A denial leaves the
// session Disconnected and is returned. Transport failures after this point
// are reported only as state changes.
func (s *Session) Open(ctx context.Context) error {
	s.lifeMu.Lock()
	switch {
	case s.closing:
		s.lifeMu.Unlock()
		return ErrClosed
	case s.opening || s.running:
		s.lifeMu.Unlock()
		return ErrAlreadyOpen
	}
	s.opening = true
	s.lifeMu.Unlock()

	grant, err := s.auth.Authorize(ctx, s.serverID)

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.opening = false
	if err != nil {
		return dherrors.WrapWithCode(err, dherrors.ErrSession,
			fmt.Sprintf("Cannot open a session for server %s", s.serverID),
			"Check panel.api_key, or add the server under servers: in deckhand.yaml")
	}
	if s.closing {
		return ErrClosed
	}
	s.running = true
	go s.run()
	s.inbox <- openEvent{grant: grant}
	return nil
}

// Close tears the session down: timers stop, a pending power action resolves
// with ResolvedClosed, the socket is released. Safe to call more than once.
// Must not be called from a Sink method.
func (s *Session) Close() {
	s.lifeMu.Lock()
	if s.closing {
		s.lifeMu.Unlock()
		<-s.done
		return
	}
	s.closing = true
	running := s.running
	s.lifeMu.Unlock()

	if !running {
		s.transition(triggerClose)
		s.exit()
		return
	}
	s.post(closeEvent{})
	<-s.done
}

// SendPowerAction issues action. done runs exactly once when the action
// resolves, normally on the session goroutine. Invalid actions return an
// error and done is not called.
func (s *Session) SendPowerAction(action PowerAction, done func(Resolution)) error {
	if _, err := ParsePowerAction(string(action)); err != nil {
		return err
	}
	if s.Snapshot().State != Connected {
		s.finishAction(action, done, ResolvedNotConnected, 0)
		return nil
	}
	if !s.post(powerEvent{action: action, done: done}) {
		s.finishAction(action, done, ResolvedClosed, 0)
	}
	return nil
}

// Power issues action and waits for its resolution or ctx.
func (s *Session) Power(ctx context.Context, action PowerAction) (Resolution, error) {
	ch := make(chan Resolution, 1)
	if err := s.SendPowerAction(action, func(r Resolution) { ch <- r }); err != nil {
		return 0, err
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SendCommand writes text to the server console.
func (s *Session) SendCommand(text string) error {
	return s.send(newMessage(EventSendCommand, text))
}

// RequestStats asks the daemon for a stats event.
func (s *Session) RequestStats() error {
	return s.send(newMessage(EventSendStats))
}

// RequestLogs asks the daemon to replay its console backlog.
func (s *Session) RequestLogs() error {
	return s.send(newMessage(EventSendLogs))
}

// SetRules swaps the console filter rules and returns the ones that failed
// to compile.
func (s *Session) SetRules(rules []console.Rule) []console.InvalidRule {
	p := console.Compile(rules)
	s.post(rulesEvent{pipeline: p})
	return p.Invalid()
}

func (s *Session) send(msg Message) error {
	if s.Snapshot().State != Connected {
		return ErrNotConnected
	}
	reply := make(chan error, 1)
	if !s.post(sendEvent{msg: msg, reply: reply}) {
		return ErrNotConnected
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrNotConnected
	}
}

// post hands ev to the loop. It returns false once the loop is shutting down.
func (s *Session) post(ev event) bool {
	s.postMu.RLock()
	defer s.postMu.RUnlock()
	if s.exited {
		return false
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.stopping:
		return false
	}
}

func (s *Session) after(d time.Duration, ev event) *time.Timer {
	return time.AfterFunc(d, func() { s.post(ev) })
}

func (s *Session) run() {
	for {
		ev := <-s.inbox
		s.handle(ev)
		s.publishView()
		if s.state == Closed {
			s.exit()
			return
		}
	}
}

// exit stops accepting events, settles whatever was already queued and
// closes done.
func (s *Session) exit() {
	s.cancel()
	close(s.stopping)
	s.postMu.Lock()
	s.exited = true
	s.postMu.Unlock()
	for {
		select {
		case ev := <-s.inbox:
			s.discard(ev)
		default:
			close(s.done)
			return
		}
	}
}

func (s *Session) discard(ev event) {
	switch e := ev.(type) {
	case powerEvent:
		s.finishAction(e.action, e.done, ResolvedClosed, 0)
	case sendEvent:
		e.reply <- ErrNotConnected
	case dialedEvent:
		if e.conn != nil {
			e.conn.Close()
		}
	}
}

func (s *Session) handle(ev event) {
	switch e := ev.(type) {
	case openEvent:
		s.grant = e.grant
		s.transition(triggerOpen)
		s.connect(false)

	case dialedEvent:
		if e.gen != s.gen || s.state != Connecting {
			if e.conn != nil {
				e.conn.Close()
			}
			return
		}
		if e.err != nil {
			if errors.Is(e.err, ErrDenied) {
				s.deny(e.err)
				return
			}
			s.drop(e.err)
			return
		}
		s.grant = e.grant
		s.attach(e.conn)

	case messageEvent:
		if e.gen == s.gen {
			s.dispatch(e.msg)
		}

	case dropEvent:
		if e.gen == s.gen {
			s.drop(e.err)
		}

	case authTimeoutEvent:
		if e.gen == s.gen && s.state == Connecting {
			s.drop(errAuthTimeout)
		}

	case statsTickEvent:
		if e.gen == s.gen && s.state == Connected {
			s.requestStats()
			s.statsTimer = s.after(s.opts.StatsInterval, statsTickEvent{gen: s.gen})
		}

	case retryEvent:
		if e.gen == s.gen && s.state == Reconnecting {
			s.transition(triggerRetry)
			metrics.RecordReconnect()
			s.log.Info("[%s] reconnecting (attempt %d/%d)", s.serverID, s.attempts, s.opts.MaxReconnectAttempts)
			s.connect(true)
		}

	case reauthEvent:
		if e.gen != s.gen || s.state != Connected {
			return
		}
		if e.err != nil {
			s.log.Warn("[%s] token refresh failed: %v", s.serverID, e.err)
			return
		}
		s.grant = e.grant
		_ = s.enqueue(newMessage(EventAuth, e.grant.Token))

	case powerEvent:
		s.power(e.action, e.done)

	case fallbackEvent:
		if s.pending != nil && s.pending.seq == e.seq {
			s.resolve(ResolvedTimeout)
		}

	case sendEvent:
		if s.state != Connected {
			e.reply <- ErrNotConnected
			return
		}
		err := s.enqueue(e.msg)
		if err == nil && e.msg.Event == EventSendStats {
			s.statsRequestedAt = time.Now()
		}
		e.reply <- err

	case rulesEvent:
		s.pipeline = e.pipeline

	case closeEvent:
		s.teardown(ResolvedClosed)
		s.transition(triggerClose)
	}
}

// connect dials in the background. Reconnects fetch a fresh grant first.
func (s *Session) connect(reauthorize bool) {
	s.gen++
	gen := s.gen
	grant := s.grant
	s.authTimer = s.after(s.opts.AuthTimeout, authTimeoutEvent{gen: gen})

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.AuthTimeout)
		defer cancel()
		if reauthorize {
			g, err := s.auth.Authorize(ctx, s.serverID)
			if err != nil {
				s.post(dialedEvent{gen: gen, err: err})
				return
			}
			grant = g
		}
		conn, err := s.opts.Dialer.Dial(ctx, grant.SocketURL)
		if !s.post(dialedEvent{gen: gen, conn: conn, grant: grant, err: err}) && conn != nil {
			conn.Close()
		}
	}()
}

func (s *Session) attach(conn Conn) {
	s.conn = conn
	s.sendCh = make(chan Message, sendBuffer)
	go s.readPump(s.gen, conn)
	go s.writePump(s.gen, conn, s.sendCh)
	_ = s.enqueue(newMessage(EventAuth, s.grant.Token))
}

func (s *Session) readPump(gen uint64, conn Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if isMalformed(err) {
				s.log.Debug("[%s] dropping malformed message: %v", s.serverID, err)
				continue
			}
			s.post(dropEvent{gen: gen, err: err})
			return
		}
		if !s.post(messageEvent{gen: gen, msg: msg}) {
			return
		}
	}
}

func (s *Session) writePump(gen uint64, conn Conn, out <-chan Message) {
	for msg := range out {
		if err := conn.WriteJSON(msg); err != nil {
			s.post(dropEvent{gen: gen, err: err})
			return
		}
	}
}

func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// enqueue never blocks; a full buffer drops the message.
func (s *Session) enqueue(msg Message) error {
	if s.sendCh == nil {
		return ErrNotConnected
	}
	select {
	case s.sendCh <- msg:
		return nil
	default:
		s.log.Warn("[%s] send buffer full, dropping %q", s.serverID, msg.Event)
		return ErrSendBufferFull
	}
}

func (s *Session) requestStats() {
	if s.enqueue(newMessage(EventSendStats)) == nil {
		s.statsRequestedAt = time.Now()
	}
}

// teardown cancels timers, settles the pending action and releases the socket.
func (s *Session) teardown(r Resolution) {
	for _, t := range []*time.Timer{s.authTimer, s.statsTimer, s.retryTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.authTimer, s.statsTimer, s.retryTimer = nil, nil, nil

	s.resolve(r)

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.sendCh != nil {
		close(s.sendCh)
		s.sendCh = nil
	}
	s.gen++
	s.statsRequestedAt = time.Time{}
	s.view.Ping = 0
	s.view.Stats = nil
	s.view.NetworkRx, s.view.NetworkTx = 0, 0
}

func (s *Session) drop(cause error) {
	if s.state != Connecting && s.state != Connected {
		return
	}
	s.log.Warn("[%s] connection lost: %v", s.serverID, cause)
	s.teardown(ResolvedDisconnected)
	s.transition(triggerDrop)

	s.attempts++
	s.view.Attempts = s.attempts
	if s.attempts > s.opts.MaxReconnectAttempts {
		s.log.Warn("[%s] giving up after %d reconnect attempts", s.serverID, s.opts.MaxReconnectAttempts)
		s.transition(triggerGiveUp)
		return
	}
	s.retryTimer = s.after(s.opts.ReconnectDelay, retryEvent{gen: s.gen})
}

func (s *Session) deny(cause error) {
	s.log.Error("[%s] session denied: %v", s.serverID, cause)
	s.teardown(ResolvedDisconnected)
	s.transition(triggerDenied)
}

func (s *Session) transition(t trigger) {
	to, err := next(s.state, t)
	if err != nil {
		s.log.Debug("[%s] %v", s.serverID, err)
		return
	}
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.view.State = to

	if to == Closed {
		metrics.RecordSessionTransition(from.String(), "")
	} else {
		metrics.RecordSessionTransition(from.String(), to.String())
	}
	s.log.Debug("[%s] %s -> %s", s.serverID, from, to)

	s.publishView()
	s.sink.StateChanged(from, to)
	s.opts.Publisher.Publish(NotifySessionState, StateChange{ServerID: s.serverID, From: from, To: to})
}

func (s *Session) authenticated() {
	if s.state != Connecting {
		// Answer to a token refresh.
		return
	}
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
	s.attempts = 0
	s.view.Attempts = 0
	s.view.ConnectedAt = time.Now()
	s.rates.Reset()
	s.transition(triggerAuthenticated)

	s.requestStats()
	_ = s.enqueue(newMessage(EventSendLogs))
	s.statsTimer = s.after(s.opts.StatsInterval, statsTickEvent{gen: s.gen})
}

func (s *Session) refreshToken() {
	gen := s.gen
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.AuthTimeout)
		defer cancel()
		g, err := s.auth.Authorize(ctx, s.serverID)
		s.post(reauthEvent{gen: gen, grant: g, err: err})
	}()
}

func (s *Session) dispatch(msg Message) {
	switch msg.Event {
	case EventAuthSuccess:
		s.authenticated()
		return
	case EventAuthError, EventAuthErrorAlt:
		s.deny(errors.New("daemon rejected the session token"))
		return
	case EventTokenExpiring:
		s.refreshToken()
		return
	case EventTokenExpired, EventJWTError:
		s.drop(fmt.Errorf("daemon sent %q", msg.Event))
		return
	}

	if s.state != Connected {
		s.log.Debug("[%s] dropping %q before authentication", s.serverID, msg.Event)
		return
	}

	switch msg.Event {
	case EventStatus:
		s.onStatus(msg.StringArg(0))
	case EventStats:
		s.onStats(msg)
	case EventConsoleOutput, EventInstallOutput, EventTransferLogs:
		s.onConsole(msg.StringArg(0))
	case EventInstallStarted:
		s.notify(NotifyInstallStarted, "")
	case EventInstallCompleted:
		s.notify(NotifyInstallCompleted, "")
	case EventBackupCompleted, EventBackupComplete:
		s.notify(NotifyBackupCompleted, msg.StringArg(0))
	case EventTransferStatus:
		s.notify(NotifyTransferStatus, msg.StringArg(0))
	case EventDaemonError:
		s.log.Warn("[%s] daemon error: %s", s.serverID, msg.StringArg(0))
		s.notify(NotifyDaemonError, msg.StringArg(0))
	default:
		s.log.Debug("[%s] dropping unknown event %q", s.serverID, msg.Event)
	}
}

func (s *Session) notify(event, message string) {
	s.opts.Publisher.Publish(event, DaemonNotice{ServerID: s.serverID, Message: message})
}

func (s *Session) onStatus(state string) {
	if state == "" {
		state = DefaultPowerState
	}
	s.setPowerState(state)
	s.resolve(ResolvedAcknowledged)
}

func (s *Session) setPowerState(state string) {
	if s.view.PowerState == state {
		return
	}
	s.view.PowerState = state
	s.sink.PowerStateChanged(state)
}

func (s *Session) onStats(msg Message) {
	if len(msg.Args) == 0 {
		s.log.Debug("[%s] dropping stats without payload", s.serverID)
		return
	}
	st, rep, err := ParseStatsReport(msg.Args[0])
	if err != nil {
		s.log.Debug("[%s] dropping stats: %v", s.serverID, err)
		return
	}

	now := time.Now()
	if !s.statsRequestedAt.IsZero() {
		s.view.Ping = now.Sub(s.statsRequestedAt)
		s.statsRequestedAt = time.Time{}
	}

	// Series the payload left out keep their last value and get no point.
	if prev := s.view.Stats; prev != nil {
		if !rep.CPU {
			st.CPUAbsolute = prev.CPUAbsolute
		}
		if !rep.Memory {
			st.MemoryBytes = prev.MemoryBytes
		}
		if !rep.Disk {
			st.DiskBytes = prev.DiskBytes
		}
		if !rep.Network {
			st.Network = prev.Network
		}
	}

	if rep.CPU {
		s.history.Push(telemetry.MetricCPU, telemetry.Point{Time: now, Value: st.CPUAbsolute})
	}
	if rep.Memory {
		s.history.Push(telemetry.MetricMemory, telemetry.Point{Time: now, Value: st.MemoryMiB()})
	}
	if rep.Disk {
		s.history.Push(telemetry.MetricDisk, telemetry.Point{Time: now, Value: st.DiskMiB()})
	}
	if rep.Network {
		rx, rxOK := s.rates.Sample(telemetry.StreamRx, st.Network.RxBytes, now)
		tx, txOK := s.rates.Sample(telemetry.StreamTx, st.Network.TxBytes, now)
		if rxOK && txOK {
			s.history.Push(telemetry.MetricNetwork, telemetry.Point{Time: now, Value: rx + tx})
			s.view.NetworkRx, s.view.NetworkTx = rx, tx
		}
	}

	s.view.Stats = &st
	if st.State != "" {
		s.setPowerState(st.State)
	}
	s.sink.StatsReceived(st, s.view.Ping)
}

func (s *Session) onConsole(text string) {
	lines := s.pipeline.Process(text)
	if len(lines) > 0 {
		s.sink.ConsoleLines(lines)
	}
}

func (s *Session) power(action PowerAction, done func(Resolution)) {
	if s.state != Connected {
		s.finishAction(action, done, ResolvedNotConnected, 0)
		return
	}
	s.resolve(ResolvedSuperseded)

	s.actionSeq++
	p := &pendingAction{seq: s.actionSeq, action: action, done: done, since: time.Now()}
	s.pending = p
	s.view.Pending = action

	if err := s.enqueue(newMessage(EventSetState, string(action))); err != nil {
		s.log.Warn("[%s] %s not sent: %v", s.serverID, action, err)
	}
	p.timer = s.after(s.opts.ActionFallback, fallbackEvent{seq: p.seq})
}

// resolve settles and clears the pending action, if any.
func (s *Session) resolve(r Resolution) {
	p := s.pending
	if p == nil {
		return
	}
	s.pending = nil
	s.view.Pending = ""
	if p.timer != nil {
		p.timer.Stop()
	}
	s.finishAction(p.action, p.done, r, time.Since(p.since))
}

func (s *Session) finishAction(action PowerAction, done func(Resolution), r Resolution, waited time.Duration) {
	metrics.RecordPowerAction(string(action), r.String())
	s.opts.Publisher.Publish(NotifySessionPower, PowerResult{
		ServerID:   s.serverID,
		Action:     action,
		Resolution: r,
		Waited:     waited,
	})
	if done != nil {
		done(r)
	}
}

func (s *Session) publishView() {
	v := s.view
	if v.Stats != nil {
		st := *v.Stats
		v.Stats = &st
	}
	s.snap.Store(&v)
}
