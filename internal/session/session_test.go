package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/deckhand/internal/console"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/metrics"
	sessiontest "github.com/rileyhilliard/deckhand/internal/session/testing"
	"github.com/rileyhilliard/deckhand/internal/telemetry"
)

const waitFor = 2 * time.Second

type recordingSink struct {
	mu     sync.Mutex
	states []State
	powers []string
	stats  []Stats
	pings  []time.Duration
	lines  []string
}

func (r *recordingSink) StateChanged(from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recordingSink) PowerStateChanged(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.powers = append(r.powers, state)
}

func (r *recordingSink) StatsReceived(stats Stats, ping time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, stats)
	r.pings = append(r.pings, ping)
}

func (r *recordingSink) ConsoleLines(lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, lines...)
}

func (r *recordingSink) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recordingSink) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recordingSink) StatsCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stats)
}

// resolutions records power action callbacks in call order.
type resolutions struct {
	mu  sync.Mutex
	got []string
}

func (r *resolutions) callback(name string) func(Resolution) {
	return func(res Resolution) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got = append(r.got, name+":"+res.String())
	}
}

func (r *resolutions) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func testOptions() Options {
	return Options{
		StatsInterval:        time.Hour,
		ActionFallback:       100 * time.Millisecond,
		AuthTimeout:          waitFor,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 3,
		Logger:               logger.Noop(),
	}
}

func newTestSession(t *testing.T, d *sessiontest.Daemon, token string, sink Sink, opts Options) *Session {
	t.Helper()
	auth := NewStaticAuthorizer(map[string]Grant{"srv": {Token: token, SocketURL: d.URL()}})
	s := New("srv", auth, sink, opts)
	t.Cleanup(s.Close)
	return s
}

func openSession(t *testing.T, d *sessiontest.Daemon, sink Sink, opts Options) *Session {
	t.Helper()
	s := newTestSession(t, d, "secret", sink, opts)
	require.NoError(t, s.Open(context.Background()))
	waitState(t, s, Connected)
	return s
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Snapshot().State == want }, waitFor, 5*time.Millisecond,
		"session never reached %s", want)
}

func TestSession_ConnectAuthenticatesAndRequestsBacklog(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	s := openSession(t, d, sink, testOptions())

	require.True(t, d.WaitFor(EventSendLogs, 1, waitFor))

	frames := d.Received()
	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, EventAuth, frames[0].Event)
	assert.Equal(t, "secret", frames[0].Arg(0))
	assert.Equal(t, 1, d.Count(EventSendStats), "one initial stats request")
	assert.Equal(t, 1, d.Count(EventSendLogs), "backlog requested once")

	assert.Equal(t, []State{Connecting, Connected}, sink.States())

	snap := s.Snapshot()
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "srv", snap.ServerID)
	assert.False(t, snap.ConnectedAt.IsZero())
	assert.Equal(t, 0, snap.Attempts)
}

func TestSession_PollsStats(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	opts := testOptions()
	opts.StatsInterval = 20 * time.Millisecond
	openSession(t, d, nil, opts)

	assert.True(t, d.WaitFor(EventSendStats, 4, waitFor))
}

func TestSession_OpenDenied(t *testing.T) {
	s := New("unknown", NewStaticAuthorizer(nil), nil, testOptions())
	defer s.Close()

	err := s.Open(context.Background())
	require.Error(t, err)
	assert.True(t, dherrors.IsCode(err, dherrors.ErrSession))
	assert.ErrorIs(t, err, ErrDenied)
	assert.Equal(t, Disconnected, s.Snapshot().State)
}

func TestSession_OpenTwice(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	s := openSession(t, d, nil, testOptions())

	assert.ErrorIs(t, s.Open(context.Background()), ErrAlreadyOpen)
}

func TestSession_AuthErrorCloses(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	s := newTestSession(t, d, "wrong", sink, testOptions())

	require.NoError(t, s.Open(context.Background()))
	waitState(t, s, Closed)

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("loop did not exit")
	}
	assert.Equal(t, []State{Connecting, Closed}, sink.States())
	assert.Equal(t, 1, d.Connections(), "auth error does not retry")
}

func TestSession_AuthTimeoutCountsAsDrop(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	d.SetSilentAuth(true)
	sink := &recordingSink{}
	opts := testOptions()
	opts.AuthTimeout = 100 * time.Millisecond
	opts.MaxReconnectAttempts = 0
	s := newTestSession(t, d, "secret", sink, opts)

	require.NoError(t, s.Open(context.Background()))
	waitState(t, s, Closed)
	assert.Equal(t, []State{Connecting, Reconnecting, Closed}, sink.States())
}

func TestSession_StatsFeedHistoryRatesAndPing(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	s := openSession(t, d, sink, testOptions())
	require.True(t, d.WaitFor(EventSendStats, 1, waitFor))

	// First payload as a JSON string, second as an object.
	require.NoError(t, d.Push(EventStats, `{"cpu_absolute":10,"memory_bytes":1048576,"disk_bytes":2097152,"network":{"rx_bytes":1000,"tx_bytes":500},"state":"running"}`))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, d.Push(EventStats, map[string]interface{}{
		"cpu_absolute": 20,
		"memory_bytes": 2097152,
		"disk_bytes":   2097152,
		"network":      map[string]interface{}{"rx_bytes": 3000, "tx_bytes": 1500},
	}))

	require.Eventually(t, func() bool {
		st := s.Snapshot().Stats
		return st != nil && st.CPUAbsolute == 20
	}, waitFor, 5*time.Millisecond)

	h := s.History()
	assert.Equal(t, []float64{10, 20}, h.Values(telemetry.MetricCPU, 0))
	assert.Equal(t, []float64{1, 2}, h.Values(telemetry.MetricMemory, 0))
	assert.Equal(t, []float64{2, 2}, h.Values(telemetry.MetricDisk, 0))
	assert.Equal(t, 1, h.Len(telemetry.MetricNetwork), "network needs two samples")

	net, ok := h.Latest(telemetry.MetricNetwork)
	require.True(t, ok)
	assert.Greater(t, net.Value, 0.0)

	snap := s.Snapshot()
	assert.Equal(t, "running", snap.PowerState, "stats state reconciles power state")
	assert.Greater(t, snap.Ping, time.Duration(0), "ping measured from the initial stats request")
	assert.Greater(t, snap.NetworkRx, 0.0)
	assert.Greater(t, snap.NetworkTx, 0.0)
	assert.Equal(t, 2, sink.StatsCount())
}

func TestSession_PartialStatsKeepSeriesAndBaselines(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	s := openSession(t, d, sink, testOptions())
	require.True(t, d.WaitFor(EventSendStats, 1, waitFor))

	require.NoError(t, d.Push(EventStats, map[string]interface{}{
		"cpu_absolute": 5,
		"network":      map[string]interface{}{"rx_bytes": 1000000000, "tx_bytes": 1000000000},
	}))
	require.Eventually(t, func() bool { return sink.StatsCount() == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, d.Push(EventStats, map[string]interface{}{"cpu_absolute": 7}))
	require.Eventually(t, func() bool { return sink.StatsCount() == 2 }, waitFor, 5*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, d.Push(EventStats, map[string]interface{}{
		"network": map[string]interface{}{"rx_bytes": 1000000100, "tx_bytes": 1000000100},
	}))
	require.Eventually(t, func() bool { return sink.StatsCount() == 3 }, waitFor, 5*time.Millisecond)

	h := s.History()
	assert.Equal(t, []float64{5, 7}, h.Values(telemetry.MetricCPU, 0))
	assert.Zero(t, h.Len(telemetry.MetricMemory), "memory never reported")
	assert.Zero(t, h.Len(telemetry.MetricDisk), "disk never reported")
	require.Equal(t, 1, h.Len(telemetry.MetricNetwork))

	// 100 bytes over at least 10ms; a zeroed baseline would read ~1e9 bytes.
	snap := s.Snapshot()
	assert.Less(t, snap.NetworkRx, 1e6)
	assert.Less(t, snap.NetworkTx, 1e6)
	net, ok := h.Latest(telemetry.MetricNetwork)
	require.True(t, ok)
	assert.Less(t, net.Value, 2e6)

	require.NotNil(t, snap.Stats)
	assert.Equal(t, 7.0, snap.Stats.CPUAbsolute, "absent cpu keeps its last value")
}

func TestSession_DropsMalformedAndUnknownEvents(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	s := openSession(t, d, sink, testOptions())

	require.NoError(t, d.Push(EventStats, "not json"))
	require.NoError(t, d.Push(EventStats))
	require.NoError(t, d.PushRaw(`{{{`))
	require.NoError(t, d.PushRaw(`{"event":5}`))
	require.NoError(t, d.Push("some future event", "x"))
	require.NoError(t, d.Push(EventStatus, "starting"))

	require.Eventually(t, func() bool { return s.Snapshot().PowerState == "starting" }, waitFor, 5*time.Millisecond)
	assert.Equal(t, Connected, s.Snapshot().State)
	assert.Equal(t, 0, sink.StatsCount())
	assert.Nil(t, s.Snapshot().Stats)
}

func TestSession_StatusWithoutStateMeansOffline(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	s := openSession(t, d, nil, testOptions())

	require.NoError(t, d.Push(EventStatus, "running"))
	require.Eventually(t, func() bool { return s.Snapshot().PowerState == "running" }, waitFor, 5*time.Millisecond)

	require.NoError(t, d.Push(EventStatus))
	require.Eventually(t, func() bool { return s.Snapshot().PowerState == DefaultPowerState }, waitFor, 5*time.Millisecond)
}

func TestSession_ConsoleLinesAreFiltered(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	opts := testOptions()
	opts.Rules = []console.Rule{
		{Type: console.RuleHide, Pattern: "DEBUG", Enabled: true},
		{Type: console.RuleColor, Pattern: "ERROR", Color: "red", Enabled: true},
	}
	openSession(t, d, sink, opts)

	require.NoError(t, d.Push(EventConsoleOutput, "DEBUG x\nINFO y\nERROR z\n"))

	require.Eventually(t, func() bool { return len(sink.Lines()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"INFO y", "\x1b[31mERROR\x1b[0m z"}, sink.Lines())
}

func TestSession_InstallAndTransferOutputUseFilters(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	opts := testOptions()
	opts.Rules = []console.Rule{{Type: console.RuleHide, Pattern: "^noise", Enabled: true}}
	openSession(t, d, sink, opts)

	require.NoError(t, d.Push(EventInstallOutput, "noise\nfetching egg"))
	require.NoError(t, d.Push(EventTransferLogs, "copied 3 files"))

	require.Eventually(t, func() bool { return len(sink.Lines()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"fetching egg", "copied 3 files"}, sink.Lines())
}

func TestSession_SetRulesHotReload(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	s := openSession(t, d, sink, testOptions())

	invalid := s.SetRules([]console.Rule{
		{Type: console.RuleHide, Pattern: "chat", Enabled: true},
		{Type: console.RuleHide, Pattern: "(", Enabled: true},
	})
	assert.Len(t, invalid, 1)

	require.NoError(t, d.Push(EventConsoleOutput, "chat hi\nserver ok"))
	require.Eventually(t, func() bool { return len(sink.Lines()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"server ok"}, sink.Lines())
}

func TestSession_SendCommandAndRequests(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	s := openSession(t, d, nil, testOptions())
	require.True(t, d.WaitFor(EventSendLogs, 1, waitFor))

	require.NoError(t, s.SendCommand("say hi"))
	require.NoError(t, s.RequestLogs())
	require.NoError(t, s.RequestStats())

	require.True(t, d.WaitFor(EventSendCommand, 1, waitFor))
	f, ok := d.Last(EventSendCommand)
	require.True(t, ok)
	assert.Equal(t, "say hi", f.Arg(0))
	assert.True(t, d.WaitFor(EventSendLogs, 2, waitFor))
	assert.True(t, d.WaitFor(EventSendStats, 2, waitFor))
}

func TestSession_NotConnected(t *testing.T) {
	s := New("srv", NewStaticAuthorizer(nil), nil, testOptions())
	defer s.Close()

	assert.ErrorIs(t, s.SendCommand("help"), ErrNotConnected)
	assert.ErrorIs(t, s.RequestStats(), ErrNotConnected)
	assert.ErrorIs(t, s.RequestLogs(), ErrNotConnected)

	res, err := s.Power(context.Background(), ActionStart)
	require.NoError(t, err)
	assert.Equal(t, ResolvedNotConnected, res)
}

func TestSession_InvalidPowerAction(t *testing.T) {
	s := New("srv", NewStaticAuthorizer(nil), nil, testOptions())
	defer s.Close()

	called := false
	err := s.SendPowerAction("reboot", func(Resolution) { called = true })
	require.ErrorIs(t, err, ErrInvalidAction)
	assert.False(t, called)
}

func TestSession_PowerAcknowledged(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	d.SetAckPower(true)
	sink := &recordingSink{}
	opts := testOptions()
	opts.ActionFallback = time.Hour
	s := openSession(t, d, sink, opts)

	counter := metrics.PowerActionsTotal.WithLabelValues("start", "acknowledged")
	before := testutil.ToFloat64(counter)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	res, err := s.Power(ctx, ActionStart)
	require.NoError(t, err)
	assert.Equal(t, ResolvedAcknowledged, res)

	f, ok := d.Last(EventSetState)
	require.True(t, ok)
	assert.Equal(t, "start", f.Arg(0))

	require.Eventually(t, func() bool { return s.Snapshot().PowerState == "running" }, waitFor, 5*time.Millisecond)
	assert.Empty(t, s.Snapshot().Pending)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestSession_PowerSupersededThenFallback(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	s := openSession(t, d, nil, testOptions())

	r := &resolutions{}
	require.NoError(t, s.SendPowerAction(ActionStop, r.callback("stop")))
	require.NoError(t, s.SendPowerAction(ActionStart, r.callback("start")))

	require.Eventually(t, func() bool { return len(r.list()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"stop:superseded", "start:timeout"}, r.list())

	// Nothing else fires later.
	time.Sleep(3 * testOptions().ActionFallback)
	assert.Len(t, r.list(), 2)
	assert.Equal(t, 2, d.Count(EventSetState))
	assert.Equal(t, Connected, s.Snapshot().State, "a missing acknowledgement is not a failure")
}

func TestSession_LateStatusAfterFallbackIsHarmless(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	s := openSession(t, d, nil, testOptions())

	r := &resolutions{}
	require.NoError(t, s.SendPowerAction(ActionRestart, r.callback("restart")))
	require.Eventually(t, func() bool { return len(r.list()) == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, d.Push(EventStatus, "running"))
	require.Eventually(t, func() bool { return s.Snapshot().PowerState == "running" }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"restart:timeout"}, r.list())
}

func TestSession_DropResolvesPendingAndReconnects(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	opts := testOptions()
	opts.ActionFallback = time.Hour
	s := openSession(t, d, sink, opts)

	r := &resolutions{}
	require.NoError(t, s.SendPowerAction(ActionStop, r.callback("stop")))
	require.True(t, d.WaitFor(EventSetState, 1, waitFor))

	d.DropAll()

	require.Eventually(t, func() bool { return len(r.list()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"stop:disconnected"}, r.list())

	require.Eventually(t, func() bool {
		return d.Connections() == 2 && s.Snapshot().State == Connected
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []State{Connecting, Connected, Reconnecting, Connecting, Connected}, sink.States())
	assert.Equal(t, 2, d.Count(EventAuth))
}

func TestSession_GivesUpAfterMaxAttempts(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	opts := testOptions()
	opts.MaxReconnectAttempts = 1
	s := openSession(t, d, sink, opts)

	d.Close()

	waitState(t, s, Closed)
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("loop did not exit")
	}
	states := sink.States()
	assert.Equal(t, Closed, states[len(states)-1])
	assert.Contains(t, states, Reconnecting)
}

func TestSession_TokenExpiringReauthenticates(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	s := openSession(t, d, nil, testOptions())

	require.NoError(t, d.Push(EventTokenExpiring))

	require.True(t, d.WaitFor(EventAuth, 2, waitFor))
	f, _ := d.Last(EventAuth)
	assert.Equal(t, "secret", f.Arg(0))
	assert.Equal(t, 1, d.Connections())
	assert.Equal(t, Connected, s.Snapshot().State)
}

func TestSession_TokenExpiredReconnects(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	s := openSession(t, d, nil, testOptions())

	require.NoError(t, d.Push(EventTokenExpired))

	require.Eventually(t, func() bool {
		return d.Connections() == 2 && s.Snapshot().State == Connected
	}, waitFor, 5*time.Millisecond)
}

func TestSession_CloseIsIdempotentAndSettlesPending(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	sink := &recordingSink{}
	opts := testOptions()
	opts.ActionFallback = time.Hour
	s := openSession(t, d, sink, opts)

	r := &resolutions{}
	require.NoError(t, s.SendPowerAction(ActionKill, r.callback("kill")))
	require.True(t, d.WaitFor(EventSetState, 1, waitFor))

	s.Close()
	s.Close()

	assert.Equal(t, Closed, s.Snapshot().State)
	assert.Equal(t, []string{"kill:closed"}, r.list())
	assert.Equal(t, []State{Connecting, Connected, Closed}, sink.States())
	assert.ErrorIs(t, s.Open(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.SendCommand("x"), ErrNotConnected)

	res, err := s.Power(context.Background(), ActionStart)
	require.NoError(t, err)
	assert.Equal(t, ResolvedNotConnected, res)
}

func TestSession_CloseWithoutOpen(t *testing.T) {
	sink := &recordingSink{}
	s := New("srv", NewStaticAuthorizer(nil), sink, testOptions())

	s.Close()
	s.Close()

	assert.Equal(t, Closed, s.Snapshot().State)
	assert.Equal(t, []State{Closed}, sink.States())
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestSession_PublishesNotifications(t *testing.T) {
	d := sessiontest.NewDaemon(t, "secret")
	d.SetAckPower(true)

	var mu sync.Mutex
	seen := map[string]int{}
	opts := testOptions()
	opts.Publisher = PublisherFunc(func(event string, payload interface{}) {
		mu.Lock()
		defer mu.Unlock()
		seen[event]++
	})
	s := openSession(t, d, nil, opts)

	_, err := s.Power(context.Background(), ActionStart)
	require.NoError(t, err)
	require.NoError(t, d.Push(EventInstallStarted))
	require.NoError(t, d.Push(EventBackupComplete, "backup-1"))
	require.NoError(t, d.Push(EventDaemonError, "disk full"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[NotifyDaemonError] == 1
	}, waitFor, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, seen[NotifySessionState], "connecting and connected")
	assert.Equal(t, 1, seen[NotifySessionPower])
	assert.Equal(t, 1, seen[NotifyInstallStarted])
	assert.Equal(t, 1, seen[NotifyBackupCompleted])
}

func TestLogPublisher(t *testing.T) {
	log := logger.NewBufferLogger()
	p := LogPublisher{Log: log}

	p.Publish(NotifySessionState, StateChange{ServerID: "srv", From: Connecting, To: Connected})
	p.Publish(NotifySessionPower, PowerResult{ServerID: "srv", Action: ActionStop, Resolution: ResolvedTimeout})

	assert.True(t, log.Contains("info", "session.state srv connecting -> connected"))
	assert.True(t, log.Contains("info", "session.power srv stop timeout"))

	LogPublisher{}.Publish("x", nil)
}
