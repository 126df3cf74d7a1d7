// Package testing provides a scripted daemon socket for session tests.
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one socket message as the daemon sees it.
type Frame struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// Arg returns args[i] as a string, or "" when absent or not a string.
func (f Frame) Arg(i int) string {
	if i >= len(f.Args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Args[i], &s); err != nil {
		return ""
	}
	return s
}

// powerStates maps set state actions to the status the daemon reports.
var powerStates = map[string]string{
	"start":   "running",
	"restart": "running",
	"stop":    "offline",
	"kill":    "offline",
}

type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) write(v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(v)
}

func (p *peer) writeRaw(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Daemon is a fake daemon socket served from httptest. It answers auth and
// optionally acknowledges power actions; everything else is pushed by the test.
type Daemon struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	token       string
	silentAuth  bool
	ackPower    bool
	peers       []*peer
	received    []Frame
	connections int
}

// NewDaemon starts a daemon that accepts token. It is closed on test cleanup.
func NewDaemon(t testing.TB, token string) *Daemon {
	t.Helper()
	d := &Daemon{token: token}
	d.server = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.Close)
	return d
}

// URL is the ws:// address of the socket.
func (d *Daemon) URL() string {
	return "ws" + strings.TrimPrefix(d.server.URL, "http") + "/api/servers/test/ws"
}

// Close stops the server and drops every connection.
func (d *Daemon) Close() {
	d.DropAll()
	d.server.Close()
}

// SetAckPower makes the daemon answer set state with a status event.
func (d *Daemon) SetAckPower(ack bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ackPower = ack
}

// SetSilentAuth makes the daemon ignore auth frames.
func (d *Daemon) SetSilentAuth(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silentAuth = silent
}

// Connections counts accepted sockets.
func (d *Daemon) Connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connections
}

// Received returns every frame received so far.
func (d *Daemon) Received() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Frame, len(d.received))
	copy(out, d.received)
	return out
}

// Count returns how many frames with event were received.
func (d *Daemon) Count(event string) int {
	n := 0
	for _, f := range d.Received() {
		if f.Event == event {
			n++
		}
	}
	return n
}

// Last returns the most recent frame with event.
func (d *Daemon) Last(event string) (Frame, bool) {
	frames := d.Received()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			return frames[i], true
		}
	}
	return Frame{}, false
}

// Push sends an event to the newest connection. String args are sent as
// JSON strings; anything else is marshaled as is.
func (d *Daemon) Push(event string, args ...interface{}) error {
	p := d.latest()
	if p == nil {
		return websocket.ErrCloseSent
	}
	if args == nil {
		args = []interface{}{}
	}
	return p.write(map[string]interface{}{"event": event, "args": args})
}

// PushRaw sends data verbatim to the newest connection.
func (d *Daemon) PushRaw(data string) error {
	p := d.latest()
	if p == nil {
		return websocket.ErrCloseSent
	}
	return p.writeRaw([]byte(data))
}

// DropAll closes every open connection without a close handshake.
func (d *Daemon) DropAll() {
	d.mu.Lock()
	peers := d.peers
	d.peers = nil
	d.mu.Unlock()
	for _, p := range peers {
		p.conn.Close()
	}
}

// WaitFor polls until a frame with event has been received n times.
func (d *Daemon) WaitFor(event string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.Count(event) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return d.Count(event) >= n
}

func (d *Daemon) latest() *peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.peers) == 0 {
		return nil
	}
	return d.peers[len(d.peers)-1]
}

func (d *Daemon) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn}
	d.mu.Lock()
	d.peers = append(d.peers, p)
	d.connections++
	d.mu.Unlock()

	defer conn.Close()
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		d.mu.Lock()
		d.received = append(d.received, f)
		token, silent, ack := d.token, d.silentAuth, d.ackPower
		d.mu.Unlock()

		switch f.Event {
		case "auth":
			if silent {
				continue
			}
			if token == "" || f.Arg(0) == token {
				_ = p.write(Frame{Event: "auth success", Args: []json.RawMessage{}})
			} else {
				_ = p.write(Frame{Event: "auth error", Args: []json.RawMessage{}})
			}
		case "set state":
			if state, ok := powerStates[f.Arg(0)]; ok && ack {
				raw, _ := json.Marshal(state)
				_ = p.write(Frame{Event: "status", Args: []json.RawMessage{raw}})
			}
		}
	}
}
