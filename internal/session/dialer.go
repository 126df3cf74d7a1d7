package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open daemon socket. ReadJSON is called from a single reader
// goroutine and WriteJSON from a single writer goroutine.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens daemon sockets.
type Dialer interface {
	Dial(ctx context.Context, socketURL string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	// Origin is sent on the handshake. Daemons reject sockets without one.
	// Empty derives it from the socket URL.
	Origin string
}

// NewWebSocketDialer returns a dialer with a 10s handshake timeout.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{HandshakeTimeout: 10 * time.Second}
}

// Dial opens socketURL.
func (d *WebSocketDialer) Dial(ctx context.Context, socketURL string) (Conn, error) {
	origin := d.Origin
	if origin == "" {
		o, err := originFor(socketURL)
		if err != nil {
			return nil, err
		}
		origin = o
	}

	dialer := *websocket.DefaultDialer
	if d.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = d.HandshakeTimeout
	}

	header := http.Header{}
	header.Set("Origin", origin)

	conn, resp, err := dialer.DialContext(ctx, socketURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", socketURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", socketURL, err)
	}
	return conn, nil
}

// originFor maps ws(s)://host/... to http(s)://host.
func originFor(socketURL string) (string, error) {
	u, err := url.Parse(socketURL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	scheme := "http"
	switch u.Scheme {
	case "wss", "https":
		scheme = "https"
	case "ws", "http":
	default:
		return "", fmt.Errorf("socket url %q: unsupported scheme %q", socketURL, u.Scheme)
	}
	return scheme + "://" + u.Host, nil
}
