package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rileyhilliard/deckhand/internal/config"
)

// ErrDenied means the caller may not open a session for the server.
var ErrDenied = errors.New("session not authorized")

// Grant is the capability to open one daemon socket.
type Grant struct {
	Token     string
	SocketURL string
	ExpiresAt time.Time
}

// Authorizer performs the capability check before a session dials. It is
// also called on reconnect and when the daemon warns that a token expires.
type Authorizer interface {
	Authorize(ctx context.Context, serverID string) (Grant, error)
}

// StaticAuthorizer serves grants from configuration.
type StaticAuthorizer struct {
	grants map[string]Grant
}

// NewStaticAuthorizer copies grants keyed by server ID.
func NewStaticAuthorizer(grants map[string]Grant) *StaticAuthorizer {
	g := make(map[string]Grant, len(grants))
	for id, grant := range grants {
		g[id] = grant
	}
	return &StaticAuthorizer{grants: g}
}

// StaticFromConfig builds a StaticAuthorizer from the servers section.
func StaticFromConfig(servers map[string]config.ServerGrant) *StaticAuthorizer {
	grants := make(map[string]Grant, len(servers))
	for id, s := range servers {
		grants[id] = Grant{Token: s.Token, SocketURL: s.Socket}
	}
	return NewStaticAuthorizer(grants)
}

// Authorize returns the configured grant or ErrDenied.
func (a *StaticAuthorizer) Authorize(ctx context.Context, serverID string) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	g, ok := a.grants[strings.ToLower(serverID)]
	if !ok {
		g, ok = a.grants[serverID]
	}
	if !ok {
		return Grant{}, fmt.Errorf("%w: no socket configured for server %s", ErrDenied, serverID)
	}
	return g, nil
}

// ChainAuthorizer asks each authorizer in turn. A denial moves on to the
// next one; any other error stops the chain.
type ChainAuthorizer []Authorizer

// Authorize returns the first grant. With no authorizers, or when every one
// denies, the last denial is returned.
func (c ChainAuthorizer) Authorize(ctx context.Context, serverID string) (Grant, error) {
	err := fmt.Errorf("%w: no authorizer configured", ErrDenied)
	for _, a := range c {
		var g Grant
		g, err = a.Authorize(ctx, serverID)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, ErrDenied) {
			return Grant{}, err
		}
	}
	return Grant{}, err
}

// jwtPath is the panel endpoint that mints daemon socket tokens.
const jwtPath = "/api/user/servers/%s/jwt"

type jwtResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token            string `json:"token"`
		ExpiresAt        int64  `json:"expires_at"`
		ConnectionString string `json:"connection_string"`
	} `json:"data"`
	ErrorMessage string `json:"error_message"`
}

// PanelAuthorizer asks the panel API for a short-lived socket token.
type PanelAuthorizer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPanelAuthorizer creates an authorizer for the panel at baseURL.
func NewPanelAuthorizer(baseURL, apiKey string, client *http.Client) *PanelAuthorizer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PanelAuthorizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// Authorize POSTs the jwt endpoint. 401, 403 and 404 answers, and any
// response with success=false, are denials.
func (a *PanelAuthorizer) Authorize(ctx context.Context, serverID string) (Grant, error) {
	endpoint := a.baseURL + fmt.Sprintf(jwtPath, url.PathEscape(serverID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return Grant{}, err
	}
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("request session token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Grant{}, fmt.Errorf("read session token: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return Grant{}, fmt.Errorf("%w: panel answered %d for server %s", ErrDenied, resp.StatusCode, serverID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Grant{}, fmt.Errorf("panel answered %d for server %s", resp.StatusCode, serverID)
	}

	var jr jwtResponse
	if err := json.Unmarshal(body, &jr); err != nil {
		return Grant{}, fmt.Errorf("decode session token: %w", err)
	}
	if !jr.Success {
		msg := jr.ErrorMessage
		if msg == "" {
			msg = "panel refused the token request"
		}
		return Grant{}, fmt.Errorf("%w: %s", ErrDenied, msg)
	}
	if jr.Data.Token == "" || jr.Data.ConnectionString == "" {
		return Grant{}, fmt.Errorf("panel returned an incomplete token for server %s", serverID)
	}

	g := Grant{Token: jr.Data.Token, SocketURL: jr.Data.ConnectionString}
	if jr.Data.ExpiresAt > 0 {
		g.ExpiresAt = time.Unix(jr.Data.ExpiresAt, 0)
	}
	return g, nil
}
