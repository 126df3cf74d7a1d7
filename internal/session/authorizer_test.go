package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/deckhand/internal/config"
)

func TestStaticAuthorizer(t *testing.T) {
	a := StaticFromConfig(map[string]config.ServerGrant{
		"abc123": {Socket: "wss://node1:8080/api/servers/abc123/ws", Token: "tok"},
	})

	g, err := a.Authorize(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "tok", g.Token)
	assert.Equal(t, "wss://node1:8080/api/servers/abc123/ws", g.SocketURL)

	g, err = a.Authorize(context.Background(), "ABC123")
	require.NoError(t, err, "config keys are lowercased, lookups follow")
	assert.Equal(t, "tok", g.Token)

	_, err = a.Authorize(context.Background(), "missing")
	require.ErrorIs(t, err, ErrDenied)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Authorize(ctx, "abc123")
	require.ErrorIs(t, err, context.Canceled)
}

func TestPanelAuthorizer(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantDenied bool
		wantGrant  Grant
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"success":true,"data":{"token":"jwt","expires_at":1700000000,"connection_string":"wss://node1:8080/api/servers/abc/ws"}}`,
			wantGrant: Grant{
				Token:     "jwt",
				SocketURL: "wss://node1:8080/api/servers/abc/ws",
				ExpiresAt: time.Unix(1700000000, 0),
			},
		},
		{
			name:       "forbidden",
			status:     http.StatusForbidden,
			body:       `{"success":false,"error_message":"no access"}`,
			wantErr:    true,
			wantDenied: true,
		},
		{
			name:       "success false",
			status:     http.StatusOK,
			body:       `{"success":false,"error_message":"server suspended"}`,
			wantErr:    true,
			wantDenied: true,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `oops`,
			wantErr: true,
		},
		{
			name:    "bad json",
			status:  http.StatusOK,
			body:    `{`,
			wantErr: true,
		},
		{
			name:    "missing token",
			status:  http.StatusOK,
			body:    `{"success":true,"data":{"connection_string":"wss://x/ws"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotMethod, gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotMethod, gotAuth = r.URL.Path, r.Method, r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewPanelAuthorizer(srv.URL+"/", "key-1", srv.Client())
			g, err := a.Authorize(context.Background(), "abc")

			assert.Equal(t, "/api/user/servers/abc/jwt", gotPath)
			assert.Equal(t, http.MethodPost, gotMethod)
			assert.Equal(t, "Bearer key-1", gotAuth)

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantDenied {
					assert.ErrorIs(t, err, ErrDenied)
				} else {
					assert.NotErrorIs(t, err, ErrDenied)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantGrant.Token, g.Token)
			assert.Equal(t, tt.wantGrant.SocketURL, g.SocketURL)
			assert.True(t, tt.wantGrant.ExpiresAt.Equal(g.ExpiresAt))
		})
	}
}

type authorizerFunc func(ctx context.Context, serverID string) (Grant, error)

func (f authorizerFunc) Authorize(ctx context.Context, serverID string) (Grant, error) {
	return f(ctx, serverID)
}

func TestChainAuthorizer(t *testing.T) {
	static := NewStaticAuthorizer(map[string]Grant{"a": {Token: "static"}})
	panel := authorizerFunc(func(_ context.Context, id string) (Grant, error) {
		if id == "broken" {
			return Grant{}, errors.New("panel unavailable")
		}
		return Grant{Token: "panel-" + id}, nil
	})
	chain := ChainAuthorizer{static, panel}

	g, err := chain.Authorize(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "static", g.Token, "first grant wins")

	g, err = chain.Authorize(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "panel-b", g.Token, "denial falls through")

	_, err = chain.Authorize(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDenied, "other errors stop the chain")

	_, err = ChainAuthorizer{static}.Authorize(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrDenied)

	_, err = ChainAuthorizer{}.Authorize(context.Background(), "a")
	assert.ErrorIs(t, err, ErrDenied)
}
