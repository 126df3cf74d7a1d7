package doctor

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rileyhilliard/deckhand/internal/config"
)

// GrantsCheck verifies that sessions can get a socket grant from the panel
// or from static server entries.
type GrantsCheck struct {
	Panel   config.PanelConfig
	Servers map[string]config.ServerGrant
}

func (c *GrantsCheck) Name() string     { return "session_grants" }
func (c *GrantsCheck) Category() string { return "SESSION" }

func (c *GrantsCheck) Run(ctx context.Context) CheckResult {
	switch {
	case c.Panel.URL != "" && c.Panel.APIKey == "":
		return CheckResult{
			Status:     StatusFail,
			Message:    "panel.url is set without panel.api_key",
			Suggestion: "Set panel.api_key, for example api_key: ${DECKHAND_PANEL_KEY}",
		}
	case c.Panel.URL != "":
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("Panel grants from %s, %d static server%s", c.Panel.URL, len(c.Servers), pluralize(len(c.Servers))),
		}
	case len(c.Servers) > 0:
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%d static server%s", len(c.Servers), pluralize(len(c.Servers))),
		}
	default:
		return CheckResult{
			Status:     StatusWarn,
			Message:    "No panel or static servers configured; console, exec and power cannot connect",
			Suggestion: "Set panel.url and panel.api_key, or add entries under 'servers'",
		}
	}
}

// SocketCheck validates one static server's socket URL.
type SocketCheck struct {
	ServerID string
	Grant    config.ServerGrant
}

func (c *SocketCheck) Name() string     { return "socket_" + c.ServerID }
func (c *SocketCheck) Category() string { return "SESSION" }

func (c *SocketCheck) Run(ctx context.Context) CheckResult {
	u, err := url.Parse(c.Grant.Socket)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: socket %q is not a ws:// or wss:// URL", c.ServerID, c.Grant.Socket),
			Suggestion: "Use the daemon's websocket URL, e.g. wss://node1:8080/api/servers/<id>/ws",
		}
	}
	if c.Grant.Token == "" {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: no token", c.ServerID),
			Suggestion: "Set servers." + c.ServerID + ".token",
		}
	}
	if u.Scheme == "ws" {
		return CheckResult{
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s: socket is unencrypted (%s)", c.ServerID, u.Host),
			Suggestion: "Use wss:// outside of local testing",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: %s", c.ServerID, u.Host),
	}
}
