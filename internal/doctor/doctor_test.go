package doctor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/console"
	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/probe"
	probetest "github.com/rileyhilliard/deckhand/internal/probe/testing"
)

// mockCheck is a test implementation of Check.
type mockCheck struct {
	name     string
	category string
	result   CheckResult
}

func (m *mockCheck) Name() string                        { return m.name }
func (m *mockCheck) Category() string                    { return m.category }
func (m *mockCheck) Run(ctx context.Context) CheckResult { return m.result }

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status   CheckStatus
		expected string
	}{
		{StatusPass, "pass"},
		{StatusWarn, "warn"},
		{StatusFail, "fail"},
		{CheckStatus(99), "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.status.String())
		})
	}
}

func TestCheckResult_JSON(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "x", Category: "NODES", Status: StatusWarn, Message: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","category":"NODES","status":"warn","message":"m"}`, string(data))
}

func TestRunAll_FillsNameAndCategory(t *testing.T) {
	checks := []Check{
		&mockCheck{name: "a", category: "ONE", result: CheckResult{Status: StatusPass}},
		&mockCheck{name: "b", category: "TWO", result: CheckResult{Name: "custom", Status: StatusFail}},
		&mockCheck{name: "c", category: "ONE", result: CheckResult{Status: StatusWarn}},
	}

	for _, runner := range []func(context.Context, []Check) []CheckResult{RunAll, RunAllParallel} {
		results := runner(context.Background(), checks)
		require.Len(t, results, 3)
		assert.Equal(t, "a", results[0].Name)
		assert.Equal(t, "ONE", results[0].Category)
		assert.Equal(t, "custom", results[1].Name)
		assert.Equal(t, []string{"ONE", "TWO"}, Categories(results))
		assert.True(t, HasFailures(results))
		assert.Equal(t, "2 issues found", Summary(results))
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "Everything looks good", Summary([]CheckResult{{Status: StatusPass}}))
	assert.Equal(t, "1 issue found", Summary([]CheckResult{{Status: StatusWarn}}))
	assert.False(t, HasFailures([]CheckResult{{Status: StatusWarn}}))
}

func TestConfigChecks(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
nodes:
  - id: 1
    fqdn: node1.example.net
    port: 8080
    scheme: https
`), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
nodes:
  - id: 1
    port: 8080
    scheme: https
`), 0o644))

	ctx := context.Background()
	r := (&ConfigFileCheck{ConfigPath: good}).Run(ctx)
	assert.Equal(t, StatusPass, r.Status)
	assert.Contains(t, r.Message, good)

	r = (&ConfigFileCheck{ConfigPath: filepath.Join(dir, "missing.yaml")}).Run(ctx)
	assert.Equal(t, StatusFail, r.Status)

	r = (&ConfigSchemaCheck{ConfigPath: good}).Run(ctx)
	assert.Equal(t, StatusPass, r.Status)
	assert.Contains(t, r.Message, "1 nodes")

	r = (&ConfigSchemaCheck{ConfigPath: bad}).Run(ctx)
	assert.Equal(t, StatusFail, r.Status)
	assert.Contains(t, r.Message, "fqdn")
}

func TestNodeChecks(t *testing.T) {
	nodes := []fleet.Node{
		{ID: 1, Name: "alpha", FQDN: "alpha.example.net", Port: 8080, Scheme: "https"},
		{ID: 2, Name: "beta", FQDN: "beta.example.net", Port: 8080, Scheme: "https"},
	}
	fake := probetest.NewFakeProber().
		Healthy(1, &probe.Snapshot{CPUPercent: probetest.Float(3)}).
		Failing(2, probe.ReasonHTTPStatus)

	results := RunAllParallel(context.Background(), NodeChecks(nodes, fake, time.Second))
	require.Len(t, results, 2)
	assert.Equal(t, StatusPass, results[0].Status)
	assert.Equal(t, "node_alpha", results[0].Name)
	assert.Equal(t, StatusFail, results[1].Status)
	assert.Contains(t, results[1].Message, "daemon returned an error status")
	assert.Contains(t, results[1].Suggestion, "token")

	assert.Equal(t, StatusWarn, (&FleetCheck{}).Run(context.Background()).Status)
	assert.Equal(t, "2 nodes configured", (&FleetCheck{Nodes: nodes}).Run(context.Background()).Message)
}

func TestGrantsCheck(t *testing.T) {
	tests := []struct {
		name  string
		check GrantsCheck
		want  CheckStatus
	}{
		{"nothing", GrantsCheck{}, StatusWarn},
		{"panel without key", GrantsCheck{Panel: config.PanelConfig{URL: "https://panel"}}, StatusFail},
		{"panel", GrantsCheck{Panel: config.PanelConfig{URL: "https://panel", APIKey: "k"}}, StatusPass},
		{"static", GrantsCheck{Servers: map[string]config.ServerGrant{"a": {}}}, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check.Run(context.Background()).Status)
		})
	}
}

func TestSocketCheck(t *testing.T) {
	tests := []struct {
		name  string
		grant config.ServerGrant
		want  CheckStatus
	}{
		{"wss", config.ServerGrant{Socket: "wss://node1:8080/api/servers/a/ws", Token: "t"}, StatusPass},
		{"ws", config.ServerGrant{Socket: "ws://127.0.0.1:8080/ws", Token: "t"}, StatusWarn},
		{"http", config.ServerGrant{Socket: "https://node1/ws", Token: "t"}, StatusFail},
		{"no token", config.ServerGrant{Socket: "wss://node1/ws"}, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &SocketCheck{ServerID: "a", Grant: tt.grant}
			assert.Equal(t, tt.want, c.Run(context.Background()).Status)
		})
	}
}

func TestFilterRulesCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.yaml")
	store := console.NewStore(path)
	c := &FilterRulesCheck{Store: store}

	r := c.Run(context.Background())
	assert.Equal(t, StatusPass, r.Status)
	assert.Equal(t, "0 filter rules", r.Message)

	require.NoError(t, store.Save([]console.Rule{
		{ID: "ok", Type: console.RuleHide, Pattern: "x", Enabled: true},
		{ID: "broken", Type: console.RuleHide, Pattern: "(", Enabled: true},
	}))
	r = c.Run(context.Background())
	assert.Equal(t, StatusWarn, r.Status)
	assert.Contains(t, r.Message, "1 of 2 rules")
	assert.Contains(t, r.Message, "broken")

	require.NoError(t, os.WriteFile(path, []byte("rules: ["), 0o644))
	assert.Equal(t, StatusFail, c.Run(context.Background()).Status)
}

func TestWritableDirCheck(t *testing.T) {
	dir := t.TempDir()
	c := &WritableDirCheck{Label: "log", Path: filepath.Join(dir, "sub", "deckhand.log"), Cat: "LOG"}
	r := c.Run(context.Background())
	assert.Equal(t, StatusPass, r.Status)
	assert.DirExists(t, filepath.Join(dir, "sub"))
	assert.Equal(t, "writable_log", c.Name())
	assert.Equal(t, "LOG", c.Category())
}
