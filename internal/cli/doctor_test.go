package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/deckhand/internal/doctor"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/probe"
	probetest "github.com/rileyhilliard/deckhand/internal/probe/testing"
)

func TestDoctorChecks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deckhand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  - id: 1
    name: alpha
    fqdn: alpha.example.net
    port: 8080
    scheme: https
servers:
  abc:
    socket: wss://alpha.example.net:8080/api/servers/abc/ws
    token: t
filters:
  path: `+filepath.Join(dir, "filters.yaml")+`
log:
  file: `+filepath.Join(dir, "logs", "deckhand.log")+`
`), 0o644))

	fake := probetest.NewFakeProber().Healthy(1, &probe.Snapshot{CPUPercent: probetest.Float(1)})
	checks := doctorChecks(path, fake)

	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{
		"config_file", "config_schema", "fleet", "node_alpha",
		"session_grants", "socket_abc", "filter_rules", "writable_filters", "writable_log",
	}, names)

	results := doctor.RunAll(t.Context(), checks)
	assert.False(t, doctor.HasFailures(results), "%+v", results)
}

func TestDoctorChecks_BrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckhand.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes: [\n"), 0o644))

	checks := doctorChecks(path, probetest.NewFakeProber())
	assert.Len(t, checks, 2, "only config checks without a loadable config")
}

func TestWriteDoctor(t *testing.T) {
	noColor(t)
	results := []doctor.CheckResult{
		{Name: "config_file", Category: "CONFIG", Status: doctor.StatusPass, Message: "Config file: deckhand.yaml"},
		{Name: "node_beta", Category: "NODES", Status: doctor.StatusFail, Message: "beta: connection refused", Suggestion: "Check the node"},
	}

	var buf bytes.Buffer
	err := writeDoctor(&buf, results, false)
	code, ok := dherrors.GetExitCode(err)
	require.True(t, ok)
	assert.Equal(t, 1, code)

	out := buf.String()
	assert.Contains(t, out, "CONFIG\n  ✓ Config file: deckhand.yaml")
	assert.Contains(t, out, "NODES\n  ✗ beta: connection refused\n    Check the node")
	assert.Contains(t, out, "1 issue found")

	buf.Reset()
	require.NoError(t, writeDoctor(&buf, results[:1], true))
	assert.JSONEq(t, `{"success":true,"data":[
		{"name":"config_file","category":"CONFIG","status":"pass","message":"Config file: deckhand.yaml"}]}`, buf.String())
}
