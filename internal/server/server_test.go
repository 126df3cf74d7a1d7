package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/metrics"
	"github.com/rileyhilliard/deckhand/internal/probe"
	probetest "github.com/rileyhilliard/deckhand/internal/probe/testing"
	"github.com/rileyhilliard/deckhand/internal/status"
)

func newTestServer(t *testing.T, opts status.Options) *Server {
	t.Helper()
	reg, err := fleet.NewStaticRegistry([]fleet.Node{
		{ID: 1, Name: "alpha", FQDN: "alpha.example.net", Port: 8080, Scheme: "https"},
		{ID: 2, Name: "beta", FQDN: "beta.example.net", Port: 8080, Scheme: "https"},
	})
	require.NoError(t, err)

	fake := probetest.NewFakeProber().
		Healthy(1, &probe.Snapshot{
			CPUPercent:  probetest.Float(12.5),
			MemoryTotal: probetest.Uint(1000),
			MemoryUsed:  probetest.Uint(250),
		}).
		Failing(2, probe.ReasonRefused)

	agg := status.NewAggregator(fake, reg, time.Second)
	agg.SetLogger(logger.Noop())
	return New(agg, reg, opts, logger.Noop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, status.Options{}), "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
}

func TestFleetStatus(t *testing.T) {
	tests := []struct {
		name string
		opts status.Options
		want string
	}{
		{
			name: "everything hidden",
			opts: status.Options{},
			want: `{}`,
		},
		{
			name: "node status only",
			opts: status.Options{ShowNodeStatus: true},
			want: `{"global":{"total_nodes":2,"healthy_nodes":1,"unhealthy_nodes":1}}`,
		},
		{
			name: "load usage",
			opts: status.Options{ShowLoadUsage: true},
			want: `{"global":{"total_nodes":2,"healthy_nodes":1,"unhealthy_nodes":1,
				"total_memory":1000,"used_memory":250,"total_disk":0,"used_disk":0,"avg_cpu_percent":12.5}}`,
		},
		{
			name: "individual nodes",
			opts: status.Options{ShowIndividualNodes: true},
			want: `{"nodes":[
				{"id":1,"name":"alpha","fqdn":"alpha.example.net","status":"healthy",
				 "utilization":{"cpu_percent":12.5,"memory_total":1000,"memory_used":250}},
				{"id":2,"name":"beta","fqdn":"beta.example.net","status":"unhealthy","utilization":null,"error":"refused"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestServer(t, tt.opts), "/api/status")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestFleetStatus_IsRecomputedPerRequest(t *testing.T) {
	s := newTestServer(t, status.Options{ShowNodeStatus: true, ShowLoadUsage: true, ShowIndividualNodes: true})

	first := get(t, s, "/api/status").Body.String()
	second := get(t, s, "/api/status").Body.String()
	assert.Equal(t, first, second, "unchanged fleet gives byte-identical output")
}

func TestStreamStatus(t *testing.T) {
	s := newTestServer(t, status.Options{ShowNodeStatus: true, ShowIndividualNodes: true})
	rec := get(t, s, "/api/status/stream")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event:node"))
	assert.Equal(t, 1, strings.Count(body, "event:summary"))
	assert.Contains(t, body, `"healthy_nodes":1`)
	assert.Less(t, strings.LastIndex(body, "event:node"), strings.Index(body, "event:summary"),
		"summary comes last")
}

func TestStreamStatus_HidesNodesWhenNotShown(t *testing.T) {
	s := newTestServer(t, status.Options{ShowNodeStatus: true})
	body := get(t, s, "/api/status/stream").Body.String()

	assert.NotContains(t, body, "event:node")
	assert.Contains(t, body, "event:summary")
}

func TestStreamStatus_UpdatesFleetGauges(t *testing.T) {
	metrics.FleetNodes.Reset()
	s := newTestServer(t, status.Options{ShowNodeStatus: true})
	get(t, s, "/api/status/stream")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FleetNodes.WithLabelValues("healthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FleetNodes.WithLabelValues("unhealthy")))
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, status.Options{ShowNodeStatus: true})
	get(t, s, "/api/status")

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deckhand_fleet_nodes")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, status.Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("server did not stop")
	}
}

func TestRun_BindFailure(t *testing.T) {
	s := newTestServer(t, status.Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = s.Run(context.Background(), ln.Addr().String())
	require.Error(t, err)
	assert.True(t, dherrors.IsCode(err, dherrors.ErrServer))
}
