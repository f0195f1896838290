package adminapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendax/daxd/internal/cdt"
	"github.com/opendax/daxd/internal/tagstore"
)

func startTestServer(t *testing.T) (*Server, *tagstore.Store) {
	t.Helper()
	reg := cdt.NewRegistry()
	store := tagstore.NewStore(reg)
	_, err := store.Add(0, "press", cdt.REAL, 1, 0)
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	srv, err := New("127.0.0.1:0", promReg, store, time.Now())
	require.NoError(t, err)
	go srv.Serve()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, store
}

func TestHealthz(t *testing.T) {
	srv, _ := startTestServer(t)
	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestDebugTagsListsTags(t *testing.T) {
	srv, _ := startTestServer(t)
	resp, err := http.Get("http://" + srv.Addr() + "/debug/tags")
	require.NoError(t, err)
	defer resp.Body.Close()

	var tags []tagView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tags))
	require.Len(t, tags, 1)
	assert.Equal(t, "press", tags[0].Name)
}

func TestDebugTagByName(t *testing.T) {
	srv, _ := startTestServer(t)
	resp, err := http.Get("http://" + srv.Addr() + "/debug/tags/press")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDebugTagNotFound(t *testing.T) {
	srv, _ := startTestServer(t)
	resp, err := http.Get("http://" + srv.Addr() + "/debug/tags/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv, _ := startTestServer(t)
	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}
