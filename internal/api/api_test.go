package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/config"
	"github.com/Duck-YP/ESP32-UWB-program/internal/engine"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ring"
	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		RunID: "testrun",
		Pipeline: config.Pipeline{
			PairingHorizon:    300 * time.Millisecond,
			FallbackHorizon:   time.Second,
			ReplayWindow:      time.Minute,
			HeartbeatInterval: 5 * time.Second,
			Tick:              500 * time.Millisecond,
		},
	}
}

// primedServer builds a Server over an engine that has consumed a closed
// TX/RX pair and one heartbeat.
func primedServer(t *testing.T) *Server {
	t.Helper()

	queue, err := ring.New[wire.Event](8)
	require.NoError(t, err)
	bell := ring.NewDoorbell()

	now := t0.Add(100 * time.Millisecond)
	eng := engine.New(testConfig(), engine.Deps{
		Queue: queue,
		Bell:  bell,
		Now:   func() time.Time { return now },
	})

	events := []wire.Event{
		{Role: wire.RoleTag, Kind: wire.KindTX, DeviceTS: 1001, HostTS: t0, Seq: 1, Raw: "role=TAG evt=TX dev_ts=1001"},
		{Role: wire.RoleAnchor, Kind: wire.KindRX, DeviceTS: 1002, HostTS: t0.Add(40 * time.Millisecond), Seq: 2, Raw: "role=ANCHOR evt=RX dev_ts=1002"},
		{Role: wire.RoleAnchor, Kind: wire.KindHeartbeat, HostTS: t0.Add(50 * time.Millisecond), Seq: 3, Raw: "role=ANCHOR evt=HEARTBEAT host_ts=0"},
	}
	for _, ev := range events {
		require.True(t, queue.TryPush(ev))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, eng.Run(ctx))

	return New(eng, zaptest.NewLogger(t))
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	body := map[string]interface{}{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestAPI_Healthz(t *testing.T) {
	s := primedServer(t)
	rr, body := get(t, s.Handler(), "/healthz")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "testrun", body["run_id"])
}

func TestAPI_SnapshotCarriesPipelineState(t *testing.T) {
	s := primedServer(t)
	rr, body := get(t, s.Handler(), "/api/v1/snapshot")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "testrun", body["run_id"])

	pairingStats, ok := body["pairing"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), pairingStats["links"])

	lastLink, ok := body["last_link"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(40_000), lastLink["latency_us"])
	assert.Equal(t, "TAG", lastLink["tx_role"])
}

func TestAPI_ReplayListsEventsAndLinks(t *testing.T) {
	s := primedServer(t)
	rr, body := get(t, s.Handler(), "/api/v1/replay")

	require.Equal(t, http.StatusOK, rr.Code)

	events, ok := body["events"].([]interface{})
	require.True(t, ok)
	require.Len(t, events, 3)

	first, ok := events[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "TX", first["kind"])
	assert.Equal(t, "role=TAG evt=TX dev_ts=1001", first["raw"])

	links, ok := body["links"].([]interface{})
	require.True(t, ok)
	assert.Len(t, links, 1)
}

func TestAPI_ReplaySinceFiltersOlderEntries(t *testing.T) {
	s := primedServer(t)
	since := strconv.FormatInt(t0.Add(45*time.Millisecond).UnixMicro(), 10)
	rr, body := get(t, s.Handler(), "/api/v1/replay?since_us="+since)

	require.Equal(t, http.StatusOK, rr.Code)

	events, ok := body["events"].([]interface{})
	require.True(t, ok)
	require.Len(t, events, 1)
	only, ok := events[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "HEARTBEAT", only["kind"])

	assert.Nil(t, body["links"])
}

func TestAPI_ReplayRejectsBadSince(t *testing.T) {
	s := primedServer(t)
	rr, body := get(t, s.Handler(), "/api/v1/replay?since_us=soon")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "since_us must be an integer microsecond timestamp", body["error"])
}

func TestAPI_RatesBucketsPerSecond(t *testing.T) {
	s := primedServer(t)
	rr, body := get(t, s.Handler(), "/api/v1/rates")

	require.Equal(t, http.StatusOK, rr.Code)

	rates, ok := body["rates"].([]interface{})
	require.True(t, ok)
	require.Len(t, rates, 1)

	bucket, ok := rates[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), bucket["tag_tx"])
	assert.Equal(t, float64(1), bucket["anchor_rx"])
}

func TestAPI_StatusShowsRolesAndCounters(t *testing.T) {
	s := primedServer(t)
	rr, body := get(t, s.Handler(), "/api/v1/status")

	require.Equal(t, http.StatusOK, rr.Code)

	roles, ok := body["liveness"].([]interface{})
	require.True(t, ok)
	assert.Len(t, roles, 2)

	counters, ok := body["engine"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), counters["processed"])
	assert.Equal(t, float64(1), counters["heartbeats"])

	latency, ok := body["latency"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), latency["count"])
	assert.Equal(t, float64(40_000), latency["min_us"])
	assert.Equal(t, float64(40_000), latency["max_us"])
}

func TestAPI_UnknownRouteIsJSON404(t *testing.T) {
	s := primedServer(t)
	rr, body := get(t, s.Handler(), "/api/v1/nope")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "endpoint not found", body["error"])
}

func TestAPI_ShutdownBeforeStartIsNoop(t *testing.T) {
	s := primedServer(t)
	require.NoError(t, s.Shutdown(context.Background()))
}
