package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/database"
	"github.com/hookflow/hookflow/internal/idempotency"
	"github.com/hookflow/hookflow/internal/monitor"
	"github.com/hookflow/hookflow/internal/runs"
	"github.com/hookflow/hookflow/internal/scenarios"
	"github.com/hookflow/hookflow/internal/secrets"
	"github.com/hookflow/hookflow/internal/webhooks"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = t.TempDir() + "/test.db"
	cfg.Webhook.RateLimit.Enabled = false

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	masterKey, err := secrets.GenerateMasterKey()
	require.NoError(t, err)
	cipher, err := secrets.NewCipher(masterKey)
	require.NoError(t, err)

	connectionStore := secrets.NewStore(db, cipher, cfg.Secrets.DecryptTimeout)
	scenarioStore := scenarios.NewStore(db)
	runStore := runs.NewStore(db)
	resultStore := runs.NewResultStore(db)
	ledger := idempotency.NewLedger(db)

	intake := webhooks.NewService(cfg.Webhook, db, connectionStore, ledger,
		scenarios.NewMatcher(scenarioStore), runs.NewCreator(runStore), runStore)

	hub := monitor.NewHub(cfg.Monitor.MaxWatchers)
	mon := monitor.New(cfg.Monitor, runStore, resultStore, scenarioStore)

	srv := New(cfg, db, Deps{
		Intake:      intake,
		Scenarios:   scenarioStore,
		Connections: connectionStore,
		Runs:        runStore,
		Results:     resultStore,
		Monitor:     mon,
		Hub:         hub,
	})

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(t.Context()) })

	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func createActiveScenario(t *testing.T, baseURL, triggerKey string) string {
	t.Helper()

	resp := postJSON(t, baseURL+"/api/scenarios", map[string]any{
		"organization_id": "org-1",
		"name":            "integration scenario",
		"trigger_key":     triggerKey,
		"status":          "active",
		"nodes": []map[string]any{
			{"id": "n1", "type": "log", "position": 1, "config": map[string]any{"message": "hi"}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody(t, resp)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	return id
}

func TestServer_StartStopsOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = t.TempDir() + "/test.db"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := New(cfg, db, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	// Let the listener bind before canceling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	require.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestServer_ScenarioLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := createActiveScenario(t, ts.URL, "order.created")

	resp, err := http.Get(ts.URL + "/api/scenarios/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := decodeBody(t, resp)
	require.Equal(t, "integration scenario", sc["name"])
	require.Equal(t, "active", sc["status"])

	resp, err = http.Get(ts.URL + "/api/scenarios/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_WebhookIntake(t *testing.T) {
	ts := newTestServer(t)
	createActiveScenario(t, ts.URL, "order.created")

	resp := postJSON(t, ts.URL+"/webhooks/order.created", map[string]any{"id": "evt_1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	first := decodeBody(t, resp)
	require.Equal(t, true, first["success"])
	require.Equal(t, false, first["idempotent"])
	require.Equal(t, float64(1), first["scenariosExecuted"])
	runID, _ := first["runId"].(string)
	require.NotEmpty(t, runID)

	// Retried delivery replays the original outcome.
	resp = postJSON(t, ts.URL+"/webhooks/order.created", map[string]any{"id": "evt_1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	second := decodeBody(t, resp)
	require.Equal(t, true, second["idempotent"])
	require.Equal(t, runID, second["runId"])

	// The created run is visible with its node results.
	resp, err := http.Get(ts.URL + "/api/runs/" + runID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	run, _ := body["run"].(map[string]any)
	require.Equal(t, "pending", run["status"])
	require.Contains(t, body, "nodeResults")
}

func TestServer_WebhookMissingIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	createActiveScenario(t, ts.URL, "order.created")

	resp := postJSON(t, ts.URL+"/webhooks/order.created", map[string]any{"amount": 10})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "MISSING_IDEMPOTENCY_KEY", decodeBody(t, resp)["code"])
}

func TestServer_WebhookInvalidSignature(t *testing.T) {
	ts := newTestServer(t)
	createActiveScenario(t, ts.URL, "order.created")

	resp := postJSON(t, ts.URL+"/api/connections", map[string]any{
		"organization_id": "org-1",
		"name":            "sender",
		"webhook_secret":  "whsec_integration",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	connID, _ := decodeBody(t, resp)["id"].(string)
	require.NotEmpty(t, connID)

	resp = postJSON(t, fmt.Sprintf("%s/webhooks/order.created/connections/%s", ts.URL, connID),
		map[string]any{"id": "evt_1"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "UNAUTHORIZED", decodeBody(t, resp)["code"])
}

func TestServer_MetricsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	createActiveScenario(t, ts.URL, "order.created")
	postJSON(t, ts.URL+"/webhooks/order.created", map[string]any{"id": "evt_1"})

	resp, err := http.Get(ts.URL + "/api/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody(t, resp)
	require.Contains(t, report, "totalExecutions")
	require.Contains(t, report, "executionTimeline")

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "hookflow_")
}

func TestServer_ActiveExecutionsEmpty(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/executions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(0), decodeBody(t, resp)["total"])
}

func TestServer_RateLimitedIntake(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = t.TempDir() + "/test.db"
	cfg.Webhook.RateLimit.Max = 2

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	masterKey, err := secrets.GenerateMasterKey()
	require.NoError(t, err)
	cipher, err := secrets.NewCipher(masterKey)
	require.NoError(t, err)

	connectionStore := secrets.NewStore(db, cipher, cfg.Secrets.DecryptTimeout)
	scenarioStore := scenarios.NewStore(db)
	runStore := runs.NewStore(db)
	ledger := idempotency.NewLedger(db)
	intake := webhooks.NewService(cfg.Webhook, db, connectionStore, ledger,
		scenarios.NewMatcher(scenarioStore), runs.NewCreator(runStore), runStore)

	srv := New(cfg, db, Deps{
		Intake:      intake,
		Scenarios:   scenarioStore,
		Connections: connectionStore,
		Runs:        runStore,
		Results:     runs.NewResultStore(db),
		Monitor:     monitor.New(cfg.Monitor, runStore, runs.NewResultStore(db), scenarioStore),
	})
	t.Cleanup(func() { _ = srv.Shutdown(t.Context()) })

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)

	createActiveScenario(t, ts.URL, "order.created")

	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts.URL+"/webhooks/order.created", map[string]any{"id": fmt.Sprintf("evt_%d", i)})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := postJSON(t, ts.URL+"/webhooks/order.created", map[string]any{"id": "evt_over"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "RATE_LIMITED", decodeBody(t, resp)["code"])

	// Admin routes are not throttled.
	r, err := http.Get(ts.URL + "/api/scenarios")
	require.NoError(t, err)
	defer r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)
}
