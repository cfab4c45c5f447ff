package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/woodtypes/internal/auth"
	"github.com/annel0/woodtypes/internal/eventbus"
	"github.com/annel0/woodtypes/internal/woodtype"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	rs     *RestServer
	reg    *woodtype.Registry
	tokens *auth.TokenIssuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg := woodtype.NewRegistry()
	for _, id := range []string{"oak_planks", "oak_log", "birch_planks"} {
		reg.Ingest(woodtype.NewIdentifier("minecraft", id), woodtype.Block{Material: woodtype.MaterialWood})
	}

	tokens, err := auth.NewTokenIssuer([]byte(strings.Repeat("k", 32)), "test")
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	rs, err := NewRestServer(Config{
		Port:       "127.0.0.1:0",
		Registry:   reg,
		Tokens:     tokens,
		Registerer: promReg,
		Gatherer:   promReg,
	})
	require.NoError(t, err)
	return &testServer{rs: rs, reg: reg, tokens: tokens}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, token string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestListAndFilter(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodGet, "/api/woodtypes", nil, "")
	require.Equal(t, http.StatusOK, code)
	var snaps []woodtype.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, "minecraft:oak", snaps[0].ID)
	assert.Equal(t, "minecraft:birch", snaps[1].ID)

	code, env = ts.do(t, http.MethodGet, "/api/woodtypes?has=planks,log", nil, "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "minecraft:oak", snaps[0].ID)
}

func TestGetAndComponent(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodGet, "/api/woodtypes/minecraft/oak", nil, "")
	require.Equal(t, http.StatusOK, code)
	var snap woodtype.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "log", snap.LogType)

	code, _ = ts.do(t, http.MethodGet, "/api/woodtypes/minecraft/cherry", nil, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env = ts.do(t, http.MethodGet, "/api/woodtypes/minecraft/birch/components/log?fallback=planks", nil, "")
	require.Equal(t, http.StatusOK, code)
	var comp woodtype.ComponentSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &comp))
	assert.Equal(t, "minecraft:birch_planks", comp.ID)

	code, env = ts.do(t, http.MethodGet, "/api/woodtypes/minecraft/birch/components/log", nil, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "minecraft:birch")
}

func TestClassifyIsDryRun(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodPost, "/api/classify", ClassifyRequest{ID: "spruce_slab", Material: "wood"}, "")
	require.Equal(t, http.StatusOK, code)
	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.Classified)
	assert.Equal(t, "slab", resp.ComponentType)
	assert.Equal(t, "minecraft:spruce", resp.WoodType)
	assert.False(t, resp.Known)

	_, found := ts.reg.Lookup(woodtype.NewIdentifier("minecraft", "spruce"))
	assert.False(t, found)

	code, env = ts.do(t, http.MethodPost, "/api/classify", ClassifyRequest{ID: "stone"}, "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.False(t, resp.Classified)

	code, _ = ts.do(t, http.MethodPost, "/api/classify", ClassifyRequest{ID: "a:b:c"}, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminIngest(t *testing.T) {
	ts := newTestServer(t)

	bus := eventbus.NewMemoryBus(8)
	defer bus.Close()
	eventbus.Init(bus)
	defer eventbus.Init(nil)

	got := make(chan *eventbus.Envelope, 1)
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.TypeBlocksIngested}},
		func(_ context.Context, ev *eventbus.Envelope) { got <- ev })
	require.NoError(t, err)

	body := map[string]interface{}{
		"namespace": "biomes",
		"blocks": []map[string]string{
			{"id": "fir_planks"},
			{"id": "fir_log", "material": "wood"},
			{"id": "bad:id:x"},
		},
	}

	code, _ := ts.do(t, http.MethodPost, "/api/admin/blocks", body, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	userToken, err := ts.tokens.Issue("viewer", false, time.Hour)
	require.NoError(t, err)
	code, _ = ts.do(t, http.MethodPost, "/api/admin/blocks", body, userToken)
	assert.Equal(t, http.StatusForbidden, code)

	adminToken, err := ts.tokens.Issue("admin", true, time.Hour)
	require.NoError(t, err)
	code, env := ts.do(t, http.MethodPost, "/api/admin/blocks", body, adminToken)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"classified":2`)
	assert.Contains(t, string(env.Data), `"rejected":1`)

	fir, found := ts.reg.Lookup(woodtype.NewIdentifier("biomes", "fir"))
	require.True(t, found)
	assert.True(t, fir.HasComponents(woodtype.Planks, woodtype.Log))

	select {
	case ev := <-got:
		assert.Equal(t, "admin", ev.Metadata["subject"])
	case <-time.After(time.Second):
		t.Fatal("событие загрузки не опубликовано")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 2, report.WoodTypes)
	assert.Greater(t, report.Goroutines, 0)

	rec = httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "woodtypes_api_http_request_duration_seconds")
}

func TestSubscriptionsListing(t *testing.T) {
	ts := newTestServer(t)
	ts.reg.SubscribeNamed("bench-ready", func(*woodtype.WoodType) error { return nil }, woodtype.Planks, woodtype.Log)

	code, env := ts.do(t, http.MethodGet, "/api/subscriptions", nil, "")
	require.Equal(t, http.StatusOK, code)
	var subs []SubscriptionInfo
	require.NoError(t, json.Unmarshal(env.Data, &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "bench-ready{planks,log}", subs[0].Name)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", formatUptime(5*time.Second))
	assert.Equal(t, "2м 5с", formatUptime(125*time.Second))
	assert.Equal(t, "1ч 0м 1с", formatUptime(time.Hour+time.Second))
	assert.Equal(t, "1д 1ч 0м 0с", formatUptime(25*time.Hour))
}

func TestNewRestServerRequiresRegistry(t *testing.T) {
	_, err := NewRestServer(Config{})
	assert.Error(t, err)
}
