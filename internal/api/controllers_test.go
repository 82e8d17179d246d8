package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"alert-executor/internal/alert"
	"alert-executor/internal/events"
	"alert-executor/internal/execution"
	"alert-executor/internal/gateway"
	"alert-executor/internal/ledger"
	"alert-executor/internal/monitor"
	"alert-executor/internal/settings"
	"alert-executor/pkg/db"
	"alert-executor/pkg/exchanges/common"
)

const (
	testPassword = "StrongPass123!"
	webhookToken = "hook-secret"
)

type testEnv struct {
	server *httptest.Server
	bus    *events.Bus
}

func newTestAPIServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))

	exchange := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":7,"status":"FILLED","executedQty":"1","cummulativeQuoteQty":"100"}`))
	}))
	t.Cleanup(exchange.Close)

	store := settings.NewStore(database.KV(), nil, nil)
	require.NoError(t, store.Load(context.Background()))

	l := ledger.NewSQLite(database)
	reg := gateway.DefaultRegistry(nil)
	require.NoError(t, reg.SetEndpoints("binance", common.Endpoints{Live: exchange.URL, Sandbox: exchange.URL, SandboxVerified: true}))
	mgr := gateway.NewManager(gateway.DefaultConfig(), nil)
	client := gateway.NewClient(reg, mgr, time.Second, nil)
	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()
	orch := execution.NewOrchestrator(l, reg, client, bus, metrics, execution.Options{}, nil)
	pipeline := execution.NewPipeline(alert.NewNormalizer("binance"), l, orch, store, bus, metrics, nil)
	workers := execution.NewWorkers(pipeline.Handle, 2, 8, 5*time.Second, nil)
	workers.Start(context.Background())
	t.Cleanup(workers.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	server := NewServer(Options{
		Pipeline:     pipeline,
		Orchestrator: orch,
		Workers:      workers,
		Ledger:       l,
		Settings:     store,
		Registry:     reg,
		Gateways:     mgr,
		Bus:          bus,
		Metrics:      metrics,
		Auth: AuthConfig{
			JWTSecret:         "test-secret",
			AdminUser:         "admin",
			AdminPasswordHash: string(hash),
			TokenTTL:          time.Hour,
		},
		WebhookToken:   webhookToken,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})

	httpServer := httptest.NewServer(server.Router)
	t.Cleanup(httpServer.Close)
	return &testEnv{server: httpServer, bus: bus}
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func login(t *testing.T, env *testEnv) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := doJSONRequest(t, env.server.Client(), http.MethodPost, env.server.URL+"/api/login", "",
		map[string]string{"username": "admin", "password": testPassword}, &resp)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func TestAuth(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()

	var resp errorBody
	status := doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/alerts", "", nil, &resp)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "MISSING_TOKEN", resp.Code)

	status = doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/alerts", "garbage", nil, &resp)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TOKEN", resp.Code)

	status = doJSONRequest(t, client, http.MethodPost, env.server.URL+"/api/login", "",
		map[string]string{"username": "admin", "password": "wrong"}, &resp)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", resp.Code)

	token := login(t, env)
	status = doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/alerts", token, nil, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestManualApproveFlow(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()
	token := login(t, env)
	base := env.server.URL

	var cred settings.ExchangeCredentials
	status := doJSONRequest(t, client, http.MethodPost, base+"/api/credentials", token, map[string]any{
		"exchange": "Binance", "apiKey": "key-1234", "apiSecret": "secret-9876", "isActive": true,
	}, &cred)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "binance", cred.Exchange)
	assert.Equal(t, "****1234", cred.APIKey)

	var created struct {
		Duplicate bool        `json:"duplicate"`
		Alert     alert.Alert `json:"alert"`
	}
	status = doJSONRequest(t, client, http.MethodPost, base+"/api/alerts", token, map[string]any{
		"pair": "BTCUSDT", "side": "L", "price": 100, "qty": 1, "strategy": "breakout",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, alert.StatusPending, created.Alert.Status, "default mode is MANUAL")
	id := created.Alert.ID

	var pending []alert.Alert
	status = doJSONRequest(t, client, http.MethodGet, base+"/api/alerts?status=pending", token, nil, &pending)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, pending, 1)

	var executed alert.Alert
	status = doJSONRequest(t, client, http.MethodPost, base+"/api/alerts/"+id+"/execute", token, nil, &executed)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, alert.StatusExecuted, executed.Status)
	assert.Equal(t, "7", executed.OrderID)

	var conflict errorBody
	status = doJSONRequest(t, client, http.MethodPost, base+"/api/alerts/"+id+"/execute", token, nil, &conflict)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_PROCESSED", conflict.Code)

	status = doJSONRequest(t, client, http.MethodPost, base+"/api/alerts/"+id+"/ignore", token, nil, &conflict)
	assert.Equal(t, http.StatusConflict, status)

	var got alert.Alert
	status = doJSONRequest(t, client, http.MethodGet, base+"/api/alerts/"+id, token, nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, alert.StatusExecuted, got.Status)
}

func TestIgnoreWithReason(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()
	token := login(t, env)

	var created struct {
		Alert alert.Alert `json:"alert"`
	}
	require.Equal(t, http.StatusCreated, doJSONRequest(t, client, http.MethodPost, env.server.URL+"/api/alerts", token,
		map[string]any{"symbol": "ETHUSDT", "side": "S", "price": "2000"}, &created))

	var ignored alert.Alert
	status := doJSONRequest(t, client, http.MethodPost, env.server.URL+"/api/alerts/"+created.Alert.ID+"/ignore", token,
		map[string]string{"reason": "not today"}, &ignored)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, alert.StatusIgnored, ignored.Status)
	assert.Equal(t, "not today", ignored.Error)
}

func TestAlertErrors(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()
	token := login(t, env)

	var resp errorBody
	status := doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/alerts/nope", token, nil, &resp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ALERT_NOT_FOUND", resp.Code)

	status = doJSONRequest(t, client, http.MethodPost, env.server.URL+"/api/alerts/nope/execute", token, nil, &resp)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/alerts?status=weird", token, nil, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_STATUS", resp.Code)

	status = doJSONRequest(t, client, http.MethodPost, env.server.URL+"/api/alerts", token,
		map[string]any{"type": "heartbeat"}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "NOT_TRADING_ALERT", resp.Code)
}

func TestDuplicateForegroundAlert(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()
	token := login(t, env)
	payload := map[string]any{"symbol": "BTCUSDT", "side": "BUY", "messageId": "m-42"}

	var first, second struct {
		Duplicate bool        `json:"duplicate"`
		Alert     alert.Alert `json:"alert"`
	}
	require.Equal(t, http.StatusCreated, doJSONRequest(t, client, http.MethodPost, env.server.URL+"/api/alerts", token, payload, &first))
	require.Equal(t, http.StatusOK, doJSONRequest(t, client, http.MethodPost, env.server.URL+"/api/alerts", token, payload, &second))
	assert.True(t, second.Duplicate)
	assert.Equal(t, "m-42", second.Alert.ID)
}

func TestSettingsUpdate(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()
	token := login(t, env)

	var cfg settings.TradingConfig
	status := doJSONRequest(t, client, http.MethodPut, env.server.URL+"/api/settings", token,
		map[string]any{"mode": "auto", "enabledStrategies": []string{"breakout"}}, &cfg)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, settings.ModeAuto, cfg.Mode)
	assert.Equal(t, "1000", cfg.MaxPositionSize.String(), "fields absent from the body are kept")
	assert.Equal(t, []string{"breakout"}, cfg.EnabledStrategies)

	var resp errorBody
	status = doJSONRequest(t, client, http.MethodPut, env.server.URL+"/api/settings", token,
		map[string]any{"maxPositionSize": 0}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SETTINGS", resp.Code)

	status = doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/settings", token, nil, &cfg)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, settings.ModeAuto, cfg.Mode)
}

func TestCredentialsLifecycle(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()
	token := login(t, env)
	base := env.server.URL

	var resp errorBody
	status := doJSONRequest(t, client, http.MethodPost, base+"/api/credentials", token,
		map[string]any{"exchange": "ftx", "apiKey": "k", "apiSecret": "s"}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "UNSUPPORTED_EXCHANGE", resp.Code)

	status = doJSONRequest(t, client, http.MethodPost, base+"/api/credentials", token,
		map[string]any{"exchange": "kraken", "apiKey": "k"}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_CREDENTIALS", resp.Code)

	require.Equal(t, http.StatusCreated, doJSONRequest(t, client, http.MethodPost, base+"/api/credentials", token,
		map[string]any{"exchange": "coinbase", "apiKey": "cb-key-1", "apiSecret": "s", "passphrase": "p"}, nil))

	status = doJSONRequest(t, client, http.MethodPost, base+"/api/credentials/activate", token,
		map[string]any{"exchange": "coinbase-pro", "apiKey": "cb-key-1"}, nil)
	assert.Equal(t, http.StatusOK, status)

	status = doJSONRequest(t, client, http.MethodPost, base+"/api/credentials/activate", token,
		map[string]any{"exchange": "kraken", "apiKey": "missing"}, &resp)
	assert.Equal(t, http.StatusNotFound, status)

	var list []settings.ExchangeCredentials
	require.Equal(t, http.StatusOK, doJSONRequest(t, client, http.MethodGet, base+"/api/credentials", token, nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "coinbase-pro", list[0].Exchange)
	assert.True(t, list[0].IsActive)
	assert.Equal(t, "****", list[0].APISecret)

	status = doJSONRequest(t, client, http.MethodDelete, base+"/api/credentials/coinbase-pro/cb-key-1", token, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	require.Equal(t, http.StatusOK, doJSONRequest(t, client, http.MethodGet, base+"/api/credentials", token, nil, &list))
	assert.Empty(t, list)
}

func TestWebhook(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()
	token := login(t, env)

	post := func(hookToken string, payload any) int {
		body, _ := json.Marshal(payload)
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/webhook", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if hookToken != "" {
			req.Header.Set("X-Webhook-Token", hookToken)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post("", map[string]any{"symbol": "BTCUSDT"}))
	assert.Equal(t, http.StatusOK, post(webhookToken, map[string]any{"type": "ping"}))
	assert.Equal(t, http.StatusAccepted, post(webhookToken, map[string]any{
		"type": "trading_alert", "symbol": "BTCUSDT", "side": "S", "alertId": "wh-1",
	}))

	require.Eventually(t, func() bool {
		return doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/alerts/wh-1", token, nil, nil) == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	var got alert.Alert
	doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/alerts/wh-1", token, nil, &got)
	assert.Equal(t, alert.SourceBackground, got.Source)
	assert.Equal(t, alert.StatusPending, got.Status)
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestAPIServer(t)
	client := env.server.Client()
	token := login(t, env)

	var caps []gateway.Capability
	require.Equal(t, http.StatusOK, doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/exchanges", token, nil, &caps))
	assert.Len(t, caps, 8)

	var stats gateway.PoolStats
	require.Equal(t, http.StatusOK, doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/gateways", token, nil, &stats))

	doJSONRequest(t, client, http.MethodPost, env.server.URL+"/api/alerts", token, map[string]any{"symbol": "BTCUSDT"}, nil)
	var snap monitor.MetricsSnapshot
	require.Equal(t, http.StatusOK, doJSONRequest(t, client, http.MethodGet, env.server.URL+"/api/metrics", token, nil, &snap))
	assert.Equal(t, uint64(1), snap.AlertsReceived)

	var health map[string]any
	require.Equal(t, http.StatusOK, doJSONRequest(t, client, http.MethodGet, env.server.URL+"/health", "", nil, &health))
	assert.Equal(t, "ok", health["status"])
}

func TestWebsocketStreamsUpdates(t *testing.T) {
	env := newTestAPIServer(t)
	token := login(t, env)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered just after the upgrade; keep publishing until it lands.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				env.bus.Publish(events.EventAlertUpdate, alert.Alert{ID: "ws-1", Status: alert.StatusExecuted})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type events.Event `json:"type"`
		Data alert.Alert  `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, events.EventAlertUpdate, msg.Type)
	assert.Equal(t, "ws-1", msg.Data.ID)
}

func TestWebsocketRequiresToken(t *testing.T) {
	env := newTestAPIServer(t)
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
