package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"hk-gateway/internal/events"
	"hk-gateway/internal/monitor"
	"hk-gateway/internal/order"
	"hk-gateway/internal/scenario"
	"hk-gateway/pkg/exchanges/hashkey"
)

type fixedClock int64

func (c fixedClock) NowMillis() int64 { return int64(c) }

// fakeExchange serves canned HashKey payloads and records every call.
type fakeExchange struct {
	mu    sync.Mutex
	calls []*http.Request
	// orders holds the decoded query of every order placement attempt.
	orders []url.Values

	depth   string
	account string
	// orderReply answers order placements; nil means a plain ack.
	orderReply func(w http.ResponseWriter, r *http.Request)
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		depth:   `{"t":1700000000000,"b":[["29995","0.2"],["29990","0.5"]],"a":[["30000","0.3"],["30010","1"]]}`,
		account: `{"userId":"42","balances":[{"asset":"USDT","free":"100","locked":"0"},{"asset":"BTC","free":"0.003229","locked":"0"}]}`,
	}
}

func (f *fakeExchange) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Clone(context.Background()))
	f.mu.Unlock()

	switch r.URL.Path {
	case hashkey.PathDepth:
		_, _ = io.WriteString(w, f.depth)
	case hashkey.PathAccount:
		_, _ = io.WriteString(w, f.account)
	case hashkey.PathOpenOrders:
		if r.Method == http.MethodDelete {
			_, _ = io.WriteString(w, `{"success":true}`)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	case hashkey.PathOrder:
		f.mu.Lock()
		f.orders = append(f.orders, r.URL.Query())
		n := len(f.orders)
		f.mu.Unlock()
		if f.orderReply != nil {
			f.orderReply(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"orderId":"`+string(rune('0'+n))+`","status":"NEW"}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeExchange) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.calls {
		if r.Method == method && r.URL.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeExchange) placed() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.orders...)
}

// hangUp closes the connection without answering, which the client sees as
// a transport failure.
func hangUp(w http.ResponseWriter, _ *http.Request) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err == nil {
		_ = conn.Close()
	}
}

type testEnv struct {
	server   *httptest.Server
	exchange *fakeExchange
	api      *Server
	bus      *events.Bus
	metrics  *monitor.SystemMetrics
}

func newTestEnv(t *testing.T, fx *fakeExchange, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	upstream := httptest.NewServer(fx)
	t.Cleanup(upstream.Close)
	return newTestEnvWithBaseURL(t, fx, upstream.URL, opts)
}

func newTestEnvWithBaseURL(t *testing.T, fx *fakeExchange, baseURL string, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()
	client := hashkey.New(hashkey.Config{
		APIKey:    "access",
		APISecret: "secret",
		BaseURL:   baseURL,
		Timeout:   2 * time.Second,
	}, hashkey.WithClock(fixedClock(1700000000000)), hashkey.WithObserver(metrics))

	orders := order.NewService(client, order.Config{
		AccountID:       "42",
		MarketBuyAmount: decimal.NewFromInt(5000),
	}, bus, nil)
	runner := scenario.NewRunner(orders, scenario.DefaultConfig(),
		scenario.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		scenario.WithJitter(func(time.Duration) time.Duration { return 0 }),
		scenario.WithBus(bus),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = []string{"http://localhost:3000"}
	}
	srv := NewServer(ctx, orders, runner, bus, metrics, nil, SystemMeta{Version: "test", Symbol: "BTCUSDT"}, opts)

	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, exchange: fx, api: srv, bus: bus, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

func decodeMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return out
}

func assertTransportBody(t *testing.T, status int, body []byte) {
	t.Helper()
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (body %s)", status, body)
	}
	got := decodeMap(t, body)
	if len(got) != 2 || got["status"] != "error" || got["message"] != "request error" {
		t.Fatalf("body = %s, want the uniform transport error", body)
	}
}

func TestCreateOrderPassesThroughAck(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	status, body := env.do(t, http.MethodPost,
		"/order/create?symbol=BTCUSDT&side=BUY&type=LIMIT&quantity=0.01&price=30000&newClientOrderId=abc%20123")
	if status != http.StatusOK {
		t.Fatalf("status = %d body=%s", status, body)
	}
	if got := decodeMap(t, body); got["orderId"] != "1" || got["status"] != "NEW" {
		t.Fatalf("ack not passed through: %s", body)
	}

	placed := env.exchange.placed()
	if len(placed) != 1 {
		t.Fatalf("orders placed = %d", len(placed))
	}
	q := placed[0]
	for k, want := range map[string]string{
		"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT",
		"quantity": "0.01", "price": "30000", "timeInForce": "GTC",
		"newClientOrderId": "abc 123", "recvWindow": "5000", "timestamp": "1700000000000",
	} {
		if got := q.Get(k); got != want {
			t.Fatalf("%s = %q, want %q", k, got, want)
		}
	}
	if q.Get("signature") == "" {
		t.Fatalf("order was not signed")
	}
}

func TestCreateOrderGeneratesClientOrderID(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	status, body := env.do(t, http.MethodPost, "/order/create?symbol=BTCUSDT&side=BUY&type=MARKET&amount=50")
	if status != http.StatusOK {
		t.Fatalf("status = %d body=%s", status, body)
	}
	q := env.exchange.placed()[0]
	if q.Get("newClientOrderId") == "" {
		t.Fatalf("expected a generated client order id")
	}
	if q.Get("quantity") != "50" || q.Has("price") {
		t.Fatalf("market order query = %v", q)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing side", "symbol=BTCUSDT&type=LIMIT&quantity=1&price=1"},
		{"bad side", "symbol=BTCUSDT&side=HOLD&type=LIMIT&quantity=1&price=1"},
		{"bad type", "symbol=BTCUSDT&side=BUY&type=STOP&quantity=1&price=1"},
		{"limit without price", "symbol=BTCUSDT&side=BUY&type=LIMIT&quantity=1"},
		{"zero quantity", "symbol=BTCUSDT&side=SELL&type=LIMIT&quantity=0&price=1"},
		{"non numeric price", "symbol=BTCUSDT&side=BUY&type=LIMIT&quantity=1&price=abc"},
		{"bad time in force", "symbol=BTCUSDT&side=BUY&type=LIMIT&quantity=1&price=1&timeInForce=FOK"},
		{"symbol with separators", "symbol=BTCUSDT%26type%3DMARKET&side=BUY&type=LIMIT&quantity=1&price=1"},
		{"symbol with space", "symbol=BTC%20USDT&side=BUY&type=LIMIT&quantity=1&price=1"},
	}

	env := newTestEnv(t, newFakeExchange(), Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/order/create?"+tt.query)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", status, body)
			}
			if got := decodeMap(t, body); got["code"] != "INVALID_REQUEST" || got["status"] != "error" {
				t.Fatalf("body = %s", body)
			}
		})
	}
	if n := len(env.exchange.placed()); n != 0 {
		t.Fatalf("invalid requests reached the exchange %d times", n)
	}
}

func TestLimitShortcutsDefaultSymbol(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	if status, body := env.do(t, http.MethodPost, "/order/buy-limit?price=30000&quantity=0.001"); status != http.StatusOK {
		t.Fatalf("buy-limit status = %d body=%s", status, body)
	}
	if status, body := env.do(t, http.MethodPost, "/order/sell-limit?symbol=ETHUSDT&price=2000&quantity=0.5"); status != http.StatusOK {
		t.Fatalf("sell-limit status = %d body=%s", status, body)
	}
	if status, _ := env.do(t, http.MethodPost, "/order/sell-limit?price=2000"); status != http.StatusBadRequest {
		t.Fatalf("sell-limit without quantity status = %d, want 400", status)
	}

	placed := env.exchange.placed()
	if len(placed) != 2 {
		t.Fatalf("orders placed = %d, want 2", len(placed))
	}
	if placed[0].Get("symbol") != "BTCUSDT" || placed[0].Get("side") != "BUY" || placed[0].Get("timeInForce") != "GTC" {
		t.Fatalf("buy-limit query = %v", placed[0])
	}
	if placed[1].Get("symbol") != "ETHUSDT" || placed[1].Get("side") != "SELL" {
		t.Fatalf("sell-limit query = %v", placed[1])
	}
}

func TestMarketShortcuts(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	if status, body := env.do(t, http.MethodPost, "/order/buy-market"); status != http.StatusOK {
		t.Fatalf("buy-market status = %d body=%s", status, body)
	}
	if status, body := env.do(t, http.MethodPost, "/order/sell-market"); status != http.StatusOK {
		t.Fatalf("sell-market status = %d body=%s", status, body)
	}

	placed := env.exchange.placed()
	if len(placed) != 2 {
		t.Fatalf("orders placed = %d, want 2", len(placed))
	}
	if placed[0].Get("type") != "MARKET" || placed[0].Get("quantity") != "5000" {
		t.Fatalf("buy-market query = %v", placed[0])
	}
	// 0.003229 BTC free floors to 0.00322.
	if placed[1].Get("side") != "SELL" || placed[1].Get("quantity") != "0.00322" {
		t.Fatalf("sell-market query = %v", placed[1])
	}
	if env.exchange.count(http.MethodGet, hashkey.PathAccount) != 1 {
		t.Fatalf("sell-market should read the balance exactly once")
	}
}

func TestReadEndpoints(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	status, body := env.do(t, http.MethodGet, "/order/balance")
	if status != http.StatusOK || !strings.Contains(string(body), `"asset":"USDT"`) {
		t.Fatalf("balance = %d %s", status, body)
	}
	status, body = env.do(t, http.MethodGet, "/order/open-orders")
	if status != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("open-orders = %d %s", status, body)
	}
	status, body = env.do(t, http.MethodDelete, "/order/cancel-orders-all")
	if status != http.StatusOK || !strings.Contains(string(body), "success") {
		t.Fatalf("cancel-orders-all = %d %s", status, body)
	}
	status, body = env.do(t, http.MethodGet, "/order/get-orderbook")
	if status != http.StatusOK || !strings.Contains(string(body), `"a":[["30000"`) {
		t.Fatalf("get-orderbook = %d %s", status, body)
	}

	env.exchange.mu.Lock()
	var depthQuery url.Values
	for _, r := range env.exchange.calls {
		if r.URL.Path == hashkey.PathDepth {
			depthQuery = r.URL.Query()
		}
	}
	env.exchange.mu.Unlock()
	if depthQuery.Get("symbol") != "BTCUSDT" || depthQuery.Get("limit") != "5" || depthQuery.Has("signature") {
		t.Fatalf("depth query = %v", depthQuery)
	}
}

func TestOrderBookRejectsMalformedSymbol(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/order/get-orderbook?symbol=BTCUSDT%26limit%3D1000"},
		{http.MethodPost, "/order/buy-limit?symbol=BTC/USDT&price=1&quantity=1"},
	} {
		status, body := env.do(t, tt.method, tt.path)
		if status != http.StatusBadRequest {
			t.Fatalf("%s status = %d, want 400 (body %s)", tt.path, status, body)
		}
		if got := decodeMap(t, body); got["code"] != "INVALID_REQUEST" {
			t.Fatalf("%s body = %s", tt.path, body)
		}
	}
	env.exchange.mu.Lock()
	defer env.exchange.mu.Unlock()
	if len(env.exchange.calls) != 0 {
		t.Fatalf("exchange calls = %d, want 0", len(env.exchange.calls))
	}
}

func TestExchangeRejectionPassesThrough(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
		body       string
		wantStatus int
	}{
		{"http error", http.StatusBadRequest, `{"code":"-1121","msg":"Invalid symbol."}`, http.StatusBadRequest},
		{"error envelope with 200", http.StatusOK, `{"code":"-1131","msg":"Balance insufficient"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFakeExchange()
			fx.orderReply = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.httpStatus)
				_, _ = io.WriteString(w, tt.body)
			}
			env := newTestEnv(t, fx, Options{})

			status, body := env.do(t, http.MethodPost, "/order/buy-limit?price=30000&quantity=1")
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if string(body) != tt.body {
				t.Fatalf("body = %s, want exchange body %s", body, tt.body)
			}
		})
	}
}

func TestTransportFailureUniformBody(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	env := newTestEnvWithBaseURL(t, newFakeExchange(), "http://"+addr, Options{})
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/order/balance"},
		{http.MethodGet, "/order/open-orders"},
		{http.MethodGet, "/order/get-orderbook"},
		{http.MethodDelete, "/order/cancel-orders-all"},
		{http.MethodPost, "/order/buy-market"},
		{http.MethodPost, "/order/sell-market"},
		{http.MethodPost, "/order/buy-limit?price=1&quantity=1"},
		{http.MethodPost, "/order/scenario-camp2?iteration=3&delay_seconds=0"},
	} {
		status, body := env.do(t, route.method, route.path)
		assertTransportBody(t, status, body)
	}
}

func TestScenarioEndToEnd(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	status, body := env.do(t, http.MethodPost, "/order/scenario-camp2?iteration=2&delay_seconds=0")
	if status != http.StatusOK {
		t.Fatalf("status = %d body=%s", status, body)
	}
	var responses []map[string]any
	if err := json.Unmarshal(body, &responses); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(responses) != 2 || responses[0]["orderId"] != "1" || responses[1]["orderId"] != "2" {
		t.Fatalf("responses = %s", body)
	}

	placed := env.exchange.placed()
	if len(placed) != 2 {
		t.Fatalf("orders placed = %d", len(placed))
	}
	buy, sell := placed[0], placed[1]
	if buy.Get("side") != "BUY" || buy.Get("price") != "30000" || buy.Get("quantity") != "0.00322" {
		t.Fatalf("buy = %v", buy)
	}
	// Sell prices at the deepest tracked bid.
	if sell.Get("side") != "SELL" || sell.Get("price") != "29990" || sell.Get("quantity") != "0.00322" {
		t.Fatalf("sell = %v", sell)
	}
	if n := env.exchange.count(http.MethodDelete, hashkey.PathOpenOrders); n != 2 {
		t.Fatalf("cancel-all calls = %d, want 2", n)
	}

	status, body = env.do(t, http.MethodGet, "/order/scenario-camp2/status")
	if status != http.StatusOK {
		t.Fatalf("status endpoint = %d", status)
	}
	var rep scenario.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Running || rep.Completed != 2 || len(rep.Steps) != 2 || rep.NextSide != "BUY" {
		t.Fatalf("report = %+v", rep)
	}
}

func TestScenarioZeroIterations(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	status, body := env.do(t, http.MethodPost, "/order/scenario-camp2?iteration=0&delay_seconds=0")
	if status != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("zero iterations = %d %s", status, body)
	}
	env.exchange.mu.Lock()
	defer env.exchange.mu.Unlock()
	if len(env.exchange.calls) != 0 {
		t.Fatalf("exchange calls = %d, want 0", len(env.exchange.calls))
	}
}

func TestScenarioStopsAtTransportFailure(t *testing.T) {
	fx := newFakeExchange()
	fx.orderReply = func(w http.ResponseWriter, r *http.Request) {
		fx.mu.Lock()
		n := len(fx.orders)
		fx.mu.Unlock()
		if n >= 2 {
			hangUp(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"orderId":"1","status":"NEW"}`)
	}
	env := newTestEnv(t, fx, Options{})

	status, body := env.do(t, http.MethodPost, "/order/scenario-camp2?iteration=5&delay_seconds=0")
	assertTransportBody(t, status, body)

	if n := len(fx.placed()); n != 2 {
		t.Fatalf("order attempts = %d, want 2 (none after the failure)", n)
	}
	rep := env.api.Scenario.Status()
	if rep == nil || rep.Completed != 1 || len(rep.Steps) != 1 || rep.Error == "" {
		t.Fatalf("partial report = %+v", rep)
	}
}

func TestScenarioInvalidParams(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	for _, q := range []string{
		"iteration=-1",
		"delay_seconds=-2",
		"iteration=many",
		"delay_seconds=NaN",
		"delay_seconds=Inf",
		"delay_seconds=-Inf",
		"delay_seconds=1e300",
		"delay_seconds=86401",
	} {
		status, body := env.do(t, http.MethodPost, "/order/scenario-camp2?"+q)
		if status != http.StatusBadRequest {
			t.Fatalf("%s: status = %d body=%s", q, status, body)
		}
		if got := decodeMap(t, body); got["code"] != "INVALID_REQUEST" {
			t.Fatalf("%s: body = %s", q, body)
		}
	}
	env.exchange.mu.Lock()
	defer env.exchange.mu.Unlock()
	if len(env.exchange.calls) != 0 {
		t.Fatalf("exchange calls = %d, want 0", len(env.exchange.calls))
	}
}

func TestScenarioStatusAndCancelWhenIdle(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	status, body := env.do(t, http.MethodGet, "/order/scenario-camp2/status")
	if status != http.StatusOK || decodeMap(t, body)["status"] != "idle" {
		t.Fatalf("idle status = %d %s", status, body)
	}
	status, body = env.do(t, http.MethodPost, "/order/scenario-camp2/cancel")
	if status != http.StatusConflict || decodeMap(t, body)["code"] != "NOT_RUNNING" {
		t.Fatalf("cancel idle = %d %s", status, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	status, body := env.do(t, http.MethodGet, "/health")
	if status != http.StatusOK || decodeMap(t, body)["status"] != "ok" {
		t.Fatalf("health = %d %s", status, body)
	}
	env.do(t, http.MethodGet, "/order/balance")

	status, body = env.do(t, http.MethodGet, "/api/metrics")
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	var snap monitor.MetricsSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap.APIRequests < 2 || snap.ExchangeCalls != 1 || snap.RequestsByRoute["/order/balance"] != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
