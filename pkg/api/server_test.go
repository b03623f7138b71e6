package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/bookcast/pkg/auth"
	"github.com/uhyunpark/bookcast/pkg/bus"
	"github.com/uhyunpark/bookcast/pkg/engine"
	"github.com/uhyunpark/bookcast/pkg/orderbook"
	"github.com/uhyunpark/bookcast/pkg/storage"
	"github.com/uhyunpark/bookcast/pkg/stream"
	"github.com/uhyunpark/bookcast/pkg/topic"
)

const testSecret = "test-secret"

type fixedPrices map[string]decimal.Decimal

func (f fixedPrices) Price(sym string) (decimal.Decimal, bool) {
	p, ok := f[sym]
	return p, ok
}

// fakeCache stands in for the Redis cache.
type fakeCache struct {
	snaps  map[string]orderbook.Snapshot
	active map[string][]orderbook.Order
	prices map[string]decimal.Decimal
}

func (c fakeCache) Snapshot(_ context.Context, sym string) (orderbook.Snapshot, bool, error) {
	snap, ok := c.snaps[sym]
	return snap, ok, nil
}

func (c fakeCache) ActiveOrders(_ context.Context, owner string) ([]orderbook.Order, error) {
	return c.active[owner], nil
}

func (c fakeCache) Price(_ context.Context, sym string) (decimal.Decimal, bool, error) {
	p, ok := c.prices[sym]
	return p, ok, nil
}

func (fakeCache) PriceHistory(_ context.Context, _ string, limit int) ([]storage.PricePoint, error) {
	out := make([]storage.PricePoint, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, storage.PricePoint{Price: decimal.NewFromInt(int64(i)), Timestamp: int64(i)})
	}
	return out, nil
}

type testEnv struct {
	server  *httptest.Server
	engine  *engine.Engine
	streams *stream.Manager
}

func newTestEnv(t *testing.T, ready bool, opts ...func(*Deps)) *testEnv {
	t.Helper()
	local := bus.NewLocal()
	eng := engine.New(engine.DefaultConfig(), nil, local, nil, nil)
	streams := stream.NewManager(stream.DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()
	require.NoError(t, streams.Dispatcher().Forward(ctx, local))
	if ready {
		eng.MarkReady()
	}

	deps := Deps{
		Engine:   eng,
		Streams:  streams,
		Verifier: auth.NewJWTVerifier(testSecret),
		Prices:   fixedPrices{"BTC-USD": decimal.RequireFromString("45250.5")},
		Cache:    fakeCache{},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(Config{}, deps, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		streams.Shutdown()
		cancel()
		<-done
	})
	return &testEnv{server: ts, engine: eng, streams: streams}
}

func token(t *testing.T, user string) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, auth.Identity{UserID: user}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestPlaceAndQuery(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, "POST", "/api/v1/orders", "alice", `{"symbol":"X","side":"BUY","type":"LIMIT","quantity":1.0,"price":100}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	placed := decodeBody[OrderResponse](t, resp)
	assert.True(t, placed.Success)
	assert.Equal(t, "alice", placed.Order.Owner)
	assert.Equal(t, orderbook.Pending, placed.Order.Status)

	resp = env.do(t, "POST", "/api/v1/orders", "bob", `{"symbol":"X","side":"buy","quantity":"0.5","price":"100"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = env.do(t, "POST", "/api/v1/orders", "bob", `{"symbol":"X","side":"SELL","quantity":2,"price":101}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/orderbook/X", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[orderbook.Snapshot](t, resp)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, "1.5", snap.Bids[0].Quantity.String())
	require.Len(t, snap.Asks, 1)

	resp = env.do(t, "GET", "/api/v1/orderbook/X/top", "", "")
	top := decodeBody[TopOfBook](t, resp)
	require.NotNil(t, top.BestBid)
	require.NotNil(t, top.BestAsk)
	assert.Equal(t, "100", top.BestBid.String())
	assert.Equal(t, "101", top.BestAsk.String())
	assert.Equal(t, "1", top.Spread.String())

	resp = env.do(t, "GET", "/api/v1/orders", "bob", "")
	mine := decodeBody[OrdersResponse](t, resp)
	assert.Equal(t, "engine", mine.Source)
	assert.Len(t, mine.Orders, 2)

	resp = env.do(t, "GET", fmt.Sprintf("/api/v1/orders/%d", placed.Order.ID), "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, placed.Order.ID, decodeBody[OrderResponse](t, resp).Order.ID)
	assert.Equal(t, http.StatusForbidden,
		env.do(t, "GET", fmt.Sprintf("/api/v1/orders/%d", placed.Order.ID), "bob", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/orders/424242", "alice", "").StatusCode)

	resp = env.do(t, "GET", "/api/v1/instruments", "", "")
	assert.Equal(t, map[string][]string{"instruments": {"X"}}, decodeBody[map[string][]string](t, resp))
}

func TestPlaceValidation(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"bad side", `{"symbol":"X","side":"HOLD","quantity":1,"price":1}`, http.StatusBadRequest},
		{"missing symbol", `{"side":"BUY","quantity":1,"price":1}`, http.StatusBadRequest},
		{"zero quantity", `{"symbol":"X","side":"BUY","quantity":0,"price":1}`, http.StatusBadRequest},
		{"limit without price", `{"symbol":"X","side":"BUY","quantity":1}`, http.StatusBadRequest},
		{"market without price", `{"symbol":"X","side":"BUY","type":"MARKET","quantity":1}`, http.StatusCreated},
		{"mixed case side and type", `{"symbol":"X","side":"Buy","type":"Limit","quantity":1,"price":1}`, http.StatusCreated},
		{"padded side", `{"symbol":"X","side":" sell ","quantity":1,"price":2}`, http.StatusCreated},
		{"bad type", `{"symbol":"X","side":"BUY","type":"STOP","quantity":1,"price":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, "POST", "/api/v1/orders", "alice", tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestCancelStatusCodes(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, "POST", "/api/v1/orders", "alice", `{"symbol":"X","side":"SELL","quantity":1,"price":10}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeBody[OrderResponse](t, resp).Order.ID
	path := fmt.Sprintf("/api/v1/orders/%d", id)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, "DELETE", path, "", "").StatusCode)
	assert.Equal(t, http.StatusForbidden, env.do(t, "DELETE", path, "mallory", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, "DELETE", "/api/v1/orders/424242", "alice", "").StatusCode)

	resp = env.do(t, "DELETE", path, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orderbook.Cancelled, decodeBody[OrderResponse](t, resp).Order.Status)

	assert.Equal(t, http.StatusNotFound, env.do(t, "DELETE", path, "alice", "").StatusCode)
}

func TestNotReady(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, "POST", "/api/v1/orders", "alice", `{"symbol":"X","side":"BUY","quantity":1,"price":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = env.do(t, "GET", "/health", "", "")
	health := decodeBody[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Ready)
}

func TestPrices(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, "GET", "/api/v1/prices/BTC-USD", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "45250.5", decodeBody[PriceResponse](t, resp).Price.String())

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/prices/NOPE", "", "").StatusCode)

	resp = env.do(t, "GET", "/api/v1/prices/BTC-USD/history?limit=3", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]storage.PricePoint](t, resp), 3)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/prices/BTC-USD/history?limit=0", "", "").StatusCode)
}

func TestPriceFallsBackToCache(t *testing.T) {
	env := newTestEnv(t, true, func(d *Deps) {
		d.Cache = fakeCache{prices: map[string]decimal.Decimal{"SOL-USD": decimal.RequireFromString("150.25")}}
	})

	resp := env.do(t, "GET", "/api/v1/prices/SOL-USD", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "150.25", decodeBody[PriceResponse](t, resp).Price.String())

	resp = env.do(t, "GET", "/api/v1/prices/BTC-USD", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "45250.5", decodeBody[PriceResponse](t, resp).Price.String())

	env = newTestEnv(t, true, func(d *Deps) {
		d.Prices = nil
		d.Cache = nil
	})
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, "GET", "/api/v1/prices/BTC-USD", "", "").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, "GET", "/api/v1/prices/BTC-USD/history", "", "").StatusCode)
}

func TestReadsFallBackToArchive(t *testing.T) {
	store, err := storage.NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	for _, id := range []uint64{7, 8} {
		require.NoError(t, store.RecordOrder(ctx, orderbook.Order{
			ID:         id,
			Owner:      "carol",
			Instrument: "ETH-USD",
			Side:       orderbook.Buy,
			Type:       orderbook.Limit,
			Price:      decimal.RequireFromString("3000"),
			Quantity:   decimal.RequireFromString("2"),
			Status:     orderbook.Pending,
		}))
	}
	require.NoError(t, store.RecordSnapshot(ctx, orderbook.Snapshot{
		Instrument: "ETH-USD",
		Timestamp:  1,
		Bids: []orderbook.LevelView{{
			Price:    decimal.RequireFromString("3000"),
			Quantity: decimal.RequireFromString("4"),
			Count:    2,
		}},
		Asks: []orderbook.LevelView{},
	}))

	env := newTestEnv(t, true, func(d *Deps) { d.Archive = store })

	resp := env.do(t, "GET", "/api/v1/orders", "carol", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decodeBody[OrdersResponse](t, resp)
	assert.Equal(t, "archive", listed.Source)
	require.Len(t, listed.Orders, 2)
	assert.Equal(t, uint64(8), listed.Orders[0].ID)

	resp = env.do(t, "GET", "/api/v1/orders/7", "carol", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "carol", decodeBody[OrderResponse](t, resp).Order.Owner)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/orders/7", "dave", "").StatusCode)

	resp = env.do(t, "GET", "/api/v1/orderbook/ETH-USD", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[orderbook.Snapshot](t, resp)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, 2, snap.Bids[0].Count)
	assert.Equal(t, "4", snap.Bids[0].Quantity.String())

	// Once the engine holds the instrument its live book wins.
	resp = env.do(t, "POST", "/api/v1/orders", "carol", `{"symbol":"ETH-USD","side":"SELL","quantity":1,"price":3100}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap = decodeBody[orderbook.Snapshot](t, env.do(t, "GET", "/api/v1/orderbook/ETH-USD", "", ""))
	assert.Empty(t, snap.Bids)
	require.Len(t, snap.Asks, 1)
	assert.Len(t, snap.Asks[0].Orders, 1)

	listed = decodeBody[OrdersResponse](t, env.do(t, "GET", "/api/v1/orders", "carol", ""))
	assert.Equal(t, "engine", listed.Source)
	assert.Len(t, listed.Orders, 1)
}

func TestReadsFallBackToCache(t *testing.T) {
	cached := orderbook.Order{
		ID:         3,
		Owner:      "erin",
		Instrument: "SOL-USD",
		Side:       orderbook.Sell,
		Type:       orderbook.Limit,
		Price:      decimal.RequireFromString("151"),
		Quantity:   decimal.RequireFromString("1"),
		Status:     orderbook.Pending,
	}
	env := newTestEnv(t, true, func(d *Deps) {
		d.Cache = fakeCache{
			active: map[string][]orderbook.Order{"erin": {cached}},
			snaps: map[string]orderbook.Snapshot{"SOL-USD": {
				Instrument: "SOL-USD",
				Bids:       []orderbook.LevelView{},
				Asks: []orderbook.LevelView{{
					Price:    decimal.RequireFromString("151"),
					Quantity: decimal.RequireFromString("1"),
					Count:    1,
				}},
			}},
		}
	})

	listed := decodeBody[OrdersResponse](t, env.do(t, "GET", "/api/v1/orders", "erin", ""))
	assert.Equal(t, "cache", listed.Source)
	require.Len(t, listed.Orders, 1)
	assert.Equal(t, uint64(3), listed.Orders[0].ID)

	snap := decodeBody[orderbook.Snapshot](t, env.do(t, "GET", "/api/v1/orderbook/SOL-USD", "", ""))
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, "151", snap.Asks[0].Price.String())

	empty := decodeBody[OrdersResponse](t, env.do(t, "GET", "/api/v1/orders", "nobody", ""))
	assert.Equal(t, "engine", empty.Source)
	assert.NotNil(t, empty.Orders)
	assert.Empty(t, empty.Orders)

	snap = decodeBody[orderbook.Snapshot](t, env.do(t, "GET", "/api/v1/orderbook/NOPE", "", ""))
	assert.Equal(t, "NOPE", snap.Instrument)
	assert.Empty(t, snap.Bids)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	resp := env.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketReceivesBookUpdates(t *testing.T) {
	env := newTestEnv(t, true)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]any {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m map[string]any
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	hello := read()
	assert.Equal(t, "connection", hello["type"])
	assert.NotEmpty(t, hello["clientId"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": topic.Book("X")}))
	assert.Equal(t, "subscription_confirmed", read()["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", read()["type"])

	resp := env.do(t, "GET", "/api/v1/connections", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conns := decodeBody[ConnectionsResponse](t, resp)
	require.Equal(t, 1, conns.Count)
	assert.Equal(t, hello["clientId"], conns.Connections[0].ID)
	assert.Equal(t, []string{topic.Book("X")}, conns.Connections[0].Channels)
	assert.False(t, conns.Connections[0].OpenedAt.IsZero())
	assert.False(t, conns.Connections[0].LastSeen.IsZero())

	resp = env.do(t, "POST", "/api/v1/orders", "alice", `{"symbol":"X","side":"BUY","quantity":1,"price":100}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	msg := read()
	assert.Equal(t, "broadcast", msg["type"])
	assert.Equal(t, "orderbook:X", msg["channel"])
	data := msg["data"].(map[string]any)
	assert.Equal(t, "orderbook_update", data["type"])
	assert.Equal(t, "X", data["symbol"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.streams.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
