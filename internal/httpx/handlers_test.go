package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ariefcatur/go-bookstore-orders/internal/lifecycle"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
	"github.com/ariefcatur/go-bookstore-orders/internal/testutil"
)

type memIdem struct {
	mu   sync.Mutex
	vals map[string][]byte
}

func (m *memIdem) Claim(_ context.Context, scope, key string) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	v, ok := m.vals[k]
	if !ok {
		m.vals[k] = nil
		return true, nil, nil
	}
	if v == nil {
		return false, nil, redisx.ErrInFlight
	}
	return false, v, nil
}

func (m *memIdem) Complete(_ context.Context, scope, key string, resp []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[scope+":"+key] = resp
	return nil
}

func (m *memIdem) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, scope+":"+key)
	return nil
}

type memStatus map[string]redisx.CachedStatus

func (m memStatus) Get(_ context.Context, id string) (redisx.CachedStatus, bool, error) {
	cs, ok := m[id]
	return cs, ok, nil
}

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func (c client) post(path string, body any, headers ...string) (int, map[string]any) {
	c.t.Helper()
	b, err := json.Marshal(body)
	require.NoError(c.t, err)
	req, err := http.NewRequest(http.MethodPost, c.srv.URL+path, bytes.NewReader(b))
	require.NoError(c.t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return c.do(req)
}

func (c client) get(path string) (int, map[string]any) {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.srv.URL+path, nil)
	require.NoError(c.t, err)
	return c.do(req)
}

func (c client) do(req *http.Request) (int, map[string]any) {
	c.t.Helper()
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func newServer(t *testing.T, status memStatus) (client, *memIdem) {
	t.Helper()
	db := testutil.NewDB(t)
	idem := &memIdem{vals: map[string][]byte{}}
	eng := lifecycle.New(db, lifecycle.WithPasswordCost(bcrypt.MinCost))
	r := NewRouter(db.Ping)
	h := &Handler{Engine: eng, Idem: idem, Log: zap.NewNop()}
	if status != nil {
		h.Status = status
	}
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return client{t: t, srv: srv}, idem
}

func seed(c client) {
	c.t.Helper()
	for _, u := range []string{"seller", "buyer"} {
		code, _ := c.post("/auth/register", map[string]any{"user_id": u, "password": "pw"})
		require.Equal(c.t, http.StatusOK, code)
	}
	code, _ := c.post("/seller/create_store", map[string]any{"user_id": "seller", "store_id": "s1"})
	require.Equal(c.t, http.StatusOK, code)
	code, _ = c.post("/seller/add_book", map[string]any{
		"user_id": "seller", "store_id": "s1", "stock_level": 3,
		"book_info": map[string]any{"id": "b1", "title": "Dune", "price": 25},
	})
	require.Equal(c.t, http.StatusOK, code)
}

func TestOrderFlowOverHTTP(t *testing.T) {
	c, _ := newServer(t, nil)
	seed(c)

	code, body := c.post("/buyer/new_order", map[string]any{
		"user_id": "buyer", "store_id": "s1", "books": []map[string]any{{"id": "b1", "count": 2}},
	})
	require.Equal(t, http.StatusOK, code)
	orderID, _ := body["order_id"].(string)
	require.NotEmpty(t, orderID)

	code, body = c.post("/buyer/payment", map[string]any{"user_id": "buyer", "order_id": orderID, "password": "pw"})
	assert.Equal(t, http.StatusConflict, code)
	assert.EqualValues(t, 519, body["code"])

	code, _ = c.post("/buyer/add_funds", map[string]any{"user_id": "buyer", "password": "pw", "add_value": 100})
	require.Equal(t, http.StatusOK, code)
	code, _ = c.post("/buyer/payment", map[string]any{"user_id": "buyer", "order_id": orderID, "password": "pw"})
	require.Equal(t, http.StatusOK, code)

	code, body = c.post("/buyer/received", map[string]any{"user_id": "buyer", "order_id": orderID})
	assert.Equal(t, http.StatusConflict, code)
	assert.EqualValues(t, 520, body["code"])

	code, _ = c.post("/seller/delivered", map[string]any{"user_id": "seller", "order_id": orderID})
	require.Equal(t, http.StatusOK, code)
	code, _ = c.post("/buyer/received", map[string]any{"user_id": "buyer", "order_id": orderID})
	require.Equal(t, http.StatusOK, code)

	code, body = c.post("/buyer/search_order", map[string]any{"user_id": "buyer"})
	require.Equal(t, http.StatusOK, code)
	list, _ := body["orders"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "RECEIVED", first["status"])
	assert.Equal(t, "s1", first["counterpart_id"])

	code, body = c.post("/seller/seller_search", map[string]any{"user_id": "seller", "store_id": "s1"})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["orders"], 1)

	code, body = c.get("/orders/" + orderID)
	require.Equal(t, http.StatusOK, code)
	order := body["order"].(map[string]any)
	assert.EqualValues(t, 50, order["total"])
}

func TestErrorMapping(t *testing.T) {
	c, _ := newServer(t, nil)
	seed(c)

	tests := []struct {
		name   string
		path   string
		body   map[string]any
		status int
		code   float64
	}{
		{"unknown user", "/buyer/new_order", map[string]any{"user_id": "ghost", "store_id": "s1", "books": []map[string]any{{"id": "b1", "count": 1}}}, http.StatusNotFound, 511},
		{"unknown store", "/buyer/new_order", map[string]any{"user_id": "buyer", "store_id": "s9", "books": []map[string]any{{"id": "b1", "count": 1}}}, http.StatusNotFound, 513},
		{"stock low", "/buyer/new_order", map[string]any{"user_id": "buyer", "store_id": "s1", "books": []map[string]any{{"id": "b1", "count": 9}}}, http.StatusConflict, 517},
		{"bad count", "/buyer/new_order", map[string]any{"user_id": "buyer", "store_id": "s1", "books": []map[string]any{{"id": "b1", "count": 0}}}, http.StatusBadRequest, 400},
		{"wrong password", "/buyer/add_funds", map[string]any{"user_id": "buyer", "password": "nope", "add_value": 1}, http.StatusUnauthorized, 401},
		{"duplicate user", "/auth/register", map[string]any{"user_id": "buyer", "password": "x"}, http.StatusConflict, 512},
		{"duplicate store", "/seller/create_store", map[string]any{"user_id": "seller", "store_id": "s1"}, http.StatusConflict, 514},
		{"missing order", "/buyer/cancel_order", map[string]any{"user_id": "buyer", "order_id": "nope"}, http.StatusNotFound, 518},
		{"no orders", "/buyer/search_order", map[string]any{"user_id": "buyer"}, http.StatusNotFound, 521},
		{"not owner", "/seller/seller_search", map[string]any{"user_id": "buyer", "store_id": "s1"}, http.StatusUnauthorized, 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := c.post(tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.EqualValues(t, tt.code, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestNewOrderIdempotency(t *testing.T) {
	c, idem := newServer(t, nil)
	seed(c)
	req := map[string]any{"user_id": "buyer", "store_id": "s1", "books": []map[string]any{{"id": "b1", "count": 1}}}

	code, first := c.post("/buyer/new_order", req, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, code)
	code, again := c.post("/buyer/new_order", req, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first["order_id"], again["order_id"])

	code, _ = c.post("/buyer/new_order", req, HeaderIdempotencyKey, "k-2")
	require.Equal(t, http.StatusOK, code)

	// k-1 and k-2 placed one order each
	_, body := c.post("/buyer/search_order", map[string]any{"user_id": "buyer"})
	assert.Len(t, body["orders"], 2)

	idem.vals["new_order:buyer:k-3"] = nil
	code, _ = c.post("/buyer/new_order", req, HeaderIdempotencyKey, "k-3")
	assert.Equal(t, http.StatusConflict, code, "in-flight key is rejected")
}

func TestIdempotencyKeyIsPerUser(t *testing.T) {
	c, _ := newServer(t, nil)
	seed(c)
	code, _ := c.post("/auth/register", map[string]any{"user_id": "mallory", "password": "pw"})
	require.Equal(t, http.StatusOK, code)

	books := []map[string]any{{"id": "b1", "count": 1}}
	code, first := c.post("/buyer/new_order", map[string]any{"user_id": "buyer", "store_id": "s1", "books": books}, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, code)
	code, other := c.post("/buyer/new_order", map[string]any{"user_id": "mallory", "store_id": "s1", "books": books}, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, code)
	assert.NotEqual(t, first["order_id"], other["order_id"])

	code, body := c.post("/buyer/search_order", map[string]any{"user_id": "mallory"})
	require.Equal(t, http.StatusOK, code)
	list, _ := body["orders"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, other["order_id"], list[0].(map[string]any)["order_id"])
}

func TestIdempotencyKeyRejectsDifferentBody(t *testing.T) {
	c, _ := newServer(t, nil)
	seed(c)

	req := map[string]any{"user_id": "buyer", "store_id": "s1", "books": []map[string]any{{"id": "b1", "count": 1}}}
	code, _ := c.post("/buyer/new_order", req, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, code)

	req["books"] = []map[string]any{{"id": "b1", "count": 2}}
	code, body := c.post("/buyer/new_order", req, HeaderIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.EqualValues(t, 422, body["code"])

	_, body = c.post("/buyer/search_order", map[string]any{"user_id": "buyer"})
	assert.Len(t, body["orders"], 1)
}

func TestOrderStatusPrefersCache(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	c, _ := newServer(t, memStatus{
		"cached-order": {Status: "SHIPPED", UpdatedAt: at},
		"lapsed-order": {Status: "UNPAID", UpdatedAt: at},
	})
	seed(c)

	code, body := c.get("/orders/cached-order/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SHIPPED", body["status"])
	assert.Equal(t, true, body["cached"])

	_, placed := c.post("/buyer/new_order", map[string]any{
		"user_id": "buyer", "store_id": "s1", "books": []map[string]any{{"id": "b1", "count": 1}},
	})
	code, body = c.get("/orders/" + placed["order_id"].(string) + "/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "UNPAID", body["status"])
	assert.Equal(t, false, body["cached"])

	code, _ = c.get("/orders/unknown/status")
	assert.Equal(t, http.StatusNotFound, code)

	// an UNPAID entry is never trusted; the engine has no such order
	code, _ = c.get("/orders/lapsed-order/status")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealthz(t *testing.T) {
	db := testutil.NewDB(t)
	r := NewRouter(db.Ping)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewRouter(func(context.Context) error { return assert.AnError })
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
