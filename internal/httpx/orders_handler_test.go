package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iippk/PersonalWorks/internal/httpx"
	"github.com/iippk/PersonalWorks/internal/orders"
	"github.com/iippk/PersonalWorks/internal/product"
	"github.com/iippk/PersonalWorks/internal/productclient"
	"github.com/iippk/PersonalWorks/internal/redisx"
)

const (
	buyer  = "2023001"
	seller = "2023999"
)

func newRedisCache(t *testing.T) *redisx.OrderCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &redisx.OrderCache{RDB: rdb}
}

type env struct {
	api      *httptest.Server
	products *product.MemStore
	store    *orders.MemStore
	cache    *redisx.OrderCache
	lampID   int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithCache(t, nil)
}

// newEnvWithCache wires the order API against a real product handler. A nil
// cache means a fresh Redis-backed one.
func newEnvWithCache(t *testing.T, cache httpx.OrderCache) *env {
	t.Helper()
	products := product.NewMemStore()
	lamp, err := products.Create(context.Background(), seller, product.CreateInput{
		Title: "Desk lamp", Price: decimal.RequireFromString("25.50"), Images: "lamp.jpg,side.jpg",
	})
	require.NoError(t, err)

	pr := httpx.NewRouter(nil)
	(&httpx.ProductsHandler{Store: products}).Register(pr)
	productSrv := httptest.NewServer(pr)
	t.Cleanup(productSrv.Close)

	store := orders.NewMemStore()
	svc := orders.NewService(store, productclient.New(productSrv.URL, time.Second, productSrv.Client()))
	rc := newRedisCache(t)
	if cache == nil {
		cache = rc
	}
	r := httpx.NewRouter(nil)
	(&httpx.OrdersHandler{Service: svc, Cache: cache}).Register(r)
	api := httptest.NewServer(r)
	t.Cleanup(api.Close)

	return &env{api: api, products: products, store: store, cache: rc, lampID: lamp.ID}
}

func (e *env) do(t *testing.T, method, path, student string, body any, headers ...string) (int, httpx.Response) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.api.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if student != "" {
		req.Header.Set(httpx.HeaderStudentID, student)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.api.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out httpx.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *env) createOrder(t *testing.T, headers ...string) orders.Order {
	t.Helper()
	status, resp := e.do(t, http.MethodPost, "/order", buyer, map[string]any{
		"productId": e.lampID, "address": "Dorm 7, Room 301", "phone": "13800000000",
	}, headers...)
	require.Equal(t, http.StatusOK, status, resp.Message)
	return decodeOrder(t, resp)
}

func decodeOrder(t *testing.T, resp httpx.Response) orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, json.Unmarshal(resp.Data, &o))
	return o
}

func (e *env) productState(t *testing.T) product.Product {
	t.Helper()
	p, err := e.products.Get(context.Background(), e.lampID)
	require.NoError(t, err)
	return p
}

func TestCreateOrderEnvelope(t *testing.T) {
	e := newEnv(t)

	status, resp := e.do(t, http.MethodPost, "/order", buyer, map[string]any{
		"productId": e.lampID, "address": "Dorm 7", "phone": "138", "remark": "after 6pm",
	}, httpx.HeaderBuyerName, "base64:5p6X5bCP5piO")

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, httpx.CodeOK, resp.Code)
	assert.Equal(t, "success", resp.Message)
	o := decodeOrder(t, resp)
	assert.Equal(t, orders.StatusPendingPayment, o.Status)
	assert.Equal(t, "林小明", o.BuyerName)
	assert.Equal(t, "lamp.jpg", o.ProductImage)
	assert.Equal(t, seller, o.SellerID)
	assert.Equal(t, "after 6pm", o.Remark)
}

func TestCreateOrderErrors(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.products.SetStatus(context.Background(), e.lampID, product.StatusDelisted))

	cases := []struct {
		name    string
		student string
		body    any
		want    int
	}{
		{"missing identity", "", map[string]any{"productId": e.lampID, "address": "a", "phone": "1"}, http.StatusBadRequest},
		{"missing address", buyer, map[string]any{"productId": e.lampID, "phone": "1"}, http.StatusBadRequest},
		{"unknown product", buyer, map[string]any{"productId": 777, "address": "a", "phone": "1"}, http.StatusBadRequest},
		{"product not listed", buyer, map[string]any{"productId": e.lampID, "address": "a", "phone": "1"}, http.StatusBadRequest},
		{"bad json", buyer, "not an object", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := e.do(t, http.MethodPost, "/order", tc.student, tc.body)
			assert.Equal(t, tc.want, status)
			assert.Equal(t, tc.want, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	o := e.createOrder(t)
	base := fmt.Sprintf("/order/%d", o.ID)

	status, resp := e.do(t, http.MethodPut, base+"/pay", buyer, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, orders.StatusPaid, decodeOrder(t, resp).Status)
	assert.Equal(t, product.StatusSold, e.productState(t).Status)

	status, resp = e.do(t, http.MethodPut, base+"/ship", buyer, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	status, _ = e.do(t, http.MethodPut, base+"/cancel", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = e.do(t, http.MethodPut, base+"/ship", seller, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, 1, e.productState(t).Shipped)

	status, resp = e.do(t, http.MethodPut, base+"/refund", buyer, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, resp = e.do(t, http.MethodPut, base+"/confirm-refund", seller, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, orders.StatusRefunded, decodeOrder(t, resp).Status)
	p := e.productState(t)
	assert.Equal(t, product.StatusListed, p.Status)
	assert.Equal(t, 0, p.Shipped)

	status, resp = e.do(t, http.MethodGet, base, buyer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, orders.StatusRefunded, decodeOrder(t, resp).Status)
}

func TestTransitionRouting(t *testing.T) {
	e := newEnv(t)
	o := e.createOrder(t)

	status, _ := e.do(t, http.MethodPut, fmt.Sprintf("/order/%d/teleport", o.ID), buyer, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodPut, "/order/abc/pay", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPut, "/order/4242/pay", buyer, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodPut, fmt.Sprintf("/order/%d/pay", o.ID), "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProductDirectoryDownIsServiceUnavailable(t *testing.T) {
	products := product.NewMemStore()
	lamp, err := products.Create(context.Background(), seller, product.CreateInput{Title: "Lamp", Price: decimal.NewFromInt(5)})
	require.NoError(t, err)

	pr := httpx.NewRouter(nil)
	(&httpx.ProductsHandler{Store: products}).Register(pr)
	productSrv := httptest.NewServer(pr)

	svc := orders.NewService(orders.NewMemStore(), productclient.New(productSrv.URL, time.Second, productSrv.Client()))
	r := httpx.NewRouter(nil)
	(&httpx.OrdersHandler{Service: svc}).Register(r)
	api := httptest.NewServer(r)
	defer api.Close()
	e := &env{api: api, products: products, lampID: lamp.ID}

	o := e.createOrder(t)
	productSrv.Close()

	status, resp := e.do(t, http.MethodPut, fmt.Sprintf("/order/%d/pay", o.ID), buyer, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	status, resp = e.do(t, http.MethodGet, fmt.Sprintf("/order/%d", o.ID), buyer, nil)
	require.Equal(t, http.StatusOK, status)
	got := decodeOrder(t, resp)
	assert.Equal(t, orders.StatusPendingPayment, got.Status)
	assert.Nil(t, got.PayTime)
}

func TestListsByCaller(t *testing.T) {
	e := newEnv(t)
	first := e.createOrder(t)
	second := e.createOrder(t)

	status, resp := e.do(t, http.MethodGet, "/order/my-buy", buyer, nil)
	require.Equal(t, http.StatusOK, status)
	var mine []orders.Order
	require.NoError(t, json.Unmarshal(resp.Data, &mine))
	require.Len(t, mine, 2)
	assert.ElementsMatch(t, []int64{first.ID, second.ID}, []int64{mine[0].ID, mine[1].ID})

	status, resp = e.do(t, http.MethodGet, "/order/my-sell", buyer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(resp.Data))

	status, _ = e.do(t, http.MethodGet, "/order/my-sell", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIdempotentCreateReturnsSameOrder(t *testing.T) {
	e := newEnv(t)

	first := e.createOrder(t, httpx.HeaderIdempotencyKey, "checkout-1")
	again := e.createOrder(t, httpx.HeaderIdempotencyKey, "checkout-1")
	other := e.createOrder(t, httpx.HeaderIdempotencyKey, "checkout-2")

	assert.Equal(t, first.ID, again.ID)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetServesFromCache(t *testing.T) {
	e := newEnv(t)
	o := e.createOrder(t)

	cached, ok := e.cache.GetOrder(context.Background(), o.ID)
	require.True(t, ok)
	cached.Remark = "from cache"
	cached.UpdateTime = cached.UpdateTime.Add(time.Second)
	require.NoError(t, e.cache.PutOrder(context.Background(), cached))

	_, resp := e.do(t, http.MethodGet, fmt.Sprintf("/order/%d", o.ID), buyer, nil)
	assert.Equal(t, "from cache", decodeOrder(t, resp).Remark)
}

func TestConcurrentRetriesWithOneIdempotencyKeyCreateOneOrder(t *testing.T) {
	e := newEnv(t)

	const callers = 8
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		statuses = make([]int, callers)
		ids      = make([]int64, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			status, resp := e.do(t, http.MethodPost, "/order", buyer, map[string]any{
				"productId": e.lampID, "address": "Dorm 7", "phone": "138",
			}, httpx.HeaderIdempotencyKey, "checkout-1")
			statuses[i] = status
			if status == http.StatusOK {
				ids[i] = decodeOrder(t, resp).ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	list, err := e.store.ListByBuyer(context.Background(), buyer)
	require.NoError(t, err)
	require.Len(t, list, 1, "one order per idempotency key")

	for i, status := range statuses {
		switch status {
		case http.StatusOK:
			assert.Equal(t, list[0].ID, ids[i])
		case http.StatusConflict:
		default:
			t.Errorf("caller %d got status %d", i, status)
		}
	}

	again := e.createOrder(t, httpx.HeaderIdempotencyKey, "checkout-1")
	assert.Equal(t, list[0].ID, again.ID)
}

func TestFailedCreateReleasesIdempotencyKey(t *testing.T) {
	e := newEnv(t)

	status, _ := e.do(t, http.MethodPost, "/order", buyer, map[string]any{
		"productId": 777, "address": "Dorm 7", "phone": "138",
	}, httpx.HeaderIdempotencyKey, "checkout-1")
	require.Equal(t, http.StatusBadRequest, status)

	o := e.createOrder(t, httpx.HeaderIdempotencyKey, "checkout-1")
	assert.Equal(t, orders.StatusPendingPayment, o.Status)
}

// gatedCache holds back the cache write of a paid snapshot until released.
type gatedCache struct {
	*redisx.OrderCache
	holding atomic.Bool
	held    chan struct{}
	release chan struct{}
}

func (g *gatedCache) PutOrder(ctx context.Context, o orders.Order) error {
	if o.Status == orders.StatusPaid && g.holding.CompareAndSwap(false, true) {
		close(g.held)
		select {
		case <-g.release:
		case <-ctx.Done():
		}
	}
	return g.OrderCache.PutOrder(ctx, o)
}

func TestLateCacheWriteDoesNotServeStaleStatus(t *testing.T) {
	gate := &gatedCache{OrderCache: newRedisCache(t), held: make(chan struct{}), release: make(chan struct{})}
	e := newEnvWithCache(t, gate)
	o := e.createOrder(t)
	base := fmt.Sprintf("/order/%d", o.ID)

	payDone := make(chan int, 1)
	go func() {
		status, _ := e.do(t, http.MethodPut, base+"/pay", buyer, nil)
		payDone <- status
	}()
	<-gate.held

	status, resp := e.do(t, http.MethodPut, base+"/ship", seller, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)

	close(gate.release)
	require.Equal(t, http.StatusOK, <-payDone)

	stored, err := e.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusShipped, stored.Status)

	status, resp = e.do(t, http.MethodGet, base, buyer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, orders.StatusShipped, decodeOrder(t, resp).Status)
}
