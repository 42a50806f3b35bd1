package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/checkout"
	"github.com/ariefcatur/go-shard-checkout/internal/client"
	"github.com/ariefcatur/go-shard-checkout/internal/dlock"
	"github.com/ariefcatur/go-shard-checkout/internal/order"
	"github.com/ariefcatur/go-shard-checkout/internal/payment"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
	"github.com/ariefcatur/go-shard-checkout/internal/stock"
)

// cluster runs the three services in one process: stock and payment behind
// real HTTP servers, the order service calling them through the same clients
// production uses.
type cluster struct {
	orderAPI http.Handler
	orders   *order.Store
	stock    *stock.Store
	payments *payment.Store
}

func newShards(t *testing.T) *redisx.Shards {
	t.Helper()
	c0 := redisx.New(miniredis.RunT(t).Addr(), "", 0)
	c1 := redisx.New(miniredis.RunT(t).Addr(), "", 0)
	shards := redisx.FromClients(c0, c1)
	t.Cleanup(shards.Close)
	return shards
}

func newCluster(t *testing.T) *cluster {
	t.Helper()

	stockShards := newShards(t)
	stockStore := &stock.Store{Shards: stockShards}
	stockRouter := NewRouter()
	(&StockHandler{
		Store:   stockStore,
		Locks:   dlock.NewSharded(stockShards),
		LockTTL: time.Second,
	}).Register(stockRouter)
	stockSrv := httptest.NewServer(stockRouter)
	t.Cleanup(stockSrv.Close)

	payShards := newShards(t)
	payStore := &payment.Store{Shards: payShards}
	payRouter := NewRouter()
	(&PaymentHandler{
		Store:   payStore,
		Locks:   dlock.NewSharded(payShards),
		LockTTL: time.Second,
	}).Register(payRouter)
	paySrv := httptest.NewServer(payRouter)
	t.Cleanup(paySrv.Close)

	orderShards := newShards(t)
	orderStore := &order.Store{Shards: orderShards}
	orderLocks := dlock.NewSharded(orderShards)
	stockCli := client.NewStock(stockSrv.URL, 2*time.Second)
	payCli := client.NewPayment(paySrv.URL, 2*time.Second)

	co := &checkout.Orchestrator{
		Orders:  orderStore,
		Stock:   stockCli,
		Payment: payCli,
		Locks:   orderLocks,
		LockTTL: 2 * time.Second,
	}

	orderRouter := NewRouter()
	(&OrderHandler{
		Store:    orderStore,
		Stock:    stockCli,
		Checkout: co,
		Locks:    orderLocks,
		LockTTL:  2 * time.Second,
		Cache:    orderShards.All()[0],
	}).Register(orderRouter)

	return &cluster{
		orderAPI: orderRouter,
		orders:   orderStore,
		stock:    stockStore,
		payments: payStore,
	}
}

func (c *cluster) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	c.orderAPI.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestCheckoutAcrossServices(t *testing.T) {
	c := newCluster(t)
	ctx := context.Background()

	it, err := c.stock.Create(ctx, 10)
	require.NoError(t, err)
	_, err = c.stock.Add(ctx, it.ItemID, 5)
	require.NoError(t, err)

	u, err := c.payments.CreateUser(ctx)
	require.NoError(t, err)
	_, err = c.payments.AddFunds(ctx, u.UserID, 100)
	require.NoError(t, err)

	rec, body := c.do(t, http.MethodPost, "/create/"+u.UserID)
	require.Equal(t, http.StatusOK, rec.Code)
	orderID := body["order_id"].(string)

	for i := 0; i < 2; i++ {
		rec, _ = c.do(t, http.MethodPost, "/addItem/"+orderID+"/"+it.ItemID)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body = c.do(t, http.MethodPost, "/checkout/"+orderID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(20), body["amount"])

	got, err := c.stock.Find(ctx, it.ItemID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	uu, err := c.payments.FindUser(ctx, u.UserID)
	require.NoError(t, err)
	assert.Equal(t, 80, uu.Credit)

	o, err := c.orders.Find(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, o.Paid)

	// paying the same order again is rejected
	rec, body = c.do(t, http.MethodPost, "/checkout/"+orderID)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperr.KindConflict), body["error"])
}

func TestCheckoutRollsBackAcrossServices(t *testing.T) {
	c := newCluster(t)
	ctx := context.Background()

	it, err := c.stock.Create(ctx, 10)
	require.NoError(t, err)
	_, err = c.stock.Add(ctx, it.ItemID, 5)
	require.NoError(t, err)

	u, err := c.payments.CreateUser(ctx)
	require.NoError(t, err)
	_, err = c.payments.AddFunds(ctx, u.UserID, 15) // short of the 20 needed
	require.NoError(t, err)

	rec, body := c.do(t, http.MethodPost, "/create/"+u.UserID)
	require.Equal(t, http.StatusOK, rec.Code)
	orderID := body["order_id"].(string)
	for i := 0; i < 2; i++ {
		rec, _ = c.do(t, http.MethodPost, "/addItem/"+orderID+"/"+it.ItemID)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body = c.do(t, http.MethodPost, "/checkout/"+orderID)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(apperr.KindInsufficient), body["error"])
	assert.Contains(t, body["compensation"], "compensated")

	// the reservation was rolled back, nothing was debited
	got, err := c.stock.Find(ctx, it.ItemID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	uu, err := c.payments.FindUser(ctx, u.UserID)
	require.NoError(t, err)
	assert.Equal(t, 15, uu.Credit)

	o, err := c.orders.Find(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, o.Paid)

	// topping up makes the same order checkoutable again
	_, err = c.payments.AddFunds(ctx, u.UserID, 10)
	require.NoError(t, err)
	rec, body = c.do(t, http.MethodPost, "/checkout/"+orderID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(20), body["amount"])
}

func TestCheckoutEmptyOrder(t *testing.T) {
	c := newCluster(t)
	ctx := context.Background()

	u, err := c.payments.CreateUser(ctx)
	require.NoError(t, err)
	oid, err := c.orders.Create(ctx, u.UserID)
	require.NoError(t, err)

	rec, body := c.do(t, http.MethodPost, "/checkout/"+oid)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperr.KindInvalid), body["error"])
}
