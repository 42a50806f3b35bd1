package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/dlock"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
	"github.com/ariefcatur/go-shard-checkout/internal/stock"
)

type stockTestEnv struct {
	h     http.Handler
	store *stock.Store
}

func newStockEnv(t *testing.T) *stockTestEnv {
	t.Helper()
	c0 := redisx.New(miniredis.RunT(t).Addr(), "", 0)
	c1 := redisx.New(miniredis.RunT(t).Addr(), "", 0)
	shards := redisx.FromClients(c0, c1)
	t.Cleanup(shards.Close)

	store := &stock.Store{Shards: shards}
	h := &StockHandler{Store: store, Locks: dlock.NewSharded(shards), LockTTL: time.Second}
	r := NewRouter()
	h.Register(r)
	return &stockTestEnv{h: r, store: store}
}

func (e *stockTestEnv) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestStockLifecycle(t *testing.T) {
	e := newStockEnv(t)

	rec, body := e.do(t, http.MethodPost, "/item/create/10")
	require.Equal(t, http.StatusOK, rec.Code)
	id, _ := body["item_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, float64(10), body["price"])
	assert.Equal(t, float64(0), body["stock"])

	rec, body = e.do(t, http.MethodPost, "/add/"+id+"/5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), body["stock"])

	rec, body = e.do(t, http.MethodPost, "/subtract/"+id+"/2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["stock"])

	rec, body = e.do(t, http.MethodGet, "/find/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["stock"])
	assert.Equal(t, float64(10), body["price"])
}

func TestSubtractOverdraw(t *testing.T) {
	e := newStockEnv(t)
	rec, body := e.do(t, http.MethodPost, "/item/create/10")
	require.Equal(t, http.StatusOK, rec.Code)
	id := body["item_id"].(string)
	e.do(t, http.MethodPost, "/add/"+id+"/1")

	rec, body = e.do(t, http.MethodPost, "/subtract/"+id+"/2")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(apperr.KindInsufficient), body["error"])

	// nothing was taken
	rec, body = e.do(t, http.MethodGet, "/find/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["stock"])
}

func TestStockBadParams(t *testing.T) {
	e := newStockEnv(t)

	rec, body := e.do(t, http.MethodPost, "/item/create/ten")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperr.KindInvalid), body["error"])

	rec, body = e.do(t, http.MethodPost, "/add/item:1/none")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperr.KindInvalid), body["error"])

	rec, body = e.do(t, http.MethodGet, "/find/item:999999")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(apperr.KindNotFound), body["error"])
}
