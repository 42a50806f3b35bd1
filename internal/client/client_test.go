package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
)

func TestStockFind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/find/item:7", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"item_id":"item:7","price":10,"stock":5}`))
	}))
	defer srv.Close()

	it, err := NewStock(srv.URL, time.Second).Find(context.Background(), "item:7")
	require.NoError(t, err)
	assert.Equal(t, "item:7", it.ItemID)
	assert.Equal(t, 10, it.Price)
	assert.Equal(t, 5, it.Stock)
}

func TestStockSubtractParsesNewLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subtract/item:7/2", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"item_id":"item:7","stock":3}`))
	}))
	defer srv.Close()

	n, err := NewStock(srv.URL, time.Second).Subtract(context.Background(), "item:7", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRejectionKeepsRemoteKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"insufficient_resource","detail":"item item:7 has only 1 left"}`))
	}))
	defer srv.Close()

	_, err := NewStock(srv.URL, time.Second).Subtract(context.Background(), "item:7", 2)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficient))
	assert.Contains(t, err.Error(), "only 1 left")
}

func TestBareStatusIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewStock(srv.URL, time.Second).Find(context.Background(), "item:404")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := NewStock(srv.URL, time.Second).Find(context.Background(), "item:7")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))

	err = NewPayment(srv.URL, time.Second).Pay(context.Background(), "user:1", "order:1", 5)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
}

func TestPaymentPayAndCancel(t *testing.T) {
	var gotPay, gotCancel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/pay/user:1/order:2/30":
			gotPay = r.URL.Path
		case r.URL.Path == "/cancel/user:1/order:2":
			gotCancel = r.URL.Path
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	pc := NewPayment(srv.URL, time.Second)
	require.NoError(t, pc.Pay(context.Background(), "user:1", "order:2", 30))
	require.NoError(t, pc.Cancel(context.Background(), "user:1", "order:2"))
	assert.NotEmpty(t, gotPay)
	assert.NotEmpty(t, gotCancel)
}

func TestPaymentConflictSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"conflict","detail":"order order:2 is already paid"}`))
	}))
	defer srv.Close()

	err := NewPayment(srv.URL, time.Second).Pay(context.Background(), "user:1", "order:2", 30)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}
