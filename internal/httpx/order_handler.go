package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/checkout"
	"github.com/ariefcatur/go-shard-checkout/internal/client"
	"github.com/ariefcatur/go-shard-checkout/internal/dlock"
	"github.com/ariefcatur/go-shard-checkout/internal/order"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

type OrderHandler struct {
	Store    *order.Store
	Stock    client.Stock
	Checkout *checkout.Orchestrator
	Locks    *dlock.Manager
	LockTTL  time.Duration

	// Cache is optional; nil disables the read-through path.
	Cache *redis.Client

	group singleflight.Group
}

func (h *OrderHandler) Register(r *chi.Mux) {
	r.Post("/create/{userID}", h.createOrder)
	r.Get("/find/{orderID}", h.findOrder)
	r.Delete("/remove/{orderID}", h.removeOrder)
	r.Post("/addItem/{orderID}/{itemID}", h.addItem)
	r.Delete("/removeItem/{orderID}/{itemID}", h.removeItem)
	r.Post("/checkout/{orderID}", h.doCheckout)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := h.Store.Create(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": id})
}

// findOrder is a lock-free read: one HGETALL is atomic on its shard. Misses
// go through singleflight so a hot order costs one shard read, not one per
// concurrent caller.
func (h *OrderHandler) findOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderCache, orderID)
	if h.Cache != nil {
		if s, err := h.Cache.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(s))
			return
		}
	}

	v, err, _ := h.group.Do(orderID, func() (any, error) {
		o, err := h.Store.Find(ctx, orderID)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(o)
		if err != nil {
			return nil, apperr.Storage(err, "encode order %s", orderID)
		}
		if h.Cache != nil {
			_ = h.Cache.Set(ctx, key, b, redisx.TTLOrderCache).Err()
		}
		return b, nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(v.([]byte))
}

func (h *OrderHandler) removeOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Locks.WithLock(ctx, orderID, h.LockTTL, func(ctx context.Context) error {
		return h.Store.Delete(ctx, orderID)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.invalidate(ctx, orderID)
	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "status": "removed"})
}

type itemChangeResp struct {
	OrderID   string `json:"order_id"`
	ItemID    string `json:"item_id"`
	Qty       int    `json:"qty"`
	TotalCost int    `json:"total_cost"`
}

// addItem bumps the item's quantity by one. Price and availability come from
// the stock collaborator; the item list and the accumulated cost move in one
// storage round trip so they never drift apart.
func (h *OrderHandler) addItem(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	itemID := chi.URLParam(r, "itemID")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var resp itemChangeResp
	err := h.Locks.WithLock(ctx, orderID, h.LockTTL, func(ctx context.Context) error {
		o, err := h.Store.Find(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Paid {
			return apperr.Conflict("order %s is already paid", orderID)
		}
		it, err := h.Stock.Find(ctx, itemID)
		if err != nil {
			return err
		}
		if o.Qty(itemID)+1 > it.Stock {
			return apperr.Insufficient("no more available stock for item %s", itemID)
		}
		o.Add(itemID)
		total, err := h.Store.UpdateItems(ctx, orderID, o.Items, it.Price)
		if err != nil {
			return err
		}
		resp = itemChangeResp{OrderID: orderID, ItemID: itemID, Qty: o.Qty(itemID), TotalCost: total}
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.invalidate(ctx, orderID)
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	itemID := chi.URLParam(r, "itemID")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var resp itemChangeResp
	err := h.Locks.WithLock(ctx, orderID, h.LockTTL, func(ctx context.Context) error {
		o, err := h.Store.Find(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Paid {
			return apperr.Conflict("order %s is already paid", orderID)
		}
		if !o.Remove(itemID) {
			return apperr.NotFound("item %s is not in order %s", itemID, orderID)
		}
		it, err := h.Stock.Find(ctx, itemID)
		if err != nil {
			return err
		}
		total, err := h.Store.UpdateItems(ctx, orderID, o.Items, -it.Price)
		if err != nil {
			return err
		}
		resp = itemChangeResp{OrderID: orderID, ItemID: itemID, Qty: o.Qty(itemID), TotalCost: total}
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.invalidate(ctx, orderID)
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) doCheckout(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Checkout.Checkout(ctx, orderID)
	h.invalidate(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrderHandler) invalidate(ctx context.Context, orderID string) {
	if h.Cache == nil {
		return
	}
	_ = h.Cache.Del(context.WithoutCancel(ctx), fmt.Sprintf(redisx.KeyOrderCache, orderID)).Err()
}
