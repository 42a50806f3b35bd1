package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/dlock"
	"github.com/ariefcatur/go-shard-checkout/internal/stock"
)

type StockHandler struct {
	Store   *stock.Store
	Locks   *dlock.Manager
	LockTTL time.Duration
}

func (h *StockHandler) Register(r *chi.Mux) {
	r.Post("/item/create/{price}", h.createItem)
	r.Get("/find/{itemID}", h.findItem)
	r.Post("/add/{itemID}/{amount}", h.addStock)
	r.Post("/subtract/{itemID}/{amount}", h.subtractStock)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid("%s %q is not a number", name, raw)
	}
	return n, nil
}

func (h *StockHandler) createItem(w http.ResponseWriter, r *http.Request) {
	price, err := intParam(r, "price")
	if err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Store.Create(ctx, price)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *StockHandler) findItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.Store.Find(ctx, chi.URLParam(r, "itemID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

type stockResp struct {
	ItemID string `json:"item_id"`
	Stock  int    `json:"stock"`
}

// addStock is a bare atomic increment; the store's shard serializes it, so
// no item lock is needed and compensations never wait on one.
func (h *StockHandler) addStock(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	amount, err := intParam(r, "amount")
	if err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Store.Add(ctx, itemID, amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResp{ItemID: itemID, Stock: n})
}

// subtractStock is a read-modify-write (availability check, then decrement),
// so it runs under the item's lock.
func (h *StockHandler) subtractStock(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	amount, err := intParam(r, "amount")
	if err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var n int
	err = h.Locks.WithLock(ctx, itemID, h.LockTTL, func(ctx context.Context) error {
		var err error
		n, err = h.Store.Subtract(ctx, itemID, amount)
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResp{ItemID: itemID, Stock: n})
}
