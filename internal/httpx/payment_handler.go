package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shard-checkout/internal/dlock"
	"github.com/ariefcatur/go-shard-checkout/internal/payment"
)

type PaymentHandler struct {
	Store   *payment.Store
	Locks   *dlock.Manager
	LockTTL time.Duration
}

func (h *PaymentHandler) Register(r *chi.Mux) {
	r.Post("/create_user", h.createUser)
	r.Get("/find_user/{userID}", h.findUser)
	r.Post("/add_funds/{userID}/{amount}", h.addFunds)
	r.Post("/pay/{userID}/{orderID}/{amount}", h.pay)
	r.Post("/cancel/{userID}/{orderID}", h.cancel)
	r.Get("/status/{userID}/{orderID}", h.status)
}

func (h *PaymentHandler) createUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := h.Store.CreateUser(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": u.UserID})
}

func (h *PaymentHandler) findUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, err := h.Store.FindUser(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type creditResp struct {
	UserID string `json:"user_id"`
	Credit int    `json:"credit"`
}

// addFunds is a bare atomic increment, no user lock needed.
func (h *PaymentHandler) addFunds(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	amount, err := intParam(r, "amount")
	if err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Store.AddFunds(ctx, userID, amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creditResp{UserID: userID, Credit: n})
}

// pay debits under the user's lock: the balance check and the decrement must
// not interleave with another debit on the same ledger.
func (h *PaymentHandler) pay(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	orderID := chi.URLParam(r, "orderID")
	amount, err := intParam(r, "amount")
	if err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var p *payment.Payment
	err = h.Locks.WithLock(ctx, userID, h.LockTTL, func(ctx context.Context) error {
		var err error
		p, err = h.Store.Pay(ctx, userID, orderID, amount)
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	orderID := chi.URLParam(r, "orderID")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var credit int
	err := h.Locks.WithLock(ctx, userID, h.LockTTL, func(ctx context.Context) error {
		var err error
		credit, err = h.Store.Cancel(ctx, userID, orderID)
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creditResp{UserID: userID, Credit: credit})
}

func (h *PaymentHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	paid, err := h.Store.Status(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "orderID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paid": paid})
}
