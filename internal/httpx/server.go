package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/saga"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errResponse struct {
	Error        apperr.Kind `json:"error"`
	Detail       string      `json:"detail"`
	Compensation string      `json:"compensation,omitempty"`
}

// writeErr renders the error kind plus detail; a failed saga additionally
// carries the outcome of every compensating action, so an operator can spot
// a partial restoration straight from the response.
func writeErr(w http.ResponseWriter, err error) {
	resp := errResponse{Error: apperr.KindOf(err), Detail: err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		resp.Detail = ae.Detail
	}
	var report *saga.Report
	if errors.As(err, &report) {
		resp.Detail = report.Error()
		resp.Compensation = report.Summary()
	}
	writeJSON(w, apperr.StatusOf(err), resp)
}
