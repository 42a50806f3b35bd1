// Package client talks to the stock and payment collaborators over HTTP.
// Transport failures and timeouts come back as remote_unavailable; business
// rejections keep the kind the remote service put in the response body. The
// orchestrator compensates on either, so the distinction only matters for
// reporting.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/stock"
)

// Stock is the stock collaborator as the orchestrator sees it.
type Stock interface {
	Find(ctx context.Context, itemID string) (*stock.Item, error)
	Subtract(ctx context.Context, itemID string, amount int) (int, error)
	Add(ctx context.Context, itemID string, amount int) (int, error)
}

// Payment is the payment collaborator as the orchestrator sees it.
type Payment interface {
	Pay(ctx context.Context, userID, orderID string, amount int) error
	Cancel(ctx context.Context, userID, orderID string) error
}

const defaultTimeout = 2 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

type errBody struct {
	Error  apperr.Kind `json:"error"`
	Detail string      `json:"detail"`
}

func do(ctx context.Context, hc *http.Client, method, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return apperr.Storage(err, "build request %s", url)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return apperr.Unavailable(err, "call %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body errBody
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return apperr.FromKind(body.Error, body.Detail)
		}
		return apperr.FromStatus(resp.StatusCode, fmt.Sprintf("%s returned %d", url, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Unavailable(err, "decode response from %s", url)
	}
	return nil
}

type StockHTTP struct {
	BaseURL string
	hc      *http.Client
}

func NewStock(baseURL string, timeout time.Duration) *StockHTTP {
	return &StockHTTP{BaseURL: baseURL, hc: newHTTPClient(timeout)}
}

func (c *StockHTTP) Find(ctx context.Context, itemID string) (*stock.Item, error) {
	var it stock.Item
	url := fmt.Sprintf("%s/find/%s", c.BaseURL, itemID)
	if err := do(ctx, c.hc, http.MethodGet, url, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

type stockLevel struct {
	ItemID string `json:"item_id"`
	Stock  int    `json:"stock"`
}

func (c *StockHTTP) Subtract(ctx context.Context, itemID string, amount int) (int, error) {
	var lv stockLevel
	url := fmt.Sprintf("%s/subtract/%s/%d", c.BaseURL, itemID, amount)
	if err := do(ctx, c.hc, http.MethodPost, url, &lv); err != nil {
		return 0, err
	}
	return lv.Stock, nil
}

func (c *StockHTTP) Add(ctx context.Context, itemID string, amount int) (int, error) {
	var lv stockLevel
	url := fmt.Sprintf("%s/add/%s/%d", c.BaseURL, itemID, amount)
	if err := do(ctx, c.hc, http.MethodPost, url, &lv); err != nil {
		return 0, err
	}
	return lv.Stock, nil
}

type PaymentHTTP struct {
	BaseURL string
	hc      *http.Client
}

func NewPayment(baseURL string, timeout time.Duration) *PaymentHTTP {
	return &PaymentHTTP{BaseURL: baseURL, hc: newHTTPClient(timeout)}
}

func (c *PaymentHTTP) Pay(ctx context.Context, userID, orderID string, amount int) error {
	url := fmt.Sprintf("%s/pay/%s/%s/%d", c.BaseURL, userID, orderID, amount)
	return do(ctx, c.hc, http.MethodPost, url, nil)
}

func (c *PaymentHTTP) Cancel(ctx context.Context, userID, orderID string) error {
	url := fmt.Sprintf("%s/cancel/%s/%s", c.BaseURL, userID, orderID)
	return do(ctx, c.hc, http.MethodPost, url, nil)
}
