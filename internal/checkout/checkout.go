// Package checkout coordinates a purchase across the order, stock and
// payment stores. The three mutations cannot share a transaction, so the
// orchestrator runs them as a saga: reserve stock per line item, debit the
// buyer, flip the order's paid flag. On any failure it compensates what
// already committed. Stock moves before money and money before the paid
// flag, so the cheapest-to-retry step comes last and compensation windows
// stay as small as possible.
package checkout

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/client"
	"github.com/ariefcatur/go-shard-checkout/internal/dlock"
	"github.com/ariefcatur/go-shard-checkout/internal/order"
	"github.com/ariefcatur/go-shard-checkout/internal/saga"
)

// Notifier observes checkout outcomes (kafka events, journals). Checkout
// correctness never depends on it; a nil Notifier is fine.
type Notifier interface {
	Succeeded(ctx context.Context, o *order.Order, amount int)
	Failed(ctx context.Context, o *order.Order, failedStep string, cause error, compensation string)
}

// OrderStore is the slice of the order store the saga needs: a read under
// the lock and the final paid-flag write.
type OrderStore interface {
	Find(ctx context.Context, id string) (*order.Order, error)
	SetPaid(ctx context.Context, id string, paid bool) error
}

type Orchestrator struct {
	Orders  OrderStore
	Stock   client.Stock
	Payment client.Payment
	Locks   *dlock.Manager

	// LockTTL bounds the whole saga. It must comfortably exceed the sum of
	// the per-step client timeouts; see dlock's lease semantics.
	LockTTL time.Duration

	Events Notifier
}

type Result struct {
	OrderID string `json:"order_id"`
	Amount  int    `json:"amount"`
}

// Checkout drives the saga for one order under the order's lock. It returns
// the charged amount on success. On failure the error chain carries the
// failing step's kind and, when steps had committed, a *saga.Report with
// the outcome of every compensating call.
//
// The orchestrator holds only the order lock. Item and user locks are taken
// by the stock and payment services inside each remote call, so no caller
// ever holds two entity locks and lock ordering cannot deadlock.
func (co *Orchestrator) Checkout(ctx context.Context, orderID string) (*Result, error) {
	ttl := co.LockTTL
	if ttl <= 0 {
		ttl = dlock.DefaultTTL
	}

	var res *Result
	err := co.Locks.WithLock(ctx, orderID, ttl, func(ctx context.Context) error {
		o, err := co.Orders.Find(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Paid {
			return apperr.Conflict("order %s is already paid", orderID)
		}
		if len(o.Items) == 0 {
			return apperr.Invalid("order %s is empty", orderID)
		}

		if report := saga.Execute(ctx, co.steps(o)); report != nil {
			log.Printf("checkout %s failed at %s: %v (%s)", orderID, report.FailedStep, report.Cause, report.Summary())
			if co.Events != nil {
				co.Events.Failed(ctx, o, report.FailedStep, report.Cause, report.Summary())
			}
			return report
		}

		res = &Result{OrderID: o.OrderID, Amount: o.TotalCost}
		if co.Events != nil {
			co.Events.Succeeded(ctx, o, o.TotalCost)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// steps builds the saga: one reservation per line item in the order's
// insertion order, then the debit, then the paid flag. Each reservation
// compensates by adding the same quantity back; the debit compensates by
// cancelling the payment. The final write has no compensation of its own:
// if it fails, the unwind refunds the debit and restores every reservation.
func (co *Orchestrator) steps(o *order.Order) []saga.Step {
	steps := make([]saga.Step, 0, len(o.Items)+2)
	for _, l := range o.Items {
		steps = append(steps, saga.Step{
			Name: fmt.Sprintf("reserve %s x%d", l.ItemID, l.Qty),
			Run: func(ctx context.Context) error {
				_, err := co.Stock.Subtract(ctx, l.ItemID, l.Qty)
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := co.Stock.Add(ctx, l.ItemID, l.Qty)
				return err
			},
		})
	}
	steps = append(steps, saga.Step{
		Name: "pay",
		Run: func(ctx context.Context) error {
			return co.Payment.Pay(ctx, o.UserID, o.OrderID, o.TotalCost)
		},
		Compensate: func(ctx context.Context) error {
			return co.Payment.Cancel(ctx, o.UserID, o.OrderID)
		},
	})
	steps = append(steps, saga.Step{
		Name: "mark paid",
		Run: func(ctx context.Context) error {
			return co.Orders.SetPaid(ctx, o.OrderID, true)
		},
	})
	return steps
}
