package event

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	kafkax "github.com/ariefcatur/go-shard-checkout/internal/kafka"
	"github.com/ariefcatur/go-shard-checkout/internal/order"
)

// Publisher turns checkout outcomes into kafka events. It satisfies the
// orchestrator's Notifier; publishing is fire-and-forget so a slow or absent
// broker never blocks a checkout.
type Publisher struct {
	Succeed *kafkax.Producer // checkout.succeeded
	Fail    *kafkax.Producer // checkout.failed
	Service string
}

func (p *Publisher) Succeeded(ctx context.Context, o *order.Order, amount int) {
	ev := New(TypeCheckoutSucceeded, p.Service, o.OrderID, CheckoutSucceededPayload{
		OrderID: o.OrderID,
		UserID:  o.UserID,
		Amount:  amount,
	})
	p.Succeed.Publish(Key(o.OrderID), MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(TypeCheckoutSucceeded)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (p *Publisher) Failed(ctx context.Context, o *order.Order, failedStep string, cause error, compensation string) {
	ev := New(TypeCheckoutFailed, p.Service, o.OrderID, CheckoutFailedPayload{
		OrderID:      o.OrderID,
		UserID:       o.UserID,
		FailedStep:   failedStep,
		Reason:       string(apperr.KindOf(cause)) + ": " + cause.Error(),
		Compensation: compensation,
	})
	p.Fail.Publish(Key(o.OrderID), MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(TypeCheckoutFailed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
