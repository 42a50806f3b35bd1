// Package event defines the checkout lifecycle events the order service
// publishes. Consumers (the journal, dashboards) get an envelope v1 with a
// per-type payload; the partition key is the order id so one order's events
// keep their relative order.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeCheckoutSucceeded = "CheckoutSucceeded"
	TypeCheckoutFailed    = "CheckoutFailed"
)

const (
	TopicCheckoutSucceeded = "checkout.succeeded"
	TopicCheckoutFailed    = "checkout.failed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type CheckoutSucceededPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Amount  int    `json:"amount"`
}

type CheckoutFailedPayload struct {
	OrderID      string `json:"order_id"`
	UserID       string `json:"user_id"`
	FailedStep   string `json:"failed_step"`
	Reason       string `json:"reason"`
	Compensation string `json:"compensation"`
}

// New wraps a payload in a fresh envelope. Panics on a payload that cannot
// marshal; payload types are ours, so that is a programming error.
func New(eventType, producer, correlationID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       MustMarshal(payload),
	}
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Unwrap decodes the payload of a decoded envelope.
func Unwrap[T any](payload json.RawMessage) (T, error) {
	var t T
	err := json.Unmarshal(payload, &t)
	return t, err
}

// Key is the kafka partition key for an order's events.
func Key(orderID string) []byte { return []byte(orderID) }
