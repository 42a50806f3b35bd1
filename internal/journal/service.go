package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-shard-checkout/internal/event"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

type inserter interface {
	Insert(ctx context.Context, e Entry) error
}

// Service is the kafka handler turning checkout events into journal rows.
type Service struct {
	Repo        inserter
	Redis       *redis.Client
	ServiceName string
}

// Handle is mounted on the consumer for both checkout topics. Unknown event
// types are skipped, duplicates are dropped via the redis dedup key (the
// table's unique event_id is the durable backstop).
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
		seen, _ := redisx.Exists(ctx, s.Redis, dkey)
		if seen {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	entry, ok, err := toEntry(env)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.Repo.Insert(ctx, entry)
}

func toEntry(env event.Envelope) (Entry, bool, error) {
	switch env.EventType {
	case event.TypeCheckoutSucceeded:
		p, err := event.Unwrap[event.CheckoutSucceededPayload](env.Payload)
		if err != nil {
			return Entry{}, false, fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		return Entry{
			EventID:    env.EventID,
			OrderID:    p.OrderID,
			UserID:     p.UserID,
			Status:     StatusSucceeded,
			Amount:     p.Amount,
			OccurredAt: env.OccurredAt,
		}, true, nil
	case event.TypeCheckoutFailed:
		p, err := event.Unwrap[event.CheckoutFailedPayload](env.Payload)
		if err != nil {
			return Entry{}, false, fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		return Entry{
			EventID:      env.EventID,
			OrderID:      p.OrderID,
			UserID:       p.UserID,
			Status:       StatusFailed,
			FailedStep:   p.FailedStep,
			Reason:       p.Reason,
			Compensation: p.Compensation,
			OccurredAt:   env.OccurredAt,
		}, true, nil
	default:
		return Entry{}, false, nil
	}
}
