package kafka

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when processing succeeded and the offset may
// be committed. A failed message is retried on the next rebalance/restart.
type Handler func(ctx context.Context, m kafka.Message) error

// Consumer reads one group subscription across one or more topics and fans
// messages out to a worker pool. Offsets are committed per message, after
// the handler succeeds.
type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        group,
			GroupTopics:    topics,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // commit per message
		}),
		workers: workers,
	}
}

// Start blocks until ctx is done or the reader fails. A handler error logs
// and backs off briefly; it never kills the pool.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					log.Printf("kafka: handler %s/%d@%d: %v", m.Topic, m.Partition, m.Offset, err)
					time.Sleep(200 * time.Millisecond)
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					log.Printf("kafka: commit %s/%d@%d: %v", m.Topic, m.Partition, m.Offset, err)
				}
			}
		}()
	}

	var readErr error
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
				readErr = err
			}
			break
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil
		}
	}
	close(jobs)
	wg.Wait()
	return readErr
}
