package order

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

// Store owns the authoritative order records, one redis hash per order on
// the shard its id hashes to. Callers serialize mutations with the order's
// dlock; the store itself only guarantees that a single call is atomic.
type Store struct {
	Shards *redisx.Shards
}

func newID() string { return fmt.Sprintf("order:%d", rand.Uint32()) }

// Create stores a fresh empty order and returns its id. Ids are re-rolled on
// the (unlikely) collision, same as the source of truth did.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	for {
		id := newID()
		db, err := s.Shards.ForKey(id)
		if err != nil {
			return "", err
		}
		taken, err := db.HExists(ctx, id, "order_id").Result()
		if err != nil {
			return "", apperr.Storage(err, "order create")
		}
		if taken {
			continue
		}
		o := &Order{OrderID: id, UserID: userID, Items: []Line{}}
		m, err := o.toMap()
		if err != nil {
			return "", apperr.Storage(err, "order create")
		}
		if err := db.HSet(ctx, id, m).Err(); err != nil {
			return "", apperr.Storage(err, "order create")
		}
		return id, nil
	}
}

func (s *Store) Find(ctx context.Context, id string) (*Order, error) {
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return nil, err
	}
	m, err := db.HGetAll(ctx, id).Result()
	if err != nil {
		return nil, apperr.Storage(err, "order find %s", id)
	}
	if len(m) == 0 {
		return nil, apperr.NotFound("order %s does not exist", id)
	}
	return fromMap(m)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return err
	}
	n, err := db.Del(ctx, id).Result()
	if err != nil {
		return apperr.Storage(err, "order delete %s", id)
	}
	if n == 0 {
		return apperr.NotFound("order %s does not exist", id)
	}
	return nil
}

// UpdateItems writes the item list and adjusts the accumulated cost in one
// transactional pipeline: both fields change together or neither does, so
// cost always matches items. Returns the new total.
func (s *Store) UpdateItems(ctx context.Context, id string, items []Line, costDelta int) (int, error) {
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return 0, err
	}
	b, err := json.Marshal(items)
	if err != nil {
		return 0, apperr.Storage(err, "order update %s", id)
	}
	pipe := db.TxPipeline()
	pipe.HSet(ctx, id, "items", string(b))
	incr := pipe.HIncrBy(ctx, id, "total_cost", int64(costDelta))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apperr.Storage(err, "order update %s", id)
	}
	return int(incr.Val()), nil
}

func (s *Store) SetPaid(ctx context.Context, id string, paid bool) error {
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return err
	}
	if err := db.HSet(ctx, id, "paid", strconv.FormatBool(paid)).Err(); err != nil {
		return apperr.Storage(err, "order set paid %s", id)
	}
	return nil
}
