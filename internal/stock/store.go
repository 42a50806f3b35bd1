// Package stock owns item records: unit price fixed at creation, available
// quantity mutated by add (restock, compensation) and subtract (reservation).
// Quantity never goes negative; a subtract that would overdraw is rejected,
// not clamped.
package stock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

type Item struct {
	ItemID string `json:"item_id"`
	Price  int    `json:"price"`
	Stock  int    `json:"stock"`
}

type Store struct {
	Shards *redisx.Shards
}

func newID() string { return fmt.Sprintf("item:%d", rand.Uint32()) }

func (s *Store) Create(ctx context.Context, price int) (*Item, error) {
	if price < 0 {
		return nil, apperr.Invalid("price must be >= 0, got %d", price)
	}
	for {
		id := newID()
		db, err := s.Shards.ForKey(id)
		if err != nil {
			return nil, err
		}
		taken, err := db.HExists(ctx, id, "item_id").Result()
		if err != nil {
			return nil, apperr.Storage(err, "item create")
		}
		if taken {
			continue
		}
		it := &Item{ItemID: id, Price: price}
		err = db.HSet(ctx, id, map[string]any{
			"item_id": it.ItemID,
			"price":   strconv.Itoa(it.Price),
			"stock":   strconv.Itoa(it.Stock),
		}).Err()
		if err != nil {
			return nil, apperr.Storage(err, "item create")
		}
		return it, nil
	}
}

func (s *Store) Find(ctx context.Context, id string) (*Item, error) {
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return nil, err
	}
	m, err := db.HGetAll(ctx, id).Result()
	if err != nil {
		return nil, apperr.Storage(err, "item find %s", id)
	}
	if len(m) == 0 {
		return nil, apperr.NotFound("item %s does not exist", id)
	}
	it := &Item{ItemID: m["item_id"]}
	if it.Price, err = strconv.Atoi(m["price"]); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "item %s: bad price field", id)
	}
	if it.Stock, err = strconv.Atoi(m["stock"]); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "item %s: bad stock field", id)
	}
	return it, nil
}

// Add restocks and returns the new quantity. HINCRBY is atomic on its shard,
// so no application lock is needed for a bare add.
func (s *Store) Add(ctx context.Context, id string, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperr.Invalid("amount must be > 0, got %d", amount)
	}
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return 0, err
	}
	taken, err := db.HExists(ctx, id, "item_id").Result()
	if err != nil {
		return 0, apperr.Storage(err, "item add %s", id)
	}
	if !taken {
		return 0, apperr.NotFound("item %s does not exist", id)
	}
	n, err := db.HIncrBy(ctx, id, "stock", int64(amount)).Result()
	if err != nil {
		return 0, apperr.Storage(err, "item add %s", id)
	}
	return int(n), nil
}

// Subtract reserves stock. The availability check and the decrement are a
// read-modify-write, so the caller must hold the item's lock for the whole
// call.
func (s *Store) Subtract(ctx context.Context, id string, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperr.Invalid("amount must be > 0, got %d", amount)
	}
	it, err := s.Find(ctx, id)
	if err != nil {
		return 0, err
	}
	if it.Stock < amount {
		return 0, apperr.Insufficient("cannot remove %d of item %s from a stock of %d", amount, id, it.Stock)
	}
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return 0, err
	}
	n, err := db.HIncrBy(ctx, id, "stock", int64(-amount)).Result()
	if err != nil {
		return 0, apperr.Storage(err, "item subtract %s", id)
	}
	return int(n), nil
}
