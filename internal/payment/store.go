// Package payment owns user credit ledgers and the per-order payment
// records. Credit never goes negative, an order is debited successfully at
// most once while its record is paid, and a cancel refunds exactly the
// recorded amount (guarded against double refunds).
package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

type User struct {
	UserID string `json:"user_id"`
	Credit int    `json:"credit"`
}

type Payment struct {
	OrderID string `json:"order_id"`
	Amount  int    `json:"amount"`
	Paid    bool   `json:"paid"`
	Ref     string `json:"ref"`
}

type Store struct {
	Shards *redisx.Shards
}

func newUserID() string { return fmt.Sprintf("user:%d", rand.Uint32()) }

// Payment records share the shard set with users. The prefix keeps the key
// spaces apart while the order id suffix still decides placement.
func paymentKey(orderID string) string { return "payment:" + orderID }

func (s *Store) CreateUser(ctx context.Context) (*User, error) {
	for {
		id := newUserID()
		db, err := s.Shards.ForKey(id)
		if err != nil {
			return nil, err
		}
		taken, err := db.HExists(ctx, id, "user_id").Result()
		if err != nil {
			return nil, apperr.Storage(err, "user create")
		}
		if taken {
			continue
		}
		u := &User{UserID: id}
		err = db.HSet(ctx, id, map[string]any{
			"user_id": u.UserID,
			"credit":  strconv.Itoa(u.Credit),
		}).Err()
		if err != nil {
			return nil, apperr.Storage(err, "user create")
		}
		return u, nil
	}
}

func (s *Store) FindUser(ctx context.Context, id string) (*User, error) {
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return nil, err
	}
	m, err := db.HGetAll(ctx, id).Result()
	if err != nil {
		return nil, apperr.Storage(err, "user find %s", id)
	}
	if len(m) == 0 {
		return nil, apperr.NotFound("user %s does not exist", id)
	}
	u := &User{UserID: m["user_id"]}
	if u.Credit, err = strconv.Atoi(m["credit"]); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "user %s: bad credit field", id)
	}
	return u, nil
}

// AddFunds credits the user. A bare HINCRBY is atomic on its shard, no
// application lock required.
func (s *Store) AddFunds(ctx context.Context, id string, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperr.Invalid("amount must be > 0, got %d", amount)
	}
	db, err := s.Shards.ForKey(id)
	if err != nil {
		return 0, err
	}
	taken, err := db.HExists(ctx, id, "user_id").Result()
	if err != nil {
		return 0, apperr.Storage(err, "add funds %s", id)
	}
	if !taken {
		return 0, apperr.NotFound("user %s does not exist", id)
	}
	n, err := db.HIncrBy(ctx, id, "credit", int64(amount)).Result()
	if err != nil {
		return 0, apperr.Storage(err, "add funds %s", id)
	}
	return int(n), nil
}

// Pay debits the user for the order. Balance check and debit are a
// read-modify-write: the caller holds the user's lock around this call. A
// record that is already paid rejects the debit with a conflict before any
// state changes.
func (s *Store) Pay(ctx context.Context, userID, orderID string, amount int) (*Payment, error) {
	if amount <= 0 {
		return nil, apperr.Invalid("amount must be > 0, got %d", amount)
	}
	u, err := s.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec, err := s.record(ctx, orderID)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}
	if rec != nil && rec.Paid {
		return nil, apperr.Conflict("order %s has been paid already", orderID)
	}
	if u.Credit < amount {
		return nil, apperr.Insufficient("insufficient credit: have %d, need %d", u.Credit, amount)
	}

	udb, err := s.Shards.ForKey(userID)
	if err != nil {
		return nil, err
	}
	if err := udb.HIncrBy(ctx, userID, "credit", int64(-amount)).Err(); err != nil {
		return nil, apperr.Storage(err, "pay %s", orderID)
	}

	p := &Payment{OrderID: orderID, Amount: amount, Paid: true, Ref: uuid.NewString()}
	pdb, err := s.Shards.ForKey(paymentKey(orderID))
	if err != nil {
		return nil, err
	}
	err = pdb.HSet(ctx, paymentKey(orderID), map[string]any{
		"order_id": p.OrderID,
		"amount":   strconv.Itoa(p.Amount),
		"paid":     strconv.FormatBool(p.Paid),
		"ref":      p.Ref,
	}).Err()
	if err != nil {
		return nil, apperr.Storage(err, "pay %s", orderID)
	}
	return p, nil
}

// Cancel refunds a paid order. Cancelling an unpaid or already-cancelled
// record is a conflict, so a double compensation can never double-refund.
func (s *Store) Cancel(ctx context.Context, userID, orderID string) (int, error) {
	if _, err := s.FindUser(ctx, userID); err != nil {
		return 0, err
	}
	rec, err := s.record(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if !rec.Paid {
		return 0, apperr.Conflict("payment for order %s has been cancelled already", orderID)
	}

	udb, err := s.Shards.ForKey(userID)
	if err != nil {
		return 0, err
	}
	n, err := udb.HIncrBy(ctx, userID, "credit", int64(rec.Amount)).Result()
	if err != nil {
		return 0, apperr.Storage(err, "cancel %s", orderID)
	}
	pdb, err := s.Shards.ForKey(paymentKey(orderID))
	if err != nil {
		return 0, err
	}
	if err := pdb.HSet(ctx, paymentKey(orderID), "paid", "false").Err(); err != nil {
		return 0, apperr.Storage(err, "cancel %s", orderID)
	}
	return int(n), nil
}

// Status reports whether the order's payment record is currently paid.
func (s *Store) Status(ctx context.Context, userID, orderID string) (bool, error) {
	if _, err := s.FindUser(ctx, userID); err != nil {
		return false, err
	}
	rec, err := s.record(ctx, orderID)
	if err != nil {
		return false, err
	}
	return rec.Paid, nil
}

func (s *Store) record(ctx context.Context, orderID string) (*Payment, error) {
	key := paymentKey(orderID)
	db, err := s.Shards.ForKey(key)
	if err != nil {
		return nil, err
	}
	m, err := db.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, apperr.Storage(err, "payment record %s", orderID)
	}
	if len(m) == 0 {
		return nil, apperr.NotFound("payment for order %s does not exist", orderID)
	}
	p := &Payment{OrderID: m["order_id"], Ref: m["ref"]}
	if p.Amount, err = strconv.Atoi(m["amount"]); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "payment %s: bad amount field", orderID)
	}
	if p.Paid, err = strconv.ParseBool(m["paid"]); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "payment %s: bad paid field", orderID)
	}
	return p, nil
}
