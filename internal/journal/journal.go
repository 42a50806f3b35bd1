// Package journal persists every checkout outcome into postgres. The table
// is insert-only and fed from the checkout event topics, so operators can
// audit partial restorations after the fact. The saga itself never reads
// it.
package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Entry struct {
	EventID      string
	OrderID      string
	UserID       string
	Status       string // succeeded | failed
	Amount       int
	FailedStep   string
	Reason       string
	Compensation string
	OccurredAt   time.Time
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type Repo struct{ DB *pgxpool.Pool }

// Migrate creates the journal table. Idempotent, run at consumer startup.
func (r *Repo) Migrate(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS checkout_journal (
			id            BIGSERIAL PRIMARY KEY,
			event_id      TEXT NOT NULL UNIQUE,
			order_id      TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			status        TEXT NOT NULL,
			amount        BIGINT NOT NULL DEFAULT 0,
			failed_step   TEXT NOT NULL DEFAULT '',
			reason        TEXT NOT NULL DEFAULT '',
			compensation  TEXT NOT NULL DEFAULT '',
			occurred_at   TIMESTAMPTZ NOT NULL,
			recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS checkout_journal_order_idx ON checkout_journal (order_id);
	`)
	return err
}

// Insert records one outcome. The unique event_id makes redelivered events
// no-ops even when the redis dedup key has expired.
func (r *Repo) Insert(ctx context.Context, e Entry) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO checkout_journal
			(event_id, order_id, user_id, status, amount, failed_step, reason, compensation, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.OrderID, e.UserID, e.Status, e.Amount, e.FailedStep, e.Reason, e.Compensation, e.OccurredAt)
	return err
}

// ByOrder lists an order's outcomes, oldest first.
func (r *Repo) ByOrder(ctx context.Context, orderID string) ([]Entry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT event_id, order_id, user_id, status, amount, failed_step, reason, compensation, occurred_at
		FROM checkout_journal WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EventID, &e.OrderID, &e.UserID, &e.Status, &e.Amount,
			&e.FailedStep, &e.Reason, &e.Compensation, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
