// Package dlock grants time-bounded mutual-exclusion leases on entity keys
// across a set of redis lock masters.
//
// A lease is held only when a majority of masters accepted it within the
// validity window; partial grants are rolled back and the caller gets
// ErrBusy. Leases auto-expire after their TTL, so a crashed holder blocks the
// next waiter for at most one TTL. Release is best-effort and token-checked:
// a lease never deletes a lock it no longer owns.
package dlock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

// ErrBusy means the quorum was not reached inside the acquire budget. The
// caller must not touch entity state.
var ErrBusy = apperr.Conflict("entity is locked, try later")

const (
	DefaultTTL           = 5 * time.Second
	defaultAcquireBudget = 2 * time.Second
	defaultRetryDelay    = 50 * time.Millisecond
	defaultMasterTimeout = 500 * time.Millisecond

	// Slice of the TTL reserved for clock drift between masters.
	driftFactor = 0.01
)

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Manager hands out leases. Master placement is resolved per key: the quorum
// configuration locks on a fixed master set, the sharded configuration locks
// on the single shard that owns the entity (the original single-authority
// mode).
type Manager struct {
	pick func(key string) ([]*redis.Client, error)

	AcquireBudget time.Duration
	RetryDelay    time.Duration
	MasterTimeout time.Duration
}

func NewQuorum(masters []*redis.Client) *Manager {
	return &Manager{
		pick:          func(string) ([]*redis.Client, error) { return masters, nil },
		AcquireBudget: defaultAcquireBudget,
		RetryDelay:    defaultRetryDelay,
		MasterTimeout: defaultMasterTimeout,
	}
}

func NewSharded(shards *redisx.Shards) *Manager {
	return &Manager{
		pick: func(key string) ([]*redis.Client, error) {
			c, err := shards.ForKey(key)
			if err != nil {
				return nil, err
			}
			return []*redis.Client{c}, nil
		},
		AcquireBudget: defaultAcquireBudget,
		RetryDelay:    defaultRetryDelay,
		MasterTimeout: defaultMasterTimeout,
	}
}

// Lease is a held lock. Zero value is not usable; only Acquire builds one.
type Lease struct {
	key     string
	token   string
	masters []*redis.Client
	timeout time.Duration
}

// Acquire blocks until the key's lease is granted or the acquire budget runs
// out. ttl must comfortably exceed the critical section: an expired lease is
// simply gone, and the next caller gets the key.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	masters, err := m.pick(key)
	if err != nil {
		return nil, err
	}
	quorum := len(masters)/2 + 1
	lockKey := fmt.Sprintf(redisx.KeyLock, key)
	token := uuid.NewString()
	deadline := time.Now().Add(m.AcquireBudget)

	for {
		start := time.Now()
		granted := make([]*redis.Client, 0, len(masters))
		for _, c := range masters {
			if m.setNX(ctx, c, lockKey, token, ttl) {
				granted = append(granted, c)
			}
		}
		drift := time.Duration(driftFactor*float64(ttl)) + 2*time.Millisecond
		if len(granted) >= quorum && time.Since(start) < ttl-drift {
			return &Lease{key: key, token: token, masters: masters, timeout: m.MasterTimeout}, nil
		}

		// Partial grant: roll back before anyone mistakes it for held.
		unlock(ctx, granted, lockKey, token, m.MasterTimeout)

		if time.Now().After(deadline) {
			return nil, ErrBusy
		}
		delay := m.RetryDelay + rand.N(m.RetryDelay)
		select {
		case <-ctx.Done():
			return nil, ErrBusy
		case <-time.After(delay):
		}
	}
}

func (m *Manager) setNX(ctx context.Context, c *redis.Client, key, token string, ttl time.Duration) bool {
	cctx, cancel := context.WithTimeout(ctx, m.MasterTimeout)
	defer cancel()
	ok, err := c.SetNX(cctx, key, token, ttl).Result()
	return err == nil && ok
}

// Release drops the lease on every master. Best-effort: a master that cannot
// be reached lets the lock expire naturally, which only costs the next waiter
// some latency. The returned error is for logging.
func (l *Lease) Release(ctx context.Context) error {
	lockKey := fmt.Sprintf(redisx.KeyLock, l.key)
	return unlock(ctx, l.masters, lockKey, l.token, l.timeout)
}

func unlock(ctx context.Context, masters []*redis.Client, lockKey, token string, timeout time.Duration) error {
	var errs []error
	for _, c := range masters {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		if err := unlockScript.Run(cctx, c, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}

// WithLock runs fn inside the key's critical section. The release happens on
// every exit path, including fn panics unwinding through here.
func (m *Manager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := m.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release(ctx) }()
	return fn(ctx)
}
