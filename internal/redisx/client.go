package redisx

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shard-checkout/internal/shard"
)

func New(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Shards is an explicit set of independent redis instances. Placement is by
// id suffix (internal/shard), not by redis.Ring's consistent hashing, because
// the id itself must keep encoding where the entity lives.
type Shards struct {
	clients []*redis.Client
}

func NewShards(addrs []string, password string, db int) *Shards {
	cs := make([]*redis.Client, 0, len(addrs))
	for _, a := range addrs {
		cs = append(cs, New(a, password, db))
	}
	return &Shards{clients: cs}
}

// FromClients wires pre-built clients, for tests.
func FromClients(cs ...*redis.Client) *Shards { return &Shards{clients: cs} }

// ForKey resolves the shard holding the entity with the given id.
func (s *Shards) ForKey(id string) (*redis.Client, error) {
	idx, err := shard.Index(id, len(s.clients))
	if err != nil {
		return nil, err
	}
	return s.clients[idx], nil
}

func (s *Shards) All() []*redis.Client { return s.clients }

func (s *Shards) Len() int { return len(s.clients) }

func (s *Shards) Close() {
	for _, c := range s.clients {
		_ = c.Close()
	}
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}
