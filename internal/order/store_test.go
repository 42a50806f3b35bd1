package order

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	clients := make([]*redis.Client, 0, 3)
	for i := 0; i < 3; i++ {
		mr := miniredis.RunT(t)
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		clients = append(clients, c)
	}
	return &Store{Shards: redisx.FromClients(clients...)}
}

func TestCreateFindDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "user:7")
	require.NoError(t, err)
	assert.Regexp(t, `^order:\d+$`, id)

	o, err := s.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, o.OrderID)
	assert.Equal(t, "user:7", o.UserID)
	assert.Empty(t, o.Items)
	assert.False(t, o.Paid)
	assert.Zero(t, o.TotalCost)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Find(ctx, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	err = s.Delete(ctx, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFindMalformedID(t *testing.T) {
	s := newStore(t)
	_, err := s.Find(context.Background(), "not-an-id")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestUpdateItemsKeepsCostInSync(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "user:7")
	require.NoError(t, err)

	o, err := s.Find(ctx, id)
	require.NoError(t, err)
	o.Add("item:5")
	total, err := s.UpdateItems(ctx, id, o.Items, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, total)

	o.Add("item:5")
	o.Add("item:9")
	total, err = s.UpdateItems(ctx, id, o.Items, 10+25)
	require.NoError(t, err)
	assert.Equal(t, 45, total)

	got, err := s.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []Line{{ItemID: "item:5", Qty: 2}, {ItemID: "item:9", Qty: 1}}, got.Items)
	assert.Equal(t, 45, got.TotalCost)

	// Removing the last unit drops the line instead of leaving qty 0.
	require.True(t, got.Remove("item:9"))
	total, err = s.UpdateItems(ctx, id, got.Items, -25)
	require.NoError(t, err)
	assert.Equal(t, 20, total)

	got, err = s.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []Line{{ItemID: "item:5", Qty: 2}}, got.Items)
	assert.False(t, got.Remove("item:404"))
}

func TestItemsKeepInsertionOrder(t *testing.T) {
	o := &Order{}
	o.Add("item:3")
	o.Add("item:1")
	o.Add("item:2")
	o.Add("item:1")
	assert.Equal(t, []Line{{"item:3", 1}, {"item:1", 2}, {"item:2", 1}}, o.Items)
}

func TestSetPaid(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "user:7")
	require.NoError(t, err)
	require.NoError(t, s.SetPaid(ctx, id, true))

	o, err := s.Find(ctx, id)
	require.NoError(t, err)
	assert.True(t, o.Paid)
}
