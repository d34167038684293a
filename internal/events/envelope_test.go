package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	valid, err := NewEnvelope(EventOrderItemPlaced, 1, "order:o-1:book:7", "7", OrderItemPlaced{OrderID: "o-1", BookID: 7, Quantity: 1})
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(e *Envelope)
		wantErr bool
	}{
		{"valid", func(*Envelope) {}, false},
		{"missing id", func(e *Envelope) { e.EventID = "" }, true},
		{"missing name", func(e *Envelope) { e.EventName = "" }, true},
		{"zero version", func(e *Envelope) { e.EventVersion = 0 }, true},
		{"missing key", func(e *Envelope) { e.IdempotencyKey = "" }, true},
		{"missing payload", func(e *Envelope) { e.Payload = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			body, err := json.Marshal(e)
			require.NoError(t, err)

			got, err := Decode(body)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			require.Equal(t, valid.EventID, got.EventID)

			var p OrderItemPlaced
			require.NoError(t, got.DecodePayload(&p))
			require.Equal(t, int64(7), p.BookID)
		})
	}

	_, err = Decode([]byte("not json"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestPublisher_ItemPlacedEnvelope(t *testing.T) {
	ctx := context.Background()
	bus := newMemBus()
	pub := NewPublisher(bus, "order", zerolog.Nop())

	require.NoError(t, pub.PublishItemPlaced(ctx, OrderItemPlaced{OrderID: "o-1", UserID: "U1", BookID: 7, Quantity: 2}))
	require.Len(t, bus.published, 1)
	m := bus.published[0]
	require.Equal(t, RKOrderItemPlaced, m.RoutingKey)
	require.Equal(t, "7", m.Key)

	env, err := Decode(m.Body)
	require.NoError(t, err)
	require.Equal(t, EventOrderItemPlaced, env.EventName)
	require.Equal(t, 1, env.EventVersion)
	require.Equal(t, "order:o-1:book:7", env.IdempotencyKey)
	require.Equal(t, "order", env.Producer)

	bus.err = errors.New("channel closed")
	require.Error(t, pub.PublishItemPlaced(ctx, OrderItemPlaced{OrderID: "o-1", BookID: 8, Quantity: 1}))
}

func TestPublisher_PaymentResult(t *testing.T) {
	bus := newMemBus()
	pub := NewPublisher(bus, "payment", zerolog.Nop())

	require.NoError(t, pub.PublishPaymentResult(context.Background(), false, PaymentResult{OrderID: "o-1", Reason: "declined"}))
	require.Equal(t, RKPaymentFailed, bus.published[0].RoutingKey)
	env, err := Decode(bus.published[0].Body)
	require.NoError(t, err)
	require.Equal(t, EventPaymentFailed, env.EventName)
}

func TestLRUDeduper(t *testing.T) {
	ctx := context.Background()
	d, err := NewLRUDeduper(2)
	require.NoError(t, err)

	require.NoError(t, d.Mark(ctx, "a"))
	require.NoError(t, d.Mark(ctx, "b"))
	require.NoError(t, d.Mark(ctx, "c"))

	seen, _ := d.Seen(ctx, "a")
	require.False(t, seen, "oldest key is evicted")
	seen, _ = d.Seen(ctx, "c")
	require.True(t, seen)

	_, err = NewLRUDeduper(0)
	require.Error(t, err)
}

type fakeRedis struct {
	keys   map[string]time.Duration
	exists error
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.exists != nil {
		return redis.NewIntResult(0, f.exists)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func TestRedisDeduper(t *testing.T) {
	ctx := context.Background()
	rdb := &fakeRedis{keys: map[string]time.Duration{}}
	d := NewRedisDeduper(rdb, "dedup:stock:", time.Hour)

	seen, err := d.Seen(ctx, "order:o-1:book:7")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, d.Mark(ctx, "order:o-1:book:7"))
	require.NoError(t, d.Mark(ctx, "order:o-1:book:7"))
	require.Equal(t, time.Hour, rdb.keys["dedup:stock:order:o-1:book:7"])

	seen, err = d.Seen(ctx, "order:o-1:book:7")
	require.NoError(t, err)
	require.True(t, seen)

	rdb.exists = errors.New("connection refused")
	_, err = d.Seen(ctx, "order:o-1:book:7")
	require.Error(t, err)
}
