package events

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/bookstore-orders/internal/catalog"
	"github.com/ahinestrog/bookstore-orders/internal/storage"
)

// memBus records published messages and lets tests redeliver them.
type memBus struct {
	mu        sync.Mutex
	published []Message
	handlers  map[string]Handler
	err       error
}

func newMemBus() *memBus { return &memBus{handlers: map[string]Handler{}} }

func (b *memBus) Publish(_ context.Context, m Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, m)
	return nil
}

func (b *memBus) Subscribe(_ context.Context, _ string, keys []string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		b.handlers[k] = h
	}
	return nil
}

func (b *memBus) Close() error { return nil }

// deliverAll hands every published message to its subscriber.
func (b *memBus) deliverAll(ctx context.Context) error {
	b.mu.Lock()
	msgs := append([]Message(nil), b.published...)
	b.mu.Unlock()
	for _, m := range msgs {
		h := b.handlers[m.RoutingKey]
		if h == nil {
			continue
		}
		if err := h(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func newStockGate(t *testing.T, books ...catalog.Book) (*catalog.Gate, catalog.Store) {
	t.Helper()
	db, err := storage.Open(storage.DriverModernc, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	store, err := catalog.NewSQLiteStore(db, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(context.Background(), books))
	return catalog.NewGate(store, zerolog.Nop()), store
}

func stock(t *testing.T, s catalog.Store, id int64) int32 {
	t.Helper()
	b, err := s.GetBook(context.Background(), id)
	require.NoError(t, err)
	return b.Stock
}

func TestStockListener_RedeliveryDecrementsOnce(t *testing.T) {
	ctx := context.Background()
	gate, store := newStockGate(t, catalog.Book{ID: 7, Title: "Delirio", Price: 1000, Stock: 5})
	bus := newMemBus()
	l := NewStockListener(gate, nil, ModeApply, zerolog.Nop())
	require.NoError(t, l.Start(ctx, bus, "catalog.stock"))

	// direct path first, as the order saga does
	res, err := gate.ReserveStock(ctx, catalog.ReservationKey{OrderID: "o-1", BookID: 7}, 2)
	require.NoError(t, err)
	require.True(t, res.Success)

	pub := NewPublisher(bus, "order", zerolog.Nop())
	require.NoError(t, pub.PublishItemPlaced(ctx, OrderItemPlaced{OrderID: "o-1", UserID: "U1", BookID: 7, Quantity: 2}))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.deliverAll(ctx))
	}
	require.Equal(t, int32(3), stock(t, store, 7))
}

func TestStockListener_AppliesMissedReservation(t *testing.T) {
	ctx := context.Background()
	gate, store := newStockGate(t, catalog.Book{ID: 7, Title: "Delirio", Price: 1000, Stock: 5})
	dedup, err := NewLRUDeduper(16)
	require.NoError(t, err)
	bus := newMemBus()
	l := NewStockListener(gate, dedup, ModeApply, zerolog.Nop())
	require.NoError(t, l.Start(ctx, bus, "catalog.stock"))

	pub := NewPublisher(bus, "order", zerolog.Nop())
	require.NoError(t, pub.PublishItemPlaced(ctx, OrderItemPlaced{OrderID: "o-9", UserID: "U1", BookID: 7, Quantity: 2}))
	require.NoError(t, bus.deliverAll(ctx))
	require.NoError(t, bus.deliverAll(ctx))
	require.Equal(t, int32(3), stock(t, store, 7))

	seen, err := dedup.Seen(ctx, ItemKey("o-9", 7))
	require.NoError(t, err)
	require.True(t, seen)

	// the saga retrying the same item later is a duplicate too
	res, err := gate.ReserveStock(ctx, catalog.ReservationKey{OrderID: "o-9", BookID: 7}, 2)
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.Equal(t, int32(3), stock(t, store, 7))
}

func TestStockListener_ObserveModeNeverMutates(t *testing.T) {
	ctx := context.Background()
	gate, store := newStockGate(t, catalog.Book{ID: 7, Title: "Delirio", Price: 1000, Stock: 5})
	bus := newMemBus()
	l := NewStockListener(gate, nil, ModeObserve, zerolog.Nop())
	require.NoError(t, l.Start(ctx, bus, "catalog.stock"))

	pub := NewPublisher(bus, "order", zerolog.Nop())
	require.NoError(t, pub.PublishItemPlaced(ctx, OrderItemPlaced{OrderID: "o-1", UserID: "U1", BookID: 7, Quantity: 2}))
	require.NoError(t, bus.deliverAll(ctx))
	require.Equal(t, int32(5), stock(t, store, 7))
}

func TestStockListener_DropsMalformed(t *testing.T) {
	ctx := context.Background()
	gate, store := newStockGate(t, catalog.Book{ID: 7, Title: "Delirio", Price: 1000, Stock: 5})
	l := NewStockListener(gate, nil, ModeApply, zerolog.Nop())

	good, err := NewEnvelope(EventOrderItemPlaced, 1, ItemKey("o-1", 7), "7",
		OrderItemPlaced{OrderID: "o-1", BookID: 7, Quantity: 2})
	require.NoError(t, err)
	wrongKey := good
	wrongKey.IdempotencyKey = ItemKey("o-2", 7)
	badPayload := good
	badPayload.Payload = json.RawMessage(`{"orderId":"o-1","bookId":"seven","quantity":2}`)
	zeroQty := good
	zeroQty.Payload = json.RawMessage(`{"orderId":"o-1","bookId":7,"quantity":0}`)

	bodies := [][]byte{
		[]byte(`7:2`),
		[]byte(`{"eventName":"order.item.placed"}`),
		mustJSON(t, wrongKey),
		mustJSON(t, badPayload),
		mustJSON(t, zeroQty),
	}
	for _, b := range bodies {
		require.NoError(t, l.Handle(ctx, Message{RoutingKey: RKOrderItemPlaced, Body: b}))
	}
	require.Equal(t, int32(5), stock(t, store, 7))
}

type failingReserver struct{ calls int }

func (f *failingReserver) ReserveStock(context.Context, catalog.ReservationKey, int32) (catalog.DecreaseResult, error) {
	f.calls++
	return catalog.DecreaseResult{}, errors.New("database is locked")
}

func TestStockListener_StoreFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	dedup, err := NewLRUDeduper(16)
	require.NoError(t, err)
	f := &failingReserver{}
	l := NewStockListener(f, dedup, ModeApply, zerolog.Nop())

	env, err := NewEnvelope(EventOrderItemPlaced, 1, ItemKey("o-1", 7), "7",
		OrderItemPlaced{OrderID: "o-1", BookID: 7, Quantity: 2})
	require.NoError(t, err)

	require.Error(t, l.Handle(ctx, Message{RoutingKey: RKOrderItemPlaced, Body: mustJSON(t, env)}))
	require.Equal(t, 1, f.calls)
	seen, _ := dedup.Seen(ctx, ItemKey("o-1", 7))
	require.False(t, seen)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
