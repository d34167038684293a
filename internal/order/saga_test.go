package order

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
	"github.com/ahinestrog/bookstore-orders/internal/events"
)

func TestPlaceOrder_ReservesOncePerItemAcrossRedeliveries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addToCart(t, "U1", 7, 2)

	o, err := f.saga.PlaceOrder(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, StatusCreated, o.Status)
	require.Equal(t, bookstore.Money(2000), o.TotalPrice)
	require.True(t, o.StockReserved)
	require.True(t, o.EventsPublished)
	require.True(t, o.CartCleared)
	require.Equal(t, int32(3), f.stockOf(t, 7))

	msgs := f.bus.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, events.RKOrderItemPlaced, msgs[0].RoutingKey)

	// the same event delivered twice more must not touch stock again
	l := events.NewStockListener(f.stock.Gate, nil, events.ModeApply, zerolog.Nop())
	for i := 0; i < 2; i++ {
		m := msgs[0]
		m.Redelivered = true
		require.NoError(t, l.Handle(ctx, m))
	}
	require.Equal(t, int32(3), f.stockOf(t, 7))

	c, err := f.carts.GetCart(ctx, "U1")
	require.NoError(t, err)
	require.Empty(t, c.Items)
}

func TestPlaceOrder_EmptyOrMissingCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.saga.PlaceOrder(ctx, "nobody")
	require.ErrorIs(t, err, bookstore.ErrEmptyOrMissingCart)

	f.addToCart(t, "U2", 7, 1)
	_, _, err = f.carts.ClearCart(ctx, "U2")
	require.NoError(t, err)
	_, err = f.saga.PlaceOrder(ctx, "U2")
	require.ErrorIs(t, err, bookstore.ErrEmptyOrMissingCart)

	_, err = f.saga.PlaceOrder(ctx, "")
	require.ErrorIs(t, err, bookstore.ErrInvalidArgument)

	list, err := f.orders.ListByUser(ctx, "U2")
	require.NoError(t, err)
	require.Empty(t, list)
	require.Equal(t, int32(5), f.stockOf(t, 7))
}

func TestPlaceOrder_SnapshotIgnoresLaterPriceChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addToCart(t, "U1", 7, 1)
	f.addToCart(t, "U1", 8, 2)

	o, err := f.saga.PlaceOrder(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, bookstore.Money(1000+2*2550), o.TotalPrice)

	_, err = f.stock.UpdatePrice(ctx, 7, 9999)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.TotalPrice, got.TotalPrice)
	require.Len(t, got.Items, 2)
	require.Equal(t, bookstore.Money(1000), got.Items[0].UnitPrice)
	require.Equal(t, "Delirio", got.Items[0].Title)
}

func TestPlaceOrder_StockTimeoutLeavesItemsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addToCart(t, "U1", 7, 2)
	f.stock.block = true
	f.saga.StepTimeout = 50 * time.Millisecond

	o, err := f.saga.PlaceOrder(ctx, "U1")
	require.NoError(t, err)
	require.False(t, o.StockReserved)
	require.Equal(t, ReservationPending, o.Items[0].Reservation)
	require.Equal(t, 1, o.Items[0].Attempts)
	require.Equal(t, int32(5), f.stockOf(t, 7))

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, ReservationPending, got.Items[0].Reservation)
	require.False(t, got.StockReserved)
	require.True(t, got.EventsPublished)
}

func TestPlaceOrder_InsufficientStockRejectsItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addToCart(t, "U1", 8, 3)
	f.addToCart(t, "U2", 8, 2)

	_, err := f.saga.PlaceOrder(ctx, "U1")
	require.NoError(t, err)

	o, err := f.saga.PlaceOrder(ctx, "U2")
	require.NoError(t, err)
	require.Equal(t, ReservationRejected, o.Items[0].Reservation)
	require.False(t, o.StockReserved)
	require.Equal(t, int32(0), f.stockOf(t, 8))
}

func TestPlaceOrder_PublishAndClearFailuresDoNotFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addToCart(t, "U1", 7, 1)
	f.bus.setErr(errDown)
	f.carts.clearErr = errDown

	o, err := f.saga.PlaceOrder(ctx, "U1")
	require.NoError(t, err)
	require.True(t, o.StockReserved)
	require.False(t, o.EventsPublished)
	require.False(t, o.CartCleared)
	require.False(t, o.Items[0].Published)

	c, err := f.carts.GetCart(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
}

func TestPlaceOrder_CallerCancelledAfterPersist(t *testing.T) {
	f := newFixture(t)
	f.addToCart(t, "U1", 7, 1)
	f.addToCart(t, "U1", 8, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.stock.after = cancel

	o, err := f.saga.PlaceOrder(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, ReservationReserved, o.Items[0].Reservation)
	require.Equal(t, ReservationPending, o.Items[1].Reservation)
	require.False(t, o.CartCleared)

	got, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, ReservationReserved, got.Items[0].Reservation)
	require.Equal(t, ReservationPending, got.Items[1].Reservation)
	require.Equal(t, int32(4), f.stockOf(t, 7))
	require.Equal(t, int32(3), f.stockOf(t, 8))
}

// stuckCreate never finishes a write until its context ends.
type stuckCreate struct{ Repository }

func (stuckCreate) Create(ctx context.Context, _ *Order) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPlaceOrder_PersistIsBoundedByStepTimeout(t *testing.T) {
	f := newFixture(t)
	f.addToCart(t, "U1", 7, 1)
	f.saga.orders = stuckCreate{f.orders}
	f.saga.StepTimeout = 50 * time.Millisecond

	_, err := f.saga.PlaceOrder(context.Background(), "U1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(5), f.stockOf(t, 7))
	require.Empty(t, f.bus.messages())

	c, err := f.carts.GetCart(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
}
