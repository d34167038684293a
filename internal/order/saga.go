package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
	"github.com/ahinestrog/bookstore-orders/internal/cart"
	"github.com/ahinestrog/bookstore-orders/internal/catalog"
	"github.com/ahinestrog/bookstore-orders/internal/events"
)

type CartGate interface {
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
	ClearCart(ctx context.Context, userID string) (*cart.Cart, bool, error)
}

type StockGate interface {
	ReserveStock(ctx context.Context, key catalog.ReservationKey, qty int32) (catalog.DecreaseResult, error)
	ReleaseStock(ctx context.Context, key catalog.ReservationKey) (bool, error)
}

type Publisher interface {
	PublishItemPlaced(ctx context.Context, e events.OrderItemPlaced) error
}

// Saga places orders: fetch cart, snapshot, persist, then reserve stock,
// publish one event per item and clear the cart. Only the first three
// steps can fail the request.
type Saga struct {
	orders Repository
	carts  CartGate
	stock  StockGate
	events Publisher
	log    zerolog.Logger

	StepTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

func NewSaga(orders Repository, carts CartGate, stock StockGate, pub Publisher, log zerolog.Logger) *Saga {
	return &Saga{
		orders:      orders,
		carts:       carts,
		stock:       stock,
		events:      pub,
		log:         log,
		StepTimeout: 4 * time.Second,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

func (s *Saga) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.StepTimeout)
}

func (s *Saga) PlaceOrder(ctx context.Context, userID string) (*Order, error) {
	if userID == "" {
		return nil, bookstore.InvalidArgf("user id required")
	}

	// 1) carrito
	cctx, cancel := s.step(ctx)
	c, err := s.carts.GetCart(cctx, userID)
	cancel()
	if errors.Is(err, bookstore.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, bookstore.ErrEmptyOrMissingCart)
	}
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, bookstore.ErrEmptyOrMissingCart)
	}

	// 2) snapshot
	o := s.snapshot(userID, c)

	// 3) persist
	pctx, cancel := s.step(ctx)
	err = s.orders.Create(pctx, o)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	log := s.log.With().Str("order_id", o.ID).Str("user_id", userID).Logger()
	log.Info().Int("items", len(o.Items)).Str("total", o.TotalPrice.String()).Msg("order created")

	// 4-6 never fail the request; outcomes land on the order
	s.reserve(ctx, o, log)
	s.save(ctx, o, log)
	s.notify(ctx, o, log)
	s.save(ctx, o, log)
	s.clearCart(ctx, o, log)
	s.save(ctx, o, log)

	o.refresh()
	if ctx.Err() != nil {
		log.Warn().Err(ctx.Err()).Msg("placement interrupted, reconciler will finish it")
	}
	return o, nil
}

func (s *Saga) snapshot(userID string, c *cart.Cart) *Order {
	now := s.now()
	o := &Order{
		ID:        s.newID(),
		UserID:    userID,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range c.Items {
		o.Items = append(o.Items, Item{
			BookID:      it.BookID,
			Title:       it.Title,
			Author:      it.Author,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Reservation: ReservationPending,
		})
	}
	o.computeTotal()
	return o
}

func (s *Saga) reserve(ctx context.Context, o *Order, log zerolog.Logger) {
	for i := range o.Items {
		if ctx.Err() != nil {
			return
		}
		reserveItem(ctx, s.stock, o, &o.Items[i], s.StepTimeout, log)
	}
}

// reserveItem is shared with the reconciler. A transport failure leaves the
// item PENDING; a business rejection marks it REJECTED.
func reserveItem(ctx context.Context, stock StockGate, o *Order, it *Item, timeout time.Duration, log zerolog.Logger) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	it.Attempts++
	res, err := stock.ReserveStock(rctx, catalog.ReservationKey{OrderID: o.ID, BookID: it.BookID}, it.Quantity)
	switch {
	case err != nil:
		log.Warn().Err(err).Int64("book_id", it.BookID).Int("attempt", it.Attempts).Msg("stock reservation pending")
	case res.Success:
		it.Reservation = ReservationReserved
	default:
		it.Reservation = ReservationRejected
		log.Warn().Int64("book_id", it.BookID).Str("reason", res.Message).Msg("stock reservation rejected")
	}
}

func (s *Saga) notify(ctx context.Context, o *Order, log zerolog.Logger) {
	for i := range o.Items {
		if ctx.Err() != nil {
			return
		}
		publishItem(ctx, s.events, o, &o.Items[i], s.StepTimeout, log)
	}
}

func publishItem(ctx context.Context, pub Publisher, o *Order, it *Item, timeout time.Duration, log zerolog.Logger) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := pub.PublishItemPlaced(pctx, events.OrderItemPlaced{
		OrderID:  o.ID,
		UserID:   o.UserID,
		BookID:   it.BookID,
		Quantity: it.Quantity,
	})
	if err != nil {
		log.Warn().Err(err).Int64("book_id", it.BookID).Msg("publish order item failed")
		return
	}
	it.Published = true
}

func (s *Saga) clearCart(ctx context.Context, o *Order, log zerolog.Logger) {
	if ctx.Err() != nil {
		return
	}
	cctx, cancel := s.step(ctx)
	defer cancel()
	_, emptied, err := s.carts.ClearCart(cctx, o.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("clear cart failed")
		return
	}
	o.CartCleared = emptied
}

// save records progress even when the caller went away.
func (s *Saga) save(ctx context.Context, o *Order, log zerolog.Logger) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.StepTimeout)
	defer cancel()
	if err := s.orders.SaveReconciliation(sctx, o); err != nil {
		log.Error().Err(err).Msg("save reconciliation state failed")
	}
}
