package order

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
	"github.com/ahinestrog/bookstore-orders/internal/catalog"
)

// Service holds the order operations that run after placement.
type Service struct {
	orders      Repository
	stock       StockGate
	log         zerolog.Logger
	StepTimeout time.Duration
}

func NewService(orders Repository, stock StockGate, log zerolog.Logger) *Service {
	return &Service{orders: orders, stock: stock, log: log, StepTimeout: 4 * time.Second}
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	if userID == "" {
		return nil, bookstore.InvalidArgf("user id required")
	}
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus enforces the transition table. Cancelling releases every
// reservation held for the order.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, bookstore.InvalidArgf("unknown order status %q", to)
	}
	o, err := s.orders.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("order_id", id).Str("status", string(to)).Msg("order status updated")
	if to == StatusCancelled {
		s.releaseAll(ctx, o)
	}
	return o, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	return s.UpdateStatus(ctx, id, StatusCancelled)
}

// Delete removes an order. Stock held by an order that never reached a
// terminal state goes back first.
func (s *Service) Delete(ctx context.Context, id string) error {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if !o.Status.Terminal() {
		s.releaseAll(ctx, o)
	}
	return s.orders.Delete(ctx, id)
}

func (s *Service) releaseAll(ctx context.Context, o *Order) {
	ctx = context.WithoutCancel(ctx)
	for _, it := range o.Items {
		rctx, cancel := context.WithTimeout(ctx, s.StepTimeout)
		released, err := s.stock.ReleaseStock(rctx, catalog.ReservationKey{OrderID: o.ID, BookID: it.BookID})
		cancel()
		if err != nil {
			s.log.Error().Err(err).Str("order_id", o.ID).Int64("book_id", it.BookID).Msg("release stock failed")
			continue
		}
		if released {
			s.log.Info().Str("order_id", o.ID).Int64("book_id", it.BookID).Msg("stock released")
		}
	}
}
