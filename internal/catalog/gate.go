package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
)

// Gate exposes the stock operations other services call.
type Gate struct {
	store Store
	log   zerolog.Logger
}

func NewGate(store Store, log zerolog.Logger) *Gate {
	return &Gate{store: store, log: log}
}

func (g *Gate) GetBook(ctx context.Context, id int64) (*Book, error) {
	return g.store.GetBook(ctx, id)
}

// CheckStock reports an unknown book as unavailable instead of failing.
func (g *Gate) CheckStock(ctx context.Context, bookID int64, qty int32) (CheckResult, error) {
	b, err := g.store.GetBook(ctx, bookID)
	if errors.Is(err, bookstore.ErrNotFound) {
		return CheckResult{Available: false, Message: "book not found"}, nil
	}
	if err != nil {
		return CheckResult{}, err
	}
	res := CheckResult{Available: b.Stock >= qty, Stock: b.Stock}
	if res.Available {
		res.Message = "stock available"
	} else {
		res.Message = fmt.Sprintf("only %d units left", b.Stock)
	}
	return res, nil
}

// DecreaseStock applies a plain decrement. Business rejections come back as
// an unsuccessful result; only infrastructure failures are errors.
func (g *Gate) DecreaseStock(ctx context.Context, bookID int64, qty int32) (DecreaseResult, error) {
	err := g.store.DecreaseStock(ctx, bookID, qty)
	if res, handled := rejection(err); handled {
		return res, nil
	}
	if err != nil {
		return DecreaseResult{}, err
	}
	g.log.Debug().Int64("book_id", bookID).Int32("qty", qty).Msg("stock decreased")
	return DecreaseResult{Success: true, Message: "stock decreased"}, nil
}

// ReserveStock is the idempotent decrement for one order item.
func (g *Gate) ReserveStock(ctx context.Context, key ReservationKey, qty int32) (DecreaseResult, error) {
	if key.OrderID == "" {
		return DecreaseResult{}, bookstore.InvalidArgf("order id required")
	}
	applied, err := g.store.Reserve(ctx, key, qty)
	if res, handled := rejection(err); handled {
		g.log.Info().Str("key", key.IdempotencyKey()).Str("reason", res.Message).Msg("reservation rejected")
		return res, nil
	}
	if err != nil {
		return DecreaseResult{}, err
	}
	if !applied {
		return DecreaseResult{Success: true, Duplicate: true, Message: "already reserved"}, nil
	}
	g.log.Debug().Str("key", key.IdempotencyKey()).Int32("qty", qty).Msg("stock reserved")
	return DecreaseResult{Success: true, Message: "stock reserved"}, nil
}

func (g *Gate) ReleaseStock(ctx context.Context, key ReservationKey) (bool, error) {
	released, err := g.store.Release(ctx, key)
	if err != nil {
		return false, err
	}
	if released {
		g.log.Info().Str("key", key.IdempotencyKey()).Msg("reservation released")
	}
	return released, nil
}

func (g *Gate) UpdatePrice(ctx context.Context, bookID int64, price bookstore.Money) (*Book, error) {
	return g.store.UpdatePrice(ctx, bookID, price)
}

func rejection(err error) (DecreaseResult, bool) {
	var se *bookstore.StockError
	switch {
	case err == nil:
		return DecreaseResult{}, false
	case errors.As(err, &se):
		return DecreaseResult{Message: se.Error()}, true
	case errors.Is(err, bookstore.ErrNotFound):
		return DecreaseResult{Message: "book not found"}, true
	case errors.Is(err, bookstore.ErrInvalidArgument):
		return DecreaseResult{Message: err.Error()}, true
	}
	return DecreaseResult{}, false
}
