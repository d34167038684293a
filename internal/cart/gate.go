package cart

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
	"github.com/ahinestrog/bookstore-orders/internal/catalog"
)

// Catalog is what the cart needs from the stock gate.
type Catalog interface {
	CheckStock(ctx context.Context, bookID int64, qty int32) (catalog.CheckResult, error)
	GetBook(ctx context.Context, id int64) (*catalog.Book, error)
}

type Gate struct {
	repo    Repository
	catalog Catalog
	log     zerolog.Logger
}

func NewGate(repo Repository, cat Catalog, log zerolog.Logger) *Gate {
	return &Gate{repo: repo, catalog: cat, log: log}
}

func (g *Gate) GetCart(ctx context.Context, userID string) (*Cart, error) {
	if userID == "" {
		return nil, bookstore.InvalidArgf("user id required")
	}
	return g.repo.GetCart(ctx, userID)
}

// AddItem checks stock for the requested quantity, then either merges into
// the existing line or appends a new snapshot of the book.
func (g *Gate) AddItem(ctx context.Context, userID string, bookID int64, qty int32) (*Cart, error) {
	if userID == "" {
		return nil, bookstore.InvalidArgf("user id required")
	}
	if qty < 1 {
		return nil, bookstore.InvalidArgf("quantity %d", qty)
	}
	chk, err := g.catalog.CheckStock(ctx, bookID, qty)
	if err != nil {
		return nil, err
	}
	if !chk.Available {
		return nil, &bookstore.StockError{BookID: bookID, Requested: qty, Available: chk.Stock}
	}

	merged, err := g.repo.IncreaseQuantity(ctx, userID, bookID, qty)
	if err != nil {
		return nil, err
	}
	if merged {
		return g.repo.GetCart(ctx, userID)
	}

	b, err := g.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	c, err := g.repo.AddItem(ctx, userID, Item{
		BookID:    b.ID,
		Title:     b.Title,
		Author:    b.Author,
		UnitPrice: b.Price,
		Quantity:  qty,
	})
	if err != nil {
		return nil, err
	}
	g.log.Debug().Str("user_id", userID).Int64("book_id", bookID).Int32("qty", qty).Msg("item added")
	return c, nil
}

// RemoveItem never fails for a book that is not in the cart, nor for a
// user without a cart.
func (g *Gate) RemoveItem(ctx context.Context, userID string, bookID int64) (*Cart, error) {
	c, err := g.repo.RemoveItem(ctx, userID, bookID)
	if errors.Is(err, bookstore.ErrNotFound) {
		return &Cart{UserID: userID}, nil
	}
	return c, err
}

// ClearCart empties the cart and reports whether it ended up with no lines.
func (g *Gate) ClearCart(ctx context.Context, userID string) (*Cart, bool, error) {
	c, err := g.repo.Clear(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return c, len(c.Items) == 0, nil
}

func (g *Gate) DeleteCart(ctx context.Context, userID string) error {
	return g.repo.Delete(ctx, userID)
}
