package order

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/bookstore-orders/internal/cart"
	"github.com/ahinestrog/bookstore-orders/internal/catalog"
	"github.com/ahinestrog/bookstore-orders/internal/events"
	"github.com/ahinestrog/bookstore-orders/internal/storage"
)

var errDown = errors.New("connection refused")

// stockProxy forwards to the real gate unless a book is marked as failing.
type stockProxy struct {
	*catalog.Gate
	mu      sync.Mutex
	failing map[int64]bool
	block   bool
	after   func()
}

func (p *stockProxy) fail(bookID int64, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[bookID] = down
}

func (p *stockProxy) ReserveStock(ctx context.Context, key catalog.ReservationKey, qty int32) (catalog.DecreaseResult, error) {
	p.mu.Lock()
	down, block, after := p.failing[key.BookID], p.block, p.after
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return catalog.DecreaseResult{}, ctx.Err()
	}
	if down {
		return catalog.DecreaseResult{}, errDown
	}
	res, err := p.Gate.ReserveStock(ctx, key, qty)
	if after != nil {
		after()
	}
	return res, err
}

// cartProxy lets tests break ClearCart.
type cartProxy struct {
	*cart.Gate
	clearErr error
}

func (p *cartProxy) ClearCart(ctx context.Context, userID string) (*cart.Cart, bool, error) {
	if p.clearErr != nil {
		return nil, false, p.clearErr
	}
	return p.Gate.ClearCart(ctx, userID)
}

// recBus keeps every published message in memory.
type recBus struct {
	mu   sync.Mutex
	msgs []events.Message
	err  error
}

func (b *recBus) Publish(_ context.Context, m events.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.msgs = append(b.msgs, m)
	return nil
}

func (b *recBus) Subscribe(context.Context, string, []string, events.Handler) error { return nil }
func (b *recBus) Close() error                                                     { return nil }

func (b *recBus) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *recBus) messages() []events.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Message(nil), b.msgs...)
}

type fixture struct {
	orders Repository
	store  catalog.Store
	stock  *stockProxy
	carts  *cartProxy
	bus    *recBus
	saga   *Saga
	svc    *Service
}

func dbPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cdb, err := storage.Open(storage.DriverModernc, dbPath(t, "catalog.db"))
	require.NoError(t, err)
	store, err := catalog.NewSQLiteStore(cdb, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(ctx, []catalog.Book{
		{ID: 7, Title: "Delirio", Author: "Laura Restrepo", Price: 1000, Stock: 5},
		{ID: 8, Title: "Satanás", Author: "Mario Mendoza", Price: 2550, Stock: 3},
	}))
	stock := &stockProxy{Gate: catalog.NewGate(store, zerolog.Nop()), failing: map[int64]bool{}}

	kdb, err := storage.Open(storage.DriverModernc, dbPath(t, "cart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kdb.Close() })
	crepo, err := cart.NewSQLiteRepo(kdb, zerolog.Nop())
	require.NoError(t, err)
	carts := &cartProxy{Gate: cart.NewGate(crepo, stock.Gate, zerolog.Nop())}

	odb, err := storage.Open(storage.DriverModernc, dbPath(t, "order.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = odb.Close() })
	orders, err := NewSQLiteRepository(odb, zerolog.Nop())
	require.NoError(t, err)

	bus := &recBus{}
	pub := events.NewPublisher(bus, "order", zerolog.Nop())
	return &fixture{
		orders: orders,
		store:  store,
		stock:  stock,
		carts:  carts,
		bus:    bus,
		saga:   NewSaga(orders, carts, stock, pub, zerolog.Nop()),
		svc:    NewService(orders, stock, zerolog.Nop()),
	}
}

func (f *fixture) addToCart(t *testing.T, userID string, bookID int64, qty int32) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), userID, bookID, qty)
	require.NoError(t, err)
}

func (f *fixture) stockOf(t *testing.T, bookID int64) int32 {
	t.Helper()
	b, err := f.store.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	return b.Stock
}
