package catalog

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
)

//go:embed postgres_schema.sql
var postgresSchema string

// DBPool matches the methods from *pgxpool.Pool that we use, so the store
// can run against pgxmock in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type pgQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the book stock in PostgreSQL for deployments that run
// several catalog instances against one database.
type PostgresStore struct {
	pool DBPool
}

func NewPostgresStore(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ConnectPostgres opens a pgx pool on dsn and makes sure the schema exists.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := NewPostgresStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Close() error {
	if c, ok := s.pool.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

func (s *PostgresStore) GetBook(ctx context.Context, id int64) (*Book, error) {
	return pgGetBook(ctx, s.pool, id)
}

func pgGetBook(ctx context.Context, q pgQueryer, id int64) (*Book, error) {
	var b Book
	var price int64
	err := q.QueryRow(ctx, `
		SELECT id, title, author, description, price_cents, stock
		FROM books WHERE id=$1`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.Description, &price, &b.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bookstore.NotFoundf("book %d", id)
	}
	if err != nil {
		return nil, err
	}
	b.Price = bookstore.Money(price)
	return &b, nil
}

func pgShortfall(ctx context.Context, q pgQueryer, bookID int64, qty int32) error {
	var stock int32
	err := q.QueryRow(ctx, `SELECT stock FROM books WHERE id=$1`, bookID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return bookstore.NotFoundf("book %d", bookID)
	}
	if err != nil {
		return err
	}
	return &bookstore.StockError{BookID: bookID, Requested: qty, Available: stock}
}

const pgDecrementSQL = `
UPDATE books SET stock = stock - $1, updated_at = now()
WHERE id = $2 AND stock >= $1`

func (s *PostgresStore) DecreaseStock(ctx context.Context, bookID int64, qty int32) error {
	if qty <= 0 {
		return bookstore.InvalidArgf("quantity %d", qty)
	}
	tag, err := s.pool.Exec(ctx, pgDecrementSQL, qty, bookID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgShortfall(ctx, s.pool, bookID, qty)
	}
	return nil
}

func (s *PostgresStore) Reserve(ctx context.Context, key ReservationKey, qty int32) (bool, error) {
	if qty <= 0 {
		return false, bookstore.InvalidArgf("quantity %d", qty)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO stock_reservations(order_id, book_id, qty, state)
		VALUES($1, $2, $3, $4)
		ON CONFLICT (order_id, book_id) DO NOTHING`,
		key.OrderID, key.BookID, qty, ReservationReserved)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, pgDecrementSQL, qty, key.BookID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, pgShortfall(ctx, tx, key.BookID, qty)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Release(ctx context.Context, key ReservationKey) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var qty int32
	err = tx.QueryRow(ctx, `
		UPDATE stock_reservations SET state=$3, updated_at=now()
		WHERE order_id=$1 AND book_id=$2 AND state=$4
		RETURNING qty`,
		key.OrderID, key.BookID, ReservationReleased, ReservationReserved).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		// already released, or never reserved: leave a tombstone either way
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_reservations(order_id, book_id, qty, state)
			VALUES($1, $2, 0, $3)
			ON CONFLICT (order_id, book_id) DO NOTHING`,
			key.OrderID, key.BookID, ReservationReleased); err != nil {
			return false, err
		}
		return false, tx.Commit(ctx)
	}
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE books SET stock = stock + $1, updated_at = now() WHERE id = $2`,
		qty, key.BookID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) UpdatePrice(ctx context.Context, bookID int64, price bookstore.Money) (*Book, error) {
	if price < 0 {
		return nil, bookstore.InvalidArgf("price %d", price)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE books SET price_cents=$1, updated_at=now() WHERE id=$2`, price.Cents(), bookID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, bookstore.NotFoundf("book %d", bookID)
	}
	return s.GetBook(ctx, bookID)
}

func (s *PostgresStore) Seed(ctx context.Context, books []Book) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, b := range books {
		if _, err := tx.Exec(ctx, `
			INSERT INTO books(id, title, author, description, price_cents, stock)
			VALUES($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			b.ID, b.Title, b.Author, b.Description, b.Price.Cents(), b.Stock); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
