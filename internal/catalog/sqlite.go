package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
	"github.com/ahinestrog/bookstore-orders/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore migrates db and wraps it. The store takes ownership of db.
func NewSQLiteStore(db *sql.DB, log zerolog.Logger) (*SQLiteStore, error) {
	if err := storage.Migrate(db, migrationsFS, "migrations", "catalog_schema_migrations", log); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nowUnix() int64 { return time.Now().Unix() }

func (s *SQLiteStore) GetBook(ctx context.Context, id int64) (*Book, error) {
	return getBook(ctx, s.db, id)
}

func getBook(ctx context.Context, q queryer, id int64) (*Book, error) {
	var b Book
	var price int64
	err := q.QueryRowContext(ctx, `
		SELECT id, title, author, description, price_cents, stock
		FROM books WHERE id=?`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.Description, &price, &b.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bookstore.NotFoundf("book %d", id)
	}
	if err != nil {
		return nil, err
	}
	b.Price = bookstore.Money(price)
	return &b, nil
}

// shortfall explains why a conditional decrement touched no row.
func shortfall(ctx context.Context, q queryer, bookID int64, qty int32) error {
	b, err := getBook(ctx, q, bookID)
	if err != nil {
		return err
	}
	return &bookstore.StockError{BookID: bookID, Requested: qty, Available: b.Stock}
}

const decrementSQL = `
UPDATE books SET stock = stock - ?, updated_unix = ?
WHERE id = ? AND stock >= ?`

func (s *SQLiteStore) DecreaseStock(ctx context.Context, bookID int64, qty int32) error {
	if qty <= 0 {
		return bookstore.InvalidArgf("quantity %d", qty)
	}
	res, err := s.db.ExecContext(ctx, decrementSQL, qty, nowUnix(), bookID, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shortfall(ctx, s.db, bookID, qty)
	}
	return nil
}

func (s *SQLiteStore) Reserve(ctx context.Context, key ReservationKey, qty int32) (bool, error) {
	if qty <= 0 {
		return false, bookstore.InvalidArgf("quantity %d", qty)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO stock_reservations(order_id, book_id, qty, state)
		VALUES(?,?,?,?)
		ON CONFLICT(order_id, book_id) DO NOTHING`,
		key.OrderID, key.BookID, qty, ReservationReserved)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx, decrementSQL, qty, nowUnix(), key.BookID, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, shortfall(ctx, tx, key.BookID, qty)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Release(ctx context.Context, key ReservationKey) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUnix()
	var qty int32
	var state string
	err = tx.QueryRowContext(ctx, `
		SELECT qty, state FROM stock_reservations
		WHERE order_id=? AND book_id=?`,
		key.OrderID, key.BookID).Scan(&qty, &state)
	if errors.Is(err, sql.ErrNoRows) {
		// tombstone, so a late reserve for this key is a duplicate
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_reservations(order_id, book_id, qty, state, updated_unix)
			VALUES(?,?,0,?,?)`,
			key.OrderID, key.BookID, ReservationReleased, now); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}
	if err != nil {
		return false, err
	}
	if state != ReservationReserved {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE stock_reservations SET state=?, updated_unix=?
		WHERE order_id=? AND book_id=?`,
		ReservationReleased, now, key.OrderID, key.BookID); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET stock = stock + ?, updated_unix = ? WHERE id = ?`,
		qty, now, key.BookID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) UpdatePrice(ctx context.Context, bookID int64, price bookstore.Money) (*Book, error) {
	if price < 0 {
		return nil, bookstore.InvalidArgf("price %d", price)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET price_cents=?, updated_unix=? WHERE id=?`,
		price.Cents(), nowUnix(), bookID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, bookstore.NotFoundf("book %d", bookID)
	}
	return s.GetBook(ctx, bookID)
}

// Seed inserts books that are not present yet.
func (s *SQLiteStore) Seed(ctx context.Context, books []Book) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO books(id, title, author, description, price_cents, stock, updated_unix)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := nowUnix()
	for _, b := range books {
		if _, err := stmt.ExecContext(ctx, b.ID, b.Title, b.Author, b.Description, b.Price.Cents(), b.Stock, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}
