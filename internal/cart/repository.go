package cart

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

type Repository interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
	// IncreaseQuantity bumps an existing line; merged is false when the cart
	// has no line for bookID.
	IncreaseQuantity(ctx context.Context, userID string, bookID int64, qty int32) (merged bool, err error)
	// AddItem creates the cart if needed and merges by book id.
	AddItem(ctx context.Context, userID string, it Item) (*Cart, error)
	RemoveItem(ctx context.Context, userID string, bookID int64) (*Cart, error)
	Clear(ctx context.Context, userID string) (*Cart, error)
	Delete(ctx context.Context, userID string) error
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB, log zerolog.Logger) (Repository, error) {
	if err := storage.Migrate(db, migrationsFS, "migrations", "cart_schema_migrations", log); err != nil {
		return nil, err
	}
	return &sqliteRepo{db: db}, nil
}

func nowUnix() int64 { return time.Now().Unix() }

// Operaciones de carrito

func (r *sqliteRepo) GetCart(ctx context.Context, userID string) (*Cart, error) {
	var c Cart
	var updated int64
	err := r.db.QueryRowContext(ctx, `SELECT user_id, updated_unix FROM carts WHERE user_id=?`, userID).
		Scan(&c.UserID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bookstore.NotFoundf("cart for user %s", userID)
	}
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Unix(updated, 0)

	rows, err := r.db.QueryContext(ctx, `
		SELECT book_id, title, author, unit_price_cents, qty
		FROM cart_items WHERE user_id=? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		var price int64
		if err := rows.Scan(&it.BookID, &it.Title, &it.Author, &price, &it.Quantity); err != nil {
			return nil, err
		}
		it.UnitPrice = bookstore.Money(price)
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

func (r *sqliteRepo) IncreaseQuantity(ctx context.Context, userID string, bookID int64, qty int32) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE cart_items SET qty = qty + ?
		WHERE user_id=? AND book_id=?`, qty, userID, bookID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	if err := touch(ctx, tx, userID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (r *sqliteRepo) AddItem(ctx context.Context, userID string, it Item) (*Cart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := touch(ctx, tx, userID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cart_items(user_id, book_id, title, author, unit_price_cents, qty)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, book_id)
		DO UPDATE SET qty = qty + excluded.qty`,
		userID, it.BookID, it.Title, it.Author, it.UnitPrice.Cents(), it.Quantity); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetCart(ctx, userID)
}

// touch creates the cart row or bumps its timestamp.
func touch(ctx context.Context, tx *sql.Tx, userID string) error {
	now := nowUnix()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO carts(user_id, created_unix, updated_unix) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET updated_unix = excluded.updated_unix`,
		userID, now, now)
	return err
}

func (r *sqliteRepo) RemoveItem(ctx context.Context, userID string, bookID int64) (*Cart, error) {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id=? AND book_id=?`, userID, bookID); err != nil {
		return nil, err
	}
	return r.GetCart(ctx, userID)
}

func (r *sqliteRepo) Clear(ctx context.Context, userID string) (*Cart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE carts SET updated_unix=? WHERE user_id=?`, nowUnix(), userID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, bookstore.NotFoundf("cart for user %s", userID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id=?`, userID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetCart(ctx, userID)
}

// Delete removes the cart; its lines go with it through the cascade.
func (r *sqliteRepo) Delete(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id=?`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bookstore.NotFoundf("cart for user %s", userID)
	}
	return nil
}
