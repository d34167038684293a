package order

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

// Repository is the order store. Items and totals are written once by
// Create; later calls only touch status and reconciliation columns.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	// UpdateStatus applies the transition table and returns the updated order.
	UpdateStatus(ctx context.Context, id string, to Status) (*Order, error)
	SaveReconciliation(ctx context.Context, o *Order) error
	ListUnsettled(ctx context.Context, limit int) ([]*Order, error)
	Delete(ctx context.Context, id string) error
}

type sqliteRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(db *sql.DB, log zerolog.Logger) (Repository, error) {
	if err := storage.Migrate(db, migrationsFS, "migrations", "order_schema_migrations", log); err != nil {
		return nil, err
	}
	return newSQLiteRepo(db), nil
}

func newSQLiteRepo(db *sql.DB) *sqliteRepo {
	return &sqliteRepo{db: db, now: time.Now}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *sqliteRepo) Create(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders(id, user_id, status, total_cents, stock_reserved, events_published, cart_cleared, created_unix, updated_unix)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		o.ID, o.UserID, string(o.Status), o.TotalPrice.Cents(),
		b2i(o.StockReserved), b2i(o.EventsPublished), b2i(o.CartCleared),
		o.CreatedAt.Unix(), o.UpdatedAt.Unix()); err != nil {
		return err
	}

	for _, it := range o.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items(order_id, book_id, title, author, unit_cents, qty, line_cents, reservation, attempts, published)
			VALUES(?,?,?,?,?,?,?,?,?,?)`,
			o.ID, it.BookID, it.Title, it.Author, it.UnitPrice.Cents(), it.Quantity, it.LineTotal().Cents(),
			string(it.Reservation), it.Attempts, b2i(it.Published)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const orderColumns = `id, user_id, status, total_cents, stock_reserved, events_published, cart_cleared, created_unix, updated_unix`

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var status string
	var total, created, updated int64
	if err := row.Scan(&o.ID, &o.UserID, &status, &total,
		&o.StockReserved, &o.EventsPublished, &o.CartCleared, &created, &updated); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.TotalPrice = bookstore.Money(total)
	o.CreatedAt = time.Unix(created, 0)
	o.UpdatedAt = time.Unix(updated, 0)
	return &o, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getOrder(ctx context.Context, q queryer, id string) (*Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bookstore.NotFoundf("order %s", id)
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = listItems(ctx, q, id); err != nil {
		return nil, err
	}
	return o, nil
}

func listItems(ctx context.Context, q queryer, orderID string) ([]Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT book_id, title, author, unit_cents, qty, reservation, attempts, published
		FROM order_items WHERE order_id=? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var unit int64
		var res string
		if err := rows.Scan(&it.BookID, &it.Title, &it.Author, &unit, &it.Quantity, &res, &it.Attempts, &it.Published); err != nil {
			return nil, err
		}
		it.UnitPrice = bookstore.Money(unit)
		it.Reservation = Reservation(res)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) Get(ctx context.Context, id string) (*Order, error) {
	return getOrder(ctx, r.db, id)
}

func (r *sqliteRepo) listWhere(ctx context.Context, where string, args ...any) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...)
	if err != nil {
		return nil, err
	}
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// items are loaded after the cursor is closed; the pool has one connection
	for _, o := range out {
		if o.Items, err = listItems(ctx, r.db, o.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *sqliteRepo) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	return r.listWhere(ctx, `WHERE user_id=? ORDER BY created_unix DESC, rowid DESC`, userID)
}

func (r *sqliteRepo) ListUnsettled(ctx context.Context, limit int) ([]*Order, error) {
	return r.listWhere(ctx, `
		WHERE status NOT IN (?, ?) AND (stock_reserved = 0 OR events_published = 0)
		ORDER BY created_unix, rowid LIMIT ?`,
		string(StatusDelivered), string(StatusCancelled), limit)
}

func (r *sqliteRepo) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := getOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(o.Status, to); err != nil {
		return nil, err
	}
	now := r.now()
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status=?, updated_unix=? WHERE id=? AND status=?`,
		string(to), now.Unix(), id, string(o.Status))
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, bookstore.ErrInvalidTransition
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	o.Status = to
	o.UpdatedAt = now
	return o, nil
}

// SaveReconciliation merges o into the stored row and loads the result back
// into o. Progress only moves forward: flags are never cleared, attempts never
// drop and a settled reservation never returns to PENDING, so a stale copy
// cannot undo work another writer already recorded.
func (r *sqliteRepo) SaveReconciliation(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range o.Items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE order_items SET
				reservation = CASE WHEN reservation = ? THEN ? ELSE reservation END,
				attempts = MAX(attempts, ?),
				published = MAX(published, ?)
			WHERE order_id=? AND book_id=?`,
			string(ReservationPending), string(it.Reservation), it.Attempts, b2i(it.Published),
			o.ID, it.BookID); err != nil {
			return err
		}
	}
	items, err := listItems(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	merged := Order{Items: items}
	merged.refresh()

	now := r.now()
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET stock_reserved=?, events_published=?, cart_cleared=MAX(cart_cleared, ?), updated_unix=?
		WHERE id=?`,
		b2i(merged.StockReserved), b2i(merged.EventsPublished), b2i(o.CartCleared), now.Unix(), o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bookstore.NotFoundf("order %s", o.ID)
	}
	var cleared bool
	if err := tx.QueryRowContext(ctx, `SELECT cart_cleared FROM orders WHERE id=?`, o.ID).Scan(&cleared); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	o.Items = items
	o.StockReserved = merged.StockReserved
	o.EventsPublished = merged.EventsPublished
	o.CartCleared = cleared
	o.UpdatedAt = now
	return nil
}

func (r *sqliteRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bookstore.NotFoundf("order %s", id)
	}
	return nil
}
