package catalog

import (
	"context"
	"fmt"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
)

type Book struct {
	ID          int64
	Title       string
	Author      string
	Description string
	Price       bookstore.Money
	Stock       int32
}

// Reservation ledger states.
const (
	ReservationReserved = "RESERVED"
	ReservationReleased = "RELEASED"
)

// ReservationKey identifies one order item in the reservation ledger.
type ReservationKey struct {
	OrderID string
	BookID  int64
}

// IdempotencyKey is the key carried by order item events.
func (k ReservationKey) IdempotencyKey() string {
	return fmt.Sprintf("order:%s:book:%d", k.OrderID, k.BookID)
}

type CheckResult struct {
	Available bool
	Stock     int32
	Message   string
}

type DecreaseResult struct {
	Success bool
	// Duplicate is set when the ledger already held the key and stock was
	// left untouched.
	Duplicate bool
	Message   string
}

// Store is the book stock store. Every decrement is a single conditional
// write; implementations never read stock and write it back.
type Store interface {
	GetBook(ctx context.Context, id int64) (*Book, error)
	DecreaseStock(ctx context.Context, bookID int64, qty int32) error
	// Reserve decrements stock once per key. ok is false when the key was
	// already in the ledger.
	Reserve(ctx context.Context, key ReservationKey, qty int32) (ok bool, err error)
	// Release puts a RESERVED quantity back. released is false when there was
	// nothing to release; an unknown key is then recorded as RELEASED so it
	// can never be reserved afterwards.
	Release(ctx context.Context, key ReservationKey) (released bool, err error)
	UpdatePrice(ctx context.Context, bookID int64, price bookstore.Money) (*Book, error)
	Seed(ctx context.Context, books []Book) error
	Close() error
}

// DefaultBooks seeds a fresh catalog.
var DefaultBooks = []Book{
	{ID: 1, Title: "Cien años de soledad", Author: "Gabriel García Márquez", Description: "Novela", Price: 4500, Stock: 10},
	{ID: 2, Title: "El amor en los tiempos del cólera", Author: "Gabriel García Márquez", Description: "Novela", Price: 3900, Stock: 5},
	{ID: 3, Title: "La vorágine", Author: "José Eustasio Rivera", Description: "Novela", Price: 3200, Stock: 0},
	{ID: 4, Title: "María", Author: "Jorge Isaacs", Description: "Novela", Price: 2800, Stock: 20},
	{ID: 5, Title: "Rosario Tijeras", Author: "Jorge Franco", Description: "Novela", Price: 3500, Stock: 1},
	{ID: 7, Title: "Delirio", Author: "Laura Restrepo", Description: "Novela", Price: 1000, Stock: 5},
}
