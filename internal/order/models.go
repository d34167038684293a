package order

import (
	"time"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
)

// Reservation outcome of one order item.
type Reservation string

const (
	ReservationPending  Reservation = "PENDING"
	ReservationReserved Reservation = "RESERVED"
	ReservationRejected Reservation = "REJECTED"
)

type Order struct {
	ID         string
	UserID     string
	Items      []Item
	TotalPrice bookstore.Money
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Reconciliation
}

// Reconciliation tracks the side effects that run after the order is
// persisted, so readers can tell a complete order from a partial one.
type Reconciliation struct {
	StockReserved   bool
	EventsPublished bool
	CartCleared     bool
}

type Item struct {
	BookID      int64
	Title       string
	Author      string
	UnitPrice   bookstore.Money
	Quantity    int32
	Reservation Reservation
	Attempts    int
	Published   bool
}

func (it Item) LineTotal() bookstore.Money { return bookstore.LineTotal(it.UnitPrice, it.Quantity) }

func (o *Order) computeTotal() {
	var total bookstore.Money
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	o.TotalPrice = total
}

// refresh derives the order-level flags from the items.
func (o *Order) refresh() {
	reserved, published := true, true
	for _, it := range o.Items {
		reserved = reserved && it.Reservation == ReservationReserved
		published = published && it.Published
	}
	o.StockReserved = reserved
	o.EventsPublished = published
}

// Settled is true once nothing is left for the reconciler to do.
func (o *Order) Settled() bool {
	if o.Status.Terminal() {
		return true
	}
	return o.StockReserved && o.EventsPublished
}

func (o *Order) HasRejected() bool {
	for _, it := range o.Items {
		if it.Reservation == ReservationRejected {
			return true
		}
	}
	return false
}
