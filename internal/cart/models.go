package cart

import (
	"time"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
)

type Cart struct {
	UserID    string
	Items     []Item
	UpdatedAt time.Time
}

// Item is a snapshot of the book taken when it was first added.
type Item struct {
	BookID    int64
	Title     string
	Author    string
	UnitPrice bookstore.Money
	Quantity  int32
}

func (it Item) LineTotal() bookstore.Money { return bookstore.LineTotal(it.UnitPrice, it.Quantity) }

func (c *Cart) TotalPrice() bookstore.Money {
	var total bookstore.Money
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (c *Cart) Find(bookID int64) (Item, bool) {
	for _, it := range c.Items {
		if it.BookID == bookID {
			return it, true
		}
	}
	return Item{}, false
}
