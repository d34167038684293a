package rpc

import (
	"time"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
	"github.com/ahinestrog/bookstore-orders/internal/cart"
	"github.com/ahinestrog/bookstore-orders/internal/catalog"
	"github.com/ahinestrog/bookstore-orders/internal/order"
)

type Empty struct{}

// Catalog messages

type BookRequest struct {
	BookID int64 `json:"bookId"`
}

type Book struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Stock       int32  `json:"stock"`
	PriceCents  int64  `json:"priceCents"`
}

type CheckStockRequest struct {
	BookID            int64 `json:"bookId"`
	RequestedQuantity int32 `json:"requestedQuantity"`
}

type CheckStockResponse struct {
	Available bool   `json:"available"`
	Stock     int32  `json:"stock"`
	Message   string `json:"message"`
}

// DecreaseStockRequest with an OrderID goes through the reservation ledger.
type DecreaseStockRequest struct {
	BookID   int64  `json:"bookId"`
	Quantity int32  `json:"quantity"`
	OrderID  string `json:"orderId,omitempty"`
}

type DecreaseStockResponse struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Message   string `json:"message"`
}

type ReleaseStockRequest struct {
	OrderID string `json:"orderId"`
	BookID  int64  `json:"bookId"`
}

type ReleaseStockResponse struct {
	Released bool `json:"released"`
}

type UpdatePriceRequest struct {
	BookID     int64 `json:"bookId"`
	PriceCents int64 `json:"priceCents"`
}

// Cart messages

type UserRequest struct {
	UserID string `json:"userId"`
}

type CartItemRequest struct {
	UserID   string `json:"userId"`
	BookID   int64  `json:"bookId"`
	Quantity int32  `json:"quantity,omitempty"`
}

type CartItem struct {
	BookID     int64  `json:"bookId"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	PriceCents int64  `json:"priceCents"`
	Quantity   int32  `json:"quantity"`
}

type Cart struct {
	UserID      string     `json:"userId"`
	Items       []CartItem `json:"items"`
	TotalCents  int64      `json:"totalCents"`
	UpdatedUnix int64      `json:"updatedUnix,omitempty"`
	Emptied     bool       `json:"emptied,omitempty"`
}

// Order messages

type PlaceOrderRequest struct {
	UserID string `json:"userId"`
}

type OrderRequest struct {
	OrderID string `json:"orderId"`
}

type UpdateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type OrderItem struct {
	BookID         int64  `json:"bookId"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	PriceCents     int64  `json:"priceCents"`
	Quantity       int32  `json:"quantity"`
	LineTotalCents int64  `json:"lineTotalCents"`
	Reservation    string `json:"reservation"`
	Attempts       int    `json:"attempts"`
	Published      bool   `json:"published"`
}

type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Status          string      `json:"status"`
	Items           []OrderItem `json:"items"`
	TotalCents      int64       `json:"totalCents"`
	StockReserved   bool        `json:"stockReserved"`
	EventsPublished bool        `json:"eventsPublished"`
	CartCleared     bool        `json:"cartCleared"`
	CreatedUnix     int64       `json:"createdUnix"`
	UpdatedUnix     int64       `json:"updatedUnix"`
}

type OrderList struct {
	Orders []Order `json:"orders"`
}

func bookToWire(b *catalog.Book) *Book {
	return &Book{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Stock:       b.Stock,
		PriceCents:  b.Price.Cents(),
	}
}

func bookFromWire(b *Book) *catalog.Book {
	return &catalog.Book{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Stock:       b.Stock,
		Price:       bookstore.Money(b.PriceCents),
	}
}

func cartToWire(c *cart.Cart) *Cart {
	out := &Cart{UserID: c.UserID, Items: []CartItem{}, TotalCents: c.TotalPrice().Cents()}
	if !c.UpdatedAt.IsZero() {
		out.UpdatedUnix = c.UpdatedAt.Unix()
	}
	for _, it := range c.Items {
		out.Items = append(out.Items, CartItem{
			BookID:     it.BookID,
			Title:      it.Title,
			Author:     it.Author,
			PriceCents: it.UnitPrice.Cents(),
			Quantity:   it.Quantity,
		})
	}
	return out
}

func cartFromWire(c *Cart) *cart.Cart {
	out := &cart.Cart{UserID: c.UserID}
	if c.UpdatedUnix > 0 {
		out.UpdatedAt = time.Unix(c.UpdatedUnix, 0)
	}
	for _, it := range c.Items {
		out.Items = append(out.Items, cart.Item{
			BookID:    it.BookID,
			Title:     it.Title,
			Author:    it.Author,
			UnitPrice: bookstore.Money(it.PriceCents),
			Quantity:  it.Quantity,
		})
	}
	return out
}

func orderToWire(o *order.Order) *Order {
	out := &Order{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Items:           []OrderItem{},
		TotalCents:      o.TotalPrice.Cents(),
		StockReserved:   o.StockReserved,
		EventsPublished: o.EventsPublished,
		CartCleared:     o.CartCleared,
		CreatedUnix:     o.CreatedAt.Unix(),
		UpdatedUnix:     o.UpdatedAt.Unix(),
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, OrderItem{
			BookID:         it.BookID,
			Title:          it.Title,
			Author:         it.Author,
			PriceCents:     it.UnitPrice.Cents(),
			Quantity:       it.Quantity,
			LineTotalCents: it.LineTotal().Cents(),
			Reservation:    string(it.Reservation),
			Attempts:       it.Attempts,
			Published:      it.Published,
		})
	}
	return out
}

func orderFromWire(o *Order) *order.Order {
	out := &order.Order{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     order.Status(o.Status),
		TotalPrice: bookstore.Money(o.TotalCents),
		CreatedAt:  time.Unix(o.CreatedUnix, 0),
		UpdatedAt:  time.Unix(o.UpdatedUnix, 0),
		Reconciliation: order.Reconciliation{
			StockReserved:   o.StockReserved,
			EventsPublished: o.EventsPublished,
			CartCleared:     o.CartCleared,
		},
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, order.Item{
			BookID:      it.BookID,
			Title:       it.Title,
			Author:      it.Author,
			UnitPrice:   bookstore.Money(it.PriceCents),
			Quantity:    it.Quantity,
			Reservation: order.Reservation(it.Reservation),
			Attempts:    it.Attempts,
			Published:   it.Published,
		})
	}
	return out
}
