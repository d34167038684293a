package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahinestrog/bookstore-orders/internal/catalog"
)

// Routing keys. The version suffix changes when the payload shape does.
const (
	RKOrderItemPlaced  = "order.item.placed.v1"
	RKPaymentSucceeded = "payment.succeeded.v1"
	RKPaymentFailed    = "payment.failed.v1"
)

const (
	EventOrderItemPlaced  = "order.item.placed"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// ErrMalformed marks a message that can never be processed. Consumers log
// it and drop the message.
var ErrMalformed = errors.New("malformed event")

type Envelope struct {
	EventID        string          `json:"eventId"`
	EventName      string          `json:"eventName"`
	EventVersion   int             `json:"eventVersion"`
	OccurredAt     time.Time       `json:"occurredAt"`
	Producer       string          `json:"producer,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
	PartitionKey   string          `json:"partitionKey,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

func NewEnvelope(name string, version int, key, partitionKey string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:        uuid.NewString(),
		EventName:      name,
		EventVersion:   version,
		OccurredAt:     time.Now().UTC(),
		IdempotencyKey: key,
		PartitionKey:   partitionKey,
		Payload:        raw,
	}, nil
}

func (e Envelope) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("%w: missing eventId", ErrMalformed)
	case e.EventName == "":
		return fmt.Errorf("%w: missing eventName", ErrMalformed)
	case e.EventVersion < 1:
		return fmt.Errorf("%w: eventVersion %d", ErrMalformed, e.EventVersion)
	case e.IdempotencyKey == "":
		return fmt.Errorf("%w: missing idempotencyKey", ErrMalformed)
	case len(e.Payload) == 0:
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	return nil
}

// Decode parses and validates an envelope.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	return nil
}

type OrderItemPlaced struct {
	OrderID  string `json:"orderId"`
	UserID   string `json:"userId"`
	BookID   int64  `json:"bookId"`
	Quantity int32  `json:"quantity"`
}

func (p OrderItemPlaced) Validate() error {
	if p.OrderID == "" || p.BookID <= 0 || p.Quantity <= 0 {
		return fmt.Errorf("%w: order item %+v", ErrMalformed, p)
	}
	return nil
}

// ItemKey is the idempotency key of an order item.
func ItemKey(orderID string, bookID int64) string {
	return catalog.ReservationKey{OrderID: orderID, BookID: bookID}.IdempotencyKey()
}

type PaymentResult struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason,omitempty"`
}
