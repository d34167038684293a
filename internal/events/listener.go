package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-orders/internal/catalog"
)

// Listener modes.
const (
	ModeApply   = "apply"
	ModeObserve = "observe"
)

// StockReserver is the idempotent decrement exposed by the stock gate.
type StockReserver interface {
	ReserveStock(ctx context.Context, key catalog.ReservationKey, qty int32) (catalog.DecreaseResult, error)
}

// StockListener consumes order item events. In apply mode it reserves
// through the same (order, book) key as the order saga, so a redelivered or
// duplicated event never decrements twice.
type StockListener struct {
	stock StockReserver
	dedup Deduper
	mode  string
	log   zerolog.Logger
}

func NewStockListener(stock StockReserver, dedup Deduper, mode string, log zerolog.Logger) *StockListener {
	if mode != ModeObserve {
		mode = ModeApply
	}
	return &StockListener{stock: stock, dedup: dedup, mode: mode, log: log}
}

func (l *StockListener) Start(ctx context.Context, bus Bus, queue string) error {
	return bus.Subscribe(ctx, queue, []string{RKOrderItemPlaced}, l.Handle)
}

// Handle drops malformed messages with a log entry and returns an error
// only when the store could not be reached.
func (l *StockListener) Handle(ctx context.Context, m Message) error {
	err := l.handle(ctx, m)
	if errors.Is(err, ErrMalformed) {
		l.log.Warn().Err(err).Str("rk", m.RoutingKey).Msg("dropping malformed message")
		return nil
	}
	return err
}

func (l *StockListener) handle(ctx context.Context, m Message) error {
	env, err := Decode(m.Body)
	if err != nil {
		return err
	}
	if env.EventName != EventOrderItemPlaced {
		l.log.Debug().Str("event", env.EventName).Msg("ignoring event")
		return nil
	}
	var p OrderItemPlaced
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	key := catalog.ReservationKey{OrderID: p.OrderID, BookID: p.BookID}
	if env.IdempotencyKey != key.IdempotencyKey() {
		return errors.Join(ErrMalformed, errors.New("idempotency key does not match payload"))
	}
	log := l.log.With().Str("key", env.IdempotencyKey).Str("event_id", env.EventID).Logger()

	if l.mode == ModeObserve {
		log.Info().Int64("book_id", p.BookID).Int32("qty", p.Quantity).Msg("order item observed")
		return nil
	}

	if l.dedup != nil {
		seen, err := l.dedup.Seen(ctx, env.IdempotencyKey)
		if err != nil {
			log.Warn().Err(err).Msg("dedup lookup failed, falling back to ledger")
		} else if seen {
			log.Debug().Msg("already applied")
			return nil
		}
	}

	res, err := l.stock.ReserveStock(ctx, key, p.Quantity)
	if err != nil {
		return err
	}
	if !res.Success {
		log.Warn().Str("reason", res.Message).Msg("reservation rejected")
		return nil
	}
	if res.Duplicate {
		log.Debug().Msg("reservation already in ledger")
	} else {
		log.Info().Int64("book_id", p.BookID).Int32("qty", p.Quantity).Msg("stock reserved from event")
	}
	if l.dedup != nil {
		if err := l.dedup.Mark(ctx, env.IdempotencyKey); err != nil {
			log.Warn().Err(err).Msg("dedup mark failed")
		}
	}
	return nil
}
