package order

import (
	"context"
	"errors"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
	"github.com/ahinestrog/bookstore-orders/internal/events"
)

// Consumidores de pagos

func (s *Service) StartPaymentConsumer(ctx context.Context, bus events.Bus, queue string) error {
	return bus.Subscribe(ctx, queue, []string{events.RKPaymentSucceeded, events.RKPaymentFailed}, s.HandlePaymentEvent)
}

// HandlePaymentEvent moves the order to PAID or CANCELLED. Events that no
// longer apply to the order are logged and acknowledged.
func (s *Service) HandlePaymentEvent(ctx context.Context, m events.Message) error {
	env, err := events.Decode(m.Body)
	if err != nil {
		s.log.Warn().Err(err).Str("rk", m.RoutingKey).Msg("dropping malformed payment event")
		return nil
	}
	var to Status
	switch env.EventName {
	case events.EventPaymentSucceeded:
		to = StatusPaid
	case events.EventPaymentFailed:
		to = StatusCancelled
	default:
		return nil
	}
	var p events.PaymentResult
	if err := env.DecodePayload(&p); err != nil || p.OrderID == "" {
		s.log.Warn().Err(err).Str("event_id", env.EventID).Msg("dropping payment event without order")
		return nil
	}

	_, err = s.UpdateStatus(ctx, p.OrderID, to)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bookstore.ErrInvalidTransition), errors.Is(err, bookstore.ErrNotFound):
		s.log.Warn().Err(err).Str("order_id", p.OrderID).Str("event", env.EventName).Msg("payment event ignored")
		return nil
	}
	return err
}
