package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"
)

// Publisher turns domain events into envelopes on the bus.
type Publisher struct {
	bus      Bus
	producer string
	log      zerolog.Logger
}

func NewPublisher(bus Bus, producer string, log zerolog.Logger) *Publisher {
	return &Publisher{bus: bus, producer: producer, log: log}
}

// PublishItemPlaced partitions by book so every event for one book keeps
// its order on the bus.
func (p *Publisher) PublishItemPlaced(ctx context.Context, e OrderItemPlaced) error {
	key := ItemKey(e.OrderID, e.BookID)
	return p.publish(ctx, RKOrderItemPlaced, EventOrderItemPlaced, key, strconv.FormatInt(e.BookID, 10), e)
}

func (p *Publisher) PublishPaymentResult(ctx context.Context, succeeded bool, e PaymentResult) error {
	rk, name := RKPaymentSucceeded, EventPaymentSucceeded
	if !succeeded {
		rk, name = RKPaymentFailed, EventPaymentFailed
	}
	return p.publish(ctx, rk, name, "payment:"+e.OrderID, e.OrderID, e)
}

func (p *Publisher) publish(ctx context.Context, rk, name, key, partition string, payload any) error {
	env, err := NewEnvelope(name, 1, key, partition, payload)
	if err != nil {
		return err
	}
	env.Producer = p.producer
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := p.bus.Publish(ctx, Message{RoutingKey: rk, Key: partition, Body: body}); err != nil {
		return err
	}
	p.log.Debug().Str("rk", rk).Str("key", key).Str("event_id", env.EventID).Msg("event published")
	return nil
}
