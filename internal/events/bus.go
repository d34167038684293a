// Package events carries order events over RabbitMQ or Kafka and applies
// them to the stock store.
package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type Message struct {
	RoutingKey  string
	Key         string
	Body        []byte
	Redelivered bool
}

// Handler processes one message. A nil error acknowledges it.
type Handler func(ctx context.Context, m Message) error

// Bus is the process-wide message transport. Callers own its lifecycle.
type Bus interface {
	Publish(ctx context.Context, m Message) error
	// Subscribe binds queue to the routing keys and consumes until ctx ends.
	Subscribe(ctx context.Context, queue string, keys []string, h Handler) error
	Close() error
}

const (
	BusRabbit = "rabbit"
	BusKafka  = "kafka"
	BusNone   = "none"
)

type Options struct {
	Kind      string
	RabbitURL string
	Exchange  string
	Brokers   []string
}

func Open(o Options, log zerolog.Logger) (Bus, error) {
	switch o.Kind {
	case BusRabbit, "":
		return NewRabbitBus(o.RabbitURL, o.Exchange, log)
	case BusKafka:
		return NewKafkaBus(o.Brokers, log), nil
	case BusNone:
		return NopBus{}, nil
	}
	return nil, fmt.Errorf("unknown event bus %q", o.Kind)
}

// NopBus drops everything. Used when a service runs without a broker.
type NopBus struct{}

func (NopBus) Publish(context.Context, Message) error { return nil }
func (NopBus) Subscribe(context.Context, string, []string, Handler) error { return nil }
func (NopBus) Close() error { return nil }
