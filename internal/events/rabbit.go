package events

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type RabbitBus struct {
	conn     *amqp.Connection
	pubMu    sync.Mutex
	pub      *amqp.Channel
	exchange string
	log      zerolog.Logger

	mu       sync.Mutex
	channels []*amqp.Channel
}

func NewRabbitBus(url, exchange string, log zerolog.Logger) (*RabbitBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return newRabbitBus(conn, exchange, log)
}

func newRabbitBus(conn *amqp.Connection, exchange string, log zerolog.Logger) (*RabbitBus, error) {
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &RabbitBus{conn: conn, pub: ch, exchange: exchange, log: log}, nil
}

func (r *RabbitBus) Publish(ctx context.Context, m Message) error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	return r.pub.PublishWithContext(ctx, r.exchange, m.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.Key,
		Timestamp:    time.Now(),
		Body:         m.Body,
	})
}

// Subscribe runs the consumer on its own channel. Failed messages are
// requeued once; a second failure drops them.
func (r *RabbitBus) Subscribe(ctx context.Context, queue string, keys []string, h Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return err
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return err
	}
	for _, rk := range keys {
		if err := ch.QueueBind(q.Name, rk, r.exchange, false, nil); err != nil {
			_ = ch.Close()
			return err
		}
	}
	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return err
	}
	r.mu.Lock()
	r.channels = append(r.channels, ch)
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					r.log.Warn().Str("queue", queue).Msg("consumer stopped")
					return
				}
				m := Message{RoutingKey: d.RoutingKey, Key: d.MessageId, Body: d.Body, Redelivered: d.Redelivered}
				if err := h(ctx, m); err != nil {
					r.log.Error().Err(err).Str("rk", d.RoutingKey).Bool("redelivered", d.Redelivered).Msg("handler failed")
					_ = d.Nack(false, !d.Redelivered)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()
	return nil
}

func (r *RabbitBus) Close() error {
	r.mu.Lock()
	for _, ch := range r.channels {
		_ = ch.Close()
	}
	r.channels = nil
	r.mu.Unlock()
	if r.pub != nil {
		_ = r.pub.Close()
	}
	return r.conn.Close()
}
