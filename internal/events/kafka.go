package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaBus maps routing keys to topics and queues to consumer groups.
type KafkaBus struct {
	brokers []string
	writer  *kafka.Writer
	log     zerolog.Logger

	// MaxAttempts bounds handler retries before a message is committed anyway.
	MaxAttempts int
	Backoff     time.Duration

	mu      sync.Mutex
	readers []*kafka.Reader
}

func NewKafkaBus(brokers []string, log zerolog.Logger) *KafkaBus {
	return &KafkaBus{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		log:         log,
		MaxAttempts: 5,
		Backoff:     500 * time.Millisecond,
	}
}

func (k *KafkaBus) Publish(ctx context.Context, m Message) error {
	return k.writer.WriteMessages(ctx, toKafka(m))
}

func toKafka(m Message) kafka.Message {
	return kafka.Message{
		Topic: m.RoutingKey,
		Key:   []byte(m.Key),
		Value: m.Body,
		Time:  time.Now(),
	}
}

func fromKafka(km kafka.Message) Message {
	return Message{RoutingKey: km.Topic, Key: string(km.Key), Body: km.Value}
}

func (k *KafkaBus) Subscribe(ctx context.Context, queue string, keys []string, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		GroupID:     queue,
		GroupTopics: keys,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	k.mu.Lock()
	k.readers = append(k.readers, r)
	k.mu.Unlock()

	go func() {
		for {
			km, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				k.log.Error().Err(err).Str("group", queue).Msg("fetch failed")
				time.Sleep(k.Backoff)
				continue
			}
			k.handle(ctx, queue, km, h)
			if err := r.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
				k.log.Error().Err(err).Str("topic", km.Topic).Int64("offset", km.Offset).Msg("commit failed")
			}
		}
	}()
	return nil
}

// handle retries h with a fixed backoff. Offsets are committed in order, so
// a message that keeps failing is logged and skipped.
func (k *KafkaBus) handle(ctx context.Context, queue string, km kafka.Message, h Handler) {
	m := fromKafka(km)
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return
		}
		if attempt >= k.MaxAttempts {
			k.log.Error().Err(err).Str("group", queue).Str("topic", km.Topic).Int("attempts", attempt).Msg("giving up on message")
			return
		}
		m.Redelivered = true
		select {
		case <-ctx.Done():
			return
		case <-time.After(k.Backoff):
		}
	}
}

func (k *KafkaBus) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	var errs []error
	for _, r := range k.readers {
		errs = append(errs, r.Close())
	}
	k.readers = nil
	errs = append(errs, k.writer.Close())
	return errors.Join(errs...)
}
