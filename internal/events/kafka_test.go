package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaMessageMapping(t *testing.T) {
	km := toKafka(Message{RoutingKey: RKOrderItemPlaced, Key: "7", Body: []byte(`{}`)})
	require.Equal(t, RKOrderItemPlaced, km.Topic)
	require.Equal(t, []byte("7"), km.Key)

	m := fromKafka(kafka.Message{Topic: RKPaymentFailed, Key: []byte("o-1"), Value: []byte(`{}`)})
	require.Equal(t, RKPaymentFailed, m.RoutingKey)
	require.Equal(t, "o-1", m.Key)
}

func TestKafkaHandleRetriesThenGivesUp(t *testing.T) {
	k := NewKafkaBus([]string{"localhost:9092"}, zerolog.Nop())
	k.MaxAttempts = 3
	k.Backoff = time.Millisecond

	calls := 0
	var redelivered []bool
	k.handle(context.Background(), "g", kafka.Message{Topic: RKOrderItemPlaced}, func(_ context.Context, m Message) error {
		calls++
		redelivered = append(redelivered, m.Redelivered)
		return errors.New("boom")
	})
	require.Equal(t, 3, calls)
	require.Equal(t, []bool{false, true, true}, redelivered)

	calls = 0
	k.handle(context.Background(), "g", kafka.Message{}, func(context.Context, Message) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.Equal(t, 2, calls)
}
