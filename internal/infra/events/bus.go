package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/logging"
)

const (
	TopicOrderRelay = "order.relay"
	TopicFollowUp   = "followup.send"
)

const metaTraceID = "trace_id"

var _ adapter.OrderNotifier = (*Bus)(nil)

// Bus is the in-process pub/sub between the engine and the outbound messengers.
type Bus struct {
	pubsub *gochannel.GoChannel
	log    *zerolog.Logger
}

func NewBus(logger *zerolog.Logger) *Bus {
	l := logger.With().Str("component", "events").Logger()
	ps := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		NewWatermillLogger(&l),
	)
	return &Bus{pubsub: ps, log: &l}
}

// RelayOrder queues the order for the courier. Delivery happens in the Dispatcher.
func (b *Bus) RelayOrder(ctx context.Context, relay adapter.OrderRelay) error {
	return b.publish(ctx, TopicOrderRelay, relay)
}

func (b *Bus) PublishFollowUp(ctx context.Context, f adapter.FollowUp) error {
	return b.publish(ctx, TopicFollowUp, f)
}

func (b *Bus) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if id := logging.TraceID(ctx); id != "" {
		msg.Metadata.Set(metaTraceID, id)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

func (b *Bus) Close() error { return b.pubsub.Close() }
