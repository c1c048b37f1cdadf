package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/logging"
	"pizza-order-bot/internal/infra/metrics"
)

// Dispatcher delivers bus messages through the messenger of the target channel.
// Delivery failures are logged and dropped; messages are always acked.
type Dispatcher struct {
	bus        *Bus
	messengers map[model.Channel]adapter.Messenger
	// courier is the platform couriers are reached on.
	courier     model.Channel
	sendTimeout time.Duration
	log         *zerolog.Logger
	wg          sync.WaitGroup
}

func NewDispatcher(bus *Bus, courier model.Channel, logger *zerolog.Logger, messengers ...adapter.Messenger) *Dispatcher {
	m := make(map[model.Channel]adapter.Messenger, len(messengers))
	for _, ms := range messengers {
		m[ms.Channel()] = ms
	}
	l := logger.With().Str("component", "dispatcher").Logger()
	return &Dispatcher{
		bus:         bus,
		messengers:  m,
		courier:     courier,
		sendTimeout: 15 * time.Second,
		log:         &l,
	}
}

// Start subscribes to both topics and consumes in the background until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	relays, err := d.bus.Subscribe(ctx, TopicOrderRelay)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicOrderRelay, err)
	}
	followUps, err := d.bus.Subscribe(ctx, TopicFollowUp)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicFollowUp, err)
	}

	d.wg.Add(2)
	go d.consume(ctx, relays, d.handleRelay)
	go d.consume(ctx, followUps, d.handleFollowUp)
	return nil
}

// Wait blocks until both consumers have stopped.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) consume(ctx context.Context, msgs <-chan *message.Message, fn func(context.Context, *message.Message) error) {
	defer d.wg.Done()
	for msg := range msgs {
		mctx := ctx
		if id := msg.Metadata.Get(metaTraceID); id != "" {
			mctx = logging.WithTraceID(ctx, id)
		}
		if err := fn(mctx, msg); err != nil {
			log := logging.With(mctx, d.log)
			log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("bus message dropped")
		}
		msg.Ack()
	}
}

func (d *Dispatcher) handleRelay(ctx context.Context, msg *message.Message) error {
	var relay adapter.OrderRelay
	if err := json.Unmarshal(msg.Payload, &relay); err != nil {
		return fmt.Errorf("decode relay: %w", err)
	}
	loc := relay.Location
	return d.send(ctx, d.courier, relay.CourierChatID,
		model.Text(relay.Summary),
		model.Message{Kind: model.MessageLocation, Location: &loc},
	)
}

func (d *Dispatcher) handleFollowUp(ctx context.Context, msg *message.Message) error {
	var f adapter.FollowUp
	if err := json.Unmarshal(msg.Payload, &f); err != nil {
		metrics.IncFollowUp("dropped")
		return fmt.Errorf("decode follow-up: %w", err)
	}
	if err := d.send(ctx, f.Channel, f.ChatID, model.Text(f.Text)); err != nil {
		metrics.IncFollowUp("dropped")
		return err
	}
	metrics.IncFollowUp("sent")
	return nil
}

func (d *Dispatcher) send(ctx context.Context, ch model.Channel, chatID string, msgs ...model.Message) error {
	m, ok := d.messengers[ch]
	if !ok {
		return fmt.Errorf("no messenger for channel %q", ch)
	}
	if chatID == "" {
		return fmt.Errorf("empty chat id for channel %q", ch)
	}
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return m.Send(ctx, chatID, msgs...)
}
