package telegram

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
)

var _ adapter.Messenger = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.Messenger for local/dev runs.
// It logs messages instead of sending them.
type NoopBotAdapter struct {
	channel model.Channel
	log     *zerolog.Logger
}

func NewNoopBotAdapter(channel model.Channel, logger *zerolog.Logger) *NoopBotAdapter {
	return &NoopBotAdapter{channel: channel, log: logger}
}

func (b *NoopBotAdapter) Channel() model.Channel { return b.channel }

func (b *NoopBotAdapter) Send(ctx context.Context, chatID string, msgs ...model.Message) error {
	// Simulate slight processing time and respect ctx
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, m := range msgs {
		b.log.Info().
			Str("channel", string(b.channel)).
			Str("chat_id", chatID).
			Str("kind", string(m.Kind)).
			Str("text", m.Text).
			Int("cards", len(m.Cards)).
			Msg("noop send")
	}
	return nil
}
