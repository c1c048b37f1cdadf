package telegram

import (
	"context"
	"errors"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/logging"
	"pizza-order-bot/internal/infra/metrics"
	red "pizza-order-bot/internal/infra/redis"
	"pizza-order-bot/internal/infra/worker"
)

var _ adapter.Messenger = (*RealBotAdapter)(nil)

// botAPI is the part of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// EventHandler consumes normalized events. The conversation engine implements it.
type EventHandler interface {
	Handle(ctx context.Context, ev model.Event) (*model.Outcome, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Translator interface {
	T(key string, args ...interface{}) string
}

// RealBotAdapter long-polls Telegram, feeds updates to the engine and renders replies.
type RealBotAdapter struct {
	bot         botAPI
	cfg         config.TelegramConfig
	payment     config.PaymentConfig
	handler     EventHandler
	rateLimiter RateLimiter
	tr          Translator
	log         *zerolog.Logger

	cancelPolling context.CancelFunc
}

func NewRealBotAdapter(
	cfg config.TelegramConfig,
	payment config.PaymentConfig,
	handler EventHandler,
	rateLimiter RateLimiter,
	tr Translator,
	logger *zerolog.Logger,
) (*RealBotAdapter, error) {
	if handler == nil {
		return nil, errors.New("event handler is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return newAdapter(bot, cfg, payment, handler, rateLimiter, tr, logger), nil
}

func newAdapter(
	bot botAPI,
	cfg config.TelegramConfig,
	payment config.PaymentConfig,
	handler EventHandler,
	rateLimiter RateLimiter,
	tr Translator,
	logger *zerolog.Logger,
) *RealBotAdapter {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &RealBotAdapter{
		bot:         bot,
		cfg:         cfg,
		payment:     payment,
		handler:     handler,
		rateLimiter: rateLimiter,
		tr:          tr,
		log:         &l,
	}
}

func (r *RealBotAdapter) Channel() model.Channel { return model.ChannelTelegram }

// StartPolling blocks until ctx is cancelled or StopPolling is called.
func (r *RealBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = r.cfg.Timeout
	if u.Timeout <= 0 {
		u.Timeout = 60
	}
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	pool := worker.NewPool("telegram", r.cfg.Workers, r.log)
	pool.Start(ctx)
	defer pool.Stop()

	r.log.Info().Int("workers", r.cfg.Workers).Msg("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			err := pool.SubmitWait(ctx, func(ctx context.Context) error {
				return r.HandleUpdate(ctx, up)
			})
			if err != nil && ctx.Err() == nil {
				r.log.Warn().Err(err).Int("update_id", up.UpdateID).Msg("update dropped")
			}
		}
	}
}

func (r *RealBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// HandleUpdate runs one update through the engine and sends back whatever it rendered.
func (r *RealBotAdapter) HandleUpdate(ctx context.Context, up tgbotapi.Update) error {
	ev, ok := normalize(up)
	if !ok {
		return nil
	}
	ctx = logging.WithTraceID(ctx, ev.ID)
	log := logging.With(ctx, r.log)

	if up.CallbackQuery != nil {
		defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(up.CallbackQuery.ID, "")) }()
	}

	if !ev.IsPayment() && !r.allow(ctx, ev) {
		return r.Send(ctx, ev.ChatID, model.Text(r.tr.T("rate.limited")))
	}

	out, err := r.handler.Handle(ctx, ev)

	if ev.Kind == model.EventPaymentPrecheck {
		return r.answerPreCheckout(ev.Payment.QueryID, err)
	}
	if err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("event not handled")
	}
	if out == nil || out.Duplicate || len(out.Messages) == 0 {
		return nil
	}
	return r.Send(ctx, ev.ChatID, out.Messages...)
}

func (r *RealBotAdapter) allow(ctx context.Context, ev model.Event) bool {
	if r.rateLimiter == nil || r.cfg.RateMax <= 0 {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, red.UserEventKey(string(ev.Channel), ev.UserID), r.cfg.RateMax, r.cfg.RateWin)
	if err != nil {
		r.log.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

func (r *RealBotAdapter) answerPreCheckout(queryID string, handleErr error) error {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: queryID, OK: handleErr == nil}
	if handleErr != nil {
		answer.ErrorMessage = r.tr.T("payment.rejected")
	}
	_, err := r.bot.Request(answer)
	return err
}

// Send renders msgs for the chat. Photo cards that Telegram refuses fall back to text.
func (r *RealBotAdapter) Send(ctx context.Context, chatID string, msgs ...model.Message) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return errors.New("telegram: bad chat id " + strconv.Quote(chatID))
	}
	for _, m := range msgs {
		for _, o := range r.render(id, m) {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := r.bot.Send(o.msg)
			if err != nil && o.fallback != nil {
				r.log.Debug().Err(err).Msg("photo rejected, sending text")
				_, err = r.bot.Send(o.fallback)
			}
			metrics.IncOutbound(string(model.ChannelTelegram), err == nil)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
