package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/domain/ports/repository"
	"pizza-order-bot/internal/infra/logging"
	"pizza-order-bot/internal/infra/metrics"
)

// Compile-time check
var _ ConversationEngine = (*engine)(nil)

// ConversationEngine turns normalized inbound events into state transitions.
type ConversationEngine interface {
	// Handle processes one event. On failure the returned Outcome, when non-nil,
	// still carries the messages the user should see.
	Handle(ctx context.Context, ev model.Event) (*model.Outcome, error)
	// Inspect returns the stored session for key.
	Inspect(ctx context.Context, key model.SessionKey) (*model.Session, error)
	// Reset puts the session back to START without rendering anything.
	Reset(ctx context.Context, key model.SessionKey) error
}

// EngineConfig holds tunables for the engine.
type EngineConfig struct {
	LockTTL         time.Duration
	LockWait        time.Duration
	FollowUpDelay   time.Duration
	ProductsPerPage int
	// PaymentChannels lists channels with an online payment step after delivery.
	PaymentChannels map[model.Channel]bool
	// FrontPageCategory is the category a channel's menu opens on after /start.
	FrontPageCategory map[model.Channel]string
	Dev               bool
}

// EngineDeps is the explicitly constructed context handed to every state handler.
// Notifier, FollowUps and Dedup are optional.
type EngineDeps struct {
	Commerce   adapter.CommerceGateway
	Sessions   repository.SessionStore
	Locker     repository.Locker
	Dedup      repository.EventDeduper
	Location   LocationUseCase
	Payments   PaymentUseCase
	Notifier   adapter.OrderNotifier
	FollowUps  adapter.FollowUpScheduler
	Translator Translator
	Logger     *zerolog.Logger
}

type engine struct {
	EngineDeps
	cfg      EngineConfig
	handlers map[model.State]StateHandler
	now      func() time.Time
}

func NewConversationEngine(deps EngineDeps, cfg EngineConfig) *engine {
	if cfg.ProductsPerPage <= 0 {
		cfg.ProductsPerPage = 9
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 10 * time.Second
	}
	e := &engine{EngineDeps: deps, cfg: cfg, now: time.Now}
	e.handlers = make(map[model.State]StateHandler, len(model.States))
	for _, h := range []StateHandler{
		startHandler{e},
		browsingHandler{e},
		productDetailHandler{e},
		cartEditHandler{e},
		awaitingAddressHandler{e},
		orderRoutingHandler{e},
		awaitingPaymentHandler{e},
		finishedHandler{e},
	} {
		e.handlers[h.State()] = h
	}
	return e
}

func lockKey(key model.SessionKey) string { return "lock:" + key.String() }

func (e *engine) Handle(ctx context.Context, ev model.Event) (*model.Outcome, error) {
	start := e.now()
	key := ev.Key()
	ctx = logging.WithChannel(ctx, string(ev.Channel))
	ctx = logging.WithUserID(ctx, ev.UserID)
	ctx = logging.WithSession(ctx, key.String())
	log := logging.With(ctx, e.Logger)
	defer logging.TraceDuration(log, "Engine.Handle")()

	shapeErr := ev.Validate()
	if errors.Is(shapeErr, domain.ErrInvalidArgument) {
		return nil, fmt.Errorf("handle event: %w", shapeErr)
	}
	metrics.IncEvent(string(ev.Channel), string(ev.Kind))

	if ev.IsPayment() && shapeErr == nil {
		return e.handlePayment(ctx, log, ev)
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockWait)
	release, err := e.Locker.Acquire(lockCtx, lockKey(key), e.cfg.LockTTL)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("session lock not acquired")
		return e.failure(key, ""), fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
	}
	defer release()

	if ev.ID != "" && e.Dedup != nil {
		seen, err := e.Dedup.Seen(ctx, ev.ID)
		if err != nil {
			log.Warn().Err(err).Msg("dedup lookup failed, processing anyway")
		} else if seen {
			metrics.IncDuplicateEvent(string(ev.Channel))
			log.Debug().Str("event_id", ev.ID).Msg("duplicate event skipped")
			return &model.Outcome{Key: key, Duplicate: true}, nil
		}
	}

	stored, err := e.Sessions.Load(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("load session")
		return e.failure(key, ""), fmt.Errorf("load session: %w", err)
	}
	from := stored.State

	sess := stored.Clone()
	if ev.ChatID != "" {
		sess.ChatID = ev.ChatID
	}
	if ev.IsStart() {
		sess.Reset()
	}

	var tr Transition
	if shapeErr != nil {
		err = shapeErr
	} else {
		turn := &Turn{Event: ev, Session: sess}
		tr, err = e.handlers[sess.State].Handle(ctx, turn)
	}
	defer func() { metrics.ObserveHandler(string(from), e.now().Sub(start)) }()

	switch {
	case errors.Is(err, domain.ErrInvalidEventShape):
		metrics.IncInvalidEvent(string(from))
		log.Debug().Str("state", string(from)).Str("kind", string(ev.Kind)).Str("payload", ev.Payload).Msg("event does not fit state, repeating prompt")
		e.markSeen(ctx, log, ev)
		return &model.Outcome{Key: key, From: from, To: from, Messages: e.repeatPrompt(stored)}, nil
	case err != nil:
		var up *domain.UpstreamError
		if errors.As(err, &up) {
			metrics.IncUpstreamError(up.Service, up.Op)
		} else {
			metrics.IncUpstreamError("unknown", string(from))
		}
		log.Error().Err(err).Str("state", string(from)).Msg("handler failed, state not advanced")
		return e.failure(key, from), fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	if !tr.Next.Valid() {
		return e.failure(key, from), fmt.Errorf("handler for %s returned invalid state %q", from, tr.Next)
	}
	sess.State = tr.Next
	if tr.Prompt {
		sess.LastPrompt = tr.Messages
	}
	sess.UpdatedAt = e.now()
	if err := e.Sessions.Save(ctx, sess); err != nil {
		log.Error().Err(err).Msg("save session")
		return e.failure(key, from), fmt.Errorf("save session: %w", err)
	}
	e.markSeen(ctx, log, ev)

	metrics.IncTransition(string(from), string(sess.State))
	log.Info().
		Str("kind", string(ev.Kind)).
		Str("from", string(from)).
		Str("to", string(sess.State)).
		Dur("duration", e.now().Sub(start)).
		Msg("event handled")

	return &model.Outcome{Key: key, From: from, To: sess.State, Messages: tr.Messages}, nil
}

func (e *engine) handlePayment(ctx context.Context, log *zerolog.Logger, ev model.Event) (*model.Outcome, error) {
	key := ev.Key()
	state, _, err := e.Sessions.Get(ctx, key)
	if err != nil {
		state = model.StateStart
	}
	out := &model.Outcome{Key: key, From: state, To: state}

	switch ev.Kind {
	case model.EventPaymentPrecheck:
		if err := e.Payments.PreCheckout(ctx, key, *ev.Payment); err != nil {
			return out, err
		}
		log.Info().Str("payload", ev.Payment.InvoicePayload).Msg("payment pre-checkout accepted")
	case model.EventPaymentSuccess:
		if _, err := e.Payments.Complete(ctx, key, *ev.Payment); err != nil {
			if errors.Is(err, domain.ErrPaymentPayloadMismatch) {
				out.Messages = []model.Message{model.Text(e.Translator.T("payment.rejected"))}
			}
			return out, err
		}
		out.Messages = []model.Message{model.Text(e.Translator.T("payment.thanks"))}
	}
	return out, nil
}

func (e *engine) markSeen(ctx context.Context, log *zerolog.Logger, ev model.Event) {
	if ev.ID == "" || e.Dedup == nil {
		return
	}
	if err := e.Dedup.Mark(ctx, ev.ID); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("dedup mark failed")
	}
}

func (e *engine) repeatPrompt(s *model.Session) []model.Message {
	if len(s.LastPrompt) > 0 {
		return s.LastPrompt
	}
	return []model.Message{model.Text(e.Translator.T("prompt.unknown"))}
}

func (e *engine) failure(key model.SessionKey, state model.State) *model.Outcome {
	return &model.Outcome{
		Key:      key,
		From:     state,
		To:       state,
		Messages: []model.Message{model.Text(e.Translator.T("error.upstream"))},
	}
}

func (e *engine) Inspect(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	return e.Sessions.Load(ctx, key)
}

func (e *engine) Reset(ctx context.Context, key model.SessionKey) error {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockWait)
	release, err := e.Locker.Acquire(lockCtx, lockKey(key), e.cfg.LockTTL)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
	}
	defer release()

	sess, err := e.Sessions.Load(ctx, key)
	if err != nil {
		return err
	}
	sess.Reset()
	sess.UpdatedAt = e.now()
	return e.Sessions.Save(ctx, sess)
}

func (e *engine) paymentsEnabled(ch model.Channel) bool {
	return e.Payments != nil && e.cfg.PaymentChannels[ch]
}
