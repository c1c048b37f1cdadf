package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/domain/ports/repository"
	"pizza-order-bot/internal/infra/adapters/facebook"
	"pizza-order-bot/internal/infra/adapters/geocoder"
	"pizza-order-bot/internal/infra/adapters/moltin"
	tele "pizza-order-bot/internal/infra/adapters/telegram"
	pg "pizza-order-bot/internal/infra/db/postgres"
	"pizza-order-bot/internal/infra/events"
	"pizza-order-bot/internal/infra/i18n"
	"pizza-order-bot/internal/infra/logging"
	"pizza-order-bot/internal/infra/memory"
	"pizza-order-bot/internal/infra/metrics"
	red "pizza-order-bot/internal/infra/redis"
	"pizza-order-bot/internal/infra/sched"
	"pizza-order-bot/internal/infra/web"
	"pizza-order-bot/internal/infra/worker"
	"pizza-order-bot/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

type stores struct {
	sessions repository.SessionStore
	locker   repository.Locker
	dedup    repository.EventDeduper
	limiter  tele.RateLimiter
	invoices repository.InvoiceRepository
	commerce adapter.CommerceGateway
	checks   map[string]web.Pinger
	closers  []func()
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: in-memory stores when redis/database are not configured")
	mintTTL := flag.Duration("mint-admin-token", 0, "print an admin API token valid for the given duration and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if *mintTTL > 0 {
		if cfg.Admin.JWTSecret == "" {
			logger.Fatal().Msg("admin.jwt_secret is not set")
		}
		tok, err := web.NewAuthenticator(cfg.Admin.JWTSecret).Mint("operator", *mintTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint admin token")
		}
		fmt.Println(tok)
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting pizza bot")

	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.I18n.Lang)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(st.closers) - 1; i >= 0; i-- {
			st.closers[i]()
		}
	}()

	commerce := usecase.WithCallTimeout(st.commerce, cfg.Conversation.UpstreamTimeout)
	location := usecase.NewLocationUseCase(geocoder.NewYandex(cfg.Geocoder, logger), commerce, tr, cfg.Conversation.UpstreamTimeout, logger)
	payments := usecase.NewPaymentUseCase(st.invoices, tr, cfg.Payment.Currency, logger)

	bus := events.NewBus(logger)
	defer bus.Close()
	followUps := sched.NewFollowUpScheduler(bus, logger)
	defer followUps.Stop()

	paymentChannels := map[model.Channel]bool{}
	if cfg.Telegram.Enabled && cfg.Payment.ProviderToken != "" {
		paymentChannels[model.ChannelTelegram] = true
	}
	engine := usecase.NewConversationEngine(usecase.EngineDeps{
		Commerce:   commerce,
		Sessions:   st.sessions,
		Locker:     st.locker,
		Dedup:      st.dedup,
		Location:   location,
		Payments:   payments,
		Notifier:   bus,
		FollowUps:  followUps,
		Translator: tr,
		Logger:     logger,
	}, usecase.EngineConfig{
		LockTTL:         cfg.Conversation.LockTTL,
		LockWait:        cfg.Conversation.LockWait,
		FollowUpDelay:   cfg.Conversation.FollowUpDelay,
		ProductsPerPage: cfg.Conversation.ProductsPerPage,
		PaymentChannels: paymentChannels,
		FrontPageCategory: map[model.Channel]string{
			model.ChannelFacebook: cfg.Facebook.FrontPageCategory,
		},
		Dev: cfg.Runtime.Dev,
	})

	var messengers []adapter.Messenger

	// ---- Telegram ----
	var tg *tele.RealBotAdapter
	if cfg.Telegram.Enabled {
		tg, err = tele.NewRealBotAdapter(cfg.Telegram, cfg.Payment, engine, st.limiter, tr, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		messengers = append(messengers, tg)
	} else {
		messengers = append(messengers, tele.NewNoopBotAdapter(model.ChannelTelegram, logger))
	}

	// ---- Facebook ----
	var fbHook web.Webhook
	if cfg.Facebook.Enabled {
		client := facebook.NewClient(cfg.Facebook, logger)
		fbPool := worker.NewPool("facebook", cfg.Facebook.Workers, logger)
		fbPool.Start(ctx)
		defer fbPool.Stop()
		fbHook = facebook.NewWebhook(cfg.Facebook.VerifyToken, engine, client, fbPool, logger)
		messengers = append(messengers, client)
	} else {
		messengers = append(messengers, tele.NewNoopBotAdapter(model.ChannelFacebook, logger))
	}

	// Couriers are reached on Telegram.
	dispatcher := events.NewDispatcher(bus, model.ChannelTelegram, logger, messengers...)
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	expiry := sched.NewInvoiceExpiryWorker(time.Minute, cfg.Payment.InvoiceTTL, st.invoices, logger)
	go func() { _ = expiry.Run(ctx) }()

	// ---- HTTP ----
	var auth *web.Authenticator
	if cfg.Admin.JWTSecret != "" {
		auth = web.NewAuthenticator(cfg.Admin.JWTSecret)
	} else {
		logger.Warn().Msg("admin.jwt_secret not set, admin API disabled")
	}
	srv := web.NewServer(cfg.HTTP, web.Deps{
		Sessions: engine,
		Invoices: st.invoices,
		Facebook: fbHook,
		Auth:     auth,
		Checks:   st.checks,
	}, logger)

	errc := make(chan error, 2)
	go func() { errc <- srv.Start() }()
	if tg != nil {
		go func() {
			if err := tg.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("telegram polling: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("component failed, shutting down")
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if tg != nil {
		tg.StopPolling()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	dispatcher.Wait()
	logger.Info().Int("pending_followups", followUps.Pending()).Msg("bye")
	return nil
}

// openStores picks Redis/Postgres backed stores, or in-memory ones in dev mode
// when the URLs are left empty.
func openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	st := &stores{checks: map[string]web.Pinger{}}
	commerce := moltin.New(cfg.Commerce, logger)

	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		st.closers = append(st.closers, func() { _ = rc.Close() })
		st.checks["redis"] = rc
		st.sessions = red.NewSessionStore(rc, cfg.Conversation.SessionTTL)
		st.locker = red.NewLocker(rc, logger)
		st.dedup = red.NewDeduper(rc, cfg.Conversation.DedupTTL)
		st.limiter = red.NewRateLimiter(rc)
		st.commerce = red.NewCatalogCache(commerce, rc, cfg.Redis.CacheTTL, logger)
	} else {
		logger.Warn().Msg("redis.url empty, using in-memory session store (dev only)")
		st.sessions = memory.NewSessionStore(cfg.Conversation.SessionTTL)
		st.locker = memory.NewLocker()
		st.dedup = memory.NewDeduper(cfg.Conversation.DedupTTL)
		st.limiter = memory.NewRateLimiter()
		st.commerce = commerce
	}

	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.checks["postgres"] = pool
		st.invoices = pg.NewInvoiceRepo(pool)
	} else {
		logger.Warn().Msg("database.url empty, invoices are kept in memory")
		st.invoices = memory.NewInvoiceRepo()
	}
	return st, nil
}
