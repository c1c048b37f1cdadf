package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain/ports/repository"
	"pizza-order-bot/internal/infra/metrics"
)

// InvoiceExpiryWorker periodically expires invoices nobody paid in time,
// so a stale invoice can no longer pass pre-checkout.
type InvoiceExpiryWorker struct {
	interval time.Duration
	maxAge   time.Duration
	invoices repository.InvoiceRepository
	log      *zerolog.Logger
	now      func() time.Time
}

func NewInvoiceExpiryWorker(interval, maxAge time.Duration, invoices repository.InvoiceRepository, logger *zerolog.Logger) *InvoiceExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	l := logger.With().Str("component", "InvoiceExpiryWorker").Logger()
	return &InvoiceExpiryWorker{
		interval: interval,
		maxAge:   maxAge,
		invoices: invoices,
		log:      &l,
		now:      time.Now,
	}
}

func (w *InvoiceExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("max_age", w.maxAge).Msg("Starting invoice expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping invoice expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *InvoiceExpiryWorker) tick(ctx context.Context) int {
	n, err := w.invoices.ExpirePending(ctx, w.now().Add(-w.maxAge))
	if err != nil {
		w.log.Error().Err(err).Msg("invoice expiry failed")
		return 0
	}
	if n > 0 {
		metrics.AddPayments("expired", n)
		w.log.Info().Int("count", n).Msg("stale invoices expired")
	}
	return n
}
