package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/metrics"
)

var _ adapter.FollowUpScheduler = (*FollowUpScheduler)(nil)

// Publisher hands a due follow-up to whoever delivers it.
type Publisher interface {
	PublishFollowUp(ctx context.Context, f adapter.FollowUp) error
}

// FollowUpScheduler fires one-shot follow-ups with time.AfterFunc.
// Pending timers live only in memory and are lost on restart.
type FollowUpScheduler struct {
	pub Publisher
	log *zerolog.Logger

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	stopped bool
}

func NewFollowUpScheduler(pub Publisher, logger *zerolog.Logger) *FollowUpScheduler {
	l := logger.With().Str("component", "FollowUpScheduler").Logger()
	return &FollowUpScheduler{pub: pub, log: &l, pending: make(map[*time.Timer]struct{})}
}

// Schedule returns immediately. The ctx only scopes the call, not the delayed send.
func (s *FollowUpScheduler) Schedule(ctx context.Context, f adapter.FollowUp) error {
	if f.ChatID == "" || f.Text == "" {
		return errors.New("follow-up needs chat id and text")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("scheduler stopped")
	}

	var timer *time.Timer
	timer = time.AfterFunc(f.Delay, func() {
		s.mu.Lock()
		delete(s.pending, timer)
		s.mu.Unlock()
		s.fire(f)
	})
	s.pending[timer] = struct{}{}
	metrics.IncFollowUp("scheduled")
	return nil
}

func (s *FollowUpScheduler) fire(f adapter.FollowUp) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.pub.PublishFollowUp(ctx, f); err != nil {
		metrics.IncFollowUp("dropped")
		s.log.Warn().Err(err).Str("channel", string(f.Channel)).Msg("follow-up dropped")
	}
}

// Pending reports how many follow-ups are still waiting.
func (s *FollowUpScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending follow-up.
func (s *FollowUpScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	n := len(s.pending)
	for t := range s.pending {
		t.Stop()
		delete(s.pending, t)
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("pending follow-ups cancelled")
	}
}
