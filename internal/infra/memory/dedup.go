package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"pizza-order-bot/internal/domain/ports/repository"
)

var _ repository.EventDeduper = (*Deduper)(nil)

type Deduper struct {
	c *cache.Cache
}

func NewDeduper(window time.Duration) *Deduper {
	return &Deduper{c: cache.New(window, window)}
}

func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	_, ok := d.c.Get(eventID)
	return ok, nil
}

func (d *Deduper) Mark(ctx context.Context, eventID string) error {
	d.c.SetDefault(eventID, struct{}{})
	return nil
}
