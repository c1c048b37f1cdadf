package redis

import (
	"context"
	"time"

	"pizza-order-bot/internal/domain/ports/repository"
)

var _ repository.EventDeduper = (*Deduper)(nil)

type Deduper struct {
	client *redClient
	window time.Duration
}

func NewDeduper(client *redClient, window time.Duration) *Deduper {
	return &Deduper{client: client, window: window}
}

func dedupKey(eventID string) string { return "seen:" + eventID }

func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	return d.client.Exists(ctx, dedupKey(eventID))
}

func (d *Deduper) Mark(ctx context.Context, eventID string) error {
	_, err := d.client.SetNX(ctx, dedupKey(eventID), 1, d.window)
	return err
}
