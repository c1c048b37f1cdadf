package adapter

import (
	"context"

	"pizza-order-bot/internal/domain/model"
)

// Geocoder resolves a free-text address. found is false when the provider
// returned no candidates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (p model.Point, found bool, err error)
}
