package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/metrics"
)

var _ adapter.CommerceGateway = (*CatalogCache)(nil)

// CatalogCache caches the read-only catalog calls of a CommerceGateway.
// Cart, customer and entry writes always reach the backend.
type CatalogCache struct {
	adapter.CommerceGateway
	client *redClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewCatalogCache(next adapter.CommerceGateway, client *redClient, ttl time.Duration, logger *zerolog.Logger) *CatalogCache {
	return &CatalogCache{CommerceGateway: next, client: client, ttl: ttl, log: logger}
}

// cached loads key into out, or calls fill and stores its result.
func cached[T any](ctx context.Context, c *CatalogCache, name, key string, fill func() (T, error)) (T, error) {
	var out T
	if data, err := c.client.Get(ctx, key); err == nil {
		if err := json.Unmarshal([]byte(data), &out); err == nil {
			metrics.IncCacheRequest(name, "hit")
			return out, nil
		}
	} else if !isNil(err) {
		c.log.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	}
	metrics.IncCacheRequest(name, "miss")

	out, err := fill()
	if err != nil {
		return out, err
	}
	if data, err := json.Marshal(out); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
		}
	}
	return out, nil
}

func (c *CatalogCache) ListProducts(ctx context.Context, page, perPage int, categoryID string) (model.ProductPage, error) {
	key := fmt.Sprintf("catalog:products:%s:%d:%d", categoryID, perPage, page)
	return cached(ctx, c, "products", key, func() (model.ProductPage, error) {
		return c.CommerceGateway.ListProducts(ctx, page, perPage, categoryID)
	})
}

func (c *CatalogCache) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return cached(ctx, c, "product", "catalog:product:"+id, func() (*model.Product, error) {
		return c.CommerceGateway.GetProduct(ctx, id)
	})
}

func (c *CatalogCache) ListCategories(ctx context.Context) ([]model.Category, error) {
	return cached(ctx, c, "categories", "catalog:categories", func() ([]model.Category, error) {
		return c.CommerceGateway.ListCategories(ctx)
	})
}

// ListEntries caches only the store flow; customer addresses change per order.
func (c *CatalogCache) ListEntries(ctx context.Context, flow string) ([]model.Entry, error) {
	if flow != model.FlowPizzeria {
		return c.CommerceGateway.ListEntries(ctx, flow)
	}
	return cached(ctx, c, "stores", "catalog:entries:"+flow, func() ([]model.Entry, error) {
		return c.CommerceGateway.ListEntries(ctx, flow)
	})
}
