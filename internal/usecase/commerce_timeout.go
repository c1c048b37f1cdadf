package usecase

import (
	"context"
	"errors"
	"time"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
)

var _ adapter.CommerceGateway = (*timedCommerce)(nil)

// timedCommerce bounds every gateway call so a stalled backend cannot hold
// a session lock. Deadline overruns surface as upstream failures.
type timedCommerce struct {
	next    adapter.CommerceGateway
	timeout time.Duration
}

func WithCallTimeout(next adapter.CommerceGateway, timeout time.Duration) adapter.CommerceGateway {
	return &timedCommerce{next: next, timeout: timeout}
}

func (c *timedCommerce) wrap(op string, err error) error {
	if err == nil || errors.Is(err, domain.ErrUpstreamUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Upstream("commerce", op, 0, err)
	}
	return err
}

func (c *timedCommerce) ListProducts(ctx context.Context, page, perPage int, categoryID string) (model.ProductPage, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.ListProducts(ctx, page, perPage, categoryID)
	return res, c.wrap("list_products", err)
}

func (c *timedCommerce) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.GetProduct(ctx, id)
	return res, c.wrap("get_product", err)
}

func (c *timedCommerce) ListCategories(ctx context.Context) ([]model.Category, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.ListCategories(ctx)
	return res, c.wrap("list_categories", err)
}

func (c *timedCommerce) CartItems(ctx context.Context, cartRef string) ([]model.CartItem, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.CartItems(ctx, cartRef)
	return res, c.wrap("cart_items", err)
}

func (c *timedCommerce) CartSummary(ctx context.Context, cartRef string) (*model.Cart, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.CartSummary(ctx, cartRef)
	return res, c.wrap("cart_summary", err)
}

func (c *timedCommerce) AddToCart(ctx context.Context, cartRef, productID string, qty int) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.wrap("add_to_cart", c.next.AddToCart(ctx, cartRef, productID, qty))
}

func (c *timedCommerce) RemoveFromCart(ctx context.Context, cartRef, itemID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.wrap("remove_from_cart", c.next.RemoveFromCart(ctx, cartRef, itemID))
}

func (c *timedCommerce) CreateCustomer(ctx context.Context, name, contact string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.CreateCustomer(ctx, name, contact)
	return res, c.wrap("create_customer", err)
}

func (c *timedCommerce) ListEntries(ctx context.Context, flow string) ([]model.Entry, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.ListEntries(ctx, flow)
	return res, c.wrap("list_entries", err)
}

func (c *timedCommerce) GetEntry(ctx context.Context, flow, id string) (*model.Entry, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.GetEntry(ctx, flow, id)
	return res, c.wrap("get_entry", err)
}

func (c *timedCommerce) CreateEntry(ctx context.Context, flow string, fields map[string]any) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.next.CreateEntry(ctx, flow, fields)
	return res, c.wrap("create_entry", err)
}
