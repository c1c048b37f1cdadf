package adapter

import (
	"context"

	"pizza-order-bot/internal/domain/model"
)

// CommerceGateway is the remote catalog/cart/customer backend.
// Every failure is reported as a *domain.UpstreamError.
type CommerceGateway interface {
	// ListProducts returns a 1-based page. An empty categoryID lists the whole catalog.
	ListProducts(ctx context.Context, page, perPage int, categoryID string) (model.ProductPage, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListCategories(ctx context.Context) ([]model.Category, error)

	CartItems(ctx context.Context, cartRef string) ([]model.CartItem, error)
	CartSummary(ctx context.Context, cartRef string) (*model.Cart, error)
	AddToCart(ctx context.Context, cartRef, productID string, qty int) error
	RemoveFromCart(ctx context.Context, cartRef, itemID string) error

	CreateCustomer(ctx context.Context, name, contact string) (string, error)

	ListEntries(ctx context.Context, flow string) ([]model.Entry, error)
	GetEntry(ctx context.Context, flow, id string) (*model.Entry, error)
	CreateEntry(ctx context.Context, flow string, fields map[string]any) (string, error)
}
