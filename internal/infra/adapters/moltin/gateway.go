package moltin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
)

var _ adapter.CommerceGateway = (*Client)(nil)

const entriesPageLimit = 50

func (c *Client) ListProducts(ctx context.Context, page, perPage int, categoryID string) (model.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page[limit]", strconv.Itoa(perPage))
	q.Set("page[offset]", strconv.Itoa((page-1)*perPage))
	q.Set("include", "main_image")
	if categoryID != "" {
		q.Set("filter", fmt.Sprintf("eq(category.id,%s)", categoryID))
	}
	body, err := c.do(ctx, "list_products", http.MethodGet, "/v2/products", q, nil)
	if err != nil {
		return model.ProductPage{}, err
	}
	res := gjson.ParseBytes(body)
	images := imageIndex(res)

	out := model.ProductPage{Page: page, Pages: int(res.Get("meta.page.total").Int())}
	res.Get("data").ForEach(func(_, p gjson.Result) bool {
		out.Products = append(out.Products, parseProduct(p, images))
		return true
	})
	if out.Pages == 0 && len(out.Products) > 0 {
		out.Pages = 1
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	q := url.Values{"include": {"main_image"}}
	body, err := c.do(ctx, "get_product", http.MethodGet, "/v2/products/"+url.PathEscape(id), q, nil)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	p := parseProduct(res.Get("data"), imageIndex(res))
	return &p, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	body, err := c.do(ctx, "list_categories", http.MethodGet, "/v2/categories", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []model.Category
	gjson.GetBytes(body, "data").ForEach(func(_, v gjson.Result) bool {
		out = append(out, model.Category{
			ID:   v.Get("id").String(),
			Name: v.Get("name").String(),
			Slug: v.Get("slug").String(),
		})
		return true
	})
	return out, nil
}

func (c *Client) CartItems(ctx context.Context, cartRef string) ([]model.CartItem, error) {
	body, err := c.do(ctx, "cart_items", http.MethodGet, "/v2/carts/"+url.PathEscape(cartRef)+"/items", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []model.CartItem
	gjson.GetBytes(body, "data").ForEach(func(_, v gjson.Result) bool {
		out = append(out, model.CartItem{
			ID:          v.Get("id").String(),
			ProductID:   v.Get("product_id").String(),
			Name:        v.Get("name").String(),
			Description: v.Get("description").String(),
			Quantity:    int(v.Get("quantity").Int()),
			UnitPrice:   v.Get("meta.display_price.with_tax.unit.formatted").String(),
			LinePrice:   v.Get("meta.display_price.with_tax.value.formatted").String(),
		})
		return true
	})
	return out, nil
}

func (c *Client) CartSummary(ctx context.Context, cartRef string) (*model.Cart, error) {
	body, err := c.do(ctx, "cart_summary", http.MethodGet, "/v2/carts/"+url.PathEscape(cartRef), nil, nil)
	if err != nil {
		return nil, err
	}
	price := gjson.GetBytes(body, "data.meta.display_price.with_tax")
	cart := &model.Cart{
		TotalAmount:    int(price.Get("amount").Int()),
		Currency:       price.Get("currency").String(),
		TotalFormatted: price.Get("formatted").String(),
	}
	if cart.Currency == "" {
		cart.Currency = c.currency
	}
	return cart, nil
}

func (c *Client) AddToCart(ctx context.Context, cartRef, productID string, qty int) error {
	body := map[string]any{"data": map[string]any{
		"id":       productID,
		"type":     "cart_item",
		"quantity": qty,
	}}
	_, err := c.do(ctx, "add_to_cart", http.MethodPost, "/v2/carts/"+url.PathEscape(cartRef)+"/items", nil, body)
	return err
}

func (c *Client) RemoveFromCart(ctx context.Context, cartRef, itemID string) error {
	path := "/v2/carts/" + url.PathEscape(cartRef) + "/items/" + url.PathEscape(itemID)
	_, err := c.do(ctx, "remove_from_cart", http.MethodDelete, path, nil, nil)
	return err
}

// CreateCustomer registers a customer. The backend requires an email, so a
// contact without one is turned into a synthetic address.
func (c *Client) CreateCustomer(ctx context.Context, name, contact string) (string, error) {
	email := contact
	if !strings.Contains(email, "@") {
		email = strings.NewReplacer(":", ".", " ", "").Replace(contact) + "@customers.pizza-bot.invalid"
	}
	body := map[string]any{"data": map[string]any{
		"type":  "customer",
		"name":  name,
		"email": email,
	}}
	resp, err := c.do(ctx, "create_customer", http.MethodPost, "/v2/customers", nil, body)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(resp, "data.id").String(), nil
}

// ListEntries walks every page of the flow.
func (c *Client) ListEntries(ctx context.Context, flow string) ([]model.Entry, error) {
	var out []model.Entry
	for offset := 0; ; offset += entriesPageLimit {
		q := url.Values{}
		q.Set("page[limit]", strconv.Itoa(entriesPageLimit))
		q.Set("page[offset]", strconv.Itoa(offset))
		body, err := c.do(ctx, "list_entries", http.MethodGet, "/v2/flows/"+url.PathEscape(flow)+"/entries", q, nil)
		if err != nil {
			return nil, err
		}
		res := gjson.ParseBytes(body)
		res.Get("data").ForEach(func(_, v gjson.Result) bool {
			out = append(out, parseEntry(v))
			return true
		})
		cur, total := res.Get("meta.page.current").Int(), res.Get("meta.page.total").Int()
		if cur >= total || len(res.Get("data").Array()) == 0 {
			return out, nil
		}
	}
}

func (c *Client) GetEntry(ctx context.Context, flow, id string) (*model.Entry, error) {
	path := "/v2/flows/" + url.PathEscape(flow) + "/entries/" + url.PathEscape(id)
	body, err := c.do(ctx, "get_entry", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	e := parseEntry(gjson.GetBytes(body, "data"))
	return &e, nil
}

func (c *Client) CreateEntry(ctx context.Context, flow string, fields map[string]any) (string, error) {
	data := map[string]any{"type": "entry"}
	for k, v := range fields {
		data[k] = v
	}
	body, err := c.do(ctx, "create_entry", http.MethodPost, "/v2/flows/"+url.PathEscape(flow)+"/entries", nil, map[string]any{"data": data})
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "data.id").String(), nil
}

// imageIndex maps file ids of included main images to their hrefs.
func imageIndex(res gjson.Result) map[string]string {
	idx := map[string]string{}
	res.Get("included.main_images").ForEach(func(_, v gjson.Result) bool {
		idx[v.Get("id").String()] = v.Get("link.href").String()
		return true
	})
	return idx
}

func parseProduct(p gjson.Result, images map[string]string) model.Product {
	return model.Product{
		ID:          p.Get("id").String(),
		Name:        p.Get("name").String(),
		Description: p.Get("description").String(),
		Price:       p.Get("meta.display_price.with_tax.formatted").String(),
		ImageURL:    images[p.Get("relationships.main_image.data.id").String()],
	}
}

func parseEntry(v gjson.Result) model.Entry {
	e := model.Entry{ID: v.Get("id").String(), Fields: map[string]any{}}
	v.ForEach(func(k, f gjson.Result) bool {
		switch k.String() {
		case "id", "type", "links", "meta", "relationships":
			return true
		}
		e.Fields[k.String()] = f.Value()
		return true
	})
	return e
}
