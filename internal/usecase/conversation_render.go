package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
)

// Button payloads the engine emits and accepts back.
const (
	payloadPage     = "page"     // page:<n>
	payloadCategory = "category" // category:<id>
	payloadProduct  = "product"  // product:<id>
	payloadQty      = "qty"      // qty:<productID>:<n>
	payloadCart     = "cart"
	payloadBack     = "back"
	payloadRemove   = "remove" // remove:<itemID>
	payloadCheckout = "checkout"
	payloadPickup   = "pickup"
	payloadDelivery = "delivery"
	payloadPay      = "pay"
)

// maxQtyButton is the largest quantity offered on a product card.
const maxQtyButton = 3

type payload struct {
	verb string
	args []string
}

func parsePayload(s string) payload {
	parts := strings.Split(strings.TrimSpace(s), ":")
	return payload{verb: parts[0], args: parts[1:]}
}

// arg returns the i-th argument or ErrInvalidEventShape when it is missing.
func (p payload) arg(i int) (string, error) {
	if i >= len(p.args) || p.args[i] == "" {
		return "", domain.ErrInvalidEventShape
	}
	return p.args[i], nil
}

func (p payload) intArg(i int) (int, error) {
	s, err := p.arg(i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, domain.ErrInvalidEventShape
	}
	return n, nil
}

func mkPayload(verb string, args ...any) string {
	if len(args) == 0 {
		return verb
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, verb)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, ":")
}

// renderMenu fetches the session's catalog page, clamping it into [1, pages].
func (e *engine) renderMenu(ctx context.Context, sess *model.Session) ([]model.Message, error) {
	t := e.Translator
	page := sess.PageNumber
	if page < 1 {
		page = 1
	}
	res, err := e.Commerce.ListProducts(ctx, page, e.cfg.ProductsPerPage, sess.CategoryID)
	if err != nil {
		return nil, err
	}
	if res.Pages > 0 && page > res.Pages {
		page = res.Pages
		if res, err = e.Commerce.ListProducts(ctx, page, e.cfg.ProductsPerPage, sess.CategoryID); err != nil {
			return nil, err
		}
	}
	pages := res.Pages
	if pages < 1 {
		page, pages = 1, 1
	}
	sess.PageNumber = page

	cards := make([]model.Card, 0, len(res.Products))
	for _, p := range res.Products {
		cards = append(cards, model.Card{
			Title:    p.Name,
			Subtitle: p.Price,
			ImageURL: p.ImageURL,
			Buttons:  []model.Button{model.Btn(t.T("btn.details"), mkPayload(payloadProduct, p.ID))},
		})
	}

	var rows [][]model.Button
	var nav []model.Button
	if page > 1 {
		nav = append(nav, model.Btn(t.T("btn.prev"), mkPayload(payloadPage, page-1)))
	}
	if page < pages {
		nav = append(nav, model.Btn(t.T("btn.next"), mkPayload(payloadPage, page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, model.Row(model.Btn(t.T("btn.cart"), payloadCart)))

	cats, err := e.Commerce.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	var catBtns []model.Button
	for _, c := range cats {
		if c.ID == sess.CategoryID {
			continue
		}
		catBtns = append(catBtns, model.Btn(c.Name, mkPayload(payloadCategory, c.ID)))
	}

	msgs := []model.Message{
		{Kind: model.MessageCards, Text: t.T("menu.title"), Cards: cards},
		model.Buttons(t.T("menu.page", page, pages), rows...),
	}
	if len(cats) > 1 && len(catBtns) > 0 {
		msgs = append(msgs, model.Buttons(t.T("menu.categories"), chunk(catBtns, 3)...))
	}
	return msgs, nil
}

func (e *engine) renderProduct(ctx context.Context, id string) ([]model.Message, error) {
	t := e.Translator
	p, err := e.Commerce.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	qty := make([]model.Button, 0, maxQtyButton)
	for n := 1; n <= maxQtyButton; n++ {
		qty = append(qty, model.Btn(t.T("btn.qty", n), mkPayload(payloadQty, p.ID, n)))
	}
	return []model.Message{{
		Kind:  model.MessageCards,
		Text:  t.T("product.detail", p.Name, p.Description, p.Price),
		Cards: []model.Card{{Title: p.Name, Subtitle: p.Price, ImageURL: p.ImageURL, Buttons: qty}},
		Buttons: [][]model.Button{
			model.Row(model.Btn(t.T("btn.cart"), payloadCart)),
			model.Row(model.Btn(t.T("btn.back"), payloadBack)),
		},
	}}, nil
}

// renderCart reads the remote cart and caches its text summary on the session.
func (e *engine) renderCart(ctx context.Context, sess *model.Session) ([]model.Message, *model.Cart, error) {
	t := e.Translator
	ref := sess.Key.CartRef()
	items, err := e.Commerce.CartItems(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	cart, err := e.Commerce.CartSummary(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	cart.Items = items

	if cart.Empty() {
		sess.LastCartSummary = ""
		return []model.Message{model.Buttons(t.T("cart.empty"),
			model.Row(model.Btn(t.T("btn.back"), payloadBack)),
		)}, cart, nil
	}

	lines := make([]string, 0, len(items)+1)
	rows := make([][]model.Button, 0, len(items)+2)
	for _, it := range items {
		lines = append(lines, t.T("cart.line", it.Name, it.Description, it.Quantity, it.LinePrice))
		rows = append(rows, model.Row(model.Btn(t.T("btn.remove", it.Name), mkPayload(payloadRemove, it.ID))))
	}
	lines = append(lines, t.T("cart.total", cart.TotalFormatted))
	text := strings.Join(lines, "\n\n")
	sess.LastCartSummary = text

	rows = append(rows,
		model.Row(model.Btn(t.T("btn.checkout"), payloadCheckout)),
		model.Row(model.Btn(t.T("btn.back"), payloadBack)),
	)
	return []model.Message{model.Buttons(text, rows...)}, cart, nil
}

func chunk(btns []model.Button, size int) [][]model.Button {
	var rows [][]model.Button
	for len(btns) > size {
		rows = append(rows, btns[:size])
		btns = btns[size:]
	}
	if len(btns) > 0 {
		rows = append(rows, btns)
	}
	return rows
}
