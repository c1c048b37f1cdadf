//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/geodesic"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/i18n"
)

// -----------------------------
// Utilities
// -----------------------------

// offset returns the point dist meters north of p, or south when dist is negative.
func offset(p model.Point, dist float64) model.Point {
	azi := 0.0
	if dist < 0 {
		azi, dist = 180, -dist
	}
	var lat, lon float64
	geodesic.WGS84.Direct(p.Lat, p.Lon, azi, dist, &lat, &lon, nil)
	return model.Point{Lat: lat, Lon: lon}
}

var centre = model.Point{Lat: 55.7558, Lon: 37.6173}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator() *i18n.Translator {
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		panic(err)
	}
	return tr
}

// =============================
// Commerce
// =============================

// MockCommerce is an in-memory catalog with carts. Prices are in minor units.
type MockCommerce struct {
	mu sync.Mutex

	Products   []model.Product
	Prices     map[string]int    // productID -> unit price
	InCategory map[string]string // productID -> categoryID
	Categories []model.Category
	Stores     []model.Entry

	// Fail makes the named operation return an upstream error.
	Fail map[string]error
	// AddDelay widens the window between reading and writing a cart.
	AddDelay time.Duration

	carts     map[string][]model.CartItem
	entries   map[string][]model.Entry
	customers []string
	seq       int
	busy      map[string]bool
	Overlap   bool
	Calls     []string
}

var _ adapter.CommerceGateway = (*MockCommerce)(nil)

func NewMockCommerce(products int) *MockCommerce {
	m := &MockCommerce{
		Prices:     map[string]int{},
		InCategory: map[string]string{},
		Fail:       map[string]error{},
		carts:      map[string][]model.CartItem{},
		entries:    map[string][]model.Entry{},
		busy:       map[string]bool{},
	}
	for i := 1; i <= products; i++ {
		id := fmt.Sprintf("p%d", i)
		m.Products = append(m.Products, model.Product{
			ID:          id,
			Name:        fmt.Sprintf("Pizza %d", i),
			Description: "cheese",
			Price:       fmt.Sprintf("%d.00 RUB", 100*i),
			ImageURL:    "https://img.example/" + id + ".png",
		})
		m.Prices[id] = 10000 * i
	}
	return m
}

func (m *MockCommerce) call(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, op)
	if err, ok := m.Fail[op]; ok {
		return domain.Upstream("commerce", op, 503, err)
	}
	return nil
}

func (m *MockCommerce) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *MockCommerce) ListProducts(ctx context.Context, page, perPage int, categoryID string) (model.ProductPage, error) {
	if err := m.call("list_products"); err != nil {
		return model.ProductPage{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Product
	for _, p := range m.Products {
		if categoryID == "" || m.InCategory[p.ID] == categoryID {
			all = append(all, p)
		}
	}
	pages := (len(all) + perPage - 1) / perPage
	res := model.ProductPage{Page: page, Pages: pages}
	from := (page - 1) * perPage
	if from < 0 || from >= len(all) {
		return res, nil
	}
	to := from + perPage
	if to > len(all) {
		to = len(all)
	}
	res.Products = append(res.Products, all[from:to]...)
	return res, nil
}

func (m *MockCommerce) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	if err := m.call("get_product"); err != nil {
		return nil, err
	}
	for _, p := range m.Products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, domain.Upstream("commerce", "get_product", 404, domain.ErrNotFound)
}

func (m *MockCommerce) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := m.call("list_categories"); err != nil {
		return nil, err
	}
	return m.Categories, nil
}

func (m *MockCommerce) CartItems(ctx context.Context, cartRef string) ([]model.CartItem, error) {
	if err := m.call("cart_items"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CartItem(nil), m.carts[cartRef]...), nil
}

func (m *MockCommerce) CartSummary(ctx context.Context, cartRef string) (*model.Cart, error) {
	if err := m.call("cart_summary"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cart := &model.Cart{Currency: "RUB", Items: append([]model.CartItem(nil), m.carts[cartRef]...)}
	for _, it := range cart.Items {
		cart.TotalAmount += m.Prices[it.ProductID] * it.Quantity
	}
	cart.TotalFormatted = fmt.Sprintf("%d.00 RUB", cart.TotalAmount/100)
	return cart, nil
}

// Quantity returns how many units of productID sit in the cart.
func (m *MockCommerce) Quantity(cartRef, productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.carts[cartRef] {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

// AddToCart reads, waits and writes back so unserialized callers lose updates
// and trip Overlap.
func (m *MockCommerce) AddToCart(ctx context.Context, cartRef, productID string, qty int) error {
	if err := m.call("add_to_cart"); err != nil {
		return err
	}
	m.mu.Lock()
	if m.busy[cartRef] {
		m.Overlap = true
	}
	m.busy[cartRef] = true
	items := append([]model.CartItem(nil), m.carts[cartRef]...)
	m.mu.Unlock()

	if m.AddDelay > 0 {
		time.Sleep(m.AddDelay)
	}

	found := false
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += qty
			found = true
		}
	}
	if !found {
		name := productID
		for _, p := range m.Products {
			if p.ID == productID {
				name = p.Name
			}
		}
		m.mu.Lock()
		m.seq++
		id := "item-" + strconv.Itoa(m.seq)
		m.mu.Unlock()
		items = append(items, model.CartItem{ID: id, ProductID: productID, Name: name, Quantity: qty, UnitPrice: "1", LinePrice: "1"})
	}

	m.mu.Lock()
	m.carts[cartRef] = items
	m.busy[cartRef] = false
	m.mu.Unlock()
	return nil
}

func (m *MockCommerce) RemoveFromCart(ctx context.Context, cartRef, itemID string) error {
	if err := m.call("remove_from_cart"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.carts[cartRef][:0]
	for _, it := range m.carts[cartRef] {
		if it.ID != itemID {
			items = append(items, it)
		}
	}
	m.carts[cartRef] = items
	return nil
}

func (m *MockCommerce) CreateCustomer(ctx context.Context, name, contact string) (string, error) {
	if err := m.call("create_customer"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers = append(m.customers, contact)
	return "cust-" + strconv.Itoa(len(m.customers)), nil
}

func (m *MockCommerce) ListEntries(ctx context.Context, flow string) ([]model.Entry, error) {
	if err := m.call("list_entries"); err != nil {
		return nil, err
	}
	if flow == model.FlowPizzeria {
		return m.Stores, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[flow], nil
}

func (m *MockCommerce) GetEntry(ctx context.Context, flow, id string) (*model.Entry, error) {
	entries, err := m.ListEntries(ctx, flow)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockCommerce) CreateEntry(ctx context.Context, flow string, fields map[string]any) (string, error) {
	if err := m.call("create_entry"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("%s-%d", flow, len(m.entries[flow])+1)
	m.entries[flow] = append(m.entries[flow], model.Entry{ID: id, Fields: fields})
	return id, nil
}

func storeEntry(id, alias string, p model.Point, courier string) model.Entry {
	return model.Entry{ID: id, Fields: map[string]any{
		model.FieldAlias:         alias,
		model.FieldAddress:       alias + " street 1",
		model.FieldLatitude:      p.Lat,
		model.FieldLongitude:     p.Lon,
		model.FieldCourierChatID: courier,
	}}
}

// =============================
// Geocoder
// =============================

type MockGeocoder struct {
	Known map[string]model.Point
	Err   error
	Delay time.Duration
}

func (g *MockGeocoder) Geocode(ctx context.Context, address string) (model.Point, bool, error) {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return model.Point{}, false, ctx.Err()
		}
	}
	if g.Err != nil {
		return model.Point{}, false, g.Err
	}
	p, ok := g.Known[address]
	return p, ok, nil
}

// =============================
// Notifier / follow-ups
// =============================

type MockNotifier struct {
	mu     sync.Mutex
	Relays []adapter.OrderRelay
	Err    error
}

func (n *MockNotifier) RelayOrder(ctx context.Context, r adapter.OrderRelay) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Relays = append(n.Relays, r)
	return nil
}

type MockScheduler struct {
	mu        sync.Mutex
	Scheduled []adapter.FollowUp
	Err       error
}

func (s *MockScheduler) Schedule(ctx context.Context, f adapter.FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Scheduled = append(s.Scheduled, f)
	return nil
}

// buttonPayloads flattens every button payload in msgs, sorted.
func buttonPayloads(msgs []model.Message) []string {
	var out []string
	for _, m := range msgs {
		for _, row := range m.Buttons {
			for _, b := range row {
				out = append(out, b.Payload)
			}
		}
		for _, c := range m.Cards {
			for _, b := range c.Buttons {
				out = append(out, b.Payload)
			}
		}
	}
	sort.Strings(out)
	return out
}

func hasPayload(msgs []model.Message, p string) bool {
	for _, got := range buttonPayloads(msgs) {
		if got == p {
			return true
		}
	}
	return false
}
