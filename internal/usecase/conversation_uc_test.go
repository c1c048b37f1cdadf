//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/infra/memory"
	"pizza-order-bot/internal/usecase"
)

type harness struct {
	t        *testing.T
	engine   usecase.ConversationEngine
	commerce *MockCommerce
	sessions *memory.SessionStore
	invoices *memory.InvoiceRepo
	notifier *MockNotifier
	sched    *MockScheduler

	mu  sync.Mutex
	seq int
}

func newHarness(t *testing.T, products int, opts ...func(*usecase.EngineConfig)) *harness {
	t.Helper()
	tr := newTestTranslator()
	logger := newTestLogger()

	commerce := NewMockCommerce(products)
	commerce.Stores = []model.Entry{
		storeEntry("s1", "Central", centre, "900"),
		storeEntry("s2", "Far", offset(centre, -40000), ""),
	}
	geo := &MockGeocoder{Known: map[string]model.Point{"Lenina 1": offset(centre, 3000)}}

	h := &harness{
		t:        t,
		commerce: commerce,
		sessions: memory.NewSessionStore(time.Hour),
		invoices: memory.NewInvoiceRepo(),
		notifier: &MockNotifier{},
		sched:    &MockScheduler{},
	}
	cfg := usecase.EngineConfig{
		LockTTL:         5 * time.Second,
		LockWait:        2 * time.Second,
		FollowUpDelay:   time.Hour,
		ProductsPerPage: 9,
		PaymentChannels: map[model.Channel]bool{model.ChannelTelegram: true},
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.engine = usecase.NewConversationEngine(usecase.EngineDeps{
		Commerce:   commerce,
		Sessions:   h.sessions,
		Locker:     memory.NewLocker(),
		Dedup:      memory.NewDeduper(time.Minute),
		Location:   usecase.NewLocationUseCase(geo, commerce, tr, time.Second, logger),
		Payments:   usecase.NewPaymentUseCase(h.invoices, tr, "RUB", logger),
		Notifier:   h.notifier,
		FollowUps:  h.sched,
		Translator: tr,
		Logger:     logger,
	}, cfg)
	return h
}

func (h *harness) nextID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return fmt.Sprintf("ev-%d", h.seq)
}

func (h *harness) send(ev model.Event) *model.Outcome {
	h.t.Helper()
	if ev.ID == "" {
		ev.ID = h.nextID()
	}
	out, err := h.engine.Handle(context.Background(), ev)
	if err != nil {
		h.t.Fatalf("Handle(%s %q %q): %v", ev.Kind, ev.Text, ev.Payload, err)
	}
	return out
}

func (h *harness) state(key model.SessionKey) model.State {
	h.t.Helper()
	s, err := h.engine.Inspect(context.Background(), key)
	if err != nil {
		h.t.Fatal(err)
	}
	return s.State
}

func tgKey(user string) model.SessionKey {
	return model.SessionKey{Channel: model.ChannelTelegram, UserID: user}
}

func start(k model.SessionKey) model.Event {
	return model.Event{Channel: k.Channel, UserID: k.UserID, ChatID: k.UserID, Kind: model.EventCommand, Text: model.CommandStart}
}

func sel(k model.SessionKey, p string) model.Event {
	return model.Event{Channel: k.Channel, UserID: k.UserID, ChatID: k.UserID, Kind: model.EventSelect, Payload: p}
}

func text(k model.SessionKey, s string) model.Event {
	return model.Event{Channel: k.Channel, UserID: k.UserID, ChatID: k.UserID, Kind: model.EventText, Text: s}
}

func location(k model.SessionKey, p model.Point) model.Event {
	return model.Event{Channel: k.Channel, UserID: k.UserID, ChatID: k.UserID, Kind: model.EventLocation, Location: &p}
}

// toAddress drives a session from START to AWAITING_ADDRESS with one pizza in the cart.
func (h *harness) toAddress(k model.SessionKey) {
	h.t.Helper()
	h.send(start(k))
	h.send(sel(k, "product:p1"))
	h.send(sel(k, "qty:p1:2"))
	h.send(sel(k, "cart"))
	out := h.send(sel(k, "checkout"))
	if out.To != model.StateAwaitingAddress {
		h.t.Fatalf("expected AWAITING_ADDRESS after checkout, got %s", out.To)
	}
}

func TestConversationEngine_Browsing(t *testing.T) {
	t.Run("should show the first menu page on start", func(t *testing.T) {
		h := newHarness(t, 12)
		k := tgKey("1")
		out := h.send(start(k))
		if out.From != model.StateStart || out.To != model.StateBrowsing {
			t.Fatalf("expected START -> BROWSING, got %s -> %s", out.From, out.To)
		}
		if len(out.Messages) < 2 || len(out.Messages[0].Cards) != 9 {
			t.Fatalf("expected 9 product cards, got %+v", out.Messages)
		}
		if !hasPayload(out.Messages, "page:2") || hasPayload(out.Messages, "page:0") {
			t.Errorf("unexpected navigation %v", buttonPayloads(out.Messages))
		}
		if !hasPayload(out.Messages, "cart") {
			t.Error("menu must offer the cart")
		}
	})

	t.Run("should clamp page numbers into range", func(t *testing.T) {
		h := newHarness(t, 12)
		k := tgKey("1")
		h.send(start(k))

		out := h.send(sel(k, "page:99"))
		if out.To != model.StateBrowsing || len(out.Messages[0].Cards) != 3 {
			t.Fatalf("expected last page with 3 cards, got %+v", out.Messages[0])
		}
		s, _ := h.engine.Inspect(context.Background(), k)
		if s.PageNumber != 2 {
			t.Errorf("expected stored page 2, got %d", s.PageNumber)
		}

		out = h.send(sel(k, "page:-4"))
		s, _ = h.engine.Inspect(context.Background(), k)
		if s.PageNumber != 1 || len(out.Messages[0].Cards) != 9 {
			t.Errorf("expected page 1, got %d", s.PageNumber)
		}
	})

	t.Run("should filter by category and reset the page", func(t *testing.T) {
		h := newHarness(t, 12)
		h.commerce.Categories = []model.Category{{ID: "c1", Name: "Veg"}, {ID: "c2", Name: "Meat"}}
		h.commerce.InCategory["p1"] = "c1"
		h.commerce.InCategory["p2"] = "c1"
		k := tgKey("1")
		out := h.send(start(k))
		if !hasPayload(out.Messages, "category:c1") {
			t.Fatalf("expected category buttons, got %v", buttonPayloads(out.Messages))
		}
		out = h.send(sel(k, "category:c1"))
		if len(out.Messages[0].Cards) != 2 {
			t.Errorf("expected 2 products in category, got %d", len(out.Messages[0].Cards))
		}
		if hasPayload(out.Messages, "category:c1") {
			t.Error("current category must not be offered again")
		}
	})

	t.Run("should open the channel's front page category", func(t *testing.T) {
		h := newHarness(t, 12, func(c *usecase.EngineConfig) {
			c.FrontPageCategory = map[model.Channel]string{model.ChannelFacebook: "c1"}
		})
		h.commerce.Categories = []model.Category{{ID: "c1", Name: "Veg"}, {ID: "c2", Name: "Meat"}}
		h.commerce.InCategory["p1"] = "c1"
		fb := model.SessionKey{Channel: model.ChannelFacebook, UserID: "psid"}
		out := h.send(start(fb))
		if len(out.Messages[0].Cards) != 1 || !hasPayload(out.Messages, "category:c2") {
			t.Fatalf("expected front page category, got %v", buttonPayloads(out.Messages))
		}
		out = h.send(start(tgKey("1")))
		if len(out.Messages[0].Cards) != 9 {
			t.Errorf("telegram menu should be unfiltered, got %d cards", len(out.Messages[0].Cards))
		}
	})

	t.Run("should repeat the prompt on unexpected input", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		first := h.send(start(k))

		out := h.send(text(k, "hello?"))
		if out.To != model.StateBrowsing {
			t.Fatalf("state must not change, got %s", out.To)
		}
		if len(out.Messages) != len(first.Messages) || out.Messages[0].Text != first.Messages[0].Text {
			t.Errorf("expected the stored prompt again, got %+v", out.Messages)
		}

		out = h.send(sel(k, "qty:p1:x"))
		if out.To != model.StateBrowsing || h.commerce.CallCount("add_to_cart") != 0 {
			t.Errorf("malformed payload must not touch the cart")
		}
	})

	t.Run("should add to cart and stay on the product", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.send(start(k))
		out := h.send(sel(k, "product:p2"))
		if out.To != model.StateProductDetail || !hasPayload(out.Messages, "qty:p2:3") {
			t.Fatalf("unexpected product view %+v", out)
		}
		out = h.send(sel(k, "qty:p2:3"))
		if out.To != model.StateProductDetail || !strings.Contains(out.Messages[0].Text, "Pizza 2") {
			t.Errorf("unexpected add result %+v", out.Messages)
		}
		if q := h.commerce.Quantity(k.CartRef(), "p2"); q != 3 {
			t.Errorf("expected quantity 3, got %d", q)
		}
		out = h.send(sel(k, "back"))
		if out.To != model.StateBrowsing {
			t.Errorf("expected BROWSING after back, got %s", out.To)
		}
	})
}

func TestConversationEngine_Cart(t *testing.T) {
	t.Run("should keep an empty cart in CART_EDIT on checkout", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.send(start(k))
		h.send(sel(k, "cart"))
		out := h.send(sel(k, "checkout"))
		if out.To != model.StateCartEdit || out.Messages[0].Text != newTestTranslator().T("cart.empty") {
			t.Errorf("unexpected checkout of empty cart %+v", out)
		}
		if h.commerce.CallCount("create_customer") != 0 {
			t.Error("customer must not be created for an empty cart")
		}
	})

	t.Run("should remove items and render the summary", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.send(start(k))
		h.send(sel(k, "product:p1"))
		h.send(sel(k, "qty:p1:1"))
		h.send(sel(k, "back"))
		h.send(sel(k, "product:p3"))
		h.send(sel(k, "qty:p3:2"))
		out := h.send(sel(k, "cart"))
		if !strings.Contains(out.Messages[0].Text, "Total: 700.00 RUB") {
			t.Errorf("unexpected summary %q", out.Messages[0].Text)
		}
		out = h.send(sel(k, "remove:item-1"))
		if out.To != model.StateCartEdit || strings.Contains(out.Messages[0].Text, "Pizza 1") {
			t.Errorf("item not removed: %q", out.Messages[0].Text)
		}
	})

	t.Run("should create the customer once", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.toAddress(k)
		h.send(start(k))
		h.send(sel(k, "cart"))
		h.send(sel(k, "checkout"))
		if n := h.commerce.CallCount("create_customer"); n != 1 {
			t.Errorf("expected one customer, got %d", n)
		}
		s, _ := h.engine.Inspect(context.Background(), k)
		if s.CustomerID != "cust-1" {
			t.Errorf("customer id lost, got %q", s.CustomerID)
		}
	})
}

func TestConversationEngine_Address(t *testing.T) {
	t.Run("should stay when the address is unknown", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.toAddress(k)
		out := h.send(text(k, "Gibberish City"))
		if out.To != model.StateAwaitingAddress {
			t.Fatalf("expected AWAITING_ADDRESS, got %s", out.To)
		}
		if out.Messages[0].Text != newTestTranslator().T("address.not_found") {
			t.Errorf("unexpected reply %q", out.Messages[0].Text)
		}
	})

	t.Run("should quote delivery for a geocoded address", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.toAddress(k)
		out := h.send(text(k, "Lenina 1"))
		if out.To != model.StateOrderRouting {
			t.Fatalf("expected ORDER_ROUTING, got %s", out.To)
		}
		if !hasPayload(out.Messages, "delivery") || !hasPayload(out.Messages, "pickup") {
			t.Errorf("expected pickup and delivery, got %v", buttonPayloads(out.Messages))
		}
		s, _ := h.engine.Inspect(context.Background(), k)
		if s.DeliveryCost != 100 || s.NearestStore == nil || s.NearestStore.ID != "s1" || s.PendingAddressID == "" {
			t.Errorf("unexpected session %+v", s)
		}
	})

	t.Run("should offer pickup only when too far", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.toAddress(k)
		out := h.send(location(k, offset(centre, 21000)))
		if out.To != model.StateOrderRouting || hasPayload(out.Messages, "delivery") {
			t.Fatalf("expected pickup only, got %v", buttonPayloads(out.Messages))
		}
		out = h.send(sel(k, "delivery"))
		if out.To != model.StateOrderRouting {
			t.Errorf("delivery must be refused, got %s", out.To)
		}
		out = h.send(sel(k, "pickup"))
		if out.To != model.StateFinished || out.Messages[1].Kind != model.MessageLocation {
			t.Errorf("unexpected pickup result %+v", out)
		}
	})
}

func TestConversationEngine_Delivery(t *testing.T) {
	t.Run("should relay the order and finish without payments", func(t *testing.T) {
		h := newHarness(t, 3)
		k := model.SessionKey{Channel: model.ChannelFacebook, UserID: "fb-1"}
		h.toAddress(k)
		h.send(location(k, offset(centre, 300)))
		out := h.send(sel(k, "delivery"))
		if out.To != model.StateFinished {
			t.Fatalf("expected FINISHED, got %s", out.To)
		}
		if len(h.notifier.Relays) != 1 || h.notifier.Relays[0].CourierChatID != "900" {
			t.Fatalf("expected one relay to courier 900, got %+v", h.notifier.Relays)
		}
		if !strings.Contains(h.notifier.Relays[0].Summary, "Pizza 1") {
			t.Errorf("relay must carry the cart, got %q", h.notifier.Relays[0].Summary)
		}
		if len(h.sched.Scheduled) != 1 || h.sched.Scheduled[0].Delay != time.Hour {
			t.Errorf("expected follow-up in an hour, got %+v", h.sched.Scheduled)
		}
		out = h.send(text(k, "thanks"))
		if out.To != model.StateFinished {
			t.Errorf("FINISHED must be terminal, got %s", out.To)
		}
	})

	t.Run("should not block the order when scheduling fails", func(t *testing.T) {
		h := newHarness(t, 3)
		h.sched.Err = errors.New("queue full")
		k := model.SessionKey{Channel: model.ChannelFacebook, UserID: "fb-2"}
		h.toAddress(k)
		h.send(location(k, offset(centre, 300)))
		if out := h.send(sel(k, "delivery")); out.To != model.StateFinished {
			t.Errorf("expected FINISHED, got %s", out.To)
		}
	})

	t.Run("should take payment on telegram", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("7")
		h.toAddress(k)
		h.send(text(k, "Lenina 1"))
		out := h.send(sel(k, "delivery"))
		if out.To != model.StateAwaitingPayment || !hasPayload(out.Messages, "pay") {
			t.Fatalf("expected payment prompt, got %+v", out)
		}

		out = h.send(sel(k, "pay"))
		if out.To != model.StateFinished || out.Messages[0].Kind != model.MessageInvoice {
			t.Fatalf("expected invoice, got %+v", out)
		}
		inv := out.Messages[0].Invoice
		// 2 x p1 (10000) + delivery 100 in minor units
		if inv.Amount != 30000 || inv.Currency != "RUB" {
			t.Errorf("unexpected invoice %+v", inv)
		}

		info := &model.PaymentInfo{QueryID: "q1", InvoicePayload: inv.Payload, Currency: "RUB", TotalAmount: inv.Amount, ProviderChargeID: "ch"}
		pre := h.send(model.Event{Channel: k.Channel, UserID: k.UserID, Kind: model.EventPaymentPrecheck, Payment: info})
		if pre.To != model.StateFinished || len(pre.Messages) != 0 {
			t.Errorf("pre-checkout must not change state, got %+v", pre)
		}
		done := h.send(model.Event{Channel: k.Channel, UserID: k.UserID, Kind: model.EventPaymentSuccess, Payment: info})
		if done.Messages[0].Text != newTestTranslator().T("payment.thanks") {
			t.Errorf("unexpected payment reply %+v", done.Messages)
		}

		bad := *info
		bad.TotalAmount = 1
		_, err := h.engine.Handle(context.Background(), model.Event{ID: "bad", Channel: k.Channel, UserID: k.UserID, Kind: model.EventPaymentPrecheck, Payment: &bad})
		if !errors.Is(err, domain.ErrPaymentPayloadMismatch) {
			t.Errorf("expected mismatch, got %v", err)
		}
	})
}

func TestConversationEngine_Resilience(t *testing.T) {
	t.Run("should reset on start from any state", func(t *testing.T) {
		h := newHarness(t, 12)
		k := tgKey("1")
		h.toAddress(k)
		out := h.send(start(k))
		if out.From != model.StateAwaitingAddress || out.To != model.StateBrowsing {
			t.Fatalf("expected AWAITING_ADDRESS -> BROWSING, got %s -> %s", out.From, out.To)
		}
		s, _ := h.engine.Inspect(context.Background(), k)
		if s.PageNumber != 1 || s.CustomerID == "" {
			t.Errorf("unexpected session after reset %+v", s)
		}
	})

	t.Run("should not persist a failed turn", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.send(start(k))
		h.commerce.Fail["cart_items"] = errors.New("boom")

		out, err := h.engine.Handle(context.Background(), sel(k, "cart"))
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			t.Fatalf("expected upstream error, got %v", err)
		}
		if out == nil || out.Messages[0].Text != newTestTranslator().T("error.upstream") {
			t.Errorf("expected apology message, got %+v", out)
		}
		if st := h.state(k); st != model.StateBrowsing {
			t.Errorf("state must stay BROWSING, got %s", st)
		}

		delete(h.commerce.Fail, "cart_items")
		if out := h.send(sel(k, "cart")); out.To != model.StateCartEdit {
			t.Errorf("retry should succeed, got %s", out.To)
		}
	})

	t.Run("should skip duplicate deliveries", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.send(start(k))
		h.send(sel(k, "product:p1"))
		ev := sel(k, "qty:p1:1")
		ev.ID = "dup"
		h.send(ev)
		out := h.send(ev)
		if !out.Duplicate {
			t.Error("expected duplicate outcome")
		}
		if q := h.commerce.Quantity(k.CartRef(), "p1"); q != 1 {
			t.Errorf("expected quantity 1, got %d", q)
		}
	})

	t.Run("should serialize concurrent events of one user", func(t *testing.T) {
		h := newHarness(t, 3)
		h.commerce.AddDelay = 2 * time.Millisecond
		k := tgKey("1")
		h.send(start(k))
		h.send(sel(k, "product:p1"))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ev := sel(k, "qty:p1:1")
				ev.ID = h.nextID()
				if _, err := h.engine.Handle(context.Background(), ev); err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()
		if h.commerce.Overlap {
			t.Error("cart updates overlapped")
		}
		if q := h.commerce.Quantity(k.CartRef(), "p1"); q != 10 {
			t.Errorf("expected quantity 10, got %d", q)
		}
	})

	t.Run("should keep users independent", func(t *testing.T) {
		h := newHarness(t, 3)
		a, b := tgKey("a"), model.SessionKey{Channel: model.ChannelFacebook, UserID: "a"}
		h.toAddress(a)
		h.send(start(b))
		if h.state(a) != model.StateAwaitingAddress || h.state(b) != model.StateBrowsing {
			t.Errorf("sessions leaked: %s %s", h.state(a), h.state(b))
		}
	})

	t.Run("should reject events without a user", func(t *testing.T) {
		h := newHarness(t, 3)
		_, err := h.engine.Handle(context.Background(), model.Event{Channel: model.ChannelTelegram, Kind: model.EventText, Text: "x"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should reset through the admin path", func(t *testing.T) {
		h := newHarness(t, 3)
		k := tgKey("1")
		h.toAddress(k)
		if err := h.engine.Reset(context.Background(), k); err != nil {
			t.Fatal(err)
		}
		if st := h.state(k); st != model.StateStart {
			t.Errorf("expected START, got %s", st)
		}
	})
}

type slowCommerce struct {
	*MockCommerce
}

func (s slowCommerce) ListCategories(ctx context.Context) ([]model.Category, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithCallTimeout(t *testing.T) {
	c := usecase.WithCallTimeout(slowCommerce{NewMockCommerce(1)}, 10*time.Millisecond)
	_, err := c.ListCategories(context.Background())
	var up *domain.UpstreamError
	if !errors.As(err, &up) || up.Op != "list_categories" {
		t.Fatalf("expected upstream error for list_categories, got %v", err)
	}
	if _, err := c.GetProduct(context.Background(), "p1"); err != nil {
		t.Errorf("fast calls must pass through, got %v", err)
	}
}
