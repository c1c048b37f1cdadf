package usecase

import (
	"context"
	"errors"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/adapter"
	"pizza-order-bot/internal/infra/logging"
)

// Turn is the input of one state handler invocation. Session is a working
// copy; the engine persists it only when the handler succeeds.
type Turn struct {
	Event   model.Event
	Session *model.Session
}

// Transition is a handler's verdict.
type Transition struct {
	Next     model.State
	Messages []model.Message
	// Prompt stores Messages as the prompt repeated on unexpected input.
	Prompt bool
}

// StateHandler handles events for exactly one state.
type StateHandler interface {
	State() model.State
	Handle(ctx context.Context, t *Turn) (Transition, error)
}

func stay(s model.State, msgs ...model.Message) Transition {
	return Transition{Next: s, Messages: msgs}
}

func prompt(s model.State, msgs ...model.Message) Transition {
	return Transition{Next: s, Messages: msgs, Prompt: true}
}

// selected returns the parsed payload of a select event.
func selected(ev model.Event) (payload, bool) {
	if ev.Kind != model.EventSelect {
		return payload{}, false
	}
	return parsePayload(ev.Payload), true
}

// ---- START ----

type startHandler struct{ e *engine }

func (h startHandler) State() model.State { return model.StateStart }

func (h startHandler) Handle(ctx context.Context, t *Turn) (Transition, error) {
	t.Session.PageNumber = 1
	t.Session.CategoryID = h.e.cfg.FrontPageCategory[t.Session.Key.Channel]
	msgs, err := h.e.renderMenu(ctx, t.Session)
	if err != nil {
		return Transition{}, err
	}
	return prompt(model.StateBrowsing, msgs...), nil
}

// ---- BROWSING ----

type browsingHandler struct{ e *engine }

func (h browsingHandler) State() model.State { return model.StateBrowsing }

func (h browsingHandler) Handle(ctx context.Context, t *Turn) (Transition, error) {
	p, ok := selected(t.Event)
	if !ok {
		return Transition{}, domain.ErrInvalidEventShape
	}
	s := t.Session

	switch p.verb {
	case payloadPage:
		n, err := p.intArg(0)
		if err != nil {
			return Transition{}, err
		}
		s.PageNumber = n
		msgs, err := h.e.renderMenu(ctx, s)
		if err != nil {
			return Transition{}, err
		}
		return prompt(model.StateBrowsing, msgs...), nil

	case payloadCategory:
		id, err := p.arg(0)
		if err != nil {
			return Transition{}, err
		}
		s.CategoryID = id
		s.PageNumber = 1
		msgs, err := h.e.renderMenu(ctx, s)
		if err != nil {
			return Transition{}, err
		}
		return prompt(model.StateBrowsing, msgs...), nil

	case payloadProduct:
		id, err := p.arg(0)
		if err != nil {
			return Transition{}, err
		}
		msgs, err := h.e.renderProduct(ctx, id)
		if err != nil {
			return Transition{}, err
		}
		return prompt(model.StateProductDetail, msgs...), nil

	case payloadCart:
		msgs, _, err := h.e.renderCart(ctx, s)
		if err != nil {
			return Transition{}, err
		}
		return prompt(model.StateCartEdit, msgs...), nil
	}
	return Transition{}, domain.ErrInvalidEventShape
}

// ---- PRODUCT_DETAIL ----

type productDetailHandler struct{ e *engine }

func (h productDetailHandler) State() model.State { return model.StateProductDetail }

func (h productDetailHandler) Handle(ctx context.Context, t *Turn) (Transition, error) {
	p, ok := selected(t.Event)
	if !ok {
		return Transition{}, domain.ErrInvalidEventShape
	}
	s := t.Session

	switch p.verb {
	case payloadQty:
		productID, err := p.arg(0)
		if err != nil {
			return Transition{}, err
		}
		qty, err := p.intArg(1)
		if err != nil || qty < 1 {
			return Transition{}, domain.ErrInvalidEventShape
		}
		if err := h.e.Commerce.AddToCart(ctx, s.Key.CartRef(), productID, qty); err != nil {
			return Transition{}, err
		}
		name := productID
		for _, m := range s.LastPrompt {
			if len(m.Cards) == 1 {
				name = m.Cards[0].Title
			}
		}
		return stay(model.StateProductDetail, model.Text(h.e.Translator.T("product.added", qty, name))), nil

	case payloadCart:
		msgs, _, err := h.e.renderCart(ctx, s)
		if err != nil {
			return Transition{}, err
		}
		return prompt(model.StateCartEdit, msgs...), nil

	case payloadBack:
		msgs, err := h.e.renderMenu(ctx, s)
		if err != nil {
			return Transition{}, err
		}
		return prompt(model.StateBrowsing, msgs...), nil
	}
	return Transition{}, domain.ErrInvalidEventShape
}

// ---- CART_EDIT ----

type cartEditHandler struct{ e *engine }

func (h cartEditHandler) State() model.State { return model.StateCartEdit }

func (h cartEditHandler) Handle(ctx context.Context, t *Turn) (Transition, error) {
	p, ok := selected(t.Event)
	if !ok {
		return Transition{}, domain.ErrInvalidEventShape
	}
	s := t.Session

	switch p.verb {
	case payloadRemove:
		itemID, err := p.arg(0)
		if err != nil {
			return Transition{}, err
		}
		if err := h.e.Commerce.RemoveFromCart(ctx, s.Key.CartRef(), itemID); err != nil {
			return Transition{}, err
		}
		msgs, _, err := h.e.renderCart(ctx, s)
		if err != nil {
			return Transition{}, err
		}
		return prompt(model.StateCartEdit, msgs...), nil

	case payloadBack:
		msgs, err := h.e.renderMenu(ctx, s)
		if err != nil {
			return Transition{}, err
		}
		return prompt(model.StateBrowsing, msgs...), nil

	case payloadCheckout:
		msgs, cart, err := h.e.renderCart(ctx, s)
		if err != nil {
			return Transition{}, err
		}
		if cart.Empty() {
			return prompt(model.StateCartEdit, msgs...), nil
		}
		if s.CustomerID == "" {
			name := t.Event.UserName
			if name == "" {
				name = s.Key.String()
			}
			id, err := h.e.Commerce.CreateCustomer(ctx, name, s.Key.String())
			if err != nil {
				return Transition{}, err
			}
			s.CustomerID = id
		}
		return prompt(model.StateAwaitingAddress, model.Text(h.e.Translator.T("address.prompt"))), nil
	}
	return Transition{}, domain.ErrInvalidEventShape
}

// ---- AWAITING_ADDRESS ----

type awaitingAddressHandler struct{ e *engine }

func (h awaitingAddressHandler) State() model.State { return model.StateAwaitingAddress }

func (h awaitingAddressHandler) Handle(ctx context.Context, t *Turn) (Transition, error) {
	var q LocationQuery
	switch t.Event.Kind {
	case model.EventText:
		q.Text = t.Event.Text
	case model.EventLocation:
		p := *t.Event.Location
		q.Point = &p
	default:
		return Transition{}, domain.ErrInvalidEventShape
	}

	quote, err := h.e.Location.Resolve(ctx, q)
	if errors.Is(err, domain.ErrGeocodeNoMatch) {
		log := logging.With(ctx, h.e.Logger)
		log.Debug().Str("address", logging.Redact(q.Text, h.e.cfg.Dev)).Msg("address not found")
		return stay(model.StateAwaitingAddress, model.Text(h.e.Translator.T("address.not_found"))), nil
	}
	if err != nil {
		return Transition{}, err
	}

	s := t.Session
	addrID, err := h.e.Commerce.CreateEntry(ctx, model.FlowCustomerAddress, map[string]any{
		model.FieldCustomerRef: s.Key.String(),
		model.FieldLatitude:    quote.Point.Lat,
		model.FieldLongitude:   quote.Point.Lon,
	})
	if err != nil {
		return Transition{}, err
	}

	store := quote.Store
	point := quote.Point
	s.NearestStore = &store
	s.Location = &point
	s.PendingAddressID = addrID
	s.DeliveryCost = quote.Cost
	s.DeliveryAvail = quote.Available

	row := []model.Button{model.Btn(h.e.Translator.T("btn.pickup"), payloadPickup)}
	if quote.Available {
		row = append(row, model.Btn(h.e.Translator.T("btn.delivery"), payloadDelivery))
	}
	return prompt(model.StateOrderRouting, model.Buttons(quote.Text, row)), nil
}

// ---- ORDER_ROUTING ----

type orderRoutingHandler struct{ e *engine }

func (h orderRoutingHandler) State() model.State { return model.StateOrderRouting }

func (h orderRoutingHandler) Handle(ctx context.Context, t *Turn) (Transition, error) {
	p, ok := selected(t.Event)
	if !ok {
		return Transition{}, domain.ErrInvalidEventShape
	}
	s := t.Session
	if s.NearestStore == nil {
		return Transition{}, domain.ErrInvalidEventShape
	}
	tr := h.e.Translator

	switch p.verb {
	case payloadPickup:
		st := s.NearestStore
		loc := st.Point
		return prompt(model.StateFinished,
			model.Text(tr.T("pickup.address", st.Address)),
			model.Message{Kind: model.MessageLocation, Location: &loc},
			model.Text(tr.T("finished")),
		), nil

	case payloadDelivery:
		if !s.DeliveryAvail || s.Location == nil {
			return Transition{}, domain.ErrInvalidEventShape
		}
		if err := h.relay(ctx, t); err != nil {
			return Transition{}, err
		}
		h.scheduleFollowUp(ctx, t)

		if h.e.paymentsEnabled(s.Key.Channel) {
			return prompt(model.StateAwaitingPayment,
				model.Text(tr.T("delivery.accepted")),
				model.Buttons(tr.T("payment.prompt"), model.Row(model.Btn(tr.T("btn.pay"), payloadPay))),
			), nil
		}
		return prompt(model.StateFinished,
			model.Text(tr.T("delivery.accepted")),
			model.Text(tr.T("finished")),
		), nil
	}
	return Transition{}, domain.ErrInvalidEventShape
}

func (h orderRoutingHandler) relay(ctx context.Context, t *Turn) error {
	s := t.Session
	if h.e.Notifier == nil || s.NearestStore.CourierChatID == "" {
		log := logging.With(ctx, h.e.Logger)
		log.Warn().Str("store", s.NearestStore.ID).Msg("no courier contact, order not relayed")
		return nil
	}
	summary := s.LastCartSummary
	if summary == "" {
		// the cached summary may be stale or missing after a restart
		msgs, _, err := h.e.renderCart(ctx, s)
		if err != nil {
			return err
		}
		if len(msgs) > 0 {
			summary = msgs[0].Text
		}
	}
	name := t.Event.UserName
	if name == "" {
		name = s.Key.String()
	}
	return h.e.Notifier.RelayOrder(ctx, adapter.OrderRelay{
		Customer:      s.Key,
		CustomerChat:  s.ChatID,
		CourierChatID: s.NearestStore.CourierChatID,
		StoreAlias:    s.NearestStore.Alias,
		Summary:       h.e.Translator.T("courier.order", name, summary, s.DeliveryCost),
		Location:      *s.Location,
		DeliveryCost:  s.DeliveryCost,
	})
}

// scheduleFollowUp is best effort. A failed schedule never blocks the order.
func (h orderRoutingHandler) scheduleFollowUp(ctx context.Context, t *Turn) {
	s := t.Session
	if h.e.FollowUps == nil || s.ChatID == "" {
		return
	}
	err := h.e.FollowUps.Schedule(ctx, adapter.FollowUp{
		Channel: s.Key.Channel,
		ChatID:  s.ChatID,
		Text:    h.e.Translator.T("followup.text"),
		Delay:   h.e.cfg.FollowUpDelay,
	})
	if err != nil {
		log := logging.With(ctx, h.e.Logger)
		log.Warn().Err(err).Msg("follow-up not scheduled")
	}
}

// ---- AWAITING_PAYMENT ----

type awaitingPaymentHandler struct{ e *engine }

func (h awaitingPaymentHandler) State() model.State { return model.StateAwaitingPayment }

func (h awaitingPaymentHandler) Handle(ctx context.Context, t *Turn) (Transition, error) {
	p, ok := selected(t.Event)
	if !ok || p.verb != payloadPay {
		return Transition{}, domain.ErrInvalidEventShape
	}
	s := t.Session
	cart, err := h.e.Commerce.CartSummary(ctx, s.Key.CartRef())
	if err != nil {
		return Transition{}, err
	}
	if cart.Empty() {
		// CartSummary may omit items; fall back to the item list
		items, err := h.e.Commerce.CartItems(ctx, s.Key.CartRef())
		if err != nil {
			return Transition{}, err
		}
		cart.Items = items
	}
	inv, msg, err := h.e.Payments.IssueInvoice(ctx, s, cart)
	if errors.Is(err, domain.ErrInvalidArgument) {
		return Transition{}, domain.ErrInvalidEventShape
	}
	if err != nil {
		return Transition{}, err
	}
	log := logging.With(ctx, h.e.Logger)
	log.Info().Str("payload", inv.Payload).Int("amount", inv.Amount).Msg("invoice issued")
	return prompt(model.StateFinished, msg), nil
}

// ---- FINISHED ----

type finishedHandler struct{ e *engine }

func (h finishedHandler) State() model.State { return model.StateFinished }

func (h finishedHandler) Handle(ctx context.Context, t *Turn) (Transition, error) {
	return prompt(model.StateFinished, model.Text(h.e.Translator.T("finished"))), nil
}
