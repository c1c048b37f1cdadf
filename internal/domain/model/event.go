package model

import (
	"strings"

	"pizza-order-bot/internal/domain"
)

// EventKind classifies a normalized inbound event.
type EventKind string

const (
	EventCommand         EventKind = "command"
	EventSelect          EventKind = "select"
	EventText            EventKind = "text"
	EventLocation        EventKind = "location"
	EventPaymentPrecheck EventKind = "payment_precheck"
	EventPaymentSuccess  EventKind = "payment_success"
)

const CommandStart = "/start"

// Event is one user action normalized from a platform payload.
type Event struct {
	// ID is the platform delivery id used for deduplication. May be empty.
	ID       string
	Channel  Channel
	UserID   string
	ChatID   string
	UserName string
	Kind     EventKind
	Text     string
	Payload  string
	Location *Point
	Payment  *PaymentInfo
}

// PaymentInfo carries the fields of a pre-checkout or completion callback.
type PaymentInfo struct {
	QueryID          string
	InvoicePayload   string
	Currency         string
	TotalAmount      int
	ProviderChargeID string
}

func (e Event) Key() SessionKey { return SessionKey{Channel: e.Channel, UserID: e.UserID} }

func (e Event) IsStart() bool {
	return e.Kind == EventCommand && strings.EqualFold(strings.TrimSpace(e.Text), CommandStart)
}

func (e Event) IsPayment() bool {
	return e.Kind == EventPaymentPrecheck || e.Kind == EventPaymentSuccess
}

// Validate checks the structural fields every event needs.
func (e Event) Validate() error {
	if e.Channel == "" || e.UserID == "" {
		return domain.ErrInvalidArgument
	}
	switch e.Kind {
	case EventCommand, EventText:
	case EventSelect:
		if e.Payload == "" {
			return domain.ErrInvalidEventShape
		}
	case EventLocation:
		if e.Location == nil {
			return domain.ErrInvalidEventShape
		}
	case EventPaymentPrecheck, EventPaymentSuccess:
		if e.Payment == nil {
			return domain.ErrInvalidEventShape
		}
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}
