package adapter

import (
	"context"
	"time"

	"pizza-order-bot/internal/domain/model"
)

// Messenger renders abstract messages on one chat platform.
type Messenger interface {
	Channel() model.Channel
	Send(ctx context.Context, chatID string, msgs ...model.Message) error
}

// OrderRelay is what a courier receives when a customer picks delivery.
type OrderRelay struct {
	Customer      model.SessionKey `json:"customer"`
	CustomerChat  string           `json:"customer_chat"`
	CourierChatID string           `json:"courier_chat_id"`
	StoreAlias    string           `json:"store_alias"`
	Summary       string           `json:"summary"`
	Location      model.Point      `json:"location"`
	DeliveryCost  int              `json:"delivery_cost"`
}

type OrderNotifier interface {
	RelayOrder(ctx context.Context, relay OrderRelay) error
}

// FollowUp is a deferred one-shot message. It carries only what it needs to send.
type FollowUp struct {
	Channel model.Channel `json:"channel"`
	ChatID  string        `json:"chat_id"`
	Text    string        `json:"text"`
	Delay   time.Duration `json:"delay"`
}

type FollowUpScheduler interface {
	Schedule(ctx context.Context, f FollowUp) error
}
