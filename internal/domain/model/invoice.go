package model

import "time"

type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceRejected InvoiceStatus = "rejected"
	InvoiceExpired  InvoiceStatus = "expired"
)

// Invoice is an issued payment request. Amount is in minor currency units.
type Invoice struct {
	Payload          string
	Channel          Channel
	UserID           string
	ChatID           string
	Amount           int
	Currency         string
	DeliveryCost     int
	Status           InvoiceStatus
	ProviderChargeID string
	CreatedAt        time.Time
	PaidAt           *time.Time
}

// Matches reports whether a payment callback refers to this invoice as issued.
func (i *Invoice) Matches(key SessionKey, currency string, amount int) bool {
	return i.Channel == key.Channel && i.UserID == key.UserID &&
		i.Currency == currency && i.Amount == amount
}
