package repository

import (
	"context"
	"time"

	"pizza-order-bot/internal/domain/model"
)

type InvoiceRepository interface {
	Save(ctx context.Context, inv *model.Invoice) error
	// FindByPayload returns domain.ErrNotFound for unknown payloads.
	FindByPayload(ctx context.Context, payload string) (*model.Invoice, error)
	UpdateStatus(ctx context.Context, payload string, status model.InvoiceStatus, chargeID string, paidAt *time.Time) error
	// ListBySession returns the session's invoices, newest first.
	ListBySession(ctx context.Context, key model.SessionKey, limit int) ([]model.Invoice, error)
	// ExpirePending marks pending invoices created before cutoff as expired and reports how many.
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}
