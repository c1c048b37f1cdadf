package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

type InvoiceRepo struct {
	mu    sync.RWMutex
	store map[string]model.Invoice
}

func NewInvoiceRepo() *InvoiceRepo {
	return &InvoiceRepo{store: make(map[string]model.Invoice)}
}

func (r *InvoiceRepo) Save(ctx context.Context, inv *model.Invoice) error {
	if inv == nil || inv.Payload == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[inv.Payload] = *inv
	return nil
}

func (r *InvoiceRepo) FindByPayload(ctx context.Context, payload string) (*model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.store[payload]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &inv, nil
}

func (r *InvoiceRepo) UpdateStatus(ctx context.Context, payload string, status model.InvoiceStatus, chargeID string, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.store[payload]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Status = status
	if chargeID != "" {
		inv.ProviderChargeID = chargeID
	}
	if paidAt != nil {
		t := *paidAt
		inv.PaidAt = &t
	}
	r.store[payload] = inv
	return nil
}

func (r *InvoiceRepo) ListBySession(ctx context.Context, key model.SessionKey, limit int) ([]model.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Invoice
	for _, inv := range r.store {
		if inv.Channel == key.Channel && inv.UserID == key.UserID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InvoiceRepo) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, inv := range r.store {
		if inv.Status == model.InvoicePending && inv.CreatedAt.Before(cutoff) {
			inv.Status = model.InvoiceExpired
			r.store[k] = inv
			n++
		}
	}
	return n, nil
}
