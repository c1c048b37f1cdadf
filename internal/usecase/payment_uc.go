package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/repository"
	"pizza-order-bot/internal/infra/logging"
	"pizza-order-bot/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// IssueInvoice records a pending invoice for the cart total plus delivery
	// and returns the message that asks the user to pay.
	IssueInvoice(ctx context.Context, sess *model.Session, cart *model.Cart) (*model.Invoice, model.Message, error)
	// PreCheckout validates a pre-authorization callback against the issued invoice.
	PreCheckout(ctx context.Context, key model.SessionKey, info model.PaymentInfo) error
	// Complete marks the invoice paid. Repeated notices for a paid invoice are accepted.
	Complete(ctx context.Context, key model.SessionKey, info model.PaymentInfo) (*model.Invoice, error)
}

type paymentUC struct {
	invoices repository.InvoiceRepository
	tr       Translator
	currency string
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPaymentUseCase(invoices repository.InvoiceRepository, tr Translator, currency string, logger *zerolog.Logger) *paymentUC {
	return &paymentUC{invoices: invoices, tr: tr, currency: currency, log: logger, now: time.Now}
}

func (u *paymentUC) IssueInvoice(ctx context.Context, sess *model.Session, cart *model.Cart) (*model.Invoice, model.Message, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.IssueInvoice")()

	if sess == nil || cart.Empty() {
		return nil, model.Message{}, domain.ErrInvalidArgument
	}
	// delivery cost is quoted in major units
	amount := cart.TotalAmount + sess.DeliveryCost*100
	if amount <= 0 {
		return nil, model.Message{}, fmt.Errorf("%w: non-positive invoice amount %d", domain.ErrInvalidArgument, amount)
	}

	inv := &model.Invoice{
		Payload:      ulid.Make().String(),
		Channel:      sess.Key.Channel,
		UserID:       sess.Key.UserID,
		ChatID:       sess.ChatID,
		Amount:       amount,
		Currency:     u.currency,
		DeliveryCost: sess.DeliveryCost,
		Status:       model.InvoicePending,
		CreatedAt:    u.now(),
	}
	if err := u.invoices.Save(ctx, inv); err != nil {
		return nil, model.Message{}, fmt.Errorf("save invoice: %w", err)
	}
	metrics.IncPayment("issued")

	msg := model.Message{
		Kind: model.MessageInvoice,
		Invoice: &model.InvoiceRequest{
			Title:       u.tr.T("invoice.title"),
			Description: u.tr.T("invoice.description", sess.DeliveryCost),
			Payload:     inv.Payload,
			Currency:    inv.Currency,
			Amount:      inv.Amount,
		},
	}
	return inv, msg, nil
}

func (u *paymentUC) PreCheckout(ctx context.Context, key model.SessionKey, info model.PaymentInfo) error {
	defer logging.TraceDuration(u.log, "PaymentUC.PreCheckout")()

	inv, err := u.lookup(ctx, key, info)
	if err != nil {
		return err
	}
	if inv.Status != model.InvoicePending {
		u.reject("precheck_not_pending", key, info)
		return fmt.Errorf("%w: invoice is %s", domain.ErrPaymentPayloadMismatch, inv.Status)
	}
	metrics.IncPayment("prechecked")
	return nil
}

func (u *paymentUC) Complete(ctx context.Context, key model.SessionKey, info model.PaymentInfo) (*model.Invoice, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Complete")()

	inv, err := u.lookup(ctx, key, info)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.InvoicePaid {
		return inv, nil
	}
	now := u.now()
	if err := u.invoices.UpdateStatus(ctx, inv.Payload, model.InvoicePaid, info.ProviderChargeID, &now); err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}
	inv.Status = model.InvoicePaid
	inv.ProviderChargeID = info.ProviderChargeID
	inv.PaidAt = &now
	metrics.IncPayment("paid")
	u.log.Info().Str("payload", inv.Payload).Str("session", key.String()).Int("amount", inv.Amount).Msg("invoice paid")
	return inv, nil
}

func (u *paymentUC) lookup(ctx context.Context, key model.SessionKey, info model.PaymentInfo) (*model.Invoice, error) {
	inv, err := u.invoices.FindByPayload(ctx, info.InvoicePayload)
	if errors.Is(err, domain.ErrNotFound) {
		u.reject("unknown_payload", key, info)
		return nil, domain.ErrPaymentPayloadMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if !inv.Matches(key, info.Currency, info.TotalAmount) {
		u.reject("mismatch", key, info)
		return nil, domain.ErrPaymentPayloadMismatch
	}
	return inv, nil
}

func (u *paymentUC) reject(reason string, key model.SessionKey, info model.PaymentInfo) {
	metrics.IncPayment("rejected")
	u.log.Warn().
		Str("reason", reason).
		Str("session", key.String()).
		Str("payload", info.InvoicePayload).
		Int("amount", info.TotalAmount).
		Str("currency", info.Currency).
		Msg("payment event rejected")
}
