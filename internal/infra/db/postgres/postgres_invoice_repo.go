package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pizza-order-bot/internal/domain"
	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/repository"
)

var _ repository.InvoiceRepository = (*invoiceRepo)(nil)

type invoiceRepo struct {
	pool *pgxpool.Pool
	txm  *TxManager
}

func NewInvoiceRepo(pool *pgxpool.Pool) *invoiceRepo {
	return &invoiceRepo{pool: pool, txm: NewTxManager(pool)}
}

const invoiceColumns = `payload, channel, user_id, chat_id, amount, currency, delivery_cost, status, provider_charge_id, created_at, paid_at`

func (r *invoiceRepo) Save(ctx context.Context, inv *model.Invoice) error {
	if inv == nil || inv.Payload == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO invoices (` + invoiceColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (payload) DO UPDATE SET
  status=$8, provider_charge_id=$9, paid_at=$11;`
	_, err := r.pool.Exec(ctx, q,
		inv.Payload, string(inv.Channel), inv.UserID, inv.ChatID, inv.Amount, inv.Currency,
		inv.DeliveryCost, string(inv.Status), inv.ProviderChargeID, inv.CreatedAt, inv.PaidAt)
	if err != nil {
		return fmt.Errorf("%w: save invoice: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *invoiceRepo) FindByPayload(ctx context.Context, payload string) (*model.Invoice, error) {
	return r.find(ctx, nil, payload)
}

func (r *invoiceRepo) find(ctx context.Context, tx repository.Tx, payload string) (*model.Invoice, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE payload=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	inv, err := scanInvoice(ex.QueryRow(ctx, q, payload))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find invoice: %v", domain.ErrOperationFailed, err)
	}
	return inv, nil
}

// UpdateStatus locks the row so concurrent payment notices apply once.
func (r *invoiceRepo) UpdateStatus(ctx context.Context, payload string, status model.InvoiceStatus, chargeID string, paidAt *time.Time) error {
	return r.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := r.find(ctx, tx, payload); err != nil {
			return err
		}
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		const q = `
UPDATE invoices
   SET status=$2,
       provider_charge_id=COALESCE(NULLIF($3, ''), provider_charge_id),
       paid_at=COALESCE($4, paid_at)
 WHERE payload=$1;`
		if _, err := ex.Exec(ctx, q, payload, string(status), chargeID, paidAt); err != nil {
			return fmt.Errorf("%w: update invoice: %v", domain.ErrOperationFailed, err)
		}
		return nil
	})
}

func (r *invoiceRepo) ListBySession(ctx context.Context, key model.SessionKey, limit int) ([]model.Invoice, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE channel=$1 AND user_id=$2 ORDER BY created_at DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, q, string(key.Channel), key.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list invoices: %v", domain.ErrOperationFailed, err)
	}
	defer rows.Close()

	var out []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan invoice: %v", domain.ErrOperationFailed, err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *invoiceRepo) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `UPDATE invoices SET status=$1 WHERE status=$2 AND created_at < $3`
	tag, err := r.pool.Exec(ctx, q, string(model.InvoiceExpired), string(model.InvoicePending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: expire invoices: %v", domain.ErrOperationFailed, err)
	}
	return int(tag.RowsAffected()), nil
}

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var (
		inv     model.Invoice
		channel string
		status  string
	)
	if err := row.Scan(&inv.Payload, &channel, &inv.UserID, &inv.ChatID, &inv.Amount, &inv.Currency,
		&inv.DeliveryCost, &status, &inv.ProviderChargeID, &inv.CreatedAt, &inv.PaidAt); err != nil {
		return nil, err
	}
	inv.Channel = model.Channel(channel)
	inv.Status = model.InvoiceStatus(status)
	return &inv, nil
}
