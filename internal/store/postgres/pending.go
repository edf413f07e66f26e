package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// PendingPaymentRepo implements store.PendingPaymentRepository with sqlx.
type PendingPaymentRepo struct {
	db *sqlx.DB
}

// NewPendingPaymentRepo returns a new PendingPaymentRepo.
func NewPendingPaymentRepo(db *sqlx.DB) *PendingPaymentRepo {
	return &PendingPaymentRepo{db: db}
}

func (r *PendingPaymentRepo) Create(ctx context.Context, p *store.PendingPayment) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO pending_payments (id, seller_id, seller_name, amount, listing_id, reason, created_at, resolved_at)
		 VALUES (:id, :seller_id, :seller_name, :amount, :listing_id, :reason, :created_at, :resolved_at)`, p)
	if err != nil {
		return fmt.Errorf("inserting pending payment: %w", err)
	}
	return nil
}

func (r *PendingPaymentRepo) ListUnresolved(ctx context.Context, sellerID string) ([]store.PendingPayment, error) {
	var payments []store.PendingPayment
	err := r.db.SelectContext(ctx, &payments,
		`SELECT * FROM pending_payments WHERE seller_id = $1 AND resolved_at IS NULL ORDER BY created_at`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("listing pending payments: %w", err)
	}
	return payments, nil
}

func (r *PendingPaymentRepo) MarkResolved(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE pending_payments SET resolved_at = $1 WHERE id = $2 AND resolved_at IS NULL`,
		at, id)
	if err != nil {
		return fmt.Errorf("resolving pending payment: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
