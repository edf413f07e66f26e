package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// PendingPaymentRepo implements store.PendingPaymentRepository using
// database/sql.
type PendingPaymentRepo struct {
	db *sql.DB
}

// NewPendingPaymentRepo returns a new PendingPaymentRepo.
func NewPendingPaymentRepo(db *sql.DB) *PendingPaymentRepo {
	return &PendingPaymentRepo{db: db}
}

func (r *PendingPaymentRepo) Create(ctx context.Context, p *store.PendingPayment) error {
	var resolved sql.NullTime
	if p.ResolvedAt != nil {
		resolved = sql.NullTime{Time: *p.ResolvedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_payments (id, seller_id, seller_name, amount, listing_id, reason, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SellerID, p.SellerName, p.Amount.String(), p.ListingID, p.Reason, p.CreatedAt, resolved)
	if err != nil {
		return fmt.Errorf("inserting pending payment: %w", err)
	}
	return nil
}

func (r *PendingPaymentRepo) ListUnresolved(ctx context.Context, sellerID string) ([]store.PendingPayment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seller_id, seller_name, amount, listing_id, reason, created_at
		 FROM pending_payments WHERE seller_id = ? AND resolved_at IS NULL ORDER BY created_at`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("listing pending payments: %w", err)
	}
	defer rows.Close()

	var payments []store.PendingPayment
	for rows.Next() {
		var p store.PendingPayment
		if err := rows.Scan(&p.ID, &p.SellerID, &p.SellerName, &p.Amount,
			&p.ListingID, &p.Reason, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pending payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PendingPaymentRepo) MarkResolved(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE pending_payments SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
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
