package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// TransactionRepo implements store.TransactionRepository with sqlx.
type TransactionRepo struct {
	db *sqlx.DB
}

// NewTransactionRepo returns a new TransactionRepo.
func NewTransactionRepo(db *sqlx.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

func (r *TransactionRepo) Create(ctx context.Context, tx *store.Transaction) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO transactions (id, buyer_id, buyer_name, seller_id, seller_name, item_name, payload, price, kind, created_at)
		 VALUES (:id, :buyer_id, :buyer_name, :seller_id, :seller_name, :item_name, :payload, :price, :kind, :created_at)`, tx)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) ListByActor(ctx context.Context, actorID string) ([]store.Transaction, error) {
	var txs []store.Transaction
	err := r.db.SelectContext(ctx, &txs,
		`SELECT * FROM transactions WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`,
		actorID)
	if err != nil {
		return nil, fmt.Errorf("listing actor transactions: %w", err)
	}
	return txs, nil
}

func (r *TransactionRepo) ListAll(ctx context.Context) ([]store.Transaction, error) {
	var txs []store.Transaction
	err := r.db.SelectContext(ctx, &txs,
		`SELECT * FROM transactions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return txs, nil
}
