package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// TransactionRepo implements store.TransactionRepository using database/sql.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo.
func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

const txColumns = `id, buyer_id, buyer_name, seller_id, seller_name, item_name, payload, price, kind, created_at`

func (r *TransactionRepo) Create(ctx context.Context, tx *store.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+txColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.BuyerID, tx.BuyerName, tx.SellerID, tx.SellerName,
		tx.ItemName, tx.Payload, tx.Price.String(), tx.Kind, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) ListByActor(ctx context.Context, actorID string) ([]store.Transaction, error) {
	return r.query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE buyer_id = ? OR seller_id = ? ORDER BY created_at DESC`,
		actorID, actorID)
}

func (r *TransactionRepo) ListAll(ctx context.Context) ([]store.Transaction, error) {
	return r.query(ctx,
		`SELECT `+txColumns+` FROM transactions ORDER BY created_at DESC`)
}

func (r *TransactionRepo) query(ctx context.Context, q string, args ...any) ([]store.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []store.Transaction
	for rows.Next() {
		var tx store.Transaction
		if err := rows.Scan(&tx.ID, &tx.BuyerID, &tx.BuyerName, &tx.SellerID, &tx.SellerName,
			&tx.ItemName, &tx.Payload, &tx.Price, &tx.Kind, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
