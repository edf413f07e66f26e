package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// ListingRepo implements store.ListingRepository with sqlx.
type ListingRepo struct {
	db *sqlx.DB
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(db *sqlx.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

func (r *ListingRepo) Create(ctx context.Context, l *store.Listing) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO listings (id, seller_id, seller_name, payload, price, original_price, listed_at, tier)
		 VALUES (:id, :seller_id, :seller_name, :payload, :price, :original_price, :listed_at, :tier)`, l)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) Get(ctx context.Context, id string, tier store.Tier) (*store.Listing, error) {
	var l store.Listing
	err := r.db.GetContext(ctx, &l,
		`SELECT * FROM listings WHERE id = $1 AND tier = $2`, id, tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing: %w", err)
	}
	return &l, nil
}

func (r *ListingRepo) List(ctx context.Context, tier store.Tier) ([]store.Listing, error) {
	var listings []store.Listing
	err := r.db.SelectContext(ctx, &listings,
		`SELECT * FROM listings WHERE tier = $1 ORDER BY listed_at`, tier)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	return listings, nil
}

func (r *ListingRepo) ListBySeller(ctx context.Context, sellerID string, tier store.Tier) ([]store.Listing, error) {
	var listings []store.Listing
	err := r.db.SelectContext(ctx, &listings,
		`SELECT * FROM listings WHERE seller_id = $1 AND tier = $2 ORDER BY listed_at`, sellerID, tier)
	if err != nil {
		return nil, fmt.Errorf("listing seller listings: %w", err)
	}
	return listings, nil
}

func (r *ListingRepo) CountBySeller(ctx context.Context, sellerID string, tier store.Tier) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM listings WHERE seller_id = $1 AND tier = $2`, sellerID, tier)
	if err != nil {
		return 0, fmt.Errorf("counting seller listings: %w", err)
	}
	return n, nil
}

func (r *ListingRepo) Update(ctx context.Context, l *store.Listing) error {
	result, err := r.db.NamedExecContext(ctx,
		`UPDATE listings
		 SET price = :price, original_price = :original_price, tier = :tier
		 WHERE id = :id`, l)
	if err != nil {
		return fmt.Errorf("updating listing: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ListingRepo) Delete(ctx context.Context, id string, tier store.Tier) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM listings WHERE id = $1 AND tier = $2`, id, tier)
	if err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ListingRepo) MoveTier(ctx context.Context, l *store.Listing, to store.Tier) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE listings SET tier = $1, price = $2, original_price = $3 WHERE id = $4`,
		to, l.Price, l.OriginalPrice, l.ID)
	if err != nil {
		return fmt.Errorf("moving listing tier: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	l.Tier = to
	return nil
}

func (r *ListingRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM listings WHERE tier = $1 AND listed_at < $2`,
		store.TierStandard, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired listings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted listings: %w", err)
	}
	return int(n), nil
}
