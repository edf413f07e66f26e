package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// ListingRepo implements store.ListingRepository using database/sql.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(db *sql.DB) *ListingRepo {
	return &ListingRepo{db: db}
}

const listingColumns = `id, seller_id, seller_name, payload, price, original_price, listed_at, tier`

func scanListing(row interface{ Scan(...any) error }) (*store.Listing, error) {
	var l store.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.SellerName, &l.Payload,
		&l.Price, &l.OriginalPrice, &l.ListedAt, &l.Tier)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ListingRepo) Create(ctx context.Context, l *store.Listing) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listings (`+listingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SellerID, l.SellerName, l.Payload,
		l.Price.String(), l.OriginalPrice.String(), l.ListedAt, l.Tier)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) Get(ctx context.Context, id string, tier store.Tier) (*store.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ? AND tier = ?`, id, tier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing: %w", err)
	}
	return l, nil
}

func (r *ListingRepo) List(ctx context.Context, tier store.Tier) ([]store.Listing, error) {
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE tier = ? ORDER BY listed_at`, tier)
}

func (r *ListingRepo) ListBySeller(ctx context.Context, sellerID string, tier store.Tier) ([]store.Listing, error) {
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE seller_id = ? AND tier = ? ORDER BY listed_at`,
		sellerID, tier)
}

func (r *ListingRepo) query(ctx context.Context, q string, args ...any) ([]store.Listing, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	defer rows.Close()

	var listings []store.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (r *ListingRepo) CountBySeller(ctx context.Context, sellerID string, tier store.Tier) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE seller_id = ? AND tier = ?`, sellerID, tier).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting seller listings: %w", err)
	}
	return n, nil
}

func (r *ListingRepo) Update(ctx context.Context, l *store.Listing) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE listings SET price = ?, original_price = ?, tier = ? WHERE id = ?`,
		l.Price.String(), l.OriginalPrice.String(), l.Tier, l.ID)
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
		`DELETE FROM listings WHERE id = ? AND tier = ?`, id, tier)
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
		`UPDATE listings SET tier = ?, price = ?, original_price = ? WHERE id = ?`,
		to, l.Price.String(), l.OriginalPrice.String(), l.ID)
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
		`DELETE FROM listings WHERE tier = ? AND listed_at < ?`, store.TierStandard, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired listings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted listings: %w", err)
	}
	return int(n), nil
}
