package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/bazaar/internal/store"
	"github.com/jensholdgaard/bazaar/internal/store/postgres"
)

func newListing(id, sellerID string, price int64) *store.Listing {
	p := decimal.NewFromInt(price)
	return &store.Listing{
		ID:            id,
		SellerID:      sellerID,
		SellerName:    sellerID + "-name",
		Payload:       []byte(`{"name":"Test Item"}`),
		Price:         p,
		OriginalPrice: p,
		ListedAt:      time.Now().UTC().Truncate(time.Microsecond),
		Tier:          store.TierStandard,
	}
}

func TestListingRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	l := newListing("l1", "seller", 100)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, "l1", store.TierStandard)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SellerID != "seller" {
		t.Errorf("SellerID = %q, want %q", got.SellerID, "seller")
	}
	if !got.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Price = %s, want 100", got.Price)
	}
	if string(got.Payload) != `{"name":"Test Item"}` {
		t.Errorf("Payload = %s", got.Payload)
	}

	// Wrong tier misses.
	if _, err := repo.Get(ctx, "l1", store.TierDiscounted); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(wrong tier) error = %v, want ErrNotFound", err)
	}
}

func TestListingRepo_ListAndCount(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		l := newListing(id, "seller", int64(100+i))
		l.ListedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Truncate(time.Microsecond)
		if err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	other := newListing("d", "other", 50)
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("Create(d): %v", err)
	}

	all, err := repo.List(ctx, store.TierStandard)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("List returned %d, want 4", len(all))
	}
	// Ordered by listed_at, oldest first.
	if all[0].ID != "a" {
		t.Errorf("first listing = %q, want %q", all[0].ID, "a")
	}

	mine, err := repo.ListBySeller(ctx, "seller", store.TierStandard)
	if err != nil {
		t.Fatalf("ListBySeller: %v", err)
	}
	if len(mine) != 3 {
		t.Errorf("ListBySeller returned %d, want 3", len(mine))
	}

	n, err := repo.CountBySeller(ctx, "seller", store.TierStandard)
	if err != nil {
		t.Fatalf("CountBySeller: %v", err)
	}
	if n != 3 {
		t.Errorf("CountBySeller = %d, want 3", n)
	}
}

func TestListingRepo_MoveTier(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	l := newListing("l1", "seller", 100)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	l.Price = decimal.NewFromInt(70)
	if err := repo.MoveTier(ctx, l, store.TierDiscounted); err != nil {
		t.Fatalf("MoveTier: %v", err)
	}

	if _, err := repo.Get(ctx, "l1", store.TierStandard); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("listing still in standard tier, err = %v", err)
	}
	got, err := repo.Get(ctx, "l1", store.TierDiscounted)
	if err != nil {
		t.Fatalf("Get(discounted): %v", err)
	}
	if !got.Price.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Price = %s, want 70", got.Price)
	}
	if !got.OriginalPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("OriginalPrice = %s, want 100", got.OriginalPrice)
	}
}

func TestListingRepo_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	l := newListing("l1", "seller", 100)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.Delete(ctx, "l1", store.TierStandard); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, "l1", store.TierStandard); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestListingRepo_DeleteExpired(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db)
	ctx := context.Background()

	old := newListing("old", "seller", 100)
	old.ListedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	fresh := newListing("fresh", "seller", 100)
	discounted := newListing("disc", "seller", 100)
	discounted.ListedAt = old.ListedAt
	discounted.Tier = store.TierDiscounted

	for _, l := range []*store.Listing{old, fresh, discounted} {
		if err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create(%s): %v", l.ID, err)
		}
	}

	n, err := repo.DeleteExpired(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired = %d, want 1", n)
	}

	// Only the standard tier expires.
	if _, err := repo.Get(ctx, "disc", store.TierDiscounted); err != nil {
		t.Errorf("discounted listing removed by expiry: %v", err)
	}
	if _, err := repo.Get(ctx, "fresh", store.TierStandard); err != nil {
		t.Errorf("fresh listing removed by expiry: %v", err)
	}
}
