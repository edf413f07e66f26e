package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Tier identifies which market a listing currently belongs to.
type Tier string

const (
	// TierStandard is the regular full-price marketplace.
	TierStandard Tier = "standard"
	// TierDiscounted is the black-market tier with reduced buyer prices.
	TierDiscounted Tier = "discounted"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierStandard || t == TierDiscounted
}

// Listing is one item offered for sale. A listing belongs to exactly one
// tier at a time; moving between tiers is a remove+insert.
type Listing struct {
	ID            string          `db:"id"`
	SellerID      string          `db:"seller_id"`
	SellerName    string          `db:"seller_name"`
	Payload       []byte          `db:"payload"`
	Price         decimal.Decimal `db:"price"`
	OriginalPrice decimal.Decimal `db:"original_price"`
	ListedAt      time.Time       `db:"listed_at"`
	Tier          Tier            `db:"tier"`
}

// TransactionKind distinguishes standard from black-market sales.
type TransactionKind string

const (
	KindStandard   TransactionKind = "standard"
	KindDiscounted TransactionKind = "discounted"
)

// Transaction is the immutable audit record of one completed sale.
type Transaction struct {
	ID         string          `db:"id"`
	BuyerID    string          `db:"buyer_id"`
	BuyerName  string          `db:"buyer_name"`
	SellerID   string          `db:"seller_id"`
	SellerName string          `db:"seller_name"`
	ItemName   string          `db:"item_name"`
	Payload    []byte          `db:"payload"`
	Price      decimal.Decimal `db:"price"`
	Kind       TransactionKind `db:"kind"`
	CreatedAt  time.Time       `db:"created_at"`
}

// PlayerStat holds per-actor running counters, created lazily on first
// reference.
type PlayerStat struct {
	PlayerID     string          `db:"player_id"`
	PlayerName   string          `db:"player_name"`
	ItemsSold    int             `db:"items_sold"`
	ItemsBought  int             `db:"items_bought"`
	TotalEarned  decimal.Decimal `db:"total_earned"`
	TotalSpent   decimal.Decimal `db:"total_spent"`
	LastActiveAt time.Time       `db:"last_active_at"`
	FirstSeenAt  time.Time       `db:"first_seen_at"`
}

// TimerState is the durable schedule record for one recurring job.
// A zero NextFireAt means no schedule has been armed yet.
type TimerState struct {
	JobID      string    `db:"job_id"`
	NextFireAt time.Time `db:"next_fire_at"`
	LastFireAt time.Time `db:"last_fire_at"`
	SavedAt    time.Time `db:"saved_at"`
}

// PendingPayment is a seller payout that could not be delivered at sale
// time and must be durably queued until resolved.
type PendingPayment struct {
	ID         string          `db:"id"`
	SellerID   string          `db:"seller_id"`
	SellerName string          `db:"seller_name"`
	Amount     decimal.Decimal `db:"amount"`
	ListingID  string          `db:"listing_id"`
	Reason     string          `db:"reason"`
	CreatedAt  time.Time       `db:"created_at"`
	ResolvedAt *time.Time      `db:"resolved_at"`
}

// ListingRepository defines listing persistence operations. Mutations
// rewrite whole records; there are no partial updates.
type ListingRepository interface {
	Create(ctx context.Context, l *Listing) error
	// Get fetches a listing by id within a tier; ErrNotFound if absent.
	Get(ctx context.Context, id string, tier Tier) (*Listing, error)
	List(ctx context.Context, tier Tier) ([]Listing, error)
	ListBySeller(ctx context.Context, sellerID string, tier Tier) ([]Listing, error)
	CountBySeller(ctx context.Context, sellerID string, tier Tier) (int, error)
	Update(ctx context.Context, l *Listing) error
	Delete(ctx context.Context, id string, tier Tier) error
	// MoveTier atomically relocates a listing to another tier, applying
	// the record's current price fields.
	MoveTier(ctx context.Context, l *Listing, to Tier) error
	// DeleteExpired removes standard-tier listings listed before cutoff
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// TransactionRepository defines audit record persistence. Records are
// append-only.
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	// ListByActor returns transactions where the actor is buyer or
	// seller, newest first.
	ListByActor(ctx context.Context, actorID string) ([]Transaction, error)
	ListAll(ctx context.Context) ([]Transaction, error)
}

// StatRepository defines player counter persistence with upsert semantics.
type StatRepository interface {
	// Get returns the stat row for an actor, or a zero-valued default if
	// none exists yet.
	Get(ctx context.Context, playerID string) (*PlayerStat, error)
	Upsert(ctx context.Context, s *PlayerStat) error
}

// TimerRepository defines schedule state persistence keyed by job id.
type TimerRepository interface {
	// Load returns the timer state for a job, or a zero-valued state if
	// none has been saved yet.
	Load(ctx context.Context, jobID string) (*TimerState, error)
	Save(ctx context.Context, s *TimerState) error
}

// PendingPaymentRepository defines the durable offline-payout queue.
type PendingPaymentRepository interface {
	Create(ctx context.Context, p *PendingPayment) error
	ListUnresolved(ctx context.Context, sellerID string) ([]PendingPayment, error)
	// MarkResolved stamps a pending payment as delivered. Resolving an
	// already resolved or unknown payment returns ErrNotFound.
	MarkResolved(ctx context.Context, id string, at time.Time) error
}
