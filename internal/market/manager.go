// Package market owns the listing lifecycle: selling, purchasing, expiry
// and per-actor history. The purchase pipeline has no multi-resource
// transaction available; it defines a strict step order where everything
// before the buyer debit aborts cleanly and everything after is logged for
// manual reconciliation if it fails.
package market

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/bazaar/internal/clock"
	"github.com/jensholdgaard/bazaar/internal/economy"
	"github.com/jensholdgaard/bazaar/internal/notify"
	"github.com/jensholdgaard/bazaar/internal/session"
	"github.com/jensholdgaard/bazaar/internal/store"
)

// ItemSink is the host-side inventory a purchased item is delivered into.
type ItemSink interface {
	// CanReceive reports whether the actor has room for one more item.
	CanReceive(ctx context.Context, actorID string) bool
	// Grant hands the payload to the actor.
	Grant(ctx context.Context, actorID string, payload []byte) error
}

// Presence reports whether an actor is currently reachable for immediate
// payment delivery.
type Presence interface {
	IsOnline(actorID string) bool
}

// Config holds market tunables.
type Config struct {
	// SellerMultiplier is applied to the pre-discount price when paying
	// the seller of a discounted listing.
	SellerMultiplier float64
	// MaxListingsPerSeller caps concurrent standard listings per actor.
	MaxListingsPerSeller int
	// ListingTTL is the age beyond which the expiry sweep removes a
	// standard listing.
	ListingTTL time.Duration
}

// Receipt describes a completed purchase.
type Receipt struct {
	TransactionID string
	Listing       store.Listing
	SellerPayment decimal.Decimal
	Kind          store.TransactionKind
}

// Manager coordinates listings, purchases and expiry.
type Manager struct {
	listings store.ListingRepository
	txs      store.TransactionRepository
	stats    store.StatRepository
	pending  store.PendingPaymentRepository
	ledger   economy.Ledger
	sink     ItemSink
	presence Presence
	sessions *session.Registry
	notifier notify.Notifier
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewManager wires a market Manager. All collaborators are required except
// sessions and notifier, which may be nil for headless use.
func NewManager(
	repos *store.Repositories,
	ledger economy.Ledger,
	sink ItemSink,
	presence Presence,
	sessions *session.Registry,
	notifier notify.Notifier,
	cfg Config,
	clk clock.Clock,
	logger *slog.Logger,
	tp trace.TracerProvider,
) *Manager {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Manager{
		listings: repos.Listings,
		txs:      repos.Transactions,
		stats:    repos.Stats,
		pending:  repos.PendingPayments,
		ledger:   ledger,
		sink:     sink,
		presence: presence,
		sessions: sessions,
		notifier: notifier,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/bazaar/internal/market"),
	}
}

// ListItem creates a standard-tier listing for the seller's item.
func (m *Manager) ListItem(ctx context.Context, sellerID, sellerName string, payload []byte, price decimal.Decimal) (*store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListItem",
		trace.WithAttributes(
			attribute.String("seller_id", sellerID),
			attribute.String("price", price.String()),
		),
	)
	defer span.End()

	if !economy.ValidAmount(price) {
		return nil, ErrInvalidPrice
	}

	count, err := m.listings.CountBySeller(ctx, sellerID, store.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("counting seller listings: %w", err)
	}
	if count >= m.cfg.MaxListingsPerSeller {
		return nil, ErrTooManyListings
	}

	existing, err := m.listings.ListBySeller(ctx, sellerID, store.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("checking existing listings: %w", err)
	}
	for _, l := range existing {
		if l.Price.Equal(price) && bytes.Equal(l.Payload, payload) {
			return nil, ErrDuplicateListing
		}
	}

	now := m.clock.Now().UTC()
	l := &store.Listing{
		ID:            uuid.New().String(),
		SellerID:      sellerID,
		SellerName:    sellerName,
		Payload:       payload,
		Price:         price,
		OriginalPrice: price,
		ListedAt:      now,
		Tier:          store.TierStandard,
	}
	if err := m.listings.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("creating listing: %w", err)
	}

	m.touchSeller(ctx, sellerID, sellerName, now)

	m.logger.InfoContext(ctx, "item listed",
		slog.String("listing_id", l.ID),
		slog.String("seller_id", sellerID),
		slog.String("price", price.String()),
	)

	m.notifier.Notify(ctx, notify.Event{
		Kind:       notify.EventListed,
		SellerName: sellerName,
		ItemName:   ItemName(payload),
		Price:      price,
	})
	m.refreshViews(ctx, session.KindMarketplace, session.KindMyItems)
	return l, nil
}

// Purchase runs the buyer's intent against a listing through the full
// pipeline. Steps before the debit abort with no side effects; once the
// debit succeeds the pipeline runs to completion and reports any later
// failures as an *InconsistencyError after logging them for manual
// reconciliation.
func (m *Manager) Purchase(ctx context.Context, buyerID, buyerName, listingID string, tier store.Tier) (*Receipt, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Purchase",
		trace.WithAttributes(
			attribute.String("buyer_id", buyerID),
			attribute.String("listing_id", listingID),
			attribute.String("tier", string(tier)),
		),
	)
	defer span.End()

	// Step 1: re-fetch by id. Losing a purchase race is normal and
	// yields ErrItemGone with no side effects.
	l, err := m.listings.Get(ctx, listingID, tier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrItemGone
		}
		return nil, fmt.Errorf("fetching listing: %w", err)
	}

	// Step 2: self-trade check.
	if l.SellerID == buyerID {
		return nil, ErrSelfPurchase
	}

	// Step 3: funds check.
	balance, err := m.ledger.Balance(ctx, buyerID)
	if err != nil {
		return nil, &LedgerError{Op: "balance", Err: err}
	}
	if balance.LessThan(l.Price) {
		return nil, ErrInsufficientFunds
	}

	// Step 4: capacity check.
	if !m.sink.CanReceive(ctx, buyerID) {
		return nil, ErrNoCapacity
	}

	// Step 5: debit buyer. The last step allowed to abort cleanly.
	if err := m.ledger.Withdraw(ctx, buyerID, l.Price); err != nil {
		if errors.Is(err, economy.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, &LedgerError{Op: "withdraw", Err: err}
	}

	// Step 6: seller payment. Discounted sales pay a multiple of the
	// pre-discount price, not the discounted sale price.
	kind := store.KindStandard
	sellerPayment := l.Price
	if tier == store.TierDiscounted {
		kind = store.KindDiscounted
		sellerPayment = l.OriginalPrice.Mul(decimal.NewFromFloat(m.cfg.SellerMultiplier))
	}

	var inconsistency *InconsistencyError
	fail := func(step string, err error) {
		if inconsistency == nil {
			inconsistency = &InconsistencyError{
				Step:      step,
				BuyerID:   buyerID,
				SellerID:  l.SellerID,
				ListingID: l.ID,
				Err:       err,
			}
		}
		m.logger.ErrorContext(ctx, "purchase pipeline failed after debit",
			slog.String("step", step),
			slog.String("buyer_id", buyerID),
			slog.String("seller_id", l.SellerID),
			slog.String("listing_id", l.ID),
			slog.String("price", l.Price.String()),
			slog.Any("error", err),
		)
	}

	// Step 7: credit seller, or durably queue the payout.
	m.paySeller(ctx, l, sellerPayment, fail)

	// Step 8: grant the item, stripped of marketplace metadata.
	if err := m.sink.Grant(ctx, buyerID, StripEnvelope(l.Payload)); err != nil {
		fail("grant", err)
	}

	// Step 9: remove the listing.
	if err := m.listings.Delete(ctx, l.ID, tier); err != nil {
		fail("remove-listing", err)
	}

	// Step 10: audit record.
	now := m.clock.Now().UTC()
	receipt := &Receipt{
		TransactionID: uuid.New().String(),
		Listing:       *l,
		SellerPayment: sellerPayment,
		Kind:          kind,
	}
	tx := &store.Transaction{
		ID:         receipt.TransactionID,
		BuyerID:    buyerID,
		BuyerName:  buyerName,
		SellerID:   l.SellerID,
		SellerName: l.SellerName,
		ItemName:   ItemName(l.Payload),
		Payload:    l.Payload,
		Price:      l.Price,
		Kind:       kind,
		CreatedAt:  now,
	}
	if err := m.txs.Create(ctx, tx); err != nil {
		fail("audit-record", err)
	}

	// Step 11: statistics for both parties.
	m.recordStats(ctx, buyerID, buyerName, l, sellerPayment, now, fail)

	m.logger.InfoContext(ctx, "purchase completed",
		slog.String("transaction_id", tx.ID),
		slog.String("buyer_id", buyerID),
		slog.String("seller_id", l.SellerID),
		slog.String("price", l.Price.String()),
		slog.String("seller_payment", sellerPayment.String()),
		slog.String("kind", string(kind)),
	)

	// Step 12: async notification and view refresh, off the critical path.
	evKind := notify.EventPurchase
	refreshKind := session.KindMarketplace
	if kind == store.KindDiscounted {
		evKind = notify.EventBlackMarketPurchase
		refreshKind = session.KindBlackMarket
	}
	m.notifier.Notify(ctx, notify.Event{
		Kind:       evKind,
		BuyerName:  buyerName,
		SellerName: l.SellerName,
		ItemName:   ItemName(l.Payload),
		Price:      l.Price,
	})
	m.refreshViews(ctx, refreshKind, session.KindMyItems)

	if inconsistency != nil {
		return receipt, inconsistency
	}
	return receipt, nil
}

// paySeller credits the seller when reachable, otherwise records a durable
// pending payment. A failed deposit also falls back to the pending queue so
// the payout is never silently dropped.
func (m *Manager) paySeller(ctx context.Context, l *store.Listing, amount decimal.Decimal, fail func(string, error)) {
	deliver := m.presence.IsOnline(l.SellerID)
	if deliver {
		err := m.ledger.Deposit(ctx, l.SellerID, amount)
		if err == nil {
			return
		}
		fail("credit-seller", &LedgerError{Op: "deposit", Err: err})
	}

	p := &store.PendingPayment{
		ID:         uuid.New().String(),
		SellerID:   l.SellerID,
		SellerName: l.SellerName,
		Amount:     amount,
		ListingID:  l.ID,
		Reason:     "seller offline at sale time",
		CreatedAt:  m.clock.Now().UTC(),
	}
	if deliver {
		p.Reason = "deposit failed at sale time"
	}
	if err := m.pending.Create(ctx, p); err != nil {
		fail("pending-payment", err)
		return
	}
	m.logger.WarnContext(ctx, "seller payout queued",
		slog.String("seller_id", l.SellerID),
		slog.String("amount", amount.String()),
		slog.String("reason", p.Reason),
	)
}

// ResolvePendingPayments delivers every queued payout for a seller who has
// become reachable, marking each resolved exactly once.
func (m *Manager) ResolvePendingPayments(ctx context.Context, sellerID string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ResolvePendingPayments",
		trace.WithAttributes(attribute.String("seller_id", sellerID)),
	)
	defer span.End()

	queued, err := m.pending.ListUnresolved(ctx, sellerID)
	if err != nil {
		return 0, fmt.Errorf("listing pending payments: %w", err)
	}

	resolved := 0
	for _, p := range queued {
		if err := m.ledger.Deposit(ctx, p.SellerID, p.Amount); err != nil {
			m.logger.WarnContext(ctx, "pending payout delivery failed",
				slog.String("payment_id", p.ID),
				slog.Any("error", err),
			)
			continue
		}
		if err := m.pending.MarkResolved(ctx, p.ID, m.clock.Now().UTC()); err != nil {
			// Delivered but not marked: flag loudly, a second delivery
			// would double-pay.
			m.logger.ErrorContext(ctx, "pending payout delivered but not marked resolved",
				slog.String("payment_id", p.ID),
				slog.Any("error", err),
			)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// CancelListing lets a seller reclaim their own listing from either tier.
func (m *Manager) CancelListing(ctx context.Context, sellerID, listingID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.CancelListing",
		trace.WithAttributes(
			attribute.String("seller_id", sellerID),
			attribute.String("listing_id", listingID),
		),
	)
	defer span.End()

	l, tier, err := m.findAnyTier(ctx, listingID)
	if err != nil {
		return err
	}
	if l.SellerID != sellerID {
		return ErrNotSeller
	}
	if !m.sink.CanReceive(ctx, sellerID) {
		return ErrNoCapacity
	}

	if err := m.listings.Delete(ctx, l.ID, tier); err != nil {
		return fmt.Errorf("removing listing: %w", err)
	}
	if err := m.sink.Grant(ctx, sellerID, StripEnvelope(l.Payload)); err != nil {
		m.logger.ErrorContext(ctx, "listing removed but item not returned",
			slog.String("listing_id", l.ID),
			slog.String("seller_id", sellerID),
			slog.Any("error", err),
		)
		return fmt.Errorf("returning item: %w", err)
	}

	m.refreshViews(ctx, session.KindMarketplace, session.KindBlackMarket, session.KindMyItems)
	return nil
}

// Listings returns all listings in a tier.
func (m *Manager) Listings(ctx context.Context, tier store.Tier) ([]store.Listing, error) {
	return m.listings.List(ctx, tier)
}

// MyItems returns the seller's listings across both tiers.
func (m *Manager) MyItems(ctx context.Context, sellerID string) ([]store.Listing, error) {
	standard, err := m.listings.ListBySeller(ctx, sellerID, store.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("listing standard items: %w", err)
	}
	discounted, err := m.listings.ListBySeller(ctx, sellerID, store.TierDiscounted)
	if err != nil {
		return nil, fmt.Errorf("listing discounted items: %w", err)
	}
	return append(standard, discounted...), nil
}

// History returns the actor's transactions, newest first.
func (m *Manager) History(ctx context.Context, actorID string) ([]store.Transaction, error) {
	return m.txs.ListByActor(ctx, actorID)
}

// ExpireListings removes standard listings older than the configured TTL
// and returns how many were removed.
func (m *Manager) ExpireListings(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ExpireListings")
	defer span.End()

	cutoff := m.clock.Now().UTC().Add(-m.cfg.ListingTTL)
	n, err := m.listings.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired listings: %w", err)
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "expired listings removed", slog.Int("count", n))
		m.refreshViews(ctx, session.KindMarketplace, session.KindMyItems)
	}
	return n, nil
}

// RunExpirySweep runs ExpireListings on a fixed interval until ctx is done.
func (m *Manager) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.ExpireListings(ctx); err != nil {
				m.logger.ErrorContext(ctx, "expiry sweep failed", slog.Any("error", err))
			}
		}
	}
}

func (m *Manager) findAnyTier(ctx context.Context, listingID string) (*store.Listing, store.Tier, error) {
	for _, tier := range []store.Tier{store.TierStandard, store.TierDiscounted} {
		l, err := m.listings.Get(ctx, listingID, tier)
		if err == nil {
			return l, tier, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, "", fmt.Errorf("fetching listing: %w", err)
		}
	}
	return nil, "", ErrItemGone
}

func (m *Manager) recordStats(ctx context.Context, buyerID, buyerName string, l *store.Listing, sellerPayment decimal.Decimal, now time.Time, fail func(string, error)) {
	buyer, err := m.stats.Get(ctx, buyerID)
	if err == nil {
		buyer.PlayerID = buyerID
		buyer.PlayerName = buyerName
		if buyer.FirstSeenAt.IsZero() {
			buyer.FirstSeenAt = now
		}
		buyer.ItemsBought++
		buyer.TotalSpent = buyer.TotalSpent.Add(l.Price)
		buyer.LastActiveAt = now
		err = m.stats.Upsert(ctx, buyer)
	}
	if err != nil {
		fail("buyer-stats", err)
	}

	seller, err := m.stats.Get(ctx, l.SellerID)
	if err == nil {
		seller.PlayerID = l.SellerID
		seller.PlayerName = l.SellerName
		if seller.FirstSeenAt.IsZero() {
			seller.FirstSeenAt = now
		}
		seller.ItemsSold++
		seller.TotalEarned = seller.TotalEarned.Add(sellerPayment)
		seller.LastActiveAt = now
		err = m.stats.Upsert(ctx, seller)
	}
	if err != nil {
		fail("seller-stats", err)
	}
}

func (m *Manager) touchSeller(ctx context.Context, sellerID, sellerName string, now time.Time) {
	s, err := m.stats.Get(ctx, sellerID)
	if err == nil {
		s.PlayerID = sellerID
		s.PlayerName = sellerName
		if s.FirstSeenAt.IsZero() {
			s.FirstSeenAt = now
		}
		s.LastActiveAt = now
		err = m.stats.Upsert(ctx, s)
	}
	if err != nil {
		m.logger.WarnContext(ctx, "failed to update seller stats", slog.Any("error", err))
	}
}

func (m *Manager) refreshViews(ctx context.Context, kinds ...session.Kind) {
	if m.sessions == nil {
		return
	}
	for _, k := range kinds {
		m.sessions.BroadcastRefresh(ctx, k)
	}
}
