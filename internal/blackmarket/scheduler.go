// Package blackmarket runs the recurring discount cycle: on each firing,
// previously discounted listings return to the standard tier at full price
// and a fresh random half of the standard tier is discounted. The schedule
// survives restarts through a durable timer record.
package blackmarket

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/bazaar/internal/clock"
	"github.com/jensholdgaard/bazaar/internal/notify"
	"github.com/jensholdgaard/bazaar/internal/session"
	"github.com/jensholdgaard/bazaar/internal/store"
)

// JobID keys the scheduler's durable timer record.
const JobID = "blackmarket-refresh"

// Config holds scheduler tunables.
type Config struct {
	Enabled         bool
	RefreshInterval time.Duration
	// DiscountPct is the buyer-facing price reduction, 0 <= pct < 100.
	DiscountPct float64
}

// Stats is a point-in-time view of the discount cycle.
type Stats struct {
	Enabled       bool
	DiscountedNow int
	// TotalValue sums the current discounted prices; TotalOriginalValue
	// sums the pre-discount prices; TotalSavings is the difference.
	TotalValue         decimal.Decimal
	TotalOriginalValue decimal.Decimal
	TotalSavings       decimal.Decimal
	LastFireAt         time.Time
	NextFireAt         time.Time
	UntilNextFire      time.Duration
}

// Scheduler owns the discount cycle timer. Only one instance per deployment
// may be started; leader election enforces that across processes.
type Scheduler struct {
	listings store.ListingRepository
	timers   store.TimerRepository
	sessions *session.Registry
	notifier notify.Notifier
	cfg      Config
	clock    clock.Clock
	rng      *rand.Rand
	logger   *slog.Logger
	tracer   trace.Tracer

	mu         sync.Mutex
	timer      clock.Timer
	nextFireAt time.Time
	lastFireAt time.Time
	stopped    bool
}

// NewScheduler wires a Scheduler. sessions and notifier may be nil. rng
// drives the random half selection; pass a seeded source in production
// and a fixed one in tests.
func NewScheduler(
	listings store.ListingRepository,
	timers store.TimerRepository,
	sessions *session.Registry,
	notifier notify.Notifier,
	cfg Config,
	clk clock.Clock,
	rng *rand.Rand,
	logger *slog.Logger,
	tp trace.TracerProvider,
) *Scheduler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Scheduler{
		listings: listings,
		timers:   timers,
		sessions: sessions,
		notifier: notifier,
		cfg:      cfg,
		clock:    clk,
		rng:      rng,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/bazaar/internal/blackmarket"),
	}
}

// Start resumes the persisted schedule or arms a fresh one. A saved
// deadline still in the future is honored as-is so restarts do not push
// the cycle back; a deadline already passed fires one catch-up refresh
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.InfoContext(ctx, "black market disabled, scheduler not started")
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "Scheduler.Start")
	defer span.End()

	state, err := s.timers.Load(ctx, JobID)
	if err != nil {
		return fmt.Errorf("loading timer state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	s.lastFireAt = state.LastFireAt

	if state.NextFireAt.After(now) {
		// Resume the saved deadline without rewriting it.
		s.nextFireAt = state.NextFireAt
		s.timer = s.clock.AfterFunc(state.NextFireAt.Sub(now), s.onTimer)
		s.logger.InfoContext(ctx, "black market schedule resumed",
			slog.Time("next_fire_at", s.nextFireAt),
			slog.Duration("remaining", state.NextFireAt.Sub(now)),
		)
		return nil
	}

	// No valid future deadline: derive the remaining delay from the last
	// firing. Overdue (or never fired) means one catch-up firing now.
	delay := s.cfg.RefreshInterval - now.Sub(state.LastFireAt)
	if delay <= 0 {
		s.logger.InfoContext(ctx, "black market refresh overdue, firing now",
			slog.Time("last_fire_at", state.LastFireAt),
		)
		s.fireLocked(ctx, false)
		return nil
	}

	if err := s.armLocked(ctx, now.Add(delay), now); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "black market schedule armed",
		slog.Time("next_fire_at", s.nextFireAt),
	)
	return nil
}

// Stop cancels the armed timer. A firing already in progress completes but
// does not re-arm.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ForceRefresh runs the cycle immediately and restarts the full interval
// from now, persisting the new schedule.
func (s *Scheduler) ForceRefresh(ctx context.Context) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("black market is disabled")
	}

	ctx, span := s.tracer.Start(ctx, "Scheduler.ForceRefresh")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.fireLocked(ctx, true)
	return nil
}

// TimeUntilNextRefresh returns the remaining time before the next firing.
// Zero means the refresh is due or the scheduler is not running.
func (s *Scheduler) TimeUntilNextRefresh() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextFireAt.IsZero() {
		return 0
	}
	d := s.nextFireAt.Sub(s.clock.Now().UTC())
	if d < 0 {
		return 0
	}
	return d
}

// FormattedTimeUntilNextRefresh renders the countdown for display.
func (s *Scheduler) FormattedTimeUntilNextRefresh() string {
	if !s.cfg.Enabled {
		return "Disabled"
	}
	d := s.TimeUntilNextRefresh()
	if d == 0 {
		return "Ready to refresh"
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

// Stats returns the current cycle state.
func (s *Scheduler) Stats(ctx context.Context) (*Stats, error) {
	discounted, err := s.listings.List(ctx, store.TierDiscounted)
	if err != nil {
		return nil, fmt.Errorf("listing discounted items: %w", err)
	}

	var value, original decimal.Decimal
	for _, l := range discounted {
		value = value.Add(l.Price)
		original = original.Add(l.OriginalPrice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &Stats{
		Enabled:            s.cfg.Enabled,
		DiscountedNow:      len(discounted),
		TotalValue:         value,
		TotalOriginalValue: original,
		TotalSavings:       original.Sub(value),
		LastFireAt:         s.lastFireAt,
		NextFireAt:         s.nextFireAt,
		UntilNextFire:      s.untilLocked(),
	}, nil
}

func (s *Scheduler) untilLocked() time.Duration {
	if s.nextFireAt.IsZero() {
		return 0
	}
	d := s.nextFireAt.Sub(s.clock.Now().UTC())
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) onTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.fireLocked(context.Background(), false)
}

// fireLocked runs one refresh and re-arms anchored to the firing start
// time, so a slow refresh does not drift the cycle. A forced firing resets
// lastFireAt even when nothing rotated. Caller holds s.mu.
func (s *Scheduler) fireLocked(ctx context.Context, force bool) {
	firedAt := s.clock.Now().UTC()

	rotated, err := s.refresh(ctx, firedAt)
	if err != nil {
		// Keep the cycle alive; the next firing retries the whole move.
		s.logger.ErrorContext(ctx, "black market refresh failed",
			slog.Any("error", err),
		)
	}
	if rotated || force {
		s.lastFireAt = firedAt
	}

	if s.stopped {
		return
	}
	if err := s.armLocked(ctx, firedAt.Add(s.cfg.RefreshInterval), firedAt); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist refresh schedule",
			slog.Any("error", err),
		)
	}
}

// armLocked persists the schedule and arms the in-process timer. The
// record is written before the timer so a crash between the two resumes
// rather than loses the cycle. Caller holds s.mu.
func (s *Scheduler) armLocked(ctx context.Context, nextFireAt, now time.Time) error {
	state := &store.TimerState{
		JobID:      JobID,
		NextFireAt: nextFireAt,
		LastFireAt: s.lastFireAt,
		SavedAt:    now,
	}
	if err := s.timers.Save(ctx, state); err != nil {
		return fmt.Errorf("saving timer state: %w", err)
	}

	s.nextFireAt = nextFireAt
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(nextFireAt.Sub(now), s.onTimer)
	return nil
}

// refresh performs one full cycle: restore the discounted tier, then
// discount a fresh random half of the standard tier. Read failures abort
// before any mutation. The returned bool reports whether a rotation ran.
func (s *Scheduler) refresh(ctx context.Context, now time.Time) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "Scheduler.refresh")
	defer span.End()

	discounted, err := s.listings.List(ctx, store.TierDiscounted)
	if err != nil {
		return false, fmt.Errorf("listing discounted items: %w", err)
	}
	standard, err := s.listings.List(ctx, store.TierStandard)
	if err != nil {
		return false, fmt.Errorf("listing standard items: %w", err)
	}

	// Unsold discounted items return at full price.
	restored := 0
	for i := range discounted {
		l := discounted[i]
		l.Price = l.OriginalPrice
		if err := s.listings.MoveTier(ctx, &l, store.TierStandard); err != nil {
			s.logger.ErrorContext(ctx, "failed to restore discounted listing",
				slog.String("listing_id", l.ID),
				slog.Any("error", err),
			)
			continue
		}
		standard = append(standard, l)
		restored++
	}

	if len(standard) == 0 {
		s.logger.InfoContext(ctx, "no listings available, skipping rotation")
		return false, nil
	}

	// Discount a random half, rounded up.
	picked := s.pickHalf(standard)
	factor := decimal.NewFromFloat(1 - s.cfg.DiscountPct/100)
	moved := 0
	for i := range picked {
		l := picked[i]
		l.OriginalPrice = l.Price
		l.Price = l.Price.Mul(factor).Round(2)
		if err := s.listings.MoveTier(ctx, &l, store.TierDiscounted); err != nil {
			s.logger.ErrorContext(ctx, "failed to discount listing",
				slog.String("listing_id", l.ID),
				slog.Any("error", err),
			)
			continue
		}
		moved++
	}

	span.SetAttributes(
		attribute.Int("restored", restored),
		attribute.Int("discounted", moved),
	)
	s.logger.InfoContext(ctx, "black market refreshed",
		slog.Int("restored", restored),
		slog.Int("discounted", moved),
		slog.Time("fired_at", now),
	)

	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.EventBlackMarketRefresh,
		ItemCount: moved,
	})
	if s.sessions != nil {
		s.sessions.BroadcastRefresh(ctx, session.KindBlackMarket)
		s.sessions.BroadcastRefresh(ctx, session.KindMarketplace)
	}
	return true, nil
}

// pickHalf returns ceil(n/2) listings chosen uniformly without replacement.
func (s *Scheduler) pickHalf(pool []store.Listing) []store.Listing {
	n := len(pool)
	if n == 0 {
		return nil
	}
	want := (n + 1) / 2
	idx := s.rng.Perm(n)[:want]
	picked := make([]store.Listing, 0, want)
	for _, i := range idx {
		picked = append(picked, pool[i])
	}
	return picked
}
