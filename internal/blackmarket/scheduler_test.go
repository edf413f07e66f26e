package blackmarket_test

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/bazaar/internal/blackmarket"
	"github.com/jensholdgaard/bazaar/internal/clock"
	"github.com/jensholdgaard/bazaar/internal/store"
)

// --- mock helpers ---

type mockListingRepo struct {
	listings map[store.Tier]map[string]*store.Listing
	listErr  error
}

func newMockListingRepo() *mockListingRepo {
	return &mockListingRepo{listings: map[store.Tier]map[string]*store.Listing{
		store.TierStandard:   {},
		store.TierDiscounted: {},
	}}
}

func (m *mockListingRepo) add(id string, tier store.Tier, price int64) {
	p := decimal.NewFromInt(price)
	m.listings[tier][id] = &store.Listing{
		ID:            id,
		SellerID:      "seller-" + id,
		Payload:       []byte(fmt.Sprintf(`{"name":%q}`, id)),
		Price:         p,
		OriginalPrice: p,
		Tier:          tier,
	}
}

func (m *mockListingRepo) Create(_ context.Context, l *store.Listing) error {
	cp := *l
	m.listings[l.Tier][l.ID] = &cp
	return nil
}

func (m *mockListingRepo) Get(_ context.Context, id string, tier store.Tier) (*store.Listing, error) {
	l, ok := m.listings[tier][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockListingRepo) List(_ context.Context, tier store.Tier) ([]store.Listing, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []store.Listing
	for _, l := range m.listings[tier] {
		result = append(result, *l)
	}
	return result, nil
}

func (m *mockListingRepo) ListBySeller(_ context.Context, sellerID string, tier store.Tier) ([]store.Listing, error) {
	var result []store.Listing
	for _, l := range m.listings[tier] {
		if l.SellerID == sellerID {
			result = append(result, *l)
		}
	}
	return result, nil
}

func (m *mockListingRepo) CountBySeller(ctx context.Context, sellerID string, tier store.Tier) (int, error) {
	ls, err := m.ListBySeller(ctx, sellerID, tier)
	return len(ls), err
}

func (m *mockListingRepo) Update(_ context.Context, l *store.Listing) error {
	cp := *l
	m.listings[l.Tier][l.ID] = &cp
	return nil
}

func (m *mockListingRepo) Delete(_ context.Context, id string, tier store.Tier) error {
	delete(m.listings[tier], id)
	return nil
}

func (m *mockListingRepo) MoveTier(_ context.Context, l *store.Listing, to store.Tier) error {
	delete(m.listings[l.Tier], l.ID)
	cp := *l
	cp.Tier = to
	m.listings[to][l.ID] = &cp
	return nil
}

func (m *mockListingRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

type mockTimerRepo struct {
	state   *store.TimerState
	saves   int
	saveErr error
}

func (m *mockTimerRepo) Load(_ context.Context, jobID string) (*store.TimerState, error) {
	if m.state != nil {
		cp := *m.state
		return &cp, nil
	}
	return &store.TimerState{JobID: jobID}, nil
}

func (m *mockTimerRepo) Save(_ context.Context, s *store.TimerState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *s
	m.state = &cp
	m.saves++
	return nil
}

var baseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newScheduler(listings *mockListingRepo, timers *mockTimerRepo, clk *clock.Mock, cfg blackmarket.Config) *blackmarket.Scheduler {
	return blackmarket.NewScheduler(
		listings, timers, nil, nil, cfg, clk,
		rand.New(rand.NewSource(1)),
		slog.Default(), noop.NewTracerProvider(),
	)
}

func enabledConfig() blackmarket.Config {
	return blackmarket.Config{
		Enabled:         true,
		RefreshInterval: 24 * time.Hour,
		DiscountPct:     30,
	}
}

// --- tests ---

func TestScheduler_Start_FirstRun(t *testing.T) {
	listings := newMockListingRepo()
	timers := &mockTimerRepo{}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// With no prior state the first firing runs immediately; the empty
	// market means nothing rotates and lastFireAt stays unset.
	if timers.saves != 1 {
		t.Fatalf("saves = %d, want 1", timers.saves)
	}
	if !timers.state.LastFireAt.IsZero() {
		t.Errorf("LastFireAt = %v, want zero after empty firing", timers.state.LastFireAt)
	}
	wantNext := baseTime.Add(24 * time.Hour)
	if !timers.state.NextFireAt.Equal(wantNext) {
		t.Errorf("NextFireAt = %v, want %v", timers.state.NextFireAt, wantNext)
	}
	if got := s.TimeUntilNextRefresh(); got != 24*time.Hour {
		t.Errorf("TimeUntilNextRefresh() = %v, want 24h", got)
	}
}

func TestScheduler_Start_DelayFromLastFiring(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	// Fired 10h ago; no armed deadline survived.
	timers := &mockTimerRepo{state: &store.TimerState{
		JobID:      blackmarket.JobID,
		LastFireAt: baseTime.Add(-10 * time.Hour),
	}}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The remaining 14h of the interval is honored without firing.
	if len(listings.listings[store.TierDiscounted]) != 0 {
		t.Errorf("discounted = %d at start, want 0", len(listings.listings[store.TierDiscounted]))
	}
	if got := s.TimeUntilNextRefresh(); got != 14*time.Hour {
		t.Errorf("TimeUntilNextRefresh() = %v, want 14h", got)
	}

	clk.Advance(14 * time.Hour)
	if len(listings.listings[store.TierDiscounted]) != 1 {
		t.Errorf("discounted = %d after firing, want 1", len(listings.listings[store.TierDiscounted]))
	}
}

func TestScheduler_Start_ResumesSavedDeadline(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	timers := &mockTimerRepo{state: &store.TimerState{
		JobID:      blackmarket.JobID,
		NextFireAt: baseTime.Add(3 * time.Hour),
		LastFireAt: baseTime.Add(-21 * time.Hour),
		SavedAt:    baseTime.Add(-21 * time.Hour),
	}}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Resume must not rewrite the saved record.
	if timers.saves != 0 {
		t.Errorf("saves = %d, want 0 on resume", timers.saves)
	}
	if got := s.TimeUntilNextRefresh(); got != 3*time.Hour {
		t.Errorf("TimeUntilNextRefresh() = %v, want 3h", got)
	}

	// The resumed timer fires at the saved deadline.
	clk.Advance(3 * time.Hour)
	if len(listings.listings[store.TierDiscounted]) != 1 {
		t.Errorf("discounted = %d after resumed fire, want 1", len(listings.listings[store.TierDiscounted]))
	}
	if timers.saves != 1 {
		t.Errorf("saves = %d after fire, want 1", timers.saves)
	}
}

func TestScheduler_Start_OverdueFiresImmediately(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	listings.add("b", store.TierStandard, 200)
	timers := &mockTimerRepo{state: &store.TimerState{
		JobID:      blackmarket.JobID,
		NextFireAt: baseTime.Add(-time.Hour),
	}}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// ceil(2/2) = 1 listing discounted right away.
	if len(listings.listings[store.TierDiscounted]) != 1 {
		t.Errorf("discounted = %d, want 1", len(listings.listings[store.TierDiscounted]))
	}
	wantNext := baseTime.Add(24 * time.Hour)
	if !timers.state.NextFireAt.Equal(wantNext) {
		t.Errorf("NextFireAt = %v, want %v", timers.state.NextFireAt, wantNext)
	}
}

func TestScheduler_Refresh_DiscountsHalfRoundedUp(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	listings.add("b", store.TierStandard, 100)
	listings.add("c", store.TierStandard, 100)
	timers := &mockTimerRepo{}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clk.Advance(24 * time.Hour)

	if got := len(listings.listings[store.TierDiscounted]); got != 2 {
		t.Fatalf("discounted = %d, want ceil(3/2) = 2", got)
	}
	for id, l := range listings.listings[store.TierDiscounted] {
		if !l.Price.Equal(decimal.NewFromInt(70)) {
			t.Errorf("listing %s price = %s, want 70", id, l.Price)
		}
		if !l.OriginalPrice.Equal(decimal.NewFromInt(100)) {
			t.Errorf("listing %s original price = %s, want 100", id, l.OriginalPrice)
		}
	}
}

func TestScheduler_Refresh_RestoresUnsoldAtFullPrice(t *testing.T) {
	listings := newMockListingRepo()
	stale := &store.Listing{
		ID:            "stale",
		SellerID:      "seller",
		Payload:       []byte(`{"name":"stale"}`),
		Price:         decimal.NewFromInt(70),
		OriginalPrice: decimal.NewFromInt(100),
		Tier:          store.TierDiscounted,
	}
	listings.listings[store.TierDiscounted]["stale"] = stale
	timers := &mockTimerRepo{}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clk.Advance(24 * time.Hour)

	// The lone restored listing is immediately eligible again: with one
	// standard listing, ceil(1/2) = 1 gets rediscounted from full price.
	got, ok := listings.listings[store.TierDiscounted]["stale"]
	if !ok {
		t.Fatal("expected the restored listing to be rediscounted")
	}
	if !got.OriginalPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("OriginalPrice = %s, want 100", got.OriginalPrice)
	}
	if !got.Price.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Price = %s, want 70 (discounted from the restored full price)", got.Price)
	}
}

func TestScheduler_PeriodAnchoredToFiringTime(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	timers := &mockTimerRepo{}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clk.Advance(24 * time.Hour)

	wantNext := baseTime.Add(48 * time.Hour)
	if !timers.state.NextFireAt.Equal(wantNext) {
		t.Errorf("NextFireAt = %v, want %v", timers.state.NextFireAt, wantNext)
	}
	if !timers.state.LastFireAt.Equal(baseTime.Add(24 * time.Hour)) {
		t.Errorf("LastFireAt = %v, want %v", timers.state.LastFireAt, baseTime.Add(24*time.Hour))
	}
}

func TestScheduler_ForceRefresh(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	timers := &mockTimerRepo{}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	clk.Set(baseTime.Add(10 * time.Hour))
	if err := s.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}

	if len(listings.listings[store.TierDiscounted]) != 1 {
		t.Errorf("discounted = %d, want 1", len(listings.listings[store.TierDiscounted]))
	}
	// The interval restarts from the forced firing.
	wantNext := baseTime.Add(34 * time.Hour)
	if !timers.state.NextFireAt.Equal(wantNext) {
		t.Errorf("NextFireAt = %v, want %v", timers.state.NextFireAt, wantNext)
	}
	if !timers.state.LastFireAt.Equal(baseTime.Add(10 * time.Hour)) {
		t.Errorf("LastFireAt = %v, want forced firing time", timers.state.LastFireAt)
	}
	if got := s.TimeUntilNextRefresh(); got != 24*time.Hour {
		t.Errorf("TimeUntilNextRefresh() = %v, want 24h", got)
	}
}

func TestScheduler_ForceRefresh_Disabled(t *testing.T) {
	s := newScheduler(newMockListingRepo(), &mockTimerRepo{}, clock.NewMock(baseTime), blackmarket.Config{})

	if err := s.ForceRefresh(context.Background()); err == nil {
		t.Fatal("expected error when disabled")
	}
}

func TestScheduler_Stop(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	timers := &mockTimerRepo{state: &store.TimerState{
		JobID:      blackmarket.JobID,
		NextFireAt: baseTime.Add(time.Hour),
	}}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
	clk.Advance(48 * time.Hour)

	if len(listings.listings[store.TierDiscounted]) != 0 {
		t.Errorf("discounted = %d after Stop, want 0", len(listings.listings[store.TierDiscounted]))
	}
}

func TestScheduler_RefreshReadFailureKeepsCycle(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	timers := &mockTimerRepo{state: &store.TimerState{
		JobID:      blackmarket.JobID,
		NextFireAt: baseTime.Add(24 * time.Hour),
	}}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	listings.listErr = fmt.Errorf("db connection lost")
	clk.Advance(24 * time.Hour)

	// Nothing moved, but the next firing is still armed.
	if len(listings.listings[store.TierDiscounted]) != 0 {
		t.Errorf("discounted = %d after failed read, want 0", len(listings.listings[store.TierDiscounted]))
	}
	wantNext := baseTime.Add(48 * time.Hour)
	if !timers.state.NextFireAt.Equal(wantNext) {
		t.Errorf("NextFireAt = %v, want %v", timers.state.NextFireAt, wantNext)
	}

	listings.listErr = nil
	clk.Advance(24 * time.Hour)
	if len(listings.listings[store.TierDiscounted]) != 1 {
		t.Errorf("discounted = %d after recovery, want 1", len(listings.listings[store.TierDiscounted]))
	}
}

func TestScheduler_FormattedTimeUntilNextRefresh(t *testing.T) {
	listings := newMockListingRepo()
	timers := &mockTimerRepo{}
	clk := clock.NewMock(baseTime)

	disabled := newScheduler(listings, timers, clk, blackmarket.Config{})
	if got := disabled.FormattedTimeUntilNextRefresh(); got != "Disabled" {
		t.Errorf("disabled = %q, want %q", got, "Disabled")
	}

	s := newScheduler(listings, timers, clk, enabledConfig())
	if got := s.FormattedTimeUntilNextRefresh(); got != "Ready to refresh" {
		t.Errorf("before Start = %q, want %q", got, "Ready to refresh")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := s.FormattedTimeUntilNextRefresh(); got != "24h 0m 0s" {
		t.Errorf("after Start = %q, want %q", got, "24h 0m 0s")
	}

	clk.Set(baseTime.Add(23*time.Hour + 14*time.Minute + 30*time.Second))
	if got := s.FormattedTimeUntilNextRefresh(); got != "45m 30s" {
		t.Errorf("countdown = %q, want %q", got, "45m 30s")
	}
}

func TestScheduler_Stats(t *testing.T) {
	listings := newMockListingRepo()
	listings.add("a", store.TierStandard, 100)
	listings.add("b", store.TierStandard, 200)
	timers := &mockTimerRepo{}
	clk := clock.NewMock(baseTime)
	s := newScheduler(listings, timers, clk, enabledConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clk.Advance(24 * time.Hour)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if !stats.Enabled {
		t.Error("Enabled = false, want true")
	}
	if stats.DiscountedNow != 1 {
		t.Errorf("DiscountedNow = %d, want 1", stats.DiscountedNow)
	}
	if !stats.LastFireAt.Equal(baseTime.Add(24 * time.Hour)) {
		t.Errorf("LastFireAt = %v, want %v", stats.LastFireAt, baseTime.Add(24*time.Hour))
	}
	if !stats.NextFireAt.Equal(baseTime.Add(48 * time.Hour)) {
		t.Errorf("NextFireAt = %v, want %v", stats.NextFireAt, baseTime.Add(48*time.Hour))
	}
	wantValue := stats.TotalOriginalValue.Mul(decimal.NewFromFloat(0.7)).Round(2)
	if !stats.TotalValue.Equal(wantValue) {
		t.Errorf("TotalValue = %s, want %s", stats.TotalValue, wantValue)
	}
	wantSavings := stats.TotalOriginalValue.Sub(stats.TotalValue)
	if !stats.TotalSavings.Equal(wantSavings) {
		t.Errorf("TotalSavings = %s, want %s", stats.TotalSavings, wantSavings)
	}
}

func TestScheduler_DisabledStartIsNoop(t *testing.T) {
	timers := &mockTimerRepo{}
	s := newScheduler(newMockListingRepo(), timers, clock.NewMock(baseTime), blackmarket.Config{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if timers.saves != 0 {
		t.Errorf("saves = %d, want 0 when disabled", timers.saves)
	}
}
