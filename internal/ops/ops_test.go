package ops_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/bazaar/internal/blackmarket"
	"github.com/jensholdgaard/bazaar/internal/clock"
	"github.com/jensholdgaard/bazaar/internal/ops"
	"github.com/jensholdgaard/bazaar/internal/store"
)

type memListings struct {
	byTier map[store.Tier][]store.Listing
}

func (m *memListings) Create(context.Context, *store.Listing) error { return nil }
func (m *memListings) Get(context.Context, string, store.Tier) (*store.Listing, error) {
	return nil, store.ErrNotFound
}
func (m *memListings) List(_ context.Context, tier store.Tier) ([]store.Listing, error) {
	return m.byTier[tier], nil
}
func (m *memListings) ListBySeller(context.Context, string, store.Tier) ([]store.Listing, error) {
	return nil, nil
}
func (m *memListings) CountBySeller(context.Context, string, store.Tier) (int, error) {
	return 0, nil
}
func (m *memListings) Update(context.Context, *store.Listing) error { return nil }
func (m *memListings) Delete(context.Context, string, store.Tier) error {
	return nil
}
func (m *memListings) MoveTier(_ context.Context, l *store.Listing, to store.Tier) error {
	m.byTier[to] = append(m.byTier[to], *l)
	return nil
}
func (m *memListings) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }

type memTimers struct{ state *store.TimerState }

func (m *memTimers) Load(_ context.Context, jobID string) (*store.TimerState, error) {
	if m.state != nil {
		return m.state, nil
	}
	return &store.TimerState{JobID: jobID}, nil
}

func (m *memTimers) Save(_ context.Context, s *store.TimerState) error {
	cp := *s
	m.state = &cp
	return nil
}

func newHandler(t *testing.T, enabled bool) *ops.Handler {
	t.Helper()
	cfg := blackmarket.Config{
		Enabled:         enabled,
		RefreshInterval: 24 * time.Hour,
		DiscountPct:     30,
	}
	s := blackmarket.NewScheduler(
		&memListings{byTier: map[store.Tier][]store.Listing{}},
		&memTimers{}, nil, nil, cfg,
		clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)),
		rand.New(rand.NewSource(1)),
		slog.Default(), noop.NewTracerProvider(),
	)
	if enabled {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}
	return ops.NewHandler(s, slog.Default())
}

func TestForceRefreshHandler(t *testing.T) {
	h := newHandler(t, true)

	req := httptest.NewRequest(http.MethodPost, "/ops/blackmarket/refresh", nil)
	rec := httptest.NewRecorder()
	h.ForceRefreshHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "refreshed" {
		t.Errorf("status = %q, want %q", body["status"], "refreshed")
	}
}

func TestForceRefreshHandler_MethodNotAllowed(t *testing.T) {
	h := newHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/ops/blackmarket/refresh", nil)
	rec := httptest.NewRecorder()
	h.ForceRefreshHandler()(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestForceRefreshHandler_Disabled(t *testing.T) {
	h := newHandler(t, false)

	req := httptest.NewRequest(http.MethodPost, "/ops/blackmarket/refresh", nil)
	rec := httptest.NewRecorder()
	h.ForceRefreshHandler()(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestStatsHandler(t *testing.T) {
	h := newHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/ops/blackmarket/stats", nil)
	rec := httptest.NewRecorder()
	h.StatsHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body)
	}
	var body struct {
		Enabled       bool   `json:"enabled"`
		TotalSavings  string `json:"total_savings"`
		NextFireAt    string `json:"next_fire_at"`
		UntilNextFire string `json:"until_next_fire"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !body.Enabled {
		t.Error("enabled = false, want true")
	}
	if body.NextFireAt == "" {
		t.Error("next_fire_at is empty after Start")
	}
	if body.UntilNextFire != "24h 0m 0s" {
		t.Errorf("until_next_fire = %q, want %q", body.UntilNextFire, "24h 0m 0s")
	}
	if body.TotalSavings != "0" {
		t.Errorf("total_savings = %q, want %q with an empty tier", body.TotalSavings, "0")
	}
}
