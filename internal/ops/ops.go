// Package ops exposes operator endpoints for the black market cycle.
// They are served on the same internal port as the health checks and are
// not meant to be reachable by players.
package ops

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jensholdgaard/bazaar/internal/blackmarket"
)

// Handler provides HTTP operator endpoints.
type Handler struct {
	scheduler *blackmarket.Scheduler
	logger    *slog.Logger
}

// NewHandler creates an ops handler around the scheduler.
func NewHandler(scheduler *blackmarket.Scheduler, logger *slog.Logger) *Handler {
	return &Handler{scheduler: scheduler, logger: logger}
}

// Register mounts the operator routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ops/blackmarket/refresh", h.ForceRefreshHandler())
	mux.HandleFunc("/ops/blackmarket/stats", h.StatsHandler())
}

type statsResponse struct {
	Enabled            bool   `json:"enabled"`
	DiscountedNow      int    `json:"discounted_now"`
	TotalValue         string `json:"total_value"`
	TotalOriginalValue string `json:"total_original_value"`
	TotalSavings       string `json:"total_savings"`
	LastFireAt         string `json:"last_fire_at,omitempty"`
	NextFireAt         string `json:"next_fire_at,omitempty"`
	UntilNextFire      string `json:"until_next_fire"`
}

// ForceRefreshHandler triggers an immediate refresh and restarts the
// interval.
func (h *Handler) ForceRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		if err := h.scheduler.ForceRefresh(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "forced refresh failed", slog.Any("error", err))
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}

		h.logger.InfoContext(r.Context(), "forced black market refresh")
		writeJSON(w, http.StatusOK, map[string]string{
			"status":       "refreshed",
			"next_refresh": h.scheduler.FormattedTimeUntilNextRefresh(),
		})
	}
}

// StatsHandler reports the current cycle state.
func (h *Handler) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		stats, err := h.scheduler.Stats(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "reading scheduler stats failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
			return
		}

		resp := statsResponse{
			Enabled:            stats.Enabled,
			DiscountedNow:      stats.DiscountedNow,
			TotalValue:         stats.TotalValue.String(),
			TotalOriginalValue: stats.TotalOriginalValue.String(),
			TotalSavings:       stats.TotalSavings.String(),
			UntilNextFire:      h.scheduler.FormattedTimeUntilNextRefresh(),
		}
		if !stats.LastFireAt.IsZero() {
			resp.LastFireAt = stats.LastFireAt.UTC().Format(time.RFC3339)
		}
		if !stats.NextFireAt.IsZero() {
			resp.NextFireAt = stats.NextFireAt.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
