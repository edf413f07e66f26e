package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// TimerRepo implements store.TimerRepository using database/sql. Unset fire
// times are stored as NULL and surfaced as zero time values.
type TimerRepo struct {
	db *sql.DB
}

// NewTimerRepo returns a new TimerRepo.
func NewTimerRepo(db *sql.DB) *TimerRepo {
	return &TimerRepo{db: db}
}

func (r *TimerRepo) Load(ctx context.Context, jobID string) (*store.TimerState, error) {
	var next, last, saved sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT next_fire_at, last_fire_at, saved_at FROM timers WHERE job_id = ?`, jobID,
	).Scan(&next, &last, &saved)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.TimerState{JobID: jobID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading timer state: %w", err)
	}
	s := &store.TimerState{JobID: jobID}
	if next.Valid {
		s.NextFireAt = next.Time
	}
	if last.Valid {
		s.LastFireAt = last.Time
	}
	if saved.Valid {
		s.SavedAt = saved.Time
	}
	return s, nil
}

func (r *TimerRepo) Save(ctx context.Context, s *store.TimerState) error {
	var next, last, saved sql.NullTime
	if !s.NextFireAt.IsZero() {
		next = sql.NullTime{Time: s.NextFireAt, Valid: true}
	}
	if !s.LastFireAt.IsZero() {
		last = sql.NullTime{Time: s.LastFireAt, Valid: true}
	}
	if !s.SavedAt.IsZero() {
		saved = sql.NullTime{Time: s.SavedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timers (job_id, next_fire_at, last_fire_at, saved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (job_id) DO UPDATE SET
		   next_fire_at = excluded.next_fire_at,
		   last_fire_at = excluded.last_fire_at,
		   saved_at = excluded.saved_at`,
		s.JobID, next, last, saved)
	if err != nil {
		return fmt.Errorf("saving timer state: %w", err)
	}
	return nil
}
