package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// TimerRepo implements store.TimerRepository with sqlx. Unset fire times
// are stored as NULL and surfaced as zero time values.
type TimerRepo struct {
	db *sqlx.DB
}

// NewTimerRepo returns a new TimerRepo.
func NewTimerRepo(db *sqlx.DB) *TimerRepo {
	return &TimerRepo{db: db}
}

type timerRow struct {
	JobID      string       `db:"job_id"`
	NextFireAt sql.NullTime `db:"next_fire_at"`
	LastFireAt sql.NullTime `db:"last_fire_at"`
	SavedAt    sql.NullTime `db:"saved_at"`
}

func (r *TimerRepo) Load(ctx context.Context, jobID string) (*store.TimerState, error) {
	var row timerRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM timers WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.TimerState{JobID: jobID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading timer state: %w", err)
	}
	s := &store.TimerState{JobID: row.JobID}
	if row.NextFireAt.Valid {
		s.NextFireAt = row.NextFireAt.Time
	}
	if row.LastFireAt.Valid {
		s.LastFireAt = row.LastFireAt.Time
	}
	if row.SavedAt.Valid {
		s.SavedAt = row.SavedAt.Time
	}
	return s, nil
}

func (r *TimerRepo) Save(ctx context.Context, s *store.TimerState) error {
	row := timerRow{JobID: s.JobID}
	if !s.NextFireAt.IsZero() {
		row.NextFireAt = sql.NullTime{Time: s.NextFireAt, Valid: true}
	}
	if !s.LastFireAt.IsZero() {
		row.LastFireAt = sql.NullTime{Time: s.LastFireAt, Valid: true}
	}
	if !s.SavedAt.IsZero() {
		row.SavedAt = sql.NullTime{Time: s.SavedAt, Valid: true}
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO timers (job_id, next_fire_at, last_fire_at, saved_at)
		 VALUES (:job_id, :next_fire_at, :last_fire_at, :saved_at)
		 ON CONFLICT (job_id) DO UPDATE SET
		   next_fire_at = EXCLUDED.next_fire_at,
		   last_fire_at = EXCLUDED.last_fire_at,
		   saved_at = EXCLUDED.saved_at`, row)
	if err != nil {
		return fmt.Errorf("saving timer state: %w", err)
	}
	return nil
}
