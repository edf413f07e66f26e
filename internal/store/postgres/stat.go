package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// StatRepo implements store.StatRepository with sqlx.
type StatRepo struct {
	db *sqlx.DB
}

// NewStatRepo returns a new StatRepo.
func NewStatRepo(db *sqlx.DB) *StatRepo {
	return &StatRepo{db: db}
}

func (r *StatRepo) Get(ctx context.Context, playerID string) (*store.PlayerStat, error) {
	var s store.PlayerStat
	err := r.db.GetContext(ctx, &s,
		`SELECT * FROM player_stats WHERE player_id = $1`, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.PlayerStat{PlayerID: playerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting player stats: %w", err)
	}
	return &s, nil
}

func (r *StatRepo) Upsert(ctx context.Context, s *store.PlayerStat) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO player_stats (player_id, player_name, items_sold, items_bought, total_earned, total_spent, last_active_at, first_seen_at)
		 VALUES (:player_id, :player_name, :items_sold, :items_bought, :total_earned, :total_spent, :last_active_at, :first_seen_at)
		 ON CONFLICT (player_id) DO UPDATE SET
		   player_name = EXCLUDED.player_name,
		   items_sold = EXCLUDED.items_sold,
		   items_bought = EXCLUDED.items_bought,
		   total_earned = EXCLUDED.total_earned,
		   total_spent = EXCLUDED.total_spent,
		   last_active_at = EXCLUDED.last_active_at`, s)
	if err != nil {
		return fmt.Errorf("upserting player stats: %w", err)
	}
	return nil
}
