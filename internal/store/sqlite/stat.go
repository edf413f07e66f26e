package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jensholdgaard/bazaar/internal/store"
)

// StatRepo implements store.StatRepository using database/sql.
type StatRepo struct {
	db *sql.DB
}

// NewStatRepo returns a new StatRepo.
func NewStatRepo(db *sql.DB) *StatRepo {
	return &StatRepo{db: db}
}

func (r *StatRepo) Get(ctx context.Context, playerID string) (*store.PlayerStat, error) {
	var s store.PlayerStat
	err := r.db.QueryRowContext(ctx,
		`SELECT player_id, player_name, items_sold, items_bought, total_earned, total_spent, last_active_at, first_seen_at
		 FROM player_stats WHERE player_id = ?`, playerID,
	).Scan(&s.PlayerID, &s.PlayerName, &s.ItemsSold, &s.ItemsBought,
		&s.TotalEarned, &s.TotalSpent, &s.LastActiveAt, &s.FirstSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.PlayerStat{PlayerID: playerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting player stats: %w", err)
	}
	return &s, nil
}

func (r *StatRepo) Upsert(ctx context.Context, s *store.PlayerStat) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO player_stats (player_id, player_name, items_sold, items_bought, total_earned, total_spent, last_active_at, first_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (player_id) DO UPDATE SET
		   player_name = excluded.player_name,
		   items_sold = excluded.items_sold,
		   items_bought = excluded.items_bought,
		   total_earned = excluded.total_earned,
		   total_spent = excluded.total_spent,
		   last_active_at = excluded.last_active_at`,
		s.PlayerID, s.PlayerName, s.ItemsSold, s.ItemsBought,
		s.TotalEarned.String(), s.TotalSpent.String(), s.LastActiveAt, s.FirstSeenAt)
	if err != nil {
		return fmt.Errorf("upserting player stats: %w", err)
	}
	return nil
}
