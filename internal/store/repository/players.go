package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fortuna/janus/internal/store"
)

// PlayerRepository handles identity-record access
type PlayerRepository struct {
	db *store.Database
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db *store.Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// GetByID finds a player by ID
func (r *PlayerRepository) GetByID(ctx context.Context, playerID int) (*store.Player, error) {
	query := `
		SELECT player_id, name, uniform_no, team, career, created_at, updated_at
		FROM players
		WHERE player_id = $1
	`

	player := &store.Player{}
	err := r.db.DB().QueryRowContext(ctx, query, playerID).Scan(
		&player.PlayerID, &player.Name, &player.UniformNo, &player.Team,
		&player.Career, &player.CreatedAt, &player.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player not found: %d", playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying player: %w", err)
	}

	return player, nil
}

// Exists reports whether a player identifier is present. Overrides pointing
// at a nonexistent player are invalid and must be reported, never applied.
func (r *PlayerRepository) Exists(ctx context.Context, playerID int) (bool, error) {
	var found bool
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM players WHERE player_id = $1)`, playerID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("checking player %d: %w", playerID, err)
	}
	return found, nil
}

// UniformNumbers returns the registered uniform number for each of the given
// players. Players without a registered number are omitted.
func (r *PlayerRepository) UniformNumbers(ctx context.Context, playerIDs []int) (map[int]string, error) {
	if len(playerIDs) == 0 {
		return map[int]string{}, nil
	}

	query := `
		SELECT player_id, COALESCE(uniform_no, '')
		FROM players
		WHERE player_id = ANY($1)
	`

	rows, err := r.db.DB().QueryContext(ctx, query, pq.Array(playerIDs))
	if err != nil {
		return nil, fmt.Errorf("querying uniform numbers: %w", err)
	}
	defer rows.Close()

	uniforms := make(map[int]string)
	for rows.Next() {
		var id int
		var no string
		if err := rows.Scan(&id, &no); err != nil {
			return nil, fmt.Errorf("scanning uniform number: %w", err)
		}
		if no != "" {
			uniforms[id] = no
		}
	}

	return uniforms, rows.Err()
}
