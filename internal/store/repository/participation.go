package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/janus/internal/store"
)

// ParticipationRepository reads the season-aggregate batting and pitching
// tables that back the Season Participation Index. One row per
// player/season/role; immutable once a season has been built upstream.
type ParticipationRepository struct {
	db *store.Database
}

// NewParticipationRepository constructs a ParticipationRepository.
func NewParticipationRepository(db *store.Database) *ParticipationRepository {
	return &ParticipationRepository{db: db}
}

// ListBySeason returns every participation record for one season, batting
// and pitching, joined to the identity table for the stored name.
func (r *ParticipationRepository) ListBySeason(ctx context.Context, season int) ([]store.ParticipationRecord, error) {
	query := `
		SELECT p.player_id, p.name, s.season, s.team_code, 'batting' AS role
		FROM player_season_batting s
		JOIN players p ON p.player_id = s.player_id
		WHERE s.season = $1
		UNION ALL
		SELECT p.player_id, p.name, s.season, s.team_code, 'pitching' AS role
		FROM player_season_pitching s
		JOIN players p ON p.player_id = s.player_id
		WHERE s.season = $1
	`

	rows, err := r.db.DB().QueryContext(ctx, query, season)
	if err != nil {
		return nil, fmt.Errorf("querying season %d participation: %w", season, err)
	}
	defer rows.Close()

	var records []store.ParticipationRecord
	for rows.Next() {
		var rec store.ParticipationRecord
		if err := rows.Scan(&rec.PlayerID, &rec.Name, &rec.Season, &rec.TeamCode, &rec.Role); err != nil {
			return nil, fmt.Errorf("scanning participation record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
