package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/janus/internal/store"
)

// FactRepository accesses the scraper-owned box-score fact tables. The
// season of a fact row is encoded as the leading four digits of its game_id
// composite key, so every query filters on that prefix.
//
// Table names are interpolated from the closed store.FactTable set, never
// from caller input.
type FactRepository struct {
	db *store.Database
}

// NewFactRepository constructs a FactRepository.
func NewFactRepository(db *store.Database) *FactRepository {
	return &FactRepository{db: db}
}

// ListSeasons returns the distinct seasons that still have rows missing a
// player identifier in the given table, oldest first.
func (r *FactRepository) ListSeasons(ctx context.Context, table store.FactTable) ([]int, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("unknown fact table %q", table)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT CAST(substr(game_id, 1, 4) AS INTEGER) AS season
		FROM %s
		WHERE player_id IS NULL
		  AND player_name IS NOT NULL
		ORDER BY season
	`, table)

	rows, err := r.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing seasons for %s: %w", table, err)
	}
	defer rows.Close()

	var seasons []int
	for rows.Next() {
		var season int
		if err := rows.Scan(&season); err != nil {
			return nil, fmt.Errorf("scanning season: %w", err)
		}
		seasons = append(seasons, season)
	}

	return seasons, rows.Err()
}

// ListUnresolvedGroups returns the distinct (team, name) buckets of rows
// missing a player identifier for one table and season. Already-resolved
// rows never appear here, which is what makes re-running idempotent.
func (r *FactRepository) ListUnresolvedGroups(ctx context.Context, table store.FactTable, season int) ([]store.FactGroup, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("unknown fact table %q", table)
	}

	query := fmt.Sprintf(`
		SELECT
			COALESCE(team_code, '') AS team_code,
			player_name,
			COUNT(*) AS unresolved_rows
		FROM %s
		WHERE player_id IS NULL
		  AND player_name IS NOT NULL
		  AND substr(game_id, 1, 4) = $1
		GROUP BY COALESCE(team_code, ''), player_name
		ORDER BY team_code, player_name
	`, table)

	rows, err := r.db.DB().QueryContext(ctx, query, fmt.Sprintf("%04d", season))
	if err != nil {
		return nil, fmt.Errorf("listing unresolved groups for %s/%d: %w", table, season, err)
	}
	defer rows.Close()

	var groups []store.FactGroup
	for rows.Next() {
		g := store.FactGroup{Table: table, Season: season}
		if err := rows.Scan(&g.TeamCode, &g.PlayerName, &g.RowCount); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

// GroupUniformNumbers returns the distinct uniform numbers observed on the
// unresolved rows of one group. Raw values; normalization happens in the
// resolution policy.
func (r *FactRepository) GroupUniformNumbers(ctx context.Context, g store.FactGroup) ([]string, error) {
	if !g.Table.Valid() {
		return nil, fmt.Errorf("unknown fact table %q", g.Table)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT COALESCE(uniform_no, '') AS uniform_no
		FROM %s
		WHERE player_id IS NULL
		  AND substr(game_id, 1, 4) = $1
		  AND COALESCE(team_code, '') = $2
		  AND player_name = $3
	`, g.Table)

	rows, err := r.db.DB().QueryContext(ctx, query,
		fmt.Sprintf("%04d", g.Season), g.TeamCode, g.PlayerName)
	if err != nil {
		return nil, fmt.Errorf("querying group uniforms: %w", err)
	}
	defer rows.Close()

	var uniforms []string
	for rows.Next() {
		var no string
		if err := rows.Scan(&no); err != nil {
			return nil, fmt.Errorf("scanning uniform: %w", err)
		}
		if no != "" {
			uniforms = append(uniforms, no)
		}
	}

	return uniforms, rows.Err()
}

// ApplyPlayerID writes the resolved identifier to every unresolved row of
// the group inside the caller's transaction and returns the row count.
func (r *FactRepository) ApplyPlayerID(ctx context.Context, tx *sql.Tx, g store.FactGroup, playerID int) (int64, error) {
	if !g.Table.Valid() {
		return 0, fmt.Errorf("unknown fact table %q", g.Table)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET player_id = $1
		WHERE player_id IS NULL
		  AND substr(game_id, 1, 4) = $2
		  AND COALESCE(team_code, '') = $3
		  AND player_name = $4
	`, g.Table)

	res, err := tx.ExecContext(ctx, query,
		playerID, fmt.Sprintf("%04d", g.Season), g.TeamCode, g.PlayerName)
	if err != nil {
		return 0, fmt.Errorf("updating %s group: %w", g.Table, err)
	}

	updated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return updated, nil
}
