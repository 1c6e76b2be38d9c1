package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/janus/internal/store"
)

// FranchiseRepository reads franchises and their season-windowed code
// aliases. Both tables are curated upstream and consumed read-only.
type FranchiseRepository struct {
	db *store.Database
}

// NewFranchiseRepository constructs a FranchiseRepository.
func NewFranchiseRepository(db *store.Database) *FranchiseRepository {
	return &FranchiseRepository{db: db}
}

// ListFranchises returns all franchises.
func (r *FranchiseRepository) ListFranchises(ctx context.Context) ([]store.Franchise, error) {
	query := `
		SELECT franchise_id, name, current_code, founded_year, defunct_year,
			created_at, updated_at
		FROM franchises
		ORDER BY franchise_id
	`

	rows, err := r.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying franchises: %w", err)
	}
	defer rows.Close()

	var franchises []store.Franchise
	for rows.Next() {
		var f store.Franchise
		err := rows.Scan(&f.FranchiseID, &f.Name, &f.CurrentCode,
			&f.FoundedYear, &f.DefunctYear, &f.CreatedAt, &f.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning franchise: %w", err)
		}
		franchises = append(franchises, f)
	}

	return franchises, rows.Err()
}

// ListCodeAliases returns every raw-code validity window.
func (r *FranchiseRepository) ListCodeAliases(ctx context.Context) ([]store.TeamCodeAlias, error) {
	query := `
		SELECT alias_id, franchise_id, code, first_season, last_season
		FROM team_code_aliases
		ORDER BY code, first_season
	`

	rows, err := r.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying team code aliases: %w", err)
	}
	defer rows.Close()

	var aliases []store.TeamCodeAlias
	for rows.Next() {
		var a store.TeamCodeAlias
		err := rows.Scan(&a.AliasID, &a.FranchiseID, &a.Code, &a.FirstSeason, &a.LastSeason)
		if err != nil {
			return nil, fmt.Errorf("scanning team code alias: %w", err)
		}
		aliases = append(aliases, a)
	}

	return aliases, rows.Err()
}
