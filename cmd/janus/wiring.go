package main

import (
	"context"
	"fmt"

	"github.com/fortuna/janus/internal/alias"
	"github.com/fortuna/janus/internal/franchise"
	"github.com/fortuna/janus/internal/override"
	"github.com/fortuna/janus/internal/store/repository"
)

// loadFranchiseIndex builds the season-windowed alias index from the
// curated franchise reference tables. A malformed window set is a startup
// failure, not something to limp past.
func loadFranchiseIndex(ctx context.Context, repo *repository.FranchiseRepository) (*franchise.Index, error) {
	franchises, err := repo.ListFranchises(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading franchises: %w", err)
	}

	aliases, err := repo.ListCodeAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading team code aliases: %w", err)
	}

	return franchise.NewIndex(franchises, aliases)
}

type curatedInputs struct {
	names     *alias.Table
	overrides *override.Registry
}

// resolverInputs loads the curated CSV inputs. Missing files yield empty
// tables; a present but malformed file fails startup.
func resolverInputs(config Config) (*curatedInputs, error) {
	names, err := alias.LoadTable(config.AliasCSV)
	if err != nil {
		return nil, fmt.Errorf("loading name aliases: %w", err)
	}

	overrides, err := override.LoadRegistry(config.OverrideCSV)
	if err != nil {
		return nil, fmt.Errorf("loading overrides: %w", err)
	}

	return &curatedInputs{names: names, overrides: overrides}, nil
}
