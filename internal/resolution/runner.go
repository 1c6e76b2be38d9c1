package resolution

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/fortuna/janus/internal/participation"
	"github.com/fortuna/janus/internal/store"
)

// FactSource is the slice of the fact-table repository the runner needs.
type FactSource interface {
	ListSeasons(ctx context.Context, table store.FactTable) ([]int, error)
	ListUnresolvedGroups(ctx context.Context, table store.FactTable, season int) ([]store.FactGroup, error)
	GroupUniformNumbers(ctx context.Context, g store.FactGroup) ([]string, error)
	ApplyPlayerID(ctx context.Context, tx *sql.Tx, g store.FactGroup, playerID int) (int64, error)
}

// FranchiseResolver attributes a (code, season) pair to a franchise.
// Failure to attribute never blocks player resolution.
type FranchiseResolver interface {
	Resolve(code string, season int) (int, error)
}

// TxBeginner opens the per-season transaction. Satisfied by *store.Database.
type TxBeginner interface {
	Begin(ctx context.Context) (*sql.Tx, error)
}

// IndexCache optionally snapshots built participation indexes across runs.
// Satisfied by *cache.RedisCache; may be nil.
type IndexCache interface {
	LoadIndex(ctx context.Context, season int) (*participation.Index, error)
	StoreIndex(ctx context.Context, idx *participation.Index) error
}

// RunResult carries the full audit trail of one run.
type RunResult struct {
	Summary    Summary
	Applied    []AppliedEntry
	Unresolved []Outcome
}

// Runner executes resolution runs: one single-threaded batch pass per
// season, classification first, then one grouped commit. Re-invocation is
// idempotent because resolved rows never reappear as candidate groups.
type Runner struct {
	db            TxBeginner
	facts         FactSource
	participation participation.Source
	policy        *Policy
	franchises    FranchiseResolver
	cache         IndexCache
	logger        *log.Logger
}

// NewRunner constructs a Runner. cache may be nil to disable snapshots.
func NewRunner(db TxBeginner, facts FactSource, src participation.Source, policy *Policy, franchises FranchiseResolver, cache IndexCache, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[resolution] ", log.LstdFlags)
	}
	return &Runner{
		db:            db,
		facts:         facts,
		participation: src,
		policy:        policy,
		franchises:    franchises,
		cache:         cache,
		logger:        logger,
	}
}

// Run executes the spec, reporting progress via the Reporter if provided.
// The run always completes and always yields both reports; only a database
// failure aborts it, and an abort never leaves a partially committed season.
func (r *Runner) Run(ctx context.Context, spec RunSpec, reporter Reporter) (*RunResult, error) {
	if reporter == nil {
		reporter = noopReporter{}
	}

	tables := spec.Tables
	if len(tables) == 0 {
		tables = store.FactTables
	}
	for _, t := range tables {
		if !t.Valid() {
			err := fmt.Errorf("unknown fact table %q", t)
			reporter.OnRunError(err)
			return nil, err
		}
	}

	reporter.OnRunStart(spec)

	seasons := spec.Seasons
	if len(seasons) == 0 {
		discovered, err := r.discoverSeasons(ctx, tables)
		if err != nil {
			reporter.OnRunError(err)
			return nil, err
		}
		seasons = discovered
	}

	result := &RunResult{}
	for i, season := range seasons {
		if err := ctx.Err(); err != nil {
			reporter.OnRunError(err)
			return nil, err
		}
		reporter.OnSeasonStart(season, i, len(seasons))

		applied, unresolved, err := r.runSeason(ctx, tables, season, spec.DryRun, reporter)
		if err != nil {
			reporter.OnRunError(err)
			return nil, fmt.Errorf("season %d: %w", season, err)
		}

		result.Applied = append(result.Applied, applied...)
		result.Unresolved = append(result.Unresolved, unresolved...)
		result.Summary.SeasonsProcessed++
		reporter.OnSeasonCommitted(season, len(applied), len(unresolved))
	}

	result.Summary.AppliedGroups = len(result.Applied)
	result.Summary.UnresolvedGroups = len(result.Unresolved)
	for _, entry := range result.Applied {
		result.Summary.UpdatedRows += entry.RowsUpdated
	}

	reporter.OnRunComplete(result.Summary)
	return result, nil
}

// runSeason classifies every group of one season across all tables, then
// commits the accepted identifiers as a single unit.
func (r *Runner) runSeason(ctx context.Context, tables []store.FactTable, season int, dryRun bool, reporter Reporter) ([]AppliedEntry, []Outcome, error) {
	idx, err := r.seasonIndex(ctx, season)
	if err != nil {
		return nil, nil, err
	}

	var resolved []Outcome
	var unresolved []Outcome

	for _, table := range tables {
		groups, err := r.facts.ListUnresolvedGroups(ctx, table, season)
		if err != nil {
			return nil, nil, err
		}

		for _, g := range groups {
			uniforms, err := r.facts.GroupUniformNumbers(ctx, g)
			if err != nil {
				return nil, nil, err
			}

			outcome, err := r.policy.Decide(ctx, idx, g, uniforms)
			if err != nil {
				return nil, nil, err
			}

			r.attributeFranchise(&outcome)
			reporter.OnGroupClassified(outcome)

			if outcome.Resolved() {
				resolved = append(resolved, outcome)
			} else {
				if outcome.Reason == ReasonUnknownTeamCode {
					r.logger.Printf("UNKNOWN TEAM CODE %q (table=%s season=%d name=%q): curate an alias window",
						g.TeamCode, g.Table, g.Season, g.PlayerName)
				}
				unresolved = append(unresolved, outcome)
			}
		}
	}

	applied, err := r.commitSeason(ctx, season, resolved, dryRun)
	if err != nil {
		return nil, nil, err
	}
	return applied, unresolved, nil
}

// commitSeason writes every accepted identifier for the season in one
// transaction. Dry runs skip the transaction entirely and report the
// would-be row counts.
func (r *Runner) commitSeason(ctx context.Context, season int, resolved []Outcome, dryRun bool) ([]AppliedEntry, error) {
	applied := make([]AppliedEntry, 0, len(resolved))

	if dryRun {
		for _, outcome := range resolved {
			applied = append(applied, AppliedEntry{Outcome: outcome, RowsUpdated: int64(outcome.Group.RowCount)})
		}
		return applied, nil
	}
	if len(resolved) == 0 {
		return applied, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, outcome := range resolved {
		updated, err := r.facts.ApplyPlayerID(ctx, tx, outcome.Group, outcome.ResolvedPlayerID)
		if err != nil {
			return nil, err
		}
		applied = append(applied, AppliedEntry{Outcome: outcome, RowsUpdated: updated})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing season %d: %w", season, err)
	}

	r.logger.Printf("season %d committed: %d groups applied", season, len(applied))
	return applied, nil
}

// attributeFranchise records the franchise id for the group's (code,
// season) when the alias index can justify one. Not found is logged and
// skipped; it never blocks player resolution.
func (r *Runner) attributeFranchise(outcome *Outcome) {
	id, err := r.franchises.Resolve(outcome.Group.TeamCode, outcome.Group.Season)
	if err != nil {
		r.logger.Printf("franchise not found for code %q season %d: %v",
			outcome.Group.TeamCode, outcome.Group.Season, err)
		return
	}
	outcome.FranchiseID = sql.NullInt32{Int32: int32(id), Valid: true}
}

// seasonIndex returns the participation index for a season, restoring a
// cached snapshot when available and snapshotting fresh builds.
func (r *Runner) seasonIndex(ctx context.Context, season int) (*participation.Index, error) {
	if r.cache != nil {
		idx, err := r.cache.LoadIndex(ctx, season)
		if err != nil {
			r.logger.Printf("index cache read failed for %d: %v (rebuilding)", season, err)
		} else if idx != nil {
			return idx, nil
		}
	}

	idx, err := participation.Build(ctx, r.participation, season)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("participation index built for %d: %d records", season, idx.Len())

	if r.cache != nil {
		if err := r.cache.StoreIndex(ctx, idx); err != nil {
			r.logger.Printf("index cache write failed for %d: %v", season, err)
		}
	}
	return idx, nil
}

func (r *Runner) discoverSeasons(ctx context.Context, tables []store.FactTable) ([]int, error) {
	seen := make(map[int]bool)
	for _, table := range tables {
		seasons, err := r.facts.ListSeasons(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, s := range seasons {
			seen[s] = true
		}
	}

	out := make([]int, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Ints(out)
	return out, nil
}

type noopReporter struct{}

func (noopReporter) OnRunStart(RunSpec)              {}
func (noopReporter) OnSeasonStart(int, int, int)     {}
func (noopReporter) OnGroupClassified(Outcome)       {}
func (noopReporter) OnSeasonCommitted(int, int, int) {}
func (noopReporter) OnRunComplete(Summary)           {}
func (noopReporter) OnRunError(error)                {}

var _ Reporter = noopReporter{}
