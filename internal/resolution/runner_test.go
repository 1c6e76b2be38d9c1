package resolution

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/alias"
	"github.com/fortuna/janus/internal/franchise"
	"github.com/fortuna/janus/internal/override"
	"github.com/fortuna/janus/internal/participation"
	"github.com/fortuna/janus/internal/store"
)

type fakeFacts struct {
	seasons  map[store.FactTable][]int
	groups   map[store.FactTable]map[int][]store.FactGroup
	uniforms map[string][]string
}

func (f *fakeFacts) ListSeasons(ctx context.Context, table store.FactTable) ([]int, error) {
	return f.seasons[table], nil
}

func (f *fakeFacts) ListUnresolvedGroups(ctx context.Context, table store.FactTable, season int) ([]store.FactGroup, error) {
	return f.groups[table][season], nil
}

func (f *fakeFacts) GroupUniformNumbers(ctx context.Context, g store.FactGroup) ([]string, error) {
	return f.uniforms[g.PlayerName], nil
}

func (f *fakeFacts) ApplyPlayerID(ctx context.Context, tx *sql.Tx, g store.FactGroup, playerID int) (int64, error) {
	return int64(g.RowCount), nil
}

type noTx struct{ t *testing.T }

func (n noTx) Begin(ctx context.Context) (*sql.Tx, error) {
	n.t.Fatal("dry runs must never open a transaction")
	return nil, errors.New("unreachable")
}

type staticResolver struct {
	ids map[string]int
}

func (r staticResolver) Resolve(code string, season int) (int, error) {
	id, ok := r.ids[code]
	if !ok {
		return 0, franchise.ErrNotFound
	}
	return id, nil
}

type recordingReporter struct {
	starts     int
	seasons    []int
	classified []Outcome
	committed  int
	completes  int
	errs       []error
}

func (r *recordingReporter) OnRunStart(RunSpec)                { r.starts++ }
func (r *recordingReporter) OnSeasonStart(s int, _ int, _ int) { r.seasons = append(r.seasons, s) }
func (r *recordingReporter) OnGroupClassified(o Outcome)       { r.classified = append(r.classified, o) }
func (r *recordingReporter) OnSeasonCommitted(int, int, int)   { r.committed++ }
func (r *recordingReporter) OnRunComplete(Summary)             { r.completes++ }
func (r *recordingReporter) OnRunError(err error)              { r.errs = append(r.errs, err) }

func dryRunRunner(t *testing.T, facts *fakeFacts, records []store.ParticipationRecord) *Runner {
	t.Helper()

	reg, err := override.NewRegistry(nil)
	require.NoError(t, err)

	dir := &fakeDirectory{existing: map[int]bool{}, uniforms: map[int]string{}}
	families := &fakeFamilies{families: map[string][]string{"LG": {"LG"}, "SK": {"SK"}}}
	policy := NewPolicy(dir, alias.NewTable(nil), reg, families)

	src := participationSource(records)
	resolver := staticResolver{ids: map[string]int{"LG": 5, "SK": 9}}

	return NewRunner(noTx{t: t}, facts, src, policy, resolver, nil, nil)
}

type participationSource []store.ParticipationRecord

func (s participationSource) ListBySeason(ctx context.Context, season int) ([]store.ParticipationRecord, error) {
	return s, nil
}

func TestRunDryRun(t *testing.T) {
	facts := &fakeFacts{
		seasons: map[store.FactTable][]int{
			store.FactBatting: {2016},
		},
		groups: map[store.FactTable]map[int][]store.FactGroup{
			store.FactBatting: {2016: {
				{Table: store.FactBatting, Season: 2016, TeamCode: "LG", PlayerName: "김현수", RowCount: 12},
				{Table: store.FactBatting, Season: 2016, TeamCode: "LG", PlayerName: "박병호", RowCount: 3},
			}},
		},
		uniforms: map[string][]string{},
	}

	runner := dryRunRunner(t, facts, []store.ParticipationRecord{
		{PlayerID: 1001, Name: "김현수", Season: 2016, TeamCode: "LG", Role: store.RoleBatting},
	})

	reporter := &recordingReporter{}
	result, err := runner.Run(context.Background(), RunSpec{DryRun: true}, reporter)
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, 1001, result.Applied[0].ResolvedPlayerID)
	assert.Equal(t, int64(12), result.Applied[0].RowsUpdated, "dry runs report would-be row counts")
	assert.Equal(t, int32(5), result.Applied[0].FranchiseID.Int32)
	assert.True(t, result.Applied[0].FranchiseID.Valid)

	require.Len(t, result.Unresolved, 1)
	assert.Equal(t, "박병호", result.Unresolved[0].Group.PlayerName)
	assert.Equal(t, ReasonNoCandidates, result.Unresolved[0].Reason)

	assert.Equal(t, 1, result.Summary.AppliedGroups)
	assert.Equal(t, 1, result.Summary.UnresolvedGroups)
	assert.Equal(t, int64(12), result.Summary.UpdatedRows)
	assert.Equal(t, 1, result.Summary.SeasonsProcessed)

	assert.Equal(t, 1, reporter.starts)
	assert.Equal(t, []int{2016}, reporter.seasons)
	assert.Len(t, reporter.classified, 2)
	assert.Equal(t, 1, reporter.committed)
	assert.Equal(t, 1, reporter.completes)
	assert.Empty(t, reporter.errs)
}

func TestRunDiscoversSeasonsAcrossTables(t *testing.T) {
	facts := &fakeFacts{
		seasons: map[store.FactTable][]int{
			store.FactBatting:  {2016, 2018},
			store.FactPitching: {2017, 2018},
			store.FactLineups:  {2016},
		},
		groups:   map[store.FactTable]map[int][]store.FactGroup{},
		uniforms: map[string][]string{},
	}

	runner := dryRunRunner(t, facts, nil)

	reporter := &recordingReporter{}
	result, err := runner.Run(context.Background(), RunSpec{DryRun: true}, reporter)
	require.NoError(t, err)

	assert.Equal(t, []int{2016, 2017, 2018}, reporter.seasons, "union of all tables, sorted")
	assert.Equal(t, 3, result.Summary.SeasonsProcessed)
}

func TestRunRejectsUnknownTable(t *testing.T) {
	runner := dryRunRunner(t, &fakeFacts{}, nil)

	reporter := &recordingReporter{}
	_, err := runner.Run(context.Background(), RunSpec{Tables: []store.FactTable{"season_totals"}, DryRun: true}, reporter)
	require.Error(t, err)
	assert.Len(t, reporter.errs, 1)
}

func TestRunFranchiseAttributionNeverBlocks(t *testing.T) {
	facts := &fakeFacts{
		seasons: map[store.FactTable][]int{store.FactBatting: {2016}},
		groups: map[store.FactTable]map[int][]store.FactGroup{
			store.FactBatting: {2016: {
				{Table: store.FactBatting, Season: 2016, TeamCode: "SK", PlayerName: "한유섬", RowCount: 4},
			}},
		},
		uniforms: map[string][]string{},
	}

	reg, err := override.NewRegistry(nil)
	require.NoError(t, err)
	dir := &fakeDirectory{existing: map[int]bool{}, uniforms: map[int]string{}}
	families := &fakeFamilies{families: map[string][]string{"SK": {"SK"}}}
	policy := NewPolicy(dir, alias.NewTable(nil), reg, families)

	src := participationSource{{PlayerID: 62895, Name: "한유섬", Season: 2016, TeamCode: "SK", Role: store.RoleBatting}}
	// Resolver knows no codes at all.
	runner := NewRunner(noTx{t: t}, facts, src, policy, staticResolver{ids: map[string]int{}}, nil, nil)

	result, err := runner.Run(context.Background(), RunSpec{DryRun: true}, nil)
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, 62895, result.Applied[0].ResolvedPlayerID)
	assert.False(t, result.Applied[0].FranchiseID.Valid, "missing attribution is recorded as absent, not fatal")
}

func TestSeasonIndexUsesCache(t *testing.T) {
	facts := &fakeFacts{
		seasons:  map[store.FactTable][]int{store.FactBatting: {2016}},
		groups:   map[store.FactTable]map[int][]store.FactGroup{},
		uniforms: map[string][]string{},
	}

	cached := participation.NewIndex(2016, []store.ParticipationRecord{
		{PlayerID: 1, Name: "x", Season: 2016, TeamCode: "LG", Role: store.RoleBatting},
	})
	cache := &fakeCache{indexes: map[int]*participation.Index{2016: cached}}

	reg, err := override.NewRegistry(nil)
	require.NoError(t, err)
	policy := NewPolicy(&fakeDirectory{}, alias.NewTable(nil), reg, &fakeFamilies{families: map[string][]string{}})

	src := failingSource{t: t}
	runner := NewRunner(noTx{t: t}, facts, src, policy, staticResolver{}, cache, nil)

	_, err = runner.Run(context.Background(), RunSpec{DryRun: true}, nil)
	require.NoError(t, err)
	assert.Zero(t, cache.stores, "a cache hit skips both the rebuild and the store")
}

type fakeCache struct {
	indexes map[int]*participation.Index
	stores  int
}

func (c *fakeCache) LoadIndex(ctx context.Context, season int) (*participation.Index, error) {
	return c.indexes[season], nil
}

func (c *fakeCache) StoreIndex(ctx context.Context, idx *participation.Index) error {
	c.stores++
	return nil
}

type failingSource struct{ t *testing.T }

func (s failingSource) ListBySeason(ctx context.Context, season int) ([]store.ParticipationRecord, error) {
	s.t.Fatal("index must come from the cache, not a rebuild")
	return nil, errors.New("unreachable")
}
