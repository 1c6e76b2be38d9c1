package resolution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/alias"
	"github.com/fortuna/janus/internal/franchise"
	"github.com/fortuna/janus/internal/override"
	"github.com/fortuna/janus/internal/participation"
	"github.com/fortuna/janus/internal/store"
)

type fakeDirectory struct {
	existing map[int]bool
	uniforms map[int]string
}

func (d *fakeDirectory) Exists(ctx context.Context, playerID int) (bool, error) {
	return d.existing[playerID], nil
}

func (d *fakeDirectory) UniformNumbers(ctx context.Context, playerIDs []int) (map[int]string, error) {
	out := make(map[int]string)
	for _, id := range playerIDs {
		if no, ok := d.uniforms[id]; ok {
			out[id] = no
		}
	}
	return out, nil
}

type fakeFamilies struct {
	families map[string][]string
}

func (f *fakeFamilies) Family(code string, season int) ([]string, error) {
	code = franchise.NormalizeCode(code)
	family, ok := f.families[code]
	if !ok {
		return nil, franchise.ErrUnknownCode
	}
	return family, nil
}

type policyFixture struct {
	policy *Policy
	dir    *fakeDirectory
	idx    *participation.Index
}

func newFixture(t *testing.T, records []store.ParticipationRecord, overrides []store.Override, aliases map[string]string) *policyFixture {
	t.Helper()

	reg, err := override.NewRegistry(overrides)
	require.NoError(t, err)

	dir := &fakeDirectory{existing: map[int]bool{}, uniforms: map[int]string{}}
	families := &fakeFamilies{families: map[string][]string{
		"LG": {"LG"},
		"OB": {"OB", "DB"},
		"SK": {"SK", "SSG"},
	}}

	return &policyFixture{
		policy: NewPolicy(dir, alias.NewTable(aliases), reg, families),
		dir:    dir,
		idx:    participation.NewIndex(2016, records),
	}
}

func group(table store.FactTable, code, name string) store.FactGroup {
	return store.FactGroup{Table: table, Season: 2016, TeamCode: code, PlayerName: name, RowCount: 7}
}

func TestDecideSingleRoleCandidate(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 1001, Name: "김현수", Season: 2016, TeamCode: "LG", Role: store.RoleBatting},
	}, nil, nil)

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "LG", "김현수"), nil)
	require.NoError(t, err)

	assert.True(t, out.Resolved())
	assert.Equal(t, 1001, out.ResolvedPlayerID)
	assert.Equal(t, MethodRoleFilter, out.Method)
	assert.Equal(t, ReasonSingleCandidate, out.Reason)
	assert.Equal(t, []int{1001}, out.Candidates)
}

func TestDecideSingleCandidateIgnoresUniformMismatch(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 1001, Name: "김현수", Season: 2016, TeamCode: "LG", Role: store.RoleBatting},
	}, nil, nil)
	fx.dir.uniforms[1001] = "50"

	// A lone surviving candidate is accepted no matter what the observed
	// uniform numbers say.
	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "LG", "김현수"), []string{"07"})
	require.NoError(t, err)

	assert.True(t, out.Resolved())
	assert.Equal(t, 1001, out.ResolvedPlayerID)
	assert.Equal(t, MethodRoleFilter, out.Method)
}

func TestDecideOverrideWins(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 1001, Name: "한유섬", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
	}, []store.Override{
		{
			SourceTable:      store.FactBatting,
			Year:             2016,
			TeamCode:         "SK",
			PlayerName:       "한동민",
			ResolvedPlayerID: 62895,
			Reason:           "renamed mid-career",
			EvidenceSource:   "snapshots/20160512_skwo.html",
		},
	}, map[string]string{"한동민": "한유섬"})
	fx.dir.existing[62895] = true

	// The override keys on the raw observed name and preempts alias
	// normalization entirely.
	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "SK", "한동민"), nil)
	require.NoError(t, err)

	assert.True(t, out.Resolved())
	assert.Equal(t, 62895, out.ResolvedPlayerID)
	assert.Equal(t, MethodOverride, out.Method)
	assert.Equal(t, ReasonOverrideApplied, out.Reason)
	assert.Equal(t, "renamed mid-career", out.OverrideReason)
	assert.Equal(t, "snapshots/20160512_skwo.html", out.OverrideEvidence)
	assert.False(t, out.AliasApplied)
}

func TestDecideInvalidOverrideDoesNotFallThrough(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 1001, Name: "김현수", Season: 2016, TeamCode: "LG", Role: store.RoleBatting},
	}, []store.Override{
		{
			SourceTable:      store.FactBatting,
			Year:             2016,
			TeamCode:         "LG",
			PlayerName:       "김현수",
			ResolvedPlayerID: 99999,
		},
	}, nil)
	// 99999 does not exist in the identity table.

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "LG", "김현수"), nil)
	require.NoError(t, err)

	assert.Equal(t, StateUnresolved, out.State)
	assert.Equal(t, ReasonInvalidOverride, out.Reason)
	assert.Zero(t, out.ResolvedPlayerID, "a broken override is surfaced, not silently bypassed")
}

func TestDecideAliasApplied(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 62895, Name: "한유섬", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
	}, nil, map[string]string{"한동민": "한유섬"})

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "SK", "한동민"), nil)
	require.NoError(t, err)

	assert.True(t, out.Resolved())
	assert.Equal(t, 62895, out.ResolvedPlayerID)
	assert.Equal(t, "한유섬", out.ResolvedName)
	assert.True(t, out.AliasApplied)
}

func TestDecideFamilyExpansion(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 3001, Name: "장원준", Season: 2016, TeamCode: "DB", Role: store.RolePitching},
	}, nil, nil)

	// The fact row says OB but the aggregate row says DB; the family
	// bridges the rebrand.
	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactPitching, "OB", "장원준"), nil)
	require.NoError(t, err)

	assert.True(t, out.Resolved())
	assert.Equal(t, 3001, out.ResolvedPlayerID)
}

func TestDecideUnknownTeamCode(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "ZZ", "김현수"), nil)
	require.NoError(t, err)

	assert.Equal(t, StateUnresolved, out.State)
	assert.Equal(t, ReasonUnknownTeamCode, out.Reason)
}

func TestDecideNoCandidates(t *testing.T) {
	fx := newFixture(t, nil, nil, nil)

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "LG", "박병호"), nil)
	require.NoError(t, err)

	assert.Equal(t, StateUnresolved, out.State)
	assert.Equal(t, ReasonNoCandidates, out.Reason)
}

func TestDecideRoleFilteredToZero(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 2001, Name: "양현종", Season: 2016, TeamCode: "LG", Role: store.RolePitching},
	}, nil, nil)

	// Candidates exist under the name, but none in the batting role the
	// table implies. Distinct stop reason from "no candidates".
	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "LG", "양현종"), nil)
	require.NoError(t, err)

	assert.Equal(t, StateUnresolved, out.State)
	assert.Equal(t, ReasonRoleFilteredToZero, out.Reason)
}

func TestDecideLineupsResolveAgainstBatting(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 1001, Name: "김현수", Season: 2016, TeamCode: "LG", Role: store.RoleBatting},
	}, nil, nil)

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactLineups, "LG", "김현수"), nil)
	require.NoError(t, err)

	assert.True(t, out.Resolved())
	assert.Equal(t, 1001, out.ResolvedPlayerID)
}

func TestDecideUniformDisambiguates(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 4001, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
		{PlayerID: 4002, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
	}, nil, nil)
	fx.dir.uniforms[4001] = "07"
	fx.dir.uniforms[4002] = "32"

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "SK", "이재원"), []string{"7"})
	require.NoError(t, err)

	assert.True(t, out.Resolved())
	assert.Equal(t, 4001, out.ResolvedPlayerID, `"07" and "7" are the same shirt`)
	assert.Equal(t, MethodUniformFilter, out.Method)
	assert.Equal(t, ReasonUniformDisambiguated, out.Reason)
}

func TestDecideUniformFilterEmptiesSet(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 4001, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
		{PlayerID: 4002, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
	}, nil, nil)
	fx.dir.uniforms[4001] = "10"
	fx.dir.uniforms[4002] = "32"

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "SK", "이재원"), []string{"99"})
	require.NoError(t, err)

	assert.Equal(t, StateUnresolved, out.State)
	assert.Equal(t, ReasonAmbiguousAfterUniform, out.Reason)
	assert.Equal(t, []int{4001, 4002}, out.Candidates, "the pre-filter set is preserved for the report")
}

func TestDecideUniformFilterStillAmbiguous(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 4001, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
		{PlayerID: 4002, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
		{PlayerID: 4003, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
	}, nil, nil)
	fx.dir.uniforms[4001] = "7"
	fx.dir.uniforms[4002] = "7"
	fx.dir.uniforms[4003] = "32"

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "SK", "이재원"), []string{"7"})
	require.NoError(t, err)

	assert.Equal(t, StateUnresolved, out.State)
	assert.Equal(t, ReasonAmbiguousCandidates, out.Reason)
	assert.Equal(t, []int{4001, 4002}, out.Candidates)
}

func TestDecideAmbiguousWithoutUniforms(t *testing.T) {
	fx := newFixture(t, []store.ParticipationRecord{
		{PlayerID: 4001, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
		{PlayerID: 4002, Name: "이재원", Season: 2016, TeamCode: "SK", Role: store.RoleBatting},
	}, nil, nil)

	out, err := fx.policy.Decide(context.Background(), fx.idx, group(store.FactBatting, "SK", "이재원"), nil)
	require.NoError(t, err)

	assert.Equal(t, StateUnresolved, out.State)
	assert.Equal(t, ReasonAmbiguousCandidates, out.Reason)
	assert.Equal(t, []int{4001, 4002}, out.Candidates)
}

func TestNormalizeUniform(t *testing.T) {
	assert.Equal(t, "7", NormalizeUniform("07"))
	assert.Equal(t, "7", NormalizeUniform(" 7 "))
	assert.Equal(t, "0", NormalizeUniform("00"))
	assert.Equal(t, "", NormalizeUniform("  "))
	assert.Equal(t, "N/A", NormalizeUniform("n/a"))
}

func TestNormalizeUniforms(t *testing.T) {
	got := NormalizeUniforms([]string{"07", "7", "", "32", "07"})
	assert.Equal(t, []string{"7", "32"}, got)
}
