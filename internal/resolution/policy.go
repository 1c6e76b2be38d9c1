package resolution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fortuna/janus/internal/alias"
	"github.com/fortuna/janus/internal/franchise"
	"github.com/fortuna/janus/internal/override"
	"github.com/fortuna/janus/internal/store"
)

// PlayerDirectory answers identity-record questions the policy needs:
// whether an override target exists, and the registered uniform numbers of
// a candidate set.
type PlayerDirectory interface {
	Exists(ctx context.Context, playerID int) (bool, error)
	UniformNumbers(ctx context.Context, playerIDs []int) (map[int]string, error)
}

// FamilyExpander expands a raw team code into its historical-family
// variants for a season.
type FamilyExpander interface {
	Family(code string, season int) ([]string, error)
}

// CandidateIndex is the season-scoped lookup the policy draws candidates
// from. Satisfied by *participation.Index.
type CandidateIndex interface {
	Candidates(name string, family []string) []int
	Lookup(name string, family []string, role store.Role) []int
}

// Policy orchestrates override lookup, alias substitution, candidate
// generation, role filtering and uniform filtering, in that strict order.
// It accepts a result only when exactly one candidate survives; ambiguity
// is always surfaced, never guessed away.
type Policy struct {
	players   PlayerDirectory
	aliases   *alias.Table
	overrides *override.Registry
	families  FamilyExpander
}

// NewPolicy constructs a Policy.
func NewPolicy(players PlayerDirectory, aliases *alias.Table, overrides *override.Registry, families FamilyExpander) *Policy {
	return &Policy{
		players:   players,
		aliases:   aliases,
		overrides: overrides,
		families:  families,
	}
}

// Decide classifies one fact group. observedUniforms are the raw uniform
// numbers seen on the group's unresolved rows. The only returned errors are
// database failures; every domain condition terminates in an Outcome.
func (p *Policy) Decide(ctx context.Context, idx CandidateIndex, g store.FactGroup, observedUniforms []string) (Outcome, error) {
	out := Outcome{
		Group:        g,
		State:        StatePending,
		ResolvedName: g.PlayerName,
		Uniforms:     NormalizeUniforms(observedUniforms),
	}

	// 1. Override, keyed on the raw observed name. A curated entry always
	// wins, but one pointing at a nonexistent player is invalid and is
	// reported rather than applied.
	if entry, ok := p.overrides.Lookup(g.Table, g.Season, g.TeamCode, g.PlayerName); ok {
		out.State = StateOverrideMatched
		out.OverrideReason = entry.Reason
		out.OverrideEvidence = entry.EvidenceSource

		exists, err := p.players.Exists(ctx, entry.ResolvedPlayerID)
		if err != nil {
			return out, fmt.Errorf("validating override target %d: %w", entry.ResolvedPlayerID, err)
		}
		if !exists {
			return terminal(out, StateUnresolved, "", ReasonInvalidOverride, nil), nil
		}

		out.Candidates = []int{entry.ResolvedPlayerID}
		out.ResolvedPlayerID = entry.ResolvedPlayerID
		return terminal(out, StateResolved, MethodOverride, ReasonOverrideApplied, out.Candidates), nil
	}

	// 2. Alias substitution, exactly once.
	out.ResolvedName = p.aliases.Normalize(g.PlayerName)
	out.AliasApplied = out.ResolvedName != g.PlayerName

	// 3. Team-family expansion. An unrecognized code is surfaced as its own
	// stop reason instead of silently decaying into "no candidates"; a known
	// code outside every nearby window falls back to itself alone, since the
	// index lookup is season-scoped anyway.
	family, err := p.families.Family(g.TeamCode, g.Season)
	if err != nil {
		if errors.Is(err, franchise.ErrUnknownCode) {
			return terminal(out, StateUnresolved, "", ReasonUnknownTeamCode, nil), nil
		}
		if errors.Is(err, franchise.ErrNotFound) {
			family = []string{franchise.NormalizeCode(g.TeamCode)}
		} else {
			return out, fmt.Errorf("expanding team family for %q: %w", g.TeamCode, err)
		}
	}

	// 4. Candidate generation across both roles.
	candidates := idx.Candidates(out.ResolvedName, family)
	if len(candidates) == 0 {
		return terminal(out, StateUnresolved, "", ReasonNoCandidates, nil), nil
	}
	out.State = StateCandidatesFound

	// 5. Role filter: only players with a participation record in the role
	// the fact table implies remain.
	roleFiltered := idx.Lookup(out.ResolvedName, family, g.Table.Role())
	if len(roleFiltered) == 0 {
		return terminal(out, StateUnresolved, "", ReasonRoleFilteredToZero, nil), nil
	}
	out.State = StateRoleFiltered

	if len(roleFiltered) == 1 {
		out.ResolvedPlayerID = roleFiltered[0]
		return terminal(out, StateResolved, MethodRoleFilter, ReasonSingleCandidate, roleFiltered), nil
	}

	// 6. Uniform filter, only for still-ambiguous groups with observed
	// numbers. An intersection that empties the set is discarded: the
	// pre-filter set is preserved in the unresolved report rather than
	// forcing an answer from nothing.
	if len(out.Uniforms) > 0 {
		matched, err := p.filterByUniform(ctx, roleFiltered, out.Uniforms)
		if err != nil {
			return out, err
		}
		out.State = StateUniformFiltered

		switch len(matched) {
		case 1:
			out.ResolvedPlayerID = matched[0]
			return terminal(out, StateResolved, MethodUniformFilter, ReasonUniformDisambiguated, matched), nil
		case 0:
			return terminal(out, StateUnresolved, "", ReasonAmbiguousAfterUniform, roleFiltered), nil
		default:
			return terminal(out, StateUnresolved, "", ReasonAmbiguousCandidates, matched), nil
		}
	}

	return terminal(out, StateUnresolved, "", ReasonAmbiguousCandidates, roleFiltered), nil
}

// filterByUniform keeps candidates whose registered uniform number matches
// one observed on the group's rows. Candidates without a registered number
// cannot match.
func (p *Policy) filterByUniform(ctx context.Context, candidates []int, observed []string) ([]int, error) {
	registered, err := p.players.UniformNumbers(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("fetching candidate uniform numbers: %w", err)
	}

	observedSet := make(map[string]bool, len(observed))
	for _, no := range observed {
		observedSet[no] = true
	}

	var matched []int
	for _, id := range candidates {
		if no, ok := registered[id]; ok && observedSet[NormalizeUniform(no)] {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

func terminal(out Outcome, state GroupState, method Method, reason Reason, candidates []int) Outcome {
	out.State = state
	out.Method = method
	out.Reason = reason
	out.Candidates = candidates
	return out
}

// NormalizeUniform canonicalizes a raw uniform token: pure digits lose
// leading zeros ("07" and "7" are the same shirt), anything else is
// upper-cased.
func NormalizeUniform(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return strings.ToUpper(raw)
}

// NormalizeUniforms normalizes and dedupes a raw uniform list, dropping
// empties. Order of first appearance is preserved.
func NormalizeUniforms(raw []string) []string {
	var out []string
	seen := make(map[string]bool, len(raw))
	for _, no := range raw {
		normalized := NormalizeUniform(no)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}
