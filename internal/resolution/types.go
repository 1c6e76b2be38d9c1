package resolution

import (
	"database/sql"
	"time"

	"github.com/fortuna/janus/internal/store"
)

// GroupState tracks a fact group through the resolution state machine.
// Terminal states are StateResolved (exactly one id) and StateUnresolved
// (zero or two-plus ids); no group leaves a terminal state within a run.
type GroupState string

const (
	StatePending         GroupState = "PENDING"
	StateOverrideMatched GroupState = "OVERRIDE_MATCHED"
	StateCandidatesFound GroupState = "CANDIDATES_FOUND"
	StateRoleFiltered    GroupState = "ROLE_FILTERED"
	StateUniformFiltered GroupState = "UNIFORM_FILTERED"
	StateResolved        GroupState = "RESOLVED"
	StateUnresolved      GroupState = "UNRESOLVED"
)

// Method names the step that produced an accepted identifier.
type Method string

const (
	MethodOverride      Method = "override"
	MethodRoleFilter    Method = "role filter"
	MethodUniformFilter Method = "uniform filter"
)

// Reason explains a terminal state in the audit reports.
type Reason string

const (
	ReasonOverrideApplied       Reason = "override applied"
	ReasonInvalidOverride       Reason = "invalid override"
	ReasonUnknownTeamCode       Reason = "unknown team code"
	ReasonNoCandidates          Reason = "no candidates"
	ReasonRoleFilteredToZero    Reason = "filtered to zero by role"
	ReasonSingleCandidate       Reason = "single role candidate"
	ReasonUniformDisambiguated  Reason = "uniform number disambiguated"
	ReasonAmbiguousAfterUniform Reason = "ambiguous after uniform filter"
	ReasonAmbiguousCandidates   Reason = "ambiguous candidates"
)

// Outcome is the terminal classification of one fact group.
type Outcome struct {
	Group store.FactGroup `json:"group"`
	State GroupState      `json:"state"`

	Method Method `json:"method,omitempty"`
	Reason Reason `json:"reason"`

	// ResolvedName is the name after alias normalization; AliasApplied
	// records whether it differs from the raw observed name.
	ResolvedName string `json:"resolved_name"`
	AliasApplied bool   `json:"alias_applied"`

	// Uniforms holds the normalized uniform numbers observed on the group's
	// rows; Candidates is the surviving candidate set at the stop point.
	Uniforms   []string `json:"uniform_nos,omitempty"`
	Candidates []int    `json:"candidate_ids,omitempty"`

	ResolvedPlayerID int           `json:"resolved_player_id,omitempty"`
	FranchiseID      sql.NullInt32 `json:"franchise_id,omitempty"`

	OverrideReason   string `json:"override_reason,omitempty"`
	OverrideEvidence string `json:"override_evidence_source,omitempty"`
}

// Resolved reports whether the group reached StateResolved.
func (o Outcome) Resolved() bool {
	return o.State == StateResolved
}

// AppliedEntry is one applied-report line: a resolved outcome plus the
// number of fact rows the identifier was written to.
type AppliedEntry struct {
	Outcome
	RowsUpdated int64 `json:"updated_rows"`
}

// RunStatus represents the lifecycle state of a resolution run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run models the database representation of a resolution run.
type Run struct {
	RunID            string         `json:"run_id"`
	Tables           []string       `json:"tables"`
	Seasons          []int64        `json:"seasons,omitempty"`
	DryRun           bool           `json:"dry_run"`
	Status           RunStatus      `json:"status"`
	StatusMessage    sql.NullString `json:"status_message,omitempty"`
	ProgressCurrent  int            `json:"progress_current"`
	ProgressTotal    int            `json:"progress_total"`
	AppliedGroups    int            `json:"applied_groups"`
	UnresolvedGroups int            `json:"unresolved_groups"`
	UpdatedRows      int64          `json:"updated_rows"`
	AppliedCSV       sql.NullString `json:"applied_csv,omitempty"`
	UnresolvedCSV    sql.NullString `json:"unresolved_csv,omitempty"`
	LastError        sql.NullString `json:"last_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	StartedAt        sql.NullTime   `json:"started_at,omitempty"`
	CompletedAt      sql.NullTime   `json:"completed_at,omitempty"`
}

// Copy returns a shallow copy to prevent external mutation.
func (r *Run) Copy() *Run {
	if r == nil {
		return nil
	}
	cpy := *r
	return &cpy
}

// RunSpec describes the work a runner performs.
type RunSpec struct {
	Tables  []store.FactTable
	Seasons []int
	DryRun  bool
}

// Summary totals one completed run.
type Summary struct {
	AppliedGroups    int   `json:"applied_groups"`
	UnresolvedGroups int   `json:"unresolved_groups"`
	UpdatedRows      int64 `json:"updated_rows"`
	SeasonsProcessed int   `json:"seasons_processed"`
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnRunStart(spec RunSpec)
	OnSeasonStart(season int, index int, total int)
	OnGroupClassified(outcome Outcome)
	OnSeasonCommitted(season int, applied int, unresolved int)
	OnRunComplete(summary Summary)
	OnRunError(err error)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveRun *Run   `json:"active_run,omitempty"`
	History   []*Run `json:"recent_runs,omitempty"`
}
