package resolution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fortuna/janus/internal/store"
)

// Repository persists resolution runs and their audit reports. These are
// the only tables the resolver owns.
type Repository struct {
	db *store.Database
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db}
}

// CreateRun inserts a new queued run and returns the stored record.
func (r *Repository) CreateRun(ctx context.Context, run *Run) (*Run, error) {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}

	query := `
		INSERT INTO resolution_runs (
			run_id, tables, seasons, dry_run, status, status_message,
			progress_current, progress_total
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING ` + runColumns

	row := r.db.DB().QueryRowContext(ctx, query,
		run.RunID, pq.StringArray(run.Tables), pq.Int64Array(run.Seasons),
		run.DryRun, run.Status, run.StatusMessage,
		run.ProgressCurrent, run.ProgressTotal,
	)

	return scanRun(row)
}

// UpdateStatus updates status, message and optional error.
func (r *Repository) UpdateStatus(ctx context.Context, runID string, status RunStatus, message string, lastErr error) error {
	query := `
		UPDATE resolution_runs
		SET status = $2::varchar,
			status_message = $3,
			last_error = $4,
			updated_at = NOW(),
			started_at = CASE WHEN $2::varchar = 'running' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			completed_at = CASE WHEN $2::varchar IN ('completed','failed') THEN NOW() ELSE completed_at END
		WHERE run_id = $1
	`

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	if _, err := r.db.DB().ExecContext(ctx, query, runID, string(status), message, errText); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	return nil
}

// UpdateProgress updates the progress counters and optional message.
func (r *Repository) UpdateProgress(ctx context.Context, runID string, current, total int, message string) error {
	query := `
		UPDATE resolution_runs
		SET progress_current = $2,
			progress_total = $3,
			status_message = $4,
			updated_at = NOW()
		WHERE run_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, query, runID, current, total, message); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}

	return nil
}

// ResetStuckRuns moves running runs back to queued (service restarts). Safe
// because re-running is idempotent: resolved rows never reappear as groups.
func (r *Repository) ResetStuckRuns(ctx context.Context) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE resolution_runs
		SET status = 'queued',
			status_message = 'Reset after service restart',
			updated_at = NOW()
		WHERE status = 'running'
	`)
	if err != nil {
		return fmt.Errorf("reset stuck runs: %w", err)
	}
	return nil
}

// MarkNextRunRunning atomically claims the next queued run.
func (r *Repository) MarkNextRunRunning(ctx context.Context) (*Run, error) {
	query := `
		WITH next_run AS (
			SELECT run_id
			FROM resolution_runs
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE resolution_runs
		SET status = 'running',
			status_message = 'Starting run...',
			started_at = COALESCE(started_at, NOW()),
			updated_at = NOW()
		FROM next_run
		WHERE resolution_runs.run_id = next_run.run_id
		RETURNING ` + prefixedRunColumns("resolution_runs")

	row := r.db.DB().QueryRowContext(ctx, query)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun fetches one run by id.
func (r *Repository) GetRun(ctx context.Context, runID string) (*Run, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}

	query := `SELECT ` + runColumns + ` FROM resolution_runs WHERE run_id = $1`
	row := r.db.DB().QueryRowContext(ctx, query, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// GetActiveRun returns the currently running run, if any.
func (r *Repository) GetActiveRun(ctx context.Context) (*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM resolution_runs
		WHERE status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`

	row := r.db.DB().QueryRowContext(ctx, query)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active run: %w", err)
	}
	return run, nil
}

// ListRecentRuns returns the most recent runs, newest first.
func (r *Repository) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM resolution_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RecordResult stores both audit reports for a run and updates the run's
// totals, in one transaction.
func (r *Repository) RecordResult(ctx context.Context, runID string, result *RunResult, appliedCSV, unresolvedCSV string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	appliedQuery := `
		INSERT INTO resolution_applied (
			run_id, source_table, year, team_code, player_name, unresolved_rows,
			uniform_nos, candidate_ids, resolved_name, alias_applied, franchise_id,
			resolution_method, resolution_reason, override_reason,
			override_evidence_source, resolved_player_id, updated_rows
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`
	for _, entry := range result.Applied {
		_, err := tx.ExecContext(ctx, appliedQuery,
			runID, entry.Group.Table, entry.Group.Season, entry.Group.TeamCode,
			entry.Group.PlayerName, entry.Group.RowCount,
			strings.Join(entry.Uniforms, ","), toInt64Array(entry.Candidates),
			entry.ResolvedName, entry.AliasApplied, entry.FranchiseID,
			entry.Method, entry.Reason, entry.OverrideReason, entry.OverrideEvidence,
			entry.ResolvedPlayerID, entry.RowsUpdated,
		)
		if err != nil {
			return fmt.Errorf("insert applied entry: %w", err)
		}
	}

	unresolvedQuery := `
		INSERT INTO resolution_unresolved (
			run_id, source_table, year, team_code, player_name, unresolved_rows,
			uniform_nos, candidate_ids, resolved_name, alias_applied, franchise_id,
			resolution_reason, override_reason, override_evidence_source
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`
	for _, outcome := range result.Unresolved {
		_, err := tx.ExecContext(ctx, unresolvedQuery,
			runID, outcome.Group.Table, outcome.Group.Season, outcome.Group.TeamCode,
			outcome.Group.PlayerName, outcome.Group.RowCount,
			strings.Join(outcome.Uniforms, ","), toInt64Array(outcome.Candidates),
			outcome.ResolvedName, outcome.AliasApplied, outcome.FranchiseID,
			outcome.Reason, outcome.OverrideReason, outcome.OverrideEvidence,
		)
		if err != nil {
			return fmt.Errorf("insert unresolved entry: %w", err)
		}
	}

	totalsQuery := `
		UPDATE resolution_runs
		SET applied_groups = $2,
			unresolved_groups = $3,
			updated_rows = $4,
			applied_csv = $5,
			unresolved_csv = $6,
			updated_at = NOW()
		WHERE run_id = $1
	`
	_, err = tx.ExecContext(ctx, totalsQuery, runID,
		result.Summary.AppliedGroups, result.Summary.UnresolvedGroups,
		result.Summary.UpdatedRows, appliedCSV, unresolvedCSV)
	if err != nil {
		return fmt.Errorf("update run totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run result: %w", err)
	}
	return nil
}

// ListApplied returns the applied report rows for one run.
func (r *Repository) ListApplied(ctx context.Context, runID string) ([]AppliedEntry, error) {
	query := `
		SELECT source_table, year, team_code, player_name, unresolved_rows,
			uniform_nos, candidate_ids, resolved_name, alias_applied, franchise_id,
			resolution_method, resolution_reason, override_reason,
			override_evidence_source, resolved_player_id, updated_rows
		FROM resolution_applied
		WHERE run_id = $1
		ORDER BY source_table, year, team_code, player_name
	`

	rows, err := r.db.DB().QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list applied report: %w", err)
	}
	defer rows.Close()

	var entries []AppliedEntry
	for rows.Next() {
		var entry AppliedEntry
		var uniforms string
		var candidates pq.Int64Array
		err := rows.Scan(
			&entry.Group.Table, &entry.Group.Season, &entry.Group.TeamCode,
			&entry.Group.PlayerName, &entry.Group.RowCount,
			&uniforms, &candidates, &entry.ResolvedName, &entry.AliasApplied,
			&entry.FranchiseID, &entry.Method, &entry.Reason,
			&entry.OverrideReason, &entry.OverrideEvidence,
			&entry.ResolvedPlayerID, &entry.RowsUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan applied entry: %w", err)
		}
		entry.State = StateResolved
		entry.Uniforms = splitList(uniforms)
		entry.Candidates = toIntSlice(candidates)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// ListUnresolved returns the unresolved report rows for one run.
func (r *Repository) ListUnresolved(ctx context.Context, runID string) ([]Outcome, error) {
	query := `
		SELECT source_table, year, team_code, player_name, unresolved_rows,
			uniform_nos, candidate_ids, resolved_name, alias_applied, franchise_id,
			resolution_reason, override_reason, override_evidence_source
		FROM resolution_unresolved
		WHERE run_id = $1
		ORDER BY source_table, year, team_code, player_name
	`

	rows, err := r.db.DB().QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list unresolved report: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var outcome Outcome
		var uniforms string
		var candidates pq.Int64Array
		err := rows.Scan(
			&outcome.Group.Table, &outcome.Group.Season, &outcome.Group.TeamCode,
			&outcome.Group.PlayerName, &outcome.Group.RowCount,
			&uniforms, &candidates, &outcome.ResolvedName, &outcome.AliasApplied,
			&outcome.FranchiseID, &outcome.Reason,
			&outcome.OverrideReason, &outcome.OverrideEvidence,
		)
		if err != nil {
			return nil, fmt.Errorf("scan unresolved entry: %w", err)
		}
		outcome.State = StateUnresolved
		outcome.Uniforms = splitList(uniforms)
		outcome.Candidates = toIntSlice(candidates)
		outcomes = append(outcomes, outcome)
	}

	return outcomes, rows.Err()
}

const runColumns = `run_id, tables, seasons, dry_run, status, status_message,
	progress_current, progress_total, applied_groups, unresolved_groups,
	updated_rows, applied_csv, unresolved_csv, last_error,
	created_at, updated_at, started_at, completed_at`

func prefixedRunColumns(prefix string) string {
	cols := strings.Split(runColumns, ",")
	for i, col := range cols {
		cols[i] = prefix + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (*Run, error) {
	run := &Run{}
	var tables pq.StringArray
	var seasons pq.Int64Array
	err := scanner.Scan(
		&run.RunID,
		&tables,
		&seasons,
		&run.DryRun,
		&run.Status,
		&run.StatusMessage,
		&run.ProgressCurrent,
		&run.ProgressTotal,
		&run.AppliedGroups,
		&run.UnresolvedGroups,
		&run.UpdatedRows,
		&run.AppliedCSV,
		&run.UnresolvedCSV,
		&run.LastError,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Tables = tables
	run.Seasons = seasons
	return run, nil
}

func toInt64Array(ids []int) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func toIntSlice(ids pq.Int64Array) []int {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
