package resolution

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ReportWriter emits the two per-run audit artifacts as timestamped CSV
// files: the applied report and the unresolved report. The unresolved file
// is the sole touchpoint for manual correction via the override registry.
type ReportWriter struct {
	dir string
}

// NewReportWriter constructs a writer targeting one output directory.
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

var reportKeyColumns = []string{
	"source_table",
	"year",
	"team_code",
	"player_name",
	"unresolved_rows",
	"uniform_nos",
	"candidate_count",
	"candidate_ids",
	"resolved_name",
	"alias_applied",
	"franchise_id",
	"resolution_method",
	"resolution_reason",
	"override_reason",
	"override_evidence_source",
}

// Write emits both reports and returns their paths. Files are written even
// when a section is empty, so every run leaves a complete audit trail.
func (w *ReportWriter) Write(result *RunResult) (appliedPath, unresolvedPath string, err error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating report directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	appliedPath = filepath.Join(w.dir, fmt.Sprintf("player_id_applied_%s.csv", stamp))
	unresolvedPath = filepath.Join(w.dir, fmt.Sprintf("player_id_unresolved_%s.csv", stamp))

	appliedColumns := append(append([]string{}, reportKeyColumns...), "resolved_player_id", "updated_rows")
	appliedRows := make([][]string, 0, len(result.Applied))
	for _, entry := range result.Applied {
		row := append(outcomeColumns(entry.Outcome),
			strconv.Itoa(entry.ResolvedPlayerID),
			strconv.FormatInt(entry.RowsUpdated, 10),
		)
		appliedRows = append(appliedRows, row)
	}
	if err := writeCSV(appliedPath, appliedColumns, appliedRows); err != nil {
		return "", "", err
	}

	unresolvedRows := make([][]string, 0, len(result.Unresolved))
	for _, outcome := range result.Unresolved {
		unresolvedRows = append(unresolvedRows, outcomeColumns(outcome))
	}
	if err := writeCSV(unresolvedPath, reportKeyColumns, unresolvedRows); err != nil {
		return "", "", err
	}

	return appliedPath, unresolvedPath, nil
}

func outcomeColumns(o Outcome) []string {
	franchiseID := ""
	if o.FranchiseID.Valid {
		franchiseID = strconv.Itoa(int(o.FranchiseID.Int32))
	}
	aliasApplied := "0"
	if o.AliasApplied {
		aliasApplied = "1"
	}

	return []string{
		string(o.Group.Table),
		strconv.Itoa(o.Group.Season),
		o.Group.TeamCode,
		o.Group.PlayerName,
		strconv.Itoa(o.Group.RowCount),
		strings.Join(o.Uniforms, ","),
		strconv.Itoa(len(o.Candidates)),
		joinIDs(o.Candidates),
		o.ResolvedName,
		aliasApplied,
		franchiseID,
		string(o.Method),
		string(o.Reason),
		o.OverrideReason,
		o.OverrideEvidence,
	}
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func writeCSV(path string, columns []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing report row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing report %s: %w", path, err)
	}
	return nil
}
