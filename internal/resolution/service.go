package resolution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fortuna/janus/internal/store"
)

// Request represents a resolution run request as received from API callers.
type Request struct {
	Tables  []string `json:"tables,omitempty"`
	Seasons []int    `json:"seasons,omitempty"`
	DryRun  bool     `json:"dry_run,omitempty"`
}

// Broadcaster pushes run events to connected clients. Satisfied by the
// websocket server; may be nil.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Service coordinates run persistence, execution, report emission and
// status reporting. Runs execute one at a time on a background worker.
type Service struct {
	repo    *Repository
	runner  *Runner
	reports *ReportWriter
	events  Broadcaster

	historyLimit int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewService constructs a Service. Call Start to launch the worker.
// events may be nil to disable streaming.
func NewService(db *store.Database, runner *Runner, reports *ReportWriter, events Broadcaster, logger *log.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = log.New(log.Writer(), "[resolution] ", log.LstdFlags)
	}

	return &Service{
		repo:         NewRepository(db),
		runner:       runner,
		reports:      reports,
		events:       events,
		historyLimit: 10,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckRuns(s.ctx); err != nil {
		s.logger.Printf("failed to reset runs: %v", err)
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops the worker and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue validates and creates a new queued run from the request. An
// empty table list means every fact table; an empty season list means
// every season still carrying unresolved rows.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Run, error) {
	tables := req.Tables
	if len(tables) == 0 {
		for _, t := range store.FactTables {
			tables = append(tables, string(t))
		}
	}
	for _, t := range tables {
		if !store.FactTable(t).Valid() {
			return nil, fmt.Errorf("unknown fact table %q", t)
		}
	}

	seasons := make([]int64, 0, len(req.Seasons))
	for _, season := range req.Seasons {
		if season < 1900 || season > 2100 {
			return nil, fmt.Errorf("implausible season %d", season)
		}
		seasons = append(seasons, int64(season))
	}

	run := &Run{
		Tables:        tables,
		Seasons:       seasons,
		DryRun:        req.DryRun,
		Status:        RunStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
	}

	stored, err := s.repo.CreateRun(ctx, run)
	if err != nil {
		return nil, err
	}

	s.broadcastEvent("run_queued", stored.RunID, map[string]interface{}{
		"tables":  stored.Tables,
		"seasons": stored.Seasons,
		"dry_run": stored.DryRun,
	})

	return stored, nil
}

// GetStatus returns the currently running run plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveRun(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentRuns(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveRun: active,
		History:   history,
	}, nil
}

// GetRun fetches a single run by id.
func (s *Service) GetRun(ctx context.Context, runID string) (*Run, error) {
	return s.repo.GetRun(ctx, runID)
}

// AppliedReport returns the applied report rows for a run.
func (s *Service) AppliedReport(ctx context.Context, runID string) ([]AppliedEntry, error) {
	if _, err := s.repo.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.repo.ListApplied(ctx, runID)
}

// UnresolvedReport returns the unresolved report rows for a run.
func (s *Service) UnresolvedReport(ctx context.Context, runID string) ([]Outcome, error) {
	if _, err := s.repo.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.repo.ListUnresolved(ctx, runID)
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			run, err := s.repo.MarkNextRunRunning(s.ctx)
			if err != nil {
				s.logger.Printf("claim run error: %v", err)
				time.Sleep(time.Second)
				continue
			}
			if run == nil {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					continue
				}
			}

			s.executeRun(run)
		}
	}
}

func (s *Service) executeRun(run *Run) {
	spec := RunSpec{DryRun: run.DryRun}
	for _, t := range run.Tables {
		spec.Tables = append(spec.Tables, store.FactTable(t))
	}
	for _, season := range run.Seasons {
		spec.Seasons = append(spec.Seasons, int(season))
	}

	s.broadcastEvent("run_started", run.RunID, nil)

	reporter := &runReporter{service: s, runID: run.RunID}

	result, err := s.runner.Run(s.ctx, spec, reporter)
	if err != nil {
		_ = s.repo.UpdateStatus(s.ctx, run.RunID, RunStatusFailed, "Run failed", err)
		s.broadcastEvent("run_failed", run.RunID, map[string]interface{}{"error": err.Error()})
		return
	}

	appliedCSV, unresolvedCSV, err := s.reports.Write(result)
	if err != nil {
		s.logger.Printf("report write failed for run %s: %v", run.RunID, err)
		_ = s.repo.UpdateStatus(s.ctx, run.RunID, RunStatusFailed, "Report write failed", err)
		return
	}

	if err := s.repo.RecordResult(s.ctx, run.RunID, result, appliedCSV, unresolvedCSV); err != nil {
		s.logger.Printf("result persist failed for run %s: %v", run.RunID, err)
		_ = s.repo.UpdateStatus(s.ctx, run.RunID, RunStatusFailed, "Result persist failed", err)
		return
	}

	message := fmt.Sprintf("Applied %d groups (%d rows), %d unresolved",
		result.Summary.AppliedGroups, result.Summary.UpdatedRows, result.Summary.UnresolvedGroups)
	_ = s.repo.UpdateStatus(s.ctx, run.RunID, RunStatusCompleted, message, nil)

	s.broadcastEvent("run_completed", run.RunID, map[string]interface{}{
		"applied_groups":    result.Summary.AppliedGroups,
		"unresolved_groups": result.Summary.UnresolvedGroups,
		"updated_rows":      result.Summary.UpdatedRows,
		"applied_csv":       appliedCSV,
		"unresolved_csv":    unresolvedCSV,
	})
}

func (s *Service) broadcastEvent(event, runID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}

	body := map[string]interface{}{
		"event":     event,
		"run_id":    runID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range payload {
		body[k] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Printf("event marshal failed: %v", err)
		return
	}
	s.events.Broadcast(data)
}

// runReporter translates runner callbacks into progress rows and stream
// events. Progress is measured in seasons.
type runReporter struct {
	service *Service
	runID   string
	total   int
}

func (r *runReporter) OnRunStart(spec RunSpec) {
	r.total = len(spec.Seasons)
	_ = r.service.repo.UpdateProgress(r.service.ctx, r.runID, 0, r.total, "Run starting")
}

func (r *runReporter) OnSeasonStart(season int, index int, total int) {
	if total > 0 {
		r.total = total
	}
	msg := fmt.Sprintf("Resolving season %d (%d/%d)", season, index+1, r.total)
	_ = r.service.repo.UpdateProgress(r.service.ctx, r.runID, index, r.total, msg)
	r.service.broadcastEvent("season_started", r.runID, map[string]interface{}{
		"season": season,
		"index":  index,
		"total":  r.total,
	})
}

func (r *runReporter) OnGroupClassified(outcome Outcome) {
	if outcome.State != StateUnresolved {
		return
	}
	r.service.broadcastEvent("group_unresolved", r.runID, map[string]interface{}{
		"source_table": outcome.Group.Table,
		"season":       outcome.Group.Season,
		"team_code":    outcome.Group.TeamCode,
		"player_name":  outcome.Group.PlayerName,
		"reason":       outcome.Reason,
	})
}

func (r *runReporter) OnSeasonCommitted(season int, applied int, unresolved int) {
	r.service.broadcastEvent("season_committed", r.runID, map[string]interface{}{
		"season":     season,
		"applied":    applied,
		"unresolved": unresolved,
	})
}

func (r *runReporter) OnRunComplete(summary Summary) {
	_ = r.service.repo.UpdateProgress(r.service.ctx, r.runID, r.total, r.total, "Run complete")
}

func (r *runReporter) OnRunError(err error) {
	r.service.logger.Printf("run %s error: %v", r.runID, err)
}
