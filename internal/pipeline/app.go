// internal/pipeline/app.go
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/marvinous/internal/collect"
	"github.com/signalnine/marvinous/internal/config"
	"github.com/signalnine/marvinous/internal/protocol"
	"github.com/signalnine/marvinous/internal/report"
)

// ErrAlreadyRunning is returned when the guard is held by another run
var ErrAlreadyRunning = errors.New("a collection is already in progress")

const (
	KindHourly = "hourly"
	KindDaily  = "daily"
)

// Recorder persists finished runs
type Recorder interface {
	InsertRun(r *protocol.RunRecord) error
}

// App is the shared application context: one guard, one pipeline, one
// history, handed to the CLI, the scheduler and the dashboard alike.
type App struct {
	Config   *config.Config
	Guard    *Guard
	Pipeline *Pipeline
	History  Recorder // nil disables run history
	Now      func() time.Time
}

// NewApp wires an App with real collectors
func NewApp(cfg *config.Config, backend Backend, runner collect.Runner, history Recorder) *App {
	return &App{
		Config: cfg,
		Guard:  NewGuard(),
		Pipeline: &Pipeline{
			Config:  cfg,
			Sources: NewSources(cfg, runner),
			Backend: backend,
		},
		History: history,
	}
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// RunHourly runs the hourly pipeline under the guard
func (a *App) RunHourly(ctx context.Context) (*RunResult, error) {
	release, ok := a.acquire(KindHourly)
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return a.hourly(ctx, release, a.begin(KindHourly))
}

// StartHourly takes the guard and runs the hourly pipeline on its own
// goroutine. It never queues: a held guard returns ErrAlreadyRunning. done
// receives the run's error once it finishes.
func (a *App) StartHourly(ctx context.Context) (runID string, done <-chan error, err error) {
	release, ok := a.acquire(KindHourly)
	if !ok {
		return "", nil, ErrAlreadyRunning
	}
	rec := a.begin(KindHourly)
	ch := make(chan error, 1)
	go func() {
		_, err := a.hourly(ctx, release, rec)
		ch <- err
		close(ch)
	}()
	return rec.RunID, ch, nil
}

func (a *App) acquire(kind string) (func(Outcome), bool) {
	release, ok := a.Guard.TryAcquire()
	if !ok {
		runsTotal.WithLabelValues(kind, "skipped").Inc()
	}
	return release, ok
}

func (a *App) hourly(ctx context.Context, release func(Outcome), rec *protocol.RunRecord) (*RunResult, error) {
	slog.Info("hourly run started", "run_id", rec.RunID)

	res, err := a.Pipeline.Run(ctx)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	} else {
		res.RunID = rec.RunID
		rec.Severity = res.Severity.Lower()
		rec.ReportFile = filepath.Base(res.ReportPath)
		rec.Attempts = res.Attempts
	}
	release(outcome)
	a.finish(rec, outcome, err)
	return res, err
}

// RunDaily rolls up date under the guard. report.ErrNoReportsForDate is
// passed through so callers can treat it as nothing to do.
func (a *App) RunDaily(ctx context.Context, date string) (*report.DailyResult, error) {
	release, ok := a.acquire(KindDaily)
	if !ok {
		return nil, ErrAlreadyRunning
	}

	rec := a.begin(KindDaily)
	slog.Info("daily rollup started", "run_id", rec.RunID, "date", date)

	res, err := a.Pipeline.Daily(ctx, date)
	outcome := OutcomeSuccess
	switch {
	case errors.Is(err, report.ErrNoReportsForDate):
		outcome = OutcomeNoReports
	case err != nil:
		outcome = OutcomeFailed
	default:
		rec.ReportFile = filepath.Base(res.SummaryPath)
	}
	release(outcome)
	a.finish(rec, outcome, err)
	return res, err
}

func (a *App) begin(kind string) *protocol.RunRecord {
	return &protocol.RunRecord{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: a.now().UTC(),
	}
}

// finish logs, counts and records a run. History failures are warnings.
func (a *App) finish(rec *protocol.RunRecord, outcome Outcome, err error) {
	rec.FinishedAt = a.now().UTC()
	rec.Outcome = string(outcome)
	rec.LatencyMs = rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
	if err != nil && outcome == OutcomeFailed {
		rec.Error = err.Error()
	}

	runsTotal.WithLabelValues(rec.Kind, rec.Outcome).Inc()
	runDuration.WithLabelValues(rec.Kind).Observe(rec.FinishedAt.Sub(rec.StartedAt).Seconds())

	switch outcome {
	case OutcomeFailed:
		slog.Error("run failed", "run_id", rec.RunID, "kind", rec.Kind, "error", err)
	case OutcomeNoReports:
		slog.Info("nothing to roll up", "run_id", rec.RunID, "error", err)
	default:
		slog.Info("run complete", "run_id", rec.RunID, "kind", rec.Kind,
			"report", rec.ReportFile, "severity", rec.Severity, "latency_ms", rec.LatencyMs)
	}

	if a.History == nil {
		return
	}
	if herr := a.History.InsertRun(rec); herr != nil {
		slog.Warn("failed to record run history", "run_id", rec.RunID, "error", herr)
	}
}
