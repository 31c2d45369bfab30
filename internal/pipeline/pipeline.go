// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/signalnine/marvinous/internal/collect"
	"github.com/signalnine/marvinous/internal/config"
	"github.com/signalnine/marvinous/internal/llm"
	"github.com/signalnine/marvinous/internal/prompt"
	"github.com/signalnine/marvinous/internal/protocol"
	"github.com/signalnine/marvinous/internal/report"
	"github.com/signalnine/marvinous/internal/state"
)

// Backend is the model service narratives are generated with
type Backend interface {
	HealthCheck(ctx context.Context) error
	Generate(ctx context.Context, prompt string) (*llm.Result, error)
	Endpoint() string
}

// Sources are the collectors one hourly run reads. A nil collector is disabled.
type Sources struct {
	SystemLogs collect.Collector[[]protocol.LogEntry]
	KernelLogs collect.Collector[[]protocol.LogEntry]
	Sensors    collect.Collector[[]protocol.SensorReading]
	IPMI       collect.Collector[[]protocol.IPMIReading]
	GPU        collect.Collector[*protocol.GPUStatus]
	Drives     collect.Collector[[]protocol.DriveHealth]

	IPMIRequired bool
	GPURequired  bool
}

// NewSources wires the system tool adapters according to cfg
func NewSources(cfg *config.Config, r collect.Runner) Sources {
	c := cfg.Collection
	s := Sources{
		SystemLogs:   &collect.Journal{Runner: r, Since: c.LogSince, PriorityMax: c.LogPriorityMax, MaxEntries: c.MaxLogEntries},
		Drives:       &collect.SMART{Runner: r, Devices: cfg.Storage.Devices},
		IPMIRequired: !cfg.IPMI.Optional,
		GPURequired:  !cfg.GPU.Optional,
	}
	if c.IncludeKernel {
		s.KernelLogs = &collect.Journal{Runner: r, Since: c.LogSince, MaxEntries: c.MaxLogEntries, Kernel: true}
	}
	if cfg.Sensors.Enabled {
		s.Sensors = &collect.Sensors{Runner: r}
	}
	if cfg.IPMI.Enabled {
		s.IPMI = &collect.IPMI{Runner: r, Baseline: &cfg.Baseline}
	}
	if cfg.GPU.Enabled {
		s.GPU = &collect.GPU{Runner: r}
	}
	return s
}

// Pipeline is one hourly collection-to-report pass, and the daily rollup
type Pipeline struct {
	Config  *config.Config
	Sources Sources
	Backend Backend
	Now     func() time.Time
}

// RunResult describes a finished hourly run
type RunResult struct {
	RunID      string
	ReportPath string
	Severity   report.Severity
	Attempts   int
	Latency    time.Duration
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// gather schedules c on g and stores its result in dst. Each call writes a
// distinct field, so no locking is needed; g.Wait orders the writes.
func gather[T any](ctx context.Context, g *errgroup.Group, c collect.Collector[T], required bool, dst *T) {
	if c == nil {
		return
	}
	g.Go(func() error {
		start := time.Now()
		defer func() {
			collectorDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
		}()
		v, err := collect.Gather(ctx, c, required)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	})
}

// Collect runs every enabled collector concurrently and loads the previous
// snapshot. Only a required collector failing is an error.
func (p *Pipeline) Collect(ctx context.Context) (*protocol.Bundle, error) {
	slog.Info("starting collection")
	b := &protocol.Bundle{}

	g, gctx := errgroup.WithContext(ctx)
	gather(gctx, g, p.Sources.SystemLogs, false, &b.SystemLogs)
	gather(gctx, g, p.Sources.KernelLogs, false, &b.KernelLogs)
	gather(gctx, g, p.Sources.Sensors, false, &b.Sensors)
	gather(gctx, g, p.Sources.IPMI, p.Sources.IPMIRequired, &b.IPMI)
	gather(gctx, g, p.Sources.GPU, p.Sources.GPURequired, &b.GPU)
	gather(gctx, g, p.Sources.Drives, false, &b.Drives)
	if err := g.Wait(); err != nil {
		return nil, Wrap(KindCollection, "required collector failed", err)
	}

	slog.Info("collection complete",
		"system_logs", len(b.SystemLogs),
		"kernel_logs", len(b.KernelLogs),
		"sensors", len(b.Sensors),
		"ipmi", len(b.IPMI),
		"gpu", b.GPU != nil,
		"drives", len(b.Drives))

	prev, err := state.Load(p.Config.General.StateFile)
	if err != nil {
		slog.Warn("failed to load previous state", "path", p.Config.General.StateFile, "error", err)
	}
	b.Previous = prev
	return b, nil
}

// Prompt renders the hourly prompt for b
func (p *Pipeline) Prompt(b *protocol.Bundle) string {
	system := prompt.LoadSystemPrompt(p.Config.General.PromptFile)
	return prompt.Build(b, system, prompt.Options{MaxLogEntries: p.Config.Collection.MaxLogEntries})
}

// generate probes the backend, then sends text
func (p *Pipeline) generate(ctx context.Context, text string) (*llm.Result, error) {
	if err := p.Backend.HealthCheck(ctx); err != nil {
		return nil, Wrap(KindBackend, fmt.Sprintf("backend not reachable at %s", p.Backend.Endpoint()), err)
	}

	slog.Info("sending prompt", "chars", len(text), "size", humanize.Bytes(uint64(len(text))))
	res, err := p.Backend.Generate(ctx, text)
	if err != nil {
		return nil, Wrap(KindBackend, "generation failed", err)
	}
	slog.Info("response received", "chars", len(res.Text), "attempts", res.Attempts, "latency", res.Latency)
	return res, nil
}

// Run executes one hourly pass: collect, prompt, generate, classify, write
// the report, then save the snapshot. Nothing is written unless generation
// succeeds.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	b, err := p.Collect(ctx)
	if err != nil {
		return nil, err
	}

	gen, err := p.generate(ctx, p.Prompt(b))
	if err != nil {
		return nil, err
	}

	sev := report.Classify(gen.Text)
	slog.Info("report severity", "severity", sev.String())

	ts := p.now()
	path, err := report.WriteHourly(p.Config.General.ReportDir, ts, gen.Text)
	if err != nil {
		return nil, Wrap(KindWrite, "write hourly report", err)
	}

	if err := state.Save(p.Config.General.StateFile, b.SnapshotAt(ts)); err != nil {
		slog.Warn("failed to save state", "path", p.Config.General.StateFile, "error", err)
	}

	lastSeverity.Set(float64(sev.Rank()))
	return &RunResult{
		ReportPath: path,
		Severity:   sev,
		Attempts:   gen.Attempts,
		Latency:    gen.Latency,
	}, nil
}

// Daily summarizes and archives the hourly reports for date. A date with no
// reports returns report.ErrNoReportsForDate unwrapped, before the backend
// is contacted.
func (p *Pipeline) Daily(ctx context.Context, date string) (*report.DailyResult, error) {
	roller := &report.Roller{
		Generator: report.GeneratorFunc(func(ctx context.Context, text string) (string, error) {
			res, err := p.generate(ctx, text)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		}),
	}

	res, err := roller.SummarizeDay(ctx, p.Config.General.ReportDir, date)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, report.ErrNoReportsForDate) {
		return nil, err
	}
	if errors.Is(err, report.ErrInvalidDate) {
		return nil, Wrap(KindConfig, "daily rollup", err)
	}
	var pe *Error
	if errors.As(err, &pe) {
		return nil, err
	}
	return nil, Wrap(KindWrite, "daily rollup for "+date, err)
}
