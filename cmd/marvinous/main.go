// cmd/marvinous/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signalnine/marvinous/internal/collect"
	"github.com/signalnine/marvinous/internal/config"
	"github.com/signalnine/marvinous/internal/dashboard"
	"github.com/signalnine/marvinous/internal/history"
	"github.com/signalnine/marvinous/internal/llm"
	"github.com/signalnine/marvinous/internal/logging"
	"github.com/signalnine/marvinous/internal/pipeline"
	"github.com/signalnine/marvinous/internal/report"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	dryRun     bool
	showPrompt bool
	dailyDate  string
)

var rootCmd = &cobra.Command{
	Use:           "marvinous",
	Short:         "Hardware and OS health reports narrated by a local LLM",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runHourly,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, generate and write the hourly report (default)",
	RunE:  runHourly,
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Summarize and archive one day of hourly reports",
	RunE:  runDaily,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and web dashboard",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to configuration file")

	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print collected data without calling the backend")
		cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "print the prompt that would be sent to the backend")
	}
	dailyCmd.Flags().StringVar(&dailyDate, "date", "", "date to roll up, YYYY-MM-DD (default yesterday UTC)")

	rootCmd.AddCommand(runCmd, dailyCmd, serveCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		slog.Error("failed", "error", err, "exit_code", pipeline.ExitCode(err))
	}
	os.Exit(pipeline.ExitCode(err))
}

// setup loads config, configures logging and wires the shared App. The
// returned cleanup closes run history.
func setup() (*config.Config, *pipeline.App, *history.DB, func(), error) {
	cfg, found, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, nil, nil, pipeline.Wrap(pipeline.KindConfig, "load "+configPath, err)
	}
	logging.Setup(cfg.General.LogLevel, cfg.General.LogFormat)
	if !found {
		slog.Warn("config file not found, using defaults", "path", configPath)
	}
	slog.Info("marvinous starting", "version", version, "config", configPath)

	backend := llm.NewClient(llm.Config{
		Endpoint:   cfg.Ollama.Endpoint,
		Model:      cfg.Ollama.Model,
		Timeout:    cfg.Ollama.Timeout,
		MaxRetries: cfg.Ollama.MaxRetries,
		RetryDelay: cfg.Ollama.RetryDelay,
	})

	// A typed nil *history.DB must not reach the Recorder interface
	var (
		db  *history.DB
		rec pipeline.Recorder
	)
	if path := cfg.General.HistoryDB; path != "" {
		db, err = history.Open(path)
		if err != nil {
			slog.Warn("run history disabled", "path", path, "error", err)
			db = nil
		} else {
			rec = db
		}
	}

	app := pipeline.NewApp(cfg, backend, collect.ExecRunner{}, rec)
	cleanup := func() {
		if db != nil {
			db.Close()
		}
	}
	return cfg, app, db, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runHourly(cmd *cobra.Command, args []string) error {
	_, app, _, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	if dryRun || showPrompt {
		b, err := app.Pipeline.Collect(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			out, err := json.MarshalIndent(b, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println("=== Collected Data ===")
			fmt.Println(string(out))
			return nil
		}
		fmt.Println("=== Prompt ===")
		fmt.Println(app.Pipeline.Prompt(b))
		return nil
	}

	res, err := app.RunHourly(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Report written to: %s\n", res.ReportPath)
	fmt.Printf("Severity: %s\n", res.Severity)
	return nil
}

func runDaily(cmd *cobra.Command, args []string) error {
	_, app, _, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	date := dailyDate
	if date == "" {
		date = report.YesterdayUTC(time.Now())
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := app.RunDaily(ctx, date)
	if errors.Is(err, report.ErrNoReportsForDate) {
		fmt.Printf("No reports for %s, nothing to do\n", date)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Daily summary written to: %s\n", res.SummaryPath)
	fmt.Printf("Archived %d reports to: %s\n", len(res.Archived), res.ArchivePath)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, app, db, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if !cfg.Web.Enabled && cfg.Schedule.Hourly == 0 && cfg.Schedule.DailyAt == "" {
		return pipeline.Wrap(pipeline.KindConfig, "serve has nothing to do: web and schedule are both disabled", nil)
	}

	ctx, stop := signalContext()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s := &pipeline.Scheduler{
			App:        app,
			Every:      cfg.Schedule.Hourly,
			DailyAt:    cfg.Schedule.DailyAt,
			RunOnStart: cfg.Schedule.Hourly > 0,
		}
		return s.Run(gctx)
	})
	if cfg.Web.Enabled {
		// Keep the nil interface when history is off
		var runs dashboard.RunLister
		if db != nil {
			runs = db
		}
		srv := dashboard.NewServer(cfg, app, runs, version)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Warn("sd_notify failed", "error", err)
	} else if ok {
		slog.Debug("notified systemd", "state", "ready")
	}

	err = g.Wait()
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}
