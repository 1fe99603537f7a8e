// Command adminexport signs in to the admin console, exports the goods list
// and replaces the warehouse table with it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"adminexport/internal/acquisition"
	"adminexport/internal/auth"
	"adminexport/internal/browser"
	"adminexport/internal/config"
	"adminexport/internal/dataprocessing"
	apperrors "adminexport/internal/errors"
	"adminexport/internal/exporter"
	"adminexport/internal/files"
	"adminexport/internal/infrastructure"
	"adminexport/internal/operations"
	"adminexport/internal/store"
	"adminexport/internal/trigger"
	"adminexport/internal/validation"
	"adminexport/internal/warehouse"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cliFlags holds the parsed command line. Unset flags leave config alone.
type cliFlags struct {
	configFile string
	download   string
	table      string
	headless   bool
	dryRun     bool
	version    bool
	history    int
	tableRef   *warehouse.TableRef
	set        map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, error) {
	f := &cliFlags{set: make(map[string]bool)}
	fs := flag.NewFlagSet(config.AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.configFile, "config", "", "path to a YAML config file")
	fs.StringVar(&f.download, "download", "", "download directory (overrides config)")
	fs.StringVar(&f.table, "table", "", "destination table, bare or project.dataset.table (overrides config)")
	fs.BoolVar(&f.headless, "headless", true, "run the browser headless")
	fs.BoolVar(&f.dryRun, "dry-run", false, "acquire and clean the export without publishing")
	fs.BoolVar(&f.version, "version", false, "print the version and exit")
	fs.IntVar(&f.history, "history", 0, "print the last N journal entries and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	if strings.Contains(f.table, ".") {
		ref, err := warehouse.ParseTableRef(f.table)
		if err != nil {
			return nil, err
		}
		f.tableRef = &ref
	}
	return f, nil
}

// overrides turns explicitly set flags into config options
func (f *cliFlags) overrides() []config.Option {
	var opts []config.Option
	if f.set["download"] {
		dir := f.download
		opts = append(opts, func(c *config.Config) { c.Paths.DownloadDir = dir })
	}
	switch {
	case f.tableRef != nil:
		ref := *f.tableRef
		opts = append(opts, func(c *config.Config) {
			c.Warehouse.Project = ref.Project
			c.Warehouse.Dataset = ref.Dataset
			c.Warehouse.Table = ref.Table
		})
	case f.set["table"]:
		table := f.table
		opts = append(opts, func(c *config.Config) { c.Warehouse.Table = table })
	}
	if f.set["headless"] {
		headless := f.headless
		opts = append(opts, func(c *config.Config) { c.Browser.Headless = headless })
	}
	return opts
}

func run(args []string, stdout, stderr io.Writer) (code int) {
	var logger *slog.Logger
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "PANIC RECOVERED: %v\n", r)
			if logger != nil {
				logger.Error("adminexport panicked",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
			code = 1
		}
	}()

	flags, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if flags.version {
		fmt.Fprintf(stdout, "%s %s\n", config.AppName, config.AppVersion)
		return 0
	}

	loadOpts := []config.LoadOption{config.WithOverrides(flags.overrides()...)}
	if flags.configFile != "" {
		loadOpts = append(loadOpts, config.WithFile(flags.configFile))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to load configuration: %v\n", err)
		return 1
	}

	paths, err := cfg.GetPaths()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to resolve paths: %v\n", err)
		return 1
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Fprintf(stderr, "Error: failed to create required directories: %v\n", err)
		return 1
	}

	cfg.Logging.FilePath = paths.LogFile
	logger, err = infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths.LogPathResolution(logger)

	journal, err := openJournal(ctx, paths.JournalFile, flags.history > 0, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer journal.Close()

	if flags.history > 0 {
		return printHistory(ctx, journal, flags.history, stdout, stderr)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry, paths), logger)
	if err != nil {
		logger.Warn("Telemetry disabled", slog.String("error", err.Error()))
		providers = nil
	}
	if providers != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	runID := uuid.New().String()
	ctx = infrastructure.WithRunID(ctx, runID)
	ctx = infrastructure.EnsureTraceID(ctx)

	logger.InfoContext(ctx, "adminexport starting",
		slog.String("version", config.AppVersion),
		slog.String("download_dir", paths.DownloadDir),
		slog.String("table", cfg.TableID()),
		slog.Bool("headless", cfg.Browser.Headless),
		slog.Bool("dry_run", flags.dryRun))

	state := operations.NewRunState(runID, cfg.TableID())
	if err := journal.Begin(ctx, runID, cfg.TableID(), time.Now()); err != nil {
		logger.WarnContext(ctx, "Failed to record run start", slog.String("error", err.Error()))
	}

	err = execute(ctx, cfg, paths, flags.dryRun, providers, state, logger)

	if jerr := journal.Finish(ctx, journalEntry(state, err)); jerr != nil {
		logger.WarnContext(ctx, "Failed to record run outcome", slog.String("error", jerr.Error()))
	}

	if err != nil {
		infrastructure.WithError(logger, err).ErrorContext(ctx, "adminexport failed",
			slog.String("error_type", string(apperrors.TypeOf(err))))
		announce(ctx, logger, stderr, slog.LevelError, diagnostic(err))
		return 1
	}

	announce(ctx, logger, stdout, slog.LevelInfo, confirmation(state, flags.dryRun))
	return 0
}

// announce writes a user-facing line and keeps the same record in the log.
func announce(ctx context.Context, logger *slog.Logger, w io.Writer, level slog.Level, line string) {
	logger.Log(ctx, level, line)
	fmt.Fprintln(w, line)
}

// openJournal opens the run journal. Only -history needs it; for a run a
// broken journal is replaced by a disabled one so the export still happens.
func openJournal(ctx context.Context, path string, required bool, logger *slog.Logger) (*store.Journal, error) {
	journal, err := store.Open(ctx, path, logger)
	if err == nil {
		return journal, nil
	}
	if required {
		logger.ErrorContext(ctx, "Failed to open run journal", slog.String("error", err.Error()))
		return nil, err
	}
	logger.WarnContext(ctx, "Run journal disabled",
		slog.String("path", path),
		slog.String("error", err.Error()))
	return store.Open(ctx, "", logger)
}

// execute builds the collaborators and runs the steps. The browser is closed
// on every return path.
func execute(ctx context.Context, cfg *config.Config, paths *config.Paths, dryRun bool,
	providers *infrastructure.OTelProviders, state *operations.RunState, logger *slog.Logger) error {
	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateDownloadDirectory(paths.DownloadDir); err != nil {
		return err
	}

	tracer, err := operations.NewRunTracer(providers)
	if err != nil {
		logger.WarnContext(ctx, "Run metrics disabled", slog.String("error", err.Error()))
		tracer, _ = operations.NewRunTracer(nil)
	}

	var publisher operations.Publisher
	if !dryRun {
		p, err := warehouse.NewPublisher(ctx, cfg.Warehouse, logger)
		if err != nil {
			return err
		}
		publisher = p
	}

	sess, err := browser.New(ctx, browser.ConfigFrom(cfg.Browser, paths.DownloadDir), logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	trig := trigger.New(sess, cfg.Export, logger,
		trigger.WithWindowWatcher(func(ctx context.Context) (trigger.WindowAdopter, error) {
			w, err := sess.WatchWindows(ctx)
			if err != nil {
				return nil, err
			}
			return w, nil
		}))

	acqLogger := infrastructure.WithComponent(logger, "acquisition")
	poller := acquisition.NewFilesystemPoller(paths.DownloadDir, cfg.Acquisition, acqLogger)
	capture := acquisition.NewNetworkCapture(sess.Responses(), sess, paths.DownloadDir, cfg.Acquisition, acqLogger)

	policy := &acquisition.FallbackPolicy{
		Primary:   poller,
		Secondary: capture,
		Retrigger: func(ctx context.Context) error {
			if err := poller.Snapshot(); err != nil {
				return err
			}
			_, err := trig.Fire(ctx)
			return err
		},
		PrimaryTimeout:   cfg.Acquisition.Timeout,
		SecondaryTimeout: cfg.Acquisition.CaptureTimeout,
		OnAttempt:        operations.AttemptRecorder(tracer.Metrics(), acqLogger),
		Logger:           acqLogger,
	}

	pipeline := &operations.Pipeline{
		Auth:        auth.NewEstablisher(sess, cfg.Login, logger),
		Trigger:     trig,
		Snapshot:    poller,
		Acquirer:    policy,
		Selector:    files.NewManager(logger),
		Validator:   validator,
		Loader:      dataprocessing.NewLoader(logger),
		Archiver:    exporter.NewCSVWriter(paths, logger),
		Publisher:   publisher,
		ListURL:     cfg.Login.ListURL,
		DownloadDir: paths.DownloadDir,
		Extensions:  cfg.Acquisition.Extensions,
		TableName:   cfg.Warehouse.Table,
		DryRun:      dryRun,
		Metrics:     tracer.Metrics(),
		Logger:      logger,
	}

	return operations.NewRunner(tracer, logger).Run(ctx, state, pipeline.Steps())
}

func journalEntry(state *operations.RunState, err error) store.Run {
	entry := store.Run{
		ID:       state.ID,
		Status:   string(state.Status),
		Artifact: state.ArtifactPath(),
		Rows:     int64(state.RowCount()),
	}
	if state.Artifact != nil {
		entry.Strategy = state.Artifact.Strategy
	}
	if state.Load != nil {
		entry.Rows = state.Load.Rows
	}
	if failed := state.FailedStep(); failed != nil {
		entry.FailedStep = failed.ID
	}
	if err != nil {
		entry.Error = err.Error()
		if entry.Status == string(operations.RunStatusRunning) || entry.Status == string(operations.RunStatusPending) {
			entry.Status = store.StatusFailed
		}
	}
	return entry
}

// diagnostic renders the one line printed before a failing exit
func diagnostic(err error) string {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrTypeNoCandidate:
		return fmt.Sprintf("Error: no export file was found after acquisition: %v", err)
	case apperrors.ErrTypeParsing, apperrors.ErrTypeUnsupportedFormat:
		return fmt.Sprintf("Error: the export file could not be parsed: %v", err)
	case apperrors.ErrTypeAuth:
		return fmt.Sprintf("Error: sign-in failed: %v", err)
	case apperrors.ErrTypePublish:
		return fmt.Sprintf("Error: upload failed: %v", err)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Error: run interrupted: %v", err)
	case browser.IsBrowserClosed(err):
		return fmt.Sprintf("Error: the browser closed unexpectedly: %v", err)
	}
	return fmt.Sprintf("Error: %v", err)
}

func confirmation(state *operations.RunState, dryRun bool) string {
	if dryRun || state.Load == nil {
		return fmt.Sprintf("Dry run complete: %d rows from %s (not uploaded)",
			state.RowCount(), state.ArtifactPath())
	}
	return fmt.Sprintf("Upload complete: %d rows written to %s (job %s)",
		state.Load.Rows, state.Load.Table, state.Load.JobID)
}

func printHistory(ctx context.Context, journal *store.Journal, n int, stdout, stderr io.Writer) int {
	if !journal.Enabled() {
		fmt.Fprintln(stderr, "Error: the run journal is disabled")
		return 1
	}
	runs, err := journal.Recent(ctx, n)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, r := range runs {
		fmt.Fprintln(stdout, historyLine(r))
	}
	return 0
}

func historyLine(r store.Run) string {
	line := fmt.Sprintf("%s  %s  %-9s  rows=%d  %s",
		r.StartedAt.Local().Format(time.RFC3339), r.ID, r.Status, r.Rows, r.Destination)
	if r.FailedStep != "" {
		line += "  step=" + r.FailedStep
	}
	if r.Error != "" {
		line += "  error=" + r.Error
	}
	return line
}
