package operations

import (
	"context"
	"log/slog"
	"time"

	"adminexport/internal/acquisition"
	"adminexport/internal/dataprocessing"
	apperrors "adminexport/internal/errors"
	"adminexport/internal/infrastructure"
)

// Pipeline holds the collaborators of a run and builds its steps
type Pipeline struct {
	Auth      Authenticator
	Trigger   Firer
	Snapshot  Snapshotter
	Acquirer  Acquirer
	Selector  LatestSelector
	Validator ArtifactValidator
	Loader    DatasetLoader
	Archiver  Archiver
	Publisher Publisher

	ListURL     string
	DownloadDir string
	Extensions  []string
	TableName   string
	DryRun      bool

	Metrics *infrastructure.BusinessMetrics
	Logger  *slog.Logger
}

// Steps returns the run steps in execution order
func (p *Pipeline) Steps() []Step {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return []Step{
		&LoginStep{BaseStep: NewBaseStep(StepIDLogin, StepNameLogin), p: p},
		&OpenListStep{BaseStep: NewBaseStep(StepIDOpenList, StepNameOpenList), p: p},
		&TriggerStep{BaseStep: NewBaseStep(StepIDTrigger, StepNameTrigger), p: p},
		&AcquireStep{BaseStep: NewBaseStep(StepIDAcquire, StepNameAcquire), p: p},
		&SelectLatestStep{BaseStep: NewBaseStep(StepIDSelectLatest, StepNameSelectLatest), p: p},
		&ValidateStep{BaseStep: NewBaseStep(StepIDValidate, StepNameValidate), p: p},
		&LoadStep{BaseStep: NewBaseStep(StepIDLoad, StepNameLoad), p: p},
		&CleanStep{BaseStep: NewBaseStep(StepIDClean, StepNameClean), p: p},
		&ArchiveStep{BaseStep: NewBaseStep(StepIDArchive, StepNameArchive), p: p},
		&PublishStep{BaseStep: NewBaseStep(StepIDPublish, StepNamePublish), p: p},
	}
}

// LoginStep signs in to the admin console
type LoginStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *LoginStep) Execute(ctx context.Context, state *RunState) error {
	session, err := s.p.Auth.Login(ctx)
	if err != nil {
		return err
	}
	state.GetStep(s.ID()).SetMetadata("url", session.URL)
	return nil
}

// OpenListStep opens the goods list, signing in again when bounced to login
type OpenListStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *OpenListStep) Execute(ctx context.Context, state *RunState) error {
	return s.p.Auth.EnsureSession(ctx, s.p.ListURL)
}

// TriggerStep snapshots the download directory and fires the export
type TriggerStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *TriggerStep) Execute(ctx context.Context, state *RunState) error {
	// The baseline is taken before the request so a fast download is not
	// mistaken for a stale file
	if s.p.Snapshot != nil {
		if err := s.p.Snapshot.Snapshot(); err != nil {
			return apperrors.NewAcquisitionError("failed to snapshot download directory", err).
				WithContext("dir", s.p.DownloadDir)
		}
	}

	res, err := s.p.Trigger.Fire(ctx)
	if err != nil {
		return err
	}
	state.Trigger = res

	for i := 0; i < res.Attempt; i++ {
		infrastructure.RecordTriggerAttempt(ctx, s.p.Metrics, string(res.Path))
	}

	stepState := state.GetStep(s.ID())
	stepState.SetMetadata("path", string(res.Path))
	stepState.SetMetadata("attempt", res.Attempt)
	if res.Alert != "" {
		stepState.SetMetadata("alert", res.Alert)
	}
	return nil
}

// AcquireStep runs the acquisition fallback policy
type AcquireStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *AcquireStep) Execute(ctx context.Context, state *RunState) error {
	art, err := s.p.Acquirer.Acquire(ctx)
	if err != nil {
		return err
	}
	state.Artifact = art
	infrastructure.AddSpanEvent(ctx, "artifact.acquired", map[string]interface{}{
		"strategy":   art.Strategy,
		"size_bytes": art.Size,
	})

	stepState := state.GetStep(s.ID())
	stepState.SetMetadata("strategy", art.Strategy)
	stepState.SetMetadata("path", art.Path)
	return nil
}

// SelectLatestStep keeps only the newest export file
type SelectLatestStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *SelectLatestStep) Execute(ctx context.Context, state *RunState) error {
	latest, deleted, err := s.p.Selector.KeepLatest(s.p.DownloadDir, s.p.Extensions)
	if err != nil {
		return err
	}

	if state.Artifact == nil {
		state.Artifact = &acquisition.Artifact{Strategy: "existing"}
	}
	if state.Artifact.Path != latest.Path {
		s.p.Logger.WarnContext(ctx, "Newest file differs from the acquired one",
			slog.String("acquired", state.Artifact.Path),
			slog.String("latest", latest.Path))
	}
	state.Artifact.Path = latest.Path
	state.Artifact.Size = latest.Size
	state.Deleted = deleted

	state.GetStep(s.ID()).SetMetadata("deleted", len(deleted))
	return nil
}

// ValidateStep checks the selected file before parsing
type ValidateStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *ValidateStep) Execute(ctx context.Context, state *RunState) error {
	path := state.ArtifactPath()
	if path == "" {
		return NewInvalidStateError(s.ID(), "no artifact to validate")
	}
	return s.p.Validator.ValidateArtifact(path, s.p.Extensions)
}

// LoadStep parses the selected file
type LoadStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *LoadStep) Execute(ctx context.Context, state *RunState) error {
	path := state.ArtifactPath()
	if path == "" {
		return NewInvalidStateError(s.ID(), "no artifact to load")
	}

	ds, err := s.p.Loader.Load(path)
	if err != nil {
		return err
	}
	state.Dataset = ds

	stepState := state.GetStep(s.ID())
	stepState.SetMetadata("rows", ds.NumRows())
	stepState.SetMetadata("columns", len(ds.Columns))
	return nil
}

// CleanStep sanitizes the header and drops empty and duplicate rows
type CleanStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *CleanStep) Execute(ctx context.Context, state *RunState) error {
	if state.Dataset == nil {
		return NewInvalidStateError(s.ID(), "no dataset to clean")
	}

	ds := state.Dataset.Clone()
	ds.Columns = dataprocessing.SanitizeColumns(ds.Columns)
	cleaned, stats := dataprocessing.Clean(ds)

	state.Dataset = cleaned
	state.CleanStats = stats
	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"rows":           cleaned.NumRows(),
		"empty_rows":     stats.EmptyRows,
		"duplicate_rows": stats.DuplicateRows,
	})

	s.p.Logger.InfoContext(ctx, "Dataset cleaned",
		slog.Int("rows", cleaned.NumRows()),
		slog.Int("empty_rows", stats.EmptyRows),
		slog.Int("duplicate_rows", stats.DuplicateRows),
		slog.Any("columns", cleaned.Columns))

	stepState := state.GetStep(s.ID())
	stepState.SetMetadata("rows", cleaned.NumRows())
	stepState.SetMetadata("removed", stats.Removed())
	return nil
}

// ArchiveStep writes the cleaned dataset next to the downloads. A failed
// archive never blocks the publish.
type ArchiveStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *ArchiveStep) Execute(ctx context.Context, state *RunState) error {
	if s.p.Archiver == nil {
		return Skip("archiving disabled")
	}
	if state.Dataset == nil {
		return NewInvalidStateError(s.ID(), "no dataset to archive")
	}

	path, err := s.p.Archiver.Archive(state.Dataset, s.p.TableName, time.Now())
	if err != nil {
		s.p.Logger.WarnContext(ctx, "Failed to archive dataset", slog.String("error", err.Error()))
		return Skip("archive failed")
	}
	if path == "" {
		return Skip("no archive directory")
	}

	state.Archived = path
	state.GetStep(s.ID()).SetMetadata("path", path)
	return nil
}

// PublishStep overwrites the warehouse table
type PublishStep struct {
	BaseStep
	p *Pipeline
}

// Execute implements Step
func (s *PublishStep) Execute(ctx context.Context, state *RunState) error {
	if state.Dataset == nil {
		return NewInvalidStateError(s.ID(), "no dataset to publish")
	}
	if s.p.DryRun {
		infrastructure.RecordRows(ctx, s.p.Metrics, state.Table, 0, state.CleanStats.Removed())
		return Skip("dry run")
	}

	res, err := s.p.Publisher.Overwrite(ctx, state.Dataset)
	if err != nil {
		return err
	}
	state.Load = res
	infrastructure.RecordRows(ctx, s.p.Metrics, state.Table, int(res.Rows), state.CleanStats.Removed())

	stepState := state.GetStep(s.ID())
	stepState.SetMetadata("job_id", res.JobID)
	stepState.SetMetadata("rows", res.Rows)
	return nil
}

// AttemptRecorder logs and counts every acquisition strategy attempt
func AttemptRecorder(metrics *infrastructure.BusinessMetrics, logger *slog.Logger) acquisition.AttemptFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, strategy string, art *acquisition.Artifact, dur time.Duration, err error) {
		var size int64
		if art != nil {
			size = art.Size
		}
		infrastructure.RecordAcquisition(ctx, metrics, strategy, size, err)

		if err != nil {
			logger.WarnContext(ctx, "Acquisition attempt failed",
				slog.String("strategy", strategy),
				slog.Duration("duration", dur),
				slog.String("error_type", string(apperrors.TypeOf(err))),
				slog.String("error", err.Error()))
			return
		}
		logger.InfoContext(ctx, "Acquisition attempt succeeded",
			slog.String("strategy", strategy),
			slog.Duration("duration", dur),
			slog.Int64("size_bytes", size))
	}
}
