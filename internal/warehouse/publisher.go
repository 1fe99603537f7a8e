package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	bigquery "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"adminexport/internal/config"
	"adminexport/internal/dataprocessing"
	apperrors "adminexport/internal/errors"
	"adminexport/internal/exporter"
)

const (
	jobStateDone = "DONE"

	writeTruncate  = "WRITE_TRUNCATE"
	createIfNeeded = "CREATE_IF_NEEDED"
)

// LoadResult describes a finished load job
type LoadResult struct {
	JobID    string
	Table    TableRef
	Rows     int64
	Bytes    int64
	Duration time.Duration
}

// Publisher overwrites one BigQuery table per call
type Publisher struct {
	svc          *bigquery.Service
	table        TableRef
	location     string
	pollInterval time.Duration
	jobTimeout   time.Duration
	logger       *slog.Logger
	newJobID     func() string
}

// NewPublisher builds a BigQuery client for cfg. A credentials file is used
// when it exists; otherwise application default credentials apply. Extra
// client options are appended last.
func NewPublisher(ctx context.Context, cfg config.WarehouseConfig, logger *slog.Logger, opts ...option.ClientOption) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	table := TableRef{Project: cfg.Project, Dataset: cfg.Dataset, Table: cfg.Table}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	clientOpts := []option.ClientOption{option.WithScopes(bigquery.BigqueryScope)}
	if cfg.CredentialsFile != "" && config.FileExists(cfg.CredentialsFile) {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Debug("Using service account credentials", slog.String("file", cfg.CredentialsFile))
	} else {
		logger.Debug("Using application default credentials")
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := bigquery.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, apperrors.NewPublishError("failed to create BigQuery client", err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &Publisher{
		svc:          svc,
		table:        table,
		location:     cfg.Location,
		pollInterval: pollInterval,
		jobTimeout:   cfg.JobTimeout,
		logger:       logger,
		newJobID:     func() string { return "adminexport_" + uuid.New().String() },
	}, nil
}

// Table returns the destination table
func (p *Publisher) Table() TableRef {
	return p.table
}

// Overwrite replaces the destination table with ds and waits for the load
// job to finish. Failures are PublishErrors and are not retried.
func (p *Publisher) Overwrite(ctx context.Context, ds *dataprocessing.Dataset) (*LoadResult, error) {
	if len(ds.Columns) == 0 {
		return nil, apperrors.NewPublishError("dataset has no columns", nil).
			WithContext("table", p.table.String())
	}

	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	data, err := exporter.EncodeCSVBytes(ds, exporter.WriteOptions{})
	if err != nil {
		return nil, apperrors.NewPublishError("failed to encode dataset", err)
	}

	start := time.Now()
	job := p.loadJob(ds.Columns)

	p.logger.Info("Starting load job",
		slog.String("job_id", job.JobReference.JobId),
		slog.String("table", p.table.String()),
		slog.Int("rows", ds.NumRows()),
		slog.Int("bytes", len(data)))

	inserted, err := p.svc.Jobs.Insert(p.table.Project, job).
		Media(bytes.NewReader(data), googleapi.ContentType("text/csv")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apperrors.NewPublishError("failed to submit load job", err).
			WithContext("table", p.table.String())
	}

	done, err := p.wait(ctx, inserted)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{
		JobID:    done.JobReference.JobId,
		Table:    p.table,
		Rows:     int64(ds.NumRows()),
		Bytes:    int64(len(data)),
		Duration: time.Since(start),
	}
	if done.Statistics != nil && done.Statistics.Load != nil {
		result.Rows = done.Statistics.Load.OutputRows
	}

	p.logger.Info("Load job finished",
		slog.String("job_id", result.JobID),
		slog.String("table", p.table.String()),
		slog.Int64("rows", result.Rows),
		slog.Duration("duration", result.Duration))

	return result, nil
}

func (p *Publisher) loadJob(columns []string) *bigquery.Job {
	fields := make([]*bigquery.TableFieldSchema, len(columns))
	for i, name := range columns {
		fields[i] = &bigquery.TableFieldSchema{Name: name, Type: "STRING", Mode: "NULLABLE"}
	}

	return &bigquery.Job{
		JobReference: &bigquery.JobReference{
			ProjectId: p.table.Project,
			JobId:     p.newJobID(),
			Location:  p.location,
		},
		Configuration: &bigquery.JobConfiguration{
			Load: &bigquery.JobConfigurationLoad{
				DestinationTable: &bigquery.TableReference{
					ProjectId: p.table.Project,
					DatasetId: p.table.Dataset,
					TableId:   p.table.Table,
				},
				Schema:              &bigquery.TableSchema{Fields: fields},
				SourceFormat:        "CSV",
				Encoding:            "UTF-8",
				SkipLeadingRows:     1,
				AllowQuotedNewlines: true,
				WriteDisposition:    writeTruncate,
				CreateDisposition:   createIfNeeded,
			},
		},
	}
}

// wait polls job until it is DONE
func (p *Publisher) wait(ctx context.Context, job *bigquery.Job) (*bigquery.Job, error) {
	ref := job.JobReference
	if ref == nil || ref.JobId == "" {
		return nil, apperrors.NewPublishError("load job response has no job reference", nil)
	}
	location := ref.Location
	if location == "" {
		location = p.location
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if job.Status != nil && job.Status.State == jobStateDone {
			if job.Status.ErrorResult != nil {
				return nil, jobError(ref.JobId, job.Status)
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.NewPublishError("load job did not finish", ctx.Err()).
				WithContext("job_id", ref.JobId)
		case <-ticker.C:
		}

		next, err := p.svc.Jobs.Get(ref.ProjectId, ref.JobId).Location(location).Context(ctx).Do()
		if err != nil {
			return nil, apperrors.NewPublishError("failed to poll load job", err).
				WithContext("job_id", ref.JobId)
		}
		if next.JobReference == nil {
			next.JobReference = ref
		}
		job = next
	}
}

func jobError(jobID string, status *bigquery.JobStatus) error {
	e := status.ErrorResult
	err := apperrors.NewPublishError(fmt.Sprintf("load job failed: %s", e.Message), nil).
		WithContext("job_id", jobID).
		WithContext("reason", e.Reason)
	if len(status.Errors) > 0 {
		details := make([]string, 0, len(status.Errors))
		for _, d := range status.Errors {
			details = append(details, d.Message)
		}
		err = err.WithContext("errors", details)
	}
	return err
}
