// Package service provides the import orchestration logic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/repository"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/sniffer"
	"github.com/FACorreiaa/echo-ingest/pkg/money"
	"github.com/FACorreiaa/echo-ingest/pkg/storage"
)

const tracerName = "github.com/FACorreiaa/echo-ingest/internal/domain/import/service"

// DefaultPreviewLimit is how many candidate rows an upload returns.
const DefaultPreviewLimit = 50

// failedExtractionMessage is recorded on jobs whose document yields no rows.
const failedExtractionMessage = "No tables found or unable to parse"

// DocumentParser reads tables and embedded text out of PDF documents.
type DocumentParser interface {
	ExtractTables(r io.Reader) ([]parser.RawTable, error)
	ExtractText(r io.Reader) (string, error)
}

// Options tune statement imports.
type Options struct {
	PreviewLimit int
	Polarity     parser.Polarity
	Currency     string
}

func (o Options) withDefaults() Options {
	if o.PreviewLimit <= 0 {
		o.PreviewLimit = DefaultPreviewLimit
	}
	if o.Polarity == "" {
		o.Polarity = parser.NegativeIsIncome
	}
	if o.Currency == "" {
		o.Currency = money.INR
	}
	return o
}

// StatementPreview is returned by an upload: the job, the first rows for
// review and the number of rows extracted.
type StatementPreview struct {
	JobID     uuid.UUID                `json:"job_id"`
	Status    repository.JobStatus     `json:"status"`
	Preview   []parser.CandidateRecord `json:"preview"`
	TotalRows int                      `json:"total_rows"`
	Skipped   int                      `json:"skipped_rows"`
}

// CommitResult contains the counts recorded on a committed job
type CommitResult struct {
	JobID    uuid.UUID `json:"job_id"`
	Inserted int       `json:"inserted"`
	Failed   int       `json:"failed"`
	Total    int       `json:"total"`
}

// ImportService orchestrates statement upload, preview and commit
type ImportService struct {
	repo     repository.ImportRepository
	files    storage.Storage
	docs     DocumentParser
	pipeline *parser.StatementPipeline
	opts     Options
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewImportService creates a new import service
func NewImportService(repo repository.ImportRepository, files storage.Storage, docs DocumentParser, opts Options, logger *slog.Logger) *ImportService {
	opts = opts.withDefaults()
	return &ImportService{
		repo:     repo,
		files:    files,
		docs:     docs,
		pipeline: parser.NewStatementPipeline(opts.Polarity),
		opts:     opts,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// WithMetrics records upload and commit metrics
func (s *ImportService) WithMetrics(m *Metrics) *ImportService {
	s.metrics = m
	return s
}

// UploadStatement stores a statement PDF, extracts its rows and leaves the
// job waiting for a commit.
func (s *ImportService) UploadStatement(ctx context.Context, userID uuid.UUID, contentType string, data []byte) (_ *StatementPreview, err error) {
	ctx, span := s.tracer.Start(ctx, "ImportService.UploadStatement",
		trace.WithAttributes(attribute.String("user_id", userID.String()), attribute.Int("bytes", len(data))))
	defer func() { endSpan(span, err) }()

	// Only the declared type is checked here; a corrupt body fails the job
	// during extraction instead.
	if _, ok := sniffer.AllowedMediaType(contentType, sniffer.MediaPDF); !ok {
		s.metrics.upload(OutcomeRejected)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, contentType)
	}

	job := &repository.ImportJob{
		UserID: userID,
		Source: repository.SourcePDF,
		Status: repository.JobStatusPending,
	}
	if err := s.repo.CreateImportJob(ctx, job); err != nil {
		s.metrics.upload(OutcomeError)
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}
	span.SetAttributes(attribute.String("job_id", job.ID.String()))

	key := storage.ImportKey(userID, job.ID)
	if _, err := s.files.Put(ctx, key, sniffer.MediaPDF, bytes.NewReader(data)); err != nil {
		s.failJob(ctx, job.ID, "failed to store document")
		s.metrics.upload(OutcomeError)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	start := time.Now()
	tables, err := s.docs.ExtractTables(bytes.NewReader(data))
	s.metrics.observeExtraction("statement", start)
	if err != nil {
		s.failJob(ctx, job.ID, failedExtractionMessage)
		s.metrics.upload(OutcomeError)
		return nil, fmt.Errorf("failed to extract tables: %w", err)
	}

	result := s.pipeline.Parse(tables)
	s.metrics.statementRows(len(result.Records), result.Skipped)

	s.logger.Info("statement extracted",
		slog.String("job_id", job.ID.String()),
		slog.Int("tables", len(tables)),
		slog.Int("rows", len(result.Records)),
		slog.Int("skipped", result.Skipped),
	)

	if len(result.Records) == 0 {
		s.failJob(ctx, job.ID, failedExtractionMessage)
		s.metrics.upload(OutcomeUnparseable)
		return nil, fmt.Errorf("%w: job %s", ErrUnparseableDocument, job.ID)
	}

	if err := s.repo.MarkJobProcessing(ctx, job.ID, len(result.Records)); err != nil {
		s.metrics.upload(OutcomeError)
		return nil, fmt.Errorf("failed to update import job: %w", err)
	}

	preview := result.Records
	if len(preview) > s.opts.PreviewLimit {
		preview = preview[:s.opts.PreviewLimit]
	}

	s.metrics.upload(OutcomeOK)
	return &StatementPreview{
		JobID:     job.ID,
		Status:    repository.JobStatusProcessing,
		Preview:   preview,
		TotalRows: len(result.Records),
		Skipped:   result.Skipped,
	}, nil
}

// GetJob returns a job owned by userID
func (s *ImportService) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*repository.ImportJob, error) {
	job, err := s.repo.GetImportJob(ctx, userID, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

// Commit persists rows for a job. With no rows the stored document is parsed
// again. Rows that cannot become transactions are counted as failed and the
// rest are inserted together with the job's final counts.
//
// Committing a completed job again inserts its rows again.
func (s *ImportService) Commit(ctx context.Context, userID, jobID uuid.UUID, rows []CommitRow) (_ *CommitResult, err error) {
	ctx, span := s.tracer.Start(ctx, "ImportService.Commit",
		trace.WithAttributes(attribute.String("job_id", jobID.String()), attribute.Int("explicit_rows", len(rows))))
	defer func() { endSpan(span, err) }()

	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if !repository.CanTransition(job.Status, repository.JobStatusCompleted) {
		return nil, fmt.Errorf("%w: status %s", ErrJobNotCommittable, job.Status)
	}

	key := storage.ImportKey(userID, jobID)
	if _, err := s.files.Stat(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSourceMissing
		}
		return nil, fmt.Errorf("failed to stat source document: %w", err)
	}

	var (
		records []parser.CandidateRecord
		failed  int
		total   int
	)
	if len(rows) > 0 {
		total = len(rows)
		for i, row := range rows {
			record, err := row.Record()
			if err != nil {
				s.logger.Debug("commit row rejected", slog.Int("row", i), slog.Any("error", err))
				failed++
				continue
			}
			records = append(records, record)
		}
	} else {
		records, err = s.reextract(ctx, key)
		if err != nil {
			return nil, err
		}
		total = len(records)
	}
	if total == 0 {
		return nil, ErrNoRows
	}

	txs := make([]*repository.Transaction, 0, len(records))
	for _, record := range records {
		tx, err := s.toTransaction(userID, jobID, record)
		if err != nil {
			s.logger.Debug("commit row failed", slog.Any("error", err))
			failed++
			continue
		}
		txs = append(txs, tx)
	}

	counts := repository.CommitCounts{Total: total, Inserted: len(txs), Failed: failed}
	if err := s.repo.CommitImport(ctx, jobID, txs, counts); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %v", ErrJobNotCommittable, err)
		}
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	s.metrics.committed(counts.Inserted, counts.Failed)
	s.logger.Info("import committed",
		slog.String("job_id", jobID.String()),
		slog.Int("inserted", counts.Inserted),
		slog.Int("failed", counts.Failed),
		slog.Int("total", counts.Total),
	)

	return &CommitResult{
		JobID:    jobID,
		Inserted: counts.Inserted,
		Failed:   counts.Failed,
		Total:    counts.Total,
	}, nil
}

// FailStaleJobs fails jobs left pending since before olderThan, e.g. after a
// crash between job creation and extraction.
func (s *ImportService) FailStaleJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := s.repo.FailStalePendingJobs(ctx, olderThan, StaleJobMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("failed stale pending import jobs", slog.Int64("jobs", n))
	}
	return n, nil
}

// StaleJobMessage is recorded on pending jobs failed by the sweeper.
const StaleJobMessage = "abandoned before extraction completed"

func (s *ImportService) reextract(ctx context.Context, key string) ([]parser.CandidateRecord, error) {
	rc, err := s.files.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSourceMissing
		}
		return nil, fmt.Errorf("failed to read source document: %w", err)
	}
	defer rc.Close()

	start := time.Now()
	tables, err := s.docs.ExtractTables(rc)
	s.metrics.observeExtraction("statement", start)
	if err != nil {
		return nil, fmt.Errorf("failed to extract tables: %w", err)
	}
	return s.pipeline.Parse(tables).Records, nil
}

func (s *ImportService) toTransaction(userID, jobID uuid.UUID, record parser.CandidateRecord) (*repository.Transaction, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	amount, err := money.FromDecimal(record.Amount, s.opts.Currency)
	if err != nil {
		return nil, err
	}

	merchant := record.Merchant
	notes := record.Notes
	return &repository.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		ImportJobID: &jobID,
		OccurredAt:  record.OccurredAt,
		AmountMinor: amount.Amount(),
		Currency:    amount.Currency(),
		Type:        string(record.Type),
		Merchant:    &merchant,
		Notes:       &notes,
	}, nil
}

// failJob marks a job failed. Update errors are only logged.
func (s *ImportService) failJob(ctx context.Context, jobID uuid.UUID, message string) {
	if err := s.repo.MarkJobFailed(ctx, jobID, message); err != nil {
		s.logger.Warn("failed to mark import job failed",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err),
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
