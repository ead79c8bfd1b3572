package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// transactionColumns is the COPY column list for transactions
var transactionColumns = []string{
	"id", "user_id", "import_job_id", "occurred_at", "amount_minor", "currency", "type", "merchant", "notes",
}

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	pool DB
}

// NewPostgresImportRepository creates a new PostgreSQL import repository
func NewPostgresImportRepository(pool DB) *PostgresImportRepository {
	return &PostgresImportRepository{pool: pool}
}

// ============================================================================
// Import jobs
// ============================================================================

// CreateImportJob inserts a new job; status defaults to pending
func (r *PostgresImportRepository) CreateImportJob(ctx context.Context, job *ImportJob) error {
	query := `
		INSERT INTO import_jobs (id, user_id, source, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Source == "" {
		job.Source = SourcePDF
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}

	err := r.pool.QueryRow(ctx, query,
		job.ID,
		job.UserID,
		job.Source,
		string(job.Status),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

// GetImportJob retrieves a job owned by userID
func (r *PostgresImportRepository) GetImportJob(ctx context.Context, userID, jobID uuid.UUID) (*ImportJob, error) {
	query := `
		SELECT id, user_id, source, status, total_rows, inserted_rows, failed_rows, error_message, created_at, updated_at
		FROM import_jobs
		WHERE id = $1 AND user_id = $2`

	job := &ImportJob{}
	var status string
	err := r.pool.QueryRow(ctx, query, jobID, userID).Scan(
		&job.ID,
		&job.UserID,
		&job.Source,
		&status,
		&job.TotalRows,
		&job.InsertedRows,
		&job.FailedRows,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	job.Status = JobStatus(status)
	return job, nil
}

// MarkJobProcessing records the extracted row count on a pending job
func (r *PostgresImportRepository) MarkJobProcessing(ctx context.Context, jobID uuid.UUID, totalRows int) error {
	query := `
		UPDATE import_jobs
		SET status = $2, total_rows = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4)`

	result, err := r.pool.Exec(ctx, query, jobID, string(JobStatusProcessing), totalRows, sourcesFor(JobStatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s to %s", ErrInvalidTransition, jobID, JobStatusProcessing)
	}
	return nil
}

// MarkJobFailed moves a pending or processing job to failed
func (r *PostgresImportRepository) MarkJobFailed(ctx context.Context, jobID uuid.UUID, message string) error {
	query := `
		UPDATE import_jobs
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4)`

	result, err := r.pool.Exec(ctx, query, jobID, string(JobStatusFailed), message, sourcesFor(JobStatusFailed))
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s to %s", ErrInvalidTransition, jobID, JobStatusFailed)
	}
	return nil
}

// FailStalePendingJobs fails every job still pending since before olderThan
func (r *PostgresImportRepository) FailStalePendingJobs(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	query := `
		UPDATE import_jobs
		SET status = $1, error_message = $2, updated_at = now()
		WHERE status = $3 AND created_at < $4`

	result, err := r.pool.Exec(ctx, query, string(JobStatusFailed), message, string(JobStatusPending), olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale import jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// CommitImport copies txs into transactions and marks the job completed in
// one database transaction.
func (r *PostgresImportRepository) CommitImport(ctx context.Context, jobID uuid.UUID, txs []*Transaction, counts CommitCounts) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range txs {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
	}

	if len(txs) > 0 {
		copied, err := tx.CopyFrom(ctx,
			pgx.Identifier{"transactions"},
			transactionColumns,
			pgx.CopyFromSlice(len(txs), func(i int) ([]any, error) {
				t := txs[i]
				return []any{t.ID, t.UserID, t.ImportJobID, t.OccurredAt, t.AmountMinor, t.Currency, t.Type, t.Merchant, t.Notes}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transactions: %w", err)
		}
		if copied != int64(len(txs)) {
			return fmt.Errorf("failed to insert transactions: copied %d of %d", copied, len(txs))
		}
	}

	query := `
		UPDATE import_jobs
		SET status = $2, total_rows = $3, inserted_rows = $4, failed_rows = $5, error_message = NULL, updated_at = now()
		WHERE id = $1 AND status = ANY($6)`

	result, err := tx.Exec(ctx, query,
		jobID,
		string(JobStatusCompleted),
		counts.Total,
		counts.Inserted,
		counts.Failed,
		sourcesFor(JobStatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to complete import job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s to %s", ErrInvalidTransition, jobID, JobStatusCompleted)
	}

	return tx.Commit(ctx)
}

// ============================================================================
// Receipts
// ============================================================================

// CreateAttachment inserts an attachment row for an uploaded receipt
func (r *PostgresImportRepository) CreateAttachment(ctx context.Context, attachment *Attachment) error {
	query := `
		INSERT INTO attachments (id, user_id, storage_key, filename, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	if attachment.ID == uuid.Nil {
		attachment.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		attachment.ID,
		attachment.UserID,
		attachment.StorageKey,
		attachment.Filename,
		attachment.ContentType,
		attachment.SizeBytes,
	).Scan(&attachment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// CreateReceiptTransaction inserts t and links it to the attachment in one
// database transaction.
func (r *PostgresImportRepository) CreateReceiptTransaction(ctx context.Context, t *Transaction, attachmentID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	insertQuery := `
		INSERT INTO transactions (id, user_id, import_job_id, occurred_at, amount_minor, currency, type, merchant, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err = tx.QueryRow(ctx, insertQuery,
		t.ID,
		t.UserID,
		t.ImportJobID,
		t.OccurredAt,
		t.AmountMinor,
		t.Currency,
		t.Type,
		t.Merchant,
		t.Notes,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	linkQuery := `
		UPDATE attachments
		SET transaction_id = $2
		WHERE id = $1 AND user_id = $3`

	result, err := tx.Exec(ctx, linkQuery, attachmentID, t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("failed to link attachment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("failed to link attachment %s: %w", attachmentID, ErrNotFound)
	}

	return tx.Commit(ctx)
}
