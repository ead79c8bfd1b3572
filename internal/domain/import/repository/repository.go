// Package repository provides database operations for import jobs, attachments
// and the transactions they produce.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a row does not exist or is not owned by the caller.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a job update would move it backwards.
var ErrInvalidTransition = errors.New("invalid import job status transition")

// SourcePDF is the only import source handled today.
const SourcePDF = "pdf"

// JobStatus represents the lifecycle state of an import job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// transitions lists, for each target status, the statuses a job may move from.
// completed -> completed lets a job be committed again.
var transitions = map[JobStatus][]JobStatus{
	JobStatusProcessing: {JobStatusPending},
	JobStatusFailed:     {JobStatusPending, JobStatusProcessing},
	JobStatusCompleted:  {JobStatusProcessing, JobStatusCompleted},
}

// CanTransition reports whether a job in status from may move to status to.
func CanTransition(from, to JobStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// sourcesFor returns the allowed source statuses of to as strings for SQL.
func sourcesFor(to JobStatus) []string {
	out := make([]string, 0, len(transitions[to]))
	for _, s := range transitions[to] {
		out = append(out, string(s))
	}
	return out
}

// ImportJob tracks one uploaded statement through extraction and commit
type ImportJob struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Source       string
	Status       JobStatus
	TotalRows    *int
	InsertedRows *int
	FailedRows   *int
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transaction is a persisted money movement
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ImportJobID *uuid.UUID
	OccurredAt  time.Time
	AmountMinor int64
	Currency    string
	Type        string
	Merchant    *string
	Notes       *string
	CreatedAt   time.Time
}

// Attachment is an uploaded receipt file
type Attachment struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	StorageKey    string
	Filename      string
	ContentType   string
	SizeBytes     int64
	TransactionID *uuid.UUID
	CreatedAt     time.Time
}

// CommitCounts are the row tallies written on the job when it completes
type CommitCounts struct {
	Total    int
	Inserted int
	Failed   int
}

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ImportRepository defines the interface for import persistence operations
type ImportRepository interface {
	// Import jobs
	CreateImportJob(ctx context.Context, job *ImportJob) error
	GetImportJob(ctx context.Context, userID, jobID uuid.UUID) (*ImportJob, error)
	MarkJobProcessing(ctx context.Context, jobID uuid.UUID, totalRows int) error
	MarkJobFailed(ctx context.Context, jobID uuid.UUID, message string) error
	FailStalePendingJobs(ctx context.Context, olderThan time.Time, message string) (int64, error)

	// CommitImport inserts txs and completes the job atomically.
	CommitImport(ctx context.Context, jobID uuid.UUID, txs []*Transaction, counts CommitCounts) error

	// Receipts
	CreateAttachment(ctx context.Context, attachment *Attachment) error
	CreateReceiptTransaction(ctx context.Context, tx *Transaction, attachmentID uuid.UUID) error
}
