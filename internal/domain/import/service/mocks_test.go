package service

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/repository"
)

// MockImportRepository is an in-memory ImportRepository that enforces the
// same status transitions as the SQL guards.
type MockImportRepository struct {
	mu           sync.Mutex
	jobs         map[uuid.UUID]*repository.ImportJob
	attachments  map[uuid.UUID]*repository.Attachment
	transactions []*repository.Transaction
	commits      int

	createJobErr error
	commitErr    error
}

func NewMockImportRepository() *MockImportRepository {
	return &MockImportRepository{
		jobs:        map[uuid.UUID]*repository.ImportJob{},
		attachments: map[uuid.UUID]*repository.Attachment{},
	}
}

func (m *MockImportRepository) CreateImportJob(ctx context.Context, job *repository.ImportJob) error {
	if m.createJobErr != nil {
		return m.createJobErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *MockImportRepository) GetImportJob(ctx context.Context, userID, jobID uuid.UUID) (*repository.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, repository.ErrNotFound
	}
	out := *job
	return &out, nil
}

func (m *MockImportRepository) transition(jobID uuid.UUID, to repository.JobStatus) (*repository.ImportJob, error) {
	job, ok := m.jobs[jobID]
	if !ok || !repository.CanTransition(job.Status, to) {
		return nil, repository.ErrInvalidTransition
	}
	job.Status = to
	job.UpdatedAt = time.Now()
	return job, nil
}

func (m *MockImportRepository) MarkJobProcessing(ctx context.Context, jobID uuid.UUID, totalRows int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.transition(jobID, repository.JobStatusProcessing)
	if err != nil {
		return err
	}
	job.TotalRows = &totalRows
	return nil
}

func (m *MockImportRepository) MarkJobFailed(ctx context.Context, jobID uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.transition(jobID, repository.JobStatusFailed)
	if err != nil {
		return err
	}
	job.ErrorMessage = &message
	return nil
}

func (m *MockImportRepository) FailStalePendingJobs(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, job := range m.jobs {
		if job.Status == repository.JobStatusPending && job.CreatedAt.Before(olderThan) {
			msg := message
			job.Status = repository.JobStatusFailed
			job.ErrorMessage = &msg
			n++
		}
	}
	return n, nil
}

func (m *MockImportRepository) CommitImport(ctx context.Context, jobID uuid.UUID, txs []*repository.Transaction, counts repository.CommitCounts) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.transition(jobID, repository.JobStatusCompleted)
	if err != nil {
		return err
	}
	job.TotalRows = &counts.Total
	job.InsertedRows = &counts.Inserted
	job.FailedRows = &counts.Failed
	m.transactions = append(m.transactions, txs...)
	m.commits++
	return nil
}

func (m *MockImportRepository) CreateAttachment(ctx context.Context, attachment *repository.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *attachment
	m.attachments[attachment.ID] = &stored
	return nil
}

func (m *MockImportRepository) CreateReceiptTransaction(ctx context.Context, tx *repository.Transaction, attachmentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attachment, ok := m.attachments[attachmentID]
	if !ok {
		return repository.ErrNotFound
	}
	id := tx.ID
	attachment.TransactionID = &id
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *MockImportRepository) job(id uuid.UUID) repository.ImportJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

// stubParser returns canned tables and text.
type stubParser struct {
	tables []parser.RawTable
	text   string
	err    error
	calls  int
}

func (p *stubParser) ExtractTables(r io.Reader) ([]parser.RawTable, error) {
	p.calls++
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return p.tables, p.err
}

func (p *stubParser) ExtractText(r io.Reader) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return p.text, p.err
}

// stubRecognizer returns canned OCR text.
type stubRecognizer struct {
	text  string
	err   error
	calls int
}

func (r *stubRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	r.calls++
	if img == nil {
		return "", errors.New("nil image")
	}
	return r.text, r.err
}
