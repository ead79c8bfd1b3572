package e2etest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/repository"
)

// memoryRepository is an in-memory ImportRepository with the same status
// guards as the Postgres one.
type memoryRepository struct {
	mu           sync.Mutex
	jobs         map[uuid.UUID]repository.ImportJob
	attachments  map[uuid.UUID]repository.Attachment
	transactions []repository.Transaction
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		jobs:        map[uuid.UUID]repository.ImportJob{},
		attachments: map[uuid.UUID]repository.Attachment{},
	}
}

func (m *memoryRepository) CreateImportJob(ctx context.Context, job *repository.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt, job.UpdatedAt = time.Now(), time.Now()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryRepository) GetImportJob(ctx context.Context, userID, jobID uuid.UUID) (*repository.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &job, nil
}

func (m *memoryRepository) update(jobID uuid.UUID, to repository.JobStatus, apply func(*repository.ImportJob)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || !repository.CanTransition(job.Status, to) {
		return repository.ErrInvalidTransition
	}
	job.Status = to
	job.UpdatedAt = time.Now()
	apply(&job)
	m.jobs[jobID] = job
	return nil
}

func (m *memoryRepository) MarkJobProcessing(ctx context.Context, jobID uuid.UUID, totalRows int) error {
	return m.update(jobID, repository.JobStatusProcessing, func(j *repository.ImportJob) { j.TotalRows = &totalRows })
}

func (m *memoryRepository) MarkJobFailed(ctx context.Context, jobID uuid.UUID, message string) error {
	return m.update(jobID, repository.JobStatusFailed, func(j *repository.ImportJob) { j.ErrorMessage = &message })
}

func (m *memoryRepository) FailStalePendingJobs(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, job := range m.jobs {
		if job.Status == repository.JobStatusPending && job.CreatedAt.Before(olderThan) {
			job.Status = repository.JobStatusFailed
			job.ErrorMessage = &message
			m.jobs[id] = job
			n++
		}
	}
	return n, nil
}

func (m *memoryRepository) CommitImport(ctx context.Context, jobID uuid.UUID, txs []*repository.Transaction, counts repository.CommitCounts) error {
	err := m.update(jobID, repository.JobStatusCompleted, func(j *repository.ImportJob) {
		j.TotalRows, j.InsertedRows, j.FailedRows = &counts.Total, &counts.Inserted, &counts.Failed
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		m.transactions = append(m.transactions, *tx)
	}
	return nil
}

func (m *memoryRepository) CreateAttachment(ctx context.Context, attachment *repository.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[attachment.ID] = *attachment
	return nil
}

func (m *memoryRepository) CreateReceiptTransaction(ctx context.Context, tx *repository.Transaction, attachmentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attachment, ok := m.attachments[attachmentID]
	if !ok || attachment.UserID != tx.UserID {
		return repository.ErrNotFound
	}
	attachment.TransactionID = &tx.ID
	m.attachments[attachmentID] = attachment
	m.transactions = append(m.transactions, *tx)
	return nil
}
