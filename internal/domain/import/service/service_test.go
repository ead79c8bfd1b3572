package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/repository"
	"github.com/FACorreiaa/echo-ingest/pkg/storage"
)

var fakePDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << >>\n%%EOF\n")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statementTable(rows ...[]string) parser.RawTable {
	table := parser.RawTable{{"Date", "Description", "Amount"}}
	return append(table, rows...)
}

func numberedRows(n int) [][]string {
	rows := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, []string{"05/01/2024", fmt.Sprintf("Shop %d", i+1), fmt.Sprintf("%d.25", i+10)})
	}
	return rows
}

type importFixture struct {
	svc    *ImportService
	repo   *MockImportRepository
	files  *storage.LocalStorage
	docs   *stubParser
	userID uuid.UUID
}

func newImportFixture(t *testing.T, opts Options) *importFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &importFixture{
		repo:   NewMockImportRepository(),
		files:  files,
		docs:   &stubParser{},
		userID: uuid.New(),
	}
	f.svc = NewImportService(f.repo, files, f.docs, opts, testLogger())
	return f
}

// upload runs a successful statement upload with the given tables.
func (f *importFixture) upload(t *testing.T, tables ...parser.RawTable) *StatementPreview {
	t.Helper()
	f.docs.tables = tables
	preview, err := f.svc.UploadStatement(context.Background(), f.userID, "application/pdf", fakePDF)
	require.NoError(t, err)
	return preview
}

// ============================================================================
// UploadStatement
// ============================================================================

func TestUploadStatement_PreviewIsCapped(t *testing.T) {
	f := newImportFixture(t, Options{})

	preview := f.upload(t, statementTable(numberedRows(60)...))

	assert.Equal(t, repository.JobStatusProcessing, preview.Status)
	assert.Equal(t, 60, preview.TotalRows)
	assert.Len(t, preview.Preview, DefaultPreviewLimit)
	assert.Equal(t, "Shop 1", preview.Preview[0].Merchant)

	job := f.repo.job(preview.JobID)
	assert.Equal(t, repository.JobStatusProcessing, job.Status)
	require.NotNil(t, job.TotalRows)
	assert.Equal(t, 60, *job.TotalRows)

	_, err := f.files.Stat(context.Background(), storage.ImportKey(f.userID, preview.JobID))
	assert.NoError(t, err, "document is kept for commit")
}

func TestUploadStatement_CountsSkippedRows(t *testing.T) {
	f := newImportFixture(t, Options{PreviewLimit: 10})

	preview := f.upload(t, statementTable(
		[]string{"05/01/2024", "Coffee", "120.50"},
		[]string{"Opening balance", "", ""},
		[]string{"06/01/2024", "Salary", "-5000"},
		[]string{"07/01/2024", "", "15"},
	))

	assert.Equal(t, 3, preview.TotalRows)
	assert.Equal(t, 1, preview.Skipped)
	require.Len(t, preview.Preview, 3)

	assert.Equal(t, parser.TypeExpense, preview.Preview[0].Type)
	assert.Equal(t, "120.5", preview.Preview[0].Amount.String())
	assert.Equal(t, parser.TypeIncome, preview.Preview[1].Type)
	assert.Equal(t, "5000", preview.Preview[1].Amount.String())
	assert.Empty(t, preview.Preview[2].Merchant, "mapped but blank description stays blank")
	assert.Equal(t, parser.NotesImportedFromPDF, preview.Preview[2].Notes)
}

func TestUploadStatement_PolarityNegativeIsExpense(t *testing.T) {
	f := newImportFixture(t, Options{Polarity: parser.NegativeIsExpense})

	preview := f.upload(t, statementTable(
		[]string{"05/01/2024", "Coffee", "-120.50"},
		[]string{"06/01/2024", "Salary", "5000"},
	))

	require.Len(t, preview.Preview, 2)
	assert.Equal(t, parser.TypeExpense, preview.Preview[0].Type)
	assert.Equal(t, parser.TypeIncome, preview.Preview[1].Type)
}

func TestUploadStatement_RejectsDeclaredType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{"declared image", "image/png"},
		{"declared csv", "text/csv"},
		{"no content type", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newImportFixture(t, Options{})
			_, err := f.svc.UploadStatement(context.Background(), f.userID, tt.contentType, fakePDF)
			assert.ErrorIs(t, err, ErrUnsupportedMediaType)
			assert.Empty(t, f.repo.jobs, "no job is created for rejected uploads")
			assert.Zero(t, f.docs.calls)
		})
	}
}

func TestUploadStatement_CorruptBodyFailsJob(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"text body", []byte("this is a corrupt upload, not a pdf")},
		{"csv body", []byte("date,amount\n2024-01-05,10\n")},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newImportFixture(t, Options{})
			f.svc = NewImportService(f.repo, f.files, parser.NewPDFParser(testLogger()), Options{}, testLogger())

			_, err := f.svc.UploadStatement(context.Background(), f.userID, "application/pdf", tt.data)
			require.ErrorIs(t, err, ErrUnparseableDocument)

			require.Len(t, f.repo.jobs, 1, "the failed job is kept")
			for _, job := range f.repo.jobs {
				assert.Equal(t, repository.JobStatusFailed, job.Status)
				require.NotNil(t, job.ErrorMessage)
				assert.Equal(t, failedExtractionMessage, *job.ErrorMessage)

				_, statErr := f.files.Stat(context.Background(), storage.ImportKey(f.userID, job.ID))
				assert.NoError(t, statErr, "the upload is stored before extraction")
			}
		})
	}
}

func TestUploadStatement_NoRowsFailsJob(t *testing.T) {
	f := newImportFixture(t, Options{})
	f.docs.tables = []parser.RawTable{statementTable([]string{"not a date", "x", "y"})}

	_, err := f.svc.UploadStatement(context.Background(), f.userID, "application/pdf", fakePDF)
	require.ErrorIs(t, err, ErrUnparseableDocument)

	require.Len(t, f.repo.jobs, 1)
	for _, job := range f.repo.jobs {
		assert.Equal(t, repository.JobStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.Equal(t, failedExtractionMessage, *job.ErrorMessage)
		assert.Contains(t, err.Error(), job.ID.String())
	}
}

func TestUploadStatement_ExtractionErrorFailsJob(t *testing.T) {
	f := newImportFixture(t, Options{})
	f.docs.err = fmt.Errorf("corrupt xref")

	_, err := f.svc.UploadStatement(context.Background(), f.userID, "application/pdf", fakePDF)
	require.Error(t, err)

	for _, job := range f.repo.jobs {
		assert.Equal(t, repository.JobStatusFailed, job.Status)
	}
}

func TestUploadStatement_CreateJobError(t *testing.T) {
	f := newImportFixture(t, Options{})
	f.repo.createJobErr = fmt.Errorf("connection refused")

	_, err := f.svc.UploadStatement(context.Background(), f.userID, "application/pdf", fakePDF)
	require.Error(t, err)
	assert.Zero(t, f.docs.calls)
}

// ============================================================================
// Commit
// ============================================================================

func TestCommit_ReextractsStoredDocument(t *testing.T) {
	f := newImportFixture(t, Options{})
	preview := f.upload(t, statementTable(
		[]string{"05/01/2024", "Coffee", "120.50"},
		[]string{"06/01/2024", "Salary", "-5000"},
	))

	result, err := f.svc.Commit(context.Background(), f.userID, preview.JobID, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, f.docs.calls, "document parsed at upload and again at commit")

	require.Len(t, f.repo.transactions, 2)
	coffee := f.repo.transactions[0]
	assert.Equal(t, int64(12050), coffee.AmountMinor)
	assert.Equal(t, "INR", coffee.Currency)
	assert.Equal(t, "expense", coffee.Type)
	assert.Equal(t, "Coffee", *coffee.Merchant)
	assert.Equal(t, preview.JobID, *coffee.ImportJobID)
	assert.Equal(t, f.userID, coffee.UserID)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), coffee.OccurredAt)
	assert.Equal(t, "income", f.repo.transactions[1].Type)

	job := f.repo.job(preview.JobID)
	assert.Equal(t, repository.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, *job.InsertedRows)
	assert.Equal(t, 0, *job.FailedRows)
}

func TestCommit_ExplicitRows(t *testing.T) {
	f := newImportFixture(t, Options{Currency: "USD"})
	preview := f.upload(t, statementTable([]string{"05/01/2024", "Coffee", "120.50"}))

	var rows []CommitRow
	require.NoError(t, json.Unmarshal([]byte(`[
		{"occurred_at": "2024-01-05T00:00:00Z", "amount": "12.34", "type": "expense", "merchant": "Edited Cafe"},
		{"occurred_at": "05/01/2024", "amount": 99.5, "type": "INCOME", "merchant": ""},
		{"occurred_at": "", "amount": "1", "type": "expense"},
		{"occurred_at": "2024-01-05", "amount": "-3", "type": "expense"},
		{"occurred_at": "2024-01-05", "amount": "3", "type": "transfer"}
	]`), &rows))

	result, err := f.svc.Commit(context.Background(), f.userID, preview.JobID, rows)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 1, f.docs.calls, "explicit rows skip re-extraction")

	require.Len(t, f.repo.transactions, 2)
	assert.Equal(t, int64(1234), f.repo.transactions[0].AmountMinor)
	assert.Equal(t, "USD", f.repo.transactions[0].Currency)
	assert.Equal(t, "Edited Cafe", *f.repo.transactions[0].Merchant)
	assert.Equal(t, int64(9950), f.repo.transactions[1].AmountMinor)
	assert.Equal(t, "income", f.repo.transactions[1].Type)
	assert.Equal(t, parser.DefaultDescription, *f.repo.transactions[1].Merchant)
}

func TestCommit_AllRowsInvalidStillCompletes(t *testing.T) {
	f := newImportFixture(t, Options{})
	preview := f.upload(t, statementTable([]string{"05/01/2024", "Coffee", "120.50"}))

	rows := []CommitRow{{OccurredAt: "", Amount: json.RawMessage(`"1"`), Type: "expense"}}
	result, err := f.svc.Commit(context.Background(), f.userID, preview.JobID, rows)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, repository.JobStatusCompleted, f.repo.job(preview.JobID).Status)
}

func TestCommit_PreviewRowsRoundTrip(t *testing.T) {
	f := newImportFixture(t, Options{})
	preview := f.upload(t, statementTable(numberedRows(3)...))

	rows := make([]CommitRow, 0, len(preview.Preview))
	for _, record := range preview.Preview {
		rows = append(rows, NewCommitRow(record))
	}

	result, err := f.svc.Commit(context.Background(), f.userID, preview.JobID, rows)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, int64(1025), f.repo.transactions[0].AmountMinor)
}

// Committing a completed job is allowed and inserts the rows a second time.
func TestCommit_RepeatCommitInsertsAgain(t *testing.T) {
	f := newImportFixture(t, Options{})
	preview := f.upload(t, statementTable(numberedRows(4)...))

	_, err := f.svc.Commit(context.Background(), f.userID, preview.JobID, nil)
	require.NoError(t, err)
	_, err = f.svc.Commit(context.Background(), f.userID, preview.JobID, nil)
	require.NoError(t, err)

	assert.Len(t, f.repo.transactions, 8)
	assert.Equal(t, 2, f.repo.commits)
}

func TestCommit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *importFixture) (uuid.UUID, uuid.UUID)
		wantErr error
	}{
		{
			name: "unknown job",
			setup: func(t *testing.T, f *importFixture) (uuid.UUID, uuid.UUID) {
				return f.userID, uuid.New()
			},
			wantErr: ErrJobNotFound,
		},
		{
			name: "job owned by another user",
			setup: func(t *testing.T, f *importFixture) (uuid.UUID, uuid.UUID) {
				preview := f.upload(t, statementTable(numberedRows(1)...))
				return uuid.New(), preview.JobID
			},
			wantErr: ErrJobNotFound,
		},
		{
			name: "pending job",
			setup: func(t *testing.T, f *importFixture) (uuid.UUID, uuid.UUID) {
				job := &repository.ImportJob{UserID: f.userID, Source: repository.SourcePDF, Status: repository.JobStatusPending}
				require.NoError(t, f.repo.CreateImportJob(context.Background(), job))
				return f.userID, job.ID
			},
			wantErr: ErrJobNotCommittable,
		},
		{
			name: "failed job",
			setup: func(t *testing.T, f *importFixture) (uuid.UUID, uuid.UUID) {
				f.docs.tables = nil
				_, err := f.svc.UploadStatement(context.Background(), f.userID, "application/pdf", fakePDF)
				require.ErrorIs(t, err, ErrUnparseableDocument)
				for id := range f.repo.jobs {
					return f.userID, id
				}
				return f.userID, uuid.Nil
			},
			wantErr: ErrJobNotCommittable,
		},
		{
			name: "document deleted",
			setup: func(t *testing.T, f *importFixture) (uuid.UUID, uuid.UUID) {
				preview := f.upload(t, statementTable(numberedRows(1)...))
				require.NoError(t, f.files.Delete(context.Background(), storage.ImportKey(f.userID, preview.JobID)))
				return f.userID, preview.JobID
			},
			wantErr: ErrSourceMissing,
		},
		{
			name: "re-extraction finds nothing",
			setup: func(t *testing.T, f *importFixture) (uuid.UUID, uuid.UUID) {
				preview := f.upload(t, statementTable(numberedRows(1)...))
				f.docs.tables = nil
				return f.userID, preview.JobID
			},
			wantErr: ErrNoRows,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newImportFixture(t, Options{})
			userID, jobID := tt.setup(t, f)

			_, err := f.svc.Commit(context.Background(), userID, jobID, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.repo.transactions)
		})
	}
}

func TestCommit_RepositoryRejectsTransition(t *testing.T) {
	f := newImportFixture(t, Options{})
	preview := f.upload(t, statementTable(numberedRows(1)...))
	f.repo.commitErr = fmt.Errorf("%w: raced", repository.ErrInvalidTransition)

	_, err := f.svc.Commit(context.Background(), f.userID, preview.JobID, nil)
	assert.ErrorIs(t, err, ErrJobNotCommittable)
}

// ============================================================================
// GetJob and stale sweep
// ============================================================================

func TestGetJob(t *testing.T) {
	f := newImportFixture(t, Options{})
	preview := f.upload(t, statementTable(numberedRows(2)...))

	job, err := f.svc.GetJob(context.Background(), f.userID, preview.JobID)
	require.NoError(t, err)
	assert.Equal(t, repository.JobStatusProcessing, job.Status)

	_, err = f.svc.GetJob(context.Background(), uuid.New(), preview.JobID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestFailStaleJobs(t *testing.T) {
	f := newImportFixture(t, Options{})

	stale := &repository.ImportJob{UserID: f.userID, Status: repository.JobStatusPending}
	require.NoError(t, f.repo.CreateImportJob(context.Background(), stale))
	f.repo.jobs[stale.ID].CreatedAt = time.Now().Add(-time.Hour)

	fresh := &repository.ImportJob{UserID: f.userID, Status: repository.JobStatusPending}
	require.NoError(t, f.repo.CreateImportJob(context.Background(), fresh))

	n, err := f.svc.FailStaleJobs(context.Background(), time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, repository.JobStatusFailed, f.repo.job(stale.ID).Status)
	assert.Equal(t, StaleJobMessage, *f.repo.job(stale.ID).ErrorMessage)
	assert.Equal(t, repository.JobStatusPending, f.repo.job(fresh.ID).Status)
}

// ============================================================================
// Metrics
// ============================================================================

func TestImportMetrics(t *testing.T) {
	f := newImportFixture(t, Options{})
	m := NewMetrics(prometheus.NewRegistry())
	f.svc.WithMetrics(m)

	preview := f.upload(t, statementTable(
		[]string{"05/01/2024", "Coffee", "120.50"},
		[]string{"junk", "", ""},
	))
	_, err := f.svc.UploadStatement(context.Background(), f.userID, "text/plain", []byte("hello"))
	require.Error(t, err)

	rows := []CommitRow{
		NewCommitRow(preview.Preview[0]),
		{OccurredAt: "", Amount: json.RawMessage(`"1"`), Type: "expense"},
	}
	_, err = f.svc.Commit(context.Background(), f.userID, preview.JobID, rows)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rows.WithLabelValues("kept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rows.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitRows.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitRows.WithLabelValues("failed")))
}
