package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
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

const freshMartReceipt = "FRESH MART\nMain Road, Pune\nDate: 12/03/2024\nMilk 2 x 60.00\nBread 129.00\nTOTAL: 249.00\nThank you"

func receiptImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for x := 5; x < 35; x++ {
		img.SetGray(x, 10, color.Gray{Y: 0})
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, receiptImage()))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, receiptImage(), nil))
	return buf.Bytes()
}

type receiptFixture struct {
	svc        *ReceiptService
	repo       *MockImportRepository
	files      *storage.LocalStorage
	docs       *stubParser
	recognizer *stubRecognizer
	userID     uuid.UUID
}

func newReceiptFixture(t *testing.T, text string) *receiptFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &receiptFixture{
		repo:       NewMockImportRepository(),
		files:      files,
		docs:       &stubParser{text: text},
		recognizer: &stubRecognizer{text: text},
		userID:     uuid.New(),
	}
	f.svc = NewReceiptService(f.repo, files, f.docs, f.recognizer, "", testLogger())
	return f
}

func TestIngest_ImageWithAutoCreate(t *testing.T) {
	f := newReceiptFixture(t, freshMartReceipt)
	data := pngBytes(t)

	result, err := f.svc.Ingest(context.Background(), ReceiptUpload{
		UserID:      f.userID,
		Filename:    "fresh mart.png",
		ContentType: "image/png",
		Data:        data,
		AutoCreate:  true,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Parsed.Amount)
	assert.Equal(t, "249", result.Parsed.Amount.String())
	require.NotNil(t, result.Parsed.OccurredAt)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), *result.Parsed.OccurredAt)
	require.NotNil(t, result.Parsed.Merchant)
	assert.Equal(t, "FRESH MART", *result.Parsed.Merchant)
	assert.Equal(t, freshMartReceipt, result.RawExcerpt)
	assert.Equal(t, 1, f.recognizer.calls)

	require.NotNil(t, result.TransactionID)
	require.Len(t, f.repo.transactions, 1)
	tx := f.repo.transactions[0]
	assert.Equal(t, *result.TransactionID, tx.ID)
	assert.Equal(t, int64(24900), tx.AmountMinor)
	assert.Equal(t, "INR", tx.Currency)
	assert.Equal(t, string(parser.TypeExpense), tx.Type)
	assert.Equal(t, parser.NotesImportedFromReceipt, *tx.Notes)
	assert.Nil(t, tx.ImportJobID)

	attachment := f.repo.attachments[result.AttachmentID]
	require.NotNil(t, attachment)
	assert.Equal(t, tx.ID, *attachment.TransactionID)
	assert.Equal(t, "image/png", attachment.ContentType)
	assert.Equal(t, int64(len(data)), attachment.SizeBytes)

	info, err := f.files.Stat(context.Background(), attachment.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)
}

func TestIngest_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		contentType string
		data        func(t *testing.T) []byte
		autoCreate  bool
		wantTx      bool
		wantAmount  bool
		wantDate    bool
	}{
		{
			name:        "no auto create",
			text:        freshMartReceipt,
			contentType: "image/png",
			data:        pngBytes,
			wantAmount:  true,
			wantDate:    true,
		},
		{
			name:        "missing date keeps attachment only",
			text:        "CORNER SHOP\nTotal 80.00",
			contentType: "image/jpeg",
			data:        jpegBytes,
			autoCreate:  true,
			wantAmount:  true,
		},
		{
			name:        "nothing recognized",
			text:        "CORNER SHOP\nThank you",
			contentType: "image/png",
			data:        pngBytes,
			autoCreate:  true,
		},
		{
			name:        "pdf with embedded text",
			text:        freshMartReceipt,
			contentType: "application/pdf",
			data:        func(*testing.T) []byte { return fakePDF },
			autoCreate:  true,
			wantTx:      true,
			wantAmount:  true,
			wantDate:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReceiptFixture(t, tt.text)

			result, err := f.svc.Ingest(context.Background(), ReceiptUpload{
				UserID:      f.userID,
				Filename:    "receipt",
				ContentType: tt.contentType,
				Data:        tt.data(t),
				AutoCreate:  tt.autoCreate,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantTx, result.TransactionID != nil)
			assert.Equal(t, tt.wantAmount, result.Parsed.Amount != nil)
			assert.Equal(t, tt.wantDate, result.Parsed.OccurredAt != nil)
			assert.Len(t, f.repo.attachments, 1)
			if !tt.wantTx {
				assert.Empty(t, f.repo.transactions)
			}
		})
	}
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		contentType   string
		data          []byte
		wantErr       error
		wantAttachErr bool
	}{
		{
			name:        "unsupported type",
			contentType: "text/plain",
			data:        []byte("TOTAL 10"),
			wantErr:     ErrUnsupportedMediaType,
		},
		{
			name:          "declared png but pdf bytes without text",
			contentType:   "image/png",
			data:          fakePDF,
			wantErr:       ErrNoEmbeddedText,
			wantAttachErr: true,
		},
		{
			name:          "pdf without text",
			text:          "  \n ",
			contentType:   "application/pdf",
			data:          fakePDF,
			wantErr:       ErrNoEmbeddedText,
			wantAttachErr: true,
		},
		{
			name:          "undecodable image",
			contentType:   "image/png",
			data:          append([]byte("\x89PNG\r\n\x1a\n"), []byte("not really an image")...),
			wantErr:       ErrUnparseableDocument,
			wantAttachErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReceiptFixture(t, tt.text)

			_, err := f.svc.Ingest(context.Background(), ReceiptUpload{
				UserID:      f.userID,
				Filename:    "receipt",
				ContentType: tt.contentType,
				Data:        tt.data,
				AutoCreate:  true,
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.repo.transactions)
			if tt.wantAttachErr {
				assert.Len(t, f.repo.attachments, 1, "file is kept even when it cannot be read")
			} else {
				assert.Empty(t, f.repo.attachments)
			}
		})
	}
}

func TestIngest_ContentPicksReader(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		data        func(*testing.T) []byte
		wantType    string
		wantOCR     int
	}{
		{"png declared as jpeg", "image/jpeg", pngBytes, "image/png", 1},
		{"jpeg declared as webp", "image/webp", jpegBytes, "image/jpeg", 1},
		{"pdf declared as png", "image/png", func(*testing.T) []byte { return fakePDF }, "application/pdf", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReceiptFixture(t, freshMartReceipt)

			result, err := f.svc.Ingest(context.Background(), ReceiptUpload{
				UserID:      f.userID,
				Filename:    "receipt",
				ContentType: tt.contentType,
				Data:        tt.data(t),
				AutoCreate:  true,
			})
			require.NoError(t, err)
			require.NotNil(t, result.TransactionID)
			assert.Equal(t, tt.wantOCR, f.recognizer.calls)

			attachment := f.repo.attachments[result.AttachmentID]
			require.NotNil(t, attachment)
			assert.Equal(t, tt.wantType, attachment.ContentType)
		})
	}
}

func TestIngest_ExcerptIsTruncated(t *testing.T) {
	text := "BIG STORE\nTOTAL 10.00\n" + strings.Repeat("é", 2*RawExcerptLength)
	f := newReceiptFixture(t, text)

	result, err := f.svc.Ingest(context.Background(), ReceiptUpload{
		UserID:      f.userID,
		ContentType: "image/png",
		Data:        pngBytes(t),
	})
	require.NoError(t, err)
	assert.Equal(t, RawExcerptLength, len([]rune(result.RawExcerpt)))
}

func TestIngest_LinkFailureSurfaces(t *testing.T) {
	f := newReceiptFixture(t, freshMartReceipt)
	f.svc.repo = &unlinkedRepo{MockImportRepository: f.repo}

	_, err := f.svc.Ingest(context.Background(), ReceiptUpload{
		UserID:      f.userID,
		ContentType: "image/png",
		Data:        pngBytes(t),
		AutoCreate:  true,
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// unlinkedRepo loses attachments, so linking a transaction fails.
type unlinkedRepo struct {
	*MockImportRepository
}

func (r *unlinkedRepo) CreateAttachment(ctx context.Context, attachment *repository.Attachment) error {
	return nil
}

func TestReceiptMetrics(t *testing.T) {
	f := newReceiptFixture(t, freshMartReceipt)
	m := NewMetrics(prometheus.NewRegistry())
	f.svc.WithMetrics(m)

	_, err := f.svc.Ingest(context.Background(), ReceiptUpload{UserID: f.userID, ContentType: "image/png", Data: pngBytes(t)})
	require.NoError(t, err)
	_, err = f.svc.Ingest(context.Background(), ReceiptUpload{UserID: f.userID, ContentType: "text/plain", Data: []byte("x")})
	require.Error(t, err)

	f.docs.text = ""
	_, err = f.svc.Ingest(context.Background(), ReceiptUpload{UserID: f.userID, ContentType: "application/pdf", Data: fakePDF})
	require.ErrorIs(t, err, ErrNoEmbeddedText)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.receipts.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.receipts.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.receipts.WithLabelValues(OutcomeUnparseable)))
}
