package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/ocr"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/repository"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/sniffer"
	"github.com/FACorreiaa/echo-ingest/pkg/money"
	"github.com/FACorreiaa/echo-ingest/pkg/storage"
)

// RawExcerptLength bounds the recognized text echoed back to the caller.
const RawExcerptLength = 1000

// receiptMediaTypes are the uploads a receipt may be.
var receiptMediaTypes = []string{sniffer.MediaJPEG, sniffer.MediaPNG, sniffer.MediaWebP, sniffer.MediaPDF}

// TextRecognizer reads text from a preprocessed receipt image.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// ReceiptUpload is one receipt file sent by a user
type ReceiptUpload struct {
	UserID      uuid.UUID
	Filename    string
	ContentType string
	Data        []byte
	AutoCreate  bool
}

// ReceiptResult is what a receipt upload returns
type ReceiptResult struct {
	AttachmentID  uuid.UUID            `json:"attachment_id"`
	Parsed        parser.ReceiptFields `json:"parsed"`
	TransactionID *uuid.UUID           `json:"transaction_id"`
	RawExcerpt    string               `json:"raw_excerpt"`
}

// ReceiptService stores receipts, reads them and optionally books them as expenses
type ReceiptService struct {
	repo       repository.ImportRepository
	files      storage.Storage
	docs       DocumentParser
	recognizer TextRecognizer
	currency   string
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewReceiptService creates a new receipt service
func NewReceiptService(repo repository.ImportRepository, files storage.Storage, docs DocumentParser, recognizer TextRecognizer, currency string, logger *slog.Logger) *ReceiptService {
	if currency == "" {
		currency = money.INR
	}
	return &ReceiptService{
		repo:       repo,
		files:      files,
		docs:       docs,
		recognizer: recognizer,
		currency:   currency,
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}
}

// WithMetrics records receipt outcomes
func (s *ReceiptService) WithMetrics(m *Metrics) *ReceiptService {
	s.metrics = m
	return s
}

// Ingest stores the receipt as an attachment, recognizes its text and parses
// merchant, total and date. With AutoCreate and both a total and a date, an
// expense is booked and linked to the attachment.
func (s *ReceiptService) Ingest(ctx context.Context, upload ReceiptUpload) (_ *ReceiptResult, err error) {
	ctx, span := s.tracer.Start(ctx, "ReceiptService.Ingest",
		trace.WithAttributes(
			attribute.String("user_id", upload.UserID.String()),
			attribute.String("content_type", upload.ContentType),
			attribute.Bool("auto_create", upload.AutoCreate),
		))
	defer func() { endSpan(span, err) }()

	declared, ok := sniffer.AllowedMediaType(upload.ContentType, receiptMediaTypes...)
	if !ok {
		s.metrics.receipt(OutcomeRejected)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, upload.ContentType)
	}
	// The reader follows the content when it sniffs as a receipt type.
	mediaType := sniffer.ResolveMediaType(declared, upload.Data, receiptMediaTypes...)

	attachment := &repository.Attachment{
		ID:          uuid.New(),
		UserID:      upload.UserID,
		Filename:    upload.Filename,
		ContentType: mediaType,
		SizeBytes:   int64(len(upload.Data)),
	}
	attachment.StorageKey = storage.AttachmentKey(upload.UserID, attachment.ID, upload.Filename)

	if _, err := s.files.Put(ctx, attachment.StorageKey, mediaType, bytes.NewReader(upload.Data)); err != nil {
		s.metrics.receipt(OutcomeError)
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}
	if err := s.repo.CreateAttachment(ctx, attachment); err != nil {
		s.metrics.receipt(OutcomeError)
		return nil, fmt.Errorf("failed to create attachment: %w", err)
	}

	start := time.Now()
	text, err := s.readText(ctx, mediaType, upload.Data)
	s.metrics.observeExtraction("receipt", start)
	if err != nil {
		if errors.Is(err, ErrUnparseableDocument) || errors.Is(err, ErrNoEmbeddedText) {
			s.metrics.receipt(OutcomeUnparseable)
		} else {
			s.metrics.receipt(OutcomeError)
		}
		return nil, err
	}

	fields := parser.ParseReceipt(text)
	result := &ReceiptResult{
		AttachmentID: attachment.ID,
		Parsed:       fields,
		RawExcerpt:   normalizer.Truncate(text, RawExcerptLength),
	}

	if upload.AutoCreate && fields.Complete() {
		txID, err := s.bookExpense(ctx, upload.UserID, attachment.ID, fields)
		if err != nil {
			s.metrics.receipt(OutcomeError)
			return nil, err
		}
		result.TransactionID = &txID
	}

	s.logger.Info("receipt ingested",
		slog.String("attachment_id", attachment.ID.String()),
		slog.String("content_type", mediaType),
		slog.Bool("amount_found", fields.Amount != nil),
		slog.Bool("date_found", fields.OccurredAt != nil),
		slog.Bool("transaction_created", result.TransactionID != nil),
	)
	s.metrics.receipt(OutcomeOK)
	return result, nil
}

func (s *ReceiptService) readText(ctx context.Context, mediaType string, data []byte) (string, error) {
	if mediaType == sniffer.MediaPDF {
		text, err := s.docs.ExtractText(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to read receipt pdf: %w", err)
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrNoEmbeddedText
		}
		return text, nil
	}

	img, err := ocr.Preprocess(data)
	if err != nil {
		if errors.Is(err, ocr.ErrUndecodableImage) {
			return "", fmt.Errorf("%w: %v", ErrUnparseableDocument, err)
		}
		return "", err
	}
	text, err := s.recognizer.Recognize(ctx, img)
	if err != nil {
		return "", fmt.Errorf("failed to recognize receipt: %w", err)
	}
	return text, nil
}

func (s *ReceiptService) bookExpense(ctx context.Context, userID, attachmentID uuid.UUID, fields parser.ReceiptFields) (uuid.UUID, error) {
	amount, err := money.FromDecimal(fields.Amount.Abs(), s.currency)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to convert receipt total: %w", err)
	}

	notes := parser.NotesImportedFromReceipt
	tx := &repository.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		OccurredAt:  *fields.OccurredAt,
		AmountMinor: amount.Amount(),
		Currency:    amount.Currency(),
		Type:        string(parser.TypeExpense),
		Merchant:    fields.Merchant,
		Notes:       &notes,
	}
	if err := s.repo.CreateReceiptTransaction(ctx, tx, attachmentID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create receipt transaction: %w", err)
	}
	return tx.ID, nil
}
