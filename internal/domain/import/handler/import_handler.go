// Package handler exposes statement imports and receipt uploads over HTTP.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/echo-ingest/internal/domain/import/service"
	"github.com/FACorreiaa/echo-ingest/pkg/interceptors"
)

// DefaultMaxUploadBytes caps request bodies when no limit is configured.
const DefaultMaxUploadBytes = 20 << 20

// multipartMemory is how much of a multipart body is buffered in memory.
const multipartMemory = 8 << 20

// Error codes written in the {"code","detail"} body
const (
	CodeFileTypeNotAllowed = "file_type_not_allowed"
	CodeImportParseError   = "import_parse_error"
	CodeNoRows             = "no_rows"
	CodeJobNotFound        = "job_not_found"
	CodeSourceMissing      = "source_missing"
	CodeJobNotCommittable  = "job_not_committable"
	CodePayloadTooLarge    = "payload_too_large"
	CodeInvalidRequest     = "invalid_request"
	CodeInternal           = "internal_error"
)

// StatementImporter is the import service as seen by the handler
type StatementImporter interface {
	UploadStatement(ctx context.Context, userID uuid.UUID, contentType string, data []byte) (*importservice.StatementPreview, error)
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*repository.ImportJob, error)
	Commit(ctx context.Context, userID, jobID uuid.UUID, rows []importservice.CommitRow) (*importservice.CommitResult, error)
}

// ReceiptIngester is the receipt service as seen by the handler
type ReceiptIngester interface {
	Ingest(ctx context.Context, upload importservice.ReceiptUpload) (*importservice.ReceiptResult, error)
}

// ImportHandler handles import and receipt requests
type ImportHandler struct {
	importSvc      StatementImporter
	receiptSvc     ReceiptIngester
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc StatementImporter, receiptSvc ReceiptIngester, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc:      importSvc,
		receiptSvc:     receiptSvc,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger,
	}
}

// WithMaxUploadBytes sets the request body limit
func (h *ImportHandler) WithMaxUploadBytes(n int64) *ImportHandler {
	if n > 0 {
		h.maxUploadBytes = n
	}
	return h
}

// RegisterRoutes mounts the handler. Callers wrap r with authentication.
func (h *ImportHandler) RegisterRoutes(r chi.Router) {
	r.Route("/imports", func(r chi.Router) {
		r.Post("/history-pdf", h.UploadStatement)
		r.Get("/{jobID}", h.GetJob)
		r.Post("/{jobID}/commit", h.Commit)
	})
	r.Post("/uploads/receipt", h.UploadReceipt)
}

// ============================================================================
// Statements
// ============================================================================

// UploadStatement accepts a multipart statement PDF and returns the preview
func (h *ImportHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	preview, err := h.importSvc.UploadStatement(r.Context(), userID, upload.contentType, upload.data)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

// jobResponse is the JSON shape of an import job
type jobResponse struct {
	ID           uuid.UUID `json:"id"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	TotalRows    *int      `json:"total_rows"`
	InsertedRows *int      `json:"inserted_rows"`
	FailedRows   *int      `json:"failed_rows"`
	ErrorMessage *string   `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetJob returns one import job
func (h *ImportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.importSvc.GetJob(r.Context(), userID, jobID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, jobResponse{
		ID:           job.ID,
		Source:       job.Source,
		Status:       string(job.Status),
		TotalRows:    job.TotalRows,
		InsertedRows: job.InsertedRows,
		FailedRows:   job.FailedRows,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	})
}

// Commit persists a job's rows. The body may be empty, a JSON array of
// preview rows or an object with a "rows" array.
func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		if isTooLarge(err) {
			respondError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body")
		return
	}

	rows, err := decodeCommitRows(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	result, err := h.importSvc.Commit(r.Context(), userID, jobID, rows)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func decodeCommitRows(body []byte) ([]importservice.CommitRow, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var rows []importservice.CommitRow
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("invalid rows: %w", err)
		}
	case '{':
		var wrapped struct {
			Rows []importservice.CommitRow `json:"rows"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("invalid rows: %w", err)
		}
		rows = wrapped.Rows
	default:
		return nil, errors.New("body must be a JSON array of rows or an object with rows")
	}
	return rows, nil
}

// ============================================================================
// Receipts
// ============================================================================

// UploadReceipt accepts a multipart receipt image or PDF
func (h *ImportHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	// auto_create_tx defaults to true
	autoCreate := true
	if v := r.URL.Query().Get("auto_create_tx"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "auto_create_tx must be a boolean")
			return
		}
		autoCreate = parsed
	}

	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.receiptSvc.Ingest(r.Context(), importservice.ReceiptUpload{
		UserID:      userID,
		Filename:    upload.filename,
		ContentType: upload.contentType,
		Data:        upload.data,
		AutoCreate:  autoCreate,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ============================================================================
// Helpers
// ============================================================================

type fileUpload struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload reads the multipart "file" field, writing an error response
// when it is missing or the body is over the limit.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (*fileUpload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			respondError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "upload exceeds size limit")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "expected multipart form with a file field")
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "missing file field")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, CodeInternal, "failed to read upload")
		return nil, false
	}

	return &fileUpload{
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		data:        data,
	}, true
}

func (h *ImportHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, interceptors.CodeUnauthenticated, "authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		respondError(w, http.StatusUnauthorized, interceptors.CodeUnauthenticated, "invalid user id")
		return uuid.Nil, false
	}
	return userID, true
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		// Malformed IDs cannot name an existing job.
		respondError(w, http.StatusNotFound, CodeJobNotFound, importservice.ErrJobNotFound.Error())
		return uuid.Nil, false
	}
	return jobID, true
}

// errorStatus maps service errors to a status and code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, importservice.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, CodeFileTypeNotAllowed
	case errors.Is(err, importservice.ErrUnparseableDocument),
		errors.Is(err, importservice.ErrNoEmbeddedText):
		return http.StatusUnprocessableEntity, CodeImportParseError
	case errors.Is(err, importservice.ErrNoRows):
		return http.StatusUnprocessableEntity, CodeNoRows
	case errors.Is(err, importservice.ErrJobNotFound):
		return http.StatusNotFound, CodeJobNotFound
	case errors.Is(err, importservice.ErrSourceMissing):
		return http.StatusNotFound, CodeSourceMissing
	case errors.Is(err, importservice.ErrJobNotCommittable):
		return http.StatusConflict, CodeJobNotCommittable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (h *ImportHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		detail = "internal error"
	}
	respondError(w, status, code, detail)
}

// isTooLarge also matches multipart errors that flatten the MaxBytesError.
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

type errorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, errorBody{Code: code, Detail: detail})
}
