// Package storage provides file storage abstraction with local and S3 implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("storage object not found")

// ErrInvalidKey is returned for keys that would escape the storage root.
var ErrInvalidKey = errors.New("invalid storage key")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// Storage defines the interface for file storage operations. Keys are
// slash-separated and namespaced by user.
type Storage interface {
	// Put stores the content of r under key, replacing any existing object
	Put(ctx context.Context, key string, contentType string, r io.Reader) (*FileInfo, error)

	// Get opens the object stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns metadata for key without reading it
	Stat(ctx context.Context, key string) (*FileInfo, error)

	// Delete removes the object under key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// Config holds storage configuration
type Config struct {
	Type StorageType

	// Local storage config
	LocalPath string

	// S3 storage config
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string // For S3-compatible services (MinIO, etc.)
}

// New creates a new Storage implementation based on configuration
func New(ctx context.Context, cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeS3:
		return NewS3Storage(ctx, cfg)
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// ImportKey is where the source PDF of an import job is kept.
func ImportKey(userID, jobID uuid.UUID) string {
	return fmt.Sprintf("%s/import_%s.pdf", userID, jobID)
}

// AttachmentKey is where an uploaded receipt is kept.
func AttachmentKey(userID, attachmentID uuid.UUID, filename string) string {
	name := sanitizeFilename(path.Base(filename))
	if name == "" || name == "." || name == "_" {
		name = "upload"
	}
	return fmt.Sprintf("%s/%s_%s", userID, attachmentID, name)
}

// cleanKey rejects absolute keys and keys containing parent references.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return key, nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(strings.TrimSpace(name))
}
