package service

import "errors"

// Domain errors returned by the import and receipt services. Handlers map
// them to status codes.
var (
	ErrUnsupportedMediaType = errors.New("file type not allowed")
	ErrUnparseableDocument  = errors.New("no tables found or unable to parse")
	ErrNoEmbeddedText       = errors.New("PDF has no embedded text; upload an image receipt")
	ErrNoRows               = errors.New("no rows to commit")
	ErrJobNotFound          = errors.New("import job not found")
	ErrSourceMissing        = errors.New("source document missing from storage")
	ErrJobNotCommittable    = errors.New("import job cannot be committed in its current status")
)
