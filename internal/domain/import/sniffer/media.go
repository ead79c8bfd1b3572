package sniffer

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MediaPDF  = "application/pdf"
	MediaJPEG = "image/jpeg"
	MediaPNG  = "image/png"
	MediaWebP = "image/webp"
)

// NormalizeMediaType strips parameters and lower-cases a declared content type.
func NormalizeMediaType(declared string) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mediaType
}

// DetectMediaType sniffs data and returns its media type without parameters.
func DetectMediaType(data []byte) string {
	return NormalizeMediaType(mimetype.Detect(data).String())
}

// AllowedMediaType normalizes the declared type and reports whether it is in
// allowed. The content itself is not inspected.
func AllowedMediaType(declared string, allowed ...string) (string, bool) {
	mediaType := NormalizeMediaType(declared)
	return mediaType, contains(allowed, mediaType)
}

// ResolveMediaType returns the sniffed type of data when it is one of allowed,
// and the normalized declared type otherwise.
func ResolveMediaType(declared string, data []byte, allowed ...string) string {
	if detected := DetectMediaType(data); contains(allowed, detected) {
		return detected
	}
	return NormalizeMediaType(declared)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
