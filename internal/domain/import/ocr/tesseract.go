package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is the Tesseract language used when none is configured.
const DefaultLanguage = "eng"

// TesseractRecognizer runs Tesseract over preprocessed receipt images.
type TesseractRecognizer struct {
	language string
	logger   *slog.Logger
}

// NewTesseractRecognizer creates a recognizer for the given Tesseract language.
func NewTesseractRecognizer(language string, logger *slog.Logger) *TesseractRecognizer {
	if language == "" {
		language = DefaultLanguage
	}
	return &TesseractRecognizer{language: language, logger: logger}
}

// Recognize returns the raw text Tesseract reads from img. The page is read
// as a single column of text of variable sizes, the layout of a receipt strip.
func (r *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image for ocr: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.language); err != nil {
		return "", fmt.Errorf("failed to set ocr language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_COLUMN); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load image into ocr: %w", err)
	}

	start := time.Now()
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to recognize text: %w", err)
	}

	r.logger.Debug("ocr completed",
		slog.String("language", r.language),
		slog.Int("chars", len(text)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
