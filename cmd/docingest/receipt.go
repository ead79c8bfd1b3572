package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/ocr"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/sniffer"
)

const excerptLength = 1000

type receiptOutput struct {
	Parsed     parser.ReceiptFields `json:"parsed"`
	RawExcerpt string               `json:"raw_excerpt"`
}

func newReceiptCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "receipt <file>",
		Short: "Read merchant, total and date from a receipt image or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			logger := newLogger(cmd)
			var text string
			switch mediaType := sniffer.DetectMediaType(data); mediaType {
			case sniffer.MediaPDF:
				text, err = parser.NewPDFParser(logger).ExtractText(bytes.NewReader(data))
				if err != nil {
					return fmt.Errorf("%v: %w", args[0], err)
				}
				if strings.TrimSpace(text) == "" {
					return errors.New("PDF has no embedded text; upload an image receipt")
				}
			case sniffer.MediaJPEG, sniffer.MediaPNG, sniffer.MediaWebP:
				img, err := ocr.Preprocess(data)
				if err != nil {
					return fmt.Errorf("%v: %w", args[0], err)
				}
				text, err = ocr.NewTesseractRecognizer(language, logger).Recognize(cmd.Context(), img)
				if err != nil {
					return fmt.Errorf("%v: %w", args[0], err)
				}
			default:
				return fmt.Errorf("%v: file type %s not allowed", args[0], mediaType)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(receiptOutput{
				Parsed:     parser.ParseReceipt(text),
				RawExcerpt: normalizer.Truncate(text, excerptLength),
			})
		},
	}

	cmd.Flags().StringVar(&language, "lang", ocr.DefaultLanguage, "Tesseract language")
	return cmd
}
