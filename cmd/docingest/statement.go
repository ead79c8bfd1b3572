package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/export"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/sniffer"
)

func newStatementCmd() *cobra.Command {
	var (
		format   string
		out      string
		polarity string
	)

	cmd := &cobra.Command{
		Use:   "statement <file.pdf>",
		Short: "Extract transactions from a bank statement PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			pol, err := parser.ParsePolarity(polarity)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if sniffer.DetectMediaType(data) != sniffer.MediaPDF {
				return fmt.Errorf("%v: not a PDF", args[0])
			}

			logger := newLogger(cmd)
			tables, err := parser.NewPDFParser(logger).ExtractTables(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("%v: %w", args[0], err)
			}
			result := parser.NewStatementPipeline(pol).Parse(tables)
			if len(result.Records) == 0 {
				return fmt.Errorf("%v: no tables found or unable to parse", args[0])
			}

			w := cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			if err := writeRecords(w, f, result.Records); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%d rows, %d skipped\n", len(result.Records), result.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON), "Output format: json, csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write output to a file instead of stdout")
	cmd.Flags().StringVar(&polarity, "polarity", string(parser.NegativeIsIncome), "Sign convention: negative_is_income or negative_is_expense")
	return cmd
}

func writeRecords(w io.Writer, format export.Format, records []parser.CandidateRecord) error {
	switch format {
	case export.FormatCSV:
		return export.WriteCSV(w, records)
	case export.FormatXLSX:
		return export.WriteXLSX(w, records)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
}
