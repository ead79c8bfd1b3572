package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var verbose bool

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docingest",
		Short: "Extract transactions from statements and receipts",
		Long: `docingest reads bank statement PDFs and receipt images or PDFs and prints
the records the import pipeline would produce for them.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log extraction details to stderr")

	rootCmd.AddCommand(newStatementCmd(), newReceiptCmd())
	return rootCmd
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
