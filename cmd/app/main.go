package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "github.com/local/bookdigitizer/internal/config"
	logpkg "github.com/local/bookdigitizer/internal/logger"
	"github.com/local/bookdigitizer/internal/metrics"
)

const version = "0.1.0"

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
	logpkg.Close()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookdigitizer",
		Short: "Digitize scanned book pages: OCR, AI structuring, searchable storage",
		Long: `bookdigitizer turns directories of scanned book pages (or multi-page PDFs)
into a searchable, structured archive: raw pixels, cleaned text, classified
metadata, and a queryable store.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env if present (ignore errors)
			_ = godotenv.Load()

			cfg := cfgpkg.FromEnv()
			err := logpkg.Init(logpkg.Options{
				Level:        cfg.Logging.Level,
				Pretty:       cfg.Logging.Pretty,
				File:         cfg.Logging.File,
				MaxSizeMB:    cfg.Logging.MaxSizeMB,
				MaxBackups:   cfg.Logging.MaxBackups,
				MaxAgeDays:   cfg.Logging.MaxAgeDays,
				Compress:     cfg.Logging.Compress,
				SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
				AxiomAPIKey:  cfg.Axiom.APIKey,
				AxiomOrgID:   cfg.Axiom.OrgID,
				AxiomDataset: cfg.Axiom.Dataset,
				AxiomFlush:   cfg.Axiom.FlushInterval,
			})
			if err != nil {
				// continue with zerolog's default stderr logger
				fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
			}
			metrics.Init()
		},
	}

	cmd.AddCommand(
		newInitCmd(),
		newDigitizeCmd(),
		newListCmd(),
		newPagesCmd(),
		newSearchCmd(),
		newThemesCmd(),
		newThemeCmd(),
	)
	return cmd
}
