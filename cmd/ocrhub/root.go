package main

import (
	"github.com/spf13/cobra"

	"github.com/azadk/ocrhub/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ocrhub",
	Short: "Asynchronous OCR job processing for Kurdish and Arabic documents",
	Long: `ocrhub processes queued OCR jobs end to end: it cleans and
recognizes page images with tesseract, composes text, PDF and Word
artifacts, charges the owner's page balance and notifies callers
through webhooks.

The server includes:
  - A bounded worker pool with a recovery poll for queued jobs
  - Per-page concurrency within each job
  - Ledger-based billing with duplicate-recharge protection
  - Payment-provider reconciliation for balance top-ups`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.ocrhub/config.yaml)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
}
