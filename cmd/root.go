package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"facturas/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "facturas",
	Short: "Facturas CLI - Spanish invoice OCR extraction and validation",
	Long: `Facturas CLI turns scanned Spanish invoices into validated, structured
records. Multiple OCR engines read each document; their observations are
reconciled into a single text, field values are extracted with pattern
heuristics, optionally refined through an LLM backend, and validated
against a versioned invoice schema.

This application is built with Go and Cobra, making it easy to extend
with additional subcommands as needed.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Facturas CLI executed")

		fmt.Println("Welcome to Facturas CLI!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
