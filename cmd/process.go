package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"facturas/internal/config"
	"facturas/internal/logger"
	"facturas/internal/ocr"
	"facturas/internal/pipeline"
	"facturas/pkg/models"
)

var processCmd = &cobra.Command{
	Use:   "process [pdf-file]",
	Short: "Extract and validate invoice data from a single document",
	Long: `Process one scanned invoice through the full extraction pipeline.

Every configured OCR engine reads the document; their token streams are
reconciled with the configured merge strategy into a single text. Field
values are extracted with Spanish invoice pattern heuristics. When too few
required fields are found, the refinement backend proposes values for the
gaps without overwriting anything the patterns already validated. The
finalized record is validated against the configured schema version and
emitted together with its validation report.

Required environment variables (depending on enabled engines):
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  DOCUMENT_AI_PROCESSOR_ID - Your Document AI processor ID
  OPENAI_API_KEY - Enables the refinement backend (optional)`,
	Example: `  # Process an invoice to stdout (JSON record plus validation report)
  facturas process factura.pdf

  # Save the record to a file
  facturas process factura.pdf -o factura.json

  # Force a merge strategy and schema version for this run
  facturas process factura.pdf --strategy by_line --schema v2

  # Fail the command when validation reports errors
  facturas process factura.pdf --strict`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

// ProcessOutput is the JSON envelope for single-document processing.
type ProcessOutput struct {
	Record *models.InvoiceRecord    `json:"record"`
	Report *models.ValidationReport `json:"report"`
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	processCmd.Flags().String("strategy", "", "Merge strategy override (whole_document, by_line, by_token)")
	processCmd.Flags().String("schema", "", "Schema version override (v1, v2)")
	processCmd.Flags().Int("timeout", 180, "Processing timeout in seconds")
	processCmd.Flags().Bool("strict", false, "Exit non-zero when validation reports errors")
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("process")

	outputPath, _ := cmd.Flags().GetString("output")
	strategy, _ := cmd.Flags().GetString("strategy")
	schemaVersion, _ := cmd.Flags().GetString("schema")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	strict, _ := cmd.Flags().GetBool("strict")

	pdfPath := args[0]

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Int("timeout", timeoutSecs).
		Msg("Starting invoice processing")

	if err := validateDocumentPath(pdfPath, log); err != nil {
		return err
	}

	cfg, err := loadPipelineConfig(strategy, schemaVersion)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(timeoutSecs, log)
	defer cancel()

	pipe, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	file, err := os.Open(pdfPath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", pdfPath).
			Msg("Failed to open document")
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close document")
		}
	}()

	startTime := time.Now()
	record, report := pipe.Process(ctx, pdfPath, file)

	log.Info().
		Str("document_id", record.Metadata.DocumentID).
		Str("method", string(record.Metadata.Method)).
		Bool("passed", report.Passed).
		Dur("duration", time.Since(startTime)).
		Msg("Invoice processing completed")

	output := ProcessOutput{Record: record, Report: report}
	if err := writeJSONOutput(output, outputPath, log); err != nil {
		return err
	}

	if strict && !report.Passed {
		return fmt.Errorf("validation failed with %d error(s)", len(report.Errors))
	}
	return nil
}

// validateDocumentPath applies the shared pre-flight checks for document
// arguments.
func validateDocumentPath(path string, log zerolog.Logger) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", path).
				Msg("Document not found")
			return fmt.Errorf("document not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", path).
				Msg("Permission denied accessing document")
			return fmt.Errorf("permission denied accessing document: %s", path)
		}
		return fmt.Errorf("error accessing document: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", path).
			Msg("Path is not a regular file")
		return fmt.Errorf("path is not a regular file: %s", path)
	}

	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		log.Warn().
			Str("file", path).
			Msg("File does not have .pdf extension")
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", path).
			Msg("Document is empty")
		return fmt.Errorf("document is empty: %s", path)
	}

	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxFileSizeBytes).
			Msg("Document exceeds maximum size limit")
		return fmt.Errorf("document too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), int64(ocr.MaxFileSizeBytes))
	}

	return nil
}

// loadPipelineConfig loads configuration and applies CLI overrides.
func loadPipelineConfig(strategy, schemaVersion string) (*config.Config, error) {
	if strategy != "" {
		os.Setenv("MERGE_STRATEGY", strategy)
	}
	if schemaVersion != "" {
		os.Setenv("SCHEMA_VERSION", schemaVersion)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// signalContext creates a context with timeout and interrupt handling.
func signalContext(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// buildPipeline assembles the OCR sources, the refinement backend and the
// pipeline, translating setup failures into actionable messages.
func buildPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pipeline.Pipeline, error) {
	sources, err := pipeline.BuildSources(ctx, cfg)
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			log.Error().
				Err(err).
				Msg("Google Cloud credentials not configured")
			return nil, fmt.Errorf("missing Google Cloud credentials. Please set one of:\n"+
				"  GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n"+
				"  GOOGLE_CREDENTIALS='<json-credentials>'\n"+
				"Original error: %w", err)
		}
		log.Error().
			Err(err).
			Msg("Failed to configure OCR sources")
		return nil, err
	}

	backend, err := pipeline.BuildBackend(cfg)
	if err != nil {
		log.Error().
			Err(err).
			Msg("Failed to configure refinement backend")
		return nil, err
	}
	if backend == nil {
		log.Debug().Msg("No refinement backend configured; pattern extraction only")
	}

	pipe, err := pipeline.New(cfg, sources, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return pipe, nil
}

// writeJSONOutput pretty-prints v to the output path or stdout.
func writeJSONOutput(v any, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal output to JSON")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(jsonData)).
			Msg("Output written to file")
		return nil
	}

	if _, err := os.Stdout.Write(jsonData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Println()
	return nil
}
