package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facturas/internal/export"
	"facturas/internal/logger"
	"facturas/internal/pipeline"
	"facturas/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch [directory]",
	Short: "Process every invoice in a directory on a worker pool",
	Long: `Process all PDF documents in a directory through the extraction
pipeline concurrently and export the finalized records in one output.

Documents are distributed over a fixed worker pool (BATCH_CONCURRENCY,
default 4). Each document gets its own record and validation report; a
document that fails OCR entirely still produces a sentinel-filled record,
so the output row count always matches the input document count.

Supported output formats:
  json - array of records with validation reports
  csv  - one row per record, schema fields plus metadata columns
  xlsx - workbook with a record sheet and a flattened line-item sheet`,
	Example: `  # Process a quarter's invoices into an XLSX workbook
  facturas batch ./2025-Q3 --format xlsx -o 2025-Q3.xlsx

  # Process into CSV with eight workers
  BATCH_CONCURRENCY=8 facturas batch ./facturas --format csv -o facturas.csv

  # JSON array on stdout
  facturas batch ./facturas`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	batchCmd.Flags().String("format", "json", "Output format: json, csv or xlsx")
	batchCmd.Flags().String("strategy", "", "Merge strategy override (whole_document, by_line, by_token)")
	batchCmd.Flags().String("schema", "", "Schema version override (v1, v2)")
	batchCmd.Flags().Int("timeout", 180, "Per-document timeout in seconds")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	outputPath, _ := cmd.Flags().GetString("output")
	formatName, _ := cmd.Flags().GetString("format")
	strategy, _ := cmd.Flags().GetString("strategy")
	schemaVersion, _ := cmd.Flags().GetString("schema")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	dir := args[0]

	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	paths, err := collectDocuments(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDF documents found in %s", dir)
	}

	log.Info().
		Str("directory", dir).
		Int("documents", len(paths)).
		Str("format", string(format)).
		Msg("Starting batch processing")

	cfg, err := loadPipelineConfig(strategy, schemaVersion)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pipe, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	queue := pipeline.NewQueue(pipe,
		pipeline.WithWorkers(cfg.BatchConcurrency),
		pipeline.WithJobTimeout(time.Duration(timeoutSecs)*time.Second),
	)

	go func() {
		for _, path := range paths {
			queue.Enqueue(pipeline.Job{Path: path})
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		queue.Shutdown(shutdownCtx)
	}()

	startTime := time.Now()
	records := make([]*models.InvoiceRecord, 0, len(paths))
	passed, failed := 0, 0
	for result := range queue.Results() {
		if result.Err != nil {
			failed++
			continue
		}
		records = append(records, result.Record)
		if result.Report.Passed {
			passed++
		}
	}

	// Queue workers finish in arbitrary order; restore input order.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Metadata.SourceFile < records[j].Metadata.SourceFile
	})

	log.Info().
		Int("processed", len(records)).
		Int("passed", passed).
		Int("unreadable", failed).
		Dur("duration", time.Since(startTime)).
		Msg("Batch processing completed")

	if err := writeExport(format, pipe.Provider().FieldNames(), records, outputPath); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d document(s) could not be read", failed)
	}
	return nil
}

// collectDocuments returns the PDF paths directly inside dir, sorted.
func collectDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// writeExport serializes the records with the chosen writer.
func writeExport(format export.Format, fields []string, records []*models.InvoiceRecord, outputPath string) error {
	writer, err := export.NewWriter(format, fields)
	if err != nil {
		return err
	}

	out := os.Stdout
	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	if err := writer.Write(out, records); err != nil {
		return fmt.Errorf("failed to write %s output: %w", format, err)
	}
	return nil
}
