package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"facturas/internal/logger"
	"facturas/internal/ocr"
	"facturas/internal/pipeline"
	"facturas/internal/reconcile"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [pdf-file]",
	Short: "Run the OCR engines and print the reconciled text",
	Long: `Read one document with every configured OCR engine and print the
reconciled text without extracting fields. Useful for tuning the merge
strategy and inspecting what each engine actually saw.

With --raw, the per-engine token streams are included alongside the merged
result, so engine disagreements are visible token by token.`,
	Example: `  # Print the reconciled text
  facturas ocr factura.pdf

  # Compare merge strategies
  facturas ocr factura.pdf --strategy whole_document
  facturas ocr factura.pdf --strategy by_token

  # Include each engine's own reading
  facturas ocr factura.pdf --raw -o debug.json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is the JSON envelope for the ocr command.
type OCROutput struct {
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence_score"`
	Strategy   string         `json:"merge_strategy"`
	Engines    []string       `json:"engines"`
	Tokens     int            `json:"token_count"`
	Raw        []EngineOutput `json:"raw,omitempty"`
}

// EngineOutput is one engine's unmerged reading.
type EngineOutput struct {
	Engine     string  `json:"engine"`
	Tokens     int     `json:"token_count"`
	Confidence float64 `json:"mean_confidence"`
	Text       string  `json:"text"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().String("strategy", "", "Merge strategy override (whole_document, by_line, by_token)")
	ocrCmd.Flags().Bool("raw", false, "Include each engine's unmerged token stream")
	ocrCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	strategy, _ := cmd.Flags().GetString("strategy")
	includeRaw, _ := cmd.Flags().GetBool("raw")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]

	if err := validateDocumentPath(pdfPath, log); err != nil {
		return err
	}

	cfg, err := loadPipelineConfig(strategy, "")
	if err != nil {
		return err
	}
	parsedStrategy, err := reconcile.ParseStrategy(cfg.MergeStrategy)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(timeoutSecs, log)
	defer cancel()

	sources, err := pipeline.BuildSources(ctx, cfg)
	if err != nil {
		return err
	}

	file, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	startTime := time.Now()
	output := OCROutput{Strategy: string(parsedStrategy)}

	var sets []ocr.ObservationSet
	for _, source := range sources {
		observations, err := source.Run(ctx, bytes.NewReader(data))
		if err != nil {
			log.Warn().
				Err(err).
				Str("engine", source.Name()).
				Msg("OCR source failed; continuing without it")
			continue
		}
		sets = append(sets, observations)
		output.Engines = append(output.Engines, source.Name())
		if includeRaw {
			output.Raw = append(output.Raw, EngineOutput{
				Engine:     source.Name(),
				Tokens:     len(observations),
				Confidence: observations.MeanConfidence(),
				Text:       observations.Flatten(),
			})
		}
	}
	if len(sets) == 0 {
		return fmt.Errorf("all OCR sources failed for %s", pdfPath)
	}

	reconciler := reconcile.New(reconcile.DefaultOptions())
	doc, err := reconciler.Merge(sets[0], sets[1:], parsedStrategy)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	output.Text = doc.Text
	output.Confidence = doc.Confidence
	output.Tokens = len(doc.Observations)

	log.Info().
		Int("engines", len(output.Engines)).
		Int("tokens", output.Tokens).
		Float64("confidence", output.Confidence).
		Dur("duration", time.Since(startTime)).
		Msg("OCR reconciliation completed")

	return writeJSONOutput(output, outputPath, log)
}
