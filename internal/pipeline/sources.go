package pipeline

import (
	"context"
	"fmt"

	"facturas/internal/config"
	"facturas/internal/ocr"
	"facturas/internal/refine"
)

// BuildSources constructs the configured OCR engines in trust order:
// Document AI first, Cloud Vision second, Tesseract last. Engines without
// configuration are skipped; at least one must come up.
func BuildSources(ctx context.Context, cfg *config.Config) ([]ocr.Source, error) {
	var sources []ocr.Source

	if cfg.DocumentAIProcessorID != "" {
		source, err := ocr.NewDocumentAISource(ctx, ocr.DocumentAIConfig{
			ProjectID:        cfg.GoogleCloudProject,
			Location:         cfg.GoogleCloudLocation,
			ProcessorID:      cfg.DocumentAIProcessorID,
			ProcessorVersion: cfg.DocumentAIProcessorVersion,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	if cfg.GoogleCloudProject != "" {
		source, err := ocr.NewGoogleVisionSource(ctx)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	if cfg.TesseractEnabled {
		sources = append(sources, ocr.NewTesseractSource(cfg.TesseractLanguage))
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no OCR sources configured: set DOCUMENT_AI_PROCESSOR_ID, GOOGLE_CLOUD_PROJECT or TESSERACT_ENABLED")
	}
	return sources, nil
}

// BuildBackend constructs the refinement backend from configuration, or nil
// when no API key is present, which disables the refinement pass.
func BuildBackend(cfg *config.Config) (refine.Backend, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, nil
	}
	backend, err := refine.NewOpenAIBackend(refine.OpenAIConfig{
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
	})
	if err != nil {
		return nil, err
	}
	return backend, nil
}
