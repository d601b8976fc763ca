// Package pipeline wires the full processing chain for one document: OCR
// fan-out, reconciliation, pattern extraction, the optional refinement pass,
// and schema-driven normalization. The pipeline always returns a complete
// record; processing failures degrade to a sentinel-filled record with the
// failure recorded in its validation report.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"facturas/internal/config"
	"facturas/internal/extract"
	"facturas/internal/logger"
	"facturas/internal/normalize"
	"facturas/internal/ocr"
	"facturas/internal/reconcile"
	"facturas/internal/refine"
	"facturas/internal/schema"
	"facturas/pkg/models"
)

// Pipeline processes one document at a time. It is safe for concurrent use:
// all mutable state lives in per-call locals.
type Pipeline struct {
	sources    []ocr.Source
	reconciler *reconcile.Reconciler
	strategy   reconcile.Strategy
	extractor  *extract.Extractor
	controller *refine.Controller
	normalizer *normalize.Normalizer
	provider   *schema.Provider
	log        zerolog.Logger
}

// New assembles a Pipeline from configuration. Sources must be given in
// trust order; the first is the primary engine. A nil backend disables the
// refinement pass.
func New(cfg *config.Config, sources []ocr.Source, backend refine.Backend) (*Pipeline, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("pipeline: at least one OCR source is required")
	}

	strategy, err := reconcile.ParseStrategy(cfg.MergeStrategy)
	if err != nil {
		return nil, err
	}

	provider, err := schema.Load(cfg.SchemaVersion)
	if err != nil {
		return nil, err
	}

	normalizer := normalize.New(provider)

	return &Pipeline{
		sources:    sources,
		reconciler: reconcile.New(reconcile.DefaultOptions()),
		strategy:   strategy,
		extractor:  extract.New(provider.FieldNames()),
		controller: refine.NewController(backend, normalizer, cfg.FallbackTriggerThreshold, cfg.RefineTimeout),
		normalizer: normalizer,
		provider:   provider,
		log:        logger.WithComponent("pipeline"),
	}, nil
}

// Provider exposes the schema version the pipeline validates against.
func (p *Pipeline) Provider() *schema.Provider { return p.provider }

// Process runs the full chain over one document and returns the finalized
// record with its validation report. The record's field key set always
// equals the schema's declared properties, whatever went wrong upstream.
func (p *Pipeline) Process(ctx context.Context, sourceFile string, document io.Reader) (*models.InvoiceRecord, *models.ValidationReport) {
	meta := models.RecordMetadata{
		DocumentID:    uuid.NewString(),
		SourceFile:    sourceFile,
		Method:        models.MethodPattern,
		MergeStrategy: string(p.strategy),
	}
	log := p.log.With().Str("document_id", meta.DocumentID).Logger()

	data, err := io.ReadAll(document)
	if err != nil {
		return p.degraded(meta, fmt.Sprintf("failed to read document: %v", err))
	}

	results := p.runSources(ctx, log, data)
	if len(results) == 0 {
		return p.degraded(meta, "all OCR sources failed")
	}
	for _, res := range results {
		meta.Engines = append(meta.Engines, res.Engine)
	}

	fallbacks := make([]ocr.ObservationSet, 0, len(results)-1)
	for _, res := range results[1:] {
		fallbacks = append(fallbacks, res.Observations)
	}
	doc, err := p.reconciler.Merge(results[0].Observations, fallbacks, p.strategy)
	if err != nil {
		return p.degraded(meta, fmt.Sprintf("reconciliation failed: %v", err))
	}
	meta.Confidence = doc.Confidence

	extracted, err := p.extractor.Extract(doc.Text)
	if err != nil {
		return p.degraded(meta, "document produced no text")
	}

	candidates, outcome := p.controller.Apply(ctx, doc.Text, extracted.Candidates, p.provider)
	meta.Method = overallMethod(len(extracted.Candidates), outcome)

	record, report := p.normalizer.Finalize(candidates, extracted.LineItems, meta)

	log.Info().
		Str("method", string(meta.Method)).
		Str("refinement", outcome.State.String()).
		Float64("confidence", meta.Confidence).
		Bool("passed", report.Passed).
		Msg("Document processed")

	return record, report
}

// runSources fans the document out to every engine concurrently and returns
// the successful results in trust order. Engine failures are recoverable:
// they cost coverage, not the document.
func (p *Pipeline) runSources(ctx context.Context, log zerolog.Logger, data []byte) []ocr.SourceResult {
	type outcome struct {
		observations ocr.ObservationSet
		err          error
	}
	outcomes := make([]outcome, len(p.sources))

	var wg sync.WaitGroup
	for i, source := range p.sources {
		wg.Add(1)
		go func(i int, source ocr.Source) {
			defer wg.Done()
			observations, err := source.Run(ctx, bytes.NewReader(data))
			outcomes[i] = outcome{observations: observations, err: err}
		}(i, source)
	}
	wg.Wait()

	results := make([]ocr.SourceResult, 0, len(p.sources))
	for i, source := range p.sources {
		if outcomes[i].err != nil {
			log.Warn().
				Err(outcomes[i].err).
				Str("engine", source.Name()).
				Msg("OCR source failed; continuing without it")
			continue
		}
		results = append(results, ocr.SourceResult{
			Engine:       source.Name(),
			Observations: outcomes[i].observations,
		})
	}
	return results
}

// degraded builds the sentinel-filled record for a document that never
// reached extraction. Finalize fills every required field with the sentinel
// and records the per-field errors; the processing failure itself is added
// on top.
func (p *Pipeline) degraded(meta models.RecordMetadata, reason string) (*models.InvoiceRecord, *models.ValidationReport) {
	p.log.Error().
		Str("document_id", meta.DocumentID).
		Str("reason", reason).
		Msg("Processing degraded to sentinel record")

	record, report := p.normalizer.Finalize(nil, nil, meta)
	report.AddError("document", reason)
	report.Finalize()
	return record, report
}

// overallMethod classifies the record: pattern when refinement contributed
// nothing, fallback when it contributed everything, hybrid otherwise.
func overallMethod(patternFields int, outcome refine.Outcome) models.ExtractionMethod {
	if outcome.State != refine.StateMerged || outcome.Accepted == 0 {
		return models.MethodPattern
	}
	if patternFields == 0 {
		return models.MethodFallback
	}
	return models.MethodHybrid
}
