// Package ocr defines the TextObservation model shared by all recognition
// engines and provides three Source implementations: Google Document AI,
// Google Cloud Vision, and a local Tesseract engine via gosseract.
//
// Every Source reads one document and returns its tokens with per-token
// confidence and position. Sources are ranked by trust order when handed to
// the reconciler; the Source itself is agnostic to its rank.
//
// Required Environment Variables (Google-backed sources):
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_CLOUD_PROJECT: Google Cloud project ID
//
// API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Supported formats: PDF (Google sources), PNG/JPEG (Tesseract)
package ocr

import (
	"context"
	"io"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024
)

// Source is a recognition engine that reads one document and returns its
// tokens in reading order.
type Source interface {
	// Name identifies the engine (e.g. "documentai", "vision", "tesseract").
	Name() string

	// Run recognizes the document and returns one TextObservation per
	// token, ordered by page then position.
	Run(ctx context.Context, document io.Reader) (ObservationSet, error)
}

// SourceResult pairs a source's observations with the engine that produced
// them, in the trust order chosen by the caller.
type SourceResult struct {
	Engine       string
	Observations ObservationSet
}

// readAndValidate reads the full document and applies the shared size and
// header checks used by the PDF-based sources.
func readAndValidate(engine string, document io.Reader) ([]byte, error) {
	const op = "Run"

	data, err := io.ReadAll(document)
	if err != nil {
		return nil, WrapOCRError(engine, op, err, "failed to read document data")
	}
	if len(data) > MaxFileSizeBytes {
		return nil, WrapOCRError(engine, op, ErrFileTooLarge, "synchronous limit is 20MB")
	}
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return nil, WrapOCRError(engine, op, ErrInvalidDocument, "missing PDF header")
	}
	return data, nil
}
