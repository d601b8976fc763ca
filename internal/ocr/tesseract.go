package ocr

import (
	"context"
	"io"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"facturas/internal/logger"
)

// TesseractSource is a local fallback engine backed by gosseract. It reads
// image documents (PNG/JPEG) directly; PDF inputs must be rasterized by the
// caller's preprocessing step.
type TesseractSource struct {
	language      string
	clientFactory func() *gosseract.Client
	log           zerolog.Logger
}

// NewTesseractSource constructs a Tesseract-backed source for the given
// language (e.g. "spa").
func NewTesseractSource(language string) *TesseractSource {
	if language == "" {
		language = "spa"
	}
	return &TesseractSource{
		language:      language,
		clientFactory: gosseract.NewClient,
		log:           logger.WithComponent("tesseract-source"),
	}
}

// Name identifies the engine.
func (s *TesseractSource) Name() string { return "tesseract" }

// Run recognizes the image and returns one observation per word, with
// confidence and bounding boxes from Tesseract's word-level iterator.
func (s *TesseractSource) Run(ctx context.Context, document io.Reader) (ObservationSet, error) {
	const op = "Run"

	data, err := io.ReadAll(document)
	if err != nil {
		return nil, WrapOCRError(s.Name(), op, err, "failed to read document data")
	}
	if len(data) == 0 {
		return nil, WrapOCRError(s.Name(), op, ErrInvalidDocument, "empty input")
	}

	select {
	case <-ctx.Done():
		return nil, WrapOCRError(s.Name(), op, ctx.Err(), "")
	default:
	}

	client := s.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(data); err != nil {
		return nil, WrapOCRError(s.Name(), op, err, "set image")
	}
	if err := client.SetLanguage(s.language); err != nil {
		return nil, WrapOCRError(s.Name(), op, err, "set language")
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, WrapOCRError(s.Name(), op, ErrOCRFailed, "word iterator failed")
	}
	if len(boxes) == 0 {
		return nil, WrapOCRError(s.Name(), op, ErrEmptyDocument, "")
	}

	observations := make(ObservationSet, 0, len(boxes))
	for _, b := range boxes {
		if b.Word == "" {
			continue
		}
		observations = append(observations, TextObservation{
			Text: b.Word,
			// Tesseract reports confidence in 0-100
			Confidence: b.Confidence / 100.0,
			Box: &Rect{
				X1: float64(b.Box.Min.X),
				Y1: float64(b.Box.Min.Y),
				X2: float64(b.Box.Max.X),
				Y2: float64(b.Box.Max.Y),
			},
		})
	}

	if len(observations) == 0 {
		return nil, WrapOCRError(s.Name(), op, ErrEmptyDocument, "")
	}

	observations.SortReadingOrder()

	s.log.Debug().
		Int("tokens", len(observations)).
		Float64("mean_confidence", observations.MeanConfidence()).
		Msg("Tesseract recognition completed")

	return observations, nil
}
