package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"facturas/internal/logger"
)

// GoogleVisionSource reads PDF documents through Google Cloud Vision's
// document text detection and converts word annotations into
// TextObservations.
type GoogleVisionSource struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewGoogleVisionSource creates the source with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionSource(ctx context.Context) (*GoogleVisionSource, error) {
	const op = "NewGoogleVisionSource"

	var client *vision.ImageAnnotatorClient
	var err error

	// Check for inline credentials first
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError("vision", op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError("vision", op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError("vision", op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &GoogleVisionSource{
		client: client,
		log:    logger.WithComponent("vision-source"),
	}, nil
}

// NewGoogleVisionSourceWithClient creates the source with an explicit client (for testing).
func NewGoogleVisionSourceWithClient(client *vision.ImageAnnotatorClient) *GoogleVisionSource {
	return &GoogleVisionSource{
		client: client,
		log:    logger.WithComponent("vision-source"),
	}
}

// Name identifies the engine.
func (s *GoogleVisionSource) Name() string { return "vision" }

// Close closes the underlying Vision client.
func (s *GoogleVisionSource) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Run recognizes the document and returns one observation per word.
func (s *GoogleVisionSource) Run(ctx context.Context, document io.Reader) (ObservationSet, error) {
	const op = "Run"

	data, err := readAndValidate(s.Name(), document)
	if err != nil {
		return nil, err
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := s.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, WrapOCRError(s.Name(), op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(s.Name(), op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, WrapOCRError(s.Name(), op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	observations, err := s.extractObservations(fileResp)
	if err != nil {
		return nil, WrapOCRError(s.Name(), op, err, "failed to process Vision API response")
	}

	s.log.Debug().
		Int("tokens", len(observations)).
		Int("pages", len(fileResp.Responses)).
		Float64("mean_confidence", observations.MeanConfidence()).
		Msg("Vision recognition completed")

	return observations, nil
}

// extractObservations walks the full text annotation down to word level.
// Vision reports confidence per word and bounding boxes in pixel space.
func (s *GoogleVisionSource) extractObservations(fileResp *visionpb.AnnotateFileResponse) (ObservationSet, error) {
	if len(fileResp.Responses) == 0 {
		return nil, ErrEmptyDocument
	}

	var observations ObservationSet

	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return nil, fmt.Errorf("error processing page %d: %s", pageIdx+1, page.Error.Message)
		}
		if page.FullTextAnnotation == nil {
			continue
		}

		for _, pageInfo := range page.FullTextAnnotation.Pages {
			for _, block := range pageInfo.Blocks {
				for _, paragraph := range block.Paragraphs {
					for _, word := range paragraph.Words {
						text := wordText(word)
						if text == "" {
							continue
						}
						obs := TextObservation{
							Text:       text,
							Confidence: float64(word.Confidence),
							Page:       pageIdx,
						}
						if box := visionBoxToRect(word.BoundingBox); box != nil {
							obs.Box = box
						}
						observations = append(observations, obs)
					}
				}
			}
		}
	}

	if len(observations) == 0 {
		return nil, ErrEmptyDocument
	}

	observations.SortReadingOrder()
	return observations, nil
}

// wordText joins a word's symbols into one token.
func wordText(word *visionpb.Word) string {
	var sb strings.Builder
	for _, symbol := range word.Symbols {
		sb.WriteString(symbol.Text)
	}
	return strings.TrimSpace(sb.String())
}

// visionBoxToRect converts a Vision bounding poly to an axis-aligned rect.
func visionBoxToRect(poly *visionpb.BoundingPoly) *Rect {
	if poly == nil || len(poly.Vertices) == 0 {
		return nil
	}
	rect := &Rect{X1: float64(poly.Vertices[0].X), Y1: float64(poly.Vertices[0].Y),
		X2: float64(poly.Vertices[0].X), Y2: float64(poly.Vertices[0].Y)}
	for _, v := range poly.Vertices[1:] {
		rect.X1 = minFloat(rect.X1, float64(v.X))
		rect.Y1 = minFloat(rect.Y1, float64(v.Y))
		rect.X2 = maxFloat(rect.X2, float64(v.X))
		rect.Y2 = maxFloat(rect.Y2, float64(v.Y))
	}
	return rect
}
