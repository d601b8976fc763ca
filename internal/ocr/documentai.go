package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"facturas/internal/logger"
)

// DocumentAIConfig holds configuration for the Document AI source.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project ID where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g., "us", "eu").
	Location string

	// ProcessorID is the Document AI processor ID.
	ProcessorID string

	// ProcessorVersion specifies a particular processor version.
	// If empty, uses the default version.
	ProcessorVersion string
}

// DocumentAISource reads documents through Google Document AI's OCR
// processor and converts its per-token layout into TextObservations.
type DocumentAISource struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAISource creates the source with credentials from environment.
func NewDocumentAISource(ctx context.Context, config DocumentAIConfig) (*DocumentAISource, error) {
	const op = "NewDocumentAISource"

	var clientOptions []option.ClientOption

	// Regional endpoint for non-US processors
	if config.Location != "" && config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(clientOptions) == 0 {
			return nil, WrapOCRError("documentai", op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError("documentai", op, err, fmt.Sprintf("failed to create client for location %q", config.Location))
	}

	return &DocumentAISource{
		client: client,
		config: config,
		log:    logger.WithComponent("documentai-source"),
	}, nil
}

// NewDocumentAISourceWithClient creates the source with an explicit client (for testing).
func NewDocumentAISourceWithClient(client *documentai.DocumentProcessorClient, config DocumentAIConfig) *DocumentAISource {
	return &DocumentAISource{
		client: client,
		config: config,
		log:    logger.WithComponent("documentai-source"),
	}
}

// Name identifies the engine.
func (s *DocumentAISource) Name() string { return "documentai" }

// Close releases the underlying client.
func (s *DocumentAISource) Close() error { return s.client.Close() }

// Run recognizes the document and returns one observation per token.
func (s *DocumentAISource) Run(ctx context.Context, document io.Reader) (ObservationSet, error) {
	const op = "Run"

	data, err := readAndValidate(s.Name(), document)
	if err != nil {
		return nil, err
	}

	req := &documentaipb.ProcessRequest{
		Name: s.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	}

	resp, err := s.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, WrapOCRError(s.Name(), op, err, "ProcessDocument request failed")
	}
	if resp.Document == nil {
		return nil, WrapOCRError(s.Name(), op, ErrOCRFailed, "no document in response")
	}

	observations := s.extractObservations(resp.Document)
	if len(observations) == 0 {
		return nil, WrapOCRError(s.Name(), op, ErrEmptyDocument, "")
	}

	s.log.Debug().
		Int("tokens", len(observations)).
		Int("pages", len(resp.Document.GetPages())).
		Float64("mean_confidence", observations.MeanConfidence()).
		Msg("Document AI recognition completed")

	return observations, nil
}

// extractObservations walks the document's per-page token layout.
func (s *DocumentAISource) extractObservations(doc *documentaipb.Document) ObservationSet {
	var observations ObservationSet

	for pageIndex, page := range doc.GetPages() {
		for _, token := range page.GetTokens() {
			layout := token.GetLayout()
			if layout == nil {
				continue
			}

			text := strings.TrimSpace(anchoredText(doc.GetText(), layout.GetTextAnchor()))
			if text == "" {
				continue
			}

			obs := TextObservation{
				Text:       text,
				Confidence: float64(layout.GetConfidence()),
				Page:       pageIndex,
			}
			if box := polyToRect(layout.GetBoundingPoly()); box != nil {
				obs.Box = box
			}
			observations = append(observations, obs)
		}
	}

	observations.SortReadingOrder()
	return observations
}

func (s *DocumentAISource) processorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		s.config.ProjectID, s.config.Location, s.config.ProcessorID)
	if s.config.ProcessorVersion != "" {
		name = fmt.Sprintf("%s/processorVersions/%s", name, s.config.ProcessorVersion)
	}
	return name
}

// anchoredText resolves a text anchor's segments against the full document text.
func anchoredText(fullText string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var sb strings.Builder
	for _, segment := range anchor.GetTextSegments() {
		start := int(segment.GetStartIndex())
		end := int(segment.GetEndIndex())
		if start < 0 || end > len(fullText) || start >= end {
			continue
		}
		sb.WriteString(fullText[start:end])
	}
	return sb.String()
}

// polyToRect converts a bounding poly to an axis-aligned rect. Normalized
// vertices are preferred; pixel vertices are used as-is otherwise.
func polyToRect(poly *documentaipb.BoundingPoly) *Rect {
	if poly == nil {
		return nil
	}

	if vertices := poly.GetNormalizedVertices(); len(vertices) > 0 {
		rect := &Rect{X1: float64(vertices[0].GetX()), Y1: float64(vertices[0].GetY()),
			X2: float64(vertices[0].GetX()), Y2: float64(vertices[0].GetY())}
		for _, v := range vertices[1:] {
			rect.X1 = minFloat(rect.X1, float64(v.GetX()))
			rect.Y1 = minFloat(rect.Y1, float64(v.GetY()))
			rect.X2 = maxFloat(rect.X2, float64(v.GetX()))
			rect.Y2 = maxFloat(rect.Y2, float64(v.GetY()))
		}
		return rect
	}

	vertices := poly.GetVertices()
	if len(vertices) == 0 {
		return nil
	}
	rect := &Rect{X1: float64(vertices[0].GetX()), Y1: float64(vertices[0].GetY()),
		X2: float64(vertices[0].GetX()), Y2: float64(vertices[0].GetY())}
	for _, v := range vertices[1:] {
		rect.X1 = minFloat(rect.X1, float64(v.GetX()))
		rect.Y1 = minFloat(rect.Y1, float64(v.GetY()))
		rect.X2 = maxFloat(rect.X2, float64(v.GetX()))
		rect.Y2 = maxFloat(rect.Y2, float64(v.GetY()))
	}
	return rect
}
