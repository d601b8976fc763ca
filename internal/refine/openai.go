package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"facturas/internal/logger"
	"facturas/internal/schema"
)

// OpenAIConfig configures the OpenAI refinement backend.
type OpenAIConfig struct {
	Model       string  // e.g. gpt-4o
	Temperature float32 // 0 keeps extraction deterministic
}

// OpenAIBackend refines extraction via a JSON-mode chat completion.
type OpenAIBackend struct {
	client *openai.Client
	config OpenAIConfig
	log    zerolog.Logger
}

// NewOpenAIBackend creates the backend with the API key from environment.
func NewOpenAIBackend(config OpenAIConfig) (*OpenAIBackend, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.Model == "" {
		config.Model = openai.GPT4o
	}
	return &OpenAIBackend{
		client: openai.NewClient(apiKey),
		config: config,
		log:    logger.WithComponent("openai-backend"),
	}, nil
}

// NewOpenAIBackendWithClient creates the backend with an explicit client (for testing).
func NewOpenAIBackendWithClient(client *openai.Client, config OpenAIConfig) *OpenAIBackend {
	return &OpenAIBackend{
		client: client,
		config: config,
		log:    logger.WithComponent("openai-backend"),
	}
}

// Name identifies the backend.
func (b *OpenAIBackend) Name() string { return "openai" }

// Refine asks the model for the schema's fields as a flat JSON object.
func (b *OpenAIBackend) Refine(ctx context.Context, documentText string, partial map[string]string, provider *schema.Provider) (map[string]string, error) {
	const op = "Refine"

	partialJSON, err := json.Marshal(partial)
	if err != nil {
		return nil, WrapRefinementError(b.Name(), op, err, "failed to encode partial record")
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.config.Model,
		Temperature: b.config.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: b.systemPrompt(provider),
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("OCR text:\n\n%s\n\nFields already extracted:\n\n%s",
					documentText, partialJSON),
			},
		},
	})
	if err != nil {
		return nil, WrapRefinementError(b.Name(), op, ErrBackendFailed, err.Error())
	}
	if len(resp.Choices) == 0 {
		return nil, WrapRefinementError(b.Name(), op, ErrBadResponse, "no choices in response")
	}

	fields, err := decodeFieldObject(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, WrapRefinementError(b.Name(), op, ErrBadResponse, err.Error())
	}

	b.log.Debug().
		Int("fields", len(fields)).
		Str("model", b.config.Model).
		Msg("Refinement response parsed")

	return fields, nil
}

// systemPrompt enumerates the schema's scalar fields so the model answers
// with exactly the keys the merge policy understands.
func (b *OpenAIBackend) systemPrompt(provider *schema.Provider) string {
	var sb strings.Builder
	sb.WriteString("You are an expert at reading Spanish invoices (facturas). ")
	sb.WriteString("Extract the following fields from the OCR text and answer with a single flat JSON object. ")
	sb.WriteString("Omit any field you cannot find; never invent values.\n\nFields:\n")
	for _, name := range provider.FieldNames() {
		spec, _ := provider.Spec(name)
		if spec.Kind == schema.KindArray {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(name)
		if len(spec.Enum) > 0 {
			sb.WriteString(" (one of: ")
			sb.WriteString(strings.Join(spec.Enum, ", "))
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// decodeFieldObject tolerates numeric values in the model's JSON by
// stringifying everything scalar and dropping the rest.
func decodeFieldObject(content string) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			if v != "" {
				fields[name] = v
			}
		case float64:
			fields[name] = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
		case bool:
			fields[name] = fmt.Sprintf("%t", v)
		}
	}
	return fields, nil
}
