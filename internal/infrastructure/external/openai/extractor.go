package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docuflow/docuflow/internal/application/port"
)

// Extractor implements port.FieldExtractor using the OpenAI vision API
type Extractor struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewExtractor creates a new vision field extractor
func NewExtractor(apiKey, model string, temperature float32, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// extractionResponse is the JSON shape the model is asked to return.
type extractionResponse struct {
	Fields []port.ExtractedField `json:"fields"`
}

// ExtractFields reads the requested block values out of a page image
func (e *Extractor) ExtractFields(ctx context.Context, image []byte, blocks []port.BlockSpec) ([]port.ExtractedField, error) {
	e.logger.Debug("Extracting fields",
		zap.Int("block_count", len(blocks)),
		zap.Int("image_bytes", len(image)))

	base64Img := base64.StdEncoding.EncodeToString(image)
	contentParts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: buildExtractionPrompt(blocks),
		},
		{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:image/jpeg;base64,%s", base64Img),
				Detail: openai.ImageURLDetailHigh,
			},
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   4096,
		Temperature: e.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert at reading scanned business documents. You read field values exactly as printed, without guessing. Always respond with valid JSON.",
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: contentParts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.Error(err))
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from vision API")
	}

	content := resp.Choices[0].Message.Content
	var parsed extractionResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		e.logger.Error("Failed to parse vision response",
			zap.Error(err),
			zap.String("content", content))
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Keep only fields that were actually requested.
	wanted := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		wanted[b.Key] = true
	}
	fields := parsed.Fields[:0]
	for _, f := range parsed.Fields {
		if wanted[f.Key] {
			fields = append(fields, f)
		}
	}

	e.logger.Info("Fields extracted", zap.Int("count", len(fields)))
	return fields, nil
}

// Ping sends a minimal completion request to verify the API key and model
// are usable. Used by the connectivity check command.
func (e *Extractor) Ping(ctx context.Context) error {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: 5,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Reply with the word ok."},
		},
	})
	if err != nil {
		return fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("empty response from API")
	}
	return nil
}

// Verify interface compliance
var _ port.FieldExtractor = (*Extractor)(nil)
