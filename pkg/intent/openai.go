package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

const systemPrompt = `You extract structured query intents from natural-language questions about a relational database.
Respond with a single JSON object and nothing else:
{
  "operation": "select" | "aggregate" | "filter" | "join-implied",
  "target_entities": ["table or column names mentioned, most specific first"],
  "predicates": [{"field": "...", "operator": "=", "value": ...}],
  "aggregation": "COUNT" | "AVG" | "MAX" | "MIN" | "SUM" | "",
  "temporal_hints": ["..."],
  "confidence": 0.0
}
Confidence reflects how certain you are the entities exist and the operation is right.`

// OpenAIProvider extracts intents with a chat-completion model.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewOpenAI creates a model-backed intent provider. The default model is
// used when none is configured.
func NewOpenAI(apiKey, model string, logger zerolog.Logger) *OpenAIProvider {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

// Name identifies the provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Understand asks the model for a structured intent. Malformed or empty
// completions degrade to a zero-confidence intent instead of failing the
// request: low confidence is a normal pipeline outcome.
func (p *OpenAIProvider) Understand(ctx context.Context, text, locale string) (*models.Intent, error) {
	userContent := text
	if locale != "" {
		userContent = "Locale: " + locale + "\nQuestion: " + text
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "intent model request failed")
	}
	if len(resp.Choices) == 0 {
		p.logger.Warn().Msg("Intent model returned no choices")
		return &models.Intent{Confidence: 0}, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var parsed models.Intent
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		p.logger.Warn().Err(err).Str("content", content).Msg("Intent model returned unparseable JSON")
		return &models.Intent{Confidence: 0}, nil
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	p.logger.Debug().
		Str("operation", string(parsed.Operation)).
		Float64("confidence", parsed.Confidence).
		Msg("Model intent extracted")

	return &parsed, nil
}
