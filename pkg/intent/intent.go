// Package intent turns natural-language questions into structured intents.
// The pipeline consumes providers through one interface and stays agnostic
// to whether a model or a heuristic produced the intent.
package intent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Provider is the understanding capability consumed by the orchestrator.
// Low confidence, including zero, is a normal outcome rather than an error.
type Provider interface {
	// Understand extracts a structured intent from a question.
	Understand(ctx context.Context, text, locale string) (*models.Intent, error)
	// Name identifies the provider in logs and traces.
	Name() string
}

// SchemaHint supplies table to column-name mappings so heuristic extraction
// can ground entity detection. Providers must treat the result as read-only.
type SchemaHint func() map[string][]string

// Config selects and parameterizes the intent provider.
type Config struct {
	Provider    string `json:"provider"` // auto, openai, heuristic
	OpenAIKey   string `json:"openai_key"`
	OpenAIModel string `json:"openai_model"`
}

// Select picks the provider by availability: model-backed when an API key is
// configured, heuristic otherwise. Forced choices via cfg.Provider.
func Select(cfg Config, hint SchemaHint, logger zerolog.Logger) Provider {
	switch cfg.Provider {
	case "heuristic":
		return NewHeuristic(hint, logger)
	case "openai":
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, logger)
	default:
		if cfg.OpenAIKey != "" {
			return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, logger)
		}
		return NewHeuristic(hint, logger)
	}
}
