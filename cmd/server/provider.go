package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"unab.cl/superapp/internal/config"
	"unab.cl/superapp/internal/core"
)

// newProvider builds the provider selected by LLM_PROVIDER together with its
// model catalogue. The returned func releases the client.
func newProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) (core.Provider, core.ModelCatalog, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		p, err := core.NewGeminiProvider(ctx, cfg.GeminiAPIKey, logger)
		if err != nil {
			return nil, core.ModelCatalog{}, nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		models := core.ModelCatalog{Fast: cfg.GeminiFastModel, Reasoning: cfg.GeminiReasoningModel}
		return p, models, p.Close, nil
	case config.ProviderOpenAI:
		p := core.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)
		models := core.ModelCatalog{Fast: cfg.OpenAIFastModel, Reasoning: cfg.OpenAIReasoningModel}
		return p, models, func() {}, nil
	default:
		return nil, core.ModelCatalog{}, nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}
