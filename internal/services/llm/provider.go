package llm

import (
	"context"
	"fmt"
	"log/slog"

	"memecat/internal/config"
	"memecat/internal/logging"
	"memecat/internal/services"
)

// New builds the configured description service. It returns nil when the
// provider is "none".
func New(ctx context.Context, cfg config.Description, frames FrameSource, logger *slog.Logger, opts ...Option) (Service, error) {
	if cfg.Provider == "none" {
		logging.NewComponentLogger(logger, "llm").Info("description provider disabled",
			logging.String(logging.FieldEventType, "describe_disabled"))
		return nil, nil
	}
	prompt, err := LoadPrompt(cfg.PromptPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "init", "load prompt", err)
	}

	var svc Service
	switch cfg.Provider {
	case "gemini":
		svc, err = NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Prompt:  prompt,
		}, logger, opts...)
	case "openai":
		svc, err = NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Prompt:  prompt,
		}, frames, logger, opts...)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "llm", "init",
			fmt.Sprintf("unknown provider %q", cfg.Provider), nil)
	}
	if err != nil {
		return nil, err
	}
	return NewPaced(svc, cfg.RequestsPerMinute), nil
}
