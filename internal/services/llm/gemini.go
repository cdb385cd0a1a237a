package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"memecat/internal/logging"
	"memecat/internal/services"
)

// GeminiConfig captures the settings for the Gemini provider.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string
}

// Gemini describes images and videos with inline media parts.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	prompt string
	retry  retryPolicy
	logger *slog.Logger
}

// NewGemini constructs a Gemini provider.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger, opts ...Option) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "init", "api key required", nil)
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(base))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "init", "create client", err)
	}
	prompt := strings.TrimSpace(cfg.Prompt)
	if prompt == "" {
		prompt = DefaultPrompt()
	}

	model := client.GenerativeModel(strings.TrimSpace(cfg.Model))
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	// Memes are routinely edgy; default safety filters block too much.
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}

	return &Gemini{
		client: client,
		model:  model,
		name:   strings.TrimSpace(cfg.Model),
		prompt: prompt,
		retry:  newRetryPolicy(opts),
		logger: logging.NewComponentLogger(logger, "gemini"),
	}, nil
}

// Describe sends the media inline with the prompt and parses the JSON reply.
func (g *Gemini) Describe(ctx context.Context, media Media) (Description, error) {
	if strings.TrimSpace(media.MIMEType) == "" {
		return Description{}, services.Wrap(services.ErrUnsupportedMedia, "gemini", "describe",
			fmt.Sprintf("%s: unknown mime type", media.Filename), nil)
	}
	parts := []genai.Part{
		genai.Blob{MIMEType: media.MIMEType, Data: media.Data},
		genai.Text(g.prompt),
	}

	var content string
	err := g.retry.do(ctx, "gemini describe", func() error {
		resp, err := g.model.GenerateContent(ctx, parts...)
		if err != nil {
			return err
		}
		content = responseText(resp)
		if content == "" {
			return fmt.Errorf("%w (finish_reason=%s)", errEmptyContent, finishReason(resp))
		}
		return nil
	})
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return Description{}, services.Wrap(services.ErrDescriptionService, "gemini", "describe",
				fmt.Sprintf("%s: response blocked", media.Filename), err)
		}
		return Description{}, classifyProviderError("gemini", media.Filename, err)
	}
	desc, err := ParseDescription(content)
	if err != nil {
		return Description{}, services.Wrap(services.ErrDescriptionService, "gemini", "describe", media.Filename, err)
	}
	g.logger.Debug("description received",
		logging.String(logging.FieldFilename, media.Filename),
		logging.String("model", g.name),
		logging.Int("keywords", len(desc.Keywords)))
	return desc, nil
}

// Close releases the underlying client connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// responseText returns the first candidate text that looks like it carries a
// payload.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text
		}
	}
	return ""
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "none"
	}
	return fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
}
