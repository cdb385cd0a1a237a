package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"memecat/internal/logging"
	"memecat/internal/services"
)

const framePromptSuffix = "The image is the first frame of a short video clip."

// OpenAIConfig captures the settings for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string
}

// OpenAI describes images through the chat completions API. Videos are
// described from their first frame when a FrameSource is available.
type OpenAI struct {
	client *openai.Client
	model  string
	prompt string
	frames FrameSource
	retry  retryPolicy
	logger *slog.Logger
}

// NewOpenAI constructs an OpenAI-compatible provider. frames may be nil.
func NewOpenAI(cfg OpenAIConfig, frames FrameSource, logger *slog.Logger, opts ...Option) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "openai", "init", "api key required", nil)
	}
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	prompt := strings.TrimSpace(cfg.Prompt)
	if prompt == "" {
		prompt = DefaultPrompt()
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  strings.TrimSpace(cfg.Model),
		prompt: prompt,
		frames: frames,
		retry:  newRetryPolicy(opts),
		logger: logging.NewComponentLogger(logger, "openai"),
	}, nil
}

// Describe sends media to the chat endpoint and parses the JSON reply.
func (o *OpenAI) Describe(ctx context.Context, media Media) (Description, error) {
	mimeType := media.MIMEType
	data := media.Data
	userText := "Describe this media."
	if media.Video {
		if o.frames == nil {
			return Description{}, services.Wrap(services.ErrUnsupportedMedia, "openai", "describe",
				fmt.Sprintf("%s: video input requires frame extraction", media.Filename), nil)
		}
		frame, err := o.frames.FirstFrame(ctx, media.Data)
		if err != nil {
			return Description{}, err
		}
		data = frame
		mimeType = "image/png"
		userText = userText + " " + framePromptSuffix
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return Description{}, services.Wrap(services.ErrUnsupportedMedia, "openai", "describe",
			fmt.Sprintf("%s: %s is not an image type", media.Filename, mimeType), nil)
	}

	request := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.prompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userText},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	var content string
	err := o.retry.do(ctx, "openai describe", func() error {
		resp, err := o.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return err
		}
		content = completionContent(resp)
		if content == "" {
			finish := ""
			if len(resp.Choices) > 0 {
				finish = string(resp.Choices[0].FinishReason)
			}
			return fmt.Errorf("%w (finish_reason=%q)", errEmptyContent, finish)
		}
		return nil
	})
	if err != nil {
		return Description{}, classifyProviderError("openai", media.Filename, err)
	}
	desc, err := ParseDescription(content)
	if err != nil {
		return Description{}, services.Wrap(services.ErrDescriptionService, "openai", "describe", media.Filename, err)
	}
	o.logger.Debug("description received",
		logging.String(logging.FieldFilename, media.Filename),
		logging.String("model", o.model),
		logging.Int("keywords", len(desc.Keywords)))
	return desc, nil
}

// Close is a no-op; the HTTP client holds no resources.
func (o *OpenAI) Close() error {
	return nil
}

func completionContent(resp openai.ChatCompletionResponse) string {
	for _, choice := range resp.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content
		}
		for _, call := range choice.Message.ToolCalls {
			if args := strings.TrimSpace(call.Function.Arguments); args != "" {
				return args
			}
		}
	}
	return ""
}
