package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"unab.cl/superapp/internal/transcript"
)

// OpenAIProvider talks to the OpenAI chat completions API or any server
// compatible with it.
type OpenAIProvider struct {
	client *openai.Client
	logger *zap.Logger
}

func NewOpenAIProvider(apiKey, baseURL string, logger *zap.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.toChatRequest(req))
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		p.logger.Warn("OpenAI response had no choices", zap.String("model", req.Model))
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) toChatRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, c := range req.History {
		messages = append(messages, p.toChatMessage(c))
	}
	messages = append(messages, p.toChatMessage(req.Message))

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   int(req.MaxOutputTokens),
	}
}

// toChatMessage uses plain Content for text-only turns and MultiContent when
// an image is attached. Audio has no chat completions equivalent and is dropped.
func (p *OpenAIProvider) toChatMessage(c Content) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if c.Role == transcript.RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}

	var texts []string
	var multi []openai.ChatMessagePart
	for _, part := range c.Parts {
		switch {
		case part.InlineData == nil:
			texts = append(texts, part.Text)
			multi = append(multi, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: part.Text})
		case strings.HasPrefix(part.InlineData.MIMEType, "image/"):
			multi = append(multi, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + part.InlineData.MIMEType + ";base64," + part.InlineData.Data,
					Detail: openai.ImageURLDetailAuto,
				},
			})
		default:
			p.logger.Warn("Dropping attachment unsupported by chat completions", zap.String("mime_type", part.InlineData.MIMEType))
		}
	}

	if len(multi) > len(texts) {
		return openai.ChatCompletionMessage{Role: role, MultiContent: multi}
	}
	return openai.ChatCompletionMessage{Role: role, Content: strings.Join(texts, "\n")}
}
