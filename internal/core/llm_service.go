package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"unab.cl/superapp/internal/attachment"
	"unab.cl/superapp/internal/persona"
	"unab.cl/superapp/internal/transcript"
)

// Part is one piece of a turn: text or a single inline attachment.
type Part struct {
	Text       string              `json:"text,omitempty"`
	InlineData *attachment.Payload `json:"inline_data,omitempty"`
}

type Content struct {
	Role  transcript.Role `json:"role"`
	Parts []Part          `json:"parts"`
}

// Request is a provider-neutral generation request.
type Request struct {
	Model             string    `json:"model"`
	SystemInstruction string    `json:"system_instruction,omitempty"`
	Temperature       float32   `json:"temperature"`
	MaxOutputTokens   int32     `json:"max_output_tokens,omitempty"`
	History           []Content `json:"history,omitempty"`
	Message           Content   `json:"message"`
}

// Provider is the external generative-language service.
type Provider interface {
	Name() string
	// Generate returns the reply text. An empty string is a valid, if useless, reply.
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelCatalog resolves a persona tier into a concrete model name.
type ModelCatalog struct {
	Fast      string
	Reasoning string
}

func (c ModelCatalog) Model(t persona.Tier) string {
	if t == persona.TierReasoning {
		return c.Reasoning
	}
	return c.Fast
}

const geminiModelRole = "model"

type GeminiProvider struct {
	client *genai.Client
	logger *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		logger: logger,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Close() {
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			p.logger.Warn("Error closing GenAI client", zap.Error(err))
		} else {
			p.logger.Info("GenAI client closed")
		}
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	model := p.client.GenerativeModel(req.Model)

	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemInstruction)},
		}
	}
	model.SetTemperature(req.Temperature)
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}

	history, err := toGeminiHistory(req.History)
	if err != nil {
		return "", err
	}
	parts, err := toGeminiParts(req.Message.Parts)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("gemini request has no message parts")
	}

	chatSession := model.StartChat()
	chatSession.History = history

	resp, err := chatSession.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	text := geminiResponseText(resp)
	if text == "" {
		p.logger.Warn("Gemini response was empty or had no text parts", zap.String("model", req.Model))
	}
	return text, nil
}

// toGeminiHistory maps neutral roles onto Gemini's vocabulary. Gemini wants
// a conversation to open with a user turn, so leading assistant entries (the
// seeded welcome) are dropped.
func toGeminiHistory(history []Content) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, c := range history {
		if len(contents) == 0 && c.Role != transcript.RoleUser {
			continue
		}
		parts, err := toGeminiParts(c.Parts)
		if err != nil {
			return nil, err
		}
		role := string(transcript.RoleUser)
		if c.Role == transcript.RoleAssistant {
			role = geminiModelRole
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

func toGeminiParts(parts []Part) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(parts))
	for _, part := range parts {
		if part.InlineData != nil {
			raw, err := part.InlineData.Decoded()
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			out = append(out, genai.Blob{MIMEType: part.InlineData.MIMEType, Data: raw})
			continue
		}
		out = append(out, genai.Text(part.Text))
	}
	return out, nil
}

func geminiResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return responseText.String()
}
