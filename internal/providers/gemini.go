package providers

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/ibis/internal/engine"

	"google.golang.org/genai"
)

// GeminiClient implements engine.LLMClient using the official
// google.golang.org/genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new Gemini client for the engine.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: modelName}, nil
}

// Chat implements engine.LLMClient.Chat.
func (c *GeminiClient) Chat(ctx context.Context, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	var contents []*genai.Content
	var systemInstruction string

	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			systemInstruction = msg.Content
		case engine.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case engine.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		}
	}

	temperature := float32(0.1)
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}

	response, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}

	content := response.Text()
	if content == "" {
		return engine.LLMResponse{}, fmt.Errorf("empty response from Gemini")
	}

	var usage engine.Usage
	if response.UsageMetadata != nil {
		usage = engine.Usage{
			Prompt:     int(response.UsageMetadata.PromptTokenCount),
			Completion: int(response.UsageMetadata.CandidatesTokenCount),
			Total:      int(response.UsageMetadata.TotalTokenCount),
		}
	}

	return engine.LLMResponse{Content: content, Usage: usage}, nil
}
