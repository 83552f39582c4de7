package answer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	. "github.com/roelfdiedericks/formclaw/internal/logging"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when Config.Model is empty.
const DefaultOpenAIModel = "gpt-5.1"

// OpenAI answers with the chat completions API of OpenAI or a compatible server.
type OpenAI struct {
	document
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates an OpenAI engine. The key falls back to OPENAI_API_KEY.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: no API key (set answer.apiKey or OPENAI_API_KEY)")
	}

	config := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
		}
		config.BaseURL = baseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	L_debug("answer: openai engine", "model", model, "baseURL", config.BaseURL)
	return &OpenAI{
		document:  document{maxTokens: cfg.MaxDocumentTokens},
		client:    openai.NewClientWithConfig(config),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (e *OpenAI) Answer(ctx context.Context, question string) (string, error) {
	prompt, err := e.prompt(question)
	if err != nil {
		return "", err
	}

	start := time.Now()
	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: e.maxTokens,
	}
	if isReasoningModel(e.model) {
		req.ReasoningEffort = "low"
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	L_elapsed(start, "answer: openai answered", "question", question, "answer", answer)
	return answer, nil
}

// isReasoningModel reports whether model accepts reasoning_effort.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "gpt-5") {
		return true
	}
	return len(m) > 1 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}
