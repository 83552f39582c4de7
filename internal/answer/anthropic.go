package answer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// DefaultAnthropicModel is used when Config.Model is empty.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// Anthropic answers with the Messages API.
type Anthropic struct {
	document
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic creates an Anthropic engine. The key falls back to ANTHROPIC_API_KEY.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: no API key (set answer.apiKey or ANTHROPIC_API_KEY)")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	L_debug("answer: anthropic engine", "model", model)
	return &Anthropic{
		document:  document{maxTokens: cfg.MaxDocumentTokens},
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (e *Anthropic) Answer(ctx context.Context, question string) (string, error) {
	prompt, err := e.prompt(question)
	if err != nil {
		return "", err
	}

	start := time.Now()
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(e.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", fmt.Errorf("anthropic: empty response")
	}

	L_elapsed(start, "answer: anthropic answered", "question", question, "answer", answer)
	return answer, nil
}
