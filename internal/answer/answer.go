// Package answer answers form questions from the text of a document using an
// LLM. The form orchestrator only sees the Answer method.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	. "github.com/roelfdiedericks/formclaw/internal/logging"
	"github.com/roelfdiedericks/formclaw/internal/tokens"
)

// ErrNoDocument is returned by Answer before SetDocument was called.
var ErrNoDocument = errors.New("no document text has been set")

// SystemPrompt instructs the model to answer tersely from the document only.
const SystemPrompt = `You are a helpful assistant for clinicians and operations staff.
You are given the text of a PDF that is related to insurance, prescriptions, and appeals.
Answer questions using only the information in the document.
If you cannot find the answer in the document, say you do not know.
Keep the responses very concise. For example, if you are asked "What is x", do not respond with "x is y...", just respond with "y".
If it is a yes/no question, respond with only one word, either "yes" or "no". Do not add punctuation or any other details.
Do not use acronyms by themselves. Write what it stands for and the acronym in parenthesis.`

// Engine answers questions about one document.
type Engine interface {
	SetDocument(text string)
	Answer(ctx context.Context, question string) (string, error)
}

// Config selects and configures an engine.
type Config struct {
	Provider          string `json:"provider"`          // "openai" or "anthropic"
	Model             string `json:"model"`             // empty = provider default
	APIKey            string `json:"apiKey"`            // empty = environment
	BaseURL           string `json:"baseURL"`           // custom endpoint
	MaxTokens         int    `json:"maxTokens"`         // answer budget
	MaxDocumentTokens int    `json:"maxDocumentTokens"` // document is cut to this many tokens, 0 = no limit
}

// DefaultConfig returns the OpenAI setup the target deployment uses.
func DefaultConfig() Config {
	return Config{
		Provider:          "openai",
		MaxTokens:         2048,
		MaxDocumentTokens: 100000,
	}
}

// New builds the engine named by cfg.Provider.
func New(cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		e, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "anthropic":
		e, err := NewAnthropic(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown answer provider %q", cfg.Provider)
}

// document holds the text questions are answered from. Engines embed it.
type document struct {
	mu        sync.RWMutex
	text      string
	maxTokens int
}

func (d *document) SetDocument(text string) {
	cut, truncated := tokens.Get().Truncate(text, d.maxTokens)
	if truncated {
		L_warn("answer: document truncated to fit the token budget", "limit", d.maxTokens, "chars", len(text))
	}
	d.mu.Lock()
	d.text = cut
	d.mu.Unlock()
	L_debug("answer: document set", "chars", len(cut), "tokens", tokens.Estimate(cut))
}

// prompt builds the user message for question.
func (d *document) prompt(question string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.text == "" {
		return "", ErrNoDocument
	}
	return fmt.Sprintf("Here is the document text:\n\n%s\n\nQuestion: %s", d.text, question), nil
}

// Static answers from a fixed table, keyed by normalized question text. It
// backs dry runs and tests.
type Static struct {
	Answers map[string]string
	// Default is returned for unknown questions; empty makes them an error.
	Default string
}

func (s *Static) SetDocument(string) {}

func (s *Static) Answer(_ context.Context, question string) (string, error) {
	key := strings.ToLower(strings.Join(strings.Fields(question), " "))
	for q, a := range s.Answers {
		if strings.ToLower(strings.Join(strings.Fields(q), " ")) == key {
			return a, nil
		}
	}
	if s.Default != "" {
		return s.Default, nil
	}
	return "", fmt.Errorf("no answer for %q", question)
}
