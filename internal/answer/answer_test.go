package answer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleDoc = "Patient: Jane Doe\nPrior authorization: approved\nPlan: PPO"

func TestPromptRequiresDocument(t *testing.T) {
	d := &document{}
	if _, err := d.prompt("anything"); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("err = %v, want ErrNoDocument", err)
	}
	d.SetDocument(sampleDoc)
	p, err := d.prompt("Is the authorization approved?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p, "Here is the document text:\n\n"+sampleDoc) {
		t.Errorf("prompt does not start with the document: %q", p)
	}
	if !strings.HasSuffix(p, "\n\nQuestion: Is the authorization approved?") {
		t.Errorf("prompt does not end with the question: %q", p)
	}
}

func TestSetDocumentTruncates(t *testing.T) {
	d := &document{maxTokens: 10}
	d.SetDocument(strings.Repeat("word ", 500))
	if len(d.text) >= len(strings.Repeat("word ", 500)) {
		t.Error("document not truncated")
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "mystery"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestIsReasoningModel(t *testing.T) {
	for model, want := range map[string]bool{
		"gpt-5.1":     true,
		"o3-mini":     true,
		"o4":          true,
		"gpt-4o":      false,
		"openchat":    false,
		"gpt-4o-mini": false,
	} {
		if got := isReasoningModel(model); got != want {
			t.Errorf("isReasoningModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestOpenAIAnswer(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		ReasoningEffort string `json:"reasoning_effort"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-5.1",
			"choices":[{"index":0,"message":{"role":"assistant","content":" yes \n"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	e, err := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "test"})
	if err != nil {
		t.Fatal(err)
	}
	e.SetDocument(sampleDoc)

	answer, err := e.Answer(context.Background(), "Is the authorization approved?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "yes" {
		t.Errorf("answer = %q, want yes", answer)
	}
	if got.Model != DefaultOpenAIModel {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[0].Content != SystemPrompt {
		t.Errorf("system message not sent as expected: %+v", got.Messages)
	}
	if !strings.Contains(got.Messages[1].Content, sampleDoc) {
		t.Error("user message missing the document")
	}
	if got.ReasoningEffort != "low" {
		t.Errorf("reasoning_effort = %q", got.ReasoningEffort)
	}
}

func TestAnthropicAnswer(t *testing.T) {
	var got struct {
		Model  string `json:"model"`
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"Preferred Provider Organization (PPO)"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	e, err := NewAnthropic(Config{BaseURL: srv.URL, APIKey: "test"})
	if err != nil {
		t.Fatal(err)
	}
	e.SetDocument(sampleDoc)

	answer, err := e.Answer(context.Background(), "Which plan?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "Preferred Provider Organization (PPO)" {
		t.Errorf("answer = %q", answer)
	}
	if got.Model != DefaultAnthropicModel {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.System) != 1 || got.System[0].Text != SystemPrompt {
		t.Error("system prompt not sent")
	}
}

func TestAnthropicRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropic(Config{}); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestStatic(t *testing.T) {
	s := &Static{Answers: map[string]string{"Is the patient  insured?": "yes"}}
	if a, err := s.Answer(context.Background(), " is the patient insured? "); err != nil || a != "yes" {
		t.Errorf("Answer = %q, %v", a, err)
	}
	if _, err := s.Answer(context.Background(), "unknown"); err == nil {
		t.Error("unknown question should fail without a default")
	}
	s.Default = "no"
	if a, _ := s.Answer(context.Background(), "unknown"); a != "no" {
		t.Errorf("default = %q", a)
	}
}
