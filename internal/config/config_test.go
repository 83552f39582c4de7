package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roelfdiedericks/formclaw/internal/answer"
	"github.com/roelfdiedericks/formclaw/internal/browser"
	"github.com/roelfdiedericks/formclaw/internal/dom"
)

func writeJSON(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFileKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formclaw.json")
	writeJSON(t, path, `{
		"target": {"url": "https://app.example.test"},
		"browser": {"headless": false},
		"form": {"maxConsecutiveFailures": 0}
	}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Target.URL != "https://app.example.test" {
		t.Errorf("url = %q", cfg.Target.URL)
	}
	if cfg.Target.ButtonText != "Print PDF" || cfg.Target.ButtonAttempts != 10 {
		t.Errorf("target defaults lost: %+v", cfg.Target)
	}
	if cfg.Browser.Headless {
		t.Error("explicit headless=false not honored")
	}
	if !cfg.Browser.Stealth {
		t.Error("browser defaults lost")
	}
	if cfg.FormSettings().MaxConsecutiveFailures != 0 {
		t.Error("explicit 0 should disable the breaker")
	}
	if cfg.Extract.DPI != 300 || cfg.Answer.Provider != "openai" {
		t.Errorf("collaborator defaults lost: %+v %+v", cfg.Extract, cfg.Answer)
	}
}

func TestLoadFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formclaw.json")
	writeJSON(t, path, `{"target": `)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.Target.URL = "https://from-file.test"

	err := cfg.Apply(Config{
		Target:  TargetConfig{URL: "https://from-flag.test"},
		Answer:  answer.Config{Model: "gpt-4o"},
		Browser: browser.BrowserConfig{Profile: "ci"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.URL != "https://from-flag.test" {
		t.Errorf("url = %q", cfg.Target.URL)
	}
	if cfg.Answer.Model != "gpt-4o" || cfg.Answer.Provider != "openai" {
		t.Errorf("answer = %+v", cfg.Answer)
	}
	if cfg.Browser.Profile != "ci" || !cfg.Browser.Headless {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if cfg.Target.ButtonText != "Print PDF" {
		t.Error("zero override replaced a set value")
	}
}

func TestSaveRoundTripAndBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "formclaw.json")
	cfg := Defaults()
	for i, url := range []string{"https://one.test", "https://two.test", "https://three.test"} {
		cfg.Target.URL = url
		if err := cfg.Save(path); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Target.URL != "https://three.test" {
		t.Errorf("url = %q", got.Target.URL)
	}

	var bak Config
	data, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("no backup: %v", err)
	}
	if err := json.Unmarshal(data, &bak); err != nil {
		t.Fatal(err)
	}
	if bak.Target.URL != "https://two.test" {
		t.Errorf("backup url = %q", bak.Target.URL)
	}
	if _, err := os.Stat(path + ".bak.1"); err != nil {
		t.Errorf("rotated backup missing: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v", info.Mode().Perm())
	}
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Answer.APIKey = "sk-secret"
	if cfg.Redacted().Answer.APIKey == "sk-secret" {
		t.Error("key not masked")
	}
	if cfg.Answer.APIKey != "sk-secret" {
		t.Error("Redacted modified the original")
	}
}

func TestLocators(t *testing.T) {
	cfg := Defaults()
	if got := cfg.ButtonLocator(); got != dom.ExactText("button", "Print PDF") {
		t.Errorf("button locator = %v", got)
	}
	if got := cfg.ReadyLocator(); got != dom.ExactText("div", "Squad Health") {
		t.Errorf("ready locator = %v", got)
	}
	f := cfg.FormSettings()
	if f.FieldSelector != dom.CSS("div.flex.flex-col") || f.YesOption != "Yes" || f.MaxConsecutiveFailures != 5 {
		t.Errorf("form settings = %+v", f)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		def  time.Duration
		want time.Duration
	}{
		{"", time.Second, time.Second},
		{"250ms", time.Second, 250 * time.Millisecond},
		{"bogus", time.Second, time.Second},
		{"-5s", time.Second, time.Second},
		{"0s", time.Second, 0},
		{"7d", 0, 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		if got := Duration(tt.in, tt.def); got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHistoryPathOverride(t *testing.T) {
	cfg := Defaults()
	cfg.History.Path = "/var/lib/formclaw/h.db"
	if p, _ := cfg.HistoryPath(); p != "/var/lib/formclaw/h.db" {
		t.Errorf("path = %q", p)
	}
}
