package dom

import (
	"errors"
	"fmt"
	"testing"
)

func TestExactText(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		text string
		want string
	}{
		{"plain", "button", "Print PDF", "//button[normalize-space()='Print PDF']"},
		{"any tag", "", "Squad Health", "//*[normalize-space()='Squad Health']"},
		{"single quote", "div", "Patient's plan", `//div[normalize-space()="Patient's plan"]`},
		{"both quotes", "div", `a'b"c`, `//div[normalize-space()=concat('a', "'", 'b"c')]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := ExactText(tt.tag, tt.text)
			if loc.Strategy != ByXPath {
				t.Fatalf("strategy = %v, want xpath", loc.Strategy)
			}
			if loc.Value != tt.want {
				t.Errorf("ExactText(%q, %q) = %s, want %s", tt.tag, tt.text, loc.Value, tt.want)
			}
		})
	}
}

func TestCSSSelector(t *testing.T) {
	if sel, ok := CSS("div.flex").CSSSelector(); !ok || sel != "div.flex" {
		t.Errorf("CSS selector = %q, %v", sel, ok)
	}
	if sel, ok := Tag("IFRAME").CSSSelector(); !ok || sel != "iframe" {
		t.Errorf("Tag selector = %q, %v", sel, ok)
	}
	if _, ok := ExactText("a", "b").CSSSelector(); ok {
		t.Error("xpath locator should have no CSS form")
	}
}

func TestNormalizeSpace(t *testing.T) {
	if got := NormalizeSpace("  Print \n\t PDF  "); got != "Print PDF" {
		t.Errorf("NormalizeSpace = %q", got)
	}
}

func TestErrNotFoundWraps(t *testing.T) {
	err := fmt.Errorf("button: %w", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped ErrNotFound should match")
	}
}
