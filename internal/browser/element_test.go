package browser

import (
	"regexp"
	"testing"

	"github.com/roelfdiedericks/formclaw/internal/dom"
)

func TestOptionPatternMatchesWholeText(t *testing.T) {
	tests := []struct {
		want   string
		option string
		match  bool
	}{
		{"No", "No", true},
		{"No", "  No\n", true},
		{"No", "Not sure", false},
		{"No", "None", false},
		{"Yes", "Yes, partly", false},
		{"Yes", "yes", false},
		{"N/A (skip)", "N/A (skip)", true},
		{"1.5", "105", false},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.option, func(t *testing.T) {
			re := regexp.MustCompile(optionPattern(tt.want))
			if got := re.MatchString(tt.option); got != tt.match {
				t.Errorf("match(%q) = %v, want %v", tt.option, got, tt.match)
			}
		})
	}
}

func TestScopedXPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{dom.ExactText("label", "Q").Value, ".//label[normalize-space()='Q']"},
		{"/html/body", "./html/body"},
		{".//input", ".//input"},
		{"label", "label"},
	}
	for _, tt := range tests {
		if got := scopedXPath(tt.in); got != tt.want {
			t.Errorf("scopedXPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
