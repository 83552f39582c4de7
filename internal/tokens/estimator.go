// Package tokens counts and trims text by tiktoken tokens.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// Estimator provides token estimation using tiktoken
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

// DefaultEncoding is cl100k_base, close enough for both OpenAI and Claude models
const DefaultEncoding = "cl100k_base"

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the global token estimator (singleton)
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		var err error
		globalEstimator, err = New()
		if err != nil {
			L_warn("tokens: failed to create estimator, using fallback", "error", err)
			globalEstimator = &Estimator{} // fallback to char-based estimation
		}
	})
	return globalEstimator
}

// New creates a new token estimator
func New() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Estimator{encoding: enc}, nil
}

// Count returns the token count for a string.
// Falls back to chars/4 if tiktoken unavailable.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// Truncate returns the longest prefix of text that fits in max tokens, and
// whether anything was cut. max <= 0 means no limit.
func (e *Estimator) Truncate(text string, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	if e == nil || e.encoding == nil {
		if len(text) <= max*4 {
			return text, false
		}
		return text[:max*4], true
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	toks := e.encoding.Encode(text, nil, nil)
	if len(toks) <= max {
		return text, false
	}
	return e.encoding.Decode(toks[:max]), true
}

// Estimate is a convenience function using the global estimator.
func Estimate(text string) int {
	return Get().Count(text)
}
