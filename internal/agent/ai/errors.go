package ai

import (
	"fmt"
	"strings"
)

// ProviderError represents an error returned by a model provider's API
type ProviderError struct {
	Provider   string `json:"provider"`
	StatusCode int    `json:"status_code,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsContextOverflow checks if an error indicates the request exceeded the
// model's context window. The runner compacts and retries once on these.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*ProviderError); ok {
		if pe.Code == "context_length_exceeded" {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	keywords := []string{
		"context_length_exceeded",
		"context length",
		"maximum context",
		"context window",
		"prompt is too long",
		"input length and `max_tokens` exceed",
		"too many tokens",
	}
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// IsRateLimitOrAuth checks if an error is due to rate limiting or bad credentials
func IsRateLimitOrAuth(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*ProviderError); ok {
		switch pe.StatusCode {
		case 401, 403, 429:
			return true
		}
		switch pe.Code {
		case "rate_limit_exceeded", "authentication_error", "invalid_api_key":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"rate limit", "too many requests", "unauthorized", "invalid api key", "authentication"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
