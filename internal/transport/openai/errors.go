package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// parseAPIError extracts a human-readable error from the API response.
// Errors are wrapped with wrap, except HTTP 429 which maps to domain.ErrRateLimited.
func parseAPIError(kind string, err error, wrap error) error {
	var (
		status int
		detail string
	)

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status, detail = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status, detail = reqErr.HTTPStatusCode, extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
	default:
		return fmt.Errorf("%s request failed: %w: %w", kind, wrap, err)
	}

	if status == http.StatusTooManyRequests {
		wrap = domain.ErrRateLimited
	}
	return fmt.Errorf("%s API error %d: %s: %w", kind, status, detail, wrap)
}

// extractDetail pulls the message out of the error body formats seen across
// OpenAI-compatible providers.
func extractDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"detail", "error.message", "message"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// errorType labels an error for the errors_total metric.
func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "api_error"
	}
}
