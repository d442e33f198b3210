// Package llm adapts hosted and local chat models to domain.Completer.
//
// Every adapter turns the SDK's own retry loop off; retries belong to
// resilience.WrapCompleter so that one policy governs all external calls.
// Transient failures (429, 5xx, transport errors) come back wrapped in
// resilience.RetryableError.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docintel/internal/resilience"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("empty completion")

// classifyStatus wraps err as retryable when status is transient or unknown (0).
func classifyStatus(provider string, status int, err error) error {
	wrapped := fmt.Errorf("%s completion: %w", provider, err)
	if status == 0 || resilience.IsRetryableStatus(status) {
		if errors.Is(err, context.Canceled) {
			return wrapped
		}
		return resilience.Retryable(wrapped)
	}
	return wrapped
}

// withSlash makes relative SDK paths resolve under baseURL instead of replacing its last segment.
func withSlash(baseURL string) string {
	if strings.HasSuffix(baseURL, "/") {
		return baseURL
	}
	return baseURL + "/"
}
