package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrMalformedOutput means the model answered but the content was not
	// JSON or did not satisfy the schema
	ErrMalformedOutput = errors.New("malformed structured output")

	// ErrEmptyResponse means the provider returned no content at all
	ErrEmptyResponse = errors.New("empty response")
)

// ProviderError wraps every failure a provider returns
type ProviderError struct {
	Provider    string
	StatusCode  int // 0 when no HTTP response was received
	RateLimited bool
	Err         error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (%d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later
func (e *ProviderError) Retryable() bool {
	return e.RateLimited || e.StatusCode >= 500
}

func newProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		StatusCode:  status,
		RateLimited: status == http.StatusTooManyRequests || looksRateLimited(err),
		Err:         err,
	}
}

// IsRetryable reports whether err is a transient provider failure. Errors
// that are not *ProviderError fall back to message sniffing.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return looksRateLimited(err)
}

// looksRateLimited checks error text for rate-limit markers. Some SDKs and
// proxies only surface the status in the message.
func looksRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "overloaded")
}
