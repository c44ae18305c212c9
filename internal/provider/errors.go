package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ollama/ollama/api"
	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a failed model call.
type Kind string

const (
	KindUnknown        Kind = "unknown"
	KindRateLimit      Kind = "rate_limit"
	KindTimeout        Kind = "timeout"
	KindAPI            Kind = "api"
	KindInvalidRequest Kind = "invalid_request"
	KindAuthentication Kind = "authentication"
)

// Error wraps a provider failure together with its classification.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap classifies err and tags it with the provider name.
func wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: provider, Kind: Classify(err), Err: err}
}

// Classify maps an error returned by any provider onto a Kind.
// Caller cancellation is never transient and reports KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var pErr *Error
	if errors.As(err, &pErr) && pErr.Kind != "" {
		return pErr.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return KindFromStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return KindFromStatus(reqErr.HTTPStatusCode)
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return KindFromStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindAPI
	}

	return KindUnknown
}

// KindFromStatus maps an HTTP status code onto a Kind.
func KindFromStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthentication
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 400 && code < 500:
		return KindInvalidRequest
	case code >= 500:
		return KindAPI
	default:
		return KindUnknown
	}
}
