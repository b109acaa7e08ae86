package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
)

// StatusClientClosedRequest is the non-standard status for calls the client abandoned.
const StatusClientClosedRequest = 499

var (
	// ErrCancelled is the cancellation cause set by Client.Cancel.
	ErrCancelled = errors.New("request cancelled by client")

	// ErrPoolExhausted reports that no credential was available to attempt the call.
	ErrPoolExhausted = errors.New("no upstream credential available")
)

// Kind classifies upstream failures for failover decisions.
type Kind int

const (
	KindTransport Kind = iota
	KindAuth
	KindRateLimit
	KindBadRequest
	KindServer
	KindPoolExhausted
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindBadRequest:
		return "bad_request"
	case KindServer:
		return "server"
	case KindPoolExhausted:
		return "pool_exhausted"
	case KindCancelled:
		return "cancelled"
	default:
		return "transport"
	}
}

// Error is a classified upstream failure. Status is the HTTP status to report to the
// client; Message is operator-facing.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream %s error (%d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another credential may succeed where this one failed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindRateLimit, KindServer, KindTransport:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether err stems from a client-side cancellation.
func IsCancelled(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var upstreamErr *Error
	return errors.As(err, &upstreamErr) && upstreamErr.Kind == KindCancelled
}

func cancelledError() *Error {
	return &Error{
		Kind:    KindCancelled,
		Status:  StatusClientClosedRequest,
		Message: "Request cancelled by client",
		Err:     ErrCancelled,
	}
}

func poolUnavailableError() *Error {
	return &Error{
		Kind:    KindPoolExhausted,
		Status:  http.StatusServiceUnavailable,
		Message: "All API keys are temporarily unavailable",
		Err:     ErrPoolExhausted,
	}
}

func poolFailedError() *Error {
	return &Error{
		Kind:    KindPoolExhausted,
		Status:  http.StatusServiceUnavailable,
		Message: "All API keys failed",
		Err:     ErrPoolExhausted,
	}
}

// classify maps an SDK or transport error to an Error. ctx is the per-call context;
// cancellation (explicit via Cancel, or the caller going away) wins over whatever the
// transport reported.
func classify(ctx context.Context, err error) *Error {
	if errors.Is(context.Cause(ctx), ErrCancelled) || errors.Is(err, ErrCancelled) {
		return cancelledError()
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return cancelledError()
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		classified := &Error{
			Status:  apiErr.StatusCode,
			Message: guidance(apiErr.Error(), apiErr.Message),
			Err:     err,
		}
		switch status := apiErr.StatusCode; {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			classified.Kind = KindAuth
		case status == http.StatusTooManyRequests:
			classified.Kind = KindRateLimit
		case status >= http.StatusInternalServerError:
			classified.Kind = KindServer
		case status >= http.StatusBadRequest:
			classified.Kind = KindBadRequest
		default:
			classified.Kind = KindServer
			classified.Status = http.StatusBadGateway
		}
		return classified
	}

	return &Error{
		Kind:    KindTransport,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("Unexpected error: %v", err),
		Err:     err,
	}
}

// guidance rewrites well-known upstream failures into actionable messages. detail is
// matched case-insensitively; fallback is returned when nothing matches.
func guidance(detail, fallback string) string {
	s := strings.ToLower(detail)

	switch {
	case strings.Contains(s, "unsupported_country_region_territory"),
		strings.Contains(s, "country, region, or territory not supported"):
		return "OpenAI API is not available in your region. Consider using a VPN or Azure OpenAI service."
	case strings.Contains(s, "invalid_api_key"), strings.Contains(s, "unauthorized"):
		return "Invalid API key. Please check your OPENAI_API_KEY configuration."
	case strings.Contains(s, "rate_limit"), strings.Contains(s, "quota"):
		return "Rate limit exceeded. Please wait and try again, or upgrade your API plan."
	case strings.Contains(s, "model") &&
		(strings.Contains(s, "not found") || strings.Contains(s, "does not exist")):
		return "Model not found. Please check your BIG_MODEL and SMALL_MODEL configuration."
	case strings.Contains(s, "billing"), strings.Contains(s, "payment"):
		return "Billing issue. Please check your OpenAI account billing status."
	}

	if fallback == "" {
		return detail
	}
	return fallback
}
