package llm

import "fmt"

// ClientError is the base error type for all llm package errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	ClientError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

// Non-provider errors.

type NetworkError struct{ ClientError }
type AbortError struct{ ClientError }
type ConfigurationError struct{ ClientError }

// UnsupportedResponseFormatError signals that the adapter cannot honor the
// requested response format. Callers retry the request without it.
type UnsupportedResponseFormatError struct{ ClientError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	pe := ProviderError{
		ClientError: ClientError{Message: message},
		Provider:    provider,
		StatusCode:  statusCode,
		RetryAfter:  retryAfter,
	}

	switch statusCode {
	case 400, 404, 422:
		pe.Retryable = false
		return &InvalidRequestError{ProviderError: pe}
	case 401, 403:
		pe.Retryable = false
		return &AuthenticationError{ProviderError: pe}
	case 413:
		pe.Retryable = false
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable returns true if the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ProviderError:
		return e.Retryable
	case *AuthenticationError:
		return false
	case *InvalidRequestError:
		return false
	case *ContextLengthError:
		return false
	case *ConfigurationError:
		return false
	case *UnsupportedResponseFormatError:
		return false
	case *AbortError:
		return false
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *NetworkError:
		return true
	default:
		// Unknown errors default to retryable.
		return true
	}
}
