package common

import (
	"errors"
	"fmt"
)

// ErrUnsupportedExchange is returned for exchange names outside the capability table.
var ErrUnsupportedExchange = errors.New("unsupported exchange")

// ValidationError marks bad or missing configuration for one execution.
// It is terminal and never retried.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError from a format string.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NetworkError is a transport failure or timeout talking to an exchange.
type NetworkError struct {
	Exchange string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Exchange, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx answer from an exchange. Body keeps the raw text.
type HTTPError struct {
	Exchange   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http status %d: %s", e.Exchange, e.StatusCode, e.Body)
}

// NormalizationError describes a response the normalizer could not read.
// It is carried in OrderResponse.Error, never returned up the pipeline.
type NormalizationError struct {
	Exchange string
	Err      error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Exchange, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
