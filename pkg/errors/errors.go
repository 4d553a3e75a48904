package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error is a coded failure raised by the test pipeline and its adapters.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

const (
	ErrCodeMeasurementFailed = "MEASUREMENT_FAILED"
	ErrCodeGeoLookupFailed   = "GEO_LOOKUP_FAILED"
	ErrCodePublicIPFailed    = "PUBLIC_IP_FAILED"
	ErrCodePersistenceFailed = "PERSISTENCE_FAILED"
	ErrCodeResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL"
)

func ErrMeasurement(msg string, cause error) *Error {
	return &Error{Code: ErrCodeMeasurementFailed, Message: msg, Cause: cause}
}

func ErrGeoLookup(msg string, cause error) *Error {
	return &Error{Code: ErrCodeGeoLookupFailed, Message: msg, Cause: cause}
}

func ErrPublicIP(msg string, cause error) *Error {
	return &Error{Code: ErrCodePublicIPFailed, Message: msg, Cause: cause}
}

func ErrPersistence(msg string, cause error) *Error {
	return &Error{Code: ErrCodePersistenceFailed, Message: msg, Cause: cause}
}

func ErrResourceExhausted(msg string) *Error {
	return &Error{Code: ErrCodeResourceExhausted, Message: msg}
}

func ErrInvalidRequest(msg string) *Error {
	return &Error{Code: ErrCodeInvalidRequest, Message: msg}
}

func ErrInvalidConfig(msg string, cause error) *Error {
	return &Error{Code: ErrCodeInvalidConfig, Message: msg, Cause: cause}
}

// Code returns the code of the outermost *Error in err's chain, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err's chain carries an *Error with the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsContextError reports whether err was caused by cancellation or a deadline.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
