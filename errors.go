package musig

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a protocol error
type ErrorCategory string

const (
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryKeyAggregation ErrorCategory = "key_aggregation"
	ErrorCategoryNonce          ErrorCategory = "nonce"
	ErrorCategorySigning        ErrorCategory = "signing"
	ErrorCategoryAggregation    ErrorCategory = "aggregation"
	ErrorCategoryEncoding       ErrorCategory = "encoding"
	ErrorCategoryCryptographic  ErrorCategory = "cryptographic"
	ErrorCategoryInternal       ErrorCategory = "internal"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	ErrorSeverityLow      ErrorSeverity = "low"      // Non-critical, operation can continue
	ErrorSeverityMedium   ErrorSeverity = "medium"   // Important, may affect functionality
	ErrorSeverityHigh     ErrorSeverity = "high"     // Critical, operation should stop
	ErrorSeverityCritical ErrorSeverity = "critical" // System-level failure
)

// MuSigError represents a structured error in the signing protocol
type MuSigError struct {
	Category    ErrorCategory          `json:"category"`
	Severity    ErrorSeverity          `json:"severity"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Details     string                 `json:"details,omitempty"`
	Cause       error                  `json:"-"` // Original error, not serialized
	Context     map[string]interface{} `json:"context,omitempty"`
	Recoverable bool                   `json:"recoverable"`
}

// Error implements the error interface
func (e *MuSigError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *MuSigError) Unwrap() error {
	return e.Cause
}

// Is matches any MuSigError carrying the same code, so copies produced by
// WithContext, WithCause and WithDetails still match their sentinel.
func (e *MuSigError) Is(target error) bool {
	var t *MuSigError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *MuSigError) clone() *MuSigError {
	newError := &MuSigError{
		Category:    e.Category,
		Severity:    e.Severity,
		Code:        e.Code,
		Message:     e.Message,
		Details:     e.Details,
		Recoverable: e.Recoverable,
		Cause:       e.Cause,
		Context:     make(map[string]interface{}, len(e.Context)+1),
	}
	for k, v := range e.Context {
		newError.Context[k] = v
	}
	return newError
}

// WithContext returns a copy of the error with one more context entry
func (e *MuSigError) WithContext(key string, value interface{}) *MuSigError {
	newError := e.clone()
	newError.Context[key] = value
	return newError
}

// WithCause returns a copy of the error wrapping cause
func (e *MuSigError) WithCause(cause error) *MuSigError {
	newError := e.clone()
	newError.Cause = cause
	return newError
}

// WithDetails returns a copy of the error with a formatted detail string
func (e *MuSigError) WithDetails(format string, args ...interface{}) *MuSigError {
	newError := e.clone()
	newError.Details = fmt.Sprintf(format, args...)
	return newError
}

// IsRecoverable returns whether the error is recoverable
func (e *MuSigError) IsRecoverable() bool {
	return e.Recoverable
}

// NewMuSigError creates a new protocol error
func NewMuSigError(category ErrorCategory, severity ErrorSeverity, code, message string) *MuSigError {
	return &MuSigError{
		Category:    category,
		Severity:    severity,
		Code:        code,
		Message:     message,
		Context:     make(map[string]interface{}),
		Recoverable: severity != ErrorSeverityCritical,
	}
}

// Protocol errors
var (
	ErrInvalidKeySet = NewMuSigError(
		ErrorCategoryKeyAggregation, ErrorSeverityHigh, "INVALID_KEY_SET",
		"key set is too small or contains a degenerate key")

	ErrMalformedMessage = NewMuSigError(
		ErrorCategoryEncoding, ErrorSeverityMedium, "MALFORMED_MESSAGE",
		"protocol message could not be decoded")

	ErrIncompleteOrMismatchedNonceSet = NewMuSigError(
		ErrorCategorySigning, ErrorSeverityHigh, "INCOMPLETE_OR_MISMATCHED_NONCE_SET",
		"nonce commitments do not match the session key set")

	ErrNonceAlreadyConsumed = NewMuSigError(
		ErrorCategoryNonce, ErrorSeverityHigh, "NONCE_ALREADY_CONSUMED",
		"secret nonce state has already been used; run round one again")

	ErrInvalidAggregateSignature = NewMuSigError(
		ErrorCategoryAggregation, ErrorSeverityHigh, "INVALID_AGGREGATE_SIGNATURE",
		"aggregated signature does not verify")
)

// Supporting errors
var (
	ErrInvalidSecretKey = NewMuSigError(
		ErrorCategoryValidation, ErrorSeverityHigh, "INVALID_SECRET_KEY",
		"secret key is invalid")

	ErrInvalidSessionParams = NewMuSigError(
		ErrorCategoryValidation, ErrorSeverityMedium, "INVALID_SESSION_PARAMS",
		"session parameters are invalid")

	ErrRandomnessGeneration = NewMuSigError(
		ErrorCategoryCryptographic, ErrorSeverityCritical, "RANDOMNESS_GENERATION_FAILED",
		"failed to generate secure randomness")

	ErrInvalidState = NewMuSigError(
		ErrorCategoryInternal, ErrorSeverityHigh, "INVALID_STATE",
		"session is not in the required phase")
)

// IsErrorCategory checks if an error belongs to a specific category
func IsErrorCategory(err error, category ErrorCategory) bool {
	var musigErr *MuSigError
	if errors.As(err, &musigErr) {
		return musigErr.Category == category
	}
	return false
}

// IsRecoverableError checks if an error is recoverable
func IsRecoverableError(err error) bool {
	var musigErr *MuSigError
	if errors.As(err, &musigErr) {
		return musigErr.IsRecoverable()
	}
	return true // Non-protocol errors are assumed recoverable
}

// GetErrorContext extracts context from a protocol error
func GetErrorContext(err error) map[string]interface{} {
	var musigErr *MuSigError
	if errors.As(err, &musigErr) {
		return musigErr.Context
	}
	return nil
}
