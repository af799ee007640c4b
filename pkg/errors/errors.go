package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-facing identifier of a failure.
type Code string

// Transport-level codes.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Ledger codes.
const (
	CodeDistributionInvalid Code = "DISTRIBUTION_INVALID"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeAllocationExhausted Code = "ALLOCATION_EXHAUSTED"
	CodeRangeExceeded       Code = "RANGE_EXCEEDED"
	CodeSaleRecordingFailed Code = "SALE_RECORDING_FAILED"
	CodeRestoreFailed       Code = "RESTORE_FAILED"
	CodeInvalidOperation    Code = "INVALID_OPERATION"
	CodeQuotaExceeded       Code = "QUOTA_EXCEEDED"
)

// Metadata is how a code is rendered to clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage lets the error's own message replace PublicMessage.
	ExposeMessage bool
}

const (
	retryable   = true
	withDetails = true
	exposed     = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", withDetails, exposed},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false, exposed},
	CodeForbidden:     {http.StatusForbidden, false, "access denied", false, exposed},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false, exposed},
	CodeConflict:      {http.StatusConflict, false, "conflict detected", false, exposed},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", withDetails, exposed},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", withDetails, exposed},
	CodeRateLimit:     {http.StatusTooManyRequests, false, "rate limit exceeded", false, exposed},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", false, false},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails, false},

	CodeDistributionInvalid: {http.StatusBadRequest, false, "profit distribution is invalid", withDetails, exposed},
	CodeInvalidTransition:   {http.StatusConflict, false, "status transition not allowed", withDetails, exposed},
	CodeAllocationExhausted: {http.StatusServiceUnavailable, retryable, "could not allocate a unique number", withDetails, exposed},
	CodeRangeExceeded:       {http.StatusUnprocessableEntity, false, "number range exhausted", withDetails, exposed},
	CodeSaleRecordingFailed: {http.StatusInternalServerError, false, "sale could not be recorded", withDetails, false},
	CodeRestoreFailed:       {http.StatusInternalServerError, false, "pre-order could not be restored", withDetails, false},
	CodeInvalidOperation:    {http.StatusUnprocessableEntity, false, "operation not allowed in current state", withDetails, exposed},
	CodeQuotaExceeded:       {http.StatusForbidden, false, "plan limit reached", withDetails, exposed},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded failure with an internal message, optional client
// details and an optional cause.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails replaces the details attached to e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// WithDetail adds one key to map details, creating the map when needed.
// Non-map details are kept under "details".
func (e *Error) WithDetail(key string, value any) *Error {
	if e == nil {
		return nil
	}
	merged, ok := e.details.(map[string]any)
	if !ok {
		merged = map[string]any{}
		if e.details != nil {
			merged["details"] = e.details
		}
	}
	merged[key] = value
	e.details = merged
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so a bare New(code, "") works as a
// sentinel with errors.Is.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.code == other.code && (other.message == "" || other.message == e.message)
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether the outermost *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
