package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInFlight      Code = "SUBMISSION_IN_FLIGHT"
	CodeIdempotency   Code = "IDEMPOTENCY_CONFLICT"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInsufficient  Code = "INSUFFICIENT_FUNDS"
	CodeLedgerReject  Code = "LEDGER_REJECTED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// DetailsAllowed lets structured details reach the client.
	DetailsAllowed bool
	// ExposeMessage lets the error's own message replace PublicMessage.
	ExposeMessage bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	details
	exposed
)

func describe(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&details != 0,
		ExposeMessage:  traits&exposed != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    describe(http.StatusBadRequest, "validation failed", details|exposed),
	CodeUnauthorized:  describe(http.StatusUnauthorized, "authentication required", exposed),
	CodeForbidden:     describe(http.StatusForbidden, "access denied", exposed),
	CodeNotFound:      describe(http.StatusNotFound, "resource not found", exposed),
	CodeConflict:      describe(http.StatusConflict, "conflict detected", exposed),
	CodeStateConflict: describe(http.StatusUnprocessableEntity, "state transition disallowed", details|exposed),
	CodeInFlight:      describe(http.StatusConflict, "a submission for this action is already in flight", details|exposed),
	CodeIdempotency:   describe(http.StatusConflict, "idempotency key conflict", exposed),
	CodeRateLimit:     describe(http.StatusTooManyRequests, "rate limit exceeded", retryable|details|exposed),
	CodeInsufficient:  describe(http.StatusPaymentRequired, "insufficient funds", details|exposed),
	CodeLedgerReject:  describe(http.StatusUnprocessableEntity, "ledger rejected the transaction", details|exposed),
	CodeInternal:      describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried from services to the HTTP envelope.
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

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// PublicMessage is the text a client may see for this error.
func (e *Error) PublicMessage() string {
	meta := MetadataFor(e.Code())
	if meta.ExposeMessage && e.Message() != "" {
		return e.Message()
	}
	return meta.PublicMessage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost typed error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsRetryable reports whether err carries a code a caller may retry.
func IsRetryable(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.Code()).Retryable
}
