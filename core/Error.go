package core

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

// Kind classifies every failure the gateway can report.
type Kind int

const (
	// AuthorizationUnavailable means permissions could not be determined.
	AuthorizationUnavailable Kind = iota + 1

	// Unauthorized is an explicit deny.
	Unauthorized

	// Unauthenticated means no identity could be derived from the request.
	Unauthenticated

	StorageUnavailable
	MalformedIdentifier
	MalformedBody
	UnsupportedMediaType
	StorageOperationFailed
)

// Code returns the HTTP status code for the kind.
func (k Kind) Code() int {
	switch k {
	case Unauthorized, MalformedIdentifier, UnsupportedMediaType:
		return http.StatusForbidden
	case Unauthenticated:
		return http.StatusUnauthorized
	case MalformedBody:
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

func (k Kind) String() string {
	switch k {
	case AuthorizationUnavailable:
		return "AuthorizationUnavailable"
	case Unauthorized:
		return "Unauthorized"
	case Unauthenticated:
		return "Unauthenticated"
	case StorageUnavailable:
		return "StorageUnavailable"
	case MalformedIdentifier:
		return "MalformedIdentifier"
	case MalformedBody:
		return "MalformedBody"
	case UnsupportedMediaType:
		return "UnsupportedMediaType"
	case StorageOperationFailed:
		return "StorageOperationFailed"
	}

	return "Unknown"
}

type (
	// Error is a failure carrying its status code as a "<code>: " message
	// prefix.
	Error struct {
		Kind    Kind
		Message string
		Err     error
	}

	// ErrorEnvelope is sent to callers on failure.
	ErrorEnvelope struct {
		Error ErrorBody `json:"error"`
	}

	ErrorBody struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

// NewError returns an Error of kind wrapping err, which may be nil.
func NewError(kind Kind, err error, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *Error) Error() string {
	message := fmt.Sprintf("%03d: %s", e.Kind.Code(), e.Message)
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}

	return message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or zero if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}

var codePattern = regexp.MustCompile(`^(\d{3}):`)

// Normalize turns any error into a status code and an envelope. The code is
// read from a leading "<3 digits>:" in the message and defaults to 500.
func Normalize(err error) (int, ErrorEnvelope) {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}

	code := http.StatusInternalServerError
	if match := codePattern.FindStringSubmatch(message); match != nil {
		parsed, _ := strconv.Atoi(match[1])
		if parsed >= 100 && parsed <= 599 {
			code = parsed
		}
	}

	return code, ErrorEnvelope{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	}
}
