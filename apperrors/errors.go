package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindRateLimited
	KindProvider
	KindUnexpectedResponse
	KindStoreWrite
	KindParse
	KindSourceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindRateLimited:
		return "RateLimited"
	case KindProvider:
		return "ProviderError"
	case KindUnexpectedResponse:
		return "UnexpectedResponseShape"
	case KindStoreWrite:
		return "StoreWriteError"
	case KindParse:
		return "ParseError"
	case KindSourceUnavailable:
		return "SourceUnavailable"
	default:
		return "InternalError"
	}
}

// Error is the application error carried across service and controller layers.
type Error struct {
	Kind    Kind
	Message string // user-facing message
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind wrapping err.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func InvalidArgument(message string) *Error { return New(KindInvalidArgument, message) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the user-facing message of err, or fallback.
func MessageOf(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// StatusCode maps err to the HTTP status returned to clients.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// FromAWS classifies an AWS SDK error by the error code the service reported.
// Errors that are already *Error are returned unchanged.
func FromAWS(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return Wrap(awsKind(err), err, message)
}

// AWSCode returns the service error code of err, or "".
func AWSCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func awsKind(err error) Kind {
	switch AWSCode(err) {
	case "ValidationException", "InvalidParameterException", "InvalidPasswordException",
		"CodeMismatchException", "ExpiredCodeException":
		return KindValidation
	case "ResourceNotFoundException", "UserNotFoundException":
		return KindNotFound
	case "UsernameExistsException", "AliasExistsException", "ConditionalCheckFailedException":
		return KindConflict
	case "ProvisionedThroughputExceededException", "ThrottlingException", "LimitExceededException",
		"TooManyRequestsException", "RequestLimitExceeded":
		return KindRateLimited
	default:
		return KindInternal
	}
}

// FromAWSMessages is FromAWS with a user-facing message chosen per kind.
// Kinds missing from messages get fallback.
func FromAWSMessages(err error, fallback string, messages map[Kind]string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	kind := awsKind(err)
	msg, ok := messages[kind]
	if !ok {
		msg = fallback
	}
	return Wrap(kind, err, msg)
}
