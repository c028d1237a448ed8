package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrAlreadyCompleted  = errors.New("session already completed")
	ErrVersionConflict   = errors.New("version conflict")
	ErrProcessing        = errors.New("processing error")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrCannotRevise      = errors.New("session cannot be revised")
	ErrInvalidInput      = errors.New("invalid input")
)

// VersionConflictError carries both sides of a failed optimistic check
type VersionConflictError struct {
	Current  int64
	Expected *int64
}

func (e *VersionConflictError) Error() string {
	if e.Expected == nil {
		return fmt.Sprintf("version conflict: current version %d, no expected version", e.Current)
	}
	return fmt.Sprintf("version conflict: current version %d, expected %d", e.Current, *e.Expected)
}

// Is makes errors.Is(err, ErrVersionConflict) hold
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// Error codes exposed to clients
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "SESSION_NOT_FOUND"
	CodeAlreadyCompleted = "ALREADY_COMPLETED"
	CodeVersionConflict  = "VERSION_CONFLICT"
	CodeProcessing       = "PROCESSING_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeCannotRevise     = "CANNOT_REVISE"
	CodeInvalidState     = "INVALID_STATE"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorCode maps an error to its client-facing code
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyCompleted):
		return CodeAlreadyCompleted
	case errors.Is(err, ErrVersionConflict):
		return CodeVersionConflict
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrProcessing):
		return CodeProcessing
	case errors.Is(err, ErrCannotRevise):
		return CodeCannotRevise
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidState
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrSessionExists):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}

var plainMessages = map[string]string{
	CodeUnauthorized:     "Please sign in to continue.",
	CodeForbidden:        "This conversation belongs to another account.",
	CodeNotFound:         "We couldn't find your session. Please start a new conversation.",
	CodeAlreadyCompleted: "This onboarding is already complete.",
	CodeVersionConflict:  "Your conversation was updated elsewhere. We reloaded the latest state; your draft is kept.",
	CodeProcessing:       "The assistant couldn't respond. Please try again.",
	CodeRateLimited:      "The assistant is busy. Please try again in a moment.",
	CodeInvalidRequest:   "That request wasn't valid.",
	CodeCannotRevise:     "This onboarding can no longer be revised.",
	CodeInvalidState:     "That action isn't available for this conversation right now.",
	CodeInternal:         "Something went wrong on our end. Please try again in a moment.",
}

// PlainMessage converts an error code to user-facing language
func PlainMessage(code string) string {
	if msg, ok := plainMessages[code]; ok {
		return msg
	}
	return plainMessages[CodeInternal]
}

// Retryable reports whether the client may retry the same request later
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrSessionExists),
		errors.Is(err, ErrCannotRevise),
		errors.Is(err, ErrInvalidTransition):
		return false
	}
	return true
}

// ErrorBody is the client-facing description of a failure
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NewErrorBody describes err without leaking internal detail
func NewErrorBody(err error) ErrorBody {
	code := ErrorCode(err)
	return ErrorBody{
		Code:      code,
		Message:   PlainMessage(code),
		Retryable: Retryable(err),
	}
}

var codeErrors = map[string]error{
	CodeUnauthorized:     ErrUnauthorized,
	CodeForbidden:        ErrForbidden,
	CodeNotFound:         ErrNotFound,
	CodeAlreadyCompleted: ErrAlreadyCompleted,
	CodeVersionConflict:  ErrVersionConflict,
	CodeProcessing:       ErrProcessing,
	CodeRateLimited:      ErrRateLimited,
	CodeInvalidRequest:   ErrInvalidInput,
	CodeCannotRevise:     ErrCannotRevise,
	CodeInvalidState:     ErrInvalidTransition,
}

// ErrorFromCode maps a client-facing code back to its sentinel.
// Unknown codes map to ErrProcessing so that callers treat them as retryable.
func ErrorFromCode(code string) error {
	if err, ok := codeErrors[code]; ok {
		return err
	}
	return ErrProcessing
}
