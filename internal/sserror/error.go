package sserror

import "net/http"

// Tags identifying the error taxonomy exposed to clients.
const (
	TagInvalidID       = "invalid-id"
	TagInvalidLimit    = "invalid-limit"
	TagPayloadRequired = "payload-required"
	TagNotFound        = "not-found"
	TagExhausted       = "exhausted"
)

type (
	// An SSError represents the error format that can be rendered by the safeshare server.
	SSError struct {
		HTTPCode   int `json:"-"`
		FieldError err `json:"error"`
	}

	err struct {
		Tag     string `json:"tag,omitempty"`
		Message string `json:"message"`
	}
)

// StatusCode returns the HTTP status code.
func StatusCode(err error) int {
	if sserr, ok := err.(*SSError); ok && sserr.HTTPCode != 0 {
		return sserr.HTTPCode
	}
	return http.StatusInternalServerError
}

// Tag returns the error taxonomy tag, if any.
func Tag(err error) string {
	if sserr, ok := err.(*SSError); ok {
		return sserr.FieldError.Tag
	}
	return ""
}

// New returns a new SSError with the given message.
func New(message string) *SSError {
	return &SSError{FieldError: err{Message: message}}
}

// NewWithTagCode returns a new SSError with the given code, tag and message.
func NewWithTagCode(code int, tag, message string) *SSError {
	return &SSError{HTTPCode: code, FieldError: err{Tag: tag, Message: message}}
}

// InvalidID is raised when a handle does not have the canonical identifier shape.
func InvalidID() *SSError {
	return NewWithTagCode(http.StatusBadRequest, TagInvalidID, "Invalid identifier.")
}

// InvalidLimit is raised when a download limit is out of bounds.
func InvalidLimit() *SSError {
	return NewWithTagCode(http.StatusBadRequest, TagInvalidLimit, "Download limit must be between 1 and 100.")
}

// PayloadRequired is raised when a store request carries no payload.
func PayloadRequired() *SSError {
	return NewWithTagCode(http.StatusBadRequest, TagPayloadRequired, "No encrypted data provided.")
}

// NotFound is raised when no record exists for a handle.
func NotFound() *SSError {
	return NewWithTagCode(http.StatusNotFound, TagNotFound, "Content not found.")
}

// Exhausted is raised when a record's download limit has been reached.
func Exhausted() *SSError {
	return NewWithTagCode(http.StatusGone, TagExhausted, "Content has been deleted due to download limit.")
}

// Error implements error interface.
func (e *SSError) Error() string {
	return e.FieldError.Message
}
