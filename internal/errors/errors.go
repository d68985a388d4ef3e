package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced user or address does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned for missing or bad credentials.
	ErrUnauthorized = errors.New("authentication credentials were not provided or are invalid")
	// ErrForbidden is returned when the caller may not act on the target record.
	ErrForbidden = errors.New("user is not allowed to perform this action")
	// ErrUserAlreadyExists is returned when registering an email that is taken.
	ErrUserAlreadyExists = errors.New("user with this email address already exists")
	// ErrInvalidToken is the only outcome reported for a failed reset token check.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMailDelivery is returned when the outbound mail could not be sent.
	// State committed before the send attempt is kept, so the call may be retried.
	ErrMailDelivery = errors.New("error sending mail")
)

// ValidationError carries field-level messages for bad input or policy violations.
// Messages under NonFieldKey apply to the request as a whole.
type ValidationError struct {
	Fields map[string][]string
}

// NonFieldKey collects messages that do not belong to a single field.
const NonFieldKey = "non_field_errors"

// NewValidationError builds a ValidationError with a single message.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add appends a message for field.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], message)
}

// Merge copies every message of other into v.
func (v *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, msgs := range other.Fields {
		for _, m := range msgs {
			v.Add(field, m)
		}
	}
}

// Empty reports whether no message was recorded.
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// Messages returns every message, fields in lexical order.
func (v *ValidationError) Messages() []string {
	if v == nil {
		return nil
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		out = append(out, v.Fields[k]...)
	}
	return out
}

func (v *ValidationError) Error() string {
	if v.Empty() {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(v.Messages(), "; "))
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Fields     map[string][]string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error:  e.Message,
		Code:   e.Code,
		Fields: e.Fields,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpErr := NewHTTPError(http.StatusBadRequest, "validation failed", "VALIDATION_ERROR")
		httpErr.Fields = verr.Fields
		return httpErr
	case errors.Is(err, ErrNotFound):
		return NewHTTPError(http.StatusNotFound, "not found", "NOT_FOUND")
	case errors.Is(err, ErrUnauthorized):
		return NewHTTPError(http.StatusUnauthorized, ErrUnauthorized.Error(), "UNAUTHORIZED")
	case errors.Is(err, ErrForbidden):
		return NewHTTPError(http.StatusForbidden, ErrForbidden.Error(), "FORBIDDEN")
	case errors.Is(err, ErrUserAlreadyExists):
		return NewHTTPError(http.StatusConflict, ErrUserAlreadyExists.Error(), "USER_ALREADY_EXISTS")
	case errors.Is(err, ErrInvalidToken):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidToken.Error(), "INVALID_TOKEN")
	case errors.Is(err, ErrMailDelivery):
		return NewHTTPError(http.StatusServiceUnavailable, ErrMailDelivery.Error(), "MAIL_DELIVERY_FAILED")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
