// Package apperrors defines the API error vocabulary. Every error code maps to
// one HTTP status and one Stripe-style error type.
package apperrors

import (
	"errors"
	"net/http"
)

type ErrorCode string

const (
	ErrorCodeInternalError     ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError   ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrorCodeAuthTokenExpired  ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid  ErrorCode = "AUTH_TOKEN_INVALID"
	ErrorCodeLookupUpstream    ErrorCode = "LOOKUP_UPSTREAM_ERROR"
	ErrorCodeLookupRejected    ErrorCode = "LOOKUP_REMOTE_REJECTED"
	ErrorCodeLookupCanceled    ErrorCode = "LOOKUP_CANCELED"
	ErrorCodeLookupUnavailable ErrorCode = "LOOKUP_UNAVAILABLE"
	ErrorCodeJobNotFound       ErrorCode = "JOB_NOT_FOUND"
	ErrorCodeJobFinished       ErrorCode = "JOB_FINISHED"
)

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPIError       ErrorType = "api_error"
	ErrorTypeAuthError      ErrorType = "authentication_error"
	// ErrorTypeUpstream marks failures of MusicBrainz, Cover Art Archive or Wikipedia
	// rather than of this service.
	ErrorTypeUpstream ErrorType = "upstream_error"
)

// StatusClientClosedRequest is returned when the caller's lookups were canceled.
const StatusClientClosedRequest = 499

type codeSpec struct {
	status  int
	errType ErrorType
}

var codeSpecs = map[ErrorCode]codeSpec{
	ErrorCodeInternalError:     {http.StatusInternalServerError, ErrorTypeAPIError},
	ErrorCodeValidationError:   {http.StatusBadRequest, ErrorTypeInvalidRequest},
	ErrorCodeNotFound:          {http.StatusNotFound, ErrorTypeInvalidRequest},
	ErrorCodeUnauthorized:      {http.StatusUnauthorized, ErrorTypeAuthError},
	ErrorCodeAuthTokenExpired:  {http.StatusUnauthorized, ErrorTypeAuthError},
	ErrorCodeAuthTokenInvalid:  {http.StatusUnauthorized, ErrorTypeAuthError},
	ErrorCodeLookupUpstream:    {http.StatusBadGateway, ErrorTypeUpstream},
	ErrorCodeLookupRejected:    {http.StatusBadGateway, ErrorTypeUpstream},
	ErrorCodeLookupCanceled:    {StatusClientClosedRequest, ErrorTypeInvalidRequest},
	ErrorCodeLookupUnavailable: {http.StatusServiceUnavailable, ErrorTypeAPIError},
	ErrorCodeJobNotFound:       {http.StatusNotFound, ErrorTypeInvalidRequest},
	ErrorCodeJobFinished:       {http.StatusConflict, ErrorTypeInvalidRequest},
}

// Remediation tells the client what to do next.
type Remediation struct {
	Action     string `json:"action"`
	UserAction string `json:"user_action,omitempty"`
}

// StripeErrorBody is the wire form of an error.
// Format: {"type": "upstream_error", "code": "LOOKUP_UPSTREAM_ERROR", "message": "..."}
type StripeErrorBody struct {
	Type        ErrorType      `json:"type"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Remediation *Remediation   `json:"remediation,omitempty"`
}

// AppError is an error that knows how it should be rendered over HTTP.
type AppError struct {
	Code        ErrorCode
	Message     string
	StatusCode  int
	Details     map[string]any
	Remediation *Remediation
}

func (err *AppError) Error() string {
	return err.Message
}

// New creates an error for a registered code. Unknown codes render as 500.
func New(code ErrorCode, message string) *AppError {
	spec, ok := codeSpecs[code]
	if !ok {
		spec = codeSpecs[ErrorCodeInternalError]
	}
	return &AppError{Code: code, Message: message, StatusCode: spec.status}
}

// WithDetails sets the details map and returns err.
func (err *AppError) WithDetails(details map[string]any) *AppError {
	err.Details = details
	return err
}

// WithRemediation sets the remediation hint and returns err.
func (err *AppError) WithRemediation(action, userAction string) *AppError {
	err.Remediation = &Remediation{Action: action, UserAction: userAction}
	return err
}

// Type reports the Stripe error type for the error's code.
func (err *AppError) Type() ErrorType {
	if spec, ok := codeSpecs[err.Code]; ok {
		return spec.errType
	}
	return ErrorTypeAPIError
}

// StripeErrorBody returns the error in wire format.
func (err *AppError) StripeErrorBody() StripeErrorBody {
	return StripeErrorBody{
		Type:        err.Type(),
		Code:        string(err.Code),
		Message:     err.Message,
		Details:     err.Details,
		Remediation: err.Remediation,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return New(ErrorCodeValidationError, message).WithDetails(details)
}

// NewUnauthorizedError defaults to UNAUTHORIZED; pass a more specific auth code
// when one applies.
func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	err := New(errCode, message)
	if errCode == ErrorCodeAuthTokenExpired {
		err.WithRemediation("mint_token", "Request a new access token")
	}
	return err
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return New(ErrorCodeNotFound, message).WithDetails(details)
}

// NewNotFoundResource reports a missing resource by kind and id.
func NewNotFoundResource(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	message := resource + " not found"
	if id != "" {
		message += ": " + id
		details["id"] = id
	}
	return NewNotFoundError(message, details)
}

func NewInternalError(message string) *AppError {
	return New(ErrorCodeInternalError, message)
}

// NewUpstreamError reports a metadata service that failed twice in a row.
// responseCode is the upstream HTTP status, 0 for network failures.
func NewUpstreamError(message string, responseCode int) *AppError {
	return New(ErrorCodeLookupUpstream, message).
		WithDetails(map[string]any{"response_code": responseCode}).
		WithRemediation("retry", "Try again later")
}

// NewRemoteRejectedError reports a query the metadata service refused.
func NewRemoteRejectedError(message string) *AppError {
	return New(ErrorCodeLookupRejected, message).WithRemediation("change_query", "")
}

func NewCanceledError(message string) *AppError {
	return New(ErrorCodeLookupCanceled, message)
}

func NewUnavailableError(message string) *AppError {
	return New(ErrorCodeLookupUnavailable, message).WithRemediation("retry", "")
}

// EnsureAppError converts an arbitrary error into an AppError. Wrapped AppErrors
// are unwrapped; anything else is hidden behind a generic 500.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error")
}
