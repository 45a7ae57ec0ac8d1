package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidBody is returned when the request body cannot be decoded.
	ErrInvalidBody = errors.New("invalid request body")
	// ErrMissingField is returned when a required field is absent or empty.
	ErrMissingField = errors.New("missing required fields")
	// ErrInvalidEmail is returned when an email does not have an address shape.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrWeakPassword is returned when a password is shorter than the minimum length.
	ErrWeakPassword = errors.New("password must be at least 8 characters long")
	// ErrPasswordTooLong is returned when a password exceeds what bcrypt can hash.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes long")
	// ErrInvalidRole is returned when a role is not registered.
	ErrInvalidRole = errors.New("invalid role")
	// ErrAlreadyRegistered is returned when the email belongs to another user.
	ErrAlreadyRegistered = errors.New("user already registered")
	// ErrInvalidCredentials is returned when email or password is incorrect.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrTokenMissing is returned when a protected route gets no bearer token.
	ErrTokenMissing = errors.New("missing authorization token")
	// ErrTokenInvalid is returned for malformed, unsigned or tampered tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token has expired")
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("insufficient role")
	// ErrUserNotFound is returned when the referenced user no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// Response is the envelope every endpoint answers with.
type Response struct {
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
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

// ErrorData is the data payload of a failed request.
type ErrorData struct {
	Code string `json:"code"`
}

// ToResponse converts an HTTPError to the response envelope.
func (e *HTTPError) ToResponse() Response {
	return Response{
		StatusCode: e.StatusCode,
		Message:    e.Message,
		Data:       ErrorData{Code: e.Code},
	}
}

var statusTable = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{ErrInvalidBody, http.StatusBadRequest, "INVALID_BODY", "Invalid request body"},
	{ErrMissingField, http.StatusBadRequest, "MISSING_FIELD", "Missing required fields"},
	{ErrInvalidEmail, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email format"},
	{ErrWeakPassword, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 8 characters long"},
	{ErrPasswordTooLong, http.StatusBadRequest, "PASSWORD_TOO_LONG", "Password must be at most 72 bytes long"},
	{ErrInvalidRole, http.StatusBadRequest, "INVALID_ROLE", "Invalid role"},
	{ErrAlreadyRegistered, http.StatusBadRequest, "ALREADY_REGISTERED", "User already registered"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Incorrect email or password"},
	{ErrTokenMissing, http.StatusUnauthorized, "TOKEN_MISSING", "Missing authorization token"},
	{ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired"},
	{ErrTokenInvalid, http.StatusUnauthorized, "TOKEN_INVALID", "Invalid token"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Insufficient role"},
	{ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"},
}

// MapErrorToHTTP maps domain errors to HTTP errors. Unknown errors become a 500
// that does not leak the cause.
func MapErrorToHTTP(err error) *HTTPError {
	for _, entry := range statusTable {
		if errors.Is(err, entry.err) {
			return NewHTTPError(entry.status, entry.msg, entry.code)
		}
	}
	return NewHTTPError(http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR")
}
