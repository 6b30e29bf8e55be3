// Package httpx defines the JSON response envelope shared by handlers and
// middleware.  Every endpoint answers
// {success, data?|message?, error?:{message, code, details?}} so clients can
// branch on the machine-readable error code instead of parsing messages.
package httpx

import "github.com/labstack/echo/v4"

// Stable error codes surfaced in the envelope.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUserExists         = "USER_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeNoToken            = "NO_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeRefreshRequired    = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidRefresh     = "INVALID_REFRESH_TOKEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInsufficientRole   = "INSUFFICIENT_PERMISSIONS"
	CodeStrategyDenied     = "STRATEGY_ACCESS_DENIED"
	CodeStrategyNotFound   = "STRATEGY_NOT_FOUND"
	CodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorBody carries the failure payload of an envelope.
type ErrorBody struct {
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// Envelope is the uniform response wrapper.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// OK answers a successful request carrying data.
func OK(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Success: true, Data: data})
}

// Msg answers a successful request with only a human-readable message.
func Msg(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{Success: true, Message: message})
}

// Fail answers a failed request with a coded error.
func Fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Envelope{Success: false, Error: &ErrorBody{Message: message, Code: code}})
}

// FailDetails is Fail with an attached details payload (e.g. field errors).
func FailDetails(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, Envelope{Success: false, Error: &ErrorBody{Message: message, Code: code, Details: details}})
}
