package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// Error codes returned in the "error" field of every failed response.
const (
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeInvalidCredential      = "invalid_credential"
	ErrorCodeMFAFailed              = "mfa_failed"
	ErrorCodeInvalidToken           = "invalid_token"
	ErrorCodeInsufficientPermission = "insufficient_permission"
	ErrorCodeNotFound               = "not_found"
	ErrorCodeConflict               = "conflict"
	ErrorCodeRateLimited            = "rate_limited"
	ErrorCodeTemporarilyUnavailable = "temporarily_unavailable"
	ErrorCodeServerError            = "server_error"
)

// APIError is the wire error of the auth service. The server writes it and
// the SDK returns it, so callers can switch on Code.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on Code so errors.Is(err, authsdk.ErrMFAFailed) works for
// errors decoded from a response.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e as the JSON error envelope.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, httpx.ErrorBody{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

// WithDescription returns a copy of e carrying a more specific description.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidCredential is returned when the identity provider token is
	// rejected. The reason is never disclosed.
	ErrInvalidCredential = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredential,
		Description: "identity invalid",
	}

	// ErrMFAFailed covers a missing, expired, wrong or already used OTP.
	// All four share one message.
	ErrMFAFailed = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeMFAFailed,
		Description: "invalid or expired OTP",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the token is missing, invalid or expired",
	}

	ErrInsufficientPermission = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientPermission,
		Description: "the access token does not carry the required permission",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}

	ErrConflict = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeConflict,
		Description: "already exists",
	}

	ErrRateLimited = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimited,
		Description: "too many requests, retry later",
	}

	ErrTemporarilyUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeTemporarilyUnavailable,
		Description: "the service is temporarily unavailable",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies that
// are not the JSON envelope fall back to the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var env httpx.ErrorBody
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        env.Error,
			Description: env.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
