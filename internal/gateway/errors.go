package gateway

import "net/http"

// Standard Error Responses

var (
	ErrValidation  = &Error{Code: "validation_error", Message: "Malformed request", Status: http.StatusBadRequest}
	ErrAuth        = &Error{Code: "auth_error", Message: "Missing or invalid credential", Status: http.StatusUnauthorized}
	ErrRateLimit   = &Error{Code: "rate_limit", Message: "Quota exceeded", Status: http.StatusTooManyRequests}
	ErrNotFound    = &Error{Code: "service_not_found", Message: "Service not found", Status: http.StatusServiceUnavailable}
	ErrUnavailable = &Error{Code: "service_unavailable", Message: "Connection lost to downstream service", Status: http.StatusServiceUnavailable}
	ErrTimeout     = &Error{Code: "timeout", Message: "Request timed out", Status: http.StatusGatewayTimeout}
	ErrInternal    = &Error{Code: "internal_error", Message: "Internal server error", Status: http.StatusInternalServerError}
)

// Error es la respuesta estructurada del boundary del gateway. Ningún error
// crudo cruza hacia el caller: todo se convierte a esto.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Status     int    `json:"-"`
	RetryAfter int    `json:"retryAfterSeconds,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// WithMessage devuelve una copia del error con otro mensaje.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Status: e.Status, RetryAfter: e.RetryAfter}
}

// WithRetryAfter devuelve una copia con el retry-after en segundos.
func (e *Error) WithRetryAfter(seconds int) *Error {
	return &Error{Code: e.Code, Message: e.Message, Status: e.Status, RetryAfter: seconds}
}
