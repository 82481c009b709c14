package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorBody is the error envelope returned to callers.
type ErrorBody struct {
	Error      string   `json:"error"`
	Details    []string `json:"details,omitempty"`
	RetryAfter int      `json:"retryAfter,omitempty"`
}

// SetSecurityHeaders applies the fixed security header set. It is applied to
// every response, including the CORS preflight.
func SetSecurityHeaders(h http.Header) {
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	h.Set("Content-Security-Policy", "default-src 'none'")
}

func writeJSON(w http.ResponseWriter, statusCode int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	SetSecurityHeaders(w.Header())
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func WriteAuthError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: message})
}

// WriteRateLimitError writes a 429 with a retryAfter hint in both the body
// and the Retry-After header.
func WriteRateLimitError(w http.ResponseWriter, message string, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: message, RetryAfter: retryAfterSeconds})
}

func WritePayloadTooLargeError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusRequestEntityTooLarge, ErrorBody{Error: message})
}

func WriteBadRequestError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: message})
}

// WriteThreatDetectedError writes a 400 listing the triggered threat
// categories in the details field.
func WriteThreatDetectedError(w http.ResponseWriter, message string, labels []string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: message, Details: labels})
}

func WritePolicyDeniedError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusForbidden, ErrorBody{Error: message})
}

func WriteUpstreamRateLimitError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: message})
}

func WritePaymentRequiredError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusPaymentRequired, ErrorBody{Error: message})
}

func WriteGatewayTimeoutError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusGatewayTimeout, ErrorBody{Error: message})
}

func WriteInternalError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: message})
}
