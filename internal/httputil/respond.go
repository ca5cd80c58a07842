package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the standard JSON error response body. Code is stable and
// machine-readable; Details carries validation specifics when present.
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// RespondErrorDetails writes a JSON error response with validation details.
func RespondErrorDetails(w http.ResponseWriter, status int, code, message string, details []string) {
	RespondJSON(w, status, ErrorResponse{Code: code, Message: message, Details: details})
}
