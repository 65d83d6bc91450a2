// Package httpx holds the JSON response helpers shared by every route.
package httpx

import (
	"encoding/json"
	"net/http"
)

// APIError is the error envelope returned by every non-2xx response. Code is
// a stable machine-readable tag; Details carries per-field validation errors
// when present.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details any) {
	WriteJSON(w, status, APIError{Error: msg, Code: code, Details: details})
}
