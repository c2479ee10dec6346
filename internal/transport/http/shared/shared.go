// Package shared holds the response helpers every handler package uses.
package shared

import (
	"encoding/json"
	"net/http"

	"racereg/pkg/domerr"
)

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError maps a domain error to its HTTP status and writes the error
// envelope. Anything without a code becomes a 500 with a generic message so
// internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := domerr.CodeOf(err)
	WriteJSON(w, domerr.ToHTTPStatus(code), errorEnvelope{
		Error:   string(code),
		Message: domerr.MessageOf(err),
	})
}
