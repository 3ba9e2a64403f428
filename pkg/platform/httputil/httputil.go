// Package httputil holds the JSON response helpers shared by handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "mintgate/pkg/domain-errors"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope
// {"error": message, "code": code}. Causes wrapped by the domain error are never
// written to the client.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithFields(w, err, nil)
}

// WriteErrorWithFields is WriteError with extra top-level fields merged into the
// envelope (for example the tokenURI of an already-minted token).
func WriteErrorWithFields(w http.ResponseWriter, err error, fields map[string]any) {
	code := dErrors.CodeOf(err)
	body := map[string]any{
		"error": dErrors.MessageOf(err),
		"code":  string(code),
	}
	for k, v := range fields {
		body[k] = v
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}
