package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "arcpay/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into a consistent JSON envelope.
// Internal errors omit the description so server details never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal && code != dErrors.CodeStoreUnavailable {
		body["error_description"] = err.Error()
	}
	WriteJSON(w, status, body)
}

// Decode parses the request body into dst, returning a validation error the
// caller can hand straight to WriteError.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(dErrors.CodeValidation, "invalid request body", err)
	}
	return nil
}
