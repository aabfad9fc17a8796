package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// decodeJSON decodes the request body into v. It writes the error response
// itself and reports false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, io.EOF):
		writeBadRequest(w, "request body is required")
	default:
		writeBadRequest(w, "invalid JSON body: "+err.Error())
	}
	return false
}
