package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/equipctl/internal/auth"
	"github.com/nerrad567/equipctl/internal/command"
	"github.com/nerrad567/equipctl/internal/equipment"
	"github.com/nerrad567/equipctl/internal/reservation"
)

// Error is the body of every non-2xx response.
type Error struct {
	Detail string `json:"detail"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a {"detail": ...} error response.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, Error{Detail: detail})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, detail string) {
	writeError(w, http.StatusBadRequest, detail)
}

// writeUnauthorized writes a 401 error response with a bearer challenge.
func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, detail)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, detail string) {
	writeError(w, http.StatusInternalServerError, detail)
}

// errorStatus maps domain sentinels to HTTP status codes.
var errorStatus = []struct {
	err    error
	status int
}{
	{equipment.ErrNotFound, http.StatusNotFound},
	{equipment.ErrStatusNotFound, http.StatusNotFound},
	{equipment.ErrNoStatusLog, http.StatusNotFound},
	{equipment.ErrNameTaken, http.StatusConflict},
	{equipment.ErrHasDependents, http.StatusConflict},
	{equipment.ErrInvalid, http.StatusBadRequest},

	{reservation.ErrNotFound, http.StatusNotFound},
	{reservation.ErrUserNotFound, http.StatusNotFound},
	{reservation.ErrEquipmentNotFound, http.StatusNotFound},
	{reservation.ErrStatusNotFound, http.StatusNotFound},
	{reservation.ErrInvalidTransition, http.StatusConflict},
	{reservation.ErrInvalid, http.StatusBadRequest},
	{reservation.ErrStatusMisconfigured, http.StatusInternalServerError},

	{command.ErrNotFound, http.StatusNotFound},
	{command.ErrEquipmentNotFound, http.StatusNotFound},
	{command.ErrTypeNotFound, http.StatusNotFound},
	{command.ErrInvalid, http.StatusBadRequest},
	{command.ErrPublishFailed, http.StatusServiceUnavailable},

	{auth.ErrUserNotFound, http.StatusNotFound},
	{auth.ErrUsernameExists, http.StatusConflict},
	{auth.ErrEmailExists, http.StatusConflict},
	{auth.ErrInvalid, http.StatusBadRequest},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrUserInactive, http.StatusUnauthorized},
	{auth.ErrTokenInvalid, http.StatusUnauthorized},
}

// writeDomainError maps err to a status and writes it. Unmapped errors are
// logged and answered with a generic 500 so internals never leak.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			if m.status == http.StatusUnauthorized {
				writeUnauthorized(w, err.Error())
				return
			}
			if m.status >= http.StatusInternalServerError {
				s.logger.Error("request failed",
					"path", r.URL.Path,
					"request_id", r.Context().Value(ctxKeyRequestID),
					"error", err,
				)
			}
			writeError(w, m.status, err.Error())
			return
		}
	}

	s.logger.Error("unhandled error",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Context().Value(ctxKeyRequestID),
		"error", err,
	)
	writeInternalError(w, "internal server error")
}
