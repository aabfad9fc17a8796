package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/equipctl/internal/auth"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch auth.UserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	user, err := s.auth.Update(r.Context(), chi.URLParam(r, "userId"), patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeactivateUser marks the user inactive. The row is kept because
// reservations refer to it.
func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Deactivate(r.Context(), chi.URLParam(r, "userId")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
