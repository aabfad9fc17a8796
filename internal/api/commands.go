package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/equipctl/internal/command"
)

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	items, err := s.dispatcher.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []command.Command{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleSubmitCommand persists and publishes a command. A publish failure
// still answers 201: the command row is kept and the dispatcher has logged
// the failure.
func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	var req command.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd, err := s.dispatcher.Submit(r.Context(), req)
	if err != nil && !(cmd != nil && errors.Is(err, command.ErrPublishFailed)) {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cmd)
}

func (s *Server) handleListCommandTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNilEntries(s.dispatcher.ListTypes()))
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.dispatcher.Get(r.Context(), chi.URLParam(r, "commandId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}
