package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/equipctl/internal/reservation"
)

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	items, err := s.ledger.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []reservation.Reservation{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateReservation books equipment. An omitted userId books for the
// authenticated caller.
func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req reservation.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		if user, ok := userFromContext(r.Context()); ok {
			req.UserID = user.ID
		}
	}

	res, err := s.ledger.Create(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListReservationStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNilEntries(s.ledger.ListStatuses()))
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.Get(r.Context(), chi.URLParam(r, "reservationId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	var req reservation.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StatusID == "" {
		writeBadRequest(w, "statusId is required")
		return
	}

	res, err := s.ledger.UpdateStatus(r.Context(), chi.URLParam(r, "reservationId"), req.StatusID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelReservation marks the reservation Canceled. Reservations are
// never physically deleted.
func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Cancel(r.Context(), chi.URLParam(r, "reservationId")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
