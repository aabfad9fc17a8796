package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/equipctl/internal/equipment"
	"github.com/nerrad567/equipctl/internal/registry"
)

func (s *Server) handleListEquipment(w http.ResponseWriter, r *http.Request) {
	items, err := s.equipment.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []equipment.Equipment{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateEquipment(w http.ResponseWriter, r *http.Request) {
	var req equipment.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e, err := s.equipment.Create(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("equipment created", "equipment_id", e.ID, "name", e.Name)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetEquipment(w http.ResponseWriter, r *http.Request) {
	e, err := s.equipment.Get(r.Context(), chi.URLParam(r, "equipmentId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleUpdateEquipment applies a partial update. Fields sent as null are
// cleared; absent fields are left unchanged.
func (s *Server) handleUpdateEquipment(w http.ResponseWriter, r *http.Request) {
	var p equipment.Patch
	if !decodeJSON(w, r, &p) {
		return
	}

	e, err := s.equipment.Update(r.Context(), chi.URLParam(r, "equipmentId"), p)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEquipment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "equipmentId")
	if err := s.equipment.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("equipment deleted", "equipment_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetEquipmentStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.equipment.Status(r.Context(), chi.URLParam(r, "equipmentId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListEquipmentStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNilEntries(s.registry.EquipmentStatuses()))
}

// handleListStatusLogs serves both the global log and the per-equipment
// log. An unknown equipment id yields an empty list.
func (s *Server) handleListStatusLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.equipment.StatusLogs(r.Context(), chi.URLParam(r, "equipmentId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if logs == nil {
		logs = []equipment.StatusLogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func nonNilEntries(entries []registry.Entry) []registry.Entry {
	if entries == nil {
		return []registry.Entry{}
	}
	return entries
}
