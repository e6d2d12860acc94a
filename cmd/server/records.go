package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListRecords handles GET /api/v1/records/{collection}?page=&limit=
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r.URL.Query())

	result, err := s.records.List(r.Context(), chi.URLParam(r, "collection"), page, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCreateRecord handles POST /api/v1/records/{collection}
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := readJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.records.Create(r.Context(), chi.URLParam(r, "collection"), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleGetRecord handles GET /api/v1/records/{collection}/{id}
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.records.Get(r.Context(), chi.URLParam(r, "collection"), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateRecord handles PATCH /api/v1/records/{collection}/{id}
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var payload map[string]any
	if err := readJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.records.Update(r.Context(), chi.URLParam(r, "collection"), id, payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteRecord handles DELETE /api/v1/records/{collection}/{id}
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.records.Delete(r.Context(), chi.URLParam(r, "collection"), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
