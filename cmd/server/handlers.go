package main

import (
	"net/http"

	"github.com/lychee-technology/dynaform"
	"github.com/lychee-technology/dynaform/internal"
)

// handleCreateCollection handles POST /api/v1/collections
func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req dynaform.CreateCollectionRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.collections.CreateCollection(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleListCollections handles GET /api/v1/collections
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	list, err := s.collections.ListCollections(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*dynaform.Collection{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetCollection handles GET /api/v1/collections/{id}
func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.collections.GetCollection(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteCollection handles DELETE /api/v1/collections/{id}
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.collections.DeleteCollection(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status dynaform.CollectionStatus `json:"status"`
}

// handleSetCollectionStatus handles PATCH /api/v1/collections/{id}/status
func (s *Server) handleSetCollectionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req statusRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.collections.SetCollectionStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleAddField handles POST /api/v1/collections/{id}/fields
func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req dynaform.AddFieldRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := s.collections.AddField(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// handleUpdateField handles PATCH /api/v1/collections/{id}/fields/{fieldID}
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fieldID, err := uuidParam(r, "fieldID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req dynaform.UpdateFieldRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := s.collections.UpdateField(r.Context(), id, fieldID, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleDeleteField handles DELETE /api/v1/collections/{id}/fields/{fieldID}
func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fieldID, err := uuidParam(r, "fieldID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.collections.DeleteField(r.Context(), id, fieldID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddRelation handles POST /api/v1/collections/{id}/relations
func (s *Server) handleAddRelation(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req dynaform.AddRelationRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.CollectionID = id

	rel, err := s.collections.AddRelation(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

// handleFieldTypes handles GET /api/v1/field-types
func (s *Server) handleFieldTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.All())
}

type validateRequest struct {
	Value any                       `json:"value"`
	Type  dynaform.FieldType        `json:"type"`
	Rules *dynaform.ValidationRules `json:"rules,omitempty"`
}

// handleValidate handles POST /api/v1/validate. It checks one value against a
// field type and rules without touching any collection.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	writeJSON(w, http.StatusOK, internal.ValidateValue(req.Value, req.Type.Normalize(), req.Rules))
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
