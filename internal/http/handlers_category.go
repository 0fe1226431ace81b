package http

import (
	"net/http"

	"festa/internal/auth"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	if _, err := s.ownedEvent(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	cats, err := s.budget.ListCategories(r.Context(), r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload := make([]categoryPayload, 0, len(cats))
	for _, c := range cats {
		payload = append(payload, toCategoryPayload(c))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	cat, err := req.toCategory(r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := cat.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	created, err := s.budget.CreateCategory(r.Context(), userID, cat)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryPayload(created))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	cat, err := req.toCategory(r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	cat.ID = r.PathValue("categoryID")
	if err := cat.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	if err := s.budget.UpdateCategory(r.Context(), userID, cat); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryPayload(cat))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	err := s.budget.DeleteCategory(r.Context(), userID, r.PathValue("eventID"), r.PathValue("categoryID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
