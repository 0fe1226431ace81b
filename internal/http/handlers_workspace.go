package http

import (
	"net/http"

	"github.com/google/uuid"

	"festa/internal/auth"
	"festa/internal/core"
)

type registerResponse struct {
	Token     string           `json:"token"`
	Workspace workspacePayload `json:"workspace"`
}

// handleRegister creates a workspace for a new user and hands back a token.
// The workspace id doubles as the user id everywhere else in the API.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	ws := core.Workspace{
		ID:       uuid.NewString(),
		Email:    sanitizeInput(req.Email),
		Name:     sanitizeInput(req.Name),
		Language: req.Language,
		Currency: req.Currency,
	}
	if err := ws.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if err := s.budget.SaveWorkspace(r.Context(), ws); err != nil {
		writeError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(s.jwtSecret, ws.ID, ws.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{Token: token, Workspace: toWorkspacePayload(ws)})
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	ws, err := s.budget.GetWorkspace(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspacePayload(ws))
}

func (s *Server) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req workspaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	ws := core.Workspace{
		ID:       userID,
		Email:    sanitizeInput(req.Email),
		Name:     sanitizeInput(req.Name),
		Language: req.Language,
		Currency: req.Currency,
	}
	if err := ws.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if err := s.budget.SaveWorkspace(r.Context(), ws); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspacePayload(ws))
}
