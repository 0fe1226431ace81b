package http

import (
	"net/http"

	"festa/internal/auth"
	"festa/internal/core"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	events, err := s.budget.ListEvents(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload := make([]eventPayload, 0, len(events))
	for _, e := range events {
		payload = append(payload, toEventPayload(e))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	event, err := req.toEvent(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := event.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	created, err := s.budget.CreateEvent(r.Context(), event)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventPayload(created))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	event, err := s.ownedEvent(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventPayload(event))
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	event, err := req.toEvent(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	event.ID = r.PathValue("eventID")
	if err := event.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	if err := s.budget.UpdateEvent(r.Context(), event); err != nil {
		writeError(w, r, err)
		return
	}

	// Reload so the response carries the derived totals, which the update
	// request does not touch.
	updated, err := s.repo.GetEvent(r.Context(), event.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventPayload(updated))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	if err := s.budget.DeleteEvent(r.Context(), userID, r.PathValue("eventID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	ov, err := s.budget.Overview(r.Context(), userID, r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverviewPayload(ov))
}

// handleRecalculate forces a full aggregate rebuild for one event and
// reports every figure that had drifted.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	if _, err := s.ownedEvent(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.recalc.Recalculate(r.Context(), r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ownedEvent loads the event from the path and checks it belongs to the
// caller. Foreign events are indistinguishable from missing ones.
func (s *Server) ownedEvent(r *http.Request, userID string) (core.Event, error) {
	event, err := s.repo.GetEvent(r.Context(), r.PathValue("eventID"))
	if err != nil {
		return core.Event{}, err
	}
	if event.UserID != userID {
		return core.Event{}, core.ErrNotFound
	}
	return event, nil
}
