package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"festa/internal/auth"
	"festa/internal/core"
	"festa/internal/services"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	if _, err := s.ownedEvent(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	expenses, err := s.budget.ListExpenses(r.Context(), userID, r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload := make([]expensePayload, 0, len(expenses))
	for _, e := range expenses {
		payload = append(payload, toExpensePayload(e))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	expense, err := s.ownedExpense(r, userID, r.PathValue("expenseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpensePayload(expense))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	expense, err := req.toExpense()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.ownedCategory(r, userID, expense.CategoryID); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.budget.CreateExpense(r.Context(), userID, expense)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpensePayload(created))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	expense, err := req.toExpense()
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense.ID = r.PathValue("expenseID")
	if _, err := s.ownedExpense(r, userID, expense.ID); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.ownedCategory(r, userID, expense.CategoryID); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.budget.UpdateExpense(r.Context(), userID, expense); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpensePayload(expense))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	if _, err := s.ownedExpense(r, userID, r.PathValue("expenseID")); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.budget.DeleteExpense(r.Context(), userID, r.PathValue("expenseID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPaidRequest struct {
	IsPaid bool `json:"is_paid"`
}

func (s *Server) handleSetPaymentPaid(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req setPaidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.budget.SetPaymentPaid(r.Context(), userID, r.PathValue("paymentID"), req.IsPaid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpcomingPayments(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	if _, err := s.ownedEvent(r, userID); err != nil {
		writeError(w, r, err)
		return
	}
	expenses, err := s.budget.ListExpenses(r.Context(), userID, r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	due := services.UpcomingPayments(expenses, time.Now())
	payload := make([]duePaymentPayload, 0, len(due))
	for _, d := range due {
		payload = append(payload, duePaymentPayload{
			Payment:     toPaymentPayload(d.Payment),
			ExpenseName: d.ExpenseName,
			Dueness:     string(d.Dueness),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

type attachmentPayload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// handleUploadAttachment accepts a multipart form with a single "file" part
// and links the stored blob to the expense.
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		http.NotFound(w, r)
		return
	}
	userID, _ := auth.UserID(r.Context())
	expenseID := r.PathValue("expenseID")
	if _, err := s.ownedExpense(r, userID, expenseID); err != nil {
		writeError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "missing file upload")
		return
	}
	defer file.Close()

	_, url, err := s.blobs.Save(r.Context(), expenseID, header.Filename, file)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	id := uuid.NewString()
	if err := s.repo.AddAttachment(r.Context(), id, expenseID, url); err != nil {
		// The blob exists but the row does not; remove it again so the
		// store does not accumulate orphans.
		_ = s.blobs.Delete(r.Context(), url)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachmentPayload{ID: id, URL: url})
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		http.NotFound(w, r)
		return
	}
	userID, _ := auth.UserID(r.Context())
	expenseID, err := s.repo.AttachmentExpense(r.Context(), r.PathValue("attachmentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.ownedExpense(r, userID, expenseID); err != nil {
		writeError(w, r, err)
		return
	}

	url, err := s.repo.DeleteAttachment(r.Context(), r.PathValue("attachmentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.blobs.Delete(r.Context(), url); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedExpense resolves an expense and walks up to its event to verify the
// caller owns it.
func (s *Server) ownedExpense(r *http.Request, userID, expenseID string) (core.Expense, error) {
	expense, err := s.repo.GetExpense(r.Context(), expenseID)
	if err != nil {
		return core.Expense{}, err
	}
	if _, err := s.ownedCategory(r, userID, expense.CategoryID); err != nil {
		return core.Expense{}, err
	}
	return expense, nil
}

func (s *Server) ownedCategory(r *http.Request, userID, categoryID string) (core.BudgetCategory, error) {
	cat, err := s.repo.GetCategory(r.Context(), categoryID)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	event, err := s.repo.GetEvent(r.Context(), cat.EventID)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	if event.UserID != userID {
		return core.BudgetCategory{}, core.ErrNotFound
	}
	return cat, nil
}
