package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scrim-lobby/internal/domain"
)

// SubmitFeedback rates another participant of a finished scrim
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req domain.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	fb, err := h.feedback.SubmitFeedback(r.Context(), chi.URLParam(r, "scrimID"), actorID(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeCreated(w, fb)
}

// ListFeedback returns the approved feedback of a scrim
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	views, err := h.feedback.ListApprovedFeedback(r.Context(), chi.URLParam(r, "scrimID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, views)
}

// ListPendingFeedback returns the moderation queue
func (h *Handler) ListPendingFeedback(w http.ResponseWriter, r *http.Request) {
	pending, err := h.feedback.ListPendingFeedback(r.Context(), actorID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, pending)
}

// ModerateFeedback approves or rejects one feedback
func (h *Handler) ModerateFeedback(w http.ResponseWriter, r *http.Request) {
	var req domain.ModerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	fb, err := h.feedback.ModerateFeedback(r.Context(), chi.URLParam(r, "feedbackID"), req, actorID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, fb)
}
