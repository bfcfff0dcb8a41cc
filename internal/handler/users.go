package handler

import (
	"encoding/json"
	"net/http"

	"github.com/scrim-lobby/internal/domain"
)

// GetMe returns the caller's user record
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.FindUserByID(r.Context(), actorID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, u)
}

// UpdateProfile replaces the caller's public profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), actorID(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, u)
}

// UpdatePreferences replaces the caller's notification and search preferences
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req domain.PreferencesUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	prefs, err := h.users.UpdatePreferences(r.Context(), actorID(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, prefs)
}
