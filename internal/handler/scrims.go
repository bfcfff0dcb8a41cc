package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scrim-lobby/internal/domain"
)

const dateLayout = "2006-01-02"

// CreateScrim opens a new scrim organized by the caller
func (h *Handler) CreateScrim(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateScrimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	scrim, err := h.service.CreateScrim(r.Context(), req, actorID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeCreated(w, scrim)
}

// ListScrims returns open scrims matching the query filters
func (h *Handler) ListScrims(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	scrims, err := h.service.ListScrims(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, scrims)
}

// MyScrims returns the scrims the caller organizes or applied to
func (h *Handler) MyScrims(w http.ResponseWriter, r *http.Request) {
	scrims, err := h.service.FindMyScrims(r.Context(), actorID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, scrims)
}

// GetScrim returns one scrim
func (h *Handler) GetScrim(w http.ResponseWriter, r *http.Request) {
	scrim, err := h.service.GetScrim(r.Context(), chi.URLParam(r, "scrimID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, scrim)
}

// Apply submits the caller's application
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var req domain.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	app, err := h.service.ApplyToScrim(r.Context(), chi.URLParam(r, "scrimID"), req, actorID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeCreated(w, app)
}

// ListApplications returns every application of a scrim
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.ListApplications(r.Context(), chi.URLParam(r, "scrimID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, apps)
}

// AcceptApplication accepts a pending application
func (h *Handler) AcceptApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.AcceptApplication(r.Context(),
		chi.URLParam(r, "scrimID"),
		chi.URLParam(r, "applicationID"),
		actorID(r.Context()),
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, app)
}

// RejectApplication rejects a pending application
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.RejectApplication(r.Context(),
		chi.URLParam(r, "scrimID"),
		chi.URLParam(r, "applicationID"),
		actorID(r.Context()),
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, app)
}

// Confirm records the caller's participation confirmation
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(scrimID, actor string) error {
		return h.service.ConfirmParticipation(r.Context(), scrimID, actor)
	})
}

// Start moves a confirmed scrim to EN_JUEGO
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(scrimID, actor string) error {
		return h.service.StartScrim(r.Context(), scrimID, actor)
	})
}

// Cancel cancels a scrim that has not started
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(scrimID, actor string) error {
		return h.service.CancelScrim(r.Context(), scrimID, actor)
	})
}

// Finalize closes a scrim in play
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(scrimID, actor string) error {
		return h.service.FinalizeScrim(r.Context(), scrimID, actor)
	})
}

// transition runs a state change and responds with the resulting scrim
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(scrimID, actor string) error) {
	scrimID := chi.URLParam(r, "scrimID")
	if err := apply(scrimID, actorID(r.Context())); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	scrim, err := h.service.GetScrim(r.Context(), scrimID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, scrim)
}

// UploadStatistics stores per-player results of a finished scrim
func (h *Handler) UploadStatistics(w http.ResponseWriter, r *http.Request) {
	var entries []domain.StatisticRequest
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	stats, err := h.service.UploadStatistics(r.Context(), chi.URLParam(r, "scrimID"), entries, actorID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeCreated(w, stats)
}

// ListStatistics returns the uploaded results of a scrim
func (h *Handler) ListStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ListStatistics(r.Context(), chi.URLParam(r, "scrimID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, stats)
}

func parseFilter(r *http.Request) (domain.ScrimFilter, error) {
	q := r.URL.Query()
	filter := domain.ScrimFilter{
		Game:    q.Get("game"),
		Region:  q.Get("region"),
		RankMin: q.Get("rank_min"),
		RankMax: q.Get("rank_max"),
		Format:  domain.Format(q.Get("format")),
	}

	if v := q.Get("max_latency"); v != "" {
		latency, err := strconv.Atoi(v)
		if err != nil || latency < 0 {
			return filter, fmt.Errorf("%w: max_latency must be a non-negative integer", domain.ErrInvalidRequest)
		}
		filter.MaxLatency = latency
	}

	if v := q.Get("date"); v != "" {
		date, err := time.Parse(dateLayout, v)
		if err != nil {
			return filter, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidRequest)
		}
		filter.Date = date
	}

	return filter, nil
}
