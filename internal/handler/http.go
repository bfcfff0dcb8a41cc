package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/eventbus"
	"github.com/scrim-lobby/internal/service"
	"github.com/scrim-lobby/internal/websocket"
)

// Handler provides HTTP handlers for the scrim API
type Handler struct {
	service  *service.ScrimService
	feedback *service.FeedbackService
	users    *service.UserDirectory
	bus      *eventbus.Bus
	hub      *websocket.Hub
	auth     *config.AuthConfig
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	service *service.ScrimService,
	feedback *service.FeedbackService,
	users *service.UserDirectory,
	bus *eventbus.Bus,
	hub *websocket.Hub,
	auth *config.AuthConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		feedback: feedback,
		users:    users,
		bus:      bus,
		hub:      hub,
		auth:     auth,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)

	// WebSocket endpoint
	r.With(h.authenticateSocket).Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/scrims", func(r chi.Router) {
			r.Post("/", h.CreateScrim)
			r.Get("/", h.ListScrims)
			r.Get("/mine", h.MyScrims)

			r.Route("/{scrimID}", func(r chi.Router) {
				r.Get("/", h.GetScrim)

				r.Post("/applications", h.Apply)
				r.Get("/applications", h.ListApplications)
				r.Post("/applications/{applicationID}/accept", h.AcceptApplication)
				r.Post("/applications/{applicationID}/reject", h.RejectApplication)

				r.Post("/confirm", h.Confirm)
				r.Post("/start", h.Start)
				r.Post("/cancel", h.Cancel)
				r.Post("/finalize", h.Finalize)

				r.Post("/statistics", h.UploadStatistics)
				r.Get("/statistics", h.ListStatistics)

				r.Post("/feedback", h.SubmitFeedback)
				r.Get("/feedback", h.ListFeedback)
			})
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", h.GetMe)
			r.Put("/profile", h.UpdateProfile)
			r.Put("/preferences", h.UpdatePreferences)
		})

		r.Route("/admin/feedback", func(r chi.Router) {
			r.Get("/pending", h.ListPendingFeedback)
			r.Post("/{feedbackID}/moderate", h.ModerateFeedback)
		})

		r.Get("/events/stats", h.GetEventStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCreated writes a 201 JSON response
func (h *Handler) writeCreated(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a domain error to its HTTP status
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsInvalidState(err), domain.IsConflict(err):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsUnauthorized(err):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, actorID(r.Context()), w, r)
}

// GetEventStats returns event bus counters and realtime connection counts
func (h *Handler) GetEventStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"bus":               h.bus.Stats(),
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}
