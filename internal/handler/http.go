package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/profile-scores/internal/domain"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 100
)

// ProfileAPI is the profile service surface exposed over HTTP
type ProfileAPI interface {
	VerifyAndStoreProfile(ctx context.Context, userID string, platform domain.Platform, username string) (*domain.ProfileRecord, error)
	RefreshAllProfiles(ctx context.Context, userID string) (*domain.RefreshReport, error)
	ListProfiles(ctx context.Context, userID string) ([]domain.ProfileRecord, error)
	GetTotalScore(ctx context.Context, userID string) (*domain.UserScore, error)
	ListRefreshEvents(ctx context.Context, userID string, limit int) ([]domain.RefreshEvent, error)
}

// Recomputer starts a bulk recomputation cycle in the background
type Recomputer interface {
	Trigger(ctx context.Context) bool
}

// RefreshPublisher enqueues refresh requests
type RefreshPublisher interface {
	PublishRefresh(userIDs ...string) ([]string, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the profile scores API
type Handler struct {
	profiles   ProfileAPI
	recomputer Recomputer
	publisher  RefreshPublisher
	db         Pinger
	metrics    http.Handler
	logger     *slog.Logger
}

// Option configures optional handler dependencies
type Option func(*Handler)

// WithPublisher enables the admin bulk refresh endpoint
func WithPublisher(p RefreshPublisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithReadiness makes /ready ping the given dependency
func WithReadiness(p Pinger) Option {
	return func(h *Handler) { h.db = p }
}

// WithMetrics serves the given handler on /metrics
func WithMetrics(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a new HTTP handler
func NewHandler(profiles ProfileAPI, recomputer Recomputer, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		profiles:   profiles,
		recomputer: recomputer,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
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

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/profiles", h.ListProfiles)
			r.Put("/profiles/refresh", h.RefreshProfiles)
			r.Post("/profiles/{platform}", h.VerifyProfile)
			r.Get("/score", h.GetScore)
			r.Get("/refresh-events", h.ListRefreshEvents)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recompute", h.Recompute)
			r.Post("/refresh", h.BulkRefresh)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
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
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
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

// writeServiceError maps a service error onto its HTTP status. Internal
// failures are logged and hidden from the caller.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, status, domain.ErrInternalError)
		return
	}
	h.writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupported),
		errors.Is(err, domain.ErrInvalidUsername),
		errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTransient), errors.Is(err, domain.ErrParseFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the database answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, errors.New("database unavailable"))
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// ListProfiles returns every linked profile of a user
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	records, err := h.profiles.ListProfiles(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_profiles", err)
		return
	}

	h.writeSuccess(w, records)
}

// VerifyProfile links a platform username to the user after fetching it
func (h *Handler) VerifyProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	platform, err := domain.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req domain.VerifyProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidUsername)
		return
	}

	rec, err := h.profiles.VerifyAndStoreProfile(r.Context(), userID, platform, req.Username)
	if err != nil {
		h.writeServiceError(w, "verify_profile", err)
		return
	}

	h.writeSuccess(w, rec)
}

// RefreshProfiles refreshes all of a user's profiles and reports per platform
func (h *Handler) RefreshProfiles(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	report, err := h.profiles.RefreshAllProfiles(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "refresh_profiles", err)
		return
	}

	h.writeSuccess(w, report)
}

// GetScore returns the user's aggregate total
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	score, err := h.profiles.GetTotalScore(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get_score", err)
		return
	}

	h.writeSuccess(w, score)
}

// ListRefreshEvents returns the user's recent refresh attempts
func (h *Handler) ListRefreshEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.profiles.ListRefreshEvents(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, "list_refresh_events", err)
		return
	}

	h.writeSuccess(w, events)
}

// Recompute starts a bulk recomputation in the background
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	if !h.recomputer.Trigger(context.WithoutCancel(r.Context())) {
		h.writeError(w, http.StatusServiceUnavailable, errors.New("server is shutting down"))
		return
	}

	h.writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"status": "accepted"},
	})
}

// BulkRefresh enqueues a refresh of every listed user
func (h *Handler) BulkRefresh(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		h.writeError(w, http.StatusServiceUnavailable, errors.New("bulk refresh requires kafka"))
		return
	}

	var req domain.BulkRefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	userIDs := make([]string, 0, len(req.UserIDs))
	for _, id := range req.UserIDs {
		if id = strings.TrimSpace(id); id != "" {
			userIDs = append(userIDs, id)
		}
	}
	if len(userIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	requestIDs, err := h.publisher.PublishRefresh(userIDs...)
	if err != nil {
		h.writeServiceError(w, "bulk_refresh", err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":      "accepted",
			"request_ids": requestIDs,
		},
	})
}
