package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/domain"
)

// API error codes in addition to the ones owned by the domain package.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeRateLimited       = "RATE_LIMITED"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeGateNotReady      = "GATE_NOT_READY"
	CodeWalletUnavailable = "WALLET_UNAVAILABLE"
	CodeCreditRejected    = "CREDIT_REJECTED"
	CodeInternal          = "INTERNAL_ERROR"
)

const maxRequestBody int64 = 64 << 10

// Handler serves the reward REST API.
type Handler struct {
	service *app.RewardService
	limiter *UserLimiter
	logger  zerolog.Logger
}

func NewHandler(service *app.RewardService, limiter *UserLimiter, logger zerolog.Logger) *Handler {
	return &Handler{service: service, limiter: limiter, logger: logger}
}

// NewRouter mounts the REST API, the watch websocket, health and metrics.
func NewRouter(h *Handler, ws *WSHandler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/reward-playlists", h.CreatePlaylist)
		r.Get("/reward-sessions/{sessionId}", h.GetSession)
		r.Post("/reward-sessions/{sessionId}/complete", h.CompleteSession)
		if ws != nil {
			r.Get("/ws/watch", ws.ServeWS)
		}
	})
	return r
}

type playlistRequest struct {
	UserID          string   `json:"userId"`
	EventType       string   `json:"eventType"`
	OriginalReward  int      `json:"originalReward"`
	ExcludeVideoIDs []string `json:"excludeVideoIds"`
}

type completeRequest struct {
	UserID          string   `json:"userId"`
	WatchedVideoIDs []string `json:"watchedVideoIds"`
}

type completeResponse struct {
	Success          bool     `json:"success"`
	Credited         bool     `json:"credited"`
	AlreadyCompleted bool     `json:"alreadyCompleted"`
	WatchedVideoIDs  []string `json:"watchedVideoIds"`
	Coins            int      `json:"coins"`
	Lives            int      `json:"lives"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CreatePlaylist handles POST /v1/reward-playlists.
func (h *Handler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "userId and eventType are required")
		return
	}
	if !h.limiter.Allow(req.UserID) {
		writeError(w, http.StatusTooManyRequests, CodeRateLimited, "too many reward playlist requests")
		return
	}

	result, err := h.service.RequestRewardPlaylist(r.Context(), domain.PlaylistRequest{
		UserID:          req.UserID,
		EventType:       domain.EventType(req.EventType),
		OriginalReward:  req.OriginalReward,
		ExcludeVideoIDs: req.ExcludeVideoIDs,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	status := http.StatusOK
	if errors.Is(result.Err(), domain.ErrCatalogUnavailable) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

// GetSession handles GET /v1/reward-sessions/{sessionId}?userId=.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "userId is required")
		return
	}
	session, err := h.service.GetSession(r.Context(), chi.URLParam(r, "sessionId"), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// CompleteSession handles POST /v1/reward-sessions/{sessionId}/complete.
func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "userId and watchedVideoIds are required")
		return
	}
	res, err := h.service.CompleteSession(r.Context(), chi.URLParam(r, "sessionId"), req.UserID, req.WatchedVideoIDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeResponse{
		Success:          true,
		Credited:         res.Credited,
		AlreadyCompleted: res.AlreadyCompleted,
		WatchedVideoIDs:  res.WatchedVideoIDs,
		Coins:            res.Grant.Coins,
		Lives:            res.Grant.Lives,
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("reward request failed")
	}
	writeError(w, status, code, err.Error())
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, CodeSessionNotFound
	case errors.Is(err, domain.ErrSessionForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, domain.ErrGateNotReady):
		return http.StatusConflict, CodeGateNotReady
	case errors.Is(err, domain.ErrNothingWatched), errors.Is(err, domain.ErrUnknownEventType):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, domain.ErrCreditRejected):
		return http.StatusUnprocessableEntity, CodeCreditRejected
	case errors.Is(err, domain.ErrWalletUnavailable):
		return http.StatusServiceUnavailable, CodeWalletUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: code, Message: message})
}
