package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/domain"
	"dingleup-reward-service/internal/gate"
	"dingleup-reward-service/internal/reward"
)

// WSHandler hosts a playback gate per watch connection. The client reports
// asset readiness, mute toggles and the close tap; the server owns the timer
// and streams state until the gate closes or the socket drops.
type WSHandler struct {
	service  *app.RewardService
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	tick     time.Duration
	now      func() time.Time
}

func NewWSHandler(service *app.RewardService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		tick:   gate.DefaultTickInterval,
		now:    time.Now,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type readyPayload struct {
	Segment int `json:"segment"`
}

type mutePayload struct {
	Muted bool `json:"muted"`
}

type rewardedPayload struct {
	SessionID        string   `json:"sessionId"`
	Credited         bool     `json:"credited"`
	AlreadyCompleted bool     `json:"alreadyCompleted"`
	WatchedVideoIDs  []string `json:"watchedVideoIds"`
	Coins            int      `json:"coins"`
	Lives            int      `json:"lives"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades GET /v1/ws/watch?sessionId=&userId= and runs the gate.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")
	if sessionID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "missing sessionId or userId")
		return
	}
	session, err := h.service.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	if session.Status == domain.SessionCompleted {
		writeError(w, http.StatusConflict, CodeInvalidRequest, "reward session already completed")
		return
	}
	logger := h.logger.With().Str("session_id", session.ID).Str("user_id", userID).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	forwardDone := make(chan struct{})

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	reconciler := reward.NewReconciler(
		func(ctx context.Context, watched []string) (domain.CompletionResult, error) {
			return h.service.CompleteSession(ctx, session.ID, userID, watched)
		},
		func(res domain.CompletionResult, err error) {
			if err != nil {
				_, code := errorStatus(err)
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: err.Error()}})
				return
			}
			push(outboundMessage[any]{Type: "rewarded", Payload: rewardedPayload{
				SessionID:        res.SessionID,
				Credited:         res.Credited,
				AlreadyCompleted: res.AlreadyCompleted,
				WatchedVideoIDs:  res.WatchedVideoIDs,
				Coins:            res.Grant.Coins,
				Lives:            res.Grant.Lives,
			}})
		},
		nil,
	)

	g, err := gate.NewWithClock(sessionPlaylist(session), h.service.SegmentDuration(), gate.Hooks{
		Reward: func(watched []string) {
			reconciler.Report(ctx, watched)
		},
		Completed: func() {
			logger.Debug().Msg("playback gate closed")
		},
	}, h.now)
	if err != nil {
		push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalidRequest, Message: err.Error()}})
		close(send)
		<-writerDone
		return
	}
	driver := gate.NewDriver(g, h.tick)
	driver.Start(ctx)

	go func() {
		defer close(forwardDone)
		for {
			select {
			case snap, ok := <-driver.Updates():
				if !ok {
					return
				}
				push(outboundMessage[any]{Type: "state", Payload: snap})
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "ready":
			var payload readyPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalidRequest, Message: "invalid ready payload"}})
					continue
				}
			}
			push(outboundMessage[any]{Type: "state", Payload: g.AssetReady(payload.Segment)})
		case "mute":
			var payload mutePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalidRequest, Message: "invalid mute payload"}})
				continue
			}
			push(outboundMessage[any]{Type: "state", Payload: g.SetMuted(payload.Muted)})
		case "close":
			if err := g.Close(); err != nil {
				code := CodeInternal
				if errors.Is(err, domain.ErrGateNotReady) {
					code = CodeGateNotReady
				}
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: err.Error()}})
			}
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalidRequest, Message: "unsupported message type"}})
		}
	}

	// A drop before the close tap abandons the gate; nothing is credited.
	driver.Stop()
	if !reconciler.Reported() {
		logger.Info().Msg("watch abandoned before close")
	}
	close(closeSignals)
	<-forwardDone
	close(send)
	<-writerDone
}

func sessionPlaylist(session domain.RewardSession) []domain.PlaylistVideo {
	videos := make([]domain.PlaylistVideo, 0, len(session.VideoIDs))
	for _, id := range session.VideoIDs {
		videos = append(videos, domain.PlaylistVideo{ID: id})
	}
	return videos
}
