package stream

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/handler/apierror"
	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
	"github.com/zhouzirui/timemachine/backend/pkg/utils"
)

// Handler runs a chat turn and reports its progress as Server-Sent Events.
type Handler struct {
	sessions *session.Service
	logger   *zap.Logger
}

// New creates a new stream handler
func New(sessions *session.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// RegisterRoutes mounts GET /stream/{scenarioID}?message=...
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{scenarioID}", h.handleStream)
}

// Event names, in emission order.
const (
	EventStart   = "start"
	EventMessage = "message"
	EventState   = "state"
	EventEnd     = "end"
	EventError   = "error"
)

type startEvent struct {
	SessionID string `json:"session_id"`
	ActorName string `json:"actor_name"`
}

type messageEvent struct {
	AIResponse string `json:"ai_response"`
}

type stateEvent struct {
	UpdatedState emotion.Vector `json:"updated_state"`
}

type endEvent struct {
	Finished bool `json:"finished"`
}

type errorEvent struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "scenarioID")
	userMessage := r.URL.Query().Get("message")
	if strings.TrimSpace(userMessage) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Unknown sessions fail as plain JSON before the stream opens.
	view, err := h.sessions.LoadInitialView(r.Context(), sessionID)
	if err != nil {
		apierror.Respond(w, h.logger, "stream", err)
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEEvent(w, flusher, EventStart, startEvent{SessionID: sessionID, ActorName: view.ActorName})

	result, err := h.sessions.SubmitTurn(r.Context(), sessionID, userMessage)
	if err != nil {
		status := apierror.Status(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("stream turn failed", zap.String("session", sessionID), zap.Error(err))
		}
		utils.SendSSEEvent(w, flusher, EventError, errorEvent{Error: apierror.Message(err), Status: status})
		return
	}

	utils.SendSSEEvent(w, flusher, EventMessage, messageEvent{AIResponse: result.Reply})
	utils.SendSSEEvent(w, flusher, EventState, stateEvent{UpdatedState: result.NewState})
	utils.SendSSEEvent(w, flusher, EventEnd, endEvent{Finished: true})

	h.logger.Debug("stream turn completed", zap.String("session", sessionID))
}
