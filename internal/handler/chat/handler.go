package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/handler/apierror"
	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
	"github.com/zhouzirui/timemachine/backend/pkg/utils"
)

// Handler 聊天回合的HTTP处理器
type Handler struct {
	sessions *session.Service
	logger   *zap.Logger
}

// New 创建聊天处理器
func New(sessions *session.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/{scenarioID}/response", h.handleResponse)
	r.Get("/chat/{scenarioID}/hint", h.handleHint)
	r.Post("/chat/{scenarioID}/end", h.handleEnd)
}

type turnResponse struct {
	AIResponse   string         `json:"ai_response"`
	UpdatedState emotion.Vector `json:"updated_state"`
}

type hintResponse struct {
	HintMessage string `json:"hint_message"`
}

type endResponse struct {
	Phase scenario.Phase `json:"phase"`
}

// handleResponse 处理用户的一轮发言
func (h *Handler) handleResponse(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.sessions.SubmitTurn(r.Context(), chi.URLParam(r, "scenarioID"), payload.Message)
	if err != nil {
		apierror.Respond(w, h.logger, "chat.response", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, turnResponse{
		AIResponse:   result.Reply,
		UpdatedState: result.NewState,
	})
}

func (h *Handler) handleHint(w http.ResponseWriter, r *http.Request) {
	hint, err := h.sessions.RequestHint(r.Context(), chi.URLParam(r, "scenarioID"))
	if err != nil {
		apierror.Respond(w, h.logger, "chat.hint", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, hintResponse{HintMessage: hint.Text})
}

// handleEnd 结束模拟，之后不再接受新的回合
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	phase, err := h.sessions.EndSimulation(r.Context(), chi.URLParam(r, "scenarioID"))
	if err != nil {
		apierror.Respond(w, h.logger, "chat.end", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, endResponse{Phase: phase})
}
