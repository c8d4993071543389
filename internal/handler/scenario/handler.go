package scenario

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/handler/apierror"
	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	scenarioModel "github.com/zhouzirui/timemachine/backend/internal/model/scenario"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
	"github.com/zhouzirui/timemachine/backend/pkg/utils"
)

// Handler 场景创建与读取的HTTP处理器
type Handler struct {
	sessions *session.Service
	logger   *zap.Logger
}

// New 创建场景处理器
func New(sessions *session.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// RegisterRoutes 注册场景相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/scenario/create", h.handleCreate)
	r.Get("/scenario/{scenarioID}", h.handleGet)
	r.Get("/scenario/{scenarioID}/initial_state", h.handleInitialState)
}

type createResponse struct {
	ScenarioID     string `json:"scenario_id"`
	InitialMessage string `json:"initial_message"`
}

type initialStateResponse struct {
	InitialState   emotion.Vector `json:"initial_state"`
	ActorName      string         `json:"actor_name"`
	InitialMessage string         `json:"initial_message"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rules scenarioModel.Rules
	if err := utils.DecodeJSON(r, &rules); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.sessions.CreateSession(r.Context(), rules)
	if err != nil {
		apierror.Respond(w, h.logger, "scenario.create", err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, createResponse{
		ScenarioID:     created.ID,
		InitialMessage: created.OpeningLine,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "scenarioID"))
	if err != nil {
		apierror.Respond(w, h.logger, "scenario.get", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleInitialState(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.LoadInitialView(r.Context(), chi.URLParam(r, "scenarioID"))
	if err != nil {
		apierror.Respond(w, h.logger, "scenario.initial_state", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, initialStateResponse{
		InitialState:   view.State,
		ActorName:      view.ActorName,
		InitialMessage: view.OpeningLine,
	})
}
