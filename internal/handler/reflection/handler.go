package reflection

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/handler/apierror"
	"github.com/zhouzirui/timemachine/backend/internal/service/reasoning"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
	"github.com/zhouzirui/timemachine/backend/pkg/utils"
)

// Handler 反思与最终报告的HTTP处理器
type Handler struct {
	sessions *session.Service
	logger   *zap.Logger
}

// New 创建反思处理器
func New(sessions *session.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// RegisterRoutes 注册反思与报告相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reflect/{scenarioID}", h.handleGuide)
	r.Post("/reflect/{scenarioID}/save", h.handleSave)
	r.Get("/report/{scenarioID}", h.handleReport)
}

// The engine's result is relayed verbatim, whether text or an object.
type guideResponse struct {
	ReflectionGuide json.RawMessage `json:"reflection_guide"`
}

type reportResponse struct {
	Report json.RawMessage `json:"report"`
}

type saveResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleGuide(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.sessions.RequestAnalysis(r.Context(), chi.URLParam(r, "scenarioID"), reasoning.KindReflectionGuide)
	if err != nil {
		apierror.Respond(w, h.logger, "reflect.guide", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, guideResponse{ReflectionGuide: analysis.Result})
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserReflection string `json:"user_reflection"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.SaveReflection(r.Context(), chi.URLParam(r, "scenarioID"), payload.UserReflection); err != nil {
		apierror.Respond(w, h.logger, "reflect.save", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, saveResponse{Message: "reflection saved"})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.sessions.RequestAnalysis(r.Context(), chi.URLParam(r, "scenarioID"), reasoning.KindFinalReport)
	if err != nil {
		apierror.Respond(w, h.logger, "report", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reportResponse{Report: analysis.Result})
}
