package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/handler/chat"
	"github.com/zhouzirui/timemachine/backend/internal/handler/reflection"
	"github.com/zhouzirui/timemachine/backend/internal/handler/scenario"
	"github.com/zhouzirui/timemachine/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/timemachine/backend/internal/middleware"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
	"github.com/zhouzirui/timemachine/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the session controller.
func NewRouter(sessions *session.Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		scenario.New(sessions, logger.Named("scenario")).RegisterRoutes(api)
		chat.New(sessions, logger.Named("chat")).RegisterRoutes(api)
		chat.NewWebSocketHandler(sessions, logger.Named("ws")).RegisterWebSocketRoutes(api)
		stream.New(sessions, logger.Named("stream")).RegisterRoutes(api)
		reflection.New(sessions, logger.Named("reflection")).RegisterRoutes(api)
	})

	return r
}
