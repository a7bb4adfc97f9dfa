package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/handler/chat"
	"github.com/zhouzirui/roboadvisor/client/internal/handler/identity"
	"github.com/zhouzirui/roboadvisor/client/internal/handler/stub"
	middlewarePkg "github.com/zhouzirui/roboadvisor/client/internal/middleware"
	"github.com/zhouzirui/roboadvisor/client/pkg/utils"
)

// NewRouter wires the gateway routes.
func NewRouter(identityHandler *identity.Handler, chatHandler *chat.Handler, logger *zap.Logger) http.Handler {
	r := newBaseRouter(logger)

	r.Route("/api", func(api chi.Router) {
		identityHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
	})

	return r
}

// NewStubRouter wires the development backend routes.
func NewStubRouter(stubHandler *stub.Handler, logger *zap.Logger) http.Handler {
	r := newBaseRouter(logger)

	r.Route("/api", func(api chi.Router) {
		stubHandler.RegisterRoutes(api)
	})

	return r
}

func newBaseRouter(logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
