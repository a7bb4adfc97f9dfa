package identity

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/pkg/utils"
)

// Provider 管理本地保存的匿名用户 ID
type Provider interface {
	Current(ctx context.Context) (string, error)
	Ensure(ctx context.Context) (string, bool, error)
	Reset(ctx context.Context) error
}

// Handler 身份相关的HTTP处理器
type Handler struct {
	provider Provider
	logger   *zap.Logger
}

// New 创建身份处理器
func New(provider Provider, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{provider: provider, logger: logger}
}

// RegisterRoutes 注册身份路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/identity", h.handleGet)
	r.Post("/identity", h.handleEnsure)
	r.Delete("/identity", h.handleReset)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := h.provider.Current(r.Context())
	if err != nil {
		h.logger.Error("read identity failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to read identity")
		return
	}
	if userID == "" {
		utils.RespondError(w, http.StatusNotFound, "identity not initialised")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"userId": userID})
}

// handleEnsure 首次调用时向后端申请用户 ID，之后返回已保存的值
func (h *Handler) handleEnsure(w http.ResponseWriter, r *http.Request) {
	userID, created, err := h.provider.Ensure(r.Context())
	if err != nil {
		h.logger.Warn("ensure identity failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "failed to initialise identity")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("identity created", zap.String("user", userID))
	}
	utils.RespondJSON(w, status, map[string]string{"userId": userID})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.Reset(r.Context()); err != nil {
		h.logger.Error("reset identity failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to reset identity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
