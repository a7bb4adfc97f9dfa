package chat

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
	chatService "github.com/zhouzirui/roboadvisor/client/internal/service/chat"
	"github.com/zhouzirui/roboadvisor/client/pkg/utils"
)

const defaultSuggestionCount = 3

// UserSource 返回当前匿名用户 ID，未初始化时返回空串
type UserSource interface {
	Current(ctx context.Context) (string, error)
}

// Handler 聊天视图的HTTP处理器
type Handler struct {
	users     UserSource
	loader    *chatService.MessageLoader
	directory *chatService.Directory
	view      *chatService.Controller
	logger    *zap.Logger

	// sends 在请求结束后继续运行，生命周期跟随 baseCtx
	baseCtx context.Context
	sends   sync.WaitGroup
}

// Options 聚合处理器依赖
type Options struct {
	Users     UserSource
	Loader    *chatService.MessageLoader
	Directory *chatService.Directory
	View      *chatService.Controller
	Logger    *zap.Logger
}

// New 创建聊天处理器。ctx 结束时正在等待回答的发送会被取消
func New(ctx context.Context, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		users:     opts.Users,
		loader:    opts.Loader,
		directory: opts.Directory,
		view:      opts.View,
		logger:    logger,
		baseCtx:   ctx,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Get("/sessions", h.handleListSessions)
		r.Post("/sessions", h.handleStartSession)
		r.Get("/sessions/latest", h.handleLatestSession)
		r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
		r.Post("/sessions/{sessionID}/messages", h.handleSend)
		r.Post("/sessions/{sessionID}/open", h.handleOpen)

		r.Get("/view", h.handleView)
		r.Post("/view/refresh", h.handleRefresh)
		r.Get("/stream", h.handleStream)
		r.Get("/ws", h.handleWebSocket)
		r.Get("/suggestions", h.handleSuggestions)
	})
}

// Wait 等待所有后台发送结束
func (h *Handler) Wait() {
	h.sends.Wait()
}

type sessionItem struct {
	SessionID    chat.ID   `json:"sessionId"`
	Title        string    `json:"title"`
	DisplayTitle string    `json:"displayTitle"`
	Preview      string    `json:"preview"`
	StartTime    chat.Time `json:"startTime,omitzero"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.directory.Load(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	items := make([]sessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, sessionItem{
			SessionID:    s.ID,
			Title:        s.Title,
			DisplayTitle: chatService.DisplayTitle(s),
			Preview:      s.Preview,
			StartTime:    s.StartTime,
		})
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

// handleStartSession 新建对话
func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, err := h.directory.StartNew(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]chat.ID{"sessionId": id})
}

// handleLatestSession 跳转到最新对话
func (h *Handler) handleLatestSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, found, err := h.directory.Latest(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if !found {
		utils.RespondError(w, http.StatusNotFound, "no sessions yet")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]chat.ID{"sessionId": id})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	messages, err := h.loader.Load(r.Context(), userID, chat.ID(chi.URLParam(r, "sessionID")))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleOpen 切换当前视图的会话；读取失败体现在快照的 error 字段里
func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	err := h.view.Open(r.Context(), userID, chat.ID(chi.URLParam(r, "sessionID")))
	if errors.Is(err, backend.ErrMissingIdentity) {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view.Snapshot())
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.view.Refresh(r.Context()); errors.Is(err, backend.ErrMissingIdentity) {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view.Snapshot())
}

func (h *Handler) handleView(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.view.Snapshot())
}

// handleSend 提交问题后立即返回 202，回答通过 /view、/stream 或 /ws 获取
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question string `json:"question"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, message := h.startSend(chat.ID(chi.URLParam(r, "sessionID")), payload.Question)
	if status != http.StatusAccepted {
		utils.RespondError(w, status, message)
		return
	}
	utils.RespondJSON(w, status, map[string]string{"status": "queued"})
}

// startSend 同步占用视图，成功后才在后台提交并轮询
func (h *Handler) startSend(sessionID chat.ID, question string) (int, string) {
	pending, err := h.view.Begin(h.baseCtx, sessionID, question)
	switch {
	case errors.Is(err, chatService.ErrBlankInput):
		return http.StatusBadRequest, "question is required"
	case errors.Is(err, backend.ErrMissingIdentity):
		return http.StatusPreconditionFailed, "no session is open"
	case errors.Is(err, chatService.ErrSessionNotOpen), errors.Is(err, chatService.ErrBusy):
		return http.StatusConflict, err.Error()
	case err != nil:
		h.logger.Error("begin send failed", zap.Error(err))
		return http.StatusInternalServerError, "internal error"
	}

	h.sends.Add(1)
	go func() {
		defer h.sends.Done()
		outcome, err := pending.Await()
		fields := []zap.Field{zap.String("session", pending.SessionID().String()), zap.String("outcome", string(outcome))}
		if err != nil {
			h.logger.Warn("send finished with error", append(fields, zap.Error(err))...)
			return
		}
		h.logger.Info("send finished", fields...)
	}()
	return http.StatusAccepted, ""
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	n := defaultSuggestionCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	utils.RespondJSON(w, http.StatusOK, chatService.Suggestions(n))
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.users.Current(r.Context())
	if err != nil {
		h.logger.Error("read identity failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to read identity")
		return "", false
	}
	return userID, true
}

// respondServiceError 把错误类别映射为状态码
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrMissingIdentity):
		utils.RespondError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, backend.ErrFetch), errors.Is(err, backend.ErrSubmit):
		h.logger.Warn("backend request failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled):
		utils.RespondError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		h.logger.Error("unexpected chat error", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
