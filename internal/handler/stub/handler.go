package stub

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
	stubService "github.com/zhouzirui/roboadvisor/client/internal/service/stub"
	"github.com/zhouzirui/roboadvisor/client/pkg/utils"
)

// Handler 开发用后端桩的HTTP处理器，路径与真实后端保持一致
type Handler struct {
	svc *stubService.Service
}

// New 创建后端桩处理器
func New(svc *stubService.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册用户与会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.handleCreateUser)
	r.Route("/users/{userID}/chat/sessions", func(r chi.Router) {
		r.Get("/", h.handleListSessions)
		r.Post("/", h.handleCreateSession)
		r.Get("/{sessionID}/messages", h.handleListMessages)
		r.Post("/{sessionID}/query", h.handleQuery)
	})
}

// handleCreateUser 创建匿名用户
func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := h.svc.CreateUser(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"userId": userID})
}

// handleListSessions 列出用户的全部会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

// handleCreateSession 创建会话，响应体只有会话ID（数字）
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.svc.CreateSession(r.Context(), chi.URLParam(r, "userID"), payload.Title)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, json.Number(id.String()))
}

// handleListMessages 返回会话的全部消息
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.svc.ListMessages(r.Context(), chi.URLParam(r, "userID"), chat.ID(chi.URLParam(r, "sessionID")))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleQuery 保存问题并异步生成回答
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.svc.SubmitQuery(r.Context(), chi.URLParam(r, "userID"), chat.ID(chi.URLParam(r, "sessionID")), payload.Question)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stubService.ErrUserNotFound), errors.Is(err, stubService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, stubService.ErrQuestionRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
