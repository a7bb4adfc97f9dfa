package chat

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// handleStream 以 SSE 推送视图快照，直到客户端断开
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, stop := h.view.Subscribe()
	defer stop()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	h.logger.Debug("snapshot stream opened")
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("snapshot stream closed")
			return
		case <-h.baseCtx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "snapshot", snap); err != nil {
				h.logger.Debug("snapshot stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
