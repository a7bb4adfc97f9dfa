package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
	chatService "github.com/zhouzirui/roboadvisor/client/internal/service/chat"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// inboundMessage 客户端指令：open / send / refresh
type inboundMessage struct {
	Type      string  `json:"type"`
	SessionID chat.ID `json:"sessionId,omitempty"`
	Question  string  `json:"question,omitempty"`
}

type outgoingMessage struct {
	Type      string                `json:"type"`
	Snapshot  *chatService.Snapshot `json:"snapshot,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// handleWebSocket 推送快照并接收指令
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()

	updates, stop := h.view.Subscribe()
	defer stop()

	// 读写分离：读协程只负责把指令转成回复
	replies := make(chan outgoingMessage, 8)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		h.readCommands(ctx, conn, replies)
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		var msg outgoingMessage
		select {
		case <-ctx.Done():
			h.closeWebSocket(conn)
			<-readDone
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			msg = outgoingMessage{Type: "snapshot", Snapshot: &snap}
		case msg = <-replies:
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				continue
			}
			continue
		}

		msg.Timestamp = time.Now().UnixMilli()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			cancel()
		}
	}
}

func (h *Handler) readCommands(ctx context.Context, conn *websocket.Conn, replies chan<- outgoingMessage) {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			h.reply(ctx, replies, outgoingMessage{Type: "error", Error: "invalid message"})
			continue
		}
		if errMsg := h.dispatch(ctx, in); errMsg != "" {
			h.reply(ctx, replies, outgoingMessage{Type: "error", Error: errMsg})
		}
	}
}

// dispatch 执行一条指令，返回需要告知客户端的错误
func (h *Handler) dispatch(ctx context.Context, in inboundMessage) string {
	switch in.Type {
	case "open":
		userID, err := h.users.Current(ctx)
		if err != nil {
			return "failed to read identity"
		}
		// 读取失败已经体现在快照里
		if err := h.view.Open(ctx, userID, in.SessionID); errors.Is(err, backend.ErrMissingIdentity) {
			return err.Error()
		}
		return ""
	case "refresh":
		_ = h.view.Refresh(ctx)
		return ""
	case "send":
		// 未指定会话时发往当前会话
		if _, message := h.startSend(in.SessionID, in.Question); message != "" {
			return message
		}
		return ""
	default:
		return "unknown message type: " + in.Type
	}
}

func (h *Handler) reply(ctx context.Context, replies chan<- outgoingMessage, msg outgoingMessage) {
	select {
	case replies <- msg:
	case <-ctx.Done():
	}
}

func (h *Handler) closeWebSocket(conn *websocket.Conn) {
	deadline := time.Now().Add(wsWriteWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = conn.SetReadDeadline(deadline)
}
