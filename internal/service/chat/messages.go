package chat

import (
	"context"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
)

// MessageLoader fetches the ordered history of one session.
type MessageLoader struct {
	backend Backend
}

// NewMessageLoader creates a loader over b.
func NewMessageLoader(b Backend) *MessageLoader {
	return &MessageLoader{backend: b}
}

// Load returns the session's messages in server order. It fails with
// backend.ErrMissingIdentity without issuing a request when either id is
// empty, and with an error wrapping backend.ErrFetch when the read fails.
func (l *MessageLoader) Load(ctx context.Context, userID string, sessionID chat.ID) ([]chat.Message, error) {
	if userID == "" || sessionID == "" {
		return nil, backend.ErrMissingIdentity
	}

	messages, err := l.backend.ListMessages(ctx, userID, sessionID)
	if err != nil {
		return nil, classify(err, backend.ErrFetch)
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}
