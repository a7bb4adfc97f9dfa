package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
)

// Backend is the slice of the backend contract the chat views consume.
// *backend.Client satisfies it.
type Backend interface {
	ListSessions(ctx context.Context, userID string) ([]chat.Session, error)
	CreateSession(ctx context.Context, userID, title string) (chat.ID, error)
	ListMessages(ctx context.Context, userID string, sessionID chat.ID) ([]chat.Message, error)
	SubmitQuery(ctx context.Context, userID string, sessionID chat.ID, question string) error
}

var _ Backend = (*backend.Client)(nil)

// classify makes sure err carries kind unless it is a missing-identity or
// context error.
func classify(err, kind error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.ErrMissingIdentity), errors.Is(err, kind):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", kind, err)
	}
}
