package chat

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
)

// Directory lists a user's sessions newest first, each annotated with a
// preview of its latest message.
type Directory struct {
	backend     Backend
	concurrency int
	logger      *zap.Logger
}

// NewDirectory creates a directory loader. concurrency bounds the per-session
// message fetches; values below one mean sequential.
func NewDirectory(b Backend, concurrency int, logger *zap.Logger) *Directory {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{backend: b, concurrency: concurrency, logger: logger}
}

// Load fetches and orders every session of userID. The result is all or
// nothing: any failed fetch yields a nil slice and the error.
func (d *Directory) Load(ctx context.Context, userID string) ([]chat.Session, error) {
	if userID == "" {
		return nil, backend.ErrMissingIdentity
	}

	sessions, err := d.backend.ListSessions(ctx, userID)
	if err != nil {
		return nil, classify(err, backend.ErrFetch)
	}
	sorted := SortSessions(sessions)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range sorted {
		if sorted[i].ID == "" {
			// Nothing to fetch; the session keeps an empty preview.
			continue
		}
		g.Go(func() error {
			messages, err := d.backend.ListMessages(gctx, userID, sorted[i].ID)
			if err != nil {
				return classify(err, backend.ErrFetch)
			}
			if n := len(messages); n > 0 {
				sorted[i].Preview = Summarize(messages[n-1].Content)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Warn("session directory load failed", zap.String("user", userID), zap.Error(err))
		return nil, err
	}

	return sorted, nil
}

// StartNew creates an untitled session and returns its id.
func (d *Directory) StartNew(ctx context.Context, userID string) (chat.ID, error) {
	if userID == "" {
		return "", backend.ErrMissingIdentity
	}

	id, err := d.backend.CreateSession(ctx, userID, chat.NewConversationTitle)
	if err != nil {
		return "", classify(err, backend.ErrSubmit)
	}
	d.logger.Info("session started", zap.String("user", userID), zap.String("session", id.String()))
	return id, nil
}

// Latest returns the newest session id. ok is false when the user has none.
func (d *Directory) Latest(ctx context.Context, userID string) (id chat.ID, ok bool, err error) {
	if userID == "" {
		return "", false, backend.ErrMissingIdentity
	}

	sessions, err := d.backend.ListSessions(ctx, userID)
	if err != nil {
		return "", false, classify(err, backend.ErrFetch)
	}
	if len(sessions) == 0 {
		return "", false, nil
	}
	return SortSessions(sessions)[0].ID, true, nil
}
