package stub

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/analysis/topic"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
	"github.com/zhouzirui/roboadvisor/client/internal/service/ai"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrQuestionRequired = errors.New("question is required")
)

// Replier produces the AI answer for a question.
type Replier interface {
	Reply(ctx context.Context, history []chat.Message, question string) (string, error)
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, history []chat.Message, question string) (string, error)

// Reply calls f.
func (f ReplierFunc) Reply(ctx context.Context, history []chat.Message, question string) (string, error) {
	return f(ctx, history, question)
}

// EchoReplier answers without a model. Used when no Ark credentials are set.
var EchoReplier = ReplierFunc(func(_ context.Context, _ []chat.Message, question string) (string, error) {
	return "질문을 확인했습니다: " + strings.TrimSpace(question) + "\n\n(개발용 백엔드의 자동 응답입니다.)", nil
})

// Options tunes the stub.
type Options struct {
	Replier    Replier
	ReplyDelay time.Duration
	Logger     *zap.Logger
}

type sessionRecord struct {
	session chat.Session
	owner   string
}

// Service is an in-memory implementation of the backend chat contract.
// Answers are written asynchronously, the way the real backend persists the
// AI service's reply after the query request has returned.
type Service struct {
	mu       sync.RWMutex
	users    map[string]time.Time
	sessions map[chat.ID]*sessionRecord
	order    []chat.ID
	messages map[chat.ID][]chat.Message
	nextSID  int64
	nextMID  int64

	replier Replier
	delay   time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService bootstraps the in-memory backend.
func NewService(opts Options) *Service {
	replier := opts.Replier
	if replier == nil {
		replier = EchoReplier
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		users:    make(map[string]time.Time),
		sessions: make(map[chat.ID]*sessionRecord),
		messages: make(map[chat.ID][]chat.Message),
		replier:  replier,
		delay:    opts.ReplyDelay,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// CreateUser registers an anonymous user.
func (s *Service) CreateUser(_ context.Context) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	s.users[id] = time.Now().UTC()
	s.mu.Unlock()

	return id, nil
}

// CreateSession provisions a session for userID and returns its numeric id.
func (s *Service) CreateSession(_ context.Context, userID, title string) (chat.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return "", ErrUserNotFound
	}

	s.nextSID++
	id := chat.ID(strconv.FormatInt(s.nextSID, 10))
	s.sessions[id] = &sessionRecord{
		owner: userID,
		session: chat.Session{
			ID:        id,
			Title:     title,
			StartTime: chat.At(time.Now().UTC()),
		},
	}
	s.order = append(s.order, id)
	s.messages[id] = make([]chat.Message, 0, 16)

	return id, nil
}

// ListSessions returns the user's sessions in creation order.
func (s *Service) ListSessions(_ context.Context, userID string) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, ErrUserNotFound
	}

	sessions := make([]chat.Session, 0)
	for _, id := range s.order {
		record := s.sessions[id]
		if record.owner == userID {
			sessions = append(sessions, record.session)
		}
	}
	return sessions, nil
}

// ListMessages returns a copy of the session transcript.
func (s *Service) ListMessages(_ context.Context, userID string, sessionID chat.ID) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOwnerLocked(userID, sessionID); err != nil {
		return nil, err
	}

	messages := s.messages[sessionID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// SubmitQuery stores the user's question and schedules the answer.
func (s *Service) SubmitQuery(_ context.Context, userID string, sessionID chat.ID, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrQuestionRequired
	}

	s.mu.Lock()
	if err := s.checkOwnerLocked(userID, sessionID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.appendLocked(sessionID, chat.SenderUser, question, nil)
	history := append([]chat.Message(nil), s.messages[sessionID]...)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.answer(sessionID, history[:len(history)-1], question)

	s.logger.Info("query accepted", zap.String("session", sessionID.String()))
	return nil
}

// Wait blocks until every scheduled answer has been written.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close aborts pending answers and waits for their goroutines.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) answer(sessionID chat.ID, history []chat.Message, question string) {
	defer s.wg.Done()

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
	}

	detail := responseDetail(topic.Classify(question))
	content, err := s.replier.Reply(s.ctx, history, question)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("replier failed, storing fallback answer", zap.String("session", sessionID.String()), zap.Error(err))
		content = ai.FallbackAnswer
		detail = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	s.appendLocked(sessionID, chat.SenderAI, content, detail)
	s.logger.Info("answer stored", zap.String("session", sessionID.String()), zap.Int("length", len(content)))
}

// responseDetail fills the answer metadata the way the AI service reports its
// routing: category, data source and the indicators it looked at.
func responseDetail(d topic.Decision) *chat.ResponseDetail {
	detail := &chat.ResponseDetail{
		RagModelVersion: "stub/" + string(d.Category),
		SourceCitations: d.Source(),
	}
	if d.Category == topic.EconomicIndicator {
		detail.EconomicDataUsed = strings.Join(d.Keywords, ", ")
	}
	return detail
}

func (s *Service) checkOwnerLocked(userID string, sessionID chat.ID) error {
	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	record, ok := s.sessions[sessionID]
	if !ok || record.owner != userID {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Service) appendLocked(sessionID chat.ID, sender chat.Sender, content string, detail *chat.ResponseDetail) {
	s.nextMID++
	s.messages[sessionID] = append(s.messages[sessionID], chat.Message{
		ID:        chat.ID(strconv.FormatInt(s.nextMID, 10)),
		Sender:    sender,
		Content:   content,
		Timestamp: chat.At(time.Now().UTC()),
		Detail:    detail,
	})
}
