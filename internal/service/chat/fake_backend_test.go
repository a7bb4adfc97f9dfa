package chat_test

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
)

var errBoom = errors.New("boom")

// fakeBackend is a scripted Backend. After a successful SubmitQuery the
// answer shows up on the answerAfter-th message read of that session;
// zero means never.
type fakeBackend struct {
	mu sync.Mutex

	sessions    []chat.Session
	messages    map[chat.ID][]chat.Message
	listErr     error
	messagesErr map[chat.ID]error
	submitErr   error
	answerAfter int

	// hooks run outside the lock
	onSubmit func()
	onPoll   func(read int)

	listSessionsCalls int
	listMessagesCalls int
	submitCalls       int
	createCalls       int

	pendingSession chat.ID
	readsSinceSend int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages:    make(map[chat.ID][]chat.Message),
		messagesErr: make(map[chat.ID]error),
	}
}

func (f *fakeBackend) ListSessions(_ context.Context, _ string) ([]chat.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listSessionsCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]chat.Session(nil), f.sessions...), nil
}

func (f *fakeBackend) CreateSession(_ context.Context, _ string, title string) (chat.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	id := chat.ID("99")
	f.sessions = append(f.sessions, chat.Session{ID: id, Title: title})
	return id, nil
}

func (f *fakeBackend) ListMessages(_ context.Context, _ string, sessionID chat.ID) ([]chat.Message, error) {
	f.mu.Lock()
	f.listMessagesCalls++
	read := 0
	if sessionID == f.pendingSession && sessionID != "" {
		f.readsSinceSend++
		read = f.readsSinceSend
		if f.answerAfter > 0 && read == f.answerAfter {
			f.messages[sessionID] = append(f.messages[sessionID], chat.Message{
				ID:      "500",
				Sender:  chat.SenderAI,
				Content: "삼성전자는 장기적으로 긍정적입니다.",
			})
		}
	}
	err := f.messagesErr[sessionID]
	messages := append([]chat.Message(nil), f.messages[sessionID]...)
	hook := f.onPoll
	f.mu.Unlock()

	if hook != nil && read > 0 {
		hook(read)
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (f *fakeBackend) SubmitQuery(_ context.Context, _ string, sessionID chat.ID, question string) error {
	f.mu.Lock()
	f.submitCalls++
	hook := f.onSubmit
	err := f.submitErr
	if err == nil {
		f.pendingSession = sessionID
		f.readsSinceSend = 0
		f.messages[sessionID] = append(f.messages[sessionID], chat.Message{
			ID:      "499",
			Sender:  chat.SenderUser,
			Content: question,
		})
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeBackend) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readsSinceSend
}

func (f *fakeBackend) calls() (sessions, messages, submits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listSessionsCalls, f.listMessagesCalls, f.submitCalls
}
