package chat_test

import (
	"errors"
	"testing"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
	chatService "github.com/zhouzirui/roboadvisor/client/internal/service/chat"
)

func TestDirectoryLoadOrdersAndPreviews(t *testing.T) {
	fb := newFakeBackend()
	fb.sessions = []chat.Session{
		{ID: "2", Title: "환율"},
		{ID: "10"},
		{ID: "abc", Title: "메모"},
		{ID: "1", Title: chat.NewConversationTitle},
		{ID: ""},
	}
	fb.messages["10"] = []chat.Message{
		{ID: "1", Sender: chat.SenderUser, Content: "질문"},
		{ID: "2", Sender: chat.SenderAI, Content: "금리 인상 시기에는 방어주가 유리합니다."},
	}
	fb.messages["1"] = []chat.Message{
		{ID: "3", Sender: chat.SenderAI, Content: "짧은 답"},
	}

	for _, concurrency := range []int{1, 4} {
		dir := chatService.NewDirectory(fb, concurrency, nil)
		sessions, err := dir.Load(t.Context(), "u1")
		if err != nil {
			t.Fatalf("Load err: %v", err)
		}

		want := []chat.ID{"10", "2", "1", "abc", ""}
		if len(sessions) != len(want) {
			t.Fatalf("expected %d sessions, got %d", len(want), len(sessions))
		}
		for i, id := range want {
			if sessions[i].ID != id {
				t.Fatalf("position %d: expected %q, got %q", i, id, sessions[i].ID)
			}
		}

		if got := sessions[0].Preview; got != "금리 인상 시기에는..." {
			t.Fatalf("expected truncated preview, got %q", got)
		}
		if got := chatService.DisplayTitle(sessions[0]); got != "금리 인상 시기에는..." {
			t.Fatalf("expected preview as title, got %q", got)
		}
		if got := chatService.DisplayTitle(sessions[1]); got != "환율" {
			t.Fatalf("expected stored title, got %q", got)
		}
		if got := chatService.DisplayTitle(sessions[2]); got != "짧은 답" {
			t.Fatalf("expected short preview for sentinel title, got %q", got)
		}
		if got := chatService.DisplayTitle(sessions[4]); got != chat.NewConversationTitle {
			t.Fatalf("expected placeholder title, got %q", got)
		}
	}
}

func TestDirectoryLoadNumericOrderAndPreviewLiterals(t *testing.T) {
	fb := newFakeBackend()
	fb.sessions = []chat.Session{{ID: "abc"}, {ID: "3"}, {ID: "10"}, {ID: "1"}}
	fb.messages["3"] = []chat.Message{{ID: "1", Sender: chat.SenderAI, Content: "이것은 10자를 초과하는 메시지입니다"}}
	fb.messages["10"] = []chat.Message{{ID: "2", Sender: chat.SenderAI, Content: "짧은메시지"}}

	sessions, err := chatService.NewDirectory(fb, 3, nil).Load(t.Context(), "u1")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	want := []chat.ID{"10", "3", "1", "abc"}
	if len(sessions) != len(want) {
		t.Fatalf("expected %d sessions, got %d", len(want), len(sessions))
	}
	for i, id := range want {
		if sessions[i].ID != id {
			t.Fatalf("position %d: expected %q, got %q", i, id, sessions[i].ID)
		}
	}
	if got := sessions[1].Preview; got != "이것은 10자를 초..." {
		t.Fatalf("expected first 10 characters plus ellipsis, got %q", got)
	}
	if got := sessions[0].Preview; got != "짧은메시지" {
		t.Fatalf("expected short content unchanged, got %q", got)
	}
}

func TestDirectoryLoadIsAllOrNothing(t *testing.T) {
	fb := newFakeBackend()
	fb.sessions = []chat.Session{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	fb.messagesErr["2"] = errBoom

	sessions, err := chatService.NewDirectory(fb, 2, nil).Load(t.Context(), "u1")
	if !errors.Is(err, backend.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if sessions != nil {
		t.Fatalf("expected no partial result, got %v", sessions)
	}

	fb.messagesErr = map[chat.ID]error{}
	fb.listErr = errBoom
	if _, err := chatService.NewDirectory(fb, 2, nil).Load(t.Context(), "u1"); !errors.Is(err, backend.ErrFetch) {
		t.Fatalf("expected fetch error from list, got %v", err)
	}
}

func TestDirectoryRequiresIdentity(t *testing.T) {
	fb := newFakeBackend()
	dir := chatService.NewDirectory(fb, 1, nil)

	if _, err := dir.Load(t.Context(), ""); !errors.Is(err, backend.ErrMissingIdentity) {
		t.Fatalf("Load: expected missing identity, got %v", err)
	}
	if _, err := dir.StartNew(t.Context(), ""); !errors.Is(err, backend.ErrMissingIdentity) {
		t.Fatalf("StartNew: expected missing identity, got %v", err)
	}
	if _, _, err := dir.Latest(t.Context(), ""); !errors.Is(err, backend.ErrMissingIdentity) {
		t.Fatalf("Latest: expected missing identity, got %v", err)
	}
	if sessions, messages, _ := fb.calls(); sessions+messages+fb.createCalls != 0 {
		t.Fatal("expected no backend calls")
	}
}

func TestDirectoryStartNewAndLatest(t *testing.T) {
	fb := newFakeBackend()
	dir := chatService.NewDirectory(fb, 1, nil)

	if _, ok, err := dir.Latest(t.Context(), "u1"); err != nil || ok {
		t.Fatalf("expected no latest session, got ok=%v err=%v", ok, err)
	}

	fb.sessions = []chat.Session{{ID: "3"}, {ID: "12"}, {ID: "5"}}
	id, ok, err := dir.Latest(t.Context(), "u1")
	if err != nil || !ok || id != "12" {
		t.Fatalf("expected latest 12, got %q ok=%v err=%v", id, ok, err)
	}

	created, err := dir.StartNew(t.Context(), "u1")
	if err != nil {
		t.Fatalf("StartNew err: %v", err)
	}
	if created != "99" {
		t.Fatalf("expected created id 99, got %q", created)
	}
	last := fb.sessions[len(fb.sessions)-1]
	if last.Title != chat.NewConversationTitle {
		t.Fatalf("expected placeholder title, got %q", last.Title)
	}
}
