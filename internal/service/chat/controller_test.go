package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
	chatService "github.com/zhouzirui/roboadvisor/client/internal/service/chat"
)

var fixedNow = time.UnixMilli(1700000000000)

type sleepRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
	hook      func(n int)
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.durations = append(s.durations, d)
	n := len(s.durations)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.durations)
}

func newTestController(fb *fakeBackend, rec *sleepRecorder) *chatService.Controller {
	return chatService.NewController(fb, chatService.ControllerOptions{
		Poll:  chatService.DefaultPollPolicy(),
		Now:   func() time.Time { return fixedNow },
		Sleep: rec.sleep,
	})
}

func seededBackend() *fakeBackend {
	fb := newFakeBackend()
	fb.sessions = []chat.Session{{ID: "7", Title: "삼성전자"}, {ID: "8"}}
	fb.messages["7"] = []chat.Message{
		{ID: "1", Sender: chat.SenderUser, Content: "안녕하세요"},
		{ID: "2", Sender: chat.SenderAI, Content: "무엇을 도와드릴까요?"},
	}
	fb.messages["8"] = []chat.Message{
		{ID: "30", Sender: chat.SenderAI, Content: "다른 대화의 답변"},
	}
	return fb
}

func openSession(t *testing.T, c *chatService.Controller, sessionID chat.ID) {
	t.Helper()
	if err := c.Open(t.Context(), "u1", sessionID); err != nil {
		t.Fatalf("Open(%s) err: %v", sessionID, err)
	}
}

func messageIDs(messages []chat.Message) []chat.ID {
	ids := make([]chat.ID, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func assertNoPending(t *testing.T, snap chatService.Snapshot) {
	t.Helper()
	for _, m := range snap.Messages {
		if m.Pending || m.Content == chat.PlaceholderContent {
			t.Fatalf("expected no pending message, got %+v", m)
		}
	}
}

func TestSendAnswerOnFifthAttempt(t *testing.T) {
	fb := seededBackend()
	fb.answerAfter = 5
	rec := &sleepRecorder{}
	c := newTestController(fb, rec)
	openSession(t, c, "7")

	outcome, err := c.Send(t.Context(), "삼성전자 전망은?")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if outcome != chatService.OutcomeAnswered {
		t.Fatalf("expected answered, got %s", outcome)
	}
	if got := fb.reads(); got != 5 {
		t.Fatalf("expected 5 poll reads, got %d", got)
	}
	if got := rec.count(); got != 4 {
		t.Fatalf("expected 4 waits, got %d", got)
	}
	for _, d := range rec.durations {
		if d != 1500*time.Millisecond {
			t.Fatalf("expected 1.5s interval, got %s", d)
		}
	}

	snap := c.Snapshot()
	if snap.State != chatService.StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
	if len(snap.Messages) != 4 {
		t.Fatalf("expected server list of 4, got %v", messageIDs(snap.Messages))
	}
	if last := snap.Messages[3]; !last.IsAnswer() || last.ID != "500" {
		t.Fatalf("expected server answer last, got %+v", last)
	}
	assertNoPending(t, snap)
}

func TestSendExhaustsAndRefreshesOnce(t *testing.T) {
	fb := seededBackend()
	rec := &sleepRecorder{}
	c := newTestController(fb, rec)
	openSession(t, c, "7")

	outcome, err := c.Send(t.Context(), "언제 답이 오나요?")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if outcome != chatService.OutcomeExhausted {
		t.Fatalf("expected exhausted, got %s", outcome)
	}
	// 30 poll reads plus exactly one refresh.
	if got := fb.reads(); got != 31 {
		t.Fatalf("expected 31 reads, got %d", got)
	}
	if got := rec.count(); got != 30 {
		t.Fatalf("expected 30 waits, got %d", got)
	}

	snap := c.Snapshot()
	if snap.State != chatService.StateIdle || snap.Error != "" || snap.Notice != "" {
		t.Fatalf("expected quiet idle view, got %+v", snap)
	}
	want := []chat.ID{"1", "2", "499"}
	if got := messageIDs(snap.Messages); !equalIDs(got, want) {
		t.Fatalf("expected refreshed list %v, got %v", want, got)
	}
	assertNoPending(t, snap)
}

func TestSendRollsBackOnSubmitFailure(t *testing.T) {
	fb := seededBackend()
	fb.submitErr = errBoom
	rec := &sleepRecorder{}
	c := newTestController(fb, rec)
	openSession(t, c, "7")
	before := messageIDs(c.Snapshot().Messages)

	var during chatService.Snapshot
	fb.onSubmit = func() { during = c.Snapshot() }

	outcome, err := c.Send(t.Context(), "실패할 질문")
	if outcome != chatService.OutcomeRolledBack {
		t.Fatalf("expected rolled back, got %s", outcome)
	}
	if !errors.Is(err, backend.ErrSubmit) || !errors.Is(err, errBoom) {
		t.Fatalf("expected submit error wrapping cause, got %v", err)
	}

	if during.State != chatService.StateSending || len(during.Messages) != len(before)+2 {
		t.Fatalf("expected optimistic pair while sending, got %+v", during)
	}
	user, pending := during.Messages[len(before)], during.Messages[len(before)+1]
	if user.ID != "user-1700000000000" || user.Sender != chat.SenderUser || user.Content != "실패할 질문" {
		t.Fatalf("unexpected optimistic user message %+v", user)
	}
	if pending.ID != "ai-temp-1700000000001" || !pending.Pending || pending.Content != chat.PlaceholderContent {
		t.Fatalf("unexpected placeholder %+v", pending)
	}

	snap := c.Snapshot()
	if got := messageIDs(snap.Messages); !equalIDs(got, before) {
		t.Fatalf("expected list restored to %v, got %v", before, got)
	}
	if snap.State != chatService.StateIdle || snap.Notice == "" {
		t.Fatalf("expected idle with notice, got %+v", snap)
	}
	if got := fb.reads(); got != 0 {
		t.Fatalf("expected no polling after failed submit, got %d reads", got)
	}
}

func TestSendIgnoredWhileBusy(t *testing.T) {
	fb := seededBackend()
	fb.answerAfter = 1
	c := newTestController(fb, &sleepRecorder{})
	openSession(t, c, "7")

	var (
		secondOutcome chatService.Outcome
		secondErr     error
		refreshErr    error
		readsBefore   int
		readsAfter    int
	)
	fb.onSubmit = func() {
		_, readsBefore, _ = fb.calls()
		secondOutcome, secondErr = c.Send(t.Context(), "두 번째 질문")
		refreshErr = c.Refresh(t.Context())
		_, readsAfter, _ = fb.calls()
	}

	if outcome, err := c.Send(t.Context(), "첫 번째 질문"); err != nil || outcome != chatService.OutcomeAnswered {
		t.Fatalf("expected answered, got %s %v", outcome, err)
	}
	if secondOutcome != chatService.OutcomeIgnored || secondErr != nil {
		t.Fatalf("expected second send ignored, got %s %v", secondOutcome, secondErr)
	}
	if refreshErr != nil || readsAfter != readsBefore {
		t.Fatalf("expected refresh to be a no-op while busy, err=%v reads %d->%d", refreshErr, readsBefore, readsAfter)
	}
	if _, _, submits := fb.calls(); submits != 1 {
		t.Fatalf("expected one submission, got %d", submits)
	}
}

func TestSendIgnoresBlankInput(t *testing.T) {
	fb := seededBackend()
	c := newTestController(fb, &sleepRecorder{})
	openSession(t, c, "7")
	_, readsBefore, _ := fb.calls()

	outcome, err := c.Send(t.Context(), "   \n\t")
	if err != nil || outcome != chatService.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s %v", outcome, err)
	}
	_, reads, submits := fb.calls()
	if submits != 0 || reads != readsBefore {
		t.Fatalf("expected no backend traffic, got %d submits %d reads", submits, reads)
	}
	if got := len(c.Snapshot().Messages); got != 2 {
		t.Fatalf("expected list untouched, got %d messages", got)
	}
}

func TestMissingIdentityIssuesNoRequests(t *testing.T) {
	fb := seededBackend()
	c := newTestController(fb, &sleepRecorder{})

	if _, err := c.Send(t.Context(), "질문"); !errors.Is(err, backend.ErrMissingIdentity) {
		t.Fatalf("expected missing identity before open, got %v", err)
	}

	err := c.Open(t.Context(), "", "7")
	if !errors.Is(err, backend.ErrMissingIdentity) {
		t.Fatalf("expected missing identity, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Error == "" || len(snap.Messages) != 0 || snap.Loading {
		t.Fatalf("expected empty error view, got %+v", snap)
	}

	if sessions, messages, submits := fb.calls(); sessions+messages+submits != 0 {
		t.Fatalf("expected no backend calls, got %d/%d/%d", sessions, messages, submits)
	}
}

func TestOpenFetchFailureClearsList(t *testing.T) {
	fb := seededBackend()
	fb.messagesErr["8"] = errBoom
	c := newTestController(fb, &sleepRecorder{})
	openSession(t, c, "7")

	err := c.Open(t.Context(), "u1", "8")
	if !errors.Is(err, backend.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	snap := c.Snapshot()
	if snap.SessionID != "8" || len(snap.Messages) != 0 || snap.Error == "" {
		t.Fatalf("expected empty error view for session 8, got %+v", snap)
	}

	delete(fb.messagesErr, "8")
	if err := c.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh err: %v", err)
	}
	if snap := c.Snapshot(); snap.Error != "" || len(snap.Messages) != 1 {
		t.Fatalf("expected recovered view, got %+v", snap)
	}
}

func TestOpenOtherSessionDiscardsStaleAnswer(t *testing.T) {
	fb := seededBackend()
	fb.answerAfter = 2
	c := newTestController(fb, &sleepRecorder{})
	openSession(t, c, "7")

	// The answer for session 7 is fetched right as the user moves to 8.
	fb.onPoll = func(read int) {
		if read == 2 {
			openSession(t, c, "8")
		}
	}

	outcome, err := c.Send(t.Context(), "삼성전자 전망은?")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if outcome != chatService.OutcomeAbandoned {
		t.Fatalf("expected abandoned, got %s", outcome)
	}

	snap := c.Snapshot()
	if snap.SessionID != "8" || snap.State != chatService.StateIdle {
		t.Fatalf("expected idle session 8, got %+v", snap)
	}
	if got := messageIDs(snap.Messages); !equalIDs(got, []chat.ID{"30"}) {
		t.Fatalf("expected only session 8 messages, got %v", got)
	}
}

func TestOpenOtherSessionStopsPolling(t *testing.T) {
	fb := seededBackend()
	rec := &sleepRecorder{}
	c := newTestController(fb, rec)
	openSession(t, c, "7")

	rec.hook = func(n int) {
		if n == 1 {
			openSession(t, c, "8")
		}
	}

	outcome, err := c.Send(t.Context(), "질문")
	if err != nil || outcome != chatService.OutcomeAbandoned {
		t.Fatalf("expected abandoned, got %s %v", outcome, err)
	}
	if got := fb.reads(); got != 1 {
		t.Fatalf("expected polling to stop after 1 read, got %d", got)
	}
	snap := c.Snapshot()
	assertNoPending(t, snap)
	if got := messageIDs(snap.Messages); !equalIDs(got, []chat.ID{"30"}) {
		t.Fatalf("expected session 8 untouched, got %v", got)
	}
}

func TestReopenSameSessionWhileBusyIsNoop(t *testing.T) {
	fb := seededBackend()
	fb.answerAfter = 1
	c := newTestController(fb, &sleepRecorder{})
	openSession(t, c, "7")

	var during chatService.Snapshot
	fb.onSubmit = func() {
		openSession(t, c, "7")
		during = c.Snapshot()
	}

	if outcome, _ := c.Send(t.Context(), "질문"); outcome != chatService.OutcomeAnswered {
		t.Fatalf("expected answered, got %s", outcome)
	}
	if !during.Busy() || len(during.Messages) != 4 {
		t.Fatalf("expected optimistic view kept, got %+v", during)
	}
}

func TestSendCancelledByCaller(t *testing.T) {
	fb := seededBackend()
	rec := &sleepRecorder{}
	c := newTestController(fb, rec)
	openSession(t, c, "7")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	rec.hook = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	outcome, err := c.Send(ctx, "질문")
	if outcome != chatService.OutcomeCancelled || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled, got %s %v", outcome, err)
	}
	snap := c.Snapshot()
	if snap.State != chatService.StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
	assertNoPending(t, snap)
	if got := len(snap.Messages); got != 3 {
		t.Fatalf("expected submitted question kept, got %d messages", got)
	}
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	fb := seededBackend()
	c := newTestController(fb, &sleepRecorder{})

	updates, stop := c.Subscribe()
	first := <-updates
	if first.SessionID != "" || len(first.Messages) != 0 {
		t.Fatalf("expected empty initial view, got %+v", first)
	}

	openSession(t, c, "7")
	latest := <-updates
	if latest.SessionID != "7" || latest.Loading || len(latest.Messages) != 2 {
		t.Fatalf("expected loaded view of session 7, got %+v", latest)
	}

	stop()
	stop()
	if _, ok := <-updates; ok {
		t.Fatal("expected channel closed after stop")
	}
}

func TestSendWithRealTimer(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := seededBackend()
	c := chatService.NewController(fb, chatService.ControllerOptions{
		Poll: chatService.PollPolicy{MaxAttempts: 2, Interval: time.Millisecond},
	})
	openSession(t, c, "7")

	outcome, err := c.Send(context.Background(), "질문")
	if err != nil || outcome != chatService.OutcomeExhausted {
		t.Fatalf("expected exhausted, got %s %v", outcome, err)
	}
	if got := fb.reads(); got != 3 {
		t.Fatalf("expected 2 polls and a refresh, got %d", got)
	}
}

func equalIDs(a, b []chat.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBeginClaimsControllerSynchronously(t *testing.T) {
	fb := seededBackend()
	fb.answerAfter = 1
	c := newTestController(fb, &sleepRecorder{})
	openSession(t, c, "7")

	if _, err := c.Begin(t.Context(), "7", "  "); !errors.Is(err, chatService.ErrBlankInput) {
		t.Fatalf("expected ErrBlankInput, got %v", err)
	}
	if _, err := c.Begin(t.Context(), "8", "질문"); !errors.Is(err, chatService.ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen, got %v", err)
	}

	pending, err := c.Begin(t.Context(), "7", "첫 번째 질문")
	if err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	if pending.SessionID() != "7" {
		t.Fatalf("expected session 7, got %s", pending.SessionID())
	}
	snap := c.Snapshot()
	if snap.State != chatService.StateSending || len(snap.Messages) != 4 {
		t.Fatalf("expected optimistic messages before submission, got %+v", snap)
	}

	// A second send before submission is refused, not queued.
	if _, err := c.Begin(t.Context(), "7", "두 번째 질문"); !errors.Is(err, chatService.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, _, submits := fb.calls(); submits != 0 {
		t.Fatalf("expected no submission before Await, got %d", submits)
	}

	if outcome, err := pending.Await(); err != nil || outcome != chatService.OutcomeAnswered {
		t.Fatalf("expected answered, got %s %v", outcome, err)
	}
	if _, _, submits := fb.calls(); submits != 1 {
		t.Fatalf("expected one submission, got %d", submits)
	}
}
