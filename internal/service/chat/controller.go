package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/roboadvisor/client/internal/client/backend"
	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
)

// State is the phase of the send cycle.
type State string

const (
	StateIdle          State = "idle"
	StateSending       State = "sending"
	StateAwaitingReply State = "awaiting_reply"
)

// Outcome reports how a Send ended.
type Outcome string

const (
	// OutcomeIgnored: empty input or a send already in flight.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeAnswered: an answer arrived and replaced the list.
	OutcomeAnswered Outcome = "answered"
	// OutcomeExhausted: no answer within the poll budget; one refresh was done.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeRolledBack: the submission failed and the optimistic messages were removed.
	OutcomeRolledBack Outcome = "rolled_back"
	// OutcomeAbandoned: another session was opened; nothing was applied.
	OutcomeAbandoned Outcome = "abandoned"
	// OutcomeCancelled: the caller's context ended the cycle.
	OutcomeCancelled Outcome = "cancelled"
)

const (
	submitFailedNotice  = "메시지 전송 중 오류가 발생했습니다."
	missingIdentityText = "사용자 ID 또는 채팅 ID가 없습니다."
	loadFailedText      = "메시지를 불러오는 중 오류가 발생했습니다."
)

// PollPolicy bounds the wait for an asynchronous answer.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollPolicy waits up to 30 × 1.5s.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{MaxAttempts: 30, Interval: 1500 * time.Millisecond}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ControllerOptions tunes a Controller. Zero values pick the defaults.
type ControllerOptions struct {
	Poll   PollPolicy
	Now    func() time.Time
	Sleep  SleepFunc
	Logger *zap.Logger
}

// Snapshot is an immutable view of the active chat.
type Snapshot struct {
	UserID    string         `json:"-"`
	SessionID chat.ID        `json:"sessionId"`
	State     State          `json:"state"`
	Messages  []chat.Message `json:"messages"`
	Loading   bool           `json:"loading"`
	Error     string         `json:"error,omitempty"`
	Notice    string         `json:"notice,omitempty"`
}

// Busy reports whether a send is in flight.
func (s Snapshot) Busy() bool {
	return s.State != StateIdle
}

// Controller owns the message list of one chat view and runs the
// send-then-poll cycle against it. At most one send is in flight.
type Controller struct {
	backend Backend
	loader  *MessageLoader
	poll    PollPolicy
	now     func() time.Time
	sleep   SleepFunc
	logger  *zap.Logger

	mu        sync.Mutex
	userID    string
	sessionID chat.ID
	epoch     uint64
	state     State
	messages  []chat.Message
	loading   bool
	loadErr   string
	notice    string
	stopPoll  context.CancelFunc

	subs    map[int]chan Snapshot
	nextSub int
}

// NewController creates an idle controller with no session.
func NewController(b Backend, opts ControllerOptions) *Controller {
	poll := opts.Poll
	if poll.MaxAttempts < 1 {
		poll.MaxAttempts = DefaultPollPolicy().MaxAttempts
	}
	if poll.Interval < 0 {
		poll.Interval = 0
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		backend: b,
		loader:  NewMessageLoader(b),
		poll:    poll,
		now:     now,
		sleep:   sleep,
		logger:  logger,
		state:   StateIdle,
		subs:    make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that receives the current view and every later
// change. Slow readers only see the latest snapshot. Call cancel to stop.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Open makes sessionID the active session and loads its messages. Opening
// another session abandons any send in flight. Re-opening the active session
// while a send is in flight does nothing.
func (c *Controller) Open(ctx context.Context, userID string, sessionID chat.ID) error {
	c.mu.Lock()
	same := c.userID == userID && c.sessionID == sessionID
	if same && c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}

	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
	c.epoch++
	epoch := c.epoch
	c.userID = userID
	c.sessionID = sessionID
	c.state = StateIdle
	c.messages = nil
	c.loading = true
	c.loadErr = ""
	c.notice = ""
	c.publishLocked()
	c.mu.Unlock()

	if !same {
		c.logger.Info("session opened", zap.String("session", sessionID.String()))
	}
	return c.reload(ctx, epoch)
}

// Refresh re-reads the active session. It does nothing while a send is in
// flight, since the poll loop owns the list then.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	epoch := c.epoch
	c.loading = true
	c.publishLocked()
	c.mu.Unlock()

	return c.reload(ctx, epoch)
}

func (c *Controller) reload(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	userID, sessionID := c.userID, c.sessionID
	c.mu.Unlock()

	messages, err := c.loader.Load(ctx, userID, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	c.applyLoadLocked(messages, err)
	c.publishLocked()
	return err
}

// applyLoadLocked replaces the list with a loader result. A failed load
// leaves an empty list and an error state.
func (c *Controller) applyLoadLocked(messages []chat.Message, err error) {
	c.loading = false
	if err != nil {
		c.messages = nil
		c.loadErr = loadFailedText
		if errors.Is(err, backend.ErrMissingIdentity) {
			c.loadErr = missingIdentityText
		}
		c.logger.Warn("message load failed", zap.String("session", c.sessionID.String()), zap.Error(err))
		return
	}
	c.messages = messages
	c.loadErr = ""
}

var (
	// ErrBlankInput is returned by Begin for input that is empty after trimming.
	ErrBlankInput = errors.New("question is empty")
	// ErrBusy is returned by Begin while another send is in flight.
	ErrBusy = errors.New("a question is already in flight")
	// ErrSessionNotOpen is returned by Begin when the named session is not the active one.
	ErrSessionNotOpen = errors.New("session is not open")
)

// Send submits input to the active session and waits for the answer. It
// returns once the cycle settles; the error is non-nil only for a failed
// submission, a missing identity or a cancelled context.
func (c *Controller) Send(ctx context.Context, input string) (Outcome, error) {
	p, err := c.Begin(ctx, "", input)
	switch {
	case errors.Is(err, ErrBlankInput), errors.Is(err, ErrBusy):
		return OutcomeIgnored, nil
	case err != nil:
		return OutcomeIgnored, err
	}
	return p.Await()
}

// PendingSend is a send whose optimistic messages are already in the list.
// Await must be called exactly once to submit and settle it.
type PendingSend struct {
	c           *Controller
	ctx         context.Context
	cancel      context.CancelFunc
	epoch       uint64
	userID      string
	sessionID   chat.ID
	input       string
	userMsg     chat.Message
	placeholder chat.Message
}

// Begin claims the controller for a send and appends the user message and
// the pending placeholder. A non-empty sessionID must match the active
// session. Nothing is appended when an error is returned.
func (c *Controller) Begin(ctx context.Context, sessionID chat.ID, input string) (*PendingSend, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrBlankInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID == "" || c.sessionID == "" {
		return nil, backend.ErrMissingIdentity
	}
	if sessionID != "" && sessionID != c.sessionID {
		return nil, ErrSessionNotOpen
	}
	if c.state != StateIdle {
		return nil, ErrBusy
	}

	now := c.now().UnixMilli()
	p := &PendingSend{
		c:         c,
		epoch:     c.epoch,
		userID:    c.userID,
		sessionID: c.sessionID,
		input:     input,
		userMsg: chat.Message{
			ID:        chat.ID("user-" + strconv.FormatInt(now, 10)),
			Sender:    chat.SenderUser,
			Content:   input,
			Timestamp: chat.At(time.UnixMilli(now).UTC()),
		},
		placeholder: chat.Message{
			ID:        chat.ID("ai-temp-" + strconv.FormatInt(now+1, 10)),
			Sender:    chat.SenderAI,
			Content:   chat.PlaceholderContent,
			Timestamp: chat.At(time.UnixMilli(now + 1).UTC()),
			Pending:   true,
		},
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	c.messages = append(c.messages, p.userMsg, p.placeholder)
	c.state = StateSending
	c.notice = ""
	c.stopPoll = p.cancel
	c.publishLocked()
	return p, nil
}

// SessionID is the session the question goes to.
func (p *PendingSend) SessionID() chat.ID {
	return p.sessionID
}

// Await submits the question and polls for the answer until the cycle
// settles.
func (p *PendingSend) Await() (Outcome, error) {
	defer p.cancel()

	c := p.c
	epoch := p.epoch
	userID, sessionID := p.userID, p.sessionID
	pollCtx := p.ctx
	log := c.logger.With(zap.String("session", sessionID.String()))

	if err := c.backend.SubmitQuery(pollCtx, userID, sessionID, p.input); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch {
			return OutcomeAbandoned, nil
		}
		c.removeLocked(p.userMsg.ID, p.placeholder.ID)
		c.settleLocked()
		if pollCtx.Err() != nil {
			return OutcomeCancelled, pollCtx.Err()
		}
		c.notice = submitFailedNotice
		c.publishLocked()
		log.Warn("query submission failed, rolled back", zap.Error(err))
		return OutcomeRolledBack, classify(err, backend.ErrSubmit)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return OutcomeAbandoned, nil
	}
	c.state = StateAwaitingReply
	c.publishLocked()
	c.mu.Unlock()

	for attempt := 1; attempt <= c.poll.MaxAttempts; attempt++ {
		messages, err := c.backend.ListMessages(pollCtx, userID, sessionID)
		if err == nil && answered(messages) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.epoch != epoch {
				return OutcomeAbandoned, nil
			}
			c.messages = messages
			c.loadErr = ""
			c.settleLocked()
			log.Info("answer received", zap.Int("attempt", attempt))
			return OutcomeAnswered, nil
		}
		if err != nil {
			log.Debug("poll attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}

		if err := c.sleep(pollCtx, c.poll.Interval); err != nil {
			return c.interrupted(epoch, p.placeholder.ID, err)
		}
	}

	log.Info("no answer within poll budget, refreshing", zap.Int("attempts", c.poll.MaxAttempts))
	messages, err := c.loader.Load(pollCtx, userID, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return OutcomeAbandoned, nil
	}
	c.applyLoadLocked(messages, err)
	c.settleLocked()
	return OutcomeExhausted, nil
}

// interrupted ends a poll whose wait was cut short, either by Open of another
// session or by the caller.
func (c *Controller) interrupted(epoch uint64, placeholderID chat.ID, err error) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return OutcomeAbandoned, nil
	}
	c.removeLocked(placeholderID)
	c.settleLocked()
	return OutcomeCancelled, err
}

func (c *Controller) settleLocked() {
	c.state = StateIdle
	c.stopPoll = nil
	c.publishLocked()
}

func (c *Controller) removeLocked(ids ...chat.ID) {
	kept := make([]chat.Message, 0, len(c.messages))
	for _, m := range c.messages {
		drop := false
		for _, id := range ids {
			if m.ID == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}

func (c *Controller) snapshotLocked() Snapshot {
	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	return Snapshot{
		UserID:    c.userID,
		SessionID: c.sessionID,
		State:     c.state,
		Messages:  messages,
		Loading:   c.loading,
		Error:     c.loadErr,
		Notice:    c.notice,
	}
}

func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// answered reports whether the latest message is a settled AI answer.
func answered(messages []chat.Message) bool {
	if len(messages) == 0 {
		return false
	}
	return messages[len(messages)-1].IsAnswer()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
