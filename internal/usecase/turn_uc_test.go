package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/model"
	"converse-relay/internal/infra/adapters/ondemand"
	"converse-relay/internal/infra/memstore"
	"converse-relay/internal/infra/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---- Fakes ----

type fakeChat struct {
	mu       sync.Mutex
	creates  int
	queries  int
	block    chan struct{}
	createFn func(userID string) (string, error)
	sendFn   func(token, message string) (json.RawMessage, error)
}

func (f *fakeChat) CreateSession(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(userID)
	}
	return "sess-" + userID, nil
}

func (f *fakeChat) SendMessage(ctx context.Context, token, message string) (json.RawMessage, error) {
	f.mu.Lock()
	f.queries++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.sendFn != nil {
		return f.sendFn(token, message)
	}
	return json.RawMessage(fmt.Sprintf(`{"data":{"answer":"re: %s","session":%q}}`, message, token)), nil
}

func (f *fakeChat) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.queries
}

type fakeWorkflow struct {
	calls  atomic.Int32
	handle string
	err    error
	panic  bool
}

func (f *fakeWorkflow) ExecuteWorkflow(ctx context.Context, message string) (string, error) {
	f.calls.Add(1)
	if f.panic {
		panic("workflow exploded")
	}
	return f.handle, f.err
}

type rejectingExecutor struct{}

func (rejectingExecutor) Submit(task func(ctx context.Context) error) error {
	return domain.ErrPoolSaturated
}

// ---- Helpers ----

type harness struct {
	uc       *turnUC
	results  *memstore.ResultStore
	sessions *memstore.SessionStore
}

func newHarness(t *testing.T, chat *fakeChat, wf *fakeWorkflow) *harness {
	t.Helper()
	pool := worker.NewPool(2, 16, nil)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	h := &harness{results: memstore.NewResultStore(), sessions: memstore.NewSessionStore()}
	h.uc = NewTurnUseCase(h.results, h.sessions, chat, wf, pool, nil, TurnOptions{TurnTimeout: 5 * time.Second})
	return h
}

func waitTerminal(t *testing.T, uc TurnUseCase, userID string) *model.TaskResult {
	t.Helper()
	var last *model.TaskResult
	require.Eventually(t, func() bool {
		r, err := uc.Result(context.Background(), userID)
		if err != nil {
			return false
		}
		last = r
		return r.Terminal()
	}, 3*time.Second, 5*time.Millisecond)
	return last
}

// ---- Tests ----

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t, &fakeChat{}, &fakeWorkflow{})
	ctx := context.Background()

	for _, tc := range []struct{ user, msg string }{
		{"", "hello"},
		{"alice", ""},
		{"   ", "hello"},
		{"alice", "   "},
	} {
		_, err := h.uc.Submit(ctx, tc.user, tc.msg)
		require.ErrorIs(t, err, domain.ErrValidation, "%q/%q", tc.user, tc.msg)
	}

	r, err := h.uc.Result(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusNotFound, r.Status, "validation failures record nothing")
}

func TestSubmit_RecordsProcessingBeforeUpstreamWork(t *testing.T) {
	chat := &fakeChat{block: make(chan struct{})}
	h := newHarness(t, chat, &fakeWorkflow{})
	ctx := context.Background()

	receipt, err := h.uc.Submit(ctx, "alice", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "accepted", receipt.Status)
	assert.Equal(t, "Processing request", receipt.Message)
	assert.NotEmpty(t, receipt.TurnID)

	r, err := h.uc.Result(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusProcessing, r.Status)
	assert.Equal(t, receipt.TurnID, r.TurnID)
	require.NotNil(t, r.StartedAt)

	close(chat.block)
	final := waitTerminal(t, h.uc, "alice")
	assert.Equal(t, model.TaskStatusDone, final.Status)
}

func TestTurn_ChatOnlyWhenNoActionIntent(t *testing.T) {
	wf := &fakeWorkflow{handle: "exec-1"}
	h := newHarness(t, &fakeChat{}, wf)

	_, err := h.uc.Submit(context.Background(), "alice", "What's the weather?")
	require.NoError(t, err)

	r := waitTerminal(t, h.uc, "alice")
	require.Equal(t, model.TaskStatusDone, r.Status)
	assert.NotEmpty(t, r.ChatResponse)
	assert.Empty(t, r.WorkflowResult)
	assert.NotNil(t, r.CompletedAt)
	assert.EqualValues(t, 0, wf.calls.Load())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "workflowResult")
	assert.Contains(t, string(b), "chatResponse")
}

func TestTurn_ActionIntentRunsChatAndWorkflow(t *testing.T) {
	wf := &fakeWorkflow{handle: "exec-42"}
	h := newHarness(t, &fakeChat{}, wf)

	_, err := h.uc.Submit(context.Background(), "bob", "check safety of token X")
	require.NoError(t, err)

	r := waitTerminal(t, h.uc, "bob")
	require.Equal(t, model.TaskStatusDone, r.Status)
	assert.NotEmpty(t, r.ChatResponse)
	assert.Equal(t, "exec-42", r.WorkflowResult)
	assert.EqualValues(t, 1, wf.calls.Load())
}

func TestTurn_WorkflowFailuresNeverAbortTurn(t *testing.T) {
	cases := map[string]*fakeWorkflow{
		"null handle": {},
		"error":       {err: domain.ErrInvalidResponse},
		"panic":       {panic: true},
	}
	for name, wf := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, &fakeChat{}, wf)
			_, err := h.uc.Submit(context.Background(), "bob", "buy 2 ETH")
			require.NoError(t, err)

			r := waitTerminal(t, h.uc, "bob")
			require.Equal(t, model.TaskStatusDone, r.Status)
			assert.NotEmpty(t, r.ChatResponse)
			assert.Empty(t, r.WorkflowResult)
		})
	}
}

func TestTurn_UpstreamFailuresBecomeErrorRecords(t *testing.T) {
	t.Run("session create", func(t *testing.T) {
		chat := &fakeChat{createFn: func(string) (string, error) {
			return "", fmt.Errorf("%w: missing data.id", domain.ErrSessionCreateFailed)
		}}
		h := newHarness(t, chat, &fakeWorkflow{})
		_, err := h.uc.Submit(context.Background(), "carol", "hi")
		require.NoError(t, err)

		r := waitTerminal(t, h.uc, "carol")
		assert.Equal(t, model.TaskStatusError, r.Status)
		assert.Contains(t, r.Error, "chat session creation failed")
		assert.NotNil(t, r.FailedAt)
		_, queries := chat.counts()
		assert.Equal(t, 0, queries)
	})

	t.Run("network exhausted", func(t *testing.T) {
		chat := &fakeChat{sendFn: func(string, string) (json.RawMessage, error) {
			return nil, &domain.NetworkExhaustedError{Attempts: 3, Err: errors.New("connection refused")}
		}}
		h := newHarness(t, chat, &fakeWorkflow{handle: "exec-1"})
		_, err := h.uc.Submit(context.Background(), "carol", "swap now")
		require.NoError(t, err)

		r := waitTerminal(t, h.uc, "carol")
		assert.Equal(t, model.TaskStatusError, r.Status)
		assert.Equal(t, "network request failed after 3 attempts: connection refused", r.Error)
		assert.Empty(t, r.ChatResponse)
	})

	t.Run("chat panic", func(t *testing.T) {
		chat := &fakeChat{sendFn: func(string, string) (json.RawMessage, error) { panic("nil map") }}
		h := newHarness(t, chat, &fakeWorkflow{})
		_, err := h.uc.Submit(context.Background(), "carol", "hi")
		require.NoError(t, err)

		r := waitTerminal(t, h.uc, "carol")
		assert.Equal(t, model.TaskStatusError, r.Status)
		assert.Contains(t, r.Error, "panic")
	})
}

func TestTurn_SessionIsCreatedOnceAndSurvivesErrors(t *testing.T) {
	var fail atomic.Bool
	chat := &fakeChat{}
	chat.sendFn = func(token, message string) (json.RawMessage, error) {
		if fail.Load() {
			return nil, domain.ErrQueryFailed
		}
		return json.RawMessage(`{"ok":true}`), nil
	}
	h := newHarness(t, chat, &fakeWorkflow{})
	ctx := context.Background()

	_, _ = h.uc.Submit(ctx, "dave", "one")
	waitTerminal(t, h.uc, "dave")

	fail.Store(true)
	_, _ = h.uc.Submit(ctx, "dave", "two")
	r := waitTerminal(t, h.uc, "dave")
	require.Equal(t, model.TaskStatusError, r.Status)

	fail.Store(false)
	_, _ = h.uc.Submit(ctx, "dave", "three")
	r = waitTerminal(t, h.uc, "dave")
	require.Equal(t, model.TaskStatusDone, r.Status)

	creates, queries := chat.counts()
	assert.Equal(t, 1, creates, "session token must be reused across turns")
	assert.Equal(t, 3, queries)
	tok, err := h.sessions.Get(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, "sess-dave", tok)
}

func TestTurn_NewerMessageSupersedesOlderTurn(t *testing.T) {
	first := make(chan struct{})
	chat := &fakeChat{}
	chat.sendFn = func(token, message string) (json.RawMessage, error) {
		if message == "slow" {
			<-first
		}
		return json.Marshal(map[string]string{"echo": message})
	}
	h := newHarness(t, chat, &fakeWorkflow{})
	ctx := context.Background()

	_, err := h.uc.Submit(ctx, "erin", "slow")
	require.NoError(t, err)
	second, err := h.uc.Submit(ctx, "erin", "fast")
	require.NoError(t, err)

	r := waitTerminal(t, h.uc, "erin")
	require.Equal(t, second.TurnID, r.TurnID)
	assert.JSONEq(t, `{"echo":"fast"}`, string(r.ChatResponse))

	close(first)
	// Give the stale turn time to finish; it must not clobber the newer result.
	time.Sleep(50 * time.Millisecond)
	r, err = h.uc.Result(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, second.TurnID, r.TurnID)
	assert.JSONEq(t, `{"echo":"fast"}`, string(r.ChatResponse))
}

func TestResult_PollingIsIdempotent(t *testing.T) {
	h := newHarness(t, &fakeChat{}, &fakeWorkflow{})
	ctx := context.Background()

	_, err := h.uc.Result(ctx, "  ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, _ = h.uc.Submit(ctx, "frank", "hello")
	first := waitTerminal(t, h.uc, "frank")
	for i := 0; i < 5; i++ {
		again, err := h.uc.Result(ctx, "frank")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSubmit_ExecutorRejectionRecordsError(t *testing.T) {
	results := memstore.NewResultStore()
	uc := NewTurnUseCase(results, memstore.NewSessionStore(), &fakeChat{}, &fakeWorkflow{}, rejectingExecutor{}, nil, TurnOptions{})

	receipt, err := uc.Submit(context.Background(), "gina", "hello")
	require.NoError(t, err)
	assert.Equal(t, "accepted", receipt.Status)

	r, err := uc.Result(context.Background(), "gina")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusError, r.Status)
	assert.Contains(t, r.Error, "worker queue full")
}

func TestTurn_DegradedModeEndToEnd(t *testing.T) {
	chat := ondemand.NewChatClient(ondemand.Options{})
	wf := ondemand.NewWorkflowClient(ondemand.Options{})

	pool := worker.NewPool(1, 4, nil)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	uc := NewTurnUseCase(memstore.NewResultStore(), memstore.NewSessionStore(), chat, wf, pool, nil, TurnOptions{})

	_, err := uc.Submit(context.Background(), "alice", "check my portfolio balance")
	require.NoError(t, err)
	r := waitTerminal(t, uc, "alice")
	require.Equal(t, model.TaskStatusDone, r.Status)
	assert.Empty(t, r.WorkflowResult, "unconfigured workflow yields no handle")

	var out struct {
		Data struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(r.ChatResponse, &out))
	assert.Equal(t, "Chat response (mock): check my portfolio balance", out.Data.Content)
}
