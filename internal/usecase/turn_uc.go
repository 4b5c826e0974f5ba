// File: internal/usecase/turn_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/model"
	"converse-relay/internal/domain/ports/adapter"
	"converse-relay/internal/domain/ports/repository"
	"converse-relay/internal/infra/logging"
	"converse-relay/internal/infra/metrics"
)

// Compile-time check
var _ TurnUseCase = (*turnUC)(nil)

// TurnUseCase accepts chat messages for background processing and exposes
// the latest outcome per user.
type TurnUseCase interface {
	// Submit validates the message, records "processing" and schedules the
	// turn. It returns domain.ErrValidation when userID or message is blank.
	Submit(ctx context.Context, userID, message string) (*model.Receipt, error)
	// Result never mutates state. Absent records yield a not_found result.
	Result(ctx context.Context, userID string) (*model.TaskResult, error)
}

type TurnOptions struct {
	// TurnTimeout bounds a whole background turn; zero disables the bound.
	TurnTimeout time.Duration
	Dev         bool
	Now         func() time.Time
	NewTurnID   func() string
}

type turnUC struct {
	results  repository.ResultStore
	sessions repository.SessionStore
	chat     adapter.ChatSessionClient
	workflow adapter.WorkflowClient
	exec     Executor
	log      *zerolog.Logger
	opts     TurnOptions
	creating singleflight.Group
}

type turn struct {
	id      string
	traceID string
	userID  string
	message string
}

func NewTurnUseCase(
	results repository.ResultStore,
	sessions repository.SessionStore,
	chat adapter.ChatSessionClient,
	workflow adapter.WorkflowClient,
	exec Executor,
	log *zerolog.Logger,
	opts TurnOptions,
) *turnUC {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewTurnID == nil {
		opts.NewTurnID = func() string { return ulid.Make().String() }
	}
	if log == nil {
		log = logging.Nop()
	}
	return &turnUC{
		results:  results,
		sessions: sessions,
		chat:     chat,
		workflow: workflow,
		exec:     exec,
		log:      log,
		opts:     opts,
	}
}

func (u *turnUC) Submit(ctx context.Context, userID, message string) (*model.Receipt, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(message) == "" {
		return nil, domain.ErrValidation
	}

	t := turn{id: u.opts.NewTurnID(), traceID: uuid.NewString(), userID: userID, message: message}
	if err := u.results.Begin(ctx, userID, model.NewProcessing(t.id, u.opts.Now().UTC())); err != nil {
		return nil, fmt.Errorf("record processing: %w", err)
	}
	metrics.IncTurn("accepted")

	log := u.turnLogger(context.Background(), t)
	log.Info().
		Str("message", logging.Redact(message, u.opts.Dev)).
		Bool("action_intent", IsActionIntent(message)).
		Msg("turn accepted")

	// The task only captures t; nothing request-scoped outlives this call.
	err := u.exec.Submit(func(ctx context.Context) error {
		u.runTurn(ctx, t)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("turn rejected by executor")
		u.finish(context.Background(), t, model.NewFailed(t.id, u.opts.Now().UTC(), fmt.Errorf("turn rejected: %w", err)))
		metrics.IncTurn("rejected")
	}

	return &model.Receipt{Status: "accepted", Message: "Processing request", TurnID: t.id}, nil
}

func (u *turnUC) Result(ctx context.Context, userID string) (*model.TaskResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	r, err := u.results.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return model.NotFound(), nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (u *turnUC) turnLogger(ctx context.Context, t turn) *zerolog.Logger {
	ctx = logging.WithTraceID(ctx, t.traceID)
	ctx = logging.WithUserID(ctx, t.userID)
	ctx = logging.WithTurnID(ctx, t.id)
	return logging.With(ctx, u.log)
}

func (u *turnUC) runTurn(ctx context.Context, t turn) {
	log := u.turnLogger(ctx, t)
	defer logging.TraceDuration(log, "TurnUC.runTurn")()

	if u.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.TurnTimeout)
		defer cancel()
	}

	start := time.Now()
	res := u.execute(ctx, t, log)
	if res.Status == model.TaskStatusError {
		log.Error().Str("error", res.Error).Msg("turn failed")
	} else {
		log.Info().Bool("workflow", res.WorkflowResult != "").Msg("turn done")
	}
	metrics.ObserveTurn(string(res.Status), time.Since(start))

	// Persist even if the turn context expired.
	u.finish(context.WithoutCancel(ctx), t, res)
}

func (u *turnUC) finish(ctx context.Context, t turn, res *model.TaskResult) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ok, err := u.results.Finish(ctx, t.userID, res)
	log := u.turnLogger(ctx, t)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("failed to record turn result")
	case !ok:
		metrics.IncTurn("superseded")
		log.Info().Msg("turn superseded by a newer message, result discarded")
	}
}

// execute drives SessionEnsure, ChatQuery and (for action intents) the
// workflow enrichment. Chat and workflow run concurrently.
func (u *turnUC) execute(ctx context.Context, t turn, log *zerolog.Logger) (res *model.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.NewFailed(t.id, u.opts.Now().UTC(), fmt.Errorf("turn panicked: %v", r))
		}
	}()

	var (
		chatResp json.RawMessage
		handle   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer recoverInto(&err)
		token, err := u.ensureSession(gctx, t.userID)
		if err != nil {
			return err
		}
		chatResp, err = u.chat.SendMessage(gctx, token, t.message)
		return err
	})
	if IsActionIntent(t.message) {
		g.Go(func() error {
			handle = u.enrich(gctx, t, log)
			return nil
		})
	} else {
		metrics.IncWorkflowSkipped("no_intent")
	}

	if err := g.Wait(); err != nil {
		return model.NewFailed(t.id, u.opts.Now().UTC(), err)
	}
	return model.NewDone(t.id, u.opts.Now().UTC(), chatResp, handle)
}

// enrich is best-effort: any failure, including a panic, yields no handle.
func (u *turnUC) enrich(ctx context.Context, t turn, log *zerolog.Logger) (handle string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("workflow enrichment panicked, continuing with chat only")
			metrics.IncWorkflowSkipped("failed")
			handle = ""
		}
	}()
	h, err := u.workflow.ExecuteWorkflow(ctx, t.message)
	if err != nil {
		log.Warn().Err(err).Msg("workflow enrichment failed, continuing with chat only")
		metrics.IncWorkflowSkipped("failed")
		return ""
	}
	return h
}

// ensureSession returns the cached token or creates one. Concurrent turns of
// the same user share a single creation call.
func (u *turnUC) ensureSession(ctx context.Context, userID string) (string, error) {
	tok, err := u.sessions.Get(ctx, userID)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("session lookup: %w", err)
	}

	v, err, _ := u.creating.Do(userID, func() (any, error) {
		if tok, err := u.sessions.Get(ctx, userID); err == nil {
			return tok, nil
		}
		tok, err := u.chat.CreateSession(ctx, userID)
		if err != nil {
			return "", err
		}
		if err := u.sessions.Put(ctx, userID, tok); err != nil {
			return "", fmt.Errorf("cache session: %w", err)
		}
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
