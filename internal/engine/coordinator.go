// Package engine orchestrates one player turn: transcript append, prompt
// assembly, model invocation, tool dispatch, merge, validation, and commit.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/myrjola/taleweaver/internal/dispatch"
	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/gate"
	"github.com/myrjola/taleweaver/internal/observe"
	"github.com/myrjola/taleweaver/internal/prompt"
	"github.com/myrjola/taleweaver/internal/retry"
	"github.com/myrjola/taleweaver/internal/store"
	"github.com/sashabaranov/go-openai"
)

// ModelClient is the generative model contract. Implemented by ai.Client.
type ModelClient interface {
	Generate(
		ctx context.Context,
		messages []openai.ChatCompletionMessage,
	) (*game.NarrativeChunk, []game.ToolCall, error)
}

// Publisher receives every committed chunk for live streaming. Implemented by
// the web layer's broker adapter.
type Publisher interface {
	PublishChunk(sessionID string, chunk game.NarrativeChunk)
}

// TurnResult is the response for one player action.
type TurnResult struct {
	Chunk  game.NarrativeChunk `json:"chunk"`
	Issues []game.Issue        `json:"issues"`
}

// Coordinator runs the per-turn state machine. Turns on the same session are
// serialised through a per-session mutex; turns on different sessions run in
// parallel.
type Coordinator struct {
	store      store.Store
	model      ModelClient
	dispatcher *dispatch.Dispatcher
	publisher  Publisher
	logger     *slog.Logger
	metrics    *observe.Metrics
	retryCfg   retry.Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher wires a live-stream publisher.
func WithPublisher(publisher Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = publisher
	}
}

// WithMetrics records turn and gate metrics.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithRetryConfig overrides the model retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Coordinator) {
		c.retryCfg = cfg
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	worldStore store.Store,
	model ModelClient,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Coordinator {
	coordinator := Coordinator{
		store:      worldStore,
		model:      model,
		dispatcher: dispatcher,
		publisher:  nil,
		logger:     logger.With("source", "Coordinator"),
		metrics:    nil,
		retryCfg:   retry.DefaultConfig,
		mu:         sync.Mutex{},
		locks:      map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(&coordinator)
	}
	return &coordinator
}

// sessionLock returns the mutex for the session, creating it on first use.
// Locks are never removed; they are two words each and bounded by the number of
// sessions the process has ever seen.
func (c *Coordinator) sessionLock(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

// Turn runs one request/response cycle. Failures before the player transcript
// append leave the session untouched; collaborator failures afterwards
// propagate without a commit, except for state already applied by update_state
// tool calls.
func (c *Coordinator) Turn(ctx context.Context, sessionID string, action game.Action) (*TurnResult, error) {
	start := time.Now()
	result, err := c.turn(ctx, sessionID, action)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.Turn(status, time.Since(start))
	return result, err
}

func (c *Coordinator) turn(ctx context.Context, sessionID string, action game.Action) (*TurnResult, error) {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	// Session existence first, then the action shape; neither failure mutates
	// anything. Under the lock so the prompt below sees the state the turn
	// started from.
	state, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err = action.Validate(); err != nil {
		return nil, err
	}

	if err = c.store.AppendTranscript(ctx, sessionID, game.RolePlayer, action.PlayerInput); err != nil {
		return nil, errors.Wrap(err, "append player entry")
	}

	transcript, err := c.store.Transcript(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "read transcript")
	}

	messages, err := prompt.Build(action, state, transcript)
	if err != nil {
		return nil, errors.Wrap(err, "assemble prompt")
	}

	modelChunk, toolCalls, err := c.generate(ctx, messages)
	if err != nil {
		return nil, errors.Wrap(err, "invoke model")
	}

	auxiliary, err := c.dispatcher.HandleToolCalls(ctx, sessionID, toolCalls)
	if err != nil {
		return nil, errors.Wrap(err, "dispatch tool calls")
	}

	// Merge: the model chunk's text and state diff stand; auxiliary chunks
	// contribute only their media, in dispatch order.
	combined := game.NarrativeChunk{
		Text:      modelChunk.Text,
		Media:     append([]game.MediaDescriptor{}, modelChunk.Media...),
		StateDiff: modelChunk.StateDiff,
	}
	for _, chunk := range auxiliary {
		combined.Media = append(combined.Media, chunk.Media...)
	}

	// Issues are advisory: logged and returned, never blocking the commit.
	issues := gate.Validate(&combined)
	for _, issue := range issues {
		c.metrics.GateIssue(string(issue.Kind))
		c.logger.LogAttrs(ctx, slog.LevelWarn, "consistency issue",
			slog.String("session_id", sessionID),
			slog.String("kind", string(issue.Kind)),
			slog.String("message", issue.Message))
	}

	if err = c.store.ApplyNarrative(ctx, sessionID, &combined); err != nil {
		return nil, errors.Wrap(err, "commit narrative")
	}

	if c.publisher != nil {
		c.publisher.PublishChunk(sessionID, combined)
	}

	if issues == nil {
		issues = []game.Issue{}
	}
	return &TurnResult{Chunk: combined, Issues: issues}, nil
}

// generate invokes the model with bounded retry. Only the collaborator call is
// retried; store mutations never are.
func (c *Coordinator) generate(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
) (*game.NarrativeChunk, []game.ToolCall, error) {
	var (
		chunk     *game.NarrativeChunk
		toolCalls []game.ToolCall
	)
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var innerErr error
		chunk, toolCalls, innerErr = c.model.Generate(ctx, messages)
		return innerErr
	})
	if err != nil {
		return nil, nil, err
	}
	return chunk, toolCalls, nil
}
