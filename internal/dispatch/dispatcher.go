// Package dispatch executes the tool calls returned by the generative model.
// Calls run strictly in the order received; a state mutation requested by call
// i is visible to call i+1 because update_state writes through the shared store
// synchronously.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/media"
	"github.com/myrjola/taleweaver/internal/observe"
	"github.com/myrjola/taleweaver/internal/retry"
	"github.com/myrjola/taleweaver/internal/store"
)

// Summarizer condenses a transcript into a short recap. Implemented by the
// model client.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []game.TranscriptEntry) (string, error)
}

// toolKind is the closed set of capabilities behind the open string tag of a
// tool call. Unknown names map to toolUnknown so the switch stays exhaustive
// while the boundary remains tolerant.
type toolKind int

const (
	toolUpdateState toolKind = iota
	toolGenerateImage
	toolGenerateAudio
	toolSummarizeTranscript
	toolUnknown
)

func kindOf(name string) toolKind {
	switch name {
	case "update_state":
		return toolUpdateState
	case "generate_image":
		return toolGenerateImage
	case "generate_audio":
		return toolGenerateAudio
	case "summarize_transcript":
		return toolSummarizeTranscript
	default:
		return toolUnknown
	}
}

// Dispatcher routes tool calls to their handlers.
type Dispatcher struct {
	store      store.Store
	media      media.Client
	summarizer Summarizer
	logger     *slog.Logger
	metrics    *observe.Metrics
	retryCfg   retry.Config
	// strict surfaces ErrNotFound for tool calls against a since-deleted
	// session instead of skipping them silently.
	strict bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStrictLifecycle makes tool calls against deleted sessions fail instead of
// degrading silently.
func WithStrictLifecycle() Option {
	return func(d *Dispatcher) {
		d.strict = true
	}
}

// WithRetryConfig overrides the collaborator retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(d *Dispatcher) {
		d.retryCfg = cfg
	}
}

// WithMetrics records per-tool counters.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// New creates a Dispatcher.
func New(
	worldStore store.Store,
	mediaClient media.Client,
	summarizer Summarizer,
	logger *slog.Logger,
	opts ...Option,
) *Dispatcher {
	dispatcher := Dispatcher{
		store:      worldStore,
		media:      mediaClient,
		summarizer: summarizer,
		logger:     logger.With("source", "Dispatcher"),
		metrics:    nil,
		retryCfg:   retry.DefaultConfig,
		strict:     false,
	}
	for _, opt := range opts {
		opt(&dispatcher)
	}
	return &dispatcher
}

// HandleToolCalls executes calls sequentially and returns one chunk per call
// that produced output. update_state mutates the store immediately and emits
// nothing; unknown names degrade to a visible placeholder chunk.
func (d *Dispatcher) HandleToolCalls(
	ctx context.Context,
	sessionID string,
	calls []game.ToolCall,
) ([]game.NarrativeChunk, error) {
	var chunks []game.NarrativeChunk
	for _, call := range calls {
		d.metrics.ToolCall(call.Name)

		switch kindOf(call.Name) {
		case toolUpdateState:
			if err := d.updateState(ctx, sessionID, call); err != nil {
				return nil, err
			}

		case toolGenerateImage:
			descriptor, err := retry.DoWithResult(ctx, d.retryCfg,
				func(ctx context.Context) (game.MediaDescriptor, error) {
					return d.media.GenerateImage(ctx, call.Arguments)
				})
			if err != nil {
				return nil, errors.Wrap(err, "generate image")
			}
			chunks = append(chunks, game.NarrativeChunk{Text: "", Media: []game.MediaDescriptor{descriptor}})

		case toolGenerateAudio:
			descriptor, err := retry.DoWithResult(ctx, d.retryCfg,
				func(ctx context.Context) (game.MediaDescriptor, error) {
					return d.media.GenerateAudio(ctx, call.Arguments)
				})
			if err != nil {
				return nil, errors.Wrap(err, "generate audio")
			}
			chunks = append(chunks, game.NarrativeChunk{Text: "", Media: []game.MediaDescriptor{descriptor}})

		case toolSummarizeTranscript:
			chunk, err := d.summarizeTranscript(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			if chunk != nil {
				chunks = append(chunks, *chunk)
			}

		case toolUnknown:
			// Tool calls are never rejected outright: unknown names degrade to
			// a visible placeholder instead of failing the turn.
			d.logger.LogAttrs(ctx, slog.LevelWarn, "unhandled tool call", slog.String("name", call.Name))
			chunks = append(chunks, game.NarrativeChunk{
				Text:  fmt.Sprintf("Unhandled tool call: %s", call.Name),
				Media: []game.MediaDescriptor{},
			})
		}
	}
	return chunks, nil
}

// updateState applies the diff through the store before the turn's combined
// chunk is validated or committed.
func (d *Dispatcher) updateState(ctx context.Context, sessionID string, call game.ToolCall) error {
	diff, err := decodeDiff(call.Arguments)
	if err != nil {
		// Malformed arguments degrade like unknown tool names: log and move on
		// rather than failing the turn over model sloppiness.
		d.logger.LogAttrs(ctx, slog.LevelWarn, "malformed update_state arguments", errors.SlogError(err))
		return nil
	}

	chunk := game.NarrativeChunk{Text: "", Media: []game.MediaDescriptor{}, StateDiff: diff}
	if err = d.store.ApplyNarrative(ctx, sessionID, &chunk); err != nil {
		if errors.Is(err, game.ErrNotFound) && !d.strict {
			d.logger.LogAttrs(ctx, slog.LevelDebug, "update_state on missing session skipped",
				slog.String("session_id", sessionID))
			return nil
		}
		return errors.Wrap(err, "apply state diff")
	}
	return nil
}

func (d *Dispatcher) summarizeTranscript(ctx context.Context, sessionID string) (*game.NarrativeChunk, error) {
	transcript, err := d.store.Transcript(ctx, sessionID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) && !d.strict {
			d.logger.LogAttrs(ctx, slog.LevelDebug, "summarize_transcript on missing session skipped",
				slog.String("session_id", sessionID))
			return nil, nil
		}
		return nil, errors.Wrap(err, "read transcript")
	}

	summary, err := retry.DoWithResult(ctx, d.retryCfg, func(ctx context.Context) (string, error) {
		return d.summarizer.Summarize(ctx, transcript)
	})
	if err != nil {
		return nil, errors.Wrap(err, "summarize transcript")
	}
	return &game.NarrativeChunk{Text: summary, Media: []game.MediaDescriptor{}}, nil
}

// decodeDiff converts the loosely typed arguments.diff into a StateDiff.
func decodeDiff(arguments map[string]any) (*game.StateDiff, error) {
	raw, ok := arguments["diff"]
	if !ok {
		return nil, errors.New("update_state requires a diff argument")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "encode diff")
	}
	var diff game.StateDiff
	if err = json.Unmarshal(encoded, &diff); err != nil {
		return nil, errors.Wrap(err, "decode diff")
	}
	return &diff, nil
}
