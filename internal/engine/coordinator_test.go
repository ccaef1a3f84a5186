package engine_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/taleweaver/internal/dispatch"
	"github.com/myrjola/taleweaver/internal/engine"
	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/retry"
	"github.com/myrjola/taleweaver/internal/store"
	"github.com/myrjola/taleweaver/internal/testhelpers"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRetry = retry.Config{Attempts: 3, BaseDelay: time.Millisecond}

type fakeModel struct {
	mu       sync.Mutex
	calls    int
	failures int
	chunk    game.NarrativeChunk
	tools    []game.ToolCall
	messages []openai.ChatCompletionMessage
}

func (f *fakeModel) Generate(
	_ context.Context,
	messages []openai.ChatCompletionMessage,
) (*game.NarrativeChunk, []game.ToolCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = messages
	if f.failures > 0 {
		f.failures--
		return nil, nil, game.CollaboratorError(errors.New("model overloaded"))
	}
	chunk := f.chunk
	return &chunk, f.tools, nil
}

type fakeMedia struct{}

func (fakeMedia) GenerateImage(_ context.Context, args map[string]any) (game.MediaDescriptor, error) {
	return game.MediaDescriptor{
		Kind: game.MediaImage,
		URL:  "https://example.com/scene.png",
	}, nil
}

func (fakeMedia) GenerateAudio(_ context.Context, _ map[string]any) (game.MediaDescriptor, error) {
	return game.MediaDescriptor{
		Kind: game.MediaAudio,
		URL:  "/media/scene.mp3",
	}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	chunks []game.NarrativeChunk
}

func (f *fakePublisher) PublishChunk(_ string, chunk game.NarrativeChunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk)
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, _ []game.TranscriptEntry) (string, error) {
	return "recap", nil
}

type fixture struct {
	coordinator *engine.Coordinator
	store       store.Store
	model       *fakeModel
	publisher   *fakePublisher
	sessionID   string
}

func newFixture(t *testing.T, model *fakeModel) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := testhelpers.NewLogger(io.Discard)
	worldStore := store.NewMemoryStore(logger)
	state, err := worldStore.Create(ctx, nil)
	require.NoError(t, err)

	dispatcher := dispatch.New(worldStore, fakeMedia{}, fakeSummarizer{}, logger,
		dispatch.WithRetryConfig(testRetry))
	publisher := &fakePublisher{}
	coordinator := engine.NewCoordinator(worldStore, model, dispatcher, logger,
		engine.WithPublisher(publisher),
		engine.WithRetryConfig(testRetry))
	return &fixture{
		coordinator: coordinator,
		store:       worldStore,
		model:       model,
		publisher:   publisher,
		sessionID:   state.SessionID,
	}
}

func action(input string) game.Action {
	return game.Action{PlayerInput: input}
}

func TestTurn_FullCycle(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{
		chunk: game.NarrativeChunk{Text: "The door creaks open."},
		tools: []game.ToolCall{
			{Name: "generate_image", Arguments: map[string]any{"prompt": "creaking door"}},
			{Name: "generate_audio", Arguments: map[string]any{"text": "creak"}},
		},
	}
	f := newFixture(t, model)

	result, err := f.coordinator.Turn(ctx, f.sessionID, action("open the door"))
	require.NoError(t, err)

	assert.Equal(t, "The door creaks open.", result.Chunk.Text)
	require.Len(t, result.Chunk.Media, 2)
	// Auxiliary media keeps dispatch order.
	assert.Equal(t, game.MediaImage, result.Chunk.Media[0].Kind)
	assert.Equal(t, game.MediaAudio, result.Chunk.Media[1].Kind)
	assert.Empty(t, result.Issues)

	transcript, err := f.store.Transcript(ctx, f.sessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, game.RolePlayer, transcript[0].Role)
	assert.Equal(t, "open the door", transcript[0].Content)
	assert.Equal(t, game.RoleNarrator, transcript[1].Role)
	assert.Equal(t, "The door creaks open.", transcript[1].Content)

	require.Len(t, f.publisher.chunks, 1)
	assert.Equal(t, result.Chunk, f.publisher.chunks[0])
}

func TestTurn_UpdateStateAppliedBeforeCommit(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{
		chunk: game.NarrativeChunk{Text: "You pocket the key."},
		tools: []game.ToolCall{{
			Name: "update_state",
			Arguments: map[string]any{
				"diff": map[string]any{"inventory": []any{"brass key"}},
			},
		}},
	}
	f := newFixture(t, model)

	_, err := f.coordinator.Turn(ctx, f.sessionID, action("take the key"))
	require.NoError(t, err)

	state, err := f.store.Get(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"brass key"}, state.Inventory)
}

func TestTurn_ModelDiffWinsOverToolDiff(t *testing.T) {
	ctx := context.Background()
	// The tool call writes the inventory first; the model chunk's own diff is
	// applied at commit and replaces the same field wholly.
	model := &fakeModel{
		chunk: game.NarrativeChunk{
			Text:      "You trade the key for a lantern.",
			StateDiff: &game.StateDiff{Inventory: []string{"lantern"}},
		},
		tools: []game.ToolCall{{
			Name: "update_state",
			Arguments: map[string]any{
				"diff": map[string]any{"inventory": []any{"brass key"}},
			},
		}},
	}
	f := newFixture(t, model)

	_, err := f.coordinator.Turn(ctx, f.sessionID, action("trade the key"))
	require.NoError(t, err)

	state, err := f.store.Get(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lantern"}, state.Inventory)
}

func TestTurn_EmptyChunkFlaggedButCommitted(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{chunk: game.NarrativeChunk{}}
	f := newFixture(t, model)

	result, err := f.coordinator.Turn(ctx, f.sessionID, action("wait in silence"))
	require.NoError(t, err)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, game.IssueContinuity, result.Issues[0].Kind)

	// The player entry committed; the empty narration did not add an entry.
	transcript, err := f.store.Transcript(ctx, f.sessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, game.RolePlayer, transcript[0].Role)
}

func TestTurn_ModerationIssueAdvisory(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{chunk: game.NarrativeChunk{Text: "The butler threatens to kill the witness."}}
	f := newFixture(t, model)

	result, err := f.coordinator.Turn(ctx, f.sessionID, action("confront the butler"))
	require.NoError(t, err)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, game.IssueModeration, result.Issues[0].Kind)

	// Advisory only: the narration still committed.
	transcript, err := f.store.Transcript(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Len(t, transcript, 2)
}

func TestTurn_UnknownSession(t *testing.T) {
	model := &fakeModel{chunk: game.NarrativeChunk{Text: "unused"}}
	f := newFixture(t, model)

	_, err := f.coordinator.Turn(context.Background(), "no-such-session", action("look around"))
	assert.ErrorIs(t, err, game.ErrNotFound)
	assert.Zero(t, f.model.calls)
}

func TestTurn_UnknownSessionReportedBeforeInvalidAction(t *testing.T) {
	model := &fakeModel{chunk: game.NarrativeChunk{Text: "unused"}}
	f := newFixture(t, model)

	// A malformed action against an unknown session is a lifecycle error, not a
	// validation error.
	_, err := f.coordinator.Turn(context.Background(), "no-such-session", action(""))
	assert.ErrorIs(t, err, game.ErrNotFound)
	var validationErr *game.ValidationError
	assert.False(t, errors.As(err, &validationErr))
}

func TestTurn_InvalidActionLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{chunk: game.NarrativeChunk{Text: "unused"}}
	f := newFixture(t, model)

	_, err := f.coordinator.Turn(ctx, f.sessionID, action(""))
	var validationErr *game.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	transcript, err := f.store.Transcript(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Empty(t, transcript)
}

func TestTurn_ModelRetriedThenSucceeds(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{
		failures: 1,
		chunk:    game.NarrativeChunk{Text: "At last, a clue."},
	}
	f := newFixture(t, model)

	result, err := f.coordinator.Turn(ctx, f.sessionID, action("search the desk"))
	require.NoError(t, err)
	assert.Equal(t, "At last, a clue.", result.Chunk.Text)
	assert.Equal(t, 2, f.model.calls)
}

func TestTurn_ModelExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{failures: 10}
	f := newFixture(t, model)

	_, err := f.coordinator.Turn(ctx, f.sessionID, action("search the desk"))
	assert.ErrorIs(t, err, game.ErrCollaborator)
	assert.Equal(t, testRetry.Attempts, f.model.calls)

	// The player entry stays; no narration was committed.
	transcript, transcriptErr := f.store.Transcript(ctx, f.sessionID)
	require.NoError(t, transcriptErr)
	require.Len(t, transcript, 1)
	assert.Equal(t, game.RolePlayer, transcript[0].Role)
}

func TestTurn_ConcurrentTurnsSameSessionSerialised(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{chunk: game.NarrativeChunk{Text: "Step by step."}}
	f := newFixture(t, model)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coordinator.Turn(ctx, f.sessionID, action("pace the room"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every turn committed a player and a narrator entry, interleaved whole.
	transcript, err := f.store.Transcript(ctx, f.sessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 8)
	for i, entry := range transcript {
		if i%2 == 0 {
			assert.Equal(t, game.RolePlayer, entry.Role)
		} else {
			assert.Equal(t, game.RoleNarrator, entry.Role)
		}
	}
}
