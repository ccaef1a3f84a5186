package prompt_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/prompt"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyWorld() *game.WorldState {
	return (&game.Seed{SessionID: "abc"}).World()
}

func TestBuild_WindowsTranscript(t *testing.T) {
	transcript := make([]game.TranscriptEntry, 15)
	for i := range transcript {
		transcript[i] = game.TranscriptEntry{
			Role:      game.RoleNarrator,
			Content:   fmt.Sprintf("entry %d", i),
			CreatedAt: time.Now(),
		}
	}

	messages, err := prompt.Build(game.Action{PlayerInput: "open the door"}, emptyWorld(), transcript)
	require.NoError(t, err)

	// System instruction + 10 windowed entries + the new player message.
	require.Len(t, messages, 12)
	assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	assert.Equal(t, "entry 5", messages[1].Content, "window starts at the 6th entry of 15")
	assert.Equal(t, "entry 14", messages[10].Content, "window ends at the most recent entry")
	assert.Equal(t, openai.ChatMessageRoleUser, messages[11].Role)
	assert.Equal(t, "open the door", messages[11].Content)
}

func TestBuild_RoleMapping(t *testing.T) {
	transcript := []game.TranscriptEntry{
		{Role: game.RoleSystem, Content: "the stage is set"},
		{Role: game.RolePlayer, Content: "look around"},
		{Role: game.RoleNarrator, Content: "fog rolls in"},
	}

	messages, err := prompt.Build(game.Action{PlayerInput: "next"}, emptyWorld(), transcript)
	require.NoError(t, err)

	require.Len(t, messages, 5)
	assert.Equal(t, openai.ChatMessageRoleSystem, messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, messages[2].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, messages[3].Role)
}

func TestBuild_EmbedsStateSnapshotNotTranscript(t *testing.T) {
	state := emptyWorld()
	state.Characters = map[string]game.Character{"watson": {Name: "Watson"}}
	state.Inventory = []string{"magnifying-glass"}
	transcript := []game.TranscriptEntry{{Role: game.RoleNarrator, Content: "a secret clue"}}

	messages, err := prompt.Build(game.Action{PlayerInput: "inspect"}, state, transcript)
	require.NoError(t, err)

	assert.Contains(t, messages[0].Content, `"Watson"`)
	assert.Contains(t, messages[0].Content, `"magnifying-glass"`)
	assert.NotContains(t, messages[0].Content, "a secret clue")
}

func TestBuild_Deterministic(t *testing.T) {
	state := emptyWorld()
	state.Characters = map[string]game.Character{
		"watson": {Name: "Watson"},
		"holmes": {Name: "Holmes"},
		"adler":  {Name: "Adler"},
	}
	action := game.Action{PlayerInput: "knock"}

	first, err := prompt.Build(action, state, nil)
	require.NoError(t, err)
	second, err := prompt.Build(action, state, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuild_RejectsEmptyInput(t *testing.T) {
	_, err := prompt.Build(game.Action{}, emptyWorld(), nil)

	var validationErr *game.ValidationError
	require.ErrorAs(t, err, &validationErr)
}
