// Package prompt builds model-ready requests from the player action and the
// session's canonical state. Build is a pure function so that the same inputs
// always produce the same message list.
package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/sashabaranov/go-openai"
)

// TranscriptWindow is the number of most recent transcript entries included in
// the prompt. Older history is never summarised here; summarisation is a tool
// call handled by the dispatcher.
const TranscriptWindow = 10

const systemInstruction = `You are the narrator of an interactive story. Continue the story based on the player's actions.
Keep continuity with the transcript and the world state below. When the world changes, call the update_state tool
with a complete replacement for each changed field. Use generate_image or generate_audio for scenes that deserve
illustration, and summarize_transcript when the story grows long.

Current world state:
%s`

// stateSnapshot is the serialised portion of the world state embedded in the
// system instruction. The transcript is deliberately not part of it.
type stateSnapshot struct {
	Characters map[string]game.Character `json:"characters"`
	Locations  map[string]game.Location  `json:"locations"`
	QuestFlags map[string]game.QuestFlag `json:"questFlags"`
	Inventory  []string                  `json:"inventory"`
}

// Build assembles the chat messages for one turn: a system instruction carrying
// the state snapshot, the last [TranscriptWindow] transcript entries in original
// order, and the player input as the final user message.
func Build(
	action game.Action,
	state *game.WorldState,
	transcript []game.TranscriptEntry,
) ([]openai.ChatCompletionMessage, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(stateSnapshot{
		Characters: state.Characters,
		Locations:  state.Locations,
		QuestFlags: state.QuestFlags,
		Inventory:  state.Inventory,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode state snapshot")
	}

	window := transcript
	if len(window) > TranscriptWindow {
		window = window[len(window)-TranscriptWindow:]
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(window)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(systemInstruction, snapshot),
	})
	for _, entry := range window {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    chatRole(entry.Role),
			Content: entry.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: action.PlayerInput,
	})

	return messages, nil
}

// chatRole maps transcript roles onto the model's chat roles.
func chatRole(role game.Role) string {
	switch role {
	case game.RoleNarrator:
		return openai.ChatMessageRoleAssistant
	case game.RoleSystem:
		return openai.ChatMessageRoleSystem
	case game.RolePlayer:
		return openai.ChatMessageRoleUser
	default:
		return openai.ChatMessageRoleUser
	}
}
