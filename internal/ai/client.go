// Package ai talks to the generative model behind the OpenAI chat completions
// API. The model is a black box that returns narrative text plus the tool calls
// it wants executed.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/sashabaranov/go-openai"
)

const MaxTokens = 4096

// Config selects the API endpoint and model. BaseURL is overridable so tests
// can point the client at a stub server.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client wraps the OpenAI SDK.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient builds a narrator client. An empty Model falls back to GPT-4 Turbo.
func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4TurboPreview
	}
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// narratorTools is the capability set offered to the model. The dispatcher
// executes whatever the model asks for, so the two lists must stay in sync.
var narratorTools = []openai.Tool{
	{
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionDefinition{
			Name:        "update_state",
			Description: "Replace changed world state fields. Each provided field replaces the stored field wholly.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"diff": map[string]any{
						"type":        "object",
						"description": "Partial world state with characters, locations, questFlags, and/or inventory.",
					},
				},
				"required": []string{"diff"},
			},
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionDefinition{
			Name:        "generate_image",
			Description: "Generate an illustration for the current scene.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{"type": "string"},
				},
				"required": []string{"prompt"},
			},
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionDefinition{
			Name:        "generate_audio",
			Description: "Generate narration audio for the given text.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required": []string{"text"},
			},
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionDefinition{
			Name:        "summarize_transcript",
			Description: "Summarise the story so far into a short recap.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	},
}

// Generate runs one completion and returns the narrative chunk together with
// the tool calls the model requested, in the order the model emitted them.
func (c *Client) Generate(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
) (*game.NarrativeChunk, []game.ToolCall, error) {
	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: MaxTokens,
			Messages:  messages,
			Tools:     narratorTools,
		},
	)
	if err != nil {
		return nil, nil, game.CollaboratorError(errors.Wrap(err, "create chat completion"))
	}
	if len(completion.Choices) == 0 {
		return nil, nil, game.CollaboratorError(errors.New("completion has no choices"))
	}

	message := completion.Choices[0].Message
	chunk := game.NarrativeChunk{
		Text:  message.Content,
		Media: []game.MediaDescriptor{},
	}

	toolCalls := make([]game.ToolCall, 0, len(message.ToolCalls))
	for _, call := range message.ToolCalls {
		arguments := map[string]any{}
		if call.Function.Arguments != "" {
			if err = json.Unmarshal([]byte(call.Function.Arguments), &arguments); err != nil {
				return nil, nil, game.CollaboratorError(errors.Wrap(err, "decode tool call arguments"))
			}
		}
		toolCalls = append(toolCalls, game.ToolCall{
			Name:      call.Function.Name,
			Arguments: arguments,
		})
	}

	return &chunk, toolCalls, nil
}

const summariseInstruction = "You condense storytelling transcripts. " +
	"Summarise the story so far in at most three sentences, keeping named characters and open plot threads."

// Summarize condenses a transcript into a short recap.
func (c *Client) Summarize(ctx context.Context, transcript []game.TranscriptEntry) (string, error) {
	var b strings.Builder
	for _, entry := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", entry.Role, entry.Content)
	}

	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: summariseInstruction},
				{Role: openai.ChatMessageRoleUser, Content: b.String()},
			},
		},
	)
	if err != nil {
		return "", game.CollaboratorError(errors.Wrap(err, "create summary completion"))
	}
	if len(completion.Choices) == 0 {
		return "", game.CollaboratorError(errors.New("summary completion has no choices"))
	}
	return completion.Choices[0].Message.Content, nil
}
