package game

import "time"

// MediaKind distinguishes generated media types.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// MediaDescriptor is an opaque reference to externally generated content. The
// orchestrator never inspects or transforms the referenced bytes.
type MediaDescriptor struct {
	Kind        MediaKind         `json:"kind"`
	URL         string            `json:"url"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NarrativeChunk is the transient bundle produced by one turn. It is consumed
// into transcript entries and a state merge, then discarded.
type NarrativeChunk struct {
	Text      string            `json:"text"`
	Media     []MediaDescriptor `json:"media"`
	StateDiff *StateDiff        `json:"stateDiff,omitempty"`
}

// Empty reports whether the chunk carries no content at all.
func (c *NarrativeChunk) Empty() bool {
	return c.Text == "" && len(c.Media) == 0 && c.StateDiff == nil
}

// ToolCall is a side-effecting instruction emitted by the generative model. It is
// consumed synchronously by the dispatcher within the same turn and never persisted.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// IssueKind classifies consistency gate findings.
type IssueKind string

const (
	IssueSafety     IssueKind = "safety"
	IssueContinuity IssueKind = "continuity"
	IssueModeration IssueKind = "moderation"
)

// Issue is an advisory finding about a candidate chunk. Issues never block the
// commit; they are logged and returned alongside the response.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

// Action is one player request driving a turn.
type Action struct {
	PlayerInput string     `json:"playerInput"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// Validate checks the action shape.
func (a *Action) Validate() error {
	if a.PlayerInput == "" {
		return &ValidationError{Issues: []FieldIssue{
			{Field: "playerInput", Message: "playerInput must be a non-empty string"},
		}}
	}
	return nil
}
