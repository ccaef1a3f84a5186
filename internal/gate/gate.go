// Package gate validates candidate narrative chunks before commit. Findings are
// advisory: the coordinator logs and returns them but commits anyway. Stricter
// policy slots in here.
package gate

import (
	"regexp"

	"github.com/myrjola/taleweaver/internal/game"
)

// moderationPattern flags whole-word occurrences of lexical red flags,
// case-insensitively.
var moderationPattern = regexp.MustCompile(`(?i)\b(kill|murder)\b`)

// Validate inspects a candidate chunk and returns zero or more issues. The rules
// are evaluated independently; a chunk can trip several of them. Validate never
// mutates its input.
func Validate(chunk *game.NarrativeChunk) []game.Issue {
	var issues []game.Issue

	if chunk.Empty() {
		issues = append(issues, game.Issue{
			Kind:    game.IssueContinuity,
			Message: "chunk carries no content",
		})
	}

	if moderationPattern.MatchString(chunk.Text) {
		issues = append(issues, game.Issue{
			Kind:    game.IssueModeration,
			Message: "text contains flagged language",
		})
	}

	return issues
}
