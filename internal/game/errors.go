package game

import (
	"fmt"
	"strings"

	"github.com/myrjola/taleweaver/internal/errors"
)

// ErrNotFound signals an unknown session id. Surfaced to the caller as 404, never retried.
var ErrNotFound = errors.NewSentinel("session not found")

// ErrCollaborator signals a model or media service failure. Collaborator calls are
// retried a bounded number of times before this propagates.
var ErrCollaborator = errors.NewSentinel("collaborator failure")

// CollaboratorError marks err as a collaborator failure so that callers can
// detect the class with errors.Is(err, ErrCollaborator).
func CollaboratorError(err error) error {
	return fmt.Errorf("%w: %w", ErrCollaborator, err)
}

// FieldIssue is one structured finding about an invalid payload.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a malformed action or seed payload with field-level
// issues. Surfaced to the caller as 400, never retried.
type ValidationError struct {
	Issues []FieldIssue `json:"issues"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		messages[i] = fmt.Sprintf("%s: %s", issue.Field, issue.Message)
	}
	return "validation failed: " + strings.Join(messages, "; ")
}
