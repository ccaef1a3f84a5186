// Package store owns the canonical world state and transcript for every session.
//
// All other components read snapshots or propose diffs through this interface;
// none of them keeps its own copy of session data across turns. The backing
// storage is swappable: [MemoryStore] for a single-process setup and tests,
// [SQLiteStore] when sessions must survive a restart.
package store

import (
	"context"

	"github.com/myrjola/taleweaver/internal/game"
)

// sessionIDLength is the length of generated session identifiers.
const sessionIDLength = 20

// Store is the world state store contract.
type Store interface {
	// Create allocates a new session. A nil seed produces an empty world with a
	// generated id. Seed data that does not conform to the world state shape is
	// rejected with a [game.ValidationError].
	Create(ctx context.Context, seed *game.Seed) (*game.WorldState, error)

	// Get returns a snapshot of the session's world state, or [game.ErrNotFound].
	Get(ctx context.Context, sessionID string) (*game.WorldState, error)

	// List returns all session ids. Order carries no meaning.
	List(ctx context.Context) ([]string, error)

	// Delete removes the session and its transcript, or returns [game.ErrNotFound].
	Delete(ctx context.Context, sessionID string) error

	// AppendTranscript appends one entry with a fresh timestamp. The transcript
	// grows by exactly one entry; entries are never reordered.
	AppendTranscript(ctx context.Context, sessionID string, role game.Role, content string) error

	// Transcript returns the session's transcript in append order.
	Transcript(ctx context.Context, sessionID string) ([]game.TranscriptEntry, error)

	// ApplyNarrative commits a narrative chunk: the state diff, when present, is
	// shallow-merged into the stored world state (diff wins, whole-field
	// replacement) and a narrator transcript entry is appended when the chunk
	// text is non-empty. The commit is atomic with respect to other operations
	// on the same session.
	ApplyNarrative(ctx context.Context, sessionID string, chunk *game.NarrativeChunk) error
}
