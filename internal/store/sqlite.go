package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/random"
	"github.com/myrjola/taleweaver/internal/sqlite"
)

// SQLiteStore persists sessions in SQLite. The world state lives in a JSON
// column; the transcript is a separate table keyed by (session_id, seq) so that
// append order survives restarts.
type SQLiteStore struct {
	db     *sqlite.Database
	logger *slog.Logger
}

// NewSQLiteStore creates a store on top of an initialised database.
func NewSQLiteStore(db *sqlite.Database, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logger.With("source", "SQLiteStore"),
	}
}

func (s *SQLiteStore) Create(ctx context.Context, seed *game.Seed) (*game.WorldState, error) {
	if seed == nil {
		seed = &game.Seed{}
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	state := seed.World()
	if state.SessionID == "" {
		id, err := random.Letters(sessionIDLength)
		if err != nil {
			return nil, errors.Wrap(err, "generate session id")
		}
		state.SessionID = id
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, errors.Wrap(err, "encode world state")
	}

	stmt := `INSERT INTO sessions (id, state) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`
	result, err := s.db.ReadWrite.ExecContext(ctx, stmt, state.SessionID, string(encoded))
	if err != nil {
		return nil, errors.Wrap(err, "insert session")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return nil, &game.ValidationError{Issues: []game.FieldIssue{
			{Field: "sessionId", Message: "session id already exists"},
		}}
	}

	return state, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*game.WorldState, error) {
	var encoded string
	stmt := `SELECT state FROM sessions WHERE id = ?`
	if err := s.db.ReadOnly.GetContext(ctx, &encoded, stmt, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(game.ErrNotFound, "get state", slog.String("session_id", sessionID))
		}
		return nil, errors.Wrap(err, "read session")
	}
	return decodeState(encoded, sessionID)
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := s.db.ReadOnly.SelectContext(ctx, &ids, `SELECT id FROM sessions`); err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	return ids, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	result, err := s.db.ReadWrite.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return errors.Wrap(err, "delete session")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.Wrap(game.ErrNotFound, "delete session", slog.String("session_id", sessionID))
	}
	return nil
}

// appendTranscriptStmt appends an entry with the next sequence number. The
// SELECT from sessions makes the statement a no-op for unknown sessions, which
// we detect through the affected row count.
const appendTranscriptStmt = `INSERT INTO transcript_entries (session_id, seq, role, content, created_at)
SELECT s.id,
       COALESCE((SELECT MAX(t.seq) + 1 FROM transcript_entries t WHERE t.session_id = s.id), 0),
       ?, ?, ?
FROM sessions s
WHERE s.id = ?`

func (s *SQLiteStore) AppendTranscript(ctx context.Context, sessionID string, role game.Role, content string) error {
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ReadWrite.ExecContext(ctx, appendTranscriptStmt, string(role), content, createdAt, sessionID)
	if err != nil {
		return errors.Wrap(err, "insert transcript entry")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.Wrap(game.ErrNotFound, "append transcript", slog.String("session_id", sessionID))
	}
	return nil
}

func (s *SQLiteStore) Transcript(ctx context.Context, sessionID string) ([]game.TranscriptEntry, error) {
	// Existence check first so an empty transcript is distinguishable from an
	// unknown session.
	var exists int
	if err := s.db.ReadOnly.GetContext(ctx, &exists,
		`SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID); err != nil {
		return nil, errors.Wrap(err, "check session")
	}
	if exists == 0 {
		return nil, errors.Wrap(game.ErrNotFound, "read transcript", slog.String("session_id", sessionID))
	}

	var rows []struct {
		Role      string `db:"role"`
		Content   string `db:"content"`
		CreatedAt string `db:"created_at"`
	}
	stmt := `SELECT role, content, created_at FROM transcript_entries WHERE session_id = ? ORDER BY seq`
	if err := s.db.ReadOnly.SelectContext(ctx, &rows, stmt, sessionID); err != nil {
		return nil, errors.Wrap(err, "query transcript")
	}

	entries := make([]game.TranscriptEntry, len(rows))
	for i, row := range rows {
		createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "parse created_at", slog.String("value", row.CreatedAt))
		}
		entries[i] = game.TranscriptEntry{
			Role:      game.Role(row.Role),
			Content:   row.Content,
			CreatedAt: createdAt,
		}
	}
	return entries, nil
}

func (s *SQLiteStore) ApplyNarrative(ctx context.Context, sessionID string, chunk *game.NarrativeChunk) error {
	tx, err := s.db.ReadWrite.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.LogAttrs(ctx, slog.LevelError, "rollback failed", errors.SlogError(rollbackErr))
		}
	}()

	var encoded string
	if err = tx.GetContext(ctx, &encoded, `SELECT state FROM sessions WHERE id = ?`, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(game.ErrNotFound, "apply narrative", slog.String("session_id", sessionID))
		}
		return errors.Wrap(err, "read session")
	}

	state, err := decodeState(encoded, sessionID)
	if err != nil {
		return err
	}
	state.Merge(chunk.StateDiff)

	merged, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encode world state")
	}
	if _, err = tx.ExecContext(ctx, `UPDATE sessions SET state = ? WHERE id = ?`, string(merged), sessionID); err != nil {
		return errors.Wrap(err, "update session state")
	}

	if chunk.Text != "" {
		createdAt := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err = tx.ExecContext(ctx, appendTranscriptStmt,
			string(game.RoleNarrator), chunk.Text, createdAt, sessionID); err != nil {
			return errors.Wrap(err, "insert narrator entry")
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

func decodeState(encoded, sessionID string) (*game.WorldState, error) {
	var state game.WorldState
	if err := json.Unmarshal([]byte(encoded), &state); err != nil {
		return nil, errors.Wrap(err, "decode world state", slog.String("session_id", sessionID))
	}
	state.SessionID = sessionID
	return &state, nil
}
