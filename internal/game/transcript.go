package game

import "time"

// Role identifies the author of a transcript entry.
type Role string

const (
	RolePlayer   Role = "player"
	RoleNarrator Role = "narrator"
	RoleSystem   Role = "system"
)

// TranscriptEntry is one line of the session transcript. Entries are append-only;
// content and role never change once written.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
