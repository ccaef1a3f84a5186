package game

// WorldState is the canonical state of one storytelling session. The store owns
// the only copy; other components read snapshots or propose diffs.
type WorldState struct {
	SessionID  string               `json:"sessionId"`
	Characters map[string]Character `json:"characters"`
	Locations  map[string]Location  `json:"locations"`
	QuestFlags map[string]QuestFlag `json:"questFlags"`
	Inventory  []string             `json:"inventory"`
}

// Character is an actor in the story. Inventory items and location references may
// be forward references; existence is only checked at read time.
type Character struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Inventory   []string `json:"inventory,omitempty"`
}

// Location is a place in the story world. Connections name other location ids.
type Location struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Connections []string `json:"connections,omitempty"`
}

// QuestFlag tracks the progress of one quest line.
type QuestFlag struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
	Note      string `json:"note,omitempty"`
}

// StateDiff is a partial WorldState proposed by the narrator or a tool call.
// A nil field means "leave the stored field alone"; a non-nil field replaces the
// stored field wholly. The merge is shallow on purpose: the model is expected to
// emit complete mappings for the fields it touches.
type StateDiff struct {
	Characters map[string]Character `json:"characters,omitempty"`
	Locations  map[string]Location  `json:"locations,omitempty"`
	QuestFlags map[string]QuestFlag `json:"questFlags,omitempty"`
	Inventory  []string             `json:"inventory,omitempty"`
}

// Merge applies diff to the state. Fields present in the diff win on collision
// and replace the corresponding stored field in full.
func (s *WorldState) Merge(diff *StateDiff) {
	if diff == nil {
		return
	}
	if diff.Characters != nil {
		s.Characters = diff.Characters
	}
	if diff.Locations != nil {
		s.Locations = diff.Locations
	}
	if diff.QuestFlags != nil {
		s.QuestFlags = diff.QuestFlags
	}
	if diff.Inventory != nil {
		s.Inventory = diff.Inventory
	}
}

// Clone returns a deep copy so that callers can hand out snapshots without
// exposing the store's canonical maps.
func (s *WorldState) Clone() *WorldState {
	clone := WorldState{
		SessionID:  s.SessionID,
		Characters: make(map[string]Character, len(s.Characters)),
		Locations:  make(map[string]Location, len(s.Locations)),
		QuestFlags: make(map[string]QuestFlag, len(s.QuestFlags)),
		Inventory:  append([]string(nil), s.Inventory...),
	}
	for id, character := range s.Characters {
		character.Inventory = append([]string(nil), character.Inventory...)
		clone.Characters[id] = character
	}
	for id, location := range s.Locations {
		location.Connections = append([]string(nil), location.Connections...)
		clone.Locations[id] = location
	}
	for id, flag := range s.QuestFlags {
		clone.QuestFlags[id] = flag
	}
	return &clone
}

// Seed is the optional payload for creating a session. A zero Seed produces an
// empty world with a generated session id.
type Seed struct {
	SessionID  string               `json:"sessionId,omitempty"`
	Characters map[string]Character `json:"characters,omitempty"`
	Locations  map[string]Location  `json:"locations,omitempty"`
	QuestFlags map[string]QuestFlag `json:"questFlags,omitempty"`
	Inventory  []string             `json:"inventory,omitempty"`
}

// Validate checks that the seed conforms to the WorldState shape.
func (s *Seed) Validate() error {
	var issues []FieldIssue
	for id := range s.Characters {
		if id == "" {
			issues = append(issues, FieldIssue{Field: "characters", Message: "character id must be non-empty"})
		}
	}
	for id := range s.Locations {
		if id == "" {
			issues = append(issues, FieldIssue{Field: "locations", Message: "location id must be non-empty"})
		}
	}
	for id := range s.QuestFlags {
		if id == "" {
			issues = append(issues, FieldIssue{Field: "questFlags", Message: "quest flag id must be non-empty"})
		}
	}
	for _, item := range s.Inventory {
		if item == "" {
			issues = append(issues, FieldIssue{Field: "inventory", Message: "inventory item id must be non-empty"})
			break
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// World materialises the seed into a WorldState. Nil mappings become empty ones
// so that reads never observe a nil map.
func (s *Seed) World() *WorldState {
	state := WorldState{
		SessionID:  s.SessionID,
		Characters: s.Characters,
		Locations:  s.Locations,
		QuestFlags: s.QuestFlags,
		Inventory:  s.Inventory,
	}
	if state.Characters == nil {
		state.Characters = map[string]Character{}
	}
	if state.Locations == nil {
		state.Locations = map[string]Location{}
	}
	if state.QuestFlags == nil {
		state.QuestFlags = map[string]QuestFlag{}
	}
	if state.Inventory == nil {
		state.Inventory = []string{}
	}
	return &state
}
