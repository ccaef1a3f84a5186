// Package scenario loads authored starting worlds from YAML files. A scenario
// is a named, hand-written seed: players create sessions from one instead of
// starting in an empty world.
package scenario

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"gopkg.in/yaml.v3"
)

// Scenario is one authored starting point. ID is the file name without its
// extension and doubles as the lookup key.
type Scenario struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	seed game.Seed
}

// Seed returns the world seed for a fresh session. The session id is left empty
// so that the store generates one per session.
func (s *Scenario) Seed() *game.Seed {
	seed := s.seed
	return &seed
}

// document is the YAML shape of a scenario file. It mirrors the world types but
// carries its own tags because the world types are JSON-only wire types.
type document struct {
	Title       string                       `yaml:"title"`
	Description string                       `yaml:"description"`
	Characters  map[string]documentCharacter `yaml:"characters"`
	Locations   map[string]documentLocation  `yaml:"locations"`
	QuestFlags  map[string]documentQuestFlag `yaml:"questFlags"`
	Inventory   []string                     `yaml:"inventory"`
}

type documentCharacter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Location    string   `yaml:"location"`
	Inventory   []string `yaml:"inventory"`
}

type documentLocation struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Connections []string `yaml:"connections"`
}

type documentQuestFlag struct {
	Name      string `yaml:"name"`
	Completed bool   `yaml:"completed"`
	Note      string `yaml:"note"`
}

func (d *document) scenario(id string) (*Scenario, error) {
	if d.Title == "" {
		return nil, errors.New("scenario is missing a title", slog.String("id", id))
	}

	seed := game.Seed{
		Characters: map[string]game.Character{},
		Locations:  map[string]game.Location{},
		QuestFlags: map[string]game.QuestFlag{},
		Inventory:  append([]string{}, d.Inventory...),
	}
	for characterID, character := range d.Characters {
		seed.Characters[characterID] = game.Character{
			Name:        character.Name,
			Description: character.Description,
			Location:    character.Location,
			Inventory:   character.Inventory,
		}
	}
	for locationID, location := range d.Locations {
		seed.Locations[locationID] = game.Location{
			Name:        location.Name,
			Description: location.Description,
			Connections: location.Connections,
		}
	}
	for flagID, flag := range d.QuestFlags {
		seed.QuestFlags[flagID] = game.QuestFlag{
			Name:      flag.Name,
			Completed: flag.Completed,
			Note:      flag.Note,
		}
	}
	if err := seed.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate scenario seed", slog.String("id", id))
	}

	return &Scenario{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		seed:        seed,
	}, nil
}

// Library holds the scenarios loaded at startup. It is read-only after Load and
// therefore safe for concurrent use.
type Library struct {
	scenarios map[string]*Scenario
	logger    *slog.Logger
}

// Load reads every .yaml and .yml file directly under dir. A missing directory
// yields an empty library so that deployments without authored scenarios work
// out of the box.
func Load(dir string, logger *slog.Logger) (*Library, error) {
	library := Library{
		scenarios: map[string]*Scenario{},
		logger:    logger.With("source", "scenario.Library"),
	}
	if dir == "" {
		return &library, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &library, nil
		}
		return nil, errors.Wrap(err, "read scenario directory", slog.String("dir", dir))
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		extension := filepath.Ext(entry.Name())
		if extension != ".yaml" && extension != ".yml" {
			continue
		}

		contents, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrap(err, "read scenario file", slog.String("file", entry.Name()))
		}
		var doc document
		if err = yaml.Unmarshal(contents, &doc); err != nil {
			return nil, errors.Wrap(err, "parse scenario file", slog.String("file", entry.Name()))
		}

		id := strings.TrimSuffix(entry.Name(), extension)
		loaded, err := doc.scenario(id)
		if err != nil {
			return nil, err
		}
		library.scenarios[id] = loaded
	}

	library.logger.LogAttrs(context.Background(), slog.LevelInfo, "scenarios loaded",
		slog.Int("count", len(library.scenarios)))
	return &library, nil
}

// Get returns the scenario with the given id.
func (l *Library) Get(id string) (*Scenario, error) {
	loaded, ok := l.scenarios[id]
	if !ok {
		return nil, errors.Wrap(game.ErrNotFound, "scenario lookup", slog.String("id", id))
	}
	return loaded, nil
}

// List returns all scenarios ordered by id.
func (l *Library) List() []*Scenario {
	list := make([]*Scenario, 0, len(l.scenarios))
	for _, loaded := range l.scenarios {
		list = append(list, loaded)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
