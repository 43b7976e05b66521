// Package manifest loads the list of launchable games and resolves spoken
// names to entries.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// HealthCheckConfig is the per-game readiness probe as written in the manifest.
// Optional numeric fields are pointers so "absent" and "zero" stay distinct.
type HealthCheckConfig struct {
	Type        string   `json:"type"`
	Port        *int     `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Path        string   `json:"path,omitempty" validate:"omitempty,startswith=/"`
	TimeoutSec  *float64 `json:"timeout_sec,omitempty" validate:"omitempty,gt=0"`
	IntervalSec *float64 `json:"interval_sec,omitempty" validate:"omitempty,gt=0"`
}

// GameEntry describes one launchable application. Entries are immutable once loaded.
type GameEntry struct {
	ID          string            `json:"id" validate:"required"`
	Name        string            `json:"name" validate:"required"`
	Exec        string            `json:"exec" validate:"required"`
	Synonyms    []string          `json:"synonyms,omitempty" validate:"dive,required"`
	WorkDir     string            `json:"workdir,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty" validate:"dive,keys,required,endkeys"`
	HealthCheck HealthCheckConfig `json:"healthcheck"`
}

type document struct {
	Games []GameEntry `json:"games" validate:"unique=ID,dive"`
}

var ErrNoGames = errors.New("manifest lists no games")

// ErrUnknownGame is returned when spoken text matches no game.
var ErrUnknownGame = errors.New("unknown game")

// Manifest is a read-only index of games by id and by lower-cased lookup key.
type Manifest struct {
	games []GameEntry
	byID  map[string]int
	byKey map[string]int
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates a manifest file. Relative workdirs are resolved
// against the manifest's directory.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	m, err := Parse(b)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i := range m.games {
		if wd := m.games[i].WorkDir; wd != "" && !filepath.IsAbs(wd) {
			m.games[i].WorkDir = filepath.Join(dir, wd)
		}
	}
	return m, nil
}

// Parse builds a Manifest from raw JSON.
func Parse(b []byte) (*Manifest, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid manifest json: %w", err)
	}
	if len(doc.Games) == 0 {
		return nil, ErrNoGames
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}
	return New(doc.Games)
}

// New indexes already-validated entries. Lookup keys (id, name, synonyms)
// are case-insensitive; a key claimed by two different games is an error.
func New(games []GameEntry) (*Manifest, error) {
	m := &Manifest{
		games: make([]GameEntry, len(games)),
		byID:  make(map[string]int, len(games)),
		byKey: make(map[string]int),
	}
	for i, g := range games {
		g.Args = append([]string(nil), g.Args...)
		g.Synonyms = append([]string(nil), g.Synonyms...)
		env := make(map[string]string, len(g.Env))
		for k, v := range g.Env {
			env[k] = v
		}
		g.Env = env
		m.games[i] = g
		if _, dup := m.byID[g.ID]; dup {
			return nil, fmt.Errorf("duplicate game id %q", g.ID)
		}
		m.byID[g.ID] = i

		keys := append([]string{g.ID, g.Name}, g.Synonyms...)
		for _, k := range keys {
			k = normalize(k)
			if k == "" {
				continue
			}
			// a key shared by several games resolves to the last one listed
			m.byKey[k] = i
		}
	}
	return m, nil
}

// Resolve matches spoken text exactly (case-insensitive, trimmed) against
// id, display name or synonym.
func (m *Manifest) Resolve(spoken string) (GameEntry, bool) {
	k := normalize(spoken)
	if k == "" {
		return GameEntry{}, false
	}
	i, ok := m.byKey[k]
	if !ok {
		return GameEntry{}, false
	}
	return m.games[i], true
}

func (m *Manifest) Get(id string) (GameEntry, bool) {
	i, ok := m.byID[id]
	if !ok {
		return GameEntry{}, false
	}
	return m.games[i], true
}

// Games returns entries sorted by id.
func (m *Manifest) Games() []GameEntry {
	out := append([]GameEntry(nil), m.games...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
