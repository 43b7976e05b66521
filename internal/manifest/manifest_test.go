package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "games": [
    {
      "id": "notepad",
      "name": "Notepad",
      "exec": "/usr/bin/gedit",
      "synonyms": ["记事本", "Text Editor"],
      "workdir": "games/notepad",
      "env": {"SDL_VIDEODRIVER": "x11"},
      "healthcheck": {"type": "none"}
    },
    {
      "id": "pong",
      "name": "Pong Deluxe",
      "exec": "./pong",
      "args": ["--fullscreen"],
      "healthcheck": {"type": "http", "port": 8080, "timeout_sec": 2.5}
    }
  ]
}`

func TestLoad_ResolvesByIDNameAndSynonym(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	for _, spoken := range []string{"notepad", "NOTEPAD", "  Notepad ", "记事本", "text editor"} {
		g, ok := m.Resolve(spoken)
		require.Truef(t, ok, "resolve %q", spoken)
		assert.Equal(t, "notepad", g.ID)
	}
	g, ok := m.Resolve("pong deluxe")
	require.True(t, ok)
	assert.Equal(t, []string{"--fullscreen"}, g.Args)
	require.NotNil(t, g.HealthCheck.Port)
	assert.Equal(t, 8080, *g.HealthCheck.Port)
	assert.InDelta(t, 2.5, *g.HealthCheck.TimeoutSec, 1e-9)

	n, _ := m.Get("notepad")
	assert.Equal(t, filepath.Join(dir, "games/notepad"), n.WorkDir)
	assert.Equal(t, "x11", n.Env["SDL_VIDEODRIVER"], "env keys keep their case")
}

func TestResolve_ExactOnly(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)
	for _, spoken := range []string{"", "   ", "note", "pong deluxe!", "notepadd"} {
		_, ok := m.Resolve(spoken)
		assert.Falsef(t, ok, "%q should not resolve", spoken)
	}
	_, ok := m.Get("Pong")
	assert.False(t, ok, "Get is exact by id")
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"games": [`,
		"no games":       `{"games": []}`,
		"missing exec":   `{"games": [{"id": "a", "name": "A"}]}`,
		"duplicate id":   `{"games": [{"id": "a", "name": "A", "exec": "x"}, {"id": "a", "name": "B", "exec": "y"}]}`,
		"bad port":       `{"games": [{"id": "a", "name": "A", "exec": "x", "healthcheck": {"type": "http", "port": 70000}}]}`,
		"relative path":  `{"games": [{"id": "a", "name": "A", "exec": "x", "healthcheck": {"type": "http", "port": 80, "path": "health"}}]}`,
		"empty synonym":  `{"games": [{"id": "a", "name": "A", "exec": "x", "synonyms": [""]}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGames_SortedCopies(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)
	games := m.Games()
	require.Len(t, games, 2)
	assert.Equal(t, "notepad", games[0].ID)
	games[0].Args = append(games[0].Args, "mutated")
	again, _ := m.Get("notepad")
	assert.Empty(t, again.Args)
}

func TestResolve_SharedKeyGoesToLastGame(t *testing.T) {
	doc := `{"games": [
		{"id": "a", "name": "Same", "exec": "x", "synonyms": ["arcade"]},
		{"id": "b", "name": "same", "exec": "y", "synonyms": ["Arcade"]}
	]}`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)

	g, ok := m.Resolve("SAME")
	require.True(t, ok)
	assert.Equal(t, "b", g.ID)
	g, ok = m.Resolve("arcade")
	require.True(t, ok)
	assert.Equal(t, "b", g.ID)
	g, ok = m.Resolve("a")
	require.True(t, ok)
	assert.Equal(t, "a", g.ID)
}
