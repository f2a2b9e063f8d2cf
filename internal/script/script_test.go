package script

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "name": "bedtime",
  "sections": [
    {"name": "intro", "clauses": [["Hello there.", "Get comfortable."], ["Breathe in."]]},
    {"name": "outro", "clauses": [["Sleep well."]]}
  ]
}`

const sampleYAML = `
name: bedtime
sections:
  - name: intro
    clauses:
      - ["Hello there.", "Get comfortable."]
      - ["Breathe in."]
  - name: outro
    clauses:
      - - Sleep well.
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadJSONAndYAMLAgree(t *testing.T) {
	dir := t.TempDir()
	fromJSON, err := Load(writeFile(t, dir, "bedtime.json", sampleJSON))
	require.NoError(t, err)
	fromYAML, err := Load(writeFile(t, dir, "bedtime.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
	assert.Equal(t, 3, fromJSON.ClauseCount())
	assert.Equal(t, "Hello there.\nGet comfortable.", fromJSON.Sections[0].Clauses[0].Text())
}

func TestLoadNameFromFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "lullaby.yml", "sections:\n  - name: a\n    clauses: [[\"x\"]]\n")
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lullaby", s.Name)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no_sections", `{"name":"a","sections":[]}`, "no sections"},
		{"empty_section", `{"name":"a","sections":[{"name":"s","clauses":[]}]}`, "no clauses"},
		{"empty_clause", `{"name":"a","sections":[{"name":"s","clauses":[[]]}]}`, "clause 0 is empty"},
		{"blank_clause", `{"name":"a","sections":[{"name":"s","clauses":[["  "]]}]}`, "clause 0 is empty"},
		{"unnamed_section", `{"name":"a","sections":[{"clauses":[["x"]]}]}`, "has no name"},
		{"separator_in_section", `{"name":"a","sections":[{"name":"a/b","clauses":[["x"]]}]}`, "path separator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), "s.json", tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("{"), "json")
	assert.Error(t, err)
	_, err = Parse([]byte("name: [unclosed"), "yaml")
	assert.Error(t, err)
	_, err = Parse([]byte(sampleJSON), "toml")
	assert.Error(t, err)
}

func TestDiscoverAndFind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", sampleJSON)
	writeFile(t, dir, "nested/a.YAML", strings.Replace(sampleYAML, "bedtime", "morning", 1))
	writeFile(t, dir, "notes.txt", "ignore me")
	writeFile(t, dir, ".hidden.json", sampleJSON)
	writeFile(t, dir, ".git/config.json", sampleJSON)

	paths, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "nested", "a.YAML"),
	}, paths)

	t.Run("by_file_name", func(t *testing.T) {
		p, err := Find(dir, "b")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "b.json"), p)
	})
	t.Run("by_script_name", func(t *testing.T) {
		p, err := Find(dir, "morning")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "nested", "a.YAML"), p)
	})
	t.Run("missing", func(t *testing.T) {
		_, err := Find(dir, "evening")
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})
}

func TestIsScriptFile(t *testing.T) {
	assert.True(t, IsScriptFile("/x/s.json"))
	assert.True(t, IsScriptFile("s.yml"))
	assert.False(t, IsScriptFile("s.json.swp"))
	assert.False(t, IsScriptFile(".s.json"))
}
