package render

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/narrator/internal/audio"
	"github.com/snarg/narrator/internal/storage"
)

func TestExport(t *testing.T) {
	audioDir := t.TempDir()
	outDir := t.TempDir()
	s := testScript()
	writeScriptAudio(t, audioDir, s)
	writeClip(t, audioDir, "bedtime", 0, "intro", 1, clip(testFormat, 2000))

	res, err := newTestRenderer(t, audioDir, &fakeAligner{}, nil).Render(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)

	m, err := NewExporter(storage.NewLocalStore(outDir), zerolog.Nop()).Export(context.Background(), res)
	require.NoError(t, err)

	assert.Equal(t, "bedtime/output.wav", m.Output)
	assert.Equal(t, "bedtime/report.html", m.Report)
	assert.Equal(t, "bedtime/report.json", m.JSON)
	// Two rendered fragments, four variants each.
	assert.Len(t, m.Segments, 8)
	assert.Contains(t, m.Segments, "bedtime/segments/1_0_0_extended.wav")

	out, err := audio.ReadFile(filepath.Join(outDir, "bedtime", "output.wav"))
	require.NoError(t, err)
	assert.Equal(t, res.Audio.Frames(), out.Frames())

	for _, v := range Variants {
		_, err := os.Stat(filepath.Join(outDir, "bedtime", "segments", SegmentName(0, 0, 0, v)))
		assert.NoError(t, err, v)
	}

	t.Run("json_report", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(outDir, "bedtime", "report.json"))
		require.NoError(t, err)
		var doc struct {
			Script    string          `json:"script"`
			Fragments int             `json:"fragments"`
			Failures  []ClauseFailure `json:"failures"`
			Sections  []struct {
				Name    string `json:"name"`
				Clauses []struct {
					Fragments []struct {
						Index  int      `json:"index"`
						Files  []string `json:"files"`
						Report struct {
							RawLength       int `json:"raw_length"`
							NonsilentLength int `json:"nonsilent_length"`
							SilentLength    int `json:"silent_length"`
						} `json:"report"`
					} `json:"fragments"`
				} `json:"clauses"`
			} `json:"sections"`
		}
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, "bedtime", doc.Script)
		assert.Equal(t, 2, doc.Fragments)
		require.Len(t, doc.Failures, 1)
		assert.Equal(t, "silence_detection", doc.Failures[0].Kind)
		require.Len(t, doc.Sections, 2)
		f := doc.Sections[1].Clauses[0].Fragments[0]
		assert.Equal(t, 2, f.Index)
		assert.Equal(t, "segments/1_0_0_raw.wav", f.Files[0])
		assert.Equal(t, f.Report.RawLength-f.Report.NonsilentLength, f.Report.SilentLength)
	})

	t.Run("html_report", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(outDir, "bedtime", "report.html"))
		require.NoError(t, err)
		html := string(data)
		assert.Contains(t, html, "<h2>Section: intro</h2>")
		assert.Contains(t, html, "<h2>Section: outro</h2>")
		assert.Contains(t, html, "Clause 1: Hello there.")
		assert.Contains(t, html, `src="segments/0_0_0_nonsilent.wav"`)
		assert.Contains(t, html, "silence_detection")
		assert.Equal(t, 2, strings.Count(html, `src="segments/`)/len(Variants))
	})
}

func TestExportWithoutAudio(t *testing.T) {
	res, err := newTestRenderer(t, t.TempDir(), &fakeAligner{}, nil).Render(context.Background(), testScript())
	require.NoError(t, err)

	outDir := t.TempDir()
	m, err := NewExporter(storage.NewLocalStore(outDir), zerolog.Nop()).Export(context.Background(), res)
	require.NoError(t, err)
	assert.Empty(t, m.Output)
	assert.Empty(t, m.Segments)
	_, err = os.Stat(filepath.Join(outDir, "bedtime", "output.wav"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(outDir, "bedtime", "report.html"))
	assert.NoError(t, err)
}

func TestServiceRenderFile(t *testing.T) {
	audioDir := t.TempDir()
	outDir := t.TempDir()
	writeScriptAudio(t, audioDir, testScript())

	path := filepath.Join(t.TempDir(), "bedtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`sections:
  - name: intro
    clauses:
      - ["Hello there."]
      - ["Good night."]
  - name: outro
    clauses:
      - ["Sleep well."]
`), 0o644))

	svc := NewService(
		newTestRenderer(t, audioDir, &fakeAligner{}, nil),
		NewExporter(storage.NewLocalStore(outDir), zerolog.Nop()),
	)
	out, err := svc.RenderFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "bedtime", out.Result.Script)
	assert.Equal(t, 3, out.Result.Fragments)
	assert.Equal(t, "bedtime/output.wav", out.Manifest.Output)

	_, err = svc.RenderFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
