package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snarg/narrator"
	"github.com/snarg/narrator/internal/audio"
	"github.com/snarg/narrator/internal/fragment"
	"github.com/snarg/narrator/internal/storage"
)

// Variants are the per-fragment audio stages, in report column order.
var Variants = []string{"raw", "nonsilent", "processed", "extended"}

var reportTmpl = template.Must(template.New("report").Parse(narrator.ReportTemplate))

// SegmentName is the file name of one fragment variant:
// {section}_{clause}_{fragment}_{variant}.wav
func SegmentName(section, clause, frag int, variant string) string {
	return fmt.Sprintf("%d_%d_%d_%s.wav", section, clause, frag, variant)
}

// Manifest lists the artifact keys written by Export.
type Manifest struct {
	Script   string   `json:"script"`
	Output   string   `json:"output,omitempty"`
	Report   string   `json:"report"`
	JSON     string   `json:"json"`
	Segments []string `json:"segments"`
}

// Exporter writes a Result to an artifact store under {script}/.
type Exporter struct {
	store storage.ArtifactStore
	log   zerolog.Logger
}

func NewExporter(store storage.ArtifactStore, log zerolog.Logger) *Exporter {
	return &Exporter{store: store, log: log.With().Str("component", "export").Logger()}
}

// Export writes output.wav, every fragment variant under segments/, and the
// JSON and HTML reports. Fragments of failed clauses are exported so the
// report can show how far they got.
func (e *Exporter) Export(ctx context.Context, res *Result) (*Manifest, error) {
	m := &Manifest{
		Script: res.Script,
		Report: path.Join(res.Script, "report.html"),
		JSON:   path.Join(res.Script, "report.json"),
	}

	if res.Audio != nil {
		m.Output = path.Join(res.Script, "output.wav")
		if err := e.saveWAV(ctx, m.Output, res.Audio); err != nil {
			return nil, err
		}
	}

	page := reportPage{Script: res.Script, Failures: res.Failures}
	doc := jsonReport{Script: res.Script, Output: m.Output, Fragments: res.Fragments, Failures: res.Failures}

	for _, rs := range res.Sections {
		ps := pageSection{Name: rs.Name}
		js := jsonSection{Index: rs.Index, Name: rs.Name}
		for _, rc := range rs.Clauses {
			pc := pageClause{Number: rc.Index + 1, Text: rc.Text(), Failure: rc.Failure}
			jc := jsonClause{Index: rc.Index, Lines: rc.Lines, Failure: rc.Failure}
			if pc.Text == "" {
				pc.Text = strings.Join(rc.Lines, " ")
			}
			for _, f := range rc.Fragments {
				files := make([]string, len(Variants))
				for vi, variant := range Variants {
					name := SegmentName(rs.Index, rc.Index, f.Position, variant)
					key := path.Join(res.Script, "segments", name)
					if err := e.saveWAV(ctx, key, variantOf(&f, variant)); err != nil {
						return nil, err
					}
					m.Segments = append(m.Segments, key)
					files[vi] = path.Join("segments", name)
				}
				pc.Rows = append(pc.Rows, pageRow{Text: f.Text, Audio: files, Report: f.Report})
				jc.Fragments = append(jc.Fragments, jsonFragment{
					Index:    f.Index,
					Position: f.Position,
					Text:     f.Text,
					Files:    files,
					Report:   f.Report,
				})
			}
			ps.Clauses = append(ps.Clauses, pc)
			js.Clauses = append(js.Clauses, jc)
		}
		page.Sections = append(page.Sections, ps)
		doc.Sections = append(doc.Sections, js)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	if err := e.store.Save(ctx, m.JSON, data, "application/json"); err != nil {
		return nil, fmt.Errorf("save %s: %w", m.JSON, err)
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	if err := e.store.Save(ctx, m.Report, buf.Bytes(), "text/html; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("save %s: %w", m.Report, err)
	}

	e.log.Info().
		Str("script", res.Script).
		Str("store", e.store.Type()).
		Int("segments", len(m.Segments)).
		Msg("render exported")
	return m, nil
}

func (e *Exporter) saveWAV(ctx context.Context, key string, seg *audio.Segment) error {
	data, err := seg.WAVBytes()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := e.store.Save(ctx, key, data, "audio/wav"); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func variantOf(f *fragment.Fragment, variant string) *audio.Segment {
	switch variant {
	case "raw":
		return f.Raw
	case "nonsilent":
		return f.Nonsilent
	case "processed":
		return f.Processed
	default:
		return f.Extended
	}
}

type reportPage struct {
	Script   string
	Failures []ClauseFailure
	Sections []pageSection
}

type pageSection struct {
	Name    string
	Clauses []pageClause
}

type pageClause struct {
	Number  int
	Text    string
	Failure *ClauseFailure
	Rows    []pageRow
}

type pageRow struct {
	Text   string
	Audio  []string
	Report fragment.Report
}

type jsonReport struct {
	Script    string          `json:"script"`
	Output    string          `json:"output,omitempty"`
	Fragments int             `json:"fragments"`
	Failures  []ClauseFailure `json:"failures"`
	Sections  []jsonSection   `json:"sections"`
}

type jsonSection struct {
	Index   int          `json:"index"`
	Name    string       `json:"name"`
	Clauses []jsonClause `json:"clauses"`
}

type jsonClause struct {
	Index     int            `json:"index"`
	Lines     []string       `json:"lines"`
	Failure   *ClauseFailure `json:"failure,omitempty"`
	Fragments []jsonFragment `json:"fragments"`
}

type jsonFragment struct {
	Index    int             `json:"index"`
	Position int             `json:"position"`
	Text     string          `json:"text"`
	Files    []string        `json:"files"`
	Report   fragment.Report `json:"report"`
}
