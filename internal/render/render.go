// Package render assembles processed fragments into clause, section and
// script audio, and exports the result with its report.
package render

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/narrator/internal/align"
	"github.com/snarg/narrator/internal/audio"
	"github.com/snarg/narrator/internal/fragment"
	"github.com/snarg/narrator/internal/metrics"
	"github.com/snarg/narrator/internal/script"
)

// Failure kinds that happen outside the fragment pipeline.
const (
	FailureMissingAudio   = "missing_audio"
	FailureDecode         = "decode"
	FailureFormatMismatch = "format_mismatch"
)

// Event types published during a render.
const (
	EventRenderStarted   = "render.started"
	EventClauseFailed    = "clause.failed"
	EventRenderCompleted = "render.completed"
)

// EventFunc is a callback for publishing render events.
type EventFunc func(eventType string, payload map[string]any)

// ClauseFailure records why a clause was left out of the rendered audio.
type ClauseFailure struct {
	Section  int    `json:"section"`
	Clause   int    `json:"clause"`
	Fragment int    `json:"fragment"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// RenderedClause is one clause's output. Audio is nil when the clause
// failed; Fragments then holds whatever completed before the failure.
type RenderedClause struct {
	Index     int                 `json:"index"`
	Lines     []string            `json:"lines"`
	Audio     *audio.Segment      `json:"-"`
	Fragments []fragment.Fragment `json:"fragments"`
	Failure   *ClauseFailure      `json:"failure,omitempty"`
}

// Text is the clause's fragment texts, one per line.
func (c *RenderedClause) Text() string {
	texts := make([]string, len(c.Fragments))
	for i, f := range c.Fragments {
		texts[i] = f.Text
	}
	return strings.Join(texts, "\n")
}

type RenderedSection struct {
	Index   int              `json:"index"`
	Name    string           `json:"name"`
	Audio   *audio.Segment   `json:"-"`
	Clauses []RenderedClause `json:"clauses"`
}

// Result is a rendered script. Audio is nil when no clause rendered.
type Result struct {
	Script    string            `json:"script"`
	Sections  []RenderedSection `json:"sections"`
	Audio     *audio.Segment    `json:"-"`
	Failures  []ClauseFailure   `json:"failures"`
	Fragments int               `json:"fragments"`
	Elapsed   time.Duration     `json:"-"`
}

// Failed reports whether any clause failed.
func (r *Result) Failed() bool { return len(r.Failures) > 0 }

// Options configures a Renderer.
type Options struct {
	Aligner      align.Aligner
	Processor    *fragment.Processor
	AudioDir     string
	PublishEvent EventFunc
	Log          zerolog.Logger
}

// Renderer runs every clause of a script through alignment and the fragment
// pipeline. A failing clause is recorded and skipped; its siblings still
// render.
type Renderer struct {
	aligner   align.Aligner
	processor *fragment.Processor
	audioDir  string
	publish   EventFunc
	log       zerolog.Logger
}

func NewRenderer(opts Options) *Renderer {
	publish := opts.PublishEvent
	if publish == nil {
		publish = func(string, map[string]any) {}
	}
	return &Renderer{
		aligner:   opts.Aligner,
		processor: opts.Processor,
		audioDir:  opts.AudioDir,
		publish:   publish,
		log:       opts.Log.With().Str("component", "render").Logger(),
	}
}

// RawDir is where a script's clause recordings live.
func RawDir(audioDir, scriptName string) string {
	return filepath.Join(audioDir, scriptName, "raw")
}

// Render renders s. The returned error is non-nil only when s is invalid or
// ctx ends; clause failures are reported in the Result.
func (r *Renderer) Render(ctx context.Context, s *script.Script) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := r.log.With().Str("script", s.Name).Logger()
	r.publish(EventRenderStarted, map[string]any{
		"script":   s.Name,
		"sections": len(s.Sections),
		"clauses":  s.ClauseCount(),
	})

	res := &Result{Script: s.Name, Failures: []ClauseFailure{}}
	var track audio.Format
	haveTrack := false
	index := 0

	for si, sec := range s.Sections {
		rs := RenderedSection{Index: si, Name: sec.Name}
		var sectionAudio []*audio.Segment

		for ci, clause := range sec.Clauses {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			rc, next := r.renderClause(ctx, s.Name, si, sec.Name, ci, clause, index)
			index = next
			if err := ctx.Err(); err != nil {
				return res, err
			}

			if rc.Audio != nil {
				if !haveTrack {
					track, haveTrack = rc.Audio.Format, true
				} else if rc.Audio.Format != track {
					rc.Failure = &ClauseFailure{
						Section: si, Clause: ci, Fragment: -1,
						Kind:    FailureFormatMismatch,
						Message: fmt.Sprintf("clause format %s differs from track format %s", rc.Audio.Format, track),
					}
					rc.Audio = nil
				}
			}

			res.Fragments += len(rc.Fragments)
			if rc.Failure != nil {
				metrics.ClausesTotal.WithLabelValues("failed").Inc()
				res.Failures = append(res.Failures, *rc.Failure)
				log.Warn().
					Int("section", si).
					Int("clause", ci).
					Str("kind", rc.Failure.Kind).
					Str("error", rc.Failure.Message).
					Msg("clause failed")
				r.publish(EventClauseFailed, map[string]any{
					"script":   s.Name,
					"section":  si,
					"clause":   ci,
					"fragment": rc.Failure.Fragment,
					"kind":     rc.Failure.Kind,
					"message":  rc.Failure.Message,
				})
			} else {
				metrics.ClausesTotal.WithLabelValues("rendered").Inc()
				sectionAudio = append(sectionAudio, rc.Audio)
			}
			rs.Clauses = append(rs.Clauses, rc)
		}

		if len(sectionAudio) > 0 {
			// Formats were checked against the track above.
			rs.Audio, _ = audio.Concat(track, sectionAudio...)
		}
		res.Sections = append(res.Sections, rs)
	}

	if haveTrack {
		var parts []*audio.Segment
		for _, rs := range res.Sections {
			if rs.Audio != nil {
				parts = append(parts, rs.Audio)
			}
		}
		res.Audio, _ = audio.Concat(track, parts...)
	}
	res.Elapsed = time.Since(start)

	length := 0
	if res.Audio != nil {
		length = res.Audio.LengthMs()
	}
	log.Info().
		Int("fragments", res.Fragments).
		Int("failures", len(res.Failures)).
		Int("length_ms", length).
		Dur("elapsed", res.Elapsed).
		Msg("render complete")
	r.publish(EventRenderCompleted, map[string]any{
		"script":      s.Name,
		"fragments":   res.Fragments,
		"failures":    len(res.Failures),
		"length_ms":   length,
		"duration_ms": res.Elapsed.Milliseconds(),
	})
	return res, nil
}

// renderClause aligns and processes one clause, numbering its fragments
// from index. It returns the next index.
func (r *Renderer) renderClause(ctx context.Context, scriptName string, si int, sectionName string, ci int, lines script.Clause, index int) (RenderedClause, int) {
	rc := RenderedClause{Index: ci, Lines: lines}
	fail := func(kind string, err error) (RenderedClause, int) {
		rc.Failure = &ClauseFailure{Section: si, Clause: ci, Fragment: -1, Kind: kind, Message: err.Error()}
		return rc, index
	}

	name := audio.ClauseFileName(si, sectionName, ci)
	path := audio.ResolveFile(filepath.Join(r.audioDir, scriptName), RawDir(r.audioDir, scriptName), name)
	if path == "" {
		return fail(FailureMissingAudio, fmt.Errorf("%s not found under %s", name, RawDir(r.audioDir, scriptName)))
	}
	seg, err := audio.ReadFile(path)
	if err != nil {
		return fail(FailureDecode, err)
	}

	frags, err := r.aligner.Align(ctx, path, lines)
	if err != nil {
		metrics.FragmentFailuresTotal.WithLabelValues(fragment.KindAlignment.String()).Inc()
		fe := fragment.NewError(fragment.KindAlignment, si, ci, -1, fmt.Errorf("%s: %w", r.aligner.Name(), err))
		return fail(fe.Kind.String(), fe)
	}

	out, next, err := r.processor.Process(ctx, fragment.Clause{
		Section:   si,
		Index:     ci,
		Audio:     seg,
		Alignment: frags,
	}, index)
	rc.Fragments = out
	if err != nil {
		rc.Failure = failureFromError(si, ci, err)
		return rc, next
	}

	if len(out) > 0 {
		extended := make([]*audio.Segment, len(out))
		for i := range out {
			extended[i] = out[i].Extended
		}
		joined, err := audio.Concat(extended[0].Format, extended...)
		if err != nil {
			rc.Failure = &ClauseFailure{Section: si, Clause: ci, Fragment: -1, Kind: FailureFormatMismatch, Message: err.Error()}
			return rc, next
		}
		rc.Audio = joined
	}
	return rc, next
}

func failureFromError(si, ci int, err error) *ClauseFailure {
	f := &ClauseFailure{Section: si, Clause: ci, Fragment: -1, Kind: "unknown", Message: err.Error()}
	var fe *fragment.Error
	if errors.As(err, &fe) {
		f.Kind = fe.Kind.String()
		f.Fragment = fe.Fragment
	}
	return f
}
