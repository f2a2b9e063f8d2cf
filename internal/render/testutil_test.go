package render

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/snarg/narrator/internal/align"
	"github.com/snarg/narrator/internal/audio"
	"github.com/snarg/narrator/internal/fragment"
	"github.com/snarg/narrator/internal/script"
	"github.com/snarg/narrator/internal/stretch"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// clip returns durationMs of silence with a 440 Hz tone at -30 dBFS over
// each [start, end) millisecond span.
func clip(f audio.Format, durationMs int, spans ...[2]int) *audio.Segment {
	rate := f.SampleRate
	samples := make([]int, durationMs*rate/1000)
	peak := math.Pow(10, -30.0/20) * f.MaxAmplitude() * math.Sqrt2
	for _, sp := range spans {
		for i := sp[0] * rate / 1000; i < sp[1]*rate/1000 && i < len(samples); i++ {
			samples[i] = int(math.Round(peak * math.Sin(2*math.Pi*440*float64(i)/float64(rate))))
		}
	}
	return &audio.Segment{Format: f, Samples: samples}
}

// writeClause writes a 2 s clip with speech over [300, 1600) ms for the
// given clause.
func writeClause(t *testing.T, audioDir, scriptName string, si int, section string, ci int) string {
	t.Helper()
	return writeClip(t, audioDir, scriptName, si, section, ci, clip(testFormat, 2000, [2]int{300, 1600}))
}

func writeClip(t *testing.T, audioDir, scriptName string, si int, section string, ci int, seg *audio.Segment) string {
	t.Helper()
	path := filepath.Join(RawDir(audioDir, scriptName), audio.ClauseFileName(si, section, ci))
	require.NoError(t, seg.WriteFile(path))
	return path
}

// testScript has two sections and three clauses.
func testScript() *script.Script {
	return &script.Script{
		Name: "bedtime",
		Sections: []script.Section{
			{Name: "intro", Clauses: []script.Clause{{"Hello there."}, {"Good night."}}},
			{Name: "outro", Clauses: []script.Clause{{"Sleep well."}}},
		},
	}
}

// writeScriptAudio writes a clip for every clause of s.
func writeScriptAudio(t *testing.T, audioDir string, s *script.Script) {
	t.Helper()
	for si, sec := range s.Sections {
		for ci := range sec.Clauses {
			writeClause(t, audioDir, s.Name, si, sec.Name, ci)
		}
	}
}

// fakeAligner maps each clause to a single fragment spanning the clip.
// Clauses whose text appears in fail get an error instead.
type fakeAligner struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (a *fakeAligner) Name() string { return "fake" }

func (a *fakeAligner) Align(_ context.Context, audioPath string, lines []string) ([]align.Fragment, error) {
	text := strings.Join(lines, " ")
	a.mu.Lock()
	a.calls = append(a.calls, filepath.Base(audioPath))
	a.mu.Unlock()
	if err, ok := a.fail[text]; ok {
		return nil, err
	}
	return []align.Fragment{
		{Begin: 0, End: 0, HeadOrTail: true},
		{Begin: 0, End: 2.0, Text: text},
		{Begin: 2.0, End: 2.0, HeadOrTail: true},
	}, nil
}

var errAlignerDown = errors.New("aligner exploded")

type recordedEvent struct {
	Type    string
	Payload map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) publish(eventType string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{eventType, payload})
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newTestRenderer(t *testing.T, audioDir string, aligner align.Aligner, events *eventRecorder) *Renderer {
	t.Helper()
	p := fragment.DefaultParams()
	p.ShiftMs = 0
	proc, err := fragment.NewProcessor(fragment.Options{
		Params: p,
		Stretcher: stretch.Func(func(_ context.Context, wav []byte, _ int) ([]byte, error) {
			return wav, nil
		}),
		Backend: "stub",
		Log:     zerolog.Nop(),
	})
	require.NoError(t, err)
	opts := Options{
		Aligner:   aligner,
		Processor: proc,
		AudioDir:  audioDir,
		Log:       zerolog.Nop(),
	}
	if events != nil {
		opts.PublishEvent = events.publish
	}
	return NewRenderer(opts)
}
