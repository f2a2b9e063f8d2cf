package fragment

import (
	"context"
	"math"
	"sync"

	"github.com/snarg/narrator/internal/align"
	"github.com/snarg/narrator/internal/audio"
	"github.com/snarg/narrator/internal/stretch"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// clip returns durationMs of silence with a 440 Hz tone at levelDBFS over
// each [start, end) millisecond span.
func clip(durationMs int, levelDBFS float64, spans ...[2]int) *audio.Segment {
	rate := testFormat.SampleRate
	samples := make([]int, durationMs*rate/1000)
	peak := math.Pow(10, levelDBFS/20) * testFormat.MaxAmplitude() * math.Sqrt2
	for _, sp := range spans {
		for i := sp[0] * rate / 1000; i < sp[1]*rate/1000 && i < len(samples); i++ {
			samples[i] = int(math.Round(peak * math.Sin(2*math.Pi*440*float64(i)/float64(rate))))
		}
	}
	return &audio.Segment{Format: testFormat, Samples: samples}
}

func frag(begin, end float64, text string) align.Fragment {
	return align.Fragment{Begin: begin, End: end, Text: text}
}

func headTail(begin, end float64) align.Fragment {
	return align.Fragment{Begin: begin, End: end, HeadOrTail: true}
}

// recordingStretcher returns its input unchanged and remembers each tempo.
type recordingStretcher struct {
	mu     sync.Mutex
	tempos []int
	failOn int // 1-based call number that fails; 0 never
	err    error
}

func (s *recordingStretcher) Stretch(_ context.Context, wav []byte, tempoPct int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempos = append(s.tempos, tempoPct)
	if s.failOn > 0 && len(s.tempos) == s.failOn {
		return nil, s.err
	}
	return wav, nil
}

var identity = stretch.Func(func(_ context.Context, wav []byte, _ int) ([]byte, error) {
	return wav, nil
})

func testParams() Params {
	p := DefaultParams()
	p.ShiftMs = 0
	return p
}
