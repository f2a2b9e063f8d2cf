package fragment

import (
	"fmt"
	"math"

	"github.com/snarg/narrator/internal/audio"
)

// Normalized is the speech span of a raw segment at the target loudness.
type Normalized struct {
	Segment *audio.Segment
	Span    audio.Span
	GainDB  float64
}

// Normalize trims raw to its first non-silent span and applies a uniform
// gain bringing that span to targetDBFS. Gain that pushes peaks past full
// scale saturates.
func Normalize(raw *audio.Segment, minSilenceMs int, threshDBFS, targetDBFS float64) (*Normalized, error) {
	spans := raw.DetectNonsilent(minSilenceMs, threshDBFS)
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no speech in %d ms below %.0f dBFS", ErrSilenceDetection, raw.LengthMs(), threshDBFS)
	}
	span := spans[0]
	if span.Len() <= 0 {
		return nil, fmt.Errorf("%w: empty speech span %d-%d ms", ErrSilenceDetection, span.Start, span.End)
	}
	speech := raw.Slice(span.Start, span.End)
	level := speech.DBFS()
	if math.IsInf(level, -1) {
		return nil, fmt.Errorf("%w: speech span %d-%d ms is digital silence", ErrSilenceDetection, span.Start, span.End)
	}
	gain := targetDBFS - level
	return &Normalized{
		Segment: speech.ApplyGain(gain),
		Span:    span,
		GainDB:  gain,
	}, nil
}
