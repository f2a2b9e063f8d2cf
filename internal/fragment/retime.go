package fragment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/snarg/narrator/internal/audio"
	"github.com/snarg/narrator/internal/metrics"
	"github.com/snarg/narrator/internal/stretch"
	"github.com/snarg/narrator/internal/textstat"
)

// SpeechRate returns units per second over durationMs, or 0 when the
// duration is not positive.
func SpeechRate(units, durationMs int) float64 {
	if durationMs <= 0 {
		return 0
	}
	return float64(units) / (float64(durationMs) / 1000)
}

// RetimePercent is the tempo change, in whole percent, that moves measured
// toward target, clamped below at minPct. A zero measured rate leaves the
// tempo alone.
func RetimePercent(target, measured float64, minPct int) int {
	if measured <= 0 {
		return 0
	}
	pct := int(math.Round(100 * (target - measured) / measured))
	return max(pct, minPct)
}

// Retimer measures a fragment's speech rate and stretches it toward the
// target rate.
type Retimer struct {
	Stretcher  stretch.Stretcher
	Counter    textstat.Counter
	Backend    string // metrics label
	Target     float64
	Unit       textstat.Unit
	MinPct     int
	TailTrimMs int
}

// Retimed is a stretched fragment.
type Retimed struct {
	Segment    *audio.Segment
	SpeechRate float64
	RetimePct  int
}

// Retime stretches seg, whose speech is text. Errors wrap ErrTransform.
func (r *Retimer) Retime(ctx context.Context, seg *audio.Segment, text string) (*Retimed, error) {
	units := r.Counter.Count(text).In(r.Unit)
	rate := SpeechRate(units, seg.LengthMs())
	pct := RetimePercent(r.Target, rate, r.MinPct)

	in, err := seg.WAVBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrTransform, err)
	}

	start := time.Now()
	out, err := r.Stretcher.Stretch(ctx, in, pct)
	metrics.StretchDuration.WithLabelValues(r.Backend).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: tempo %d%%: %w", ErrTransform, pct, err)
	}

	stretched, err := audio.DecodeWAVBytes(out)
	if err != nil {
		return nil, fmt.Errorf("%w: decode stretched audio: %w", ErrTransform, err)
	}
	return &Retimed{
		Segment:    stretched.TrimEnd(r.TailTrimMs),
		SpeechRate: rate,
		RetimePct:  pct,
	}, nil
}
