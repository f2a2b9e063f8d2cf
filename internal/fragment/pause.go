package fragment

import (
	"math"

	"github.com/snarg/narrator/internal/audio"
)

// NoiseFunc maps a fragment index and scale to a value in [0, 1].
type NoiseFunc func(index int, scale float64) float64

// NoiseFactor centers a [0, 1] noise value on 1, giving [0.5, 1.5].
func NoiseFactor(n float64) float64 { return 1 + (n - 0.5) }

// PadDuration is the pause, in milliseconds, after a fragment.
func PadDuration(extendSilenceMs int, factor float64) float64 {
	return math.Max(0, float64(extendSilenceMs)*factor)
}

// Pause is a pause appended after a fragment.
type Pause struct {
	NoiseFactor float64
	DurationMs  float64
}

// Extend appends the pause for index to seg in seg's format.
func Extend(seg *audio.Segment, index, extendSilenceMs int, scale float64, noise NoiseFunc) (*audio.Segment, Pause, error) {
	factor := NoiseFactor(noise(index, scale))
	pad := PadDuration(extendSilenceMs, factor)
	extended, err := seg.Append(audio.Silent(pad, seg.Format))
	if err != nil {
		return nil, Pause{}, err
	}
	return extended, Pause{NoiseFactor: factor, DurationMs: pad}, nil
}
