package audio

import "math"

// toneSpec describes a synthetic test signal: a sine tone at levelDBFS
// occupying [speechStartMs, speechEndMs) inside durationMs of silence.
type toneSpec struct {
	DurationMs    int
	SpeechStartMs int
	SpeechEndMs   int
	LevelDBFS     float64
	SampleRate    int
}

func makeTone(spec toneSpec) *Segment {
	if spec.SampleRate == 0 {
		spec.SampleRate = 16000
	}
	f := Format{SampleRate: spec.SampleRate, Channels: 1, BitDepth: 16}
	frames := spec.DurationMs * spec.SampleRate / 1000
	samples := make([]int, frames)
	// Sine RMS is peak/sqrt(2), so scale the peak to hit the requested RMS level.
	peak := math.Pow(10, spec.LevelDBFS/20) * f.MaxAmplitude() * math.Sqrt2
	start := spec.SpeechStartMs * spec.SampleRate / 1000
	end := spec.SpeechEndMs * spec.SampleRate / 1000
	for i := start; i < end && i < frames; i++ {
		samples[i] = int(math.Round(peak * math.Sin(2*math.Pi*440*float64(i)/float64(spec.SampleRate))))
	}
	return &Segment{Format: f, Samples: samples}
}
