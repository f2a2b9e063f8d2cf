package audio

import "math"

// Span is a half-open millisecond range [Start, End) within a segment.
type Span struct {
	Start int `json:"start_ms"`
	End   int `json:"end_ms"`
}

// Len returns the span length in milliseconds.
func (sp Span) Len() int { return sp.End - sp.Start }

// windowRMS computes the RMS of frame windows in O(1) each using a prefix sum
// of squared samples.
type windowRMS struct {
	prefix []float64 // prefix[i] = sum of squares of frames [0, i)
	ch     int
}

func newWindowRMS(s *Segment) *windowRMS {
	ch := s.channels()
	n := s.Frames()
	prefix := make([]float64, n+1)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			v := float64(s.Samples[i*ch+c])
			sum += v * v
		}
		prefix[i+1] = prefix[i] + sum
	}
	return &windowRMS{prefix: prefix, ch: ch}
}

func (w *windowRMS) rms(startFrame, endFrame int) float64 {
	if endFrame <= startFrame {
		return 0
	}
	count := float64((endFrame - startFrame) * w.ch)
	return math.Sqrt((w.prefix[endFrame] - w.prefix[startFrame]) / count)
}

// DetectSilence returns the silent spans of at least minSilenceMs whose
// windowed RMS sits at or below threshDBFS. The window slides one millisecond
// at a time; adjacent or overlapping silent windows are merged.
func (s *Segment) DetectSilence(minSilenceMs int, threshDBFS float64) []Span {
	segLen := s.LengthMs()
	if minSilenceMs <= 0 || segLen < minSilenceMs {
		return nil
	}
	thresh := math.Pow(10, threshDBFS/20) * s.MaxAmplitude()
	w := newWindowRMS(s)

	lastStart := segLen - minSilenceMs
	var starts []int
	for i := 0; i <= lastStart; i++ {
		if w.rms(s.msToFrame(i), s.msToFrame(i+minSilenceMs)) <= thresh {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}

	var spans []Span
	prev := starts[0]
	rangeStart := prev
	for _, i := range starts[1:] {
		continuous := i == prev+1
		hasGap := i > prev+minSilenceMs
		if !continuous && hasGap {
			spans = append(spans, Span{Start: rangeStart, End: prev + minSilenceMs})
			rangeStart = i
		}
		prev = i
	}
	return append(spans, Span{Start: rangeStart, End: prev + minSilenceMs})
}

// DetectNonsilent returns the spans between the silent spans found by
// DetectSilence, in order. A segment too short to hold a silent window is
// reported as one non-silent span; an entirely silent segment yields none.
func (s *Segment) DetectNonsilent(minSilenceMs int, threshDBFS float64) []Span {
	segLen := s.LengthMs()
	silent := s.DetectSilence(minSilenceMs, threshDBFS)
	if len(silent) == 0 {
		if segLen == 0 {
			return nil
		}
		return []Span{{Start: 0, End: segLen}}
	}
	if silent[0].Start == 0 && silent[0].End >= segLen {
		return nil
	}

	var spans []Span
	prevEnd := 0
	for _, sp := range silent {
		spans = append(spans, Span{Start: prevEnd, End: sp.Start})
		prevEnd = sp.End
	}
	if prevEnd < segLen {
		spans = append(spans, Span{Start: prevEnd, End: segLen})
	}
	if len(spans) > 0 && spans[0].Start == 0 && spans[0].End == 0 {
		spans = spans[1:]
	}
	return spans
}
