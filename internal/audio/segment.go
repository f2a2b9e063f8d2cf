package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrFormatMismatch is returned when segments with different sample formats
// are combined.
var ErrFormatMismatch = errors.New("audio: sample format mismatch")

// Format describes how samples in a Segment are laid out.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// Segment is an in-memory block of interleaved integer PCM samples.
// Segment operations never mutate the receiver; they return new segments.
type Segment struct {
	Format
	Samples []int
}

// Empty returns a zero-length segment in the given format.
func Empty(f Format) *Segment {
	return &Segment{Format: f}
}

// Silent returns durationMs of digital silence in the given format.
// Negative durations yield an empty segment.
func Silent(durationMs float64, f Format) *Segment {
	if durationMs <= 0 || f.SampleRate <= 0 {
		return Empty(f)
	}
	frames := int(durationMs * float64(f.SampleRate) / 1000.0)
	return &Segment{Format: f, Samples: make([]int, frames*f.channels())}
}

func (f Format) channels() int {
	if f.Channels < 1 {
		return 1
	}
	return f.Channels
}

// MaxAmplitude is the full-scale sample magnitude for the bit depth.
func (f Format) MaxAmplitude() float64 {
	if f.BitDepth <= 0 {
		return 1 << 15
	}
	return float64(int64(1) << (f.BitDepth - 1))
}

// Frames returns the number of sample frames (samples per channel).
func (s *Segment) Frames() int {
	return len(s.Samples) / s.channels()
}

// LengthMs returns the segment duration in whole milliseconds, rounded to
// the nearest millisecond.
func (s *Segment) LengthMs() int {
	if s.SampleRate <= 0 {
		return 0
	}
	return int(math.Round(1000 * float64(s.Frames()) / float64(s.SampleRate)))
}

// Duration returns the exact segment duration.
func (s *Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(s.Frames()) / float64(s.SampleRate) * float64(time.Second))
}

func (s *Segment) msToFrame(ms int) int {
	f := int(int64(ms) * int64(s.SampleRate) / 1000)
	if f < 0 {
		return 0
	}
	if n := s.Frames(); f > n {
		return n
	}
	return f
}

// Slice returns a copy of the span [startMs, endMs). Bounds are clamped to
// the segment; an inverted span yields an empty segment.
func (s *Segment) Slice(startMs, endMs int) *Segment {
	start := s.msToFrame(startMs)
	end := s.msToFrame(endMs)
	if end <= start {
		return Empty(s.Format)
	}
	ch := s.channels()
	out := make([]int, (end-start)*ch)
	copy(out, s.Samples[start*ch:end*ch])
	return &Segment{Format: s.Format, Samples: out}
}

// TrimEnd drops the last ms milliseconds. Trimming more than the segment
// holds yields an empty segment.
func (s *Segment) TrimEnd(ms int) *Segment {
	return s.Slice(0, s.LengthMs()-ms)
}

// Concat joins segments in order. All segments must share a format.
func Concat(f Format, segs ...*Segment) (*Segment, error) {
	total := 0
	for _, seg := range segs {
		if seg == nil {
			continue
		}
		if seg.Format != f {
			return nil, fmt.Errorf("%w: %s != %s", ErrFormatMismatch, seg.Format, f)
		}
		total += len(seg.Samples)
	}
	out := make([]int, 0, total)
	for _, seg := range segs {
		if seg != nil {
			out = append(out, seg.Samples...)
		}
	}
	return &Segment{Format: f, Samples: out}, nil
}

// Append returns s followed by others.
func (s *Segment) Append(others ...*Segment) (*Segment, error) {
	return Concat(s.Format, append([]*Segment{s}, others...)...)
}

// RMS returns the root mean square of all samples across channels.
func (s *Segment) RMS() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.Samples {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(s.Samples)))
}

// DBFS returns the average loudness relative to full scale. A silent or
// empty segment returns negative infinity.
func (s *Segment) DBFS() float64 {
	rms := s.RMS()
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/s.MaxAmplitude())
}

// ApplyGain scales every sample by db decibels. Samples that exceed the
// bit depth's range saturate at full scale.
func (s *Segment) ApplyGain(db float64) *Segment {
	factor := math.Pow(10, db/20)
	hi := s.MaxAmplitude() - 1
	lo := -s.MaxAmplitude()
	out := make([]int, len(s.Samples))
	for i, v := range s.Samples {
		f := math.Round(float64(v) * factor)
		if f > hi {
			f = hi
		} else if f < lo {
			f = lo
		}
		out[i] = int(f)
	}
	return &Segment{Format: s.Format, Samples: out}
}
