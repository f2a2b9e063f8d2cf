// Package align wraps forced-alignment engines that map the lines of a
// clause onto timestamps in its narration.
package align

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoFragments is returned when an engine produced nothing speakable.
	ErrNoFragments = errors.New("aligner returned no fragments")
	// ErrMalformed is returned for spans that are inverted, negative or out of order.
	ErrMalformed = errors.New("aligner returned malformed spans")
)

// Aligner is the interface for forced-alignment backends.
type Aligner interface {
	Align(ctx context.Context, audioPath string, lines []string) ([]Fragment, error)
	Name() string // "aeneas", "elevenlabs"
}

// Fragment is one aligned span. Begin and End are seconds from the start of
// the clause audio.
type Fragment struct {
	Begin      float64 `json:"begin"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	HeadOrTail bool    `json:"is_head_or_tail"`
}

// BeginMs returns Begin in whole milliseconds.
func (f Fragment) BeginMs() int { return int(math.Round(f.Begin * 1000)) }

// EndMs returns End in whole milliseconds.
func (f Fragment) EndMs() int { return int(math.Round(f.End * 1000)) }

// Validate checks an alignment before it is used. Head and tail fragments
// are exempt from the begin < end rule but still count toward ordering.
func Validate(frags []Fragment) error {
	speakable := 0
	prev := 0.0
	for i, f := range frags {
		if math.IsNaN(f.Begin) || math.IsNaN(f.End) || f.Begin < 0 || f.End < f.Begin {
			return fmt.Errorf("%w: fragment %d [%.3f, %.3f]", ErrMalformed, i, f.Begin, f.End)
		}
		if f.Begin < prev {
			return fmt.Errorf("%w: fragment %d begins at %.3f before %.3f", ErrMalformed, i, f.Begin, prev)
		}
		prev = f.Begin
		if f.HeadOrTail {
			continue
		}
		if f.End <= f.Begin {
			return fmt.Errorf("%w: fragment %d is empty at %.3f", ErrMalformed, i, f.Begin)
		}
		speakable++
	}
	if speakable == 0 {
		return ErrNoFragments
	}
	return nil
}
