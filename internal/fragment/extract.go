package fragment

import (
	"github.com/snarg/narrator/internal/align"
	"github.com/snarg/narrator/internal/audio"
)

// Raw is a slice of clause audio for one kept alignment fragment.
type Raw struct {
	Index    int // running noise index
	Position int // position among the clause's kept fragments
	Text     string
	StartMs  int
	EndMs    int
	Segment  *audio.Segment
}

// Extract slices input at each non-head/tail fragment's bounds, shifted by
// shiftMs. The start is clamped at zero; an end before the start yields an
// empty segment. Kept fragments are numbered from startIndex.
func Extract(input *audio.Segment, frags []align.Fragment, shiftMs, startIndex int) []Raw {
	var out []Raw
	for _, f := range frags {
		if f.HeadOrTail {
			continue
		}
		start := max(0, f.BeginMs()+shiftMs)
		end := f.EndMs() + shiftMs
		out = append(out, Raw{
			Index:    startIndex + len(out),
			Position: len(out),
			Text:     f.Text,
			StartMs:  start,
			EndMs:    end,
			Segment:  input.Slice(start, end),
		})
	}
	return out
}
