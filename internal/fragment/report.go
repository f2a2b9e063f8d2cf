package fragment

import (
	"math"

	"github.com/snarg/narrator/internal/audio"
)

// Report records what the pipeline did to one fragment. Lengths are
// milliseconds.
type Report struct {
	SpeechRate            float64 `json:"speech_rate"`
	RetimePct             int     `json:"retime_pct"`
	NoiseFactor           float64 `json:"noise_factor"`
	RawLength             int     `json:"raw_length"`
	NonsilentLength       int     `json:"nonsilent_length"`
	SilentLength          int     `json:"silent_length"`
	ExtendedLength        int     `json:"extended_length"`
	RandomSilenceDuration int     `json:"random_silence_duration"`
}

// Fragment is one pipeline output: the audio at each stage plus its report.
type Fragment struct {
	Index     int            `json:"index"`
	Position  int            `json:"position"`
	Text      string         `json:"text"`
	Raw       *audio.Segment `json:"-"`
	Nonsilent *audio.Segment `json:"-"`
	Processed *audio.Segment `json:"-"`
	Extended  *audio.Segment `json:"-"`
	Report    Report         `json:"report"`
}

func newReport(raw *audio.Segment, norm *Normalized, rt *Retimed, extended *audio.Segment, p Pause) Report {
	rawLen := raw.LengthMs()
	nonsilent := norm.Span.Len()
	return Report{
		SpeechRate:            rt.SpeechRate,
		RetimePct:             rt.RetimePct,
		NoiseFactor:           p.NoiseFactor,
		RawLength:             rawLen,
		NonsilentLength:       nonsilent,
		SilentLength:          rawLen - nonsilent,
		ExtendedLength:        extended.LengthMs(),
		RandomSilenceDuration: int(math.Round(p.DurationMs)),
	}
}
