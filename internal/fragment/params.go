package fragment

import (
	"errors"
	"fmt"

	"github.com/snarg/narrator/internal/textstat"
)

// Params are the tunables of the fragment pipeline.
type Params struct {
	ExtendSilenceMs   int           // nominal pause appended after each fragment
	MinSilenceMs      int           // shortest gap that counts as silence
	SilenceThreshDBFS float64       // floor separating speech from background
	NoiseScale        float64       // step along the noise field per fragment
	TargetSpeechRate  float64       // units per second
	RateUnit          textstat.Unit // syllables or words
	MinRetimePct      int           // lower clamp on the tempo change
	ShiftMs           int           // correction added to alignment bounds
	TargetDBFS        float64       // loudness after normalization
	TailTrimMs        int           // trimmed from stretched audio
	Workers           int           // fragments processed concurrently
}

// DefaultParams returns the parameters narration is tuned for.
func DefaultParams() Params {
	return Params{
		ExtendSilenceMs:   500,
		MinSilenceMs:      250,
		SilenceThreshDBFS: -70,
		NoiseScale:        0.1,
		TargetSpeechRate:  3.0,
		RateUnit:          textstat.UnitSyllables,
		MinRetimePct:      -30,
		ShiftMs:           -50,
		TargetDBFS:        -20,
		TailTrimMs:        25,
		Workers:           1,
	}
}

// Validate rejects parameter combinations the pipeline cannot honor. The
// returned error is a KindConfiguration *Error.
func (p Params) Validate() error {
	var errs []error
	if p.TargetSpeechRate <= 0 {
		errs = append(errs, fmt.Errorf("target speech rate must be > 0, got %v", p.TargetSpeechRate))
	}
	if p.NoiseScale < 0 {
		errs = append(errs, fmt.Errorf("noise scale must be >= 0, got %v", p.NoiseScale))
	}
	if p.MinSilenceMs <= 0 {
		errs = append(errs, fmt.Errorf("min silence must be > 0 ms, got %d", p.MinSilenceMs))
	}
	if p.ExtendSilenceMs < 0 {
		errs = append(errs, fmt.Errorf("extend silence must be >= 0 ms, got %d", p.ExtendSilenceMs))
	}
	if p.MinRetimePct <= -100 || p.MinRetimePct > 0 {
		errs = append(errs, fmt.Errorf("min retime must be in (-100, 0], got %d", p.MinRetimePct))
	}
	if _, err := textstat.ParseUnit(string(p.RateUnit)); err != nil {
		errs = append(errs, err)
	}
	if p.TailTrimMs < 0 {
		errs = append(errs, fmt.Errorf("tail trim must be >= 0 ms, got %d", p.TailTrimMs))
	}
	if p.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", p.Workers))
	}
	if len(errs) > 0 {
		return NewError(KindConfiguration, -1, -1, -1, errors.Join(errs...))
	}
	return nil
}
