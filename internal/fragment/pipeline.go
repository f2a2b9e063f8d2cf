package fragment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snarg/narrator/internal/align"
	"github.com/snarg/narrator/internal/audio"
	"github.com/snarg/narrator/internal/metrics"
	"github.com/snarg/narrator/internal/noise"
	"github.com/snarg/narrator/internal/stretch"
	"github.com/snarg/narrator/internal/textstat"
)

// Clause is the input for one run of the pipeline.
type Clause struct {
	Section   int
	Index     int
	Audio     *audio.Segment
	Alignment []align.Fragment
}

// Options configures a Processor.
type Options struct {
	Params    Params
	Stretcher stretch.Stretcher
	Backend   string           // stretch backend name for metrics
	Counter   textstat.Counter // defaults to textstat.NewAnalyzer()
	Noise     NoiseFunc        // defaults to noise.At
	Log       zerolog.Logger
}

// Processor runs clauses through extraction, normalization, retiming and
// padding. It holds only read-only configuration and is safe for
// concurrent use.
type Processor struct {
	params  Params
	retimer *Retimer
	noise   NoiseFunc
	log     zerolog.Logger
}

// NewProcessor validates opts.Params and builds a Processor.
func NewProcessor(opts Options) (*Processor, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Stretcher == nil {
		return nil, NewError(KindConfiguration, -1, -1, -1, errors.New("no stretcher configured"))
	}
	counter := opts.Counter
	if counter == nil {
		counter = textstat.NewAnalyzer()
	}
	nf := opts.Noise
	if nf == nil {
		nf = noise.At
	}
	return &Processor{
		params: opts.Params,
		retimer: &Retimer{
			Stretcher:  opts.Stretcher,
			Counter:    counter,
			Backend:    opts.Backend,
			Target:     opts.Params.TargetSpeechRate,
			Unit:       opts.Params.RateUnit,
			MinPct:     opts.Params.MinRetimePct,
			TailTrimMs: opts.Params.TailTrimMs,
		},
		noise: nf,
		log:   opts.Log.With().Str("component", "fragment").Logger(),
	}, nil
}

// Params returns the processor's parameters.
func (p *Processor) Params() Params { return p.params }

// Process runs every kept fragment of c, numbering them from startIndex, and
// returns the results in alignment order together with the next index.
//
// An invalid alignment is a KindAlignment error and yields no fragments.
// Otherwise the first failing fragment stops the clause: the fragments
// before it are returned along with its error. next always advances past
// every kept fragment so later clauses keep their place in the noise field.
func (p *Processor) Process(ctx context.Context, c Clause, startIndex int) ([]Fragment, int, error) {
	if err := align.Validate(c.Alignment); err != nil {
		return nil, startIndex, NewError(KindAlignment, c.Section, c.Index, -1, err)
	}

	raws := Extract(c.Audio, c.Alignment, p.params.ShiftMs, startIndex)
	next := startIndex + len(raws)

	if p.params.Workers <= 1 || len(raws) < 2 {
		out := make([]Fragment, 0, len(raws))
		for _, raw := range raws {
			f, err := p.processOne(ctx, c, raw)
			if err != nil {
				return out, next, err
			}
			out = append(out, *f)
		}
		return out, next, nil
	}
	return p.processParallel(ctx, c, raws, next)
}

// processParallel fans raws out to at most Workers goroutines. Indices are
// already assigned, and results land in their own slots.
func (p *Processor) processParallel(ctx context.Context, c Clause, raws []Raw, next int) ([]Fragment, int, error) {
	results := make([]*Fragment, len(raws))
	errs := make([]error, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.params.Workers)
	for i, raw := range raws {
		g.Go(func() error {
			f, err := p.processOne(gctx, c, raw)
			results[i], errs[i] = f, err
			return err
		})
	}
	groupErr := g.Wait()

	out := make([]Fragment, 0, len(raws))
	for _, f := range results {
		if f == nil {
			break
		}
		out = append(out, *f)
	}
	if groupErr == nil {
		return out, next, nil
	}

	// Fragments cancelled because a sibling failed are not the cause; report
	// the earliest failure that is.
	for _, err := range errs {
		if err != nil && !(errors.Is(err, context.Canceled) && ctx.Err() == nil) {
			return out, next, err
		}
	}
	return out, next, groupErr
}

func (p *Processor) processOne(ctx context.Context, c Clause, raw Raw) (*Fragment, error) {
	fail := func(kind Kind, err error) (*Fragment, error) {
		metrics.FragmentFailuresTotal.WithLabelValues(kind.String()).Inc()
		return nil, NewError(kind, c.Section, c.Index, raw.Position, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(KindTransform, err)
	}

	norm, err := Normalize(raw.Segment, p.params.MinSilenceMs, p.params.SilenceThreshDBFS, p.params.TargetDBFS)
	if err != nil {
		return fail(KindSilenceDetection, err)
	}

	rt, err := p.retimer.Retime(ctx, norm.Segment, raw.Text)
	if err != nil {
		return fail(KindTransform, err)
	}

	extended, pause, err := Extend(rt.Segment, raw.Index, p.params.ExtendSilenceMs, p.params.NoiseScale, p.noise)
	if err != nil {
		return fail(KindTransform, fmt.Errorf("pad: %w", err))
	}

	report := newReport(raw.Segment, norm, rt, extended, pause)
	metrics.FragmentsProcessedTotal.Inc()
	metrics.RetimePercent.Observe(float64(report.RetimePct))
	metrics.PadDuration.Observe(pause.DurationMs)

	p.log.Debug().
		Int("section", c.Section).
		Int("clause", c.Index).
		Int("fragment", raw.Position).
		Int("index", raw.Index).
		Float64("speech_rate", report.SpeechRate).
		Int("retime_pct", report.RetimePct).
		Float64("noise_factor", report.NoiseFactor).
		Int("pad_ms", report.RandomSilenceDuration).
		Msg("fragment processed")

	return &Fragment{
		Index:     raw.Index,
		Position:  raw.Position,
		Text:      raw.Text,
		Raw:       raw.Segment,
		Nonsilent: norm.Segment,
		Processed: rt.Segment,
		Extended:  extended,
		Report:    report,
	}, nil
}
