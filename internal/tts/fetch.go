package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snarg/narrator/internal/audio"
	"github.com/snarg/narrator/internal/script"
)

// Synthesizer turns text into PCM narration.
type Synthesizer interface {
	VoiceID(ctx context.Context, name string) (string, error)
	Synthesize(ctx context.Context, voiceID, text string, settings VoiceSettings) ([]byte, error)
}

// Fetcher writes one raw WAV per clause of a script.
type Fetcher struct {
	synth    Synthesizer
	voice    string
	settings VoiceSettings
	log      zerolog.Logger
}

// FetchResult counts what a Fetch did.
type FetchResult struct {
	Fetched int `json:"fetched"`
	Skipped int `json:"skipped"`
}

func NewFetcher(synth Synthesizer, voice string, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		synth:    synth,
		voice:    voice,
		settings: DefaultVoiceSettings,
		log:      log.With().Str("component", "tts").Logger(),
	}
}

// ClauseText is the text sent for a clause: every line trailed by an
// ellipsis so the voice pauses between lines.
func ClauseText(c script.Clause) string {
	lines := make([]string, 0, len(c))
	for _, l := range c {
		lines = append(lines, strings.TrimSpace(l)+"...")
	}
	return strings.Join(lines, "\n")
}

// Fetch synthesizes every clause of s into rawDir. Files already present
// are left alone.
func (f *Fetcher) Fetch(ctx context.Context, s *script.Script, rawDir string) (FetchResult, error) {
	var res FetchResult
	var voiceID string

	for si, sec := range s.Sections {
		for ci, clause := range sec.Clauses {
			path := filepath.Join(rawDir, audio.ClauseFileName(si, sec.Name, ci))
			if _, err := os.Stat(path); err == nil {
				res.Skipped++
				f.log.Debug().Str("file", path).Msg("skipped existing audio file")
				continue
			}

			if voiceID == "" {
				id, err := f.synth.VoiceID(ctx, f.voice)
				if err != nil {
					return res, err
				}
				voiceID = id
				f.log.Info().Str("voice", f.voice).Str("voice_id", voiceID).Msg("voice resolved")
			}

			pcm, err := f.synth.Synthesize(ctx, voiceID, ClauseText(clause), f.settings)
			if err != nil {
				return res, fmt.Errorf("section %d clause %d: %w", si, ci, err)
			}
			if err := audio.FromPCM16(pcm, pcmSampleRate, 1).WriteFile(path); err != nil {
				return res, fmt.Errorf("write %s: %w", path, err)
			}
			res.Fetched++
			f.log.Info().Str("file", path).Msg("saved audio file")
		}
	}
	return res, nil
}
