package align

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/narrator/internal/process"
)

// AeneasAligner runs the aeneas task executor as a subprocess.
type AeneasAligner struct {
	python   string
	language string
	timeout  time.Duration
	log      zerolog.Logger
}

// NewAeneasAligner creates an aligner that invokes `python -m aeneas.tools.execute_task`.
func NewAeneasAligner(python, language string, timeout time.Duration, log zerolog.Logger) *AeneasAligner {
	if python == "" {
		python = "python3"
	}
	if language == "" {
		language = "eng"
	}
	return &AeneasAligner{
		python:   python,
		language: language,
		timeout:  timeout,
		log:      log.With().Str("component", "aeneas").Logger(),
	}
}

func (a *AeneasAligner) Name() string { return "aeneas" }

// aeneasSyncMap is the JSON sync map written by execute_task.
type aeneasSyncMap struct {
	Fragments []aeneasFragment `json:"fragments"`
}

type aeneasFragment struct {
	ID    string   `json:"id"`
	Begin string   `json:"begin"`
	End   string   `json:"end"`
	Lines []string `json:"lines"`
}

// Align writes the transcript to a temporary file, runs aeneas and parses its
// sync map. The temporary directory is removed on every return path.
func (a *AeneasAligner) Align(ctx context.Context, audioPath string, lines []string) ([]Fragment, error) {
	absAudio, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, fmt.Errorf("aeneas: %w", err)
	}
	if _, err := os.Stat(absAudio); err != nil {
		return nil, fmt.Errorf("aeneas: audio: %w", err)
	}

	tmp, err := os.MkdirTemp("", "narrator-align-*")
	if err != nil {
		return nil, fmt.Errorf("aeneas: temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	textPath := filepath.Join(tmp, "transcript.txt")
	if err := os.WriteFile(textPath, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		return nil, fmt.Errorf("aeneas: write transcript: %w", err)
	}
	outPath := filepath.Join(tmp, "syncmap.json")

	config := strings.Join([]string{
		"task_language=" + a.language,
		"is_text_type=plain",
		"os_task_file_format=json",
		"os_task_file_head_tail_format=add",
	}, "|")

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	res, err := process.Run(ctx, process.Command{
		Binary: a.python,
		Args:   []string{"-m", "aeneas.tools.execute_task", absAudio, textPath, config, outPath},
	})
	if err != nil {
		return nil, fmt.Errorf("aeneas: %w: %s", err, res.StderrTail(512))
	}
	a.log.Debug().
		Str("audio", filepath.Base(audioPath)).
		Int("lines", len(lines)).
		Dur("elapsed", res.Duration).
		Msg("alignment complete")

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("aeneas: read sync map: %w", err)
	}
	return parseSyncMap(data)
}

// parseSyncMap converts an aeneas JSON sync map into fragments. Leading and
// trailing fragments without text are the head and tail added by
// os_task_file_head_tail_format=add.
func parseSyncMap(data []byte) ([]Fragment, error) {
	var sm aeneasSyncMap
	if err := json.Unmarshal(data, &sm); err != nil {
		return nil, fmt.Errorf("aeneas: decode sync map: %w", err)
	}

	frags := make([]Fragment, 0, len(sm.Fragments))
	for i, af := range sm.Fragments {
		begin, err := strconv.ParseFloat(strings.TrimSpace(af.Begin), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: fragment %d begin %q", ErrMalformed, i, af.Begin)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(af.End), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: fragment %d end %q", ErrMalformed, i, af.End)
		}
		frags = append(frags, Fragment{
			Begin: begin,
			End:   end,
			Text:  strings.TrimSpace(strings.Join(af.Lines, "\n")),
		})
	}

	for i := 0; i < len(frags) && frags[i].Text == ""; i++ {
		frags[i].HeadOrTail = true
	}
	for i := len(frags) - 1; i >= 0 && frags[i].Text == ""; i-- {
		frags[i].HeadOrTail = true
	}
	return frags, nil
}
