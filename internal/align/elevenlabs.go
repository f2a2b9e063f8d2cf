package align

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const elevenLabsAlignEndpoint = "https://api.elevenlabs.io/v1/forced-alignment"

// ElevenLabsAligner calls the ElevenLabs forced-alignment API.
// Implements the Aligner interface.
type ElevenLabsAligner struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// elevenlabsAlignment is the JSON response from the forced-alignment API.
type elevenlabsAlignment struct {
	Words []elevenlabsWord `json:"words"`
	Loss  float64          `json:"loss"`
}

// elevenlabsWord is one aligned word; times are seconds.
type elevenlabsWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewElevenLabsAligner creates a new ElevenLabs forced-alignment client.
// An empty endpoint selects the public API.
func NewElevenLabsAligner(apiKey, endpoint string, timeout time.Duration) *ElevenLabsAligner {
	if endpoint == "" {
		endpoint = elevenLabsAlignEndpoint
	}
	return &ElevenLabsAligner{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsAligner) Name() string { return "elevenlabs" }

// Align uploads the clause audio with its transcript and groups the aligned
// words back into one fragment per line.
func (el *ElevenLabsAligner) Align(ctx context.Context, audioPath string, lines []string) ([]Fragment, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if err := w.WriteField("text", strings.Join(lines, "\n")); err != nil {
		return nil, fmt.Errorf("write text field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, el.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result elevenlabsAlignment
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return groupWords(lines, result.Words)
}

// groupWords assigns aligned words to lines in order, one word per
// whitespace-separated token. Blank lines produce no fragment.
func groupWords(lines []string, words []elevenlabsWord) ([]Fragment, error) {
	var aligned []elevenlabsWord
	for _, w := range words {
		if strings.TrimSpace(w.Text) != "" {
			aligned = append(aligned, w)
		}
	}

	var frags []Fragment
	next := 0
	for i, line := range lines {
		n := len(strings.Fields(line))
		if n == 0 {
			continue
		}
		if next+n > len(aligned) {
			return nil, fmt.Errorf("%w: line %d needs %d words, %d left", ErrMalformed, i, n, len(aligned)-next)
		}
		first, last := aligned[next], aligned[next+n-1]
		frags = append(frags, Fragment{
			Begin: first.Start,
			End:   last.End,
			Text:  strings.TrimSpace(line),
		})
		next += n
	}
	return frags, nil
}
