// Package tts fetches raw clause narration from a voice-synthesis service.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"

	// pcmSampleRate matches the output_format requested from the API.
	pcmSampleRate = 44100
	pcmFormat     = "pcm_44100"
)

// ElevenLabsClient calls the ElevenLabs voices and text-to-speech APIs.
type ElevenLabsClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// VoiceSettings tune delivery.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings are the settings scripts are narrated with.
var DefaultVoiceSettings = VoiceSettings{Stability: 0.55, SimilarityBoost: 0.55}

type voicesResponse struct {
	Voices []struct {
		VoiceID string `json:"voice_id"`
		Name    string `json:"name"`
	} `json:"voices"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// NewElevenLabsClient creates a new ElevenLabs TTS client. An empty baseURL
// selects the public API.
func NewElevenLabsClient(apiKey, model, baseURL string, timeout time.Duration) *ElevenLabsClient {
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}
	return &ElevenLabsClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// VoiceID looks up a voice by its display name.
func (el *ElevenLabsClient) VoiceID(ctx context.Context, name string) (string, error) {
	body, err := el.do(ctx, http.MethodGet, "/v1/voices", nil)
	if err != nil {
		return "", err
	}
	var vr voicesResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return "", fmt.Errorf("decode voices: %w", err)
	}
	for _, v := range vr.Voices {
		if v.Name == name {
			return v.VoiceID, nil
		}
	}
	return "", fmt.Errorf("voice not found: %s", name)
}

// Synthesize returns 16-bit little-endian mono PCM at pcmSampleRate.
func (el *ElevenLabsClient) Synthesize(ctx context.Context, voiceID, text string, settings VoiceSettings) ([]byte, error) {
	payload, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       el.model,
		VoiceSettings: settings,
	})
	if err != nil {
		return nil, err
	}
	path := "/v1/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=" + pcmFormat
	return el.do(ctx, http.MethodPost, path, payload)
}

func (el *ElevenLabsClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, el.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", el.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(data))
	}
	return data, nil
}
