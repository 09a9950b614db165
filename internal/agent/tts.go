package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"health-triage/internal/consultation"
)

const (
	elevenLabsAPIURL = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM"
	speechModel      = "eleven_multilingual_v2"

	// ElevenLabs rejects longer inputs for a single request.
	maxSpeechBytes = 5000
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

var calmVoice = voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type elevenLabsClient struct {
	apiKey     string
	baseURL    string
	voiceID    string
	httpClient *http.Client
}

// NewElevenLabsClient builds a speech client. An empty baseURL uses the public
// API; voiceID is the default voice when a call does not name one.
func NewElevenLabsClient(apiKey, baseURL, voiceID string) consultation.TTSClient {
	if baseURL == "" {
		baseURL = elevenLabsAPIURL
	}
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	return &elevenLabsClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		voiceID:    voiceID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Synthesize reads an assistant turn aloud and returns MP3 audio.
func (c *elevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	spoken := spokenText(text)
	if spoken == "" {
		return nil, errors.New("nothing to synthesize")
	}
	if voiceID == "" {
		voiceID = c.voiceID
	}

	payload, err := json.Marshal(ttsRequest{Text: spoken, ModelID: speechModel, VoiceSettings: calmVoice})
	if err != nil {
		return nil, errors.Wrap(err, "encoding TTS request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+voiceID, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Service: "TTS", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	body, err := do(c.httpClient, req, "TTS")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	audio, err := io.ReadAll(body)
	return audio, errors.Wrap(err, "reading TTS audio")
}

// spokenText turns the bullet layout of an assistant turn into lines a voice
// reads naturally and caps the length.
func spokenText(content string) string {
	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "•"))
		if l != "" {
			out = append(out, l)
		}
	}
	return truncateRunes(strings.Join(out, "\n"), maxSpeechBytes)
}
