package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"health-triage/internal/consultation"
)

// DefaultSTTURL is the local Whisper transcription service.
const DefaultSTTURL = "http://tts:8000/transcribe"

// maxTranscriptBytes keeps a runaway transcription from becoming a symptom
// report nobody can read.
const maxTranscriptBytes = 2000

type whisperClient struct {
	url        string
	httpClient *http.Client
}

// NewWhisperClient returns a transcriber for a Whisper-compatible service
// that accepts a multipart "file" upload.
func NewWhisperClient(url string) consultation.STTClient {
	if url == "" {
		url = DefaultSTTURL
	}
	return &whisperClient{
		url:        url,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type transcription struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe returns the spoken symptoms with surrounding whitespace removed.
// A silent recording yields consultation.ErrNoSpeech.
func (c *whisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.Wrap(consultation.ErrNoSpeech, "empty recording")
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", errors.Wrap(err, "building transcription form")
	}
	if _, err := part.Write(audio); err != nil {
		return "", errors.Wrap(err, "building transcription form")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "building transcription form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &form)
	if err != nil {
		return "", &TransportError{Service: "STT", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := do(c.httpClient, req, "STT")
	if err != nil {
		return "", err
	}
	defer body.Close()

	var t transcription
	if err := json.NewDecoder(body).Decode(&t); err != nil {
		return "", errors.Wrap(err, "decoding transcription")
	}

	text := strings.Join(strings.Fields(t.Text), " ")
	if text == "" {
		return "", consultation.ErrNoSpeech
	}
	return truncateRunes(text, maxTranscriptBytes), nil
}
