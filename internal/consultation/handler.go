package consultation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"health-triage/internal/auth"
)

// ErrNoSpeech is returned by an STTClient when a recording holds no words.
var ErrNoSpeech = errors.New("no speech detected")

// STTClient defines the interface for Speech-to-Text
type STTClient interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

// TTSClient defines the interface for Text-to-Speech
type TTSClient interface {
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}

type Handler struct {
	registry *Registry
	stt      STTClient
	tts      TTSClient
	logger   zerolog.Logger
}

// NewHandler wires the consultation endpoints. stt and tts may be nil, in
// which case the voice endpoints answer 501.
func NewHandler(registry *Registry, stt STTClient, tts TTSClient, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		stt:      stt,
		tts:      tts,
		logger:   logger.With().Str("component", "consultation_handler").Logger(),
	}
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type SendMessageResponse struct {
	Accepted bool   `json:"accepted"`
	Status   Status `json:"status"`
	Text     string `json:"text,omitempty"`
}

type ConsultationResponse struct {
	ConsultationID string `json:"consultation_id"`
	Status         Status `json:"status"`
	Turns          []Turn `json:"turns"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) (*View, bool) {
	id := auth.FromContext(r.Context())
	if id == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	v, err := h.registry.Get(chi.URLParam(r, "id"), id.PrincipalID)
	if err != nil {
		http.Error(w, "Consultation not found", http.StatusNotFound)
		return nil, false
	}
	return v, true
}

func (h *Handler) CreateConsultation(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	v, err := h.registry.Open(*id)
	if err != nil {
		h.logger.Error().Err(err).Msg("open consultation")
		http.Error(w, "Failed to create consultation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"consultation_id": v.ID,
	})
}

func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ConsultationResponse{
		ConsultationID: v.ID,
		Status:         v.Controller.Status(),
		Turns:          v.Controller.Log().Snapshot(),
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	h.respondToSend(w, r.Context(), v, req.Text, "")
}

func (h *Handler) respondToSend(w http.ResponseWriter, ctx context.Context, v *View, text, transcript string) {
	accepted := v.Controller.Send(ctx, text)
	status := http.StatusOK
	if accepted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, SendMessageResponse{
		Accepted: accepted,
		Status:   v.Controller.Status(),
		Text:     transcript,
	})
}

func (h *Handler) HandleAudioUpload(w http.ResponseWriter, r *http.Request) {
	if h.stt == nil {
		http.Error(w, "Speech input is not configured", http.StatusNotImplemented)
		return
	}
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	// Voice notes are short; 10MB is plenty.
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error retrieving audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		http.Error(w, "Failed to read audio file", http.StatusInternalServerError)
		return
	}

	text, err := h.stt.Transcribe(r.Context(), buf.Bytes())
	if errors.Is(err, ErrNoSpeech) {
		http.Error(w, "No speech detected", http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("consultation_id", v.ID).Msg("transcription failed")
		http.Error(w, "Transcription failed", http.StatusBadGateway)
		return
	}

	h.respondToSend(w, r.Context(), v, text, text)
}

func (h *Handler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	if h.tts == nil {
		http.Error(w, "Speech output is not configured", http.StatusNotImplemented)
		return
	}
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	turnID := chi.URLParam(r, "turnID")
	var text string
	for _, t := range v.Controller.Log().Snapshot() {
		if t.ID == turnID {
			text = t.Content
			break
		}
	}
	if text == "" {
		http.Error(w, "Turn not found", http.StatusNotFound)
		return
	}

	audioData, err := h.tts.Synthesize(r.Context(), text, "")
	if err != nil {
		h.logger.Error().Err(err).Str("turn_id", turnID).Msg("speech synthesis failed")
		http.Error(w, "TTS failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audioData)
}

// StreamEvents pushes consultation events as server-sent events until the
// client disconnects or the consultation is closed.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before taking the snapshot so nothing falls between them.
	events, _ := v.Broadcaster.Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	initData, _ := json.Marshal(ConsultationResponse{
		ConsultationID: v.ID,
		Status:         v.Controller.Status(),
		Turns:          v.Controller.Log().Snapshot(),
	})
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", initData)
	flusher.Flush()

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
	}
}

func (h *Handler) CloseConsultation(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.registry.Close(chi.URLParam(r, "id"), id.PrincipalID); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Consultation not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to close consultation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/consultations", h.CreateConsultation)
	r.Get("/consultations/{id}", h.GetConsultation)
	r.Delete("/consultations/{id}", h.CloseConsultation)
	r.Post("/consultations/{id}/messages", h.SendMessage)
	r.Get("/consultations/{id}/events", h.StreamEvents)
	r.Post("/consultations/{id}/audio", h.HandleAudioUpload)
	r.Post("/consultations/{id}/turns/{turnID}/speech", h.HandleSpeech)
}
