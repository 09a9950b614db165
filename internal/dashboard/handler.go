package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"health-triage/internal/auth"
)

type Handler struct {
	svc    Service
	logger zerolog.Logger
}

func NewHandler(svc Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "dashboard").Logger()}
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summary, err := h.svc.Summary(r.Context(), id.PrincipalID)
	if err != nil {
		h.logger.Error().Err(err).Str("principal_id", id.PrincipalID).Msg("load dashboard")
		http.Error(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

type RecordLogRequest struct {
	HeartRate              *int     `json:"heart_rate"`
	BloodPressureSystolic  *int     `json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int     `json:"blood_pressure_diastolic"`
	Temperature            *float64 `json:"temperature"`
	OxygenLevel            *int     `json:"oxygen_level"`
	Symptoms               *string  `json:"symptoms"`
}

func (h *Handler) RecordLog(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RecordLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	l := &HealthLog{
		UserID:                 id.PrincipalID,
		HeartRate:              req.HeartRate,
		BloodPressureSystolic:  req.BloodPressureSystolic,
		BloodPressureDiastolic: req.BloodPressureDiastolic,
		Temperature:            req.Temperature,
		OxygenLevel:            req.OxygenLevel,
		Symptoms:               req.Symptoms,
	}
	if err := h.svc.RecordLog(r.Context(), l); err != nil {
		h.logger.Error().Err(err).Msg("record health log")
		http.Error(w, "Failed to record health log", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(l)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/dashboard", h.GetSummary)
	r.Post("/health-logs", h.RecordLog)
}
