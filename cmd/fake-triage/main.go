// Command fake-triage serves a canned triage endpoint for local development.
// It does not analyse anything: the same response is returned for every
// request, except that symptoms containing "fail" yield a 503.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"health-triage/internal/consultation"
)

func main() {
	var addr string
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("component", "fake-triage").Logger()

	cmd := &cobra.Command{
		Use:          "fake-triage",
		Short:        "Serve a canned /api/triage endpoint",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := chi.NewRouter()
			r.Use(middleware.Recoverer)
			r.Post("/api/triage", handler(logger))
			logger.Info().Str("addr", addr).Msg("listening")
			return http.ListenAndServe(addr, r)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:5000", "listen address")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func handler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Symptoms string `json:"symptoms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		logger.Debug().Str("symptoms", req.Symptoms).Msg("triage request")

		if strings.Contains(strings.ToLower(req.Symptoms), "fail") {
			http.Error(w, "triage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(consultation.TriageResult{
			SummaryForRescue: "Patient reports: " + req.Symptoms,
			UrgencyScore:     3,
			MedicalFlags:     []string{},
			FirstAid:         []string{"Rest and stay hydrated", "Seek care if symptoms worsen"},
		})
	}
}
