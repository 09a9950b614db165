package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"health-triage/internal/agent"
	"health-triage/internal/auth"
	"health-triage/internal/config"
	"health-triage/internal/consultation"
	"health-triage/internal/dashboard"
	"health-triage/internal/platform/database"
	"health-triage/internal/platform/logging"
	"health-triage/internal/platform/telegram"
	"health-triage/internal/report"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Health triage consultation and dashboard API",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE:  runMigrate,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr), nil
}

func openDB(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.ConnectTries, cfg.Database.ConnectDelay, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.Database.Migrate {
		return db, nil
	}
	if cfg.Database.Driver == database.DriverSQLite {
		err = database.ApplySchema(ctx, db)
	} else {
		err = database.Migrate(cfg.Database.DSN, logger)
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	cfg.Database.Migrate = true
	db, err := openDB(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	return db.Close()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Infrastructure
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. Clients
	triageClient := agent.NewTriageClient(cfg.Triage.Endpoint, cfg.Triage.Timeout)

	var stt consultation.STTClient
	if cfg.Speech.STTURL != "" {
		stt = agent.NewWhisperClient(cfg.Speech.STTURL)
	}
	var tts consultation.TTSClient
	if cfg.Speech.ElevenLabsAPIKey != "" {
		tts = agent.NewElevenLabsClient(cfg.Speech.ElevenLabsAPIKey, cfg.Speech.ElevenLabsURL, cfg.Speech.VoiceID)
	}

	var observers []consultation.TurnObserver
	if cfg.Alerts.Enabled() {
		tg := telegram.NewClient(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramAPIURL)
		observers = append(observers, report.NewService(tg, cfg.Alerts.ResponderChatID, cfg.Alerts.UrgencyThreshold, cfg.Alerts.FontPaths, logger))
	} else {
		logger.Warn().Msg("rescue alerts disabled: telegram token or responder chat id not set")
	}

	// 3. Services
	registry := consultation.NewRegistry(triageClient, logger, observers...)
	consultationHandler := consultation.NewHandler(registry, stt, tts, logger)

	dashboardSvc := dashboard.NewService(dashboard.NewRepository(db))
	dashboardHandler := dashboard.NewHandler(dashboardSvc, logger)

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == "OPTIONS" {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		consultation.RegisterRoutes(r, consultationHandler)
		dashboard.RegisterRoutes(r, dashboardHandler)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		registry.CloseAll()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		// Closing the views ends open event streams.
		registry.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
