// Command sesamed is the main executable for the sesame-tx transmitter
// service. It initializes the saved-code store, the radio backend, and the
// attack engine, exposes the operator control surface over HTTP, and handles
// graceful shutdown when terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sesame-tx/internal/api"
	"sesame-tx/internal/attack"
	"sesame-tx/internal/config"
	"sesame-tx/internal/radio"
	"sesame-tx/internal/store"
)

// Global variables for command line flags
var logLevelFlag string

// parseFlags parses command line flags and returns the config path
func parseFlags() string {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	return *configPath
}

// newTransmitter selects the radio backend. Hardware drivers attach here;
// only the simulator ships with the service.
func newTransmitter(cfg *config.Config) (radio.Transmitter, error) {
	switch cfg.Radio.Backend {
	case "sim":
		return radio.NewSimulator(), nil
	default:
		return nil, fmt.Errorf("unknown radio backend: %q", cfg.Radio.Backend)
	}
}

func main() {
	// Parse command line flags
	configPath := parseFlags()

	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(logLevelFlag)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use colored console output for development
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("Starting sesame-tx transmitter service")

	// Load configuration
	cfg := config.GetConfig()
	if err := cfg.LoadConfig(configPath); err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	// Initialize saved-code store
	log.Info().Str("path", cfg.Database.Path).Msg("Initializing store")
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer st.Close()

	// Initialize radio backend
	tx, err := newTransmitter(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize radio backend")
	}
	log.Info().Str("backend", cfg.Radio.Backend).Msg("Radio backend ready")

	// Initialize attack engine
	engine := attack.New(cfg, st, tx)

	// Initialize router and API handlers
	router := mux.NewRouter()

	attackHandler := api.NewAttackHandler(engine, st)
	targetHandler := api.NewTargetHandler(engine, st)
	statusHandler := api.NewStatusHandler(engine, st, cfg)

	attackHandler.RegisterRoutes(router)
	targetHandler.RegisterRoutes(router)
	statusHandler.RegisterRoutes(router)

	// Set up CORS
	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	// Set up HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for termination signal
	sig := <-signalChan
	log.Info().Str("signal", sig.String()).Msg("Received termination signal")

	// Begin graceful shutdown
	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown HTTP server
	log.Info().Msg("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop any active attack run and join the worker before releasing the
	// radio and the store.
	log.Info().Msg("Stopping attack engine")
	engine.Stop()

	log.Info().Msg("sesame-tx has been shut down gracefully")
}
