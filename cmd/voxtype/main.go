package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voxtype/voxtype/internal/config"
	"github.com/voxtype/voxtype/internal/feed"
	"github.com/voxtype/voxtype/internal/observability"
	"github.com/voxtype/voxtype/internal/session"
	"github.com/voxtype/voxtype/internal/storage"
	"github.com/voxtype/voxtype/internal/transcribe"
)

// app owns the single active dictation session. SIGUSR1 toggles
// record/stop, SIGUSR2 cancels an in-flight final transcription.
type app struct {
	cfg    *config.Config
	engine *transcribe.Engine
	paths  *storage.Paths
	hub    *feed.Hub
	logger zerolog.Logger

	mu      sync.Mutex
	current *session.Session
	busy    bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	paths, err := storage.New(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare data directory")
	}

	detection, err := transcribe.Detect(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Backend detection failed")
	}
	engine := transcribe.NewEngine(detection, cfg)
	if engine.Available() {
		logger.Info().Str("backend", engine.BackendName()).Msg("Transcription backend ready")
	} else {
		logger.Warn().Msg("No transcription backend available; recordings will not be transcribed")
	}

	a := &app{
		cfg:    cfg,
		engine: engine,
		paths:  paths,
		hub:    feed.NewHub(),
		logger: logger,
	}
	defer a.hub.Close()

	logger.Info().
		Str("port", cfg.Port).
		Str("data_dir", cfg.DataDir).
		Str("backend", engine.BackendName()).
		Msg("voxtype starting")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"backend": func(ctx context.Context) (bool, error) {
			if !engine.Available() {
				return false, fmt.Errorf("no transcription backend")
			}
			return true, nil
		},
		"storage": func(ctx context.Context) (bool, error) {
			if _, err := os.Stat(paths.DataDir()); err != nil {
				return false, err
			}
			return true, nil
		},
	}))
	mux.Handle("/events", a.hub)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         "127.0.0.1:" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	toggle := make(chan os.Signal, 1)
	cancel := make(chan os.Signal, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	signal.Notify(cancel, syscall.SIGUSR2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info().
		Str("toggle", "SIGUSR1").
		Str("cancel", "SIGUSR2").
		Msg("Ready; send SIGUSR1 to start dictating")

	for {
		select {
		case <-toggle:
			a.toggle()
		case <-cancel:
			a.cancelProcessing()
		case <-quit:
			logger.Info().Msg("Shutting down")
			a.shutdown()

			ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			if err := server.Shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("HTTP shutdown failed")
			}
			cancelShutdown()
			return
		}
	}
}

// toggle starts a session when idle and stops it when recording. A toggle
// during processing is ignored; one dictation finishes before the next.
func (a *app) toggle() {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		a.logger.Warn().Msg("Session still processing; toggle ignored")
		return
	}

	if a.current == nil {
		s := session.New(session.Config{
			Engine:          a.engine,
			Paths:           a.paths,
			ChunkInterval:   time.Duration(a.cfg.ChunkInterval) * time.Second,
			MinChunkSeconds: a.cfg.MinChunkSeconds,
			BreakerMaxFails: a.cfg.CircuitBreakerMaxFailures,
			BreakerReset:    time.Duration(a.cfg.CircuitBreakerResetTimeout) * time.Second,
		})
		a.current = s
		a.mu.Unlock()

		go a.hub.Forward(s.Events())

		if err := s.Start(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to start recording")
			a.mu.Lock()
			a.current = nil
			a.mu.Unlock()
			return
		}
		a.logger.Info().Str("session_id", s.ID).Msg("Recording; send SIGUSR1 again to stop")
		return
	}

	s := a.current
	a.busy = true
	a.mu.Unlock()

	go func() {
		result, err := s.Stop(context.Background())
		a.finish(s, result, err)
	}()
}

func (a *app) finish(s *session.Session, result session.Result, err error) {
	a.mu.Lock()
	a.current = nil
	a.busy = false
	a.mu.Unlock()

	switch {
	case errors.Is(err, session.ErrCancelled):
		a.logger.Info().Str("session_id", s.ID).Msg("Session cancelled; recording kept on disk")
	case err != nil && result.Degraded:
		a.logger.Warn().Err(err).Str("session_id", s.ID).Msg("Final transcription failed; emitting draft")
		fmt.Println(result.Text)
	case err != nil:
		a.logger.Error().Err(err).Str("session_id", s.ID).Msg("Session failed")
	default:
		// Transcript goes to stdout; everything else logs to stderr
		if result.Text != "" {
			fmt.Println(result.Text)
		}
		a.logger.Info().
			Str("session_id", s.ID).
			Str("backend", result.Backend).
			Dur("audio", result.Duration).
			Msg("Session complete")
	}
}

// cancelProcessing aborts the in-flight final transcription, if any
func (a *app) cancelProcessing() {
	a.mu.Lock()
	s := a.current
	a.mu.Unlock()

	if s == nil {
		return
	}
	if err := s.Cancel(); err != nil {
		a.logger.Warn().Err(err).Msg("Cancel ignored")
	}
}

// shutdown stops an active recording before exit so no audio is lost
func (a *app) shutdown() {
	a.mu.Lock()
	s := a.current
	busy := a.busy
	a.mu.Unlock()

	if s == nil || busy {
		return
	}
	if s.State() == session.StateRecording {
		result, err := s.Stop(context.Background())
		a.finish(s, result, err)
	}
}
