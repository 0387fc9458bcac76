package transcribe

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxtype/voxtype/internal/config"
	"github.com/voxtype/voxtype/internal/observability"
	"github.com/voxtype/voxtype/internal/resilience"
)

// Engine routes transcription requests to the detected backend. Draft
// chunks get one fast attempt; the final full-recording pass retries
// transient failures with exponential backoff.
type Engine struct {
	backend      Backend
	retryConfig  *resilience.RetryConfig
	chunkTimeout time.Duration
	finalTimeout time.Duration
	logger       zerolog.Logger
}

// NewEngine builds an engine for the detected backend. An empty Detection
// yields an engine whose requests all fail immediately with ErrNoBackend.
func NewEngine(det Detection, cfg *config.Config) *Engine {
	var backend Backend
	switch det.Kind {
	case KindOpenAI:
		backend = newOpenAIBackend(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, det.Model, det.Language)
	case KindDeepgram:
		backend = newDeepgramBackend(cfg.DeepgramAPIKey, det.Model, det.Language)
	case KindWhisperCpp:
		backend = newWhisperCppBackend(det.Binary, det.ModelPath, det.Language)
	case KindFasterWhisper:
		backend = newFasterWhisperBackend(det.Binary, det.Model, det.Language)
	}

	retryConfig := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}

	return &Engine{
		backend:      backend,
		retryConfig:  retryConfig,
		chunkTimeout: time.Duration(cfg.ChunkTimeout) * time.Second,
		finalTimeout: time.Duration(cfg.FinalTimeout) * time.Second,
		logger:       observability.WithComponent("transcribe"),
	}
}

// newEngineWithBackend is the test seam: a fully wired engine around an
// arbitrary backend.
func newEngineWithBackend(b Backend, retryConfig *resilience.RetryConfig, chunkTimeout, finalTimeout time.Duration) *Engine {
	return &Engine{
		backend:      b,
		retryConfig:  retryConfig,
		chunkTimeout: chunkTimeout,
		finalTimeout: finalTimeout,
		logger:       observability.WithComponent("transcribe"),
	}
}

// Available reports whether a backend is wired
func (e *Engine) Available() bool {
	return e.backend != nil
}

// BackendName returns the active backend identifier, or "none"
func (e *Engine) BackendName() string {
	if e.backend == nil {
		return "none"
	}
	return e.backend.Name()
}

// TranscribeChunk transcribes a draft chunk with a single attempt under a
// short budget. Draft chunks are disposable: a failure leaves a gap in the
// draft and the final pass covers it.
func (e *Engine) TranscribeChunk(ctx context.Context, audioPath string) (string, error) {
	if e.backend == nil {
		return "", ErrNoBackend
	}

	ctx, cancel := context.WithTimeout(ctx, e.chunkTimeout)
	defer cancel()

	start := time.Now()
	text, err := e.backend.Transcribe(ctx, audioPath)
	observability.RecordTranscription(e.backend.Name(), "chunk", start, err == nil)

	if err != nil {
		e.logger.Warn().Err(err).Str("path", audioPath).Msg("Chunk transcription failed")
		return "", err
	}
	return text, nil
}

// TranscribeFinal transcribes the full recording, retrying transient
// failures. Non-transient errors fail immediately.
func (e *Engine) TranscribeFinal(ctx context.Context, audioPath string) (string, error) {
	if e.backend == nil {
		return "", ErrNoBackend
	}

	start := time.Now()
	var text string
	err := resilience.Retry(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.finalTimeout)
		defer cancel()

		result, err := e.backend.Transcribe(attemptCtx, audioPath)
		if err != nil {
			return err
		}
		text = result
		return nil
	}, e.retryConfig, IsTransient)

	observability.RecordTranscription(e.backend.Name(), "final", start, err == nil)
	if err != nil {
		e.logger.Error().Err(err).Str("path", audioPath).Msg("Final transcription failed")
		return "", err
	}

	e.logger.Info().
		Str("backend", e.backend.Name()).
		Dur("duration", time.Since(start)).
		Msg("Final transcription complete")
	return text, nil
}
