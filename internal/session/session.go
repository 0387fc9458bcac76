package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxtype/voxtype/internal/audio"
	"github.com/voxtype/voxtype/internal/draft"
	"github.com/voxtype/voxtype/internal/observability"
	"github.com/voxtype/voxtype/internal/resilience"
	"github.com/voxtype/voxtype/internal/storage"
)

// State is a session lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrCancelled is returned from Stop when Cancel aborted processing
	ErrCancelled = errors.New("session cancelled")
)

// Recorder abstracts microphone capture so the state machine is testable
// without an audio device
type Recorder interface {
	Start() error
	Stop() (audio.Recording, error)
}

// RecorderFactory builds a recorder from a capture config
type RecorderFactory func(cfg audio.CaptureConfig) Recorder

// Engine is the slice of the transcription engine a session uses
type Engine interface {
	TranscribeChunk(ctx context.Context, audioPath string) (string, error)
	TranscribeFinal(ctx context.Context, audioPath string) (string, error)
	BackendName() string
}

// Result is the outcome of a completed session
type Result struct {
	Text     string
	Degraded bool // true when Text is the draft, not a final transcript
	Backend  string
	Duration time.Duration
}

// Config wires a session's collaborators
type Config struct {
	Engine          Engine
	Paths           *storage.Paths
	ChunkInterval   time.Duration
	MinChunkSeconds float64
	BreakerMaxFails int
	BreakerReset    time.Duration

	// NewRecorder defaults to real portaudio capture
	NewRecorder RecorderFactory
}

// Session is a single push-to-talk dictation run:
// Idle -> Recording -> Processing -> Complete | Failed | Cancelled.
type Session struct {
	ID string

	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	cancelled bool
	cancel    context.CancelFunc

	recorder Recorder
	drafts   *draft.Transcriber
	events   chan Event
	metrics  *observability.SessionMetrics
}

// New creates an idle session
func New(cfg Config) *Session {
	id := storage.NewSessionID()
	if cfg.NewRecorder == nil {
		cfg.NewRecorder = func(c audio.CaptureConfig) Recorder {
			return audio.NewCapture(c)
		}
	}
	return &Session{
		ID:      id,
		cfg:     cfg,
		logger:  observability.WithSession(id),
		state:   StateIdle,
		events:  make(chan Event, 64),
		metrics: observability.NewSessionMetrics(id),
	}
}

// Events returns the session event channel. Events are dropped rather than
// block the publisher.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("%w: %s -> %s (currently %s)", ErrInvalidTransition, from, to, s.state)
	}
	s.setStateLocked(to)
	return nil
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(to)
}

func (s *Session) setStateLocked(to State) {
	s.state = to
	s.publish(Event{Type: EventStateChanged, SessionID: s.ID, State: to})
	s.logger.Info().Str("state", string(to)).Msg("Session state changed")

	// Terminal states end the event stream; consumers ranging over the
	// channel return instead of blocking forever. Terminal states are
	// absorbing, so this runs at most once, and every publish happens
	// before its terminal transition.
	switch to {
	case StateComplete, StateFailed, StateCancelled:
		close(s.events)
	}
}

func (s *Session) publish(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

// Start begins capture and draft transcription
func (s *Session) Start() error {
	if err := s.transition(StateIdle, StateRecording); err != nil {
		return err
	}
	s.metrics.RecordSessionStart()

	chunkDir, err := s.cfg.Paths.SessionChunkDir(s.ID)
	if err != nil {
		s.setState(StateFailed)
		s.metrics.RecordSessionEnd("failed")
		return err
	}

	breaker := resilience.NewCircuitBreaker("chunk-transcription", s.cfg.BreakerMaxFails, s.cfg.BreakerReset)
	s.drafts = draft.NewTranscriber(s.cfg.Engine, breaker, s.cfg.Paths.DraftPath(s.ID), s.ID)

	s.recorder = s.cfg.NewRecorder(audio.CaptureConfig{
		SessionID:       s.ID,
		RecordingPath:   s.cfg.Paths.RecordingPath(s.ID),
		ChunkDir:        chunkDir,
		ChunkInterval:   s.cfg.ChunkInterval,
		MinChunkSeconds: s.cfg.MinChunkSeconds,
		OnLevel: func(level float64) {
			s.publish(Event{Type: EventLevel, SessionID: s.ID, Level: level})
		},
		OnSpectrum: func(bands []float64) {
			s.publish(Event{Type: EventSpectrum, SessionID: s.ID, Spectrum: bands})
		},
		OnChunk: func(path string, index int) {
			s.drafts.Enqueue(path, index)
		},
		OnDegraded: func(err error) {
			s.publish(Event{Type: EventDegraded, SessionID: s.ID, Error: err.Error()})
		},
	})

	if err := s.recorder.Start(); err != nil {
		s.drafts.Stop()
		s.setState(StateFailed)
		s.metrics.RecordSessionEnd("failed")
		return fmt.Errorf("failed to start capture: %w", err)
	}
	return nil
}

// Stop ends capture and produces the final transcript. It blocks through
// the final transcription; Cancel from another goroutine aborts it.
func (s *Session) Stop(ctx context.Context) (Result, error) {
	if err := s.transition(StateRecording, StateProcessing); err != nil {
		return Result{}, err
	}

	procCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	rec, err := s.recorder.Stop()
	if err != nil {
		s.drafts.Stop()
		return s.fail(fmt.Errorf("failed to stop capture: %w", err))
	}

	dropped := s.drafts.Stop()
	if dropped > 0 {
		s.logger.Info().Int("dropped", dropped).Msg("Skipped queued chunks, full recording covers them")
	}

	// Nothing captured: complete with an empty transcript
	if rec.Frames == 0 {
		s.cfg.Paths.CleanupSession(s.ID)
		s.publish(Event{Type: EventTranscript, SessionID: s.ID})
		s.setState(StateComplete)
		s.metrics.RecordSessionEnd("complete")
		return Result{Backend: s.cfg.Engine.BackendName()}, nil
	}

	wavPath := s.cfg.Paths.FinalWAVPath(s.ID)
	if err := audio.PCMFileToWAV(rec.Path, wavPath, rec.SampleRate); err != nil {
		return s.failWithDraft(fmt.Errorf("failed to convert recording: %w", err), rec)
	}

	text, err := s.cfg.Engine.TranscribeFinal(procCtx, wavPath)
	if err != nil {
		if s.wasCancelled() {
			// Recording and draft stay on disk for later recovery
			s.setState(StateCancelled)
			s.metrics.RecordSessionEnd("cancelled")
			return Result{}, ErrCancelled
		}
		return s.failWithDraft(err, rec)
	}

	if err := s.cfg.Paths.WriteTranscript(s.ID, text); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist transcript")
	}
	// The final transcript supersedes the draft
	os.Remove(s.cfg.Paths.DraftPath(s.ID))
	s.cfg.Paths.CleanupSession(s.ID)

	s.publish(Event{Type: EventTranscript, SessionID: s.ID, Text: text})
	s.setState(StateComplete)
	s.metrics.RecordSessionEnd("complete")

	return Result{
		Text:     text,
		Backend:  s.cfg.Engine.BackendName(),
		Duration: rec.Duration(),
	}, nil
}

// Cancel aborts an in-flight final transcription. Only valid while
// Processing; the recording and draft are preserved on disk.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateProcessing {
		return fmt.Errorf("%w: cancel requires processing, currently %s", ErrInvalidTransition, s.state)
	}
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Session) wasCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) fail(err error) (Result, error) {
	s.logger.Error().Err(err).Msg("Session failed")
	s.setState(StateFailed)
	s.metrics.RecordSessionEnd("failed")
	return Result{}, err
}

// failWithDraft fails the session but surfaces the accumulated draft as a
// degraded result when one exists
func (s *Session) failWithDraft(err error, rec audio.Recording) (Result, error) {
	draftText := s.drafts.DraftText()
	s.logger.Error().Err(err).Bool("draft_available", draftText != "").Msg("Final transcription failed")

	if draftText != "" {
		s.publish(Event{Type: EventTranscript, SessionID: s.ID, Text: draftText, Error: err.Error()})
	}
	s.setState(StateFailed)
	s.metrics.RecordSessionEnd("failed")

	if draftText != "" {
		return Result{
			Text:     draftText,
			Degraded: true,
			Backend:  s.cfg.Engine.BackendName(),
			Duration: rec.Duration(),
		}, err
	}
	return Result{}, err
}
