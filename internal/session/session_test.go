package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxtype/voxtype/internal/audio"
	"github.com/voxtype/voxtype/internal/storage"
)

// fakeRecorder stands in for portaudio capture: Stop materializes a
// recording file of the configured length
type fakeRecorder struct {
	cfg      audio.CaptureConfig
	frames   int64
	startErr error
}

func (r *fakeRecorder) Start() error {
	return r.startErr
}

func (r *fakeRecorder) Stop() (audio.Recording, error) {
	if r.frames > 0 {
		pcm := audio.Float32ToPCM16(make([]float32, r.frames))
		if err := os.WriteFile(r.cfg.RecordingPath, pcm, 0o644); err != nil {
			return audio.Recording{}, err
		}
	}
	return audio.Recording{
		Path:       r.cfg.RecordingPath,
		Frames:     r.frames,
		SampleRate: audio.TargetRate,
	}, nil
}

// emitChunk simulates the capture pipeline handing a chunk to the session
func (r *fakeRecorder) emitChunk(t *testing.T, dir string, index int) {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("chunk-%03d.wav", index))
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("Failed to write chunk: %v", err)
	}
	r.cfg.OnChunk(path, index)
}

type fakeSessionEngine struct {
	mu         sync.Mutex
	chunkTexts []string // returned in call order
	chunkCalls int
	chunkDone  chan struct{} // one receive per completed chunk call

	finalText   string
	finalErr    error
	finalBlocks bool
	finalCalls  int32
}

func (e *fakeSessionEngine) TranscribeChunk(ctx context.Context, audioPath string) (string, error) {
	e.mu.Lock()
	text := ""
	if e.chunkCalls < len(e.chunkTexts) {
		text = e.chunkTexts[e.chunkCalls]
	}
	e.chunkCalls++
	done := e.chunkDone
	e.mu.Unlock()

	if done != nil {
		done <- struct{}{}
	}
	return text, nil
}

func (e *fakeSessionEngine) TranscribeFinal(ctx context.Context, audioPath string) (string, error) {
	atomic.AddInt32(&e.finalCalls, 1)
	if e.finalBlocks {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if e.finalErr != nil {
		return "", e.finalErr
	}
	return e.finalText, nil
}

func (e *fakeSessionEngine) BackendName() string { return "fake" }

func newTestSession(t *testing.T, engine Engine, frames int64) (*Session, *fakeRecorder, *storage.Paths) {
	t.Helper()
	paths, err := storage.New(filepath.Join(t.TempDir(), "voxtype"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	rec := &fakeRecorder{frames: frames}
	s := New(Config{
		Engine:          engine,
		Paths:           paths,
		ChunkInterval:   15 * time.Second,
		MinChunkSeconds: 0.5,
		BreakerMaxFails: 5,
		BreakerReset:    time.Minute,
		NewRecorder: func(cfg audio.CaptureConfig) Recorder {
			rec.cfg = cfg
			return rec
		},
	})
	return s, rec, paths
}

func TestSession_CompleteFlow(t *testing.T) {
	engine := &fakeSessionEngine{finalText: "the final transcript"}
	s, _, paths := newTestSession(t, engine, audio.TargetRate) // 1s of audio

	if s.State() != StateIdle {
		t.Fatalf("Expected idle, got %s", s.State())
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != StateRecording {
		t.Fatalf("Expected recording, got %s", s.State())
	}

	result, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.State() != StateComplete {
		t.Errorf("Expected complete, got %s", s.State())
	}
	if result.Text != "the final transcript" {
		t.Errorf("Expected final transcript, got %q", result.Text)
	}
	if result.Degraded {
		t.Error("Expected a non-degraded result")
	}
	if result.Duration != time.Second {
		t.Errorf("Expected 1s duration, got %v", result.Duration)
	}

	data, err := os.ReadFile(paths.TranscriptPath(s.ID))
	if err != nil {
		t.Fatalf("Expected transcript persisted: %v", err)
	}
	if string(data) != "the final transcript\n" {
		t.Errorf("Unexpected transcript content %q", string(data))
	}
}

func TestSession_EmptyRecordingCompletesWithoutTranscription(t *testing.T) {
	engine := &fakeSessionEngine{finalText: "should not be called"}
	s, _, _ := newTestSession(t, engine, 0)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	result, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.State() != StateComplete {
		t.Errorf("Expected complete, got %s", s.State())
	}
	if result.Text != "" {
		t.Errorf("Expected empty transcript, got %q", result.Text)
	}
	if atomic.LoadInt32(&engine.finalCalls) != 0 {
		t.Error("Expected no final transcription for an empty recording")
	}
}

func TestSession_ShortRecordingStillTranscribed(t *testing.T) {
	// 0.3s is below the chunk minimum, so no draft chunks ever existed,
	// but the final pass still runs over the full recording
	engine := &fakeSessionEngine{finalText: "yes"}
	s, _, _ := newTestSession(t, engine, int64(0.3*float64(audio.TargetRate)))

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	result, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result.Text != "yes" {
		t.Errorf("Expected 'yes', got %q", result.Text)
	}
	if atomic.LoadInt32(&engine.finalCalls) != 1 {
		t.Errorf("Expected exactly one final transcription, got %d", engine.finalCalls)
	}
}

func TestSession_FinalFailureFallsBackToDraft(t *testing.T) {
	engine := &fakeSessionEngine{
		chunkTexts: []string{"hello", "world"},
		chunkDone:  make(chan struct{}, 2),
		finalErr:   errors.New("backend down"),
	}
	s, rec, _ := newTestSession(t, engine, audio.TargetRate)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	chunkDir := t.TempDir()
	rec.emitChunk(t, chunkDir, 0)
	<-engine.chunkDone
	rec.emitChunk(t, chunkDir, 1)
	<-engine.chunkDone

	result, err := s.Stop(context.Background())
	if err == nil {
		t.Fatal("Expected Stop to report the final transcription failure")
	}
	if s.State() != StateFailed {
		t.Errorf("Expected failed, got %s", s.State())
	}
	if result.Text != "hello world" {
		t.Errorf("Expected draft fallback 'hello world', got %q", result.Text)
	}
	if !result.Degraded {
		t.Error("Expected the draft fallback to be marked degraded")
	}
}

func TestSession_FinalFailureWithoutDraft(t *testing.T) {
	engine := &fakeSessionEngine{finalErr: errors.New("backend down")}
	s, _, _ := newTestSession(t, engine, audio.TargetRate)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	result, err := s.Stop(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}
	if result.Text != "" || result.Degraded {
		t.Errorf("Expected empty result without a draft, got %+v", result)
	}
	if s.State() != StateFailed {
		t.Errorf("Expected failed, got %s", s.State())
	}
}

func TestSession_CancelDuringProcessing(t *testing.T) {
	engine := &fakeSessionEngine{finalBlocks: true}
	s, _, paths := newTestSession(t, engine, audio.TargetRate)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	go func() {
		for s.State() != StateProcessing {
			time.Sleep(time.Millisecond)
		}
		// Wait until the final call is actually blocked on its context
		for atomic.LoadInt32(&engine.finalCalls) == 0 {
			time.Sleep(time.Millisecond)
		}
		if err := s.Cancel(); err != nil {
			t.Errorf("Cancel failed: %v", err)
		}
	}()

	_, err := s.Stop(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	if s.State() != StateCancelled {
		t.Errorf("Expected cancelled, got %s", s.State())
	}

	// Cancelled sessions keep their recording for recovery
	if _, err := os.Stat(paths.RecordingPath(s.ID)); err != nil {
		t.Errorf("Expected recording preserved after cancel: %v", err)
	}

	// The event stream ends on the terminal state; a forwarder ranging
	// over it must not be left blocked
	for range s.Events() {
	}
	if _, ok := <-s.Events(); ok {
		t.Error("Expected event channel closed after terminal state")
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	engine := &fakeSessionEngine{finalText: "x"}
	s, _, _ := newTestSession(t, engine, audio.TargetRate)

	if _, err := s.Stop(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected invalid transition stopping an idle session, got %v", err)
	}
	if err := s.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected invalid transition cancelling an idle session, got %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected invalid transition starting twice, got %v", err)
	}
}

func TestSession_StartFailure(t *testing.T) {
	engine := &fakeSessionEngine{}
	s, rec, _ := newTestSession(t, engine, 0)
	rec.startErr = audio.ErrDeviceUnavailable

	err := s.Start()
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Expected device error, got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("Expected failed, got %s", s.State())
	}
}

func TestSession_PublishesStateEvents(t *testing.T) {
	engine := &fakeSessionEngine{finalText: "done"}
	s, _, _ := newTestSession(t, engine, audio.TargetRate)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The channel closes on the terminal state, so ranging must terminate
	var states []State
	var transcript string
	for e := range s.Events() {
		switch e.Type {
		case EventStateChanged:
			states = append(states, e.State)
		case EventTranscript:
			transcript = e.Text
		}
	}

	want := []State{StateRecording, StateProcessing, StateComplete}
	if len(states) != len(want) {
		t.Fatalf("Expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("Expected states %v, got %v", want, states)
			break
		}
	}
	if transcript != "done" {
		t.Errorf("Expected transcript event 'done', got %q", transcript)
	}
}
