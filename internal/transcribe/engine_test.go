package transcribe

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/voxtype/voxtype/internal/resilience"
)

// fakeBackend fails a fixed number of times before succeeding
type fakeBackend struct {
	mu       sync.Mutex
	calls    int
	failures int
	failWith error
	text     string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", f.failWith
	}
	return f.text, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestEngine_TranscribeFinal_RetriesTransient(t *testing.T) {
	backend := &fakeBackend{
		failures: 1,
		failWith: &APIError{Status: http.StatusServiceUnavailable, Message: "overloaded"},
		text:     "recovered transcript",
	}
	e := newEngineWithBackend(backend, testRetryConfig(), time.Second, time.Second)

	text, err := e.TranscribeFinal(context.Background(), "audio.wav")
	if err != nil {
		t.Fatalf("TranscribeFinal failed: %v", err)
	}
	if text != "recovered transcript" {
		t.Errorf("Expected recovered transcript, got %q", text)
	}
	if backend.callCount() != 2 {
		t.Errorf("Expected success on the second attempt, got %d calls", backend.callCount())
	}
}

func TestEngine_TranscribeFinal_ExhaustsAttempts(t *testing.T) {
	backend := &fakeBackend{
		failures: 100,
		failWith: &APIError{Status: http.StatusTooManyRequests, Message: "rate limited"},
	}
	e := newEngineWithBackend(backend, testRetryConfig(), time.Second, time.Second)

	_, err := e.TranscribeFinal(context.Background(), "audio.wav")
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if backend.callCount() != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", backend.callCount())
	}
}

func TestEngine_TranscribeFinal_NoRetryOnPermanentError(t *testing.T) {
	backend := &fakeBackend{
		failures: 100,
		failWith: &APIError{Status: http.StatusBadRequest, Message: "unsupported format"},
	}
	e := newEngineWithBackend(backend, testRetryConfig(), time.Second, time.Second)

	_, err := e.TranscribeFinal(context.Background(), "audio.wav")
	if err == nil {
		t.Fatal("Expected error")
	}
	if backend.callCount() != 1 {
		t.Errorf("Expected a single attempt for a permanent error, got %d", backend.callCount())
	}
}

func TestEngine_TranscribeChunk_SingleAttempt(t *testing.T) {
	backend := &fakeBackend{
		failures: 1,
		failWith: &APIError{Status: http.StatusServiceUnavailable, Message: "overloaded"},
		text:     "never reached",
	}
	e := newEngineWithBackend(backend, testRetryConfig(), time.Second, time.Second)

	_, err := e.TranscribeChunk(context.Background(), "chunk.wav")
	if err == nil {
		t.Fatal("Expected chunk transcription to fail without retrying")
	}
	if backend.callCount() != 1 {
		t.Errorf("Expected exactly 1 attempt for a chunk, got %d", backend.callCount())
	}
}

func TestEngine_NoBackend(t *testing.T) {
	e := newEngineWithBackend(nil, testRetryConfig(), time.Second, time.Second)

	if e.Available() {
		t.Error("Expected engine without backend to be unavailable")
	}
	if e.BackendName() != "none" {
		t.Errorf("Expected backend name 'none', got %q", e.BackendName())
	}

	if _, err := e.TranscribeChunk(context.Background(), "chunk.wav"); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Expected ErrNoBackend for chunk, got %v", err)
	}
	if _, err := e.TranscribeFinal(context.Background(), "audio.wav"); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Expected ErrNoBackend for final, got %v", err)
	}
}

func TestEngine_TranscribeChunk_Success(t *testing.T) {
	backend := &fakeBackend{text: "chunk text"}
	e := newEngineWithBackend(backend, testRetryConfig(), time.Second, time.Second)

	text, err := e.TranscribeChunk(context.Background(), "chunk.wav")
	if err != nil {
		t.Fatalf("TranscribeChunk failed: %v", err)
	}
	if text != "chunk text" {
		t.Errorf("Expected 'chunk text', got %q", text)
	}
}
