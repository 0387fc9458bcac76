package draft

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxtype/voxtype/internal/resilience"
)

// fakeEngine transcribes chunk files by index with optional per-index
// latency and failures
type fakeEngine struct {
	mu        sync.Mutex
	latency   map[int]time.Duration
	failIndex map[int]bool
	order     []int
	byPath    map[string]int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		latency:   make(map[int]time.Duration),
		failIndex: make(map[int]bool),
		byPath:    make(map[string]int),
	}
}

func (f *fakeEngine) register(path string, index int) {
	f.mu.Lock()
	f.byPath[path] = index
	f.mu.Unlock()
}

func (f *fakeEngine) TranscribeChunk(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	index := f.byPath[audioPath]
	delay := f.latency[index]
	fail := f.failIndex[index]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.order = append(f.order, index)
	f.mu.Unlock()

	if fail {
		return "", errors.New("backend unavailable")
	}
	return fmt.Sprintf("text%d", index), nil
}

func (f *fakeEngine) completionOrder() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.order...)
}

func newTestBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker("test", 100, time.Minute)
}

func writeChunk(t *testing.T, dir string, index int) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("chunk-%03d.wav", index))
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("Failed to write chunk file: %v", err)
	}
	return path
}

func TestTranscriber_OrderedDraft(t *testing.T) {
	dir := t.TempDir()
	draftPath := filepath.Join(dir, "draft.txt")

	engine := newFakeEngine()
	engine.latency[0] = 30 * time.Millisecond
	engine.latency[1] = 5 * time.Millisecond
	engine.latency[2] = 15 * time.Millisecond

	tr := NewTranscriber(engine, newTestBreaker(), draftPath, "test-session")
	for i := 0; i < 3; i++ {
		path := writeChunk(t, dir, i)
		engine.register(path, i)
		tr.Enqueue(path, i)
	}
	tr.Wait()

	// Uneven latencies must not reorder anything: one worker, FIFO
	order := engine.completionOrder()
	for i, idx := range order {
		if idx != i {
			t.Fatalf("Expected FIFO completion order, got %v", order)
		}
	}

	if got := tr.DraftText(); got != "text0 text1 text2" {
		t.Errorf("Expected 'text0 text1 text2', got %q", got)
	}
	// Reads with no new completions return identical output
	if again := tr.DraftText(); again != "text0 text1 text2" {
		t.Errorf("Expected repeated read to be identical, got %q", again)
	}

	data, err := os.ReadFile(draftPath)
	if err != nil {
		t.Fatalf("Failed to read draft file: %v", err)
	}
	if string(data) != "text0 text1 text2\n" {
		t.Errorf("Expected draft file to match assembled text, got %q", string(data))
	}
}

func TestTranscriber_FailedChunkLeavesGap(t *testing.T) {
	dir := t.TempDir()
	engine := newFakeEngine()
	engine.failIndex[1] = true

	tr := NewTranscriber(engine, newTestBreaker(), filepath.Join(dir, "draft.txt"), "test-session")
	for i := 0; i < 3; i++ {
		path := writeChunk(t, dir, i)
		engine.register(path, i)
		tr.Enqueue(path, i)
	}
	tr.Wait()

	if got := tr.DraftText(); got != "text0 text2" {
		t.Errorf("Expected gap where chunk 1 failed, got %q", got)
	}
}

func TestTranscriber_DeletesChunkFiles(t *testing.T) {
	dir := t.TempDir()
	engine := newFakeEngine()
	engine.failIndex[1] = true

	tr := NewTranscriber(engine, newTestBreaker(), filepath.Join(dir, "draft.txt"), "test-session")
	var paths []string
	for i := 0; i < 2; i++ {
		path := writeChunk(t, dir, i)
		engine.register(path, i)
		paths = append(paths, path)
		tr.Enqueue(path, i)
	}
	tr.Wait()

	// Both the successful and the failed chunk are removed
	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected chunk file %s to be deleted", path)
		}
	}
}

func TestTranscriber_StopDropsQueued(t *testing.T) {
	dir := t.TempDir()
	engine := newFakeEngine()
	for i := 0; i < 4; i++ {
		engine.latency[i] = 50 * time.Millisecond
	}

	tr := NewTranscriber(engine, newTestBreaker(), filepath.Join(dir, "draft.txt"), "test-session")
	var paths []string
	for i := 0; i < 4; i++ {
		path := writeChunk(t, dir, i)
		engine.register(path, i)
		paths = append(paths, path)
		tr.Enqueue(path, i)
	}

	// Let the worker pick up chunk 0, then stop with 1..3 still queued
	time.Sleep(10 * time.Millisecond)
	dropped := tr.Stop()

	if dropped != 3 {
		t.Errorf("Expected 3 dropped chunks, got %d", dropped)
	}
	if got := tr.DraftText(); got != "text0" {
		t.Errorf("Expected only the in-flight chunk in the draft, got %q", got)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected chunk file %s removed after stop", path)
		}
	}
}

func TestTranscriber_EnqueueAfterStopDropsChunk(t *testing.T) {
	dir := t.TempDir()
	engine := newFakeEngine()

	tr := NewTranscriber(engine, newTestBreaker(), filepath.Join(dir, "draft.txt"), "test-session")
	tr.Stop()

	path := writeChunk(t, dir, 0)
	engine.register(path, 0)
	tr.Enqueue(path, 0)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected chunk enqueued after stop to be deleted")
	}
	if got := tr.DraftText(); got != "" {
		t.Errorf("Expected empty draft, got %q", got)
	}
}

func TestTranscriber_OpenBreakerSkipsChunks(t *testing.T) {
	dir := t.TempDir()
	engine := newFakeEngine()
	engine.failIndex[0] = true
	engine.failIndex[1] = true

	// Breaker opens after two failures: chunk 2 never reaches the engine
	breaker := resilience.NewCircuitBreaker("test", 2, time.Minute)
	tr := NewTranscriber(engine, breaker, filepath.Join(dir, "draft.txt"), "test-session")
	for i := 0; i < 3; i++ {
		path := writeChunk(t, dir, i)
		engine.register(path, i)
		tr.Enqueue(path, i)
	}
	tr.Wait()

	order := engine.completionOrder()
	if len(order) != 2 {
		t.Errorf("Expected the third chunk to be short-circuited, engine saw %v", order)
	}
	if got := tr.DraftText(); got != "" {
		t.Errorf("Expected empty draft after backend failures, got %q", got)
	}
}
