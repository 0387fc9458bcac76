package draft

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/voxtype/voxtype/internal/observability"
	"github.com/voxtype/voxtype/internal/resilience"
)

// chunkEngine is the slice of the transcription engine the draft worker needs
type chunkEngine interface {
	TranscribeChunk(ctx context.Context, audioPath string) (string, error)
}

type job struct {
	path  string
	index int
}

// Transcriber turns recording chunks into an incrementally growing draft
// transcript. Chunks are processed strictly one at a time in arrival order;
// a failed chunk leaves a gap in the draft rather than blocking later ones.
// Chunk files are deleted once attempted, success or not.
type Transcriber struct {
	engine    chunkEngine
	breaker   *resilience.CircuitBreaker
	draftPath string
	logger    zerolog.Logger

	mu        sync.Mutex
	pending   []job
	busy      bool
	stopped   bool
	fragments map[int]string
	wg        sync.WaitGroup
}

// NewTranscriber builds a draft transcriber writing to draftPath. The
// circuit breaker stops hammering a failing backend with chunk calls; the
// final transcription pass is not routed through it.
func NewTranscriber(engine chunkEngine, breaker *resilience.CircuitBreaker, draftPath, sessionID string) *Transcriber {
	return &Transcriber{
		engine:    engine,
		breaker:   breaker,
		draftPath: draftPath,
		logger:    observability.WithSession(sessionID).With().Str("component", "draft").Logger(),
		fragments: make(map[int]string),
	}
}

// Enqueue hands a chunk file to the worker. Safe to call from the capture
// goroutine; never blocks on transcription.
func (t *Transcriber) Enqueue(path string, index int) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		os.Remove(path)
		observability.RecordChunksDropped(1)
		return
	}
	t.pending = append(t.pending, job{path: path, index: index})
	observability.SetChunkQueueDepth(len(t.pending))
	if !t.busy {
		t.busy = true
		t.wg.Add(1)
		go t.worker()
	}
	t.mu.Unlock()
}

func (t *Transcriber) worker() {
	defer t.wg.Done()
	for {
		t.mu.Lock()
		if t.stopped || len(t.pending) == 0 {
			t.busy = false
			t.mu.Unlock()
			return
		}
		j := t.pending[0]
		t.pending = t.pending[1:]
		observability.SetChunkQueueDepth(len(t.pending))
		t.mu.Unlock()

		t.process(j)
	}
}

func (t *Transcriber) process(j job) {
	defer os.Remove(j.path)

	var text string
	err := t.breaker.Call(func() error {
		result, err := t.engine.TranscribeChunk(context.Background(), j.path)
		if err != nil {
			return err
		}
		text = result
		return nil
	})
	if err != nil {
		t.logger.Warn().Err(err).Int("chunk", j.index).Msg("Draft chunk skipped")
		observability.RecordError("chunk_transcription", "draft")
		return
	}

	t.mu.Lock()
	t.fragments[j.index] = text
	draft := t.assembleLocked()
	t.mu.Unlock()

	if err := os.WriteFile(t.draftPath, []byte(draft+"\n"), 0o644); err != nil {
		t.logger.Error().Err(err).Msg("Failed to write draft file")
		observability.RecordError("draft_write", "draft")
		return
	}
	observability.RecordDraftRewrite()
	t.logger.Debug().Int("chunk", j.index).Int("draft_len", len(draft)).Msg("Draft updated")
}

// assembleLocked joins fragments in chunk order. Caller holds t.mu.
func (t *Transcriber) assembleLocked() string {
	indices := make([]int, 0, len(t.fragments))
	for i := range t.fragments {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	parts := make([]string, 0, len(indices))
	for _, i := range indices {
		if t.fragments[i] != "" {
			parts = append(parts, t.fragments[i])
		}
	}
	return strings.Join(parts, " ")
}

// DraftText returns the draft assembled so far
func (t *Transcriber) DraftText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.assembleLocked()
}

// Stop drops any queued chunks, waits for the in-flight one to finish and
// returns the number of chunks dropped. The draft file is left in place.
func (t *Transcriber) Stop() int {
	t.mu.Lock()
	t.stopped = true
	dropped := len(t.pending)
	for _, j := range t.pending {
		os.Remove(j.path)
	}
	t.pending = nil
	observability.SetChunkQueueDepth(0)
	t.mu.Unlock()

	t.wg.Wait()

	if dropped > 0 {
		observability.RecordChunksDropped(dropped)
		t.logger.Info().Int("dropped", dropped).Msg("Dropped queued draft chunks on stop")
	}
	return dropped
}

// Wait blocks until every enqueued chunk has been attempted. Used when the
// caller wants the draft as complete as possible before a fallback.
func (t *Transcriber) Wait() {
	t.wg.Wait()
}
