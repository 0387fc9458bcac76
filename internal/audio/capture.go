package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/voxtype/voxtype/internal/observability"
)

var (
	// ErrDeviceUnavailable indicates no usable input device exists
	ErrDeviceUnavailable = errors.New("no audio input device available")

	// ErrPermissionDenied indicates microphone access was not granted
	ErrPermissionDenied = errors.New("microphone access denied")
)

// meterInterval is the cadence of level/spectrum updates (~30/s)
const meterInterval = 33 * time.Millisecond

// CaptureConfig wires a Capture to its session
type CaptureConfig struct {
	SessionID     string
	RecordingPath string // raw PCM16 mono 16 kHz destination
	ChunkDir      string // directory for extracted chunk WAV files

	ChunkInterval   time.Duration // cadence of draft chunk extraction
	MinChunkSeconds float64       // extractions shorter than this are skipped

	OnLevel    func(level float64)
	OnSpectrum func(bands []float64)
	OnChunk    func(path string, index int)
	OnDegraded func(err error) // fired once if recording persistence starts failing
}

// Recording describes a finalized recording file
type Recording struct {
	Path       string
	Frames     int64
	SampleRate int
}

// Duration returns the recorded audio length
func (r Recording) Duration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(r.Frames) / float64(r.SampleRate) * float64(time.Second))
}

// Capture owns the live microphone stream for one session. Each hardware
// buffer is pushed into a sample ring for meter analysis and resampled +
// appended synchronously to the recording file. Meter updates and chunk
// extraction run on their own goroutines so the audio callback never blocks
// on anything slower than the local file append.
type Capture struct {
	cfg CaptureConfig
	log zerolog.Logger

	stream    *portaudio.Stream
	rec       *os.File
	resampler *Resampler
	analyzer  *Analyzer
	ring      *SampleRing

	frames        int64 // 16 kHz frames appended, updated atomically by the callback
	lastExtracted int64 // extraction goroutine / Stop only

	done         chan struct{}
	wg           sync.WaitGroup
	degradedOnce sync.Once
	started      bool
}

// NewCapture creates a capture bound to a session. Start opens the stream.
func NewCapture(cfg CaptureConfig) *Capture {
	return &Capture{
		cfg:      cfg,
		log:      observability.WithComponent("capture").With().Str("session_id", cfg.SessionID).Logger(),
		analyzer: NewAnalyzer(),
		ring:     NewSampleRing(FFTSize * 4),
		done:     make(chan struct{}),
	}
}

// Start opens the default input device at its native sample rate, creates
// the recording file, and begins capturing. Fails with ErrDeviceUnavailable
// when no input device exists and ErrPermissionDenied when the microphone
// is blocked.
func (c *Capture) Start() error {
	if c.started {
		return fmt.Errorf("capture already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		portaudio.Terminate()
		return ErrDeviceUnavailable
	}
	nativeRate := dev.DefaultSampleRate
	framesPerBuffer := int(nativeRate / 30)

	c.resampler = NewResampler(nativeRate, TargetRate)

	rec, err := os.Create(c.cfg.RecordingPath)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to create recording file: %w", err)
	}
	c.rec = rec

	stream, err := portaudio.OpenDefaultStream(1, 0, nativeRate, framesPerBuffer, c.onBuffer)
	if err != nil {
		rec.Close()
		portaudio.Terminate()
		if strings.Contains(strings.ToLower(err.Error()), "denied") ||
			strings.Contains(strings.ToLower(err.Error()), "permission") {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		rec.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	c.wg.Add(2)
	go c.meterLoop()
	go c.extractLoop()

	c.started = true
	c.log.Info().
		Float64("native_rate", nativeRate).
		Int("frames_per_buffer", framesPerBuffer).
		Str("recording", c.cfg.RecordingPath).
		Msg("Capture started")
	return nil
}

// onBuffer is the portaudio callback. It must not block: only the ring
// write and the synchronous local file append happen here.
func (c *Capture) onBuffer(in []float32) {
	c.ring.Write(in)

	out := c.resampler.Process(in)
	pcm := Float32ToPCM16(out)
	if _, err := c.rec.Write(pcm); err != nil {
		// Drop this buffer's audio; meters keep running. Surface the
		// degraded recording to the session once.
		observability.RecordAudioWriteFailure()
		c.degradedOnce.Do(func() {
			c.log.Error().Err(err).Msg("Recording file append failed, recording is degraded")
			if c.cfg.OnDegraded != nil {
				c.cfg.OnDegraded(err)
			}
		})
		return
	}
	atomic.AddInt64(&c.frames, int64(len(out)))
	observability.RecordAudioBytes(int64(len(pcm)))
}

// meterLoop computes level and spectrum from the most recent samples at
// ~30/s, off the audio callback path
func (c *Capture) meterLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(meterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			samples := c.ring.Latest(FFTSize)
			if len(samples) == 0 {
				continue
			}
			if c.cfg.OnLevel != nil {
				c.cfg.OnLevel(c.analyzer.Level(samples))
			}
			if c.cfg.OnSpectrum != nil {
				c.cfg.OnSpectrum(c.analyzer.Spectrum(samples))
			}
		}
	}
}

// extractLoop materializes a draft chunk every ChunkInterval
func (c *Capture) extractLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.extractChunk()
		}
	}
}

// extractChunk reads the not-yet-extracted frame range from the recording
// file and writes it out as a WAV chunk tagged with its sequence index.
// Safe against the writer because the recording only grows and this reads
// strictly-historical ranges through a separate read handle.
func (c *Capture) extractChunk() {
	start := c.lastExtracted
	cur := atomic.LoadInt64(&c.frames)
	n := cur - start
	if float64(n) < c.cfg.MinChunkSeconds*TargetRate {
		return
	}

	f, err := os.Open(c.cfg.RecordingPath)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to open recording for chunk extraction")
		observability.RecordError("chunk_extract", "capture")
		return
	}
	defer f.Close()

	buf := make([]byte, n*2)
	if _, err := f.ReadAt(buf, start*2); err != nil {
		c.log.Error().Err(err).Msg("Failed to read chunk range")
		observability.RecordError("chunk_extract", "capture")
		return
	}

	intervalFrames := int64(TargetRate) * int64(c.cfg.ChunkInterval/time.Second)
	index := int(start / intervalFrames)
	chunkPath := filepath.Join(c.cfg.ChunkDir, fmt.Sprintf("%s-chunk-%03d.wav", c.cfg.SessionID, index))

	if err := WritePCM16WAV(chunkPath, buf, TargetRate); err != nil {
		c.log.Error().Err(err).Int("index", index).Msg("Failed to write chunk file")
		observability.RecordError("chunk_write", "capture")
		return
	}

	c.lastExtracted = cur
	c.log.Debug().Int("index", index).Int64("frames", n).Msg("Chunk extracted")

	if c.cfg.OnChunk != nil {
		c.cfg.OnChunk(chunkPath, index)
	}
}

// Stop tears down the stream, extracts the final partial chunk, closes the
// recording file exactly once, and returns its location.
func (c *Capture) Stop() (Recording, error) {
	if !c.started {
		return Recording{}, fmt.Errorf("capture not started")
	}
	c.started = false

	close(c.done)
	c.wg.Wait()

	var firstErr error
	if err := c.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("failed to stop input stream: %w", err)
	}
	if err := c.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close input stream: %w", err)
	}
	portaudio.Terminate()

	// Final extraction for any unflushed tail audio, after the stream has
	// stopped so every appended frame is accounted for
	c.extractChunk()

	if err := c.rec.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close recording file: %w", err)
	}

	rec := Recording{
		Path:       c.cfg.RecordingPath,
		Frames:     atomic.LoadInt64(&c.frames),
		SampleRate: TargetRate,
	}
	c.log.Info().
		Int64("frames", rec.Frames).
		Dur("duration", rec.Duration()).
		Msg("Capture stopped")
	return rec, firstErr
}
