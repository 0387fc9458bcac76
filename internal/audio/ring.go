package audio

import (
	"sync"
)

// SampleRing is a thread-safe overwriting ring of float32 samples. The
// capture callback appends hardware buffers; the meter goroutine reads the
// most recent analysis window without blocking the audio path. Old samples
// are overwritten once capacity is reached.
type SampleRing struct {
	buf   []float32
	size  int
	write int
	count int
	mu    sync.RWMutex
}

// NewSampleRing creates a ring holding the given number of samples
func NewSampleRing(size int) *SampleRing {
	return &SampleRing{
		buf:  make([]float32, size),
		size: size,
	}
}

// Write appends samples, overwriting the oldest when full
func (r *SampleRing) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		r.buf[r.write] = s
		r.write = (r.write + 1) % r.size
		if r.count < r.size {
			r.count++
		}
	}
}

// Latest copies out the most recent n samples, oldest first. When fewer
// than n samples have been written, the result is shorter.
func (r *SampleRing) Latest(n int) []float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	out := make([]float32, n)
	start := (r.write - n + r.size) % r.size
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%r.size]
	}
	return out
}

// Len returns the number of samples currently held
func (r *SampleRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
