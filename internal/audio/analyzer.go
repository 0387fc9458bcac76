package audio

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	// FFTSize is the number of samples fed to the forward FFT
	FFTSize = 512

	// SpectrumBands is the number of logarithmic frequency bands reported to the UI
	SpectrumBands = 14

	// levelGain scales RMS into a usable meter range
	levelGain = 5.0

	// spectrumGain boosts normalized band magnitudes for visibility
	spectrumGain = 3.0
)

// Analyzer derives meter values (RMS level and a log-frequency magnitude
// spectrum) from raw sample frames. The Hann window is precomputed once and
// reused; everything else is stateless per call.
type Analyzer struct {
	hann  []float64
	bands int
}

// NewAnalyzer creates an analyzer with the default FFT size and band count
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		hann:  window.Hann(FFTSize),
		bands: SpectrumBands,
	}
}

// Level computes the RMS of the frame, scaled by a fixed gain and clamped
// to [0,1]. Silence yields exactly 0.
func (a *Analyzer) Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	level := rms * levelGain
	if level > 1 {
		level = 1
	}
	return level
}

// Spectrum computes a 14-band logarithmic-frequency magnitude spectrum.
// The frame is zero-padded or truncated to the FFT size, Hann-windowed, and
// transformed; bin magnitudes are grouped so band b covers FFT bins
// [nyquist^(b/14), nyquist^((b+1)/14)), each band averaged, the vector
// normalized by its own maximum, gained and clamped to [0,1].
// All-zero input returns an all-zero vector.
func (a *Analyzer) Spectrum(samples []float32) []float64 {
	buf := make([]float64, FFTSize)
	n := len(samples)
	if n > FFTSize {
		n = FFTSize
	}
	for i := 0; i < n; i++ {
		buf[i] = float64(samples[i]) * a.hann[i]
	}

	spec := fft.FFTReal(buf)

	// Magnitudes up to the Nyquist bin
	nyquist := FFTSize / 2
	mags := make([]float64, nyquist+1)
	for i := 0; i <= nyquist; i++ {
		mags[i] = cmplx.Abs(spec[i])
	}

	// Group bins into logarithmically spaced bands, skipping bin 0 (DC)
	out := make([]float64, a.bands)
	for b := 0; b < a.bands; b++ {
		lo := int(math.Pow(float64(nyquist), float64(b)/float64(a.bands)))
		hi := int(math.Pow(float64(nyquist), float64(b+1)/float64(a.bands)))
		if lo < 1 {
			lo = 1
		}
		if hi <= lo {
			hi = lo + 1
		}
		if hi > nyquist+1 {
			hi = nyquist + 1
		}

		sum := 0.0
		for i := lo; i < hi; i++ {
			sum += mags[i]
		}
		out[b] = sum / float64(hi-lo)
	}

	// Normalize by the maximum band; a silent frame stays all-zero
	max := 0.0
	for _, v := range out {
		if v > max {
			max = v
		}
	}
	if max > 0 {
		for i := range out {
			v := out[i] / max * spectrumGain
			if v > 1 {
				v = 1
			}
			out[i] = v
		}
	}

	return out
}
