package audio

// TargetRate is the canonical sample rate all transcription backends expect
const TargetRate = 16000

// Resampler converts mono float32 audio between sample rates using linear
// interpolation. Good enough for speech; transcription backends do not
// benefit from higher-quality interpolation at 16 kHz.
type Resampler struct {
	inRate  float64
	outRate float64
}

// NewResampler creates a resampler from the hardware rate to the given output rate
func NewResampler(inRate, outRate float64) *Resampler {
	return &Resampler{inRate: inRate, outRate: outRate}
}

// Process resamples one buffer. When input and output rates match, the
// input is returned unchanged.
func (r *Resampler) Process(samples []float32) []float32 {
	if r.inRate == r.outRate || len(samples) == 0 {
		return samples
	}

	ratio := r.outRate / r.inRate
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = float32(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// Float32ToPCM16 converts float32 samples in [-1,1] to little-endian
// 16-bit signed PCM bytes, clipping out-of-range values.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCM16ToFloat32 converts little-endian 16-bit signed PCM bytes to float32
// samples in [-1,1]. A trailing odd byte is ignored.
func PCM16ToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out
}

// PCM16ToInts converts little-endian 16-bit signed PCM bytes to ints for
// WAV encoding.
func PCM16ToInts(data []byte) []int {
	n := len(data) / 2
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(int16(data[i*2]) | int16(data[i*2+1])<<8)
	}
	return out
}
