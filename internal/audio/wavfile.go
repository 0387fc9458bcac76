package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WritePCM16WAV writes little-endian PCM16 mono bytes as a WAV file
func WritePCM16WAV(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           PCM16ToInts(pcm),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}

// PCMFileToWAV wraps a raw PCM16 mono recording file into a WAV container
// so transcription backends can consume it.
func PCMFileToWAV(pcmPath, wavPath string, sampleRate int) error {
	pcm, err := os.ReadFile(pcmPath)
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}
	return WritePCM16WAV(wavPath, pcm, sampleRate)
}

// ReadWAV decodes a WAV file into int samples plus its sample rate
func ReadWAV(path string) ([]int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode wav file: %w", err)
	}
	if buf.Format == nil {
		return nil, 0, fmt.Errorf("wav file has no format header")
	}
	return buf.Data, buf.Format.SampleRate, nil
}
