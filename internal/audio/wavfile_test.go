package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWritePCM16WAV_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wav")

	samples := sineWave(440, TargetRate, 1600) // 100ms
	pcm := Float32ToPCM16(samples)

	if err := WritePCM16WAV(path, pcm, TargetRate); err != nil {
		t.Fatalf("WritePCM16WAV failed: %v", err)
	}

	data, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != TargetRate {
		t.Errorf("Expected sample rate %d, got %d", TargetRate, rate)
	}
	if len(data) != 1600 {
		t.Errorf("Expected 1600 samples, got %d", len(data))
	}
}

func TestPCMFileToWAV(t *testing.T) {
	dir := t.TempDir()
	pcmPath := filepath.Join(dir, "rec.pcm")
	wavPath := filepath.Join(dir, "rec.wav")

	pcm := Float32ToPCM16(make([]float32, 800)) // 50ms of silence
	if err := os.WriteFile(pcmPath, pcm, 0o644); err != nil {
		t.Fatalf("Failed to write pcm file: %v", err)
	}

	if err := PCMFileToWAV(pcmPath, wavPath, TargetRate); err != nil {
		t.Fatalf("PCMFileToWAV failed: %v", err)
	}

	data, rate, err := ReadWAV(wavPath)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != TargetRate || len(data) != 800 {
		t.Errorf("Expected 800 samples at %d Hz, got %d at %d", TargetRate, len(data), rate)
	}
}

func TestPCMFileToWAV_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := PCMFileToWAV(filepath.Join(dir, "missing.pcm"), filepath.Join(dir, "out.wav"), TargetRate)
	if err == nil {
		t.Error("Expected error for missing source file")
	}
}
