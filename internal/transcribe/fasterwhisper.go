package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// fasterWhisperBackend runs a local faster-whisper CLI. Output goes to a
// private temp directory so concurrent transcriptions never collide.
type fasterWhisperBackend struct {
	binary    string
	modelSize string
	language  string
}

func newFasterWhisperBackend(binary, modelSize, language string) *fasterWhisperBackend {
	return &fasterWhisperBackend{binary: binary, modelSize: modelSize, language: language}
}

func (b *fasterWhisperBackend) Name() string {
	return "fasterwhisper"
}

func (b *fasterWhisperBackend) Transcribe(ctx context.Context, audioPath string) (string, error) {
	outDir, err := os.MkdirTemp("", "voxtype-fw-*")
	if err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audioPath,
		"--model", b.modelSize,
		"--output_format", "txt",
		"--output_dir", outDir,
	}
	if b.language != "" {
		args = append(args, "--language", b.language)
	}

	cmd := exec.CommandContext(ctx, b.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ProcessError{
			Binary: filepath.Base(b.binary),
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	out, err := os.ReadFile(filepath.Join(outDir, base+".txt"))
	if err != nil {
		return "", fmt.Errorf("failed to read faster-whisper output: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
