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

// whisperCppBackend runs a local whisper.cpp binary. The binary writes a
// .txt sidecar next to the input file which is read and removed.
type whisperCppBackend struct {
	binary    string
	modelPath string
	language  string
}

func newWhisperCppBackend(binary, modelPath, language string) *whisperCppBackend {
	return &whisperCppBackend{binary: binary, modelPath: modelPath, language: language}
}

func (b *whisperCppBackend) Name() string {
	return "whispercpp"
}

func (b *whisperCppBackend) Transcribe(ctx context.Context, audioPath string) (string, error) {
	outPrefix := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))

	args := []string{
		"-m", b.modelPath,
		"-f", audioPath,
		"-otxt",
		"-of", outPrefix,
		"-np",
	}
	if b.language != "" {
		args = append(args, "-l", b.language)
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

	sidecar := outPrefix + ".txt"
	out, err := os.ReadFile(sidecar)
	if err != nil {
		return "", fmt.Errorf("failed to read whisper.cpp output: %w", err)
	}
	os.Remove(sidecar)

	return strings.TrimSpace(string(out)), nil
}
