package transcribe

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/voxtype/voxtype/internal/config"
)

// Kind identifies a transcription backend variant
type Kind string

const (
	KindNone          Kind = ""
	KindOpenAI        Kind = "openai"
	KindDeepgram      Kind = "deepgram"
	KindWhisperCpp    Kind = "whispercpp"
	KindFasterWhisper Kind = "fasterwhisper"
)

// whisperCppBinaries are probed in order for a whisper.cpp install
var whisperCppBinaries = []string{"whisper-cli", "whisper-cpp", "main"}

// fasterWhisperBinaries are probed in order for a faster-whisper install
var fasterWhisperBinaries = []string{"whisper-ctranslate2", "faster-whisper"}

// wellKnownBinDirs are checked in addition to PATH
var wellKnownBinDirs = []string{"/usr/local/bin", "/opt/homebrew/bin", "/usr/bin"}

// Detection is the immutable result of backend resolution. It is produced
// once at startup and threaded into the engine; nothing mutates it afterwards.
type Detection struct {
	Kind      Kind
	Binary    string // resolved executable for local variants
	ModelPath string // ggml model file for whisper.cpp
	Model     string // cloud model name, or model size for faster-whisper
	Language  string
}

// Available reports whether a usable backend was resolved
func (d Detection) Available() bool {
	return d.Kind != KindNone
}

// Detect resolves the transcription backend from configuration. A forced
// backend fails fast when its prerequisites are missing. Automatic mode
// prefers cloud backends (no local install, fastest): OpenAI first, then
// Deepgram, then probes local whisper variants in a fixed order. When
// nothing resolves the Detection is empty and every transcription request
// will fail with ErrNoBackend.
func Detect(cfg *config.Config) (Detection, error) {
	switch cfg.Backend {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return Detection{}, fmt.Errorf("backend forced to openai but OPENAI_API_KEY is not set")
		}
		return Detection{Kind: KindOpenAI, Model: cfg.OpenAIModel, Language: cfg.Language}, nil

	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			return Detection{}, fmt.Errorf("backend forced to deepgram but DEEPGRAM_API_KEY is not set")
		}
		return Detection{Kind: KindDeepgram, Model: cfg.DeepgramModel, Language: cfg.Language}, nil

	case "whispercpp":
		binary := findExecutable(whisperCppBinaries)
		if binary == "" {
			return Detection{}, fmt.Errorf("backend forced to whispercpp but no whisper.cpp binary found")
		}
		modelPath := whisperModelPath(cfg)
		if modelPath == "" {
			return Detection{}, fmt.Errorf("backend forced to whispercpp but no model file found (set WHISPER_MODEL_PATH)")
		}
		return Detection{Kind: KindWhisperCpp, Binary: binary, ModelPath: modelPath, Language: cfg.Language}, nil

	case "fasterwhisper":
		binary := findExecutable(fasterWhisperBinaries)
		if binary == "" {
			return Detection{}, fmt.Errorf("backend forced to fasterwhisper but no faster-whisper binary found")
		}
		return Detection{Kind: KindFasterWhisper, Binary: binary, Model: cfg.FasterWhisperSize, Language: cfg.Language}, nil

	case "auto":
		if cfg.OpenAIAPIKey != "" {
			return Detection{Kind: KindOpenAI, Model: cfg.OpenAIModel, Language: cfg.Language}, nil
		}
		if cfg.DeepgramAPIKey != "" {
			return Detection{Kind: KindDeepgram, Model: cfg.DeepgramModel, Language: cfg.Language}, nil
		}
		if binary := findExecutable(whisperCppBinaries); binary != "" {
			if modelPath := whisperModelPath(cfg); modelPath != "" {
				return Detection{Kind: KindWhisperCpp, Binary: binary, ModelPath: modelPath, Language: cfg.Language}, nil
			}
		}
		if binary := findExecutable(fasterWhisperBinaries); binary != "" {
			return Detection{Kind: KindFasterWhisper, Binary: binary, Model: cfg.FasterWhisperSize, Language: cfg.Language}, nil
		}
		return Detection{}, nil

	default:
		return Detection{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// findExecutable resolves the first of the candidate names on PATH or in
// well-known install directories
func findExecutable(names []string) string {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
		for _, dir := range wellKnownBinDirs {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}
	return ""
}

// whisperModelPath resolves a ggml model file for whisper.cpp: the
// configured path if it exists, otherwise the default model location
// under the data dir.
func whisperModelPath(cfg *config.Config) string {
	if cfg.WhisperModelPath != "" {
		if _, err := os.Stat(cfg.WhisperModelPath); err == nil {
			return cfg.WhisperModelPath
		}
		return ""
	}
	candidate := filepath.Join(cfg.DataDir, "models", "ggml-base.en.bin")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
