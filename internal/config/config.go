package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voxtype dictation service
type Config struct {
	// Server configuration (health, metrics, UI event feed)
	Port string `envconfig:"PORT" default:"9314"`

	// Transcription backend selection.
	// "auto" detects a backend at startup: a cloud API key if present
	// (OpenAI first, then Deepgram), otherwise a local whisper install.
	// Forcing a specific backend fails fast when its prerequisites are missing.
	Backend string `envconfig:"TRANSCRIBE_BACKEND" default:"auto"` // auto, openai, deepgram, whispercpp, fasterwhisper

	// Cloud transcription API configuration
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel    string `envconfig:"OPENAI_MODEL" default:"whisper-1"`
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	Language       string `envconfig:"LANGUAGE" default:"en"`           // Language hint for all backends

	// Local engine configuration
	WhisperModelPath  string `envconfig:"WHISPER_MODEL_PATH" default:""`      // ggml model file for whisper.cpp
	FasterWhisperSize string `envconfig:"FASTER_WHISPER_SIZE" default:"base"` // model size name for faster-whisper

	// Recording configuration
	DataDir         string  `envconfig:"DATA_DIR" default:""`             // defaults to ~/.local/share/voxtype
	ChunkInterval   int     `envconfig:"CHUNK_INTERVAL" default:"15"`     // seconds between draft chunk extractions
	MinChunkSeconds float64 `envconfig:"MIN_CHUNK_SECONDS" default:"0.5"` // skip extractions shorter than this

	// Transcription timeouts
	ChunkTimeout int `envconfig:"CHUNK_TIMEOUT" default:"10"` // seconds, per draft chunk call
	FinalTimeout int `envconfig:"FINAL_TIMEOUT" default:"60"` // seconds, per final full-file attempt

	// Resilience configuration
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Final transcription attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"1000"`       // Initial backoff in milliseconds
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Chunk failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".local", "share", "voxtype")
	}

	if cfg.ChunkInterval <= 0 {
		return nil, fmt.Errorf("CHUNK_INTERVAL must be positive, got %d", cfg.ChunkInterval)
	}
	if cfg.MinChunkSeconds < 0 {
		return nil, fmt.Errorf("MIN_CHUNK_SECONDS must not be negative, got %f", cfg.MinChunkSeconds)
	}

	return &cfg, nil
}
