package transcribe

import "context"

// Backend transcribes a single WAV file to text
type Backend interface {
	// Name returns the backend identifier used in logs and metrics
	Name() string
	// Transcribe converts the audio file at path to text
	Transcribe(ctx context.Context, audioPath string) (string, error)
}
