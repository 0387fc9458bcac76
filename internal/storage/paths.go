package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Paths lays out the on-disk data directory:
//
//	recordings/  raw capture (.pcm) and converted final audio (.wav)
//	chunks/      per-session draft chunk WAVs, removed as they are consumed
//	drafts/      incremental draft transcripts
//	transcripts/ final transcripts
type Paths struct {
	dataDir string
}

// New creates the data directory tree
func New(dataDir string) (*Paths, error) {
	p := &Paths{dataDir: dataDir}
	for _, dir := range []string{p.RecordingsDir(), p.ChunksDir(), p.DraftsDir(), p.TranscriptsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
		}
	}
	return p, nil
}

func (p *Paths) DataDir() string        { return p.dataDir }
func (p *Paths) RecordingsDir() string  { return filepath.Join(p.dataDir, "recordings") }
func (p *Paths) ChunksDir() string      { return filepath.Join(p.dataDir, "chunks") }
func (p *Paths) DraftsDir() string      { return filepath.Join(p.dataDir, "drafts") }
func (p *Paths) TranscriptsDir() string { return filepath.Join(p.dataDir, "transcripts") }

// NewSessionID returns a sortable session identifier: a timestamp plus a
// short random suffix so two sessions started in the same second stay
// distinct.
func NewSessionID() string {
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), uuid.NewString()[:8])
}

// RecordingPath is the raw PCM capture file for a session
func (p *Paths) RecordingPath(sessionID string) string {
	return filepath.Join(p.RecordingsDir(), sessionID+".pcm")
}

// FinalWAVPath is the converted full recording handed to the final
// transcription pass
func (p *Paths) FinalWAVPath(sessionID string) string {
	return filepath.Join(p.RecordingsDir(), sessionID+".wav")
}

// SessionChunkDir holds a session's draft chunk files. Created on demand.
func (p *Paths) SessionChunkDir(sessionID string) (string, error) {
	dir := filepath.Join(p.ChunksDir(), sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create chunk dir: %w", err)
	}
	return dir, nil
}

// DraftPath is the incremental draft transcript for a session
func (p *Paths) DraftPath(sessionID string) string {
	return filepath.Join(p.DraftsDir(), sessionID+".draft.txt")
}

// TranscriptPath is the final transcript for a session
func (p *Paths) TranscriptPath(sessionID string) string {
	return filepath.Join(p.TranscriptsDir(), sessionID+".txt")
}

// WriteTranscript persists the final transcript
func (p *Paths) WriteTranscript(sessionID, text string) error {
	if err := os.WriteFile(p.TranscriptPath(sessionID), []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// CleanupSession removes a session's chunk directory. Recordings, drafts
// and transcripts are kept.
func (p *Paths) CleanupSession(sessionID string) error {
	return os.RemoveAll(filepath.Join(p.ChunksDir(), sessionID))
}
