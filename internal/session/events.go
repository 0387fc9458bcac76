package session

// EventType identifies a session event
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventLevel        EventType = "level"
	EventSpectrum     EventType = "spectrum"
	EventTranscript   EventType = "transcript"
	EventDegraded     EventType = "degraded"
)

// Event is published on the session's event channel. Consumers that fall
// behind lose events; the channel never blocks the audio path.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	State     State     `json:"state,omitempty"`
	Level     float64   `json:"level,omitempty"`
	Spectrum  []float64 `json:"spectrum,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
}
