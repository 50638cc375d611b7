package session

import (
	"time"

	"github.com/callforge/voicecall/pkg/voice/call"
)

// Event is the interface for all session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// CallStartedEvent is emitted when a new call session begins dialing.
type CallStartedEvent struct {
	SessionID string `json:"session_id"`
}

func (e *CallStartedEvent) EventType() string { return "call.started" }

// CallEndedEvent is emitted when the session returns to idle.
type CallEndedEvent struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

func (e *CallEndedEvent) EventType() string { return "call.ended" }

// StateChangedEvent is emitted on every call state transition.
type StateChangedEvent struct {
	From call.State `json:"from"`
	To   call.State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// SpeechStartedEvent is emitted when the user starts speaking.
type SpeechStartedEvent struct{}

func (e *SpeechStartedEvent) EventType() string { return "speech.started" }

// UtteranceCapturedEvent is emitted when an utterance survives the VAD
// gates and is handed to transcription.
type UtteranceCapturedEvent struct {
	UtteranceID string        `json:"utterance_id"`
	Bytes       int           `json:"bytes"`
	Duration    time.Duration `json:"duration"`
}

func (e *UtteranceCapturedEvent) EventType() string { return "utterance.captured" }

// TranscriptEvent is emitted when transcription completes.
type TranscriptEvent struct {
	Text string `json:"text"`
}

func (e *TranscriptEvent) EventType() string { return "transcript" }

// ReplyEvent is emitted when the reply handler produces text to speak.
type ReplyEvent struct {
	Text string `json:"text"`
}

func (e *ReplyEvent) EventType() string { return "reply" }

// ErrorEvent is emitted for both turn-scoped and session-fatal failures.
type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

func (e *ErrorEvent) EventType() string { return "error" }
