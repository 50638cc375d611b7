// Package stt converts finalized utterances into text transcripts.
package stt

import (
	"context"
	"io"
)

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription. Format and SampleRate come
// from the recorder's native output; no transcoding happens here.
type TranscribeOptions struct {
	Model      string // Provider-specific model
	Language   string // ISO language code
	Format     string // Audio container hint (pcm, wav, webm, ...)
	SampleRate int    // Audio sample rate in Hz
	Channels   int    // Audio channel count
}

// Transcript is the raw provider result.
type Transcript struct {
	Text     string  // Full transcribed text; empty means nothing intelligible
	Language string  // Detected or specified language
	Duration float64 // Audio duration in seconds, if reported
}

// Result is the pipeline-facing transcription outcome. Empty text is a
// valid terminal result: it still closes the turn.
type Result struct {
	Text  string `json:"text"`
	Final bool   `json:"is_final"`
}
