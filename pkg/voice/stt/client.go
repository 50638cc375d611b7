package stt

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/callforge/voicecall/pkg/voice"
	"github.com/callforge/voicecall/pkg/voice/capture"
)

// ErrInFlight is returned when Transcribe is called while a previous call
// is still outstanding. Only one utterance is ever pending by construction
// of the capture engine, so a concurrent call is a programming error; the
// caller ignores it rather than queueing.
var ErrInFlight = errors.New("stt: transcription already in flight")

// Client transcribes finalized utterances with a single-flight guard.
type Client struct {
	provider Provider
	opts     TranscribeOptions
	logger   *slog.Logger

	inFlight atomic.Bool
}

// NewClient wraps a provider. A nil logger falls back to slog.Default().
func NewClient(provider Provider, opts TranscribeOptions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: provider, opts: opts, logger: logger}
}

// Transcribe sends one finalized utterance to the provider. A transport or
// provider failure comes back as a TranscriptionFailed pipeline error and
// is not retried here. Success with no intelligible speech returns an empty
// final result so the turn still closes.
func (c *Client) Transcribe(ctx context.Context, u *capture.Utterance) (*Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Warn("transcribe called while a request is outstanding", "utterance_id", u.ID)
		return nil, ErrInFlight
	}
	defer c.inFlight.Store(false)

	opts := c.opts
	opts.Format = u.Container
	opts.SampleRate = u.SampleRate
	opts.Channels = u.Channels

	t, err := c.provider.Transcribe(ctx, u.Reader(), opts)
	if err != nil {
		return nil, voice.WrapError(voice.KindTranscriptionFailed, "Transcription failed", err)
	}

	return &Result{Text: strings.TrimSpace(t.Text), Final: true}, nil
}
