package capture

import (
	"bytes"
	"io"
	"time"

	"github.com/google/uuid"
)

// Utterance is one contiguous span of captured speech, bounded by VAD
// silence detection. It accumulates raw encoded audio between the speech
// start and speech end events.
type Utterance struct {
	ID         string
	StartedAt  time.Time
	SampleRate int
	Channels   int
	Container  string

	data []byte
}

func newUtterance(cfg Config, container string, startedAt time.Time) *Utterance {
	return &Utterance{
		ID:         uuid.NewString(),
		StartedAt:  startedAt,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Container:  container,
	}
}

// Append adds a raw audio segment.
func (u *Utterance) Append(chunk []byte) {
	u.data = append(u.data, chunk...)
}

// TrimTail discards the last n bytes. Used to drop the trailing silence run
// once the VAD finalizes, so the utterance carries only the spoken span.
func (u *Utterance) TrimTail(n int) {
	if n <= 0 {
		return
	}
	if n >= len(u.data) {
		u.data = u.data[:0]
		return
	}
	u.data = u.data[:len(u.data)-n]
}

// TotalBytes is the accumulated raw audio size.
func (u *Utterance) TotalBytes() int {
	return len(u.data)
}

// Bytes returns a copy of the raw audio.
func (u *Utterance) Bytes() []byte {
	out := make([]byte, len(u.data))
	copy(out, u.data)
	return out
}

// Reader returns a reader over the raw audio.
func (u *Utterance) Reader() io.Reader {
	return bytes.NewReader(u.data)
}

// Elapsed is the recording time as of now.
func (u *Utterance) Elapsed(now time.Time) time.Duration {
	return now.Sub(u.StartedAt)
}
