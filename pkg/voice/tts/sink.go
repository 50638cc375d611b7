package tts

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoSink plays PCM through the system speaker via oto. Playback completion
// is tracked against a playhead derived from the sample rate: the done
// channel for a Play call closes once everything scheduled before it, plus
// the call's own audio, has had time to leave the speaker.
type OtoSink struct {
	otoCtx     *oto.Context
	sampleRate int
	channels   int

	mu       sync.Mutex
	cond     *sync.Cond
	player   *oto.Player
	buf      []byte
	playhead time.Time
	closed   bool
}

// NewOtoSink initializes the speaker at the given format (16-bit signed LE).
func NewOtoSink(sampleRate, channels int) (*OtoSink, error) {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &OtoSink{
		otoCtx:     ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Play schedules PCM on the speaker.
func (s *OtoSink) Play(pcm []byte) (<-chan struct{}, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("sink closed")
	}

	s.buf = append(s.buf, pcm...)

	// Lazily create the player on first audio so oto never pulls from an
	// empty reader at startup.
	if s.player == nil {
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}

	now := time.Now()
	if s.playhead.Before(now) {
		s.playhead = now
	}
	s.playhead = s.playhead.Add(s.durationOf(len(pcm)))
	doneAt := s.playhead

	s.cond.Signal()
	s.mu.Unlock()

	done := make(chan struct{})
	time.AfterFunc(time.Until(doneAt), func() { close(done) })
	return done, nil
}

// Stop discards any scheduled-but-unplayed audio.
func (s *OtoSink) Stop() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.playhead = time.Now()
	s.mu.Unlock()
}

// Close releases the speaker. Idempotent.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}

// Read implements io.Reader for oto.Player: it blocks until audio is
// available, and feeds silence after Close so oto can drain gracefully.
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed && len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *OtoSink) durationOf(bytes int) time.Duration {
	bytesPerSecond := s.sampleRate * s.channels * 2
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(bytes) / float64(bytesPerSecond) * float64(time.Second))
}
