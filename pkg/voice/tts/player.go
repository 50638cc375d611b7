package tts

import (
	"log/slog"
	"sync"
	"time"
)

// Frame is an opaque encoded audio chunk from the synthesis stream, tagged
// with its arrival order.
type Frame struct {
	Seq   int64
	Audio []byte
	Final bool
}

// Decoder turns an encoded frame into PCM for the sink.
type Decoder interface {
	Decode(frame []byte) ([]byte, error)
}

// PCMDecoder passes raw PCM frames through untouched.
type PCMDecoder struct{}

// Decode implements Decoder.
func (PCMDecoder) Decode(frame []byte) ([]byte, error) {
	return frame, nil
}

// Sink schedules decoded PCM for playback. Play returns a channel that is
// closed when the scheduled audio has finished playing.
type Sink interface {
	Play(pcm []byte) (<-chan struct{}, error)
	// Stop discards anything scheduled but not yet played.
	Stop()
	Close() error
}

// Player drives the ordered playback pipeline. Frames are decoded and
// scheduled strictly in arrival order with at most one decode in flight:
// frame n+1 is decoded only after frame n's playback completes. When the
// queue drains and nothing is scheduled, speech is considered finished
// after a short debounce.
type Player struct {
	decoder  Decoder
	sink     Sink
	debounce time.Duration
	logger   *slog.Logger

	onSpeechEnd func()
	onError     func(error)

	mu       sync.Mutex
	queue    []Frame
	busy     bool
	stopped  bool
	seq      int64
	endTimer *time.Timer
}

// NewPlayer creates a playback pipeline. A nil decoder means raw PCM.
func NewPlayer(decoder Decoder, sink Sink, debounce time.Duration, logger *slog.Logger) *Player {
	if decoder == nil {
		decoder = PCMDecoder{}
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		decoder:  decoder,
		sink:     sink,
		debounce: debounce,
		logger:   logger,
	}
}

// SetCallbacks sets the speech-end and error callbacks.
func (p *Player) SetCallbacks(onSpeechEnd func(), onError func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSpeechEnd = onSpeechEnd
	p.onError = onError
}

// Enqueue pushes a frame onto the ordered queue and starts the playback
// loop if nothing is in progress.
func (p *Player) Enqueue(audio []byte, final bool) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
	p.seq++
	p.queue = append(p.queue, Frame{Seq: p.seq, Audio: audio, Final: final})
	start := !p.busy
	if start {
		p.busy = true
	}
	p.mu.Unlock()

	if start {
		go p.loop()
	}
}

// Stop clears the queue, cancels the speech-end timer, and flushes the
// sink. Idempotent; Enqueue after Stop is ignored.
func (p *Player) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.queue = nil
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
	p.mu.Unlock()
	p.sink.Stop()
}

// Idle reports whether nothing is queued or being played.
func (p *Player) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.busy && len(p.queue) == 0
}

func (p *Player) loop() {
	for {
		p.mu.Lock()
		if p.stopped || len(p.queue) == 0 {
			p.busy = false
			drained := !p.stopped && len(p.queue) == 0
			if drained {
				p.armSpeechEnd()
			}
			p.mu.Unlock()
			return
		}
		frame := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if len(frame.Audio) == 0 {
			continue
		}

		pcm, err := p.decoder.Decode(frame.Audio)
		if err != nil {
			p.logger.Debug("frame decode failed, skipping", "seq", frame.Seq, "error", err)
			continue
		}

		done, err := p.sink.Play(pcm)
		if err != nil {
			p.reportError(err)
			continue
		}
		// Strict ordering: wait for this frame's playback before touching
		// the next one.
		<-done
	}
}

// armSpeechEnd starts the drain debounce. Must be called with p.mu held.
func (p *Player) armSpeechEnd() {
	if p.endTimer != nil {
		p.endTimer.Stop()
	}
	p.endTimer = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		fire := !p.stopped && !p.busy && len(p.queue) == 0
		cb := p.onSpeechEnd
		p.mu.Unlock()
		if fire && cb != nil {
			cb()
		}
	})
}

func (p *Player) reportError(err error) {
	p.mu.Lock()
	cb := p.onError
	p.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
