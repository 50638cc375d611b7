package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/callforge/voicecall/pkg/voice"
)

// Source provides live audio to the engine. Chunks carries raw encoded
// segments as the device produces them; the channel is closed when the
// source stops.
type Source interface {
	Start() error
	Stop() error
	Chunks() <-chan []byte
	SampleRate() int
	Channels() int
	// Container identifies the native encoding of the chunks (for example
	// "pcm" or "wav"). It flows through to the transcription request
	// untranscoded.
	Container() string
}

// Callbacks are the engine's event streams. OnLevel fires at the analysis
// cadence regardless of speech or silence; OnSpeechStart fires once per
// upward threshold crossing; OnUtterance fires when the VAD finalizes an
// utterance that passes the size and duration gates.
type Callbacks struct {
	OnLevel       func(Sample)
	OnSpeechStart func()
	OnUtterance   func(*Utterance)
	OnError       func(error)
}

// Engine owns the microphone input stream: it meters levels, drives the
// VAD, and buffers raw audio into utterances.
type Engine struct {
	cfg    Config
	source Source
	cb     Callbacks
	logger *slog.Logger

	mu         sync.Mutex
	recording  bool
	detector   *Detector
	current    *Utterance
	silentTail int // bytes appended since the current silence run began
	window     []byte

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine over the given source. A nil logger falls
// back to slog.Default().
func NewEngine(cfg Config, source Source, cb Callbacks, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		source:   source,
		cb:       cb,
		logger:   logger,
		detector: NewDetector(cfg),
	}
}

// Setup acquires the audio device and starts the analysis loop. A device
// failure is reported once, classified, and not retried; the caller decides
// whether the session continues without capture.
func (e *Engine) Setup(ctx context.Context) error {
	if err := e.source.Start(); err != nil {
		return classifyCaptureError(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.analysisLoop(runCtx)
	return nil
}

// Start begins buffering audio into a new utterance. No-op if already
// recording.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recording {
		return
	}
	e.recording = true
	e.detector.Reset()
	e.current = nil
	e.silentTail = 0
}

// Stop forces finalization of the current utterance and stops recording.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.recording {
		e.mu.Unlock()
		return
	}
	e.recording = false
	u := e.current
	e.current = nil
	e.silentTail = 0
	e.detector.Reset()
	e.mu.Unlock()

	if u != nil {
		e.finalize(u, 0, time.Now())
	}
}

// Close stops recording, the analysis loop, and the source. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	e.recording = false
	e.current = nil
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := e.source.Stop(); err != nil {
		e.logger.Debug("capture source stop", "error", err)
	}
	if done != nil {
		<-done
	}
}

func (e *Engine) analysisLoop(ctx context.Context) {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		defer close(done)
	}

	ticker := time.NewTicker(e.cfg.AnalysisInterval)
	defer ticker.Stop()

	chunks := e.source.Chunks()
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-chunks:
			if !ok {
				// The device stopped on its own; a deliberate Close
				// cancels ctx first.
				if ctx.Err() == nil {
					e.reportError(voice.NewError(voice.KindDeviceUnavailable, "Microphone is unavailable"))
				}
				return
			}
			e.mu.Lock()
			e.window = append(e.window, b...)
			e.mu.Unlock()
		case now := <-ticker.C:
			e.analyze(now)
		}
	}
}

// analyze runs one VAD tick over the audio accumulated since the last tick.
func (e *Engine) analyze(now time.Time) {
	e.mu.Lock()
	chunk := e.window
	e.window = nil

	energy := RMSEnergy(chunk)
	sample := Sample{At: now, Energy: energy, Peak: PeakAmplitude(chunk)}
	recording := e.recording
	e.mu.Unlock()

	e.emitLevel(sample)
	if !recording {
		return
	}

	e.mu.Lock()
	decision := e.detector.Process(now, energy)

	if decision == DecisionSpeechStart && e.current == nil {
		e.current = newUtterance(e.cfg, e.source.Container(), now)
	}
	if e.current != nil {
		e.current.Append(chunk)
		if energy < e.cfg.SilenceThreshold {
			e.silentTail += len(chunk)
		} else {
			e.silentTail = 0
		}
	}

	var finished *Utterance
	trim := 0
	switch decision {
	case DecisionFinalize:
		finished = e.current
		trim = e.silentTail
	case DecisionCutoff:
		finished = e.current
	}
	if finished != nil {
		e.current = nil
		e.silentTail = 0
	}
	e.mu.Unlock()

	if decision == DecisionSpeechStart {
		e.emitSpeechStart()
	}
	if finished != nil {
		e.finalize(finished, trim, now)
	}
}

// finalize applies the size and duration gates and emits or drops the
// utterance. Dropping is silent apart from a debug log: clicks and breath
// noise never reach transcription.
func (e *Engine) finalize(u *Utterance, trimTail int, now time.Time) {
	u.TrimTail(trimTail)

	if u.TotalBytes() < e.cfg.MinUtteranceBytes || u.Elapsed(now) < e.cfg.MinUtteranceTime {
		e.logger.Debug("utterance dropped below minimums",
			"utterance_id", u.ID,
			"bytes", u.TotalBytes(),
			"elapsed_ms", u.Elapsed(now).Milliseconds())
		return
	}

	if e.cb.OnUtterance != nil {
		e.safely(func() { e.cb.OnUtterance(u) })
	}
}

func (e *Engine) emitLevel(s Sample) {
	if e.cb.OnLevel != nil {
		e.safely(func() { e.cb.OnLevel(s) })
	}
}

func (e *Engine) reportError(err error) {
	if e.cb.OnError != nil {
		e.safely(func() { e.cb.OnError(err) })
	}
}

func (e *Engine) emitSpeechStart() {
	if e.cb.OnSpeechStart != nil {
		e.safely(func() { e.cb.OnSpeechStart() })
	}
}

// safely runs a callback so a panicking subscriber degrades the call
// instead of killing the process.
func (e *Engine) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("capture callback panicked", "panic", r)
		}
	}()
	fn()
}

// classifyCaptureError maps device acquisition failures onto the pipeline
// error taxonomy with a UI-safe message.
func classifyCaptureError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "permission") || strings.Contains(msg, "unauthorized") {
		return voice.WrapError(voice.KindPermissionDenied, "Microphone access was denied", err)
	}
	return voice.WrapError(voice.KindDeviceUnavailable, "Microphone is unavailable", err)
}
