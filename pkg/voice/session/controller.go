package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callforge/voicecall/pkg/voice"
	"github.com/callforge/voicecall/pkg/voice/call"
	"github.com/callforge/voicecall/pkg/voice/capture"
	"github.com/callforge/voicecall/pkg/voice/stt"
	"github.com/callforge/voicecall/pkg/voice/tts"
)

// ErrCallBlocked is returned by StartCall while a previous connection
// failure has not been cleared yet.
var ErrCallBlocked = errors.New("session: previous connection failure not cleared")

// ReplyFunc produces the reply text for a finalized transcript. A returned
// error abandons the turn; the session keeps listening.
type ReplyFunc func(ctx context.Context, transcript string) (string, error)

// Recorder is the capture engine as the controller sees it.
type Recorder interface {
	Setup(ctx context.Context) error
	Start()
	Stop()
	Close()
}

// Synthesizer is the speech synthesis stream as the controller sees it.
type Synthesizer interface {
	Connect(ctx context.Context) error
	Send(text string)
	Close()
}

// Transcriber converts a finalized utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, u *capture.Utterance) (*stt.Result, error)
}

// Factories build the per-session components once credentials are known.
// Tests substitute fakes here; production wiring uses DefaultFactories.
type Factories struct {
	NewRecorder    func(cfg capture.Config, cb capture.Callbacks) (Recorder, error)
	NewSynthesizer func(creds *Credentials, cb tts.Callbacks) (Synthesizer, error)
	NewTranscriber func(creds *Credentials) Transcriber
}

// Config tunes the controller and its per-session components.
type Config struct {
	// WelcomeMessage is spoken once when the stream opens. Empty skips the
	// welcome entirely.
	WelcomeMessage string `json:"welcome_message"`

	// Capture tunes the microphone engine and VAD.
	Capture capture.Config `json:"capture"`

	// Voice tunes synthesis output.
	Voice tts.VoiceSettings `json:"voice"`

	// Call tunes the state machine timers.
	Call call.Config `json:"call"`

	// Model and Language configure transcription.
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`

	// LevelSmoothing is the EMA weight for the UI level meter. Default: 0.3.
	LevelSmoothing float64 `json:"level_smoothing"`
}

// Hooks are the controller's upward notifications. All hooks may be nil and
// are invoked from pipeline goroutines.
type Hooks struct {
	OnTranscript func(text string)
	OnReply      func(text string)
	OnError      func(err error)
	OnState      func(ui UIState)
	OnEvent      func(ev Event)
}

// Controller orchestrates one voice call at a time: it executes the state
// machine's effects against the capture, transcription, and synthesis
// components and feeds their outcomes back as events. It performs no
// transition logic of its own.
type Controller struct {
	cfg     Config
	creds   CredentialsProvider
	fac     Factories
	reply   ReplyFunc
	hooks   Hooks
	logger  *slog.Logger
	machine *call.Machine
	level   *levelMeter

	mu        sync.Mutex
	gen       int
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	recorder  Recorder
	synth     Synthesizer
	scribe    Transcriber
	utterance *capture.Utterance
	replyText string
	lastError string
}

// NewController wires a controller. The reply function is required; a nil
// logger falls back to slog.Default().
func NewController(cfg Config, creds CredentialsProvider, fac Factories, reply ReplyFunc, hooks Hooks, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:    cfg,
		creds:  creds,
		fac:    fac,
		reply:  reply,
		hooks:  hooks,
		logger: logger,
		level:  newLevelMeter(cfg.LevelSmoothing),
	}
	c.machine = call.NewMachine(cfg.Call, c.onChange, logger)
	return c
}

// DefaultFactories wire the real microphone, speaker, and HTTP
// transcription provider.
func DefaultFactories(cfg Config, logger *slog.Logger) Factories {
	return Factories{
		NewRecorder: func(ccfg capture.Config, cb capture.Callbacks) (Recorder, error) {
			src, err := capture.NewMicSource(ccfg)
			if err != nil {
				return nil, err
			}
			return capture.NewEngine(ccfg, src, cb, logger), nil
		},
		NewSynthesizer: func(creds *Credentials, cb tts.Callbacks) (Synthesizer, error) {
			sink, err := tts.NewOtoSink(0, 0)
			if err != nil {
				return nil, err
			}
			player := tts.NewPlayer(tts.PCMDecoder{}, sink, 0, logger)
			return tts.NewStreamer(tts.Config{
				Endpoint:      creds.SynthesisURL,
				Token:         creds.Token,
				VoiceID:       creds.VoiceID,
				VoiceSettings: cfg.Voice,
			}, player, cb, logger), nil
		},
		NewTranscriber: func(creds *Credentials) Transcriber {
			provider := stt.NewHTTPProvider(creds.TranscriptionURL, creds.Token)
			return stt.NewClient(provider, stt.TranscribeOptions{
				Model:    cfg.Model,
				Language: cfg.Language,
			}, logger)
		},
	}
}

// Snapshot returns the current call snapshot.
func (c *Controller) Snapshot() call.Snapshot {
	return c.machine.Snapshot()
}

// UIState derives the render-ready view from the current snapshot and the
// smoothed audio level.
func (c *Controller) UIState() UIState {
	c.mu.Lock()
	lastError := c.lastError
	c.mu.Unlock()
	return deriveUI(c.machine.Snapshot(), c.level.Value(), lastError)
}

// StartCall dials a new session. It returns immediately; progress surfaces
// through hooks. While a previous connection failure is unresolved the dial
// is refused.
func (c *Controller) StartCall(ctx context.Context) error {
	c.mu.Lock()
	created := c.ctx == nil
	if created {
		c.ctx, c.cancel = context.WithCancel(ctx)
		c.sessionID = uuid.NewString()
		c.gen++
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	effects := c.machine.Dispatch(call.EventStart)
	if len(effects) == 0 {
		if created {
			// The dial was refused; drop the provisional session context.
			c.mu.Lock()
			cancel := c.cancel
			c.ctx, c.cancel, c.sessionID = nil, nil, ""
			c.gen++
			c.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		}
		if snap := c.machine.Snapshot(); snap.HasConnectionError {
			return ErrCallBlocked
		}
		return nil
	}

	c.emit(&CallStartedEvent{SessionID: sessionID})
	return nil
}

// EndCall hangs up from any state. Safe to call when idle.
func (c *Controller) EndCall() {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	if effects := c.machine.Dispatch(call.EventStop); len(effects) > 0 {
		c.emit(&CallEndedEvent{SessionID: sessionID, Reason: "hangup"})
	}
}

// ToggleCall starts a call when idle and hangs up otherwise.
func (c *Controller) ToggleCall(ctx context.Context) error {
	if c.machine.Snapshot().State == call.StateIdle {
		return c.StartCall(ctx)
	}
	c.EndCall()
	return nil
}

// Reset clears a sticky connection failure so the next StartCall may dial.
func (c *Controller) Reset() {
	c.machine.Dispatch(call.EventReset)
	c.mu.Lock()
	c.lastError = ""
	c.mu.Unlock()
}

// SendReplyText speaks arbitrary text on the open stream, bypassing the
// transcription turn. It fails when no stream is up.
func (c *Controller) SendReplyText(text string) error {
	c.mu.Lock()
	synth := c.synth
	c.mu.Unlock()
	if synth == nil {
		return fmt.Errorf("session: no open call")
	}
	synth.Send(text)
	return nil
}

// Close hangs up and releases the machine's timers.
func (c *Controller) Close() {
	c.EndCall()
	c.machine.Close()
}

// onChange is the machine's transition callback. Effects run here, outside
// the machine lock; the blocking ones move to goroutines so dispatch never
// stalls behind network calls.
func (c *Controller) onChange(ch call.Change) {
	if ch.From.State != ch.To.State {
		c.emit(&StateChangedEvent{From: ch.From.State, To: ch.To.State})
		c.notifyState()
	}

	for _, eff := range ch.Effects {
		switch eff {
		case call.EffectOpenStream:
			ctx, gen := c.sessionContext()
			if ctx == nil {
				continue
			}
			go c.openStream(ctx, gen)

		case call.EffectResolveWelcome:
			if c.cfg.WelcomeMessage != "" {
				c.machine.Dispatch(call.EventWelcomeQueued)
			} else {
				c.machine.Dispatch(call.EventNoWelcome)
			}

		case call.EffectSpeakWelcome:
			c.speak(c.cfg.WelcomeMessage)

		case call.EffectStartListening:
			c.mu.Lock()
			rec := c.recorder
			c.mu.Unlock()
			if rec != nil {
				rec.Start()
				c.machine.Dispatch(call.EventCaptureReady)
			}

		case call.EffectBeginTurn:
			ctx, gen := c.sessionContext()
			c.mu.Lock()
			u := c.utterance
			c.utterance = nil
			c.mu.Unlock()
			if ctx == nil || u == nil {
				continue
			}
			go c.runTurn(ctx, gen, u)

		case call.EffectSpeakReply:
			c.mu.Lock()
			text := c.replyText
			c.replyText = ""
			c.mu.Unlock()
			c.speak(text)

		case call.EffectEmitError:
			err := voice.NewError(voice.KindConnectTimeout, "connection failed")
			c.mu.Lock()
			c.lastError = err.Message
			c.mu.Unlock()
			c.reportError(err, true)

		case call.EffectTeardown:
			c.teardown()
		}
	}
}

// openStream performs the Connecting work: credentials, synthesis stream,
// audio device. Runs on its own goroutine per session generation.
func (c *Controller) openStream(ctx context.Context, gen int) {
	creds, err := c.creds.Fetch(ctx)
	if err != nil {
		c.failSession(gen, err)
		return
	}

	synth, err := c.fac.NewSynthesizer(creds, tts.Callbacks{
		OnOpen:      func() { c.dispatchIfCurrent(gen, call.EventStreamOpen) },
		OnSpeechEnd: func() { c.machine.Dispatch(call.EventPlaybackDone) },
		OnError:     func(err error) { c.failSession(gen, err) },
	})
	if err != nil {
		c.failSession(gen, err)
		return
	}

	recorder, err := c.fac.NewRecorder(c.cfg.Capture, capture.Callbacks{
		OnLevel:       c.observeLevel,
		OnSpeechStart: c.onSpeechStart,
		OnUtterance:   c.onUtterance,
		OnError:       func(err error) { c.onCaptureError(gen, err) },
	})
	if err != nil {
		synth.Close()
		c.failSession(gen, err)
		return
	}

	if !c.adopt(gen, synth, recorder, c.fac.NewTranscriber(creds)) {
		// The session was torn down while we were dialing.
		synth.Close()
		recorder.Close()
		return
	}

	if err := recorder.Setup(ctx); err != nil {
		c.failSession(gen, err)
		return
	}
	// Connect may soft-resolve with the dial still in flight. EventStreamOpen
	// comes from OnOpen when the transport actually opens; until then the
	// machine stays in Connecting and its timeout keeps running.
	if err := synth.Connect(ctx); err != nil {
		c.failSession(gen, err)
		return
	}
}

// adopt installs the per-session components, unless the generation has
// moved on in the meantime.
func (c *Controller) adopt(gen int, synth Synthesizer, recorder Recorder, scribe Transcriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.ctx == nil {
		return false
	}
	c.synth = synth
	c.recorder = recorder
	c.scribe = scribe
	return true
}

// runTurn transcribes one utterance and produces the reply.
func (c *Controller) runTurn(ctx context.Context, gen int, u *capture.Utterance) {
	c.mu.Lock()
	scribe := c.scribe
	c.mu.Unlock()
	if scribe == nil {
		return
	}

	result, err := scribe.Transcribe(ctx, u)
	if err != nil {
		if errors.Is(err, stt.ErrInFlight) {
			return
		}
		c.failTurn(gen, err)
		return
	}

	if result.Text == "" {
		c.logger.Debug("empty transcript, abandoning turn", "utterance_id", u.ID)
		c.dispatchIfCurrent(gen, call.EventTurnFailed)
		return
	}

	c.emit(&TranscriptEvent{Text: result.Text})
	if c.hooks.OnTranscript != nil {
		c.hooks.OnTranscript(result.Text)
	}

	text, err := c.reply(ctx, result.Text)
	if err != nil {
		c.failTurn(gen, voice.WrapError(voice.KindInternal, "Could not produce a reply", err))
		return
	}
	if text == "" {
		c.dispatchIfCurrent(gen, call.EventTurnFailed)
		return
	}

	c.mu.Lock()
	if gen == c.gen {
		c.replyText = text
	}
	c.mu.Unlock()

	c.emit(&ReplyEvent{Text: text})
	if c.hooks.OnReply != nil {
		c.hooks.OnReply(text)
	}
	c.dispatchIfCurrent(gen, call.EventReplyReady)
}

func (c *Controller) speak(text string) {
	c.mu.Lock()
	synth := c.synth
	c.mu.Unlock()
	if synth != nil && text != "" {
		synth.Send(text)
	}
}

func (c *Controller) observeLevel(s capture.Sample) {
	c.level.Observe(s)
}

func (c *Controller) onSpeechStart() {
	c.machine.Dispatch(call.EventSpeechStart)
	c.emit(&SpeechStartedEvent{})
}

func (c *Controller) onUtterance(u *capture.Utterance) {
	c.mu.Lock()
	c.utterance = u
	c.mu.Unlock()

	c.emit(&UtteranceCapturedEvent{
		UtteranceID: u.ID,
		Bytes:       u.TotalBytes(),
		Duration:    u.Elapsed(time.Now()),
	})
	c.machine.Dispatch(call.EventUtteranceFinal)
}

// onCaptureError routes a runtime capture failure: turn-scoped kinds
// degrade the turn, everything else ends the session.
func (c *Controller) onCaptureError(gen int, err error) {
	if voice.IsTurnScoped(voice.KindOf(err)) {
		c.failTurn(gen, err)
		return
	}
	c.failSession(gen, err)
}

// failTurn abandons the current turn and reports the error without leaving
// the call.
func (c *Controller) failTurn(gen int, err error) {
	c.reportError(err, false)
	c.dispatchIfCurrent(gen, call.EventTurnFailed)
}

// failSession escalates to the error state.
func (c *Controller) failSession(gen int, err error) {
	c.mu.Lock()
	if gen == c.gen {
		c.lastError = voice.MessageOf(err)
	}
	c.mu.Unlock()

	c.reportError(err, true)
	c.dispatchIfCurrent(gen, call.EventError)
}

func (c *Controller) reportError(err error, fatal bool) {
	c.logger.Error("session error",
		"kind", string(voice.KindOf(err)),
		"fatal", fatal,
		"error", err)
	c.emit(&ErrorEvent{
		Kind:    string(voice.KindOf(err)),
		Message: voice.MessageOf(err),
		Fatal:   fatal,
	})
	if c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
}

func (c *Controller) dispatchIfCurrent(gen int, ev call.Event) {
	c.mu.Lock()
	current := gen == c.gen
	c.mu.Unlock()
	if current {
		c.machine.Dispatch(ev)
	}
}

func (c *Controller) sessionContext() (context.Context, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx, c.gen
}

// teardown releases everything session-scoped. Runs for Stop, Reset, and
// fatal errors; idempotent.
func (c *Controller) teardown() {
	c.mu.Lock()
	recorder := c.recorder
	synth := c.synth
	cancel := c.cancel
	c.recorder = nil
	c.synth = nil
	c.scribe = nil
	c.ctx = nil
	c.cancel = nil
	c.utterance = nil
	c.replyText = ""
	c.gen++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if recorder != nil {
		recorder.Close()
	}
	if synth != nil {
		synth.Close()
	}
	c.level.Reset()
}

func (c *Controller) emit(ev Event) {
	if c.hooks.OnEvent != nil {
		c.hooks.OnEvent(ev)
	}
}

func (c *Controller) notifyState() {
	if c.hooks.OnState != nil {
		c.hooks.OnState(c.UIState())
	}
}
