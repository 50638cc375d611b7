// Package call implements the call-lifecycle state machine. The transition
// logic is a pure function over (snapshot, event); the Machine wrapper adds
// the mutex and the two timers (connect timeout, error recovery) so that
// re-entrant or duplicate transitions are impossible by construction.
package call

// State is the call lifecycle state.
type State int

const (
	// StateIdle is both the initial and the terminal per-session state.
	StateIdle State = iota
	// StateConnecting is entered on dial: credentials are fetched and the
	// synthesis stream is opening.
	StateConnecting
	// StateWaiting is the ready-but-not-listening gap: the stream is open
	// and capture is being (re-)armed.
	StateWaiting
	// StateListening means capture is recording and the VAD is live.
	StateListening
	// StateProcessing means an utterance is being transcribed and answered.
	StateProcessing
	// StateSpeaking means synthesized audio is playing.
	StateSpeaking
	// StateError is the user-visible failure state; it auto-recovers to
	// Idle after the recovery interval unless reset sooner.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateWaiting:
		return "WAITING"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// WelcomeStatus tracks the welcome-message sub-state. It is orthogonal to
// the call state and consulted once per session, at the first Waiting entry.
type WelcomeStatus int

const (
	// WelcomePending means the welcome message has not played yet.
	WelcomePending WelcomeStatus = iota
	// WelcomePlaying means the welcome message is being spoken.
	WelcomePlaying
	// WelcomeCompleted means the welcome message finished (or was skipped).
	WelcomeCompleted
)

// String returns a human-readable welcome status.
func (w WelcomeStatus) String() string {
	switch w {
	case WelcomePending:
		return "PENDING"
	case WelcomePlaying:
		return "PLAYING"
	case WelcomeCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Event is an input to the state machine.
type Event int

const (
	// EventStart dials a new session.
	EventStart Event = iota
	// EventStreamOpen reports the synthesis stream is open and capture armed.
	EventStreamOpen
	// EventWelcomeQueued reports a welcome message is configured.
	EventWelcomeQueued
	// EventNoWelcome reports no welcome message is configured.
	EventNoWelcome
	// EventCaptureReady reports recording has (re-)started.
	EventCaptureReady
	// EventSpeechStart reports the user started speaking (UI only).
	EventSpeechStart
	// EventUtteranceFinal reports the VAD finalized an utterance.
	EventUtteranceFinal
	// EventTurnFailed reports a turn-scoped failure (capture or
	// transcription); the turn is abandoned, the session continues.
	EventTurnFailed
	// EventReplyReady reports the reply text is ready to speak.
	EventReplyReady
	// EventPlaybackDone reports synthesized playback finished.
	EventPlaybackDone
	// EventError reports a session-fatal failure.
	EventError
	// EventConnectTimeout fires when Connecting never resolved in time.
	EventConnectTimeout
	// EventRecoveryElapsed fires when the error state has aged out.
	EventRecoveryElapsed
	// EventReset explicitly clears the error state.
	EventReset
	// EventStop tears the session down from any state.
	EventStop
)

// String returns a human-readable event name.
func (e Event) String() string {
	switch e {
	case EventStart:
		return "START"
	case EventStreamOpen:
		return "STREAM_OPEN"
	case EventWelcomeQueued:
		return "WELCOME_QUEUED"
	case EventNoWelcome:
		return "NO_WELCOME"
	case EventCaptureReady:
		return "CAPTURE_READY"
	case EventSpeechStart:
		return "SPEECH_START"
	case EventUtteranceFinal:
		return "UTTERANCE_FINAL"
	case EventTurnFailed:
		return "TURN_FAILED"
	case EventReplyReady:
		return "REPLY_READY"
	case EventPlaybackDone:
		return "PLAYBACK_DONE"
	case EventError:
		return "ERROR"
	case EventConnectTimeout:
		return "CONNECT_TIMEOUT"
	case EventRecoveryElapsed:
		return "RECOVERY_ELAPSED"
	case EventReset:
		return "RESET"
	case EventStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Effect is a command for the orchestrator to execute after a transition.
// The machine never performs I/O itself.
type Effect int

const (
	// EffectOpenStream fetches credentials, opens the synthesis stream, and
	// arms capture.
	EffectOpenStream Effect = iota
	// EffectResolveWelcome asks the orchestrator whether a welcome message
	// is configured (answered with EventWelcomeQueued or EventNoWelcome).
	EffectResolveWelcome
	// EffectSpeakWelcome queues the welcome message on the synthesis stream.
	EffectSpeakWelcome
	// EffectStartListening begins recording a new utterance (answered with
	// EventCaptureReady).
	EffectStartListening
	// EffectBeginTurn transcribes the pending utterance and produces a reply.
	EffectBeginTurn
	// EffectSpeakReply queues the pending reply text on the synthesis stream.
	EffectSpeakReply
	// EffectTeardown stops capture, playback, and the stream, and cancels
	// session-scoped timers.
	EffectTeardown
	// EffectEmitError reports a connect timeout to the error hooks. Other
	// failures carry their own error and reach the hooks directly; the
	// timeout originates inside the machine, so it is surfaced as an effect.
	EffectEmitError
)

// String returns a human-readable effect name.
func (e Effect) String() string {
	switch e {
	case EffectOpenStream:
		return "OPEN_STREAM"
	case EffectResolveWelcome:
		return "RESOLVE_WELCOME"
	case EffectSpeakWelcome:
		return "SPEAK_WELCOME"
	case EffectStartListening:
		return "START_LISTENING"
	case EffectBeginTurn:
		return "BEGIN_TURN"
	case EffectSpeakReply:
		return "SPEAK_REPLY"
	case EffectTeardown:
		return "TEARDOWN"
	case EffectEmitError:
		return "EMIT_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is the machine's complete mutable state. It is owned exclusively
// by the Machine; other components observe it through the change callback.
type Snapshot struct {
	State              State
	Welcome            WelcomeStatus
	UserSpeaking       bool
	HasConnectionError bool
}
