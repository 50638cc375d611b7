package call

import (
	"log/slog"
	"sync"
	"time"
)

// Transition is the pure transition function. Unknown (state, event) pairs
// leave the snapshot untouched and produce no effects, which is what makes
// stale timer callbacks and duplicate events harmless.
func Transition(s Snapshot, ev Event) (Snapshot, []Effect) {
	switch ev {
	case EventStop:
		if s.State == StateIdle {
			return s, nil
		}
		// Stop does not resolve a connection error: a failed session stays
		// blocked from redialing until reset or recovery.
		return Snapshot{
			State:              StateIdle,
			Welcome:            WelcomePending,
			HasConnectionError: s.HasConnectionError,
		}, []Effect{EffectTeardown}

	case EventReset:
		return Snapshot{State: StateIdle, Welcome: WelcomePending}, []Effect{EffectTeardown}

	case EventError:
		if s.State == StateError {
			return s, nil
		}
		s.State = StateError
		s.UserSpeaking = false
		s.HasConnectionError = true
		return s, []Effect{EffectTeardown}
	}

	switch s.State {
	case StateIdle:
		if ev == EventStart && !s.HasConnectionError {
			return Snapshot{State: StateConnecting, Welcome: WelcomePending}, []Effect{EffectOpenStream}
		}

	case StateConnecting:
		switch ev {
		case EventStreamOpen:
			s.State = StateWaiting
			return s, []Effect{EffectResolveWelcome}
		case EventConnectTimeout:
			s.State = StateError
			s.HasConnectionError = true
			return s, []Effect{EffectEmitError, EffectTeardown}
		}

	case StateWaiting:
		switch ev {
		case EventWelcomeQueued:
			if s.Welcome != WelcomePending {
				// Welcome is consulted once per session; afterwards a
				// queued welcome degrades to plain listening.
				return s, []Effect{EffectStartListening}
			}
			s.State = StateSpeaking
			s.Welcome = WelcomePlaying
			return s, []Effect{EffectSpeakWelcome}
		case EventNoWelcome:
			if s.Welcome == WelcomePending {
				s.Welcome = WelcomeCompleted
			}
			return s, []Effect{EffectStartListening}
		case EventCaptureReady:
			s.State = StateListening
			return s, nil
		}

	case StateListening:
		switch ev {
		case EventSpeechStart:
			s.UserSpeaking = true
			return s, nil
		case EventUtteranceFinal:
			s.State = StateProcessing
			s.UserSpeaking = false
			return s, []Effect{EffectBeginTurn}
		}

	case StateProcessing:
		switch ev {
		case EventReplyReady:
			s.State = StateSpeaking
			return s, []Effect{EffectSpeakReply}
		case EventTurnFailed:
			s.State = StateWaiting
			return s, []Effect{EffectStartListening}
		}

	case StateSpeaking:
		if ev == EventPlaybackDone {
			if s.Welcome == WelcomePlaying {
				s.Welcome = WelcomeCompleted
			}
			s.State = StateWaiting
			return s, []Effect{EffectStartListening}
		}

	case StateError:
		if ev == EventRecoveryElapsed {
			return Snapshot{State: StateIdle, Welcome: WelcomePending}, nil
		}
	}

	return s, nil
}

// Config tunes the machine's timers.
type Config struct {
	// ConnectTimeout bounds the Connecting state. Default: 12s.
	ConnectTimeout time.Duration `json:"connect_timeout"`

	// ErrorRecovery is how long the Error state lingers before releasing
	// back to Idle. Default: 30s.
	ErrorRecovery time.Duration `json:"error_recovery"`
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 12 * time.Second
	}
	if c.ErrorRecovery <= 0 {
		c.ErrorRecovery = 30 * time.Second
	}
	return c
}

// Change describes one applied transition.
type Change struct {
	From    Snapshot
	To      Snapshot
	Event   Event
	Effects []Effect
}

// Machine is the single writer of the session snapshot. All mutation goes
// through Dispatch; subscribers observe changes through the callback, which
// is invoked outside the lock so it may dispatch follow-up events.
type Machine struct {
	cfg      Config
	onChange func(Change)
	logger   *slog.Logger

	mu            sync.Mutex
	snap          Snapshot
	connectTimer  *time.Timer
	recoveryTimer *time.Timer
}

// NewMachine creates a machine in the Idle state.
func NewMachine(cfg Config, onChange func(Change), logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		cfg:      cfg.withDefaults(),
		onChange: onChange,
		logger:   logger,
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Dispatch applies one event and returns the effects the orchestrator must
// execute. No-op events return nil.
func (m *Machine) Dispatch(ev Event) []Effect {
	m.mu.Lock()
	from := m.snap
	next, effects := Transition(from, ev)
	if next == from && len(effects) == 0 {
		m.mu.Unlock()
		return nil
	}
	m.snap = next
	m.manageTimers(from.State, next.State)
	cb := m.onChange
	m.mu.Unlock()

	m.logger.Debug("call transition",
		"event", ev.String(),
		"from", from.State.String(),
		"to", next.State.String())

	if cb != nil {
		cb(Change{From: from, To: next, Event: ev, Effects: effects})
	}
	return effects
}

// Close cancels all pending timers.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopConnectTimer()
	m.stopRecoveryTimer()
}

// manageTimers arms and cancels the state-scoped timers. Called with the
// lock held. A timer firing after its state was left is harmless: the
// corresponding event is invalid outside that state.
func (m *Machine) manageTimers(from, to State) {
	if from == to {
		return
	}

	if from == StateConnecting {
		m.stopConnectTimer()
	}
	if from == StateError {
		m.stopRecoveryTimer()
	}

	switch to {
	case StateConnecting:
		m.connectTimer = time.AfterFunc(m.cfg.ConnectTimeout, func() {
			m.Dispatch(EventConnectTimeout)
		})
	case StateError:
		m.recoveryTimer = time.AfterFunc(m.cfg.ErrorRecovery, func() {
			m.Dispatch(EventRecoveryElapsed)
		})
	case StateIdle:
		m.stopConnectTimer()
		m.stopRecoveryTimer()
	}
}

func (m *Machine) stopConnectTimer() {
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
}

func (m *Machine) stopRecoveryTimer() {
	if m.recoveryTimer != nil {
		m.recoveryTimer.Stop()
		m.recoveryTimer = nil
	}
}
