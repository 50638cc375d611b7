package session

import (
	"sync"

	"github.com/callforge/voicecall/pkg/voice/call"
	"github.com/callforge/voicecall/pkg/voice/capture"
)

// UIState is the render-ready view of a session. It is derived on demand
// from the call snapshot plus the latest audio level; nothing in it is
// stored independently, so it can never drift out of sync with the machine.
type UIState struct {
	Status       string  `json:"status"`
	OnCall       bool    `json:"on_call"`
	Connecting   bool    `json:"connecting"`
	Listening    bool    `json:"listening"`
	Processing   bool    `json:"processing"`
	Speaking     bool    `json:"speaking"`
	UserSpeaking bool    `json:"user_speaking"`
	Level        float64 `json:"level"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

func deriveUI(snap call.Snapshot, level float64, errMessage string) UIState {
	ui := UIState{
		Status:       statusFor(snap.State),
		OnCall:       snap.State != call.StateIdle && snap.State != call.StateError,
		Connecting:   snap.State == call.StateConnecting,
		Listening:    snap.State == call.StateListening,
		Processing:   snap.State == call.StateProcessing,
		Speaking:     snap.State == call.StateSpeaking,
		UserSpeaking: snap.UserSpeaking,
		Level:        level,
	}
	if snap.State == call.StateError {
		ui.ErrorMessage = errMessage
	}
	return ui
}

func statusFor(s call.State) string {
	switch s {
	case call.StateIdle:
		return "Tap to call"
	case call.StateConnecting:
		return "Connecting"
	case call.StateWaiting:
		return "One moment"
	case call.StateListening:
		return "Listening"
	case call.StateProcessing:
		return "Thinking"
	case call.StateSpeaking:
		return "Speaking"
	case call.StateError:
		return "Call failed"
	default:
		return ""
	}
}

// levelMeter smooths raw energy samples with an exponential moving average
// so the UI's voice indicator animates instead of flickering.
type levelMeter struct {
	alpha float64

	mu    sync.Mutex
	value float64
	max   float64
}

func newLevelMeter(alpha float64) *levelMeter {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &levelMeter{alpha: alpha}
}

func (m *levelMeter) Observe(s capture.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = m.alpha*s.Energy + (1-m.alpha)*m.value
	if s.Energy > m.max {
		m.max = s.Energy
	}
}

func (m *levelMeter) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// Max returns the loudest raw energy observed, the input to threshold
// calibration.
func (m *levelMeter) Max() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max
}

func (m *levelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = 0
	m.max = 0
}
