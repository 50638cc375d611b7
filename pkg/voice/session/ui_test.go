package session

import (
	"testing"
	"time"

	"github.com/callforge/voicecall/pkg/voice/call"
	"github.com/callforge/voicecall/pkg/voice/capture"
)

func TestDeriveUI(t *testing.T) {
	ui := deriveUI(call.Snapshot{State: call.StateListening, UserSpeaking: true}, 0.4, "")
	if !ui.OnCall || !ui.Listening || !ui.UserSpeaking || ui.Level != 0.4 {
		t.Errorf("ui = %+v", ui)
	}
	if ui.Status != "Listening" {
		t.Errorf("status = %q", ui.Status)
	}

	ui = deriveUI(call.Snapshot{State: call.StateError, HasConnectionError: true}, 0, "Voice service unavailable")
	if ui.OnCall {
		t.Error("error state reported as on call")
	}
	if ui.ErrorMessage != "Voice service unavailable" {
		t.Errorf("error message = %q", ui.ErrorMessage)
	}

	// The error message only surfaces in the error state.
	ui = deriveUI(call.Snapshot{State: call.StateIdle}, 0, "stale")
	if ui.ErrorMessage != "" {
		t.Errorf("idle error message = %q", ui.ErrorMessage)
	}
}

func TestLevelMeterSmoothing(t *testing.T) {
	m := newLevelMeter(0.5)
	now := time.Now()

	m.Observe(capture.Sample{At: now, Energy: 1})
	if got := m.Value(); got != 0.5 {
		t.Fatalf("value after one sample = %v, want 0.5", got)
	}

	m.Observe(capture.Sample{At: now, Energy: 1})
	if got := m.Value(); got != 0.75 {
		t.Fatalf("value after two samples = %v, want 0.75", got)
	}

	// A single spike decays instead of snapping back to zero.
	m.Observe(capture.Sample{At: now, Energy: 0})
	if got := m.Value(); got != 0.375 {
		t.Fatalf("value after silence = %v, want 0.375", got)
	}

	if got := m.Max(); got != 1 {
		t.Errorf("max = %v, want 1", got)
	}

	m.Reset()
	if m.Value() != 0 || m.Max() != 0 {
		t.Error("reset did not clear the meter")
	}
}
