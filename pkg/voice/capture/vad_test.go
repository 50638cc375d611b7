package capture

import (
	"testing"
	"time"
)

func tickConfig() Config {
	cfg := DefaultConfig()
	cfg.SilenceThreshold = 0.03
	cfg.SilenceDuration = 1500 * time.Millisecond
	cfg.SpeechTimeout = 15 * time.Second
	cfg.AnalysisInterval = 100 * time.Millisecond
	return cfg
}

func TestDetector_SpeechStartFiresOncePerUtterance(t *testing.T) {
	d := NewDetector(tickConfig())
	now := time.Unix(0, 0)

	if got := d.Process(now, 0.01); got != DecisionNone {
		t.Fatalf("silence tick: %s", got)
	}
	if got := d.Process(now.Add(100*time.Millisecond), 0.5); got != DecisionSpeechStart {
		t.Fatalf("first speech tick: %s", got)
	}
	if got := d.Process(now.Add(200*time.Millisecond), 0.5); got != DecisionNone {
		t.Fatalf("continued speech tick: %s", got)
	}
	if !d.Speaking() {
		t.Fatal("detector should be speaking")
	}
}

func TestDetector_SilenceWindowFinalizes(t *testing.T) {
	d := NewDetector(tickConfig())
	now := time.Unix(0, 0)

	d.Process(now, 0.5)

	// Silence ticks at 100ms cadence; finalize once 1500ms elapsed.
	var decision Decision
	ticks := 0
	for i := 1; ; i++ {
		decision = d.Process(now.Add(time.Duration(i)*100*time.Millisecond), 0.01)
		ticks = i
		if decision != DecisionNone {
			break
		}
		if i > 100 {
			t.Fatal("never finalized")
		}
	}
	if decision != DecisionFinalize {
		t.Fatalf("decision=%s", decision)
	}
	// Timer starts on the first silent tick, so 1500ms later is tick 16.
	if ticks != 16 {
		t.Fatalf("finalized at tick %d", ticks)
	}
	if d.Speaking() {
		t.Fatal("detector should have reset")
	}
}

func TestDetector_SpeechResetsSilenceTimer(t *testing.T) {
	d := NewDetector(tickConfig())
	now := time.Unix(0, 0)

	d.Process(now, 0.5)
	// 1400ms of silence, then speech again, then silence: the first run
	// must not count toward the second.
	for i := 1; i <= 14; i++ {
		if got := d.Process(now.Add(time.Duration(i)*100*time.Millisecond), 0.01); got != DecisionNone {
			t.Fatalf("tick %d: %s", i, got)
		}
	}
	if got := d.Process(now.Add(1500*time.Millisecond), 0.5); got != DecisionNone {
		t.Fatalf("resumed speech: %s", got)
	}
	for i := 16; i <= 29; i++ {
		if got := d.Process(now.Add(time.Duration(i)*100*time.Millisecond), 0.01); got != DecisionNone {
			t.Fatalf("tick %d: %s", i, got)
		}
	}
	if got := d.Process(now.Add(3100*time.Millisecond), 0.01); got != DecisionFinalize {
		t.Fatalf("expected finalize, got %s", got)
	}
}

func TestDetector_SpeechCeilingCutsOff(t *testing.T) {
	cfg := tickConfig()
	cfg.SpeechTimeout = 1 * time.Second
	d := NewDetector(cfg)
	now := time.Unix(0, 0)

	d.Process(now, 0.5)
	var decision Decision
	for i := 1; i <= 20; i++ {
		decision = d.Process(now.Add(time.Duration(i)*100*time.Millisecond), 0.5)
		if decision != DecisionNone {
			break
		}
	}
	if decision != DecisionCutoff {
		t.Fatalf("decision=%s", decision)
	}
}

func TestDetector_CeilingAppliesDuringTrailingSilence(t *testing.T) {
	cfg := tickConfig()
	cfg.SpeechTimeout = 1 * time.Second
	cfg.SilenceDuration = 5 * time.Second
	d := NewDetector(cfg)
	now := time.Unix(0, 0)

	d.Process(now, 0.5)
	var decision Decision
	for i := 1; i <= 20; i++ {
		decision = d.Process(now.Add(time.Duration(i)*100*time.Millisecond), 0.01)
		if decision != DecisionNone {
			break
		}
	}
	if decision != DecisionCutoff {
		t.Fatalf("decision=%s", decision)
	}
}

func TestSuggestThreshold(t *testing.T) {
	if got := SuggestThreshold(0.2); got != 0.06 {
		t.Fatalf("SuggestThreshold=%v", got)
	}
	if got := SuggestThreshold(0); got != DefaultConfig().SilenceThreshold {
		t.Fatalf("zero max level should fall back to default, got %v", got)
	}
}
