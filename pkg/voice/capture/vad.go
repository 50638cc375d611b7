package capture

import "time"

// Decision is the outcome of one VAD tick.
type Decision int

const (
	// DecisionNone means keep going.
	DecisionNone Decision = iota
	// DecisionSpeechStart means energy crossed above the silence threshold
	// for the first time since the last finalization.
	DecisionSpeechStart
	// DecisionFinalize means the silence window elapsed and the current
	// utterance is complete.
	DecisionFinalize
	// DecisionCutoff means the speech ceiling was hit and the current
	// utterance must be force-finalized even though speech continues.
	DecisionCutoff
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "NONE"
	case DecisionSpeechStart:
		return "SPEECH_START"
	case DecisionFinalize:
		return "FINALIZE"
	case DecisionCutoff:
		return "CUTOFF"
	default:
		return "UNKNOWN"
	}
}

// Detector is the energy-based voice activity detector. It is a pure state
// machine over (time, energy) ticks: the caller supplies the clock, which
// keeps it deterministic under test. Not safe for concurrent use; the
// Engine drives it from a single analysis goroutine.
type Detector struct {
	cfg          Config
	speaking     bool
	speechStart  time.Time
	silenceStart time.Time // zero while energy is above threshold
}

// NewDetector creates a detector with the given policy.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Speaking reports whether the detector is inside an utterance.
func (d *Detector) Speaking() bool {
	return d.speaking
}

// Reset clears all state, ready for a new utterance.
func (d *Detector) Reset() {
	d.speaking = false
	d.speechStart = time.Time{}
	d.silenceStart = time.Time{}
}

// Process consumes one analysis tick and returns what the engine should do.
func (d *Detector) Process(now time.Time, energy float64) Decision {
	if energy >= d.cfg.SilenceThreshold {
		d.silenceStart = time.Time{}
		if !d.speaking {
			d.speaking = true
			d.speechStart = now
			return DecisionSpeechStart
		}
		if now.Sub(d.speechStart) >= d.cfg.SpeechTimeout {
			d.Reset()
			return DecisionCutoff
		}
		return DecisionNone
	}

	if !d.speaking {
		return DecisionNone
	}

	// The ceiling applies even while the silence timer is running: a long
	// utterance trailing into silence must still terminate.
	if now.Sub(d.speechStart) >= d.cfg.SpeechTimeout {
		d.Reset()
		return DecisionCutoff
	}

	if d.silenceStart.IsZero() {
		d.silenceStart = now
		return DecisionNone
	}
	if now.Sub(d.silenceStart) >= d.cfg.SilenceDuration {
		d.Reset()
		return DecisionFinalize
	}
	return DecisionNone
}
