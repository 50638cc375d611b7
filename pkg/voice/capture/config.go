package capture

import "time"

// Config tunes capture and voice activity detection. The VAD thresholds are
// policy knobs (false-positive vs false-negative tradeoffs), not protocol
// requirements, so they are all named and overridable.
type Config struct {
	// SilenceThreshold is the normalized energy below which a sample counts
	// as silence. Default: 0.03.
	SilenceThreshold float64 `json:"silence_threshold"`

	// SilenceDuration is how long energy must stay below the threshold
	// before the current utterance is finalized. Default: 1.5s.
	SilenceDuration time.Duration `json:"silence_duration"`

	// SpeechTimeout is the hard ceiling on a single utterance. When speech
	// runs this long the utterance is force-finalized regardless of
	// continued speech. Default: 15s.
	SpeechTimeout time.Duration `json:"speech_timeout"`

	// MinUtteranceBytes is the minimum raw audio size for an utterance to be
	// worth transcribing. Smaller utterances (clicks, breath noise) are
	// dropped silently. Default: 10 KiB.
	MinUtteranceBytes int `json:"min_utterance_bytes"`

	// MinUtteranceTime is the minimum elapsed recording time for an
	// utterance to be worth transcribing. Default: 2s.
	MinUtteranceTime time.Duration `json:"min_utterance_time"`

	// AnalysisInterval is the level-metering cadence. Default: 50ms (~20 Hz).
	AnalysisInterval time.Duration `json:"analysis_interval"`

	// SampleRate is the capture sample rate in Hz. Default: 24000.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of capture channels. Default: 1 (mono).
	Channels int `json:"channels"`
}

// DefaultConfig returns a Config with the stock VAD policy.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:  0.03,
		SilenceDuration:   1500 * time.Millisecond,
		SpeechTimeout:     15 * time.Second,
		MinUtteranceBytes: 10 * 1024,
		MinUtteranceTime:  2 * time.Second,
		AnalysisInterval:  50 * time.Millisecond,
		SampleRate:        24000,
		Channels:          1,
	}
}

// withDefaults fills in zero values.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = d.SilenceDuration
	}
	if c.SpeechTimeout <= 0 {
		c.SpeechTimeout = d.SpeechTimeout
	}
	if c.MinUtteranceBytes <= 0 {
		c.MinUtteranceBytes = d.MinUtteranceBytes
	}
	if c.MinUtteranceTime <= 0 {
		c.MinUtteranceTime = d.MinUtteranceTime
	}
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = d.AnalysisInterval
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	return c
}
