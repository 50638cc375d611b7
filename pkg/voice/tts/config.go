package tts

import "time"

// VoiceSettings are the synthesis parameters sent with the handshake.
type VoiceSettings struct {
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
}

// Config configures the streamer. Endpoint and Token typically come from
// the per-session credentials fetch.
type Config struct {
	// Endpoint is the ws(s) URL of the synthesis stream.
	Endpoint string `json:"endpoint"`

	// Token authenticates the stream.
	Token string `json:"token,omitempty"`

	// VoiceID selects the synthesis voice.
	VoiceID string `json:"voice_id"`

	// VoiceSettings tune the synthesis output.
	VoiceSettings VoiceSettings `json:"voice_settings"`

	// SampleRate of the synthesized PCM. Default: 24000.
	SampleRate int `json:"sample_rate"`

	// ConnectSoftTimeout bounds how long Connect blocks the caller. The
	// dial keeps going in the background after it elapses. Default: 3s.
	ConnectSoftTimeout time.Duration `json:"connect_soft_timeout"`

	// KeepAlive is the idle ping interval. The provider closes idle streams
	// after ~20s, so the default is 10s. Negative disables keep-alive.
	KeepAlive time.Duration `json:"keep_alive"`

	// WriteTimeout bounds individual websocket writes. Default: 5s.
	WriteTimeout time.Duration `json:"write_timeout"`

	// SpeechEndDebounce is how long the playback queue must stay drained
	// before speech counts as finished, absorbing network jitter between
	// chunks of the same utterance. Default: 500ms.
	SpeechEndDebounce time.Duration `json:"speech_end_debounce"`
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 24000
	}
	if c.ConnectSoftTimeout <= 0 {
		c.ConnectSoftTimeout = 3 * time.Second
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SpeechEndDebounce <= 0 {
		c.SpeechEndDebounce = 500 * time.Millisecond
	}
	return c
}
