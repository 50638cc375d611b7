package capture

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicSource captures raw PCM from the default microphone via malgo.
// Chunks are 16-bit signed little-endian mono/stereo PCM in ~20ms periods.
type MicSource struct {
	cfg Config

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	chunks    chan []byte
	closeOnce sync.Once
}

// NewMicSource initializes the audio backend. The device itself is not
// opened until Start.
func NewMicSource(cfg Config) (*MicSource, error) {
	cfg = cfg.withDefaults()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{
		ThreadPriority: malgo.ThreadPriorityRealtime,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	return &MicSource{
		cfg:    cfg,
		mctx:   mctx,
		chunks: make(chan []byte, 64),
	}, nil
}

// Start opens and starts the capture device.
func (m *MicSource) Start() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.cfg.Channels)
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			// malgo reuses the input buffer between callbacks.
			chunk := make([]byte, len(pInputSamples))
			copy(chunk, pInputSamples)
			select {
			case m.chunks <- chunk:
			default:
				// Analysis loop fell behind; dropping is better than
				// blocking the realtime audio thread.
			}
		},
	}

	device, err := malgo.InitDevice(m.mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return nil
}

// Stop stops the device and releases the audio backend. Idempotent.
func (m *MicSource) Stop() error {
	m.closeOnce.Do(func() {
		if m.device != nil {
			_ = m.device.Stop()
			m.device.Uninit()
			m.device = nil
		}
		_ = m.mctx.Uninit()
		m.mctx.Free()
		close(m.chunks)
	})
	return nil
}

// Chunks returns the live audio channel.
func (m *MicSource) Chunks() <-chan []byte {
	return m.chunks
}

// SampleRate returns the capture sample rate in Hz.
func (m *MicSource) SampleRate() int { return m.cfg.SampleRate }

// Channels returns the number of capture channels.
func (m *MicSource) Channels() int { return m.cfg.Channels }

// Container identifies the native chunk encoding.
func (m *MicSource) Container() string { return "pcm" }
