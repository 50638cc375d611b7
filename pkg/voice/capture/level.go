package capture

import (
	"math"
	"time"
)

// Sample is one tick of the live level meter. Energy and Peak are
// normalized to [0, 1].
type Sample struct {
	At     time.Time `json:"at"`
	Energy float64   `json:"energy"`
	Peak   float64   `json:"peak"`
}

// RMSEnergy computes the root-mean-square energy of PCM audio.
// Input is assumed to be 16-bit signed little-endian PCM.
// Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		// Little-endian 16-bit signed integer
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute amplitude in the PCM data.
// Returns a value between 0.0 and 1.0.
func PeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// Use float64 to avoid overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}

// SuggestThreshold proposes a silence threshold from the loudest level
// observed during a calibration pass over ambient noise.
func SuggestThreshold(maxLevel float64) float64 {
	if maxLevel <= 0 {
		return DefaultConfig().SilenceThreshold
	}
	return 0.3 * maxLevel
}
