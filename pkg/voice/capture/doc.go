// Package capture owns the microphone input side of the voice pipeline:
// it meters a live energy signal, runs energy-based voice activity
// detection, and buffers raw audio into discrete utterances that are
// handed off for transcription.
package capture
