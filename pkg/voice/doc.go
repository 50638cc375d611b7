// Package voice holds the shared error taxonomy for the real-time voice
// conversation pipeline.
//
// The pipeline itself lives in the subpackages:
//
//   - capture: microphone input, level metering, voice activity detection
//   - stt: utterance transcription
//   - tts: streaming speech synthesis and ordered playback
//   - call: the call lifecycle state machine
//   - session: the orchestrator tying the above together
package voice
