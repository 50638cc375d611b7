// Package tts owns the speech synthesis side of the pipeline: a long-lived
// bidirectional websocket stream to the synthesis service and an ordered
// playback pipeline that decodes and schedules audio frames strictly in
// arrival order.
package tts
