// Package session orchestrates one voice call: it executes call-machine
// effects against the capture, transcription, and synthesis components,
// feeds their outcomes back as machine events, and derives the UI view.
package session
