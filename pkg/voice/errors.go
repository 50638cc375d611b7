package voice

import (
	"errors"
	"fmt"
)

// Kind categorizes pipeline errors.
type Kind string

const (
	// KindDeviceUnavailable means the audio input device could not be acquired.
	KindDeviceUnavailable Kind = "device_unavailable"
	// KindPermissionDenied means microphone access was refused.
	KindPermissionDenied Kind = "permission_denied"
	// KindTranscriptionFailed means the speech-to-text request failed.
	KindTranscriptionFailed Kind = "transcription_failed"
	// KindSynthesisConnectionFailed means the synthesis stream could not be opened.
	KindSynthesisConnectionFailed Kind = "synthesis_connection_failed"
	// KindSynthesisAuthFailed means the synthesis service rejected our credentials.
	// Unlike connection failures this is not retryable.
	KindSynthesisAuthFailed Kind = "synthesis_auth_failed"
	// KindConnectTimeout means the call never left the connecting state in time.
	KindConnectTimeout Kind = "connect_timeout"
	// KindSilentDisconnect means the synthesis stream closed unexpectedly mid-session.
	KindSilentDisconnect Kind = "silent_disconnect"
	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = "internal"
)

// Error is the error type surfaced across component boundaries.
// Message is human-readable and safe to show to the UI layer; raw provider
// detail stays in Cause and never crosses the boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with the given kind and UI-facing message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates an Error that carries an underlying cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf extracts the UI-facing message from an error chain, falling
// back to a generic message for unclassified errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Voice service unavailable"
}

// IsTurnScoped reports whether an error of the given kind abandons only the
// current turn. Capture and transcription failures degrade a single turn;
// everything else escalates the whole session to the error state.
func IsTurnScoped(kind Kind) bool {
	switch kind {
	case KindDeviceUnavailable, KindPermissionDenied, KindTranscriptionFailed:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether reconnecting could plausibly succeed.
// Auth rejections are permanent until credentials change.
func IsRetryable(kind Kind) bool {
	return kind != KindSynthesisAuthFailed && kind != KindPermissionDenied
}
