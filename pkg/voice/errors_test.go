package voice

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := WrapError(KindTranscriptionFailed, "Transcription failed", errors.New("status 502"))
	wrapped := fmt.Errorf("turn aborted: %w", base)

	if got := KindOf(wrapped); got != KindTranscriptionFailed {
		t.Fatalf("KindOf=%s", got)
	}
	if got := MessageOf(wrapped); got != "Transcription failed" {
		t.Fatalf("MessageOf=%q", got)
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	err := errors.New("boom")
	if got := KindOf(err); got != KindInternal {
		t.Fatalf("KindOf=%s", got)
	}
	if got := MessageOf(err); got != "Voice service unavailable" {
		t.Fatalf("MessageOf=%q", got)
	}
}

func TestTurnScopedClassification(t *testing.T) {
	turnScoped := []Kind{KindDeviceUnavailable, KindPermissionDenied, KindTranscriptionFailed}
	for _, k := range turnScoped {
		if !IsTurnScoped(k) {
			t.Errorf("%s should be turn scoped", k)
		}
	}
	fatal := []Kind{KindSynthesisConnectionFailed, KindSynthesisAuthFailed, KindConnectTimeout, KindSilentDisconnect}
	for _, k := range fatal {
		if IsTurnScoped(k) {
			t.Errorf("%s should escalate the session", k)
		}
	}
}

func TestAuthFailureNotRetryable(t *testing.T) {
	if IsRetryable(KindSynthesisAuthFailed) {
		t.Fatal("auth failures must not be retryable")
	}
	if !IsRetryable(KindSynthesisConnectionFailed) {
		t.Fatal("connection failures should be retryable")
	}
}
