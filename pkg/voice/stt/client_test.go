package stt

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/callforge/voicecall/pkg/voice"
	"github.com/callforge/voicecall/pkg/voice/capture"
)

type mockProvider struct {
	mu      sync.Mutex
	calls   int
	text    string
	err     error
	delay   time.Duration
	gotOpts TranscribeOptions
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return &Transcript{Text: m.text}, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testUtterance(t *testing.T) *capture.Utterance {
	t.Helper()
	u := &capture.Utterance{
		ID:         "u_1",
		StartedAt:  time.Unix(0, 0),
		SampleRate: 24000,
		Channels:   1,
		Container:  "pcm",
	}
	u.Append(make([]byte, 2048))
	return u
}

func TestClient_SingleFlight(t *testing.T) {
	p := &mockProvider{text: "hello", delay: 100 * time.Millisecond}
	c := NewClient(p, TranscribeOptions{}, nil)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Transcribe(context.Background(), testUtterance(t))
			results[i] = err
		}(i)
	}
	wg.Wait()

	if p.callCount() != 1 {
		t.Fatalf("provider called %d times", p.callCount())
	}
	inFlight := 0
	for _, err := range results {
		if errors.Is(err, ErrInFlight) {
			inFlight++
		}
	}
	if inFlight != 1 {
		t.Fatalf("ErrInFlight returned %d times", inFlight)
	}
}

func TestClient_EmptyTranscriptIsTerminal(t *testing.T) {
	p := &mockProvider{text: "   "}
	c := NewClient(p, TranscribeOptions{}, nil)

	res, err := c.Transcribe(context.Background(), testUtterance(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" || !res.Final {
		t.Fatalf("res=%+v", res)
	}
}

func TestClient_TransportFailureClassified(t *testing.T) {
	p := &mockProvider{err: errors.New("connection refused")}
	c := NewClient(p, TranscribeOptions{}, nil)

	_, err := c.Transcribe(context.Background(), testUtterance(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if voice.KindOf(err) != voice.KindTranscriptionFailed {
		t.Fatalf("kind=%s", voice.KindOf(err))
	}
	if voice.MessageOf(err) != "Transcription failed" {
		t.Fatalf("message=%q", voice.MessageOf(err))
	}
}

func TestClient_ContainerComesFromRecorder(t *testing.T) {
	p := &mockProvider{text: "ok"}
	c := NewClient(p, TranscribeOptions{Model: "whisper-1", Language: "en"}, nil)

	if _, err := c.Transcribe(context.Background(), testUtterance(t)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if p.gotOpts.Format != "pcm" || p.gotOpts.SampleRate != 24000 {
		t.Fatalf("opts=%+v", p.gotOpts)
	}
	if p.gotOpts.Model != "whisper-1" {
		t.Fatalf("model=%q", p.gotOpts.Model)
	}
}

func TestClient_InFlightReleasedAfterFailure(t *testing.T) {
	p := &mockProvider{err: errors.New("boom")}
	c := NewClient(p, TranscribeOptions{}, nil)

	_, _ = c.Transcribe(context.Background(), testUtterance(t))
	p.mu.Lock()
	p.err = nil
	p.text = "second"
	p.mu.Unlock()

	res, err := c.Transcribe(context.Background(), testUtterance(t))
	if err != nil {
		t.Fatalf("second Transcribe: %v", err)
	}
	if res.Text != "second" {
		t.Fatalf("text=%q", res.Text)
	}
}
