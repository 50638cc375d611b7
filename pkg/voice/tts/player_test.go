package tts

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSink records play order and lets the test control when each frame's
// playback completes.
type fakeSink struct {
	mu     sync.Mutex
	played [][]byte
	dones  []chan struct{}
	auto   bool // complete immediately
}

func (f *fakeSink) Play(pcm []byte) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, pcm)
	done := make(chan struct{})
	if f.auto {
		close(done)
	} else {
		f.dones = append(f.dones, done)
	}
	return done, nil
}

func (f *fakeSink) Stop()        {}
func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) playedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played)
}

func (f *fakeSink) release(i int) {
	f.mu.Lock()
	done := f.dones[i]
	f.mu.Unlock()
	close(done)
}

// countingDecoder tags decoded output so play order is observable.
type countingDecoder struct {
	mu      sync.Mutex
	decoded []string
}

func (d *countingDecoder) Decode(frame []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decoded = append(d.decoded, string(frame))
	return frame, nil
}

func (d *countingDecoder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.decoded)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestPlayer_StrictArrivalOrder(t *testing.T) {
	sink := &fakeSink{auto: true}
	dec := &countingDecoder{}
	p := NewPlayer(dec, sink, 50*time.Millisecond, nil)

	for i := 0; i < 10; i++ {
		p.Enqueue([]byte(fmt.Sprintf("frame-%02d", i)), false)
	}

	waitFor(t, time.Second, func() bool { return sink.playedCount() == 10 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, pcm := range sink.played {
		want := fmt.Sprintf("frame-%02d", i)
		if string(pcm) != want {
			t.Fatalf("position %d played %q want %q", i, pcm, want)
		}
	}
}

func TestPlayer_NextDecodeWaitsForPlaybackCompletion(t *testing.T) {
	sink := &fakeSink{}
	dec := &countingDecoder{}
	p := NewPlayer(dec, sink, 50*time.Millisecond, nil)

	p.Enqueue([]byte("a"), false)
	p.Enqueue([]byte("b"), false)
	p.Enqueue([]byte("c"), false)

	waitFor(t, time.Second, func() bool { return dec.count() == 1 })
	time.Sleep(30 * time.Millisecond)
	if dec.count() != 1 {
		t.Fatalf("frame 2 decoded before frame 1 completed (decoded=%d)", dec.count())
	}

	sink.release(0)
	waitFor(t, time.Second, func() bool { return dec.count() == 2 })
	time.Sleep(30 * time.Millisecond)
	if dec.count() != 2 {
		t.Fatalf("frame 3 decoded early (decoded=%d)", dec.count())
	}

	sink.release(1)
	waitFor(t, time.Second, func() bool { return dec.count() == 3 })
	sink.release(2)
}

func TestPlayer_SpeechEndDebounce(t *testing.T) {
	sink := &fakeSink{auto: true}
	p := NewPlayer(nil, sink, 60*time.Millisecond, nil)

	var mu sync.Mutex
	ended := 0
	p.SetCallbacks(func() { mu.Lock(); ended++; mu.Unlock() }, nil)

	p.Enqueue([]byte("x"), false)

	// Well inside the debounce window nothing fires yet.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	if ended != 0 {
		mu.Unlock()
		t.Fatal("speech end fired before debounce elapsed")
	}
	mu.Unlock()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ended == 1
	})
}

func TestPlayer_DebounceAbsorbsJitterBetweenChunks(t *testing.T) {
	sink := &fakeSink{auto: true}
	p := NewPlayer(nil, sink, 80*time.Millisecond, nil)

	var mu sync.Mutex
	ended := 0
	p.SetCallbacks(func() { mu.Lock(); ended++; mu.Unlock() }, nil)

	// Chunks of the same utterance arriving with gaps shorter than the
	// debounce must not produce intermediate speech-end events.
	for i := 0; i < 4; i++ {
		p.Enqueue([]byte("x"), false)
		time.Sleep(30 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ended > 0
	})
	mu.Lock()
	defer mu.Unlock()
	if ended != 1 {
		t.Fatalf("speech end fired %d times", ended)
	}
}

func TestPlayer_StopClearsQueueAndIgnoresLateFrames(t *testing.T) {
	sink := &fakeSink{}
	dec := &countingDecoder{}
	p := NewPlayer(dec, sink, 50*time.Millisecond, nil)

	var mu sync.Mutex
	ended := 0
	p.SetCallbacks(func() { mu.Lock(); ended++; mu.Unlock() }, nil)

	p.Enqueue([]byte("a"), false)
	p.Enqueue([]byte("b"), false)
	waitFor(t, time.Second, func() bool { return dec.count() == 1 })

	p.Stop()
	sink.release(0) // unblock the in-flight frame

	time.Sleep(100 * time.Millisecond)
	if dec.count() != 1 {
		t.Fatalf("queued frame decoded after Stop (decoded=%d)", dec.count())
	}

	p.Enqueue([]byte("late"), false)
	time.Sleep(50 * time.Millisecond)
	if dec.count() != 1 {
		t.Fatal("frame enqueued after Stop was played")
	}

	mu.Lock()
	defer mu.Unlock()
	if ended != 0 {
		t.Fatalf("speech end fired %d times after Stop", ended)
	}
}

func TestPlayer_EmptyFinalFrameDoesNotPlay(t *testing.T) {
	sink := &fakeSink{auto: true}
	p := NewPlayer(nil, sink, 40*time.Millisecond, nil)

	p.Enqueue(nil, true)
	time.Sleep(80 * time.Millisecond)
	if sink.playedCount() != 0 {
		t.Fatalf("empty frame reached the sink")
	}
}
