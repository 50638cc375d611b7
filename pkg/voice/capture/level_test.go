package capture

import (
	"math"
	"testing"
	"time"
)

func TestRMSEnergy_ConstantAmplitude(t *testing.T) {
	chunk := pcmChunk(0.5, 1024)
	got := RMSEnergy(chunk)
	if math.Abs(got-0.5) > 0.01 {
		t.Fatalf("RMSEnergy=%v", got)
	}
}

func TestRMSEnergy_Empty(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Fatalf("RMSEnergy(nil)=%v", got)
	}
}

func TestPeakAmplitude(t *testing.T) {
	chunk := pcmChunk(0.25, 64)
	// Overwrite one sample with a louder peak.
	v := int16(0.75 * 32768)
	chunk[10] = byte(v)
	chunk[11] = byte(v >> 8)

	got := PeakAmplitude(chunk)
	if math.Abs(got-0.75) > 0.01 {
		t.Fatalf("PeakAmplitude=%v", got)
	}
}

func TestPeakAmplitude_MinInt16DoesNotOverflow(t *testing.T) {
	chunk := []byte{0x00, 0x80} // -32768
	got := PeakAmplitude(chunk)
	if got < 0.99 || got > 1.01 {
		t.Fatalf("PeakAmplitude=%v", got)
	}
}

func TestUtterance_TrimTail(t *testing.T) {
	u := newUtterance(DefaultConfig(), "pcm", time.Unix(0, 0))
	u.Append([]byte{1, 2, 3, 4})
	u.Append([]byte{5, 6})

	u.TrimTail(2)
	if u.TotalBytes() != 4 {
		t.Fatalf("TotalBytes=%d", u.TotalBytes())
	}
	u.TrimTail(100)
	if u.TotalBytes() != 0 {
		t.Fatalf("over-trim should empty, got %d", u.TotalBytes())
	}
}

func TestUtterance_BytesIsACopy(t *testing.T) {
	u := newUtterance(DefaultConfig(), "pcm", time.Unix(0, 0))
	u.Append([]byte{1, 2, 3})

	b := u.Bytes()
	b[0] = 9
	if u.Bytes()[0] != 1 {
		t.Fatal("Bytes returned a live slice")
	}
}
