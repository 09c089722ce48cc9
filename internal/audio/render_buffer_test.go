package audio

import (
	"testing"
	"time"
)

func TestRenderBufferReadWrite(t *testing.T) {
	b := NewRenderBuffer(8)
	if b.Cap() != 8 {
		t.Fatalf("Cap = %d, want 8", b.Cap())
	}
	if dropped := b.WritePCM([]int16{1, -2, 3}); dropped != 0 {
		t.Fatalf("dropped = %d", dropped)
	}
	dst := make([]int16, 2)
	if n := b.ReadPCM(dst); n != 2 || dst[0] != 1 || dst[1] != -2 {
		t.Fatalf("ReadPCM = %d %v", n, dst)
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}
}

func TestRenderBufferDropsOldest(t *testing.T) {
	b := NewRenderBuffer(4)
	b.WritePCM([]int16{1, 2, 3})
	if dropped := b.WritePCM([]int16{4, 5}); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	dst := make([]int16, 4)
	n := b.ReadPCM(dst)
	want := []int16{2, 3, 4, 5}
	if n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %v, want %v", dst, want)
		}
	}

	// 超过整个容量的写入只保留尾部
	if dropped := b.WritePCM([]int16{10, 11, 12, 13, 14, 15}); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	n = b.ReadPCM(dst)
	if n != 4 || dst[0] != 12 || dst[3] != 15 {
		t.Fatalf("dst = %v", dst)
	}
	if b.Dropped() != 3 {
		t.Fatalf("Dropped = %d, want 3", b.Dropped())
	}
}

func TestRenderBufferReset(t *testing.T) {
	b := NewRenderBuffer(0)
	if b.Cap() != FrameSamples(DefaultSampleRate, DefaultChannelCount, DefaultFrameDuration)*10 {
		t.Fatalf("default Cap = %d", b.Cap())
	}
	b.WritePCM([]int16{1, 2, 3})
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("Len after Reset = %d", b.Len())
	}
}

func TestRenderBufferSamples(t *testing.T) {
	if got := RenderBufferSamples(16000, 2, 500*time.Millisecond); got != 16000 {
		t.Fatalf("RenderBufferSamples = %d, want 16000", got)
	}
}
