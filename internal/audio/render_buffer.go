package audio

import (
	"sync"
	"time"

	"github.com/glycerine/rbuf"
)

// RenderBuffer 外部渲染模式下的播放缓冲区，宿主程序从中拉取PCM数据。
// 缓冲区满时丢弃最旧的数据。
type RenderBuffer struct {
	mu      sync.Mutex
	ring    *rbuf.FixedSizeRingBuf
	scratch []byte
	dropped int
}

// NewRenderBuffer 创建容纳samples个采样的缓冲区
func NewRenderBuffer(samples int) *RenderBuffer {
	if samples <= 0 {
		samples = FrameSamples(DefaultSampleRate, DefaultChannelCount, DefaultFrameDuration) * 10
	}
	return &RenderBuffer{
		ring: rbuf.NewFixedSizeRingBuf(samples * 2),
	}
}

// RenderBufferSamples 根据时长计算缓冲区采样数
func RenderBufferSamples(sampleRate, channels int, d time.Duration) int {
	return int(d*time.Duration(sampleRate)/time.Second) * channels
}

// WritePCM 写入PCM数据，返回因溢出丢弃的采样数
func (b *RenderBuffer) WritePCM(pcm []int16) int {
	if len(pcm) == 0 {
		return 0
	}
	data := PCMToBytes(pcm)

	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	if len(data) > b.ring.N {
		// 数据比整个缓冲区还大，只保留最后一段
		dropped += (len(data) - b.ring.N) / 2
		data = data[len(data)-b.ring.N:]
	}
	if free := b.ring.N - b.ring.Readable; free < len(data) {
		n := len(data) - free
		b.ring.Advance(n)
		dropped += n / 2
	}
	_, _ = b.ring.Write(data)
	b.dropped += dropped
	return dropped
}

// ReadPCM 读取最多len(dst)个采样，返回实际读取数
func (b *RenderBuffer) ReadPCM(dst []int16) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := len(dst) * 2
	if want > b.ring.Readable {
		want = b.ring.Readable &^ 1
	}
	if want == 0 {
		return 0
	}
	if cap(b.scratch) < want {
		b.scratch = make([]byte, want)
	}
	buf := b.scratch[:want]
	n, _ := b.ring.Read(buf)
	return BytesToPCM(buf[:n], dst)
}

// Len 当前可读采样数
func (b *RenderBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.Readable / 2
}

// Cap 缓冲区容量（采样数）
func (b *RenderBuffer) Cap() int {
	return b.ring.N / 2
}

// Dropped 累计丢弃的采样数
func (b *RenderBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset 清空缓冲区
func (b *RenderBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring.Reset()
}
