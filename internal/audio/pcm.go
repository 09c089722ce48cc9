package audio

// PCMToBytes 小端序int16转字节流
func PCMToBytes(pcm []int16) []byte {
	buf := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
	}
	return buf
}

// BytesToPCM 字节流转小端序int16，多余的奇数字节被忽略
func BytesToPCM(data []byte, pcm []int16) int {
	n := len(data) / 2
	if n > len(pcm) {
		n = len(pcm)
	}
	for i := 0; i < n; i++ {
		pcm[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}
	return n
}

func clampInt16(v float64) int16 {
	if v > DefaultMaxValue {
		return DefaultMaxValue
	}
	if v < -DefaultMaxValue-1 {
		return -DefaultMaxValue - 1
	}
	return int16(v)
}

// framer 把任意长度的PCM切成固定大小的帧
type framer struct {
	size    int
	pending []int16
}

func newFramer(size int) *framer {
	return &framer{size: size, pending: make([]int16, 0, size*2)}
}

func (f *framer) push(pcm []int16, emit func([]int16)) {
	f.pending = append(f.pending, pcm...)
	off := 0
	for len(f.pending)-off >= f.size {
		frame := make([]int16, f.size)
		copy(frame, f.pending[off:off+f.size])
		off += f.size
		emit(frame)
	}
	// 剩余数据移到缓冲区头部
	n := copy(f.pending, f.pending[off:])
	f.pending = f.pending[:n]
}

func (f *framer) reset() {
	f.pending = f.pending[:0]
}
