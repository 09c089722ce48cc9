package audio

import "errors"

const (
	DefaultSampleRate    = 16000
	DefaultChannelCount  = 1
	DefaultFrameDuration = 60 // 毫秒
	DefaultMaxValue      = 1<<15 - 1

	// MaxOpusFrameSize 120ms at 48kHz, 单通道
	MaxOpusFrameSize = 5760
)

var (
	ErrEngineClosed       = errors.New("音频引擎已关闭")
	ErrEngineNotStarted   = errors.New("音频引擎未启动")
	ErrCaptureNotExternal = errors.New("当前模式由SDK负责采集，不接受外部音频帧")
	ErrRenderNotExternal  = errors.New("当前模式由SDK负责渲染，无法拉取播放数据")
)

// Encoder 音频编码器接口
type Encoder interface {
	// Encode 将PCM数据编码为压缩格式
	Encode(pcmData []int16) ([]byte, error)
}

// Decoder 音频解码器接口
type Decoder interface {
	// Decode 将压缩格式解码为PCM数据，返回每通道采样数
	Decode(compressedData []byte, pcmData []int16) (int, error)
}

// Capturer SDK采集使用的录音设备
type Capturer interface {
	StartRecording() error
	StopRecording() error
	Close() error
	SetPCMDataCallback(cb func(pcm []int16, n int))
	IsRecording() bool
}

// Renderer SDK渲染使用的播放设备
type Renderer interface {
	Start() error
	Stop() error
	Close() error
	QueuePCMAudio(pcm []int16)
	IsPlaying() bool
}

// FrameSamples 根据采样率、通道数和帧时长计算一帧的采样数
func FrameSamples(sampleRate, channels, frameDuration int) int {
	return sampleRate * frameDuration / 1000 * channels
}
