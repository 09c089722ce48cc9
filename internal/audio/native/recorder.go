// Package native 提供绑定本机声卡的录音器、播放器和Opus编解码器。
package native

import (
	"errors"

	"github.com/justa-cai/audioio/internal/audio"
)

var (
	ErrAlreadyRecording = errors.New("录音已在进行中")
	ErrUnsupported      = errors.New("当前平台不支持录音")
)

// RecorderOptions 录音参数
type RecorderOptions struct {
	SampleRate      int
	ChannelCount    int
	FramesPerBuffer int // 每次回调的帧数（单通道采样数）
}

func (o RecorderOptions) withDefaults() RecorderOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = audio.DefaultSampleRate
	}
	if o.ChannelCount <= 0 {
		o.ChannelCount = audio.DefaultChannelCount
	}
	if o.FramesPerBuffer <= 0 {
		o.FramesPerBuffer = o.SampleRate * audio.DefaultFrameDuration / 1000
	}
	return o
}

// NewRecorder 返回当前平台的录音器实例
func NewRecorder(opts RecorderOptions) audio.Capturer {
	return newRecorder(opts.withDefaults())
}
