package vad

import (
	"sync"
	"time"
)

const (
	DefaultAmplitudeThreshold = 1500
	DefaultSpeechTimeout      = 2 * time.Second
	DefaultMaxSpeechLength    = 30 * time.Second
)

// Callback 语音活动回调，未设置的字段会被忽略
type Callback struct {
	OnVoiceStart func(sampleRate int) // 开始听到声音
	OnVoice      func(pcm []int16)    // 正在听到声音
	OnVoiceEnd   func()               // 一段语音结束
}

// Options 检测器参数
type Options struct {
	SampleRate         int
	AmplitudeThreshold int
	SpeechTimeout      time.Duration
	MaxSpeechLength    time.Duration
}

// Detector 基于振幅阈值的语音活动检测器
type Detector struct {
	mu       sync.Mutex
	opts     Options
	callback Callback
	now      func() time.Time

	hearing        bool
	lastVoiceHeard time.Time
	voiceStarted   time.Time
}

// New 创建检测器，未指定的参数使用默认值
func New(opts Options, cb Callback) *Detector {
	if opts.AmplitudeThreshold <= 0 {
		opts.AmplitudeThreshold = DefaultAmplitudeThreshold
	}
	if opts.SpeechTimeout <= 0 {
		opts.SpeechTimeout = DefaultSpeechTimeout
	}
	if opts.MaxSpeechLength <= 0 {
		opts.MaxSpeechLength = DefaultMaxSpeechLength
	}
	return &Detector{
		opts:     opts,
		callback: cb,
		now:      time.Now,
	}
}

// SetClock 替换时钟，测试用
func (d *Detector) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// SetCallback 替换回调
func (d *Detector) SetCallback(cb Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = cb
}

// Hearing 当前是否处于一段语音中
func (d *Detector) Hearing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hearing
}

// Process 处理一帧PCM数据
func (d *Detector) Process(pcm []int16) {
	d.mu.Lock()
	now := d.now()
	cb := d.callback
	voice := IsHearingVoice(pcm, d.opts.AmplitudeThreshold)

	var start, end bool
	var emit bool
	switch {
	case voice:
		if !d.hearing {
			d.hearing = true
			d.voiceStarted = now
			start = true
		}
		emit = true
		d.lastVoiceHeard = now
		if now.Sub(d.voiceStarted) > d.opts.MaxSpeechLength {
			d.hearing = false
			end = true
		}
	case d.hearing:
		emit = true
		if now.Sub(d.lastVoiceHeard) > d.opts.SpeechTimeout {
			d.hearing = false
			end = true
		}
	}
	sampleRate := d.opts.SampleRate
	d.mu.Unlock()

	// 回调在锁外执行，回调里可以再调用Dismiss
	if start && cb.OnVoiceStart != nil {
		cb.OnVoiceStart(sampleRate)
	}
	if emit && cb.OnVoice != nil {
		cb.OnVoice(pcm)
	}
	if end && cb.OnVoiceEnd != nil {
		cb.OnVoiceEnd()
	}
}

// Dismiss 立即结束当前语音
func (d *Detector) Dismiss() {
	d.mu.Lock()
	if !d.hearing {
		d.mu.Unlock()
		return
	}
	d.hearing = false
	cb := d.callback
	d.mu.Unlock()

	if cb.OnVoiceEnd != nil {
		cb.OnVoiceEnd()
	}
}

// IsHearingVoice 任一采样的绝对值超过阈值即认为有声音
func IsHearingVoice(pcm []int16, threshold int) bool {
	for _, s := range pcm {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > threshold {
			return true
		}
	}
	return false
}
