package audio

import (
	"math"
	"sync"
	"time"
)

const (
	defaultDCPole          = 0.995
	defaultDuckGain        = 0.1
	defaultDuckHold        = 300 * time.Millisecond
	defaultRenderThreshold = 500.0 // 渲染信号RMS超过该值视为扬声器正在发声
)

// VoiceProcessor 语音处理单元（VPIO）的软件实现：
// 去直流 + 半双工回声抑制（扬声器发声期间压低采集增益）
type VoiceProcessor struct {
	mu sync.Mutex

	pole      float64
	prevIn    float64
	prevOut   float64
	duckGain  float64
	duckHold  time.Duration
	threshold float64

	lastRender time.Time
	now        func() time.Time
}

// NewVoiceProcessor 创建语音处理器
func NewVoiceProcessor() *VoiceProcessor {
	return &VoiceProcessor{
		pole:      defaultDCPole,
		duckGain:  defaultDuckGain,
		duckHold:  defaultDuckHold,
		threshold: defaultRenderThreshold,
		now:       time.Now,
	}
}

// ObserveRender 记录即将送往扬声器的数据，作为回声参考
func (p *VoiceProcessor) ObserveRender(pcm []int16) {
	if rms(pcm) < p.threshold {
		return
	}
	p.mu.Lock()
	p.lastRender = p.now()
	p.mu.Unlock()
}

// ProcessCapture 处理一帧采集数据，返回新的切片
func (p *VoiceProcessor) ProcessCapture(pcm []int16) []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()

	gain := 1.0
	if !p.lastRender.IsZero() && p.now().Sub(p.lastRender) < p.duckHold {
		gain = p.duckGain
	}

	out := make([]int16, len(pcm))
	for i, s := range pcm {
		x := float64(s)
		y := x - p.prevIn + p.pole*p.prevOut
		p.prevIn = x
		p.prevOut = y
		out[i] = clampInt16(y * gain)
	}
	return out
}

// Reset 清除滤波器和回声参考状态
func (p *VoiceProcessor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prevIn, p.prevOut = 0, 0
	p.lastRender = time.Time{}
}

func rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
