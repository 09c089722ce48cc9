package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justa-cai/audioio/internal/options"
	"github.com/sirupsen/logrus"
)

// EngineOptions 音频引擎选项
type EngineOptions struct {
	Options       options.Options
	SampleRate    int           // 采样率
	ChannelCount  int           // 通道数
	FrameDuration int           // 帧持续时间（毫秒）
	RenderBuffer  time.Duration // 外部渲染缓冲时长
}

// Devices 引擎依赖的设备和编解码器。
// SDK采集需要Capturer，SDK渲染需要Renderer。
type Devices struct {
	Capturer Capturer
	Renderer Renderer
	Encoder  Encoder
	Decoder  Decoder
}

// Engine 按照采集/渲染模式路由音频数据的引擎。
//
// 采集方向：设备录音或外部推送的PCM -> 语音处理(VPIO) -> PCM回调 -> 编码 -> 帧回调。
// 渲染方向：编码数据 -> 解码 -> 设备播放或外部渲染缓冲区。
type Engine struct {
	mu        sync.Mutex
	opts      EngineOptions
	devices   Devices
	processor *VoiceProcessor
	renderBuf *RenderBuffer
	framer    *framer

	onFrame func([]byte)
	onPCM   func([]int16)

	running bool
	closed  bool
}

// NewEngine 创建音频引擎
func NewEngine(opts EngineOptions, devices Devices) (*Engine, error) {
	if err := opts.Options.Validate(); err != nil {
		return nil, err
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.ChannelCount <= 0 {
		opts.ChannelCount = DefaultChannelCount
	}
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = DefaultFrameDuration
	}
	if opts.RenderBuffer <= 0 {
		opts.RenderBuffer = time.Second
	}

	frameSize := FrameSamples(opts.SampleRate, opts.ChannelCount, opts.FrameDuration)
	if frameSize <= 0 {
		return nil, fmt.Errorf("帧时长%dms在%dHz下不足一个采样", opts.FrameDuration, opts.SampleRate)
	}

	mode := opts.Options.CRMode
	if mode.SDKCapture() && devices.Capturer == nil {
		return nil, fmt.Errorf("%s 模式需要录音设备", mode)
	}
	if mode.SDKRender() && devices.Renderer == nil {
		return nil, fmt.Errorf("%s 模式需要播放设备", mode)
	}
	if devices.Encoder == nil || devices.Decoder == nil {
		return nil, errors.New("缺少编解码器")
	}

	e := &Engine{
		opts:    opts,
		devices: devices,
		framer:  newFramer(frameSize),
	}
	if opts.Options.IOUnit == options.IOUnitTypeVPIO {
		e.processor = NewVoiceProcessor()
	}
	if !mode.SDKRender() {
		e.renderBuf = NewRenderBuffer(RenderBufferSamples(opts.SampleRate, opts.ChannelCount, opts.RenderBuffer))
	}

	logrus.Debugf("音频引擎已创建: %s, 采样率=%d, 通道数=%d, 帧时长=%dms",
		opts.Options, opts.SampleRate, opts.ChannelCount, opts.FrameDuration)
	return e, nil
}

// SetFrameCallback 设置编码后音频帧回调
func (e *Engine) SetFrameCallback(cb func([]byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFrame = cb
}

// SetPCMCallback 设置处理后PCM帧回调（无论角色如何都会回调）
func (e *Engine) SetPCMCallback(cb func([]int16)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPCM = cb
}

// Options 当前选项
func (e *Engine) Options() options.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.Options
}

// SampleRate 获取采样率
func (e *Engine) SampleRate() int { return e.opts.SampleRate }

// ChannelCount 获取通道数
func (e *Engine) ChannelCount() int { return e.opts.ChannelCount }

// FrameDuration 获取帧持续时间（毫秒）
func (e *Engine) FrameDuration() int { return e.opts.FrameDuration }

// FrameSamples 一帧的采样数（含所有通道）
func (e *Engine) FrameSamples() int { return e.framer.size }

// SetClientRole 运行时切换角色
func (e *Engine) SetClientRole(role options.ClientRole) error {
	if !role.Valid() {
		return fmt.Errorf("ClientRole %d: %w", int32(role), options.ErrInvalidValue)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.opts.Options.ClientRole = role
	logrus.Infof("音频引擎角色切换为 %s (生效角色 %s)", role, e.opts.Options.EffectiveRole())
	return nil
}

// Start 启动采集和渲染
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.running {
		e.mu.Unlock()
		return nil
	}
	// 先标记运行，设备回调线程才能送入数据
	e.running = true
	mode := e.opts.Options.CRMode
	devices := e.devices
	e.mu.Unlock()

	// 设备操作不持有锁，录音线程会回调handleCaptured
	if mode.SDKRender() {
		if err := devices.Renderer.Start(); err != nil {
			e.setRunning(false)
			return fmt.Errorf("启动播放设备失败: %w", err)
		}
	}
	if mode.SDKCapture() {
		devices.Capturer.SetPCMDataCallback(func(pcm []int16, n int) {
			if n > len(pcm) {
				n = len(pcm)
			}
			e.handleCaptured(pcm[:n])
		})
		if err := devices.Capturer.StartRecording(); err != nil {
			if mode.SDKRender() {
				_ = devices.Renderer.Stop()
			}
			e.setRunning(false)
			return fmt.Errorf("启动录音设备失败: %w", err)
		}
	}

	logrus.Infof("音频引擎已启动: %s", mode)
	return nil
}

func (e *Engine) setRunning(running bool) {
	e.mu.Lock()
	e.running = running
	e.mu.Unlock()
}

// Stop 停止采集和渲染
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	mode := e.opts.Options.CRMode
	devices := e.devices
	e.framer.reset()
	e.mu.Unlock()

	var errs []error
	if mode.SDKCapture() {
		if err := devices.Capturer.StopRecording(); err != nil {
			errs = append(errs, fmt.Errorf("停止录音失败: %w", err))
		}
	}
	if mode.SDKRender() {
		if err := devices.Renderer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("停止播放失败: %w", err))
		}
	}
	if e.processor != nil {
		e.processor.Reset()
	}
	logrus.Debug("音频引擎已停止")
	return errors.Join(errs...)
}

// Close 关闭引擎并释放设备
func (e *Engine) Close() error {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("关闭音频引擎时发生异常: %v", r)
		}
	}()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	err := e.Stop()

	e.mu.Lock()
	e.closed = true
	devices := e.devices
	e.mu.Unlock()

	if devices.Capturer != nil {
		if cerr := devices.Capturer.Close(); cerr != nil {
			logrus.Warnf("关闭录音器失败: %v", cerr)
		}
	}
	if devices.Renderer != nil {
		if cerr := devices.Renderer.Close(); cerr != nil {
			logrus.Warnf("关闭播放器失败: %v", cerr)
		}
	}
	if e.renderBuf != nil {
		e.renderBuf.Reset()
	}
	logrus.Debug("音频引擎已关闭")
	return err
}

// IsRunning 引擎是否在运行
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// PushExternalAudioFrame 外部采集模式下由宿主程序推送PCM数据
func (e *Engine) PushExternalAudioFrame(pcm []int16, timestamp time.Time) error {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return ErrEngineClosed
	case e.opts.Options.CRMode.SDKCapture():
		e.mu.Unlock()
		return ErrCaptureNotExternal
	case !e.running:
		e.mu.Unlock()
		return ErrEngineNotStarted
	}
	e.mu.Unlock()

	logrus.Tracef("外部音频帧: %d个采样, 时间戳=%s", len(pcm), timestamp.Format(time.RFC3339Nano))
	e.handleCaptured(pcm)
	return nil
}

// handleCaptured 采集方向的统一入口
func (e *Engine) handleCaptured(pcm []int16) {
	e.mu.Lock()
	if !e.running || e.closed {
		e.mu.Unlock()
		return
	}
	var frames [][]int16
	e.framer.push(pcm, func(frame []int16) {
		frames = append(frames, frame)
	})
	processor := e.processor
	transmits := e.opts.Options.Transmits()
	onPCM := e.onPCM
	onFrame := e.onFrame
	encoder := e.devices.Encoder
	e.mu.Unlock()

	for _, frame := range frames {
		if processor != nil {
			frame = processor.ProcessCapture(frame)
		}
		if onPCM != nil {
			onPCM(frame)
		}
		if !transmits || onFrame == nil {
			continue
		}
		encoded, err := encoder.Encode(frame)
		if err != nil {
			logrus.Errorf("编码音频帧失败: %v", err)
			continue
		}
		onFrame(encoded)
	}
}

// PlayEncoded 解码并播放远端音频
func (e *Engine) PlayEncoded(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	decoder := e.devices.Decoder
	channels := e.opts.ChannelCount
	e.mu.Unlock()

	pcmBuffer := make([]int16, MaxOpusFrameSize*channels)
	n, err := decoder.Decode(data, pcmBuffer)
	if err != nil {
		return fmt.Errorf("解码音频数据失败: %w", err)
	}
	total := n * channels
	if total > len(pcmBuffer) {
		total = len(pcmBuffer)
	}
	return e.PlayPCM(pcmBuffer[:total])
}

// PlayPCM 按渲染模式路由PCM数据
func (e *Engine) PlayPCM(pcm []int16) error {
	if len(pcm) == 0 {
		return nil
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	processor := e.processor
	sdkRender := e.opts.Options.CRMode.SDKRender()
	renderer := e.devices.Renderer
	renderBuf := e.renderBuf
	e.mu.Unlock()

	if processor != nil {
		processor.ObserveRender(pcm)
	}
	if sdkRender {
		renderer.QueuePCMAudio(pcm)
		return nil
	}
	if dropped := renderBuf.WritePCM(pcm); dropped > 0 {
		logrus.Debugf("外部渲染缓冲区已满，丢弃%d个采样", dropped)
	}
	return nil
}

// PullPlaybackAudioFrame 外部渲染模式下宿主程序拉取播放数据。
// 不足的部分填充静音，返回实际有效的采样数。
func (e *Engine) PullPlaybackAudioFrame(buf []int16) (int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, ErrEngineClosed
	}
	if e.opts.Options.CRMode.SDKRender() {
		e.mu.Unlock()
		return 0, ErrRenderNotExternal
	}
	renderBuf := e.renderBuf
	e.mu.Unlock()

	n := renderBuf.ReadPCM(buf)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return n, nil
}

// PendingPlayback 外部渲染缓冲区中待拉取的采样数
func (e *Engine) PendingPlayback() int {
	if e.renderBuf == nil {
		return 0
	}
	return e.renderBuf.Len()
}
