package native

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/oto"
	"github.com/justa-cai/audioio/internal/audio"
	"github.com/sirupsen/logrus"
)

// Oto在一个进程内只能创建一个Context
var (
	otoMu     sync.Mutex
	otoInited bool
)

// PlayerOptions 播放器选项
type PlayerOptions struct {
	SampleRate      int
	ChannelCount    int
	FramesPerBuffer int
}

// Player 使用Oto播放PCM数据，实现audio.Renderer
type Player struct {
	context         *oto.Context
	mutex           sync.Mutex // 状态互斥锁
	queue           [][]int16  // PCM数据队列
	queueMutex      sync.Mutex
	isPlaying       bool
	stopChan        chan struct{}
	done            chan struct{}
	sampleRate      int
	channelCount    int
	framesPerBuffer int
	dummyMode       bool // 没有声卡时只按实时节奏消费队列
}

var _ audio.Renderer = (*Player)(nil)

// NewPlayerWithOptions 创建Oto播放器
func NewPlayerWithOptions(options PlayerOptions) (*Player, error) {
	if options.SampleRate <= 0 {
		options.SampleRate = audio.DefaultSampleRate
	}
	if options.ChannelCount <= 0 {
		options.ChannelCount = audio.DefaultChannelCount
	}
	if options.FramesPerBuffer <= 0 {
		options.FramesPerBuffer = options.SampleRate * audio.DefaultFrameDuration / 1000
	}

	otoMu.Lock()
	defer otoMu.Unlock()
	if otoInited {
		return nil, errors.New("Oto Context 已初始化，不能重复创建")
	}
	ctx, err := oto.NewContext(options.SampleRate, options.ChannelCount, 2, options.FramesPerBuffer*options.ChannelCount*2)
	if err != nil {
		return nil, fmt.Errorf("初始化Oto失败: %w", err)
	}
	otoInited = true

	return &Player{
		context:         ctx,
		queue:           make([][]int16, 0, 100),
		sampleRate:      options.SampleRate,
		channelCount:    options.ChannelCount,
		framesPerBuffer: options.FramesPerBuffer,
	}, nil
}

// NewPlayer 创建播放器，失败时退化为哑模式
func NewPlayer(sampleRate, channelCount, frameDuration int) *Player {
	framesPerBuffer := sampleRate * frameDuration / 1000
	player, err := NewPlayerWithOptions(PlayerOptions{
		SampleRate:      sampleRate,
		ChannelCount:    channelCount,
		FramesPerBuffer: framesPerBuffer,
	})
	if err != nil {
		logrus.Errorf("创建音频播放器失败: %v, 将以哑模式运行", err)
		return &Player{
			sampleRate:      sampleRate,
			channelCount:    channelCount,
			framesPerBuffer: framesPerBuffer,
			dummyMode:       true,
		}
	}
	return player
}

// Start 开始播放
func (p *Player) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.isPlaying {
		return nil
	}
	p.isPlaying = true
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	if p.dummyMode {
		go p.drainLoop(p.stopChan, p.done)
	} else {
		go p.otoPlayLoop(p.stopChan, p.done)
	}
	return nil
}

// otoPlayLoop 持续把队列中的PCM写入Oto
func (p *Player) otoPlayLoop(stop, done chan struct{}) {
	defer close(done)
	player := p.context.NewPlayer()
	defer player.Close()
	for {
		select {
		case <-stop:
			return
		default:
		}
		pcm := p.dequeue()
		if pcm == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if _, err := player.Write(audio.PCMToBytes(pcm)); err != nil {
			logrus.Errorf("写入音频数据失败: %v", err)
		}
	}
}

// drainLoop 哑模式下按帧时长丢弃数据，模拟播放
func (p *Player) drainLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Duration(p.framesPerBuffer) * time.Second / time.Duration(p.sampleRate))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.dequeue()
		}
	}
}

func (p *Player) dequeue() []int16 {
	p.queueMutex.Lock()
	defer p.queueMutex.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	pcm := p.queue[0]
	p.queue = p.queue[1:]
	return pcm
}

// Stop 停止播放并清空队列
func (p *Player) Stop() error {
	p.mutex.Lock()
	if !p.isPlaying {
		p.mutex.Unlock()
		return nil
	}
	p.isPlaying = false
	close(p.stopChan)
	done := p.done
	p.mutex.Unlock()

	p.queueMutex.Lock()
	p.queue = nil
	p.queueMutex.Unlock()

	// Oto的Write可能阻塞，等待超时后放弃
	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		logrus.Warn("停止音频流操作超时")
		return errors.New("停止音频流操作超时")
	}
}

// QueuePCMAudio 将PCM数据添加到播放队列
func (p *Player) QueuePCMAudio(pcmData []int16) {
	if len(pcmData) == 0 {
		return
	}
	dataCopy := make([]int16, len(pcmData))
	copy(dataCopy, pcmData)

	p.queueMutex.Lock()
	defer p.queueMutex.Unlock()
	p.queue = append(p.queue, dataCopy)
}

// IsPlaying 是否正在播放
func (p *Player) IsPlaying() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.isPlaying
}

// IsDummyMode 是否在哑模式下运行
func (p *Player) IsDummyMode() bool {
	return p.dummyMode
}

// QueueLength 当前队列长度
func (p *Player) QueueLength() int {
	p.queueMutex.Lock()
	defer p.queueMutex.Unlock()
	return len(p.queue)
}

// Close 停止播放并释放资源。Oto Context保留到进程退出。
func (p *Player) Close() error {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Errorf("关闭播放器时发生异常: %v", rec)
		}
	}()
	return p.Stop()
}
