package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/sirupsen/logrus"
)

const resampleQuality = 4

// WAVSource 从WAV文件读取音频，作为外部采集源。
// 自动重采样到目标采样率，按目标通道数输出交织PCM：
// 单声道时混合左右声道，双声道时保留左右声道。
type WAVSource struct {
	file       *os.File
	streamer   beep.StreamSeekCloser
	stream     beep.Streamer
	format     beep.Format
	sampleRate int
	channels   int
	frameSize  int // 每帧每通道的采样数
	buf        [][2]float64
	realtime   bool
}

// OpenWAVSource 打开WAV文件，frameDuration为每帧毫秒数
func OpenWAVSource(path string, sampleRate, channels, frameDuration int) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开WAV文件失败: %w", err)
	}
	src, err := NewWAVSource(f, sampleRate, channels, frameDuration)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.file = f
	return src, nil
}

// NewWAVSource 从任意Reader解码WAV
func NewWAVSource(r io.Reader, sampleRate, channels, frameDuration int) (*WAVSource, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannelCount
	}
	if channels > 2 {
		return nil, fmt.Errorf("不支持%d通道输出", channels)
	}
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("解码WAV失败: %w", err)
	}

	var stream beep.Streamer = streamer
	target := beep.SampleRate(sampleRate)
	if format.SampleRate != target {
		logrus.Debugf("WAV重采样: %d -> %d", format.SampleRate, target)
		stream = beep.Resample(resampleQuality, format.SampleRate, target, streamer)
	}

	frameSize := FrameSamples(sampleRate, 1, frameDuration)
	if frameSize <= 0 {
		return nil, fmt.Errorf("帧时长%dms在%dHz下不足一个采样", frameDuration, sampleRate)
	}
	return &WAVSource{
		streamer:   streamer,
		stream:     stream,
		format:     format,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  frameSize,
		buf:        make([][2]float64, frameSize),
	}, nil
}

// SetRealtime 按真实时间节奏推送
func (s *WAVSource) SetRealtime(realtime bool) {
	s.realtime = realtime
}

// Format 原始文件格式
func (s *WAVSource) Format() beep.Format {
	return s.format
}

// SampleRate 输出采样率
func (s *WAVSource) SampleRate() int {
	return s.sampleRate
}

// Channels 输出通道数
func (s *WAVSource) Channels() int {
	return s.channels
}

// ReadFrame 读取一帧交织PCM，最后一帧可能不足。读完返回io.EOF
func (s *WAVSource) ReadFrame() ([]int16, error) {
	filled := 0
	for filled < len(s.buf) {
		n, ok := s.stream.Stream(s.buf[filled:])
		filled += n
		if !ok {
			break
		}
	}
	if filled == 0 {
		if err := s.stream.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	pcm := make([]int16, filled*s.channels)
	for i := 0; i < filled; i++ {
		if s.channels == 1 {
			pcm[i] = clampInt16((s.buf[i][0] + s.buf[i][1]) / 2 * DefaultMaxValue)
			continue
		}
		pcm[2*i] = clampInt16(s.buf[i][0] * DefaultMaxValue)
		pcm[2*i+1] = clampInt16(s.buf[i][1] * DefaultMaxValue)
	}
	return pcm, nil
}

// Run 逐帧推送到push直到文件结束或ctx取消
func (s *WAVSource) Run(ctx context.Context, push func(pcm []int16, ts time.Time) error) error {
	frameDuration := time.Duration(s.frameSize) * time.Second / time.Duration(s.sampleRate)
	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(frameDuration)
		defer ticker.Stop()
	}

	frames := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pcm, err := s.ReadFrame()
		if err == io.EOF {
			logrus.Debugf("WAV读取完成，共%d帧", frames)
			return nil
		}
		if err != nil {
			return err
		}
		if err := push(pcm, time.Now()); err != nil {
			return err
		}
		frames++

		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// Close 关闭文件
func (s *WAVSource) Close() error {
	err := s.streamer.Close()
	if s.file != nil {
		if ferr := s.file.Close(); ferr != nil && err == nil {
			err = ferr
		}
	}
	return err
}

// WriteWAV 从pull拉取交织PCM并写成channels通道的WAV，共写入duration时长。
// 每次传给pull的缓冲区长度是采样帧数乘以通道数。
func WriteWAV(w io.WriteSeeker, sampleRate, channels int, duration time.Duration, pull func([]int16) (int, error)) error {
	if channels <= 0 {
		channels = DefaultChannelCount
	}
	if channels > 2 {
		return fmt.Errorf("不支持写入%d通道WAV", channels)
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: channels,
		Precision:   2,
	}

	var pullErr error
	var pcm []int16
	streamer := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		n := len(samples) * channels
		if cap(pcm) < n {
			pcm = make([]int16, n)
		}
		pcm = pcm[:n]
		if _, err := pull(pcm); err != nil {
			pullErr = err
			return 0, false
		}
		for i := range samples {
			left := float64(pcm[i*channels]) / (DefaultMaxValue + 1)
			right := float64(pcm[i*channels+channels-1]) / (DefaultMaxValue + 1)
			samples[i][0] = left
			samples[i][1] = right
		}
		return len(samples), true
	})

	if err := wav.Encode(w, beep.Take(format.SampleRate.N(duration), streamer), format); err != nil {
		return fmt.Errorf("写入WAV失败: %w", err)
	}
	return pullErr
}
