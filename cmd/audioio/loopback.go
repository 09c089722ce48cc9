package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/justa-cai/audioio/internal/audio"
	"github.com/justa-cai/audioio/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	loopInput    string
	loopOutput   string
	loopDuration time.Duration
)

var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "本地回环：采集的音频经Opus编解码后直接渲染",
	Long: `loopback 不连接服务器，按配置的采集/渲染模式把采集到的音频
编码、解码后送去渲染。外部采集模式从 --input 读取WAV，
外部渲染模式把拉取的播放数据写到 --output。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runLoopback(ctx, cfg)
	},
}

func init() {
	loopbackCmd.Flags().StringVar(&loopInput, "input", "", "外部采集模式下读取的WAV文件")
	loopbackCmd.Flags().StringVar(&loopOutput, "output", "", "外部渲染模式下写入的WAV文件")
	loopbackCmd.Flags().DurationVar(&loopDuration, "duration", 5*time.Second, "回环时长")
}

func runLoopback(ctx context.Context, cfg *config.Config) error {
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	if !opts.CRMode.SDKCapture() && loopInput == "" {
		return fmt.Errorf("%s 模式需要 --input", opts.CRMode)
	}
	if !opts.CRMode.SDKRender() && loopOutput == "" {
		return fmt.Errorf("%s 模式需要 --output", opts.CRMode)
	}

	engine, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	describeOptions(engine.Options())

	var frames atomic.Int64
	engine.SetFrameCallback(func(frame []byte) {
		frames.Add(1)
		if err := engine.PlayEncoded(frame); err != nil {
			logrus.Debugf("回放失败: %v", err)
		}
	})
	if err := engine.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, loopDuration)
	defer cancel()

	// 设备采集持续到超时，文件采集在文件结束时完成
	captureDone := make(chan struct{})
	var captureErr error
	if opts.CRMode.SDKCapture() {
		go func() {
			<-ctx.Done()
			close(captureDone)
		}()
	} else {
		src, err := audio.OpenWAVSource(loopInput, cfg.SampleRate, cfg.Channels, cfg.FrameDuration)
		if err != nil {
			return err
		}
		defer src.Close()
		go func() {
			captureErr = src.Run(ctx, engine.PushExternalAudioFrame)
			close(captureDone)
		}()
	}

	if opts.CRMode.SDKRender() {
		<-ctx.Done()
	} else if err := writeLoopback(ctx, engine, captureDone); err != nil {
		return err
	}

	<-captureDone
	if captureErr != nil && !errors.Is(captureErr, context.DeadlineExceeded) && !errors.Is(captureErr, context.Canceled) {
		return captureErr
	}
	logrus.Infof("回环结束，共编码%d帧", frames.Load())
	return nil
}

// writeLoopback 把外部渲染缓冲区的数据按采集节奏写入WAV
func writeLoopback(ctx context.Context, engine *audio.Engine, captureDone <-chan struct{}) error {
	f, err := os.Create(loopOutput)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}
	defer f.Close()

	pull := func(buf []int16) (int, error) {
		for engine.PendingPlayback() < len(buf) {
			select {
			case <-ctx.Done():
				return engine.PullPlaybackAudioFrame(buf)
			case <-captureDone:
				return engine.PullPlaybackAudioFrame(buf)
			case <-time.After(5 * time.Millisecond):
			}
		}
		return engine.PullPlaybackAudioFrame(buf)
	}
	if err := audio.WriteWAV(f, engine.SampleRate(), engine.ChannelCount(), loopDuration, pull); err != nil {
		return err
	}
	logrus.Infof("回环音频已写入 %s", loopOutput)
	return nil
}
