package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/justa-cai/audioio/internal/audio"
	"github.com/justa-cai/audioio/internal/config"
	"github.com/justa-cai/audioio/internal/options"
	"github.com/justa-cai/audioio/internal/protocol"
	"github.com/justa-cai/audioio/internal/speech"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	realtime   bool
	resultWait time.Duration
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <wav>",
	Short: "识别WAV文件中的语音",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRecognize(ctx, cfg, args[0])
	},
}

func init() {
	recognizeCmd.Flags().BoolVar(&realtime, "realtime", true, "按实时节奏推送音频")
	recognizeCmd.Flags().DurationVar(&resultWait, "wait", 5*time.Second, "推送结束后等待最终结果的时间")
}

// externalCaptureMode 文件识别总是外部采集，渲染方式保持不变
func externalCaptureMode(mode options.CRMode) options.CRMode {
	switch mode {
	case options.CRModeSDKCaptureSDKRender:
		return options.CRModeExterCaptureSDKRender
	case options.CRModeSDKCaptureExterRender:
		return options.CRModeExterCaptureExterRender
	}
	return mode
}

func runRecognize(ctx context.Context, cfg *config.Config, path string) error {
	if cfg.Token == "" {
		return errors.New("设备未激活，请先运行 audioio activate")
	}
	resolveIdentity(cfg)

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	if !opts.Transmits() {
		return fmt.Errorf("%s 角色不能发送音频", opts.ClientRole)
	}
	if mode := externalCaptureMode(opts.CRMode); mode != opts.CRMode {
		logrus.Infof("文件识别使用 %s 模式", mode)
		opts.CRMode = mode
		cfg.SetOptions(opts)
	}

	src, err := audio.OpenWAVSource(path, cfg.SampleRate, cfg.Channels, cfg.FrameDuration)
	if err != nil {
		return err
	}
	defer src.Close()
	src.SetRealtime(realtime)

	engine, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	proto := protocol.NewWebsocketProtocol()
	proto.SetSkipTLSVerify(cfg.SkipTLSVerify)
	s, err := newSession(cfg, engine, proto)
	if err != nil {
		return err
	}
	s.speech.Bind(engine, nil)

	final := make(chan string, 1)
	var once sync.Once
	s.speech.AddListener(speech.ListenerFunc(func(text string, isFinal bool) {
		if isFinal {
			once.Do(func() { final <- text })
		}
	}))

	if err := s.client.OpenAudioChannel(ctx, cfg.ServerURL); err != nil {
		return err
	}
	defer s.client.CloseAudioChannel()

	if err := engine.Start(); err != nil {
		return err
	}
	if err := s.speech.RecognizeStream(ctx, src); err != nil {
		return err
	}

	select {
	case <-final:
	case <-time.After(resultWait):
		logrus.Warnf("%v内没有收到最终识别结果", resultWait)
	case <-ctx.Done():
	}
	return nil
}
