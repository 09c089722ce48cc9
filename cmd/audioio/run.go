package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justa-cai/audioio/internal/audio"
	"github.com/justa-cai/audioio/internal/client"
	"github.com/justa-cai/audioio/internal/config"
	"github.com/justa-cai/audioio/internal/options"
	"github.com/justa-cai/audioio/internal/protocol"
	"github.com/justa-cai/audioio/internal/speech"
	"github.com/justa-cai/audioio/internal/vad"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	useVAD        bool
	pingInterval  time.Duration
	reconnectWait time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "打开语音通道并开始交互",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSession(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().BoolVar(&useVAD, "vad", false, "由语音活动检测自动开始和结束识别")
	runCmd.Flags().DurationVar(&pingInterval, "ping-interval", 30*time.Second, "心跳间隔")
	runCmd.Flags().DurationVar(&reconnectWait, "reconnect-wait", time.Second, "断线后重连等待时间")
}

// session 一次交互会话用到的组件
type session struct {
	cfg    *config.Config
	engine *audio.Engine
	client *client.Client
	speech *speech.Service

	// disconnected 只在音频通道关闭时触发，服务器错误消息不会断开通道
	disconnected chan struct{}
}

func newSession(cfg *config.Config, engine *audio.Engine, p protocol.Protocol) (*session, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	c := client.New(p)
	c.SetDeviceID(cfg.DeviceID)
	c.SetClientID(cfg.ClientID)
	c.SetToken(cfg.Token)
	if err := c.SetOptions(opts); err != nil {
		return nil, err
	}
	c.SetAudioParams(protocol.AudioParams{
		Format:        "opus",
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		FrameDuration: cfg.FrameDuration,
	})

	s := &session{
		cfg:    cfg,
		engine: engine,
		client: c,
		speech: speech.NewService(c),

		disconnected: make(chan struct{}, 1),
	}

	c.SetOnStateChanged(func(oldState, newState string) {
		logrus.Debugf("客户端状态: %s -> %s", oldState, newState)
	})
	c.SetOnSpeakText(func(text string) {
		fmt.Printf("🤖 %s\n", text)
	})
	c.SetOnAudioData(func(data []byte) {
		if err := engine.PlayEncoded(data); err != nil {
			logrus.Debugf("播放音频失败: %v", err)
		}
	})
	c.SetOnRoleChanged(func(role options.ClientRole) {
		if err := engine.SetClientRole(role); err != nil {
			logrus.Errorf("音频引擎切换角色失败: %v", err)
		}
	})
	c.SetOnAudioChannelClosed(func() {
		logrus.Warn("音频通道已关闭")
		select {
		case s.disconnected <- struct{}{}:
		default:
		}
	})
	c.SetOnNetworkError(func(err error) {
		logrus.Errorf("网络错误: %v", err)
	})

	s.speech.AddListener(speech.ListenerFunc(func(text string, isFinal bool) {
		if isFinal {
			fmt.Printf("🗣  %s\n", text)
		} else {
			logrus.Debugf("识别中: %s", text)
		}
	}))
	return s, nil
}

func runSession(ctx context.Context, cfg *config.Config) error {
	if cfg.Token == "" {
		return errors.New("设备未激活，请先运行 audioio activate")
	}
	resolveIdentity(cfg)

	engine, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	describeOptions(engine.Options())
	if !engine.Options().CRMode.SDKCapture() {
		logrus.Warn("外部采集模式下run不会录音，识别文件请使用 audioio recognize")
	}

	proto := protocol.NewWebsocketProtocol()
	proto.SetSkipTLSVerify(cfg.SkipTLSVerify)

	s, err := newSession(cfg, engine, proto)
	if err != nil {
		return err
	}

	var detector *vad.Detector
	if useVAD {
		detector = vad.New(cfg.VADOptions(), vad.Callback{})
	}
	s.speech.Bind(engine, detector)

	if err := s.client.OpenAudioChannel(ctx, cfg.ServerURL); err != nil {
		return err
	}
	defer s.client.CloseAudioChannel()
	go s.client.KeepAlive(ctx, pingInterval)

	if err := engine.Start(); err != nil {
		return err
	}

	printKeyHelp()
	enableRawInput()
	defer restoreTerminal()
	keys := make(chan byte)
	go readKeys(ctx, keys)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("收到退出信号，正在退出...")
			return nil
		case <-s.disconnected:
			if !s.reconnect(ctx) {
				return nil
			}
		case key, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if quit := s.handleKey(key); quit {
				logrus.Info("收到退出命令，正在退出...")
				return nil
			}
		}
	}
}

// reconnect 按固定间隔重连直到成功或ctx取消
func (s *session) reconnect(ctx context.Context) bool {
	if s.client.IsAudioChannelOpened() {
		return true
	}
	if err := s.speech.FinishRecognizing(); err != nil {
		logrus.Debugf("结束识别失败: %v", err)
	}
	for {
		logrus.Infof("准备在%v后尝试重新连接...", reconnectWait)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(reconnectWait):
		}
		if err := s.client.OpenAudioChannel(ctx, s.cfg.ServerURL); err != nil {
			logrus.Errorf("重新连接失败: %v", err)
			continue
		}
		logrus.Info("✅ 重新连接成功")
		go s.client.KeepAlive(ctx, pingInterval)
		return true
	}
}

func printKeyHelp() {
	fmt.Println("按键操作:")
	fmt.Println("  f - 开始识别")
	fmt.Println("  s - 结束识别")
	fmt.Println("  a - 打断播放")
	fmt.Println("  r - 切换观众/主播角色")
	fmt.Println("  q - 退出程序")
}

// handleKey 处理一次按键，返回true表示退出
func (s *session) handleKey(key byte) bool {
	switch key {
	case 'q', 'Q':
		return true
	case 'f', 'F':
		if s.client.GetState() == client.StateSpeaking {
			if err := s.client.SendAbortSpeaking("wake_word_detected"); err != nil {
				logrus.Errorf("打断播放失败: %v", err)
			}
		}
		if err := s.speech.StartRecognizing(s.engine.SampleRate()); err != nil {
			logrus.Errorf("%v", err)
			if errors.Is(err, client.ErrAudienceCannotSend) {
				fmt.Println("⚠️ 观众角色不能发言，按 r 切换为主播")
			}
		}
	case 's', 'S':
		if err := s.speech.FinishRecognizing(); err != nil {
			logrus.Errorf("%v", err)
		}
	case 'a', 'A':
		if err := s.client.SendAbortSpeaking("user_interrupt"); err != nil {
			logrus.Errorf("打断播放失败: %v", err)
		}
	case 'r', 'R':
		next := toggleRole(s.client.Options().ClientRole)
		if next == options.ClientRoleAudience {
			if err := s.speech.FinishRecognizing(); err != nil {
				logrus.Debugf("结束识别失败: %v", err)
			}
		}
		if err := s.client.SetClientRole(next); err != nil {
			logrus.Errorf("切换角色失败: %v", err)
			break
		}
		fmt.Printf("当前角色: %s\n", next)
	}
	return false
}

func toggleRole(role options.ClientRole) options.ClientRole {
	if role == options.ClientRoleAudience {
		return options.ClientRoleBroadcast
	}
	return options.ClientRoleAudience
}
