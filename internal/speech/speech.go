// Package speech 在语音客户端之上提供识别服务：
// 采集的音频帧送往服务器，识别结果分发给监听者。
package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justa-cai/audioio/internal/audio"
	"github.com/justa-cai/audioio/internal/client"
	"github.com/justa-cai/audioio/internal/vad"
	"github.com/sirupsen/logrus"
)

// ErrNotBound RecognizeStream需要先Bind音频引擎
var ErrNotBound = errors.New("识别服务未绑定音频引擎")

// Listener 识别结果监听者
type Listener interface {
	OnSpeechRecognized(text string, isFinal bool)
}

// ListenerFunc 函数适配为Listener
type ListenerFunc func(text string, isFinal bool)

func (f ListenerFunc) OnSpeechRecognized(text string, isFinal bool) { f(text, isFinal) }

// Transport 识别服务依赖的客户端能力，由*client.Client实现
type Transport interface {
	SendStartListening(mode string) error
	SendStopListening() error
	SendAudioData(data []byte) error
	IsAudioChannelOpened() bool
	GetState() string
	SetOnRecognizedText(callback func(text string, isFinal bool))
}

var _ Transport = (*client.Client)(nil)

// Service 语音识别服务
type Service struct {
	transport Transport

	mu          sync.Mutex
	listeners   []Listener
	recognizing bool
	sampleRate  int
	mode        string
	engine      *audio.Engine
	detector    *vad.Detector
}

// NewService 创建识别服务并接管transport的识别结果回调
func NewService(t Transport) *Service {
	s := &Service{
		transport: t,
		mode:      client.ListenModeManual,
	}
	t.SetOnRecognizedText(s.dispatch)
	return s
}

// AddListener 添加监听者
func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener 移除监听者。不可比较的监听者（如ListenerFunc）无法移除。
func (s *Service) RemoveListener(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if sameListener(existing, l) {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// sameListener 比较两个监听者，动态类型不可比较时返回false
func sameListener(a, b Listener) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func (s *Service) dispatch(text string, isFinal bool) {
	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	logrus.Debugf("识别结果: %q (final=%v)", text, isFinal)
	for _, l := range listeners {
		l.OnSpeechRecognized(text, isFinal)
	}
}

// Ready 音频通道已打开
func (s *Service) Ready() bool {
	return s.transport.IsAudioChannelOpened()
}

// IsRecognizing 是否正在识别。客户端因角色降级、TTS开始或断线离开
// 监听状态后，即使没有调用FinishRecognizing也视为已结束。
func (s *Service) IsRecognizing() bool {
	s.mu.Lock()
	recognizing := s.recognizing
	s.mu.Unlock()
	return recognizing && s.transport.GetState() == client.StateListening
}

// StartRecognizing 开始一次识别，服务未就绪时忽略
func (s *Service) StartRecognizing(sampleRate int) error {
	if !s.Ready() {
		logrus.Warn("识别服务未就绪，忽略开始识别")
		return nil
	}
	if s.IsRecognizing() {
		return nil
	}
	s.mu.Lock()
	s.recognizing = false
	mode := s.mode
	s.mu.Unlock()

	if err := s.transport.SendStartListening(mode); err != nil {
		return fmt.Errorf("开始识别失败: %w", err)
	}

	s.mu.Lock()
	s.recognizing = true
	s.sampleRate = sampleRate
	s.mu.Unlock()
	logrus.Infof("开始识别, 采样率=%d, 模式=%s", sampleRate, mode)
	return nil
}

// Recognize 识别中时转发一帧编码后的音频
func (s *Service) Recognize(frame []byte) error {
	if !s.IsRecognizing() {
		return nil
	}
	return s.transport.SendAudioData(frame)
}

// FinishRecognizing 结束识别，等待服务器返回最终结果
func (s *Service) FinishRecognizing() error {
	active := s.IsRecognizing()
	s.mu.Lock()
	s.recognizing = false
	s.mu.Unlock()
	if !active {
		return nil
	}

	if err := s.transport.SendStopListening(); err != nil && !errors.Is(err, client.ErrNotListening) {
		return fmt.Errorf("结束识别失败: %w", err)
	}
	logrus.Info("识别结束")
	return nil
}

// Bind 把音频引擎的编码帧接到识别服务。
// detector不为nil时由语音活动检测自动开始和结束识别。
func (s *Service) Bind(engine *audio.Engine, detector *vad.Detector) {
	s.mu.Lock()
	s.engine = engine
	s.detector = detector
	if detector != nil {
		s.mode = client.ListenModeAuto
	}
	s.mu.Unlock()

	engine.SetFrameCallback(func(frame []byte) {
		if err := s.Recognize(frame); err != nil {
			logrus.Debugf("发送音频帧失败: %v", err)
		}
	})
	if detector == nil {
		return
	}

	engine.SetPCMCallback(detector.Process)
	detector.SetCallback(vad.Callback{
		OnVoiceStart: func(sampleRate int) {
			if err := s.StartRecognizing(sampleRate); err != nil {
				logrus.Errorf("%v", err)
			}
		},
		OnVoiceEnd: func() {
			if err := s.FinishRecognizing(); err != nil {
				logrus.Errorf("%v", err)
			}
		},
	})
}

// RecognizeStream 把整个WAV文件送入已绑定的引擎进行识别
func (s *Service) RecognizeStream(ctx context.Context, src *audio.WAVSource) error {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return ErrNotBound
	}

	if err := s.StartRecognizing(engine.SampleRate()); err != nil {
		return err
	}
	start := time.Now()
	runErr := src.Run(ctx, engine.PushExternalAudioFrame)
	if err := s.FinishRecognizing(); err != nil && runErr == nil {
		runErr = err
	}
	logrus.Debugf("音频流识别完成, 用时 %v", time.Since(start))
	return runErr
}
