package main

import (
	"fmt"

	"github.com/justa-cai/audioio/internal/audio"
	"github.com/justa-cai/audioio/internal/audio/native"
	"github.com/justa-cai/audioio/internal/config"
	"github.com/sirupsen/logrus"
)

// buildEngine 按采集/渲染模式只创建需要的本机设备
func buildEngine(cfg *config.Config) (*audio.Engine, func(), error) {
	engineOpts, err := cfg.EngineOptions()
	if err != nil {
		return nil, nil, err
	}
	mode := engineOpts.Options.CRMode

	codec, err := native.NewOpusCodec(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, nil, fmt.Errorf("创建Opus编解码器失败: %w", err)
	}

	devices := audio.Devices{Encoder: codec, Decoder: codec}
	if mode.SDKCapture() {
		devices.Capturer = native.NewRecorder(native.RecorderOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
		})
	}
	if mode.SDKRender() {
		player := native.NewPlayer(cfg.SampleRate, cfg.Channels, cfg.FrameDuration)
		if player.IsDummyMode() {
			logrus.Warn("没有可用的播放设备，收到的音频将被丢弃")
		}
		devices.Renderer = player
	}

	engine, err := audio.NewEngine(engineOpts, devices)
	if err != nil {
		codec.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := engine.Close(); err != nil {
			logrus.Warnf("关闭音频引擎失败: %v", err)
		}
		codec.Close()
	}
	return engine, cleanup, nil
}
