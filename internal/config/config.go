package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/justa-cai/audioio/internal/audio"
	"github.com/justa-cai/audioio/internal/options"
	"github.com/justa-cai/audioio/internal/vad"
	"github.com/spf13/viper"
)

const (
	configName = "audioio"
	envPrefix  = "AUDIOIO"
)

// VADConfig 语音活动检测参数
type VADConfig struct {
	AmplitudeThreshold int           `mapstructure:"amplitude_threshold"`
	SpeechTimeout      time.Duration `mapstructure:"speech_timeout"`
	MaxSpeechLength    time.Duration `mapstructure:"max_speech_length"`
}

// Config 客户端配置。四个枚举项既可以写名字也可以写整数。
type Config struct {
	ServerURL     string        `mapstructure:"server_url"`
	OTAURL        string        `mapstructure:"ota_url"`
	Token         string        `mapstructure:"token"`
	DeviceID      string        `mapstructure:"device_id"`
	ClientID      string        `mapstructure:"client_id"`
	SkipTLSVerify bool          `mapstructure:"skip_tls_verify"`
	LogLevel      string        `mapstructure:"log_level"`
	SampleRate    int           `mapstructure:"sample_rate"`
	Channels      int           `mapstructure:"channels"`
	FrameDuration int           `mapstructure:"frame_duration"`
	CRMode        string        `mapstructure:"cr_mode"`
	IOUnit        string        `mapstructure:"io_unit"`
	ChannelMode   string        `mapstructure:"channel_mode"`
	ClientRole    string        `mapstructure:"client_role"`
	VAD           VADConfig     `mapstructure:"vad"`
	RenderBuffer  time.Duration `mapstructure:"render_buffer"`
}

func Default() *Config {
	opts := options.Default()
	return &Config{
		ServerURL:     "wss://api.tenclass.net/xiaozhi/v1/",
		OTAURL:        "https://api.tenclass.net/xiaozhi/ota/",
		LogLevel:      "info",
		SampleRate:    audio.DefaultSampleRate,
		Channels:      audio.DefaultChannelCount,
		FrameDuration: audio.DefaultFrameDuration,
		CRMode:        opts.CRMode.String(),
		IOUnit:        opts.IOUnit.String(),
		ChannelMode:   opts.ChannelMode.String(),
		ClientRole:    opts.ClientRole.String(),
		VAD: VADConfig{
			AmplitudeThreshold: vad.DefaultAmplitudeThreshold,
			SpeechTimeout:      vad.DefaultSpeechTimeout,
			MaxSpeechLength:    vad.DefaultMaxSpeechLength,
		},
		RenderBuffer: time.Second,
	}
}

// Load 读取配置文件和AUDIOIO_前缀的环境变量，文件不存在时使用默认值
func Load(cfgFile string) (*Config, error) {
	v := newViper(Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// newViper 注册所有键的默认值，环境变量才能参与Unmarshal
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range cfg.values() {
		v.SetDefault(key, value)
	}
	return v
}

func (c *Config) values() map[string]interface{} {
	return map[string]interface{}{
		"server_url":              c.ServerURL,
		"ota_url":                 c.OTAURL,
		"token":                   c.Token,
		"device_id":               c.DeviceID,
		"client_id":               c.ClientID,
		"skip_tls_verify":         c.SkipTLSVerify,
		"log_level":               c.LogLevel,
		"sample_rate":             c.SampleRate,
		"channels":                c.Channels,
		"frame_duration":          c.FrameDuration,
		"cr_mode":                 c.CRMode,
		"io_unit":                 c.IOUnit,
		"channel_mode":            c.ChannelMode,
		"client_role":             c.ClientRole,
		"vad.amplitude_threshold": c.VAD.AmplitudeThreshold,
		"vad.speech_timeout":      c.VAD.SpeechTimeout.String(),
		"vad.max_speech_length":   c.VAD.MaxSpeechLength.String(),
		"render_buffer":           c.RenderBuffer.String(),
	}
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

// SaveTo 写回配置文件，文件含令牌，权限为0600
func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	for key, value := range cfg.values() {
		v.Set(key, value)
	}

	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = filepath.Join(ConfigDir(), configName+".yaml")
	}
	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	if err := v.WriteConfigAs(cfgPath); err != nil {
		return err
	}
	return os.Chmod(cfgPath, 0600)
}

// ConfigDir 用户配置目录
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, configName)
}

// Options 解析四个枚举项
func (c *Config) Options() (options.Options, error) {
	var opts options.Options
	var err error
	if opts.CRMode, err = options.ParseCRMode(c.CRMode); err != nil {
		return opts, fmt.Errorf("cr_mode: %w", err)
	}
	if opts.IOUnit, err = options.ParseIOUnitType(c.IOUnit); err != nil {
		return opts, fmt.Errorf("io_unit: %w", err)
	}
	if opts.ChannelMode, err = options.ParseChannelMode(c.ChannelMode); err != nil {
		return opts, fmt.Errorf("channel_mode: %w", err)
	}
	if opts.ClientRole, err = options.ParseClientRole(c.ClientRole); err != nil {
		return opts, fmt.Errorf("client_role: %w", err)
	}
	return opts, nil
}

// SetOptions 把选项写回配置，使用名字形式
func (c *Config) SetOptions(opts options.Options) {
	c.CRMode = opts.CRMode.String()
	c.IOUnit = opts.IOUnit.String()
	c.ChannelMode = opts.ChannelMode.String()
	c.ClientRole = opts.ClientRole.String()
}

// EngineOptions 构造音频引擎选项
func (c *Config) EngineOptions() (audio.EngineOptions, error) {
	opts, err := c.Options()
	if err != nil {
		return audio.EngineOptions{}, err
	}
	return audio.EngineOptions{
		Options:       opts,
		SampleRate:    c.SampleRate,
		ChannelCount:  c.Channels,
		FrameDuration: c.FrameDuration,
		RenderBuffer:  c.RenderBuffer,
	}, nil
}

// VADOptions 构造语音活动检测参数
func (c *Config) VADOptions() vad.Options {
	return vad.Options{
		SampleRate:         c.SampleRate,
		AmplitudeThreshold: c.VAD.AmplitudeThreshold,
		SpeechTimeout:      c.VAD.SpeechTimeout,
		MaxSpeechLength:    c.VAD.MaxSpeechLength,
	}
}

// Validate 检查配置，返回所有错误
func (c *Config) Validate() error {
	var errs []error
	if c.ServerURL != "" {
		if u, err := url.Parse(c.ServerURL); err != nil {
			errs = append(errs, fmt.Errorf("server_url %q 不是合法的URL: %w", c.ServerURL, err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Errorf("server_url 协议必须是ws或wss, 实际为 %q", u.Scheme))
		}
	}
	if c.OTAURL != "" {
		if u, err := url.Parse(c.OTAURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("ota_url %q 不是合法的HTTP地址", c.OTAURL))
		}
	}
	switch c.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		errs = append(errs, fmt.Errorf("sample_rate %d 不是Opus支持的采样率", c.SampleRate))
	}
	if c.Channels != 1 && c.Channels != 2 {
		errs = append(errs, fmt.Errorf("channels %d 必须是1或2", c.Channels))
	}
	switch c.FrameDuration {
	case 10, 20, 40, 60:
	default:
		errs = append(errs, fmt.Errorf("frame_duration %d 不是合法的帧时长", c.FrameDuration))
	}
	if _, err := c.Options(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
