package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/justa-cai/audioio/internal/config"
	"github.com/justa-cai/audioio/internal/options"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"

	cfgFile     string
	serverURL   string
	logLevel    string
	crMode      string
	ioUnit      string
	channelMode string
	clientRole  string
)

var rootCmd = &cobra.Command{
	Use:   "audioio",
	Short: "语音通道客户端",
	Long: `audioio 按照采集/渲染模式、IO单元、频道模式和客户端角色
组织本地音频，并通过WebSocket语音通道与服务器交互。`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本号",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("audioio v%s\n", version)
	},
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logrus.SetLevel(logrus.InfoLevel)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "配置文件 (默认为 <用户配置目录>/audioio/audioio.yaml)")
	flags.StringVar(&serverURL, "server", "", "WebSocket服务器地址")
	flags.StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")
	flags.StringVar(&crMode, "cr-mode", "", "采集/渲染模式, 名字或1-4")
	flags.StringVar(&ioUnit, "io-unit", "", "IO单元类型 (vpio, remote-io 或 0/1)")
	flags.StringVar(&channelMode, "channel-mode", "", "频道模式 (communication, live-broadcast 或 0/1)")
	flags.StringVar(&clientRole, "role", "", "客户端角色 (audience, broadcaster 或 0/1)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(recognizeCmd)
	rootCmd.AddCommand(loopbackCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 读取配置并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	return cfg, nil
}

// applyFlags 命令行参数优先于配置文件和环境变量
func applyFlags(cfg *config.Config) {
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if crMode != "" {
		cfg.CRMode = crMode
	}
	if ioUnit != "" {
		cfg.IOUnit = ioUnit
	}
	if channelMode != "" {
		cfg.ChannelMode = channelMode
	}
	if clientRole != "" {
		cfg.ClientRole = clientRole
	}
}

// setupLogging 设置日志级别，无法识别时使用info
func setupLogging(level string) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		logrus.Warnf("未知的日志级别: %s，使用默认级别 info", level)
	}
	logrus.SetLevel(lvl)
}

func parseLogLevel(level string) (logrus.Level, error) {
	if strings.TrimSpace(level) == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel, err
	}
	return lvl, nil
}

// describeOptions 启动时打印生效的音频选项
func describeOptions(opts options.Options) {
	logrus.Infof("音频选项: %s", opts)
	if opts.EffectiveRole() != opts.ClientRole {
		logrus.Infof("通话模式下角色按 %s 处理", opts.EffectiveRole())
	}
	if !opts.Transmits() {
		logrus.Info("观众角色只接收音频，不会发送麦克风数据")
	}
}
