package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justa-cai/audioio/internal/config"
	"github.com/justa-cai/audioio/internal/ota"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	boardType    string
	pollInterval time.Duration
	checkUpdate  bool
)

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "向OTA服务器激活设备并保存语音通道地址和令牌",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runActivation(ctx, cfg)
	},
}

func init() {
	activateCmd.Flags().StringVar(&boardType, "board", "desktop", "设备板型号")
	activateCmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "等待激活时的轮询间隔")
	activateCmd.Flags().BoolVar(&checkUpdate, "check-update", false, "同时检查固件版本")
}

// runActivation 运行激活流程，成功后把结果写回配置文件
func runActivation(ctx context.Context, cfg *config.Config) error {
	resolveIdentity(cfg)
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	otaClient := ota.NewOTAClient(cfg.DeviceID, version, boardType, opts)
	otaClient.Endpoint = cfg.OTAURL
	otaClient.DeviceInfo.UUID = cfg.ClientID

	if checkUpdate {
		latest, newer, err := otaClient.CheckFirmwareUpdate(ctx)
		if err != nil {
			logrus.Warnf("检查固件版本失败: %v", err)
		} else if newer {
			fmt.Printf("发现新版本: %s\n", latest)
		}
	}

	resp, err := otaClient.PollActivation(ctx, pollInterval, func(code string) {
		fmt.Printf("激活码: %s\n请在控制台输入激活码，等待激活...\n", code)
	})
	if err != nil {
		return fmt.Errorf("激活失败: %w", err)
	}
	logrus.Info("✅ 设备已激活")

	if resp.Websocket.URL != "" {
		cfg.ServerURL = resp.Websocket.URL
	}
	if resp.Websocket.Token != "" {
		cfg.Token = resp.Websocket.Token
	}
	merged, err := resp.Options.Apply(opts)
	if err != nil {
		logrus.Warnf("忽略服务器建议的音频选项: %v", err)
	} else if merged != opts {
		logrus.Infof("采用服务器建议的音频选项: %s", merged)
		cfg.SetOptions(merged)
	}

	if cfgFile != "" {
		err = config.SaveTo(cfg, cfgFile)
	} else {
		err = config.Save(cfg)
	}
	if err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}
	fmt.Println("激活完成，运行 audioio run 开始对话")
	return nil
}
