package main

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/justa-cai/audioio/internal/config"
	"github.com/sirupsen/logrus"
)

// resolveIdentity 补全设备ID和客户端ID。
// 设备ID默认取MAC地址，客户端ID由设备ID稳定派生。
func resolveIdentity(cfg *config.Config) {
	if cfg.DeviceID == "" {
		mac, err := getMACAddress()
		if err != nil {
			logrus.Warnf("无法获取MAC地址: %v", err)
			mac = fmt.Sprintf("device-%d", time.Now().Unix())
			logrus.Infof("生成临时设备ID: %s", mac)
		}
		cfg.DeviceID = mac
	}
	if cfg.ClientID == "" {
		cfg.ClientID = clientIDFor(cfg.DeviceID)
	}
	logrus.Infof("使用设备ID: %s, 客户端ID: %s", cfg.DeviceID, cfg.ClientID)
}

// clientIDFor 同一设备ID总是得到同一个UUID
func clientIDFor(deviceID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(deviceID)).String()
}

// getMACAddress 获取本机MAC地址
func getMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, i := range interfaces {
		if i.Flags&net.FlagUp != 0 && i.Flags&net.FlagLoopback == 0 {
			if len(i.HardwareAddr) > 0 {
				return strings.ToLower(i.HardwareAddr.String()), nil
			}
		}
	}

	return "", fmt.Errorf("未找到有效的网络接口")
}
