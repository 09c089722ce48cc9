package ota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/justa-cai/audioio/internal/options"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultOTAEndpoint 默认OTA服务器地址
	DefaultOTAEndpoint = "https://api.tenclass.net/xiaozhi/ota/"

	DefaultTimeout = 10 * time.Second
)

// AppInfo 应用信息结构
type AppInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BoardInfo 板信息结构
type BoardInfo struct {
	Type string `json:"type"`
	MAC  string `json:"mac"`
}

// DeviceInfo 设备信息，随激活请求上报
type DeviceInfo struct {
	MACAddress  string          `json:"mac_address"`
	UUID        string          `json:"uuid,omitempty"`
	Cores       int             `json:"cores"`
	OS          string          `json:"os"`
	Arch        string          `json:"arch"`
	Application AppInfo         `json:"application"`
	Board       BoardInfo       `json:"board"`
	Options     options.Options `json:"audio_options"` // 本端请求的音频选项
}

// FirmwareInfo 固件信息结构
type FirmwareInfo struct {
	Version string `json:"version"`
	URL     string `json:"url,omitempty"`
}

// ActivationInfo 激活信息结构，Code为空表示已激活
type ActivationInfo struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// WebsocketInfo 语音通道地址和令牌
type WebsocketInfo struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// ServerOptions 服务器建议的音频选项，缺省字段沿用本地值
type ServerOptions struct {
	CRMode      *int `json:"cr_mode,omitempty"`
	IOUnit      *int `json:"io_unit,omitempty"`
	ChannelMode *int `json:"channel_mode,omitempty"`
	ClientRole  *int `json:"client_role,omitempty"`
}

// Apply 把服务器建议的选项合并到base，任一取值非法时返回错误
func (s *ServerOptions) Apply(base options.Options) (options.Options, error) {
	if s == nil {
		return base, nil
	}
	out := base
	var err error
	if s.CRMode != nil {
		if out.CRMode, err = options.CRModeFromInt(*s.CRMode); err != nil {
			return base, fmt.Errorf("服务器cr_mode: %w", err)
		}
	}
	if s.IOUnit != nil {
		if out.IOUnit, err = options.IOUnitTypeFromInt(*s.IOUnit); err != nil {
			return base, fmt.Errorf("服务器io_unit: %w", err)
		}
	}
	if s.ChannelMode != nil {
		if out.ChannelMode, err = options.ChannelModeFromInt(*s.ChannelMode); err != nil {
			return base, fmt.Errorf("服务器channel_mode: %w", err)
		}
	}
	if s.ClientRole != nil {
		if out.ClientRole, err = options.ClientRoleFromInt(*s.ClientRole); err != nil {
			return base, fmt.Errorf("服务器client_role: %w", err)
		}
	}
	return out, nil
}

// OTAResponse OTA响应结构
type OTAResponse struct {
	Firmware   FirmwareInfo   `json:"firmware"`
	Activation ActivationInfo `json:"activation"`
	Websocket  WebsocketInfo  `json:"websocket"`
	Options    *ServerOptions `json:"options,omitempty"`
}

// Activated 设备是否已激活
func (r *OTAResponse) Activated() bool {
	return r.Activation.Code == ""
}

// OTAClient OTA客户端结构
type OTAClient struct {
	Endpoint   string
	HTTPClient *http.Client
	DeviceInfo DeviceInfo
}

// NewOTAClient 创建新的OTA客户端
func NewOTAClient(deviceMAC, appVersion, boardType string, opts options.Options) *OTAClient {
	return &OTAClient{
		Endpoint:   DefaultOTAEndpoint,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		DeviceInfo: DeviceInfo{
			MACAddress: deviceMAC,
			Cores:      runtime.NumCPU(),
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			Application: AppInfo{
				Name:    "audioio",
				Version: appVersion,
			},
			Board: BoardInfo{
				Type: boardType,
				MAC:  deviceMAC,
			},
			Options: opts,
		},
	}
}

// RequestActivation 向服务器上报设备信息并获取激活结果
func (c *OTAClient) RequestActivation(ctx context.Context) (*OTAResponse, error) {
	if err := c.DeviceInfo.Options.Validate(); err != nil {
		return nil, err
	}
	jsonData, err := json.Marshal(c.DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("编码设备信息失败: %w", err)
	}
	logrus.Debugf("发送请求体: %s", jsonData)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Device-Id", c.DeviceInfo.MACAddress)
	req.Header.Set("User-Agent", "audioio/"+c.DeviceInfo.Application.Version)
	req.Header.Set("Board-Type", c.DeviceInfo.Board.Type)
	if c.DeviceInfo.UUID != "" {
		req.Header.Set("Client-Id", c.DeviceInfo.UUID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	logrus.Debugf("服务器状态码: %d, 响应体: %s", resp.StatusCode, body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("服务器返回错误状态码: %d, 响应: %s", resp.StatusCode, body)
	}

	var otaResp OTAResponse
	if err := json.Unmarshal(body, &otaResp); err != nil {
		return nil, fmt.Errorf("解析服务器响应失败: %w", err)
	}

	if otaResp.Activated() {
		logrus.Info("设备已激活")
	} else {
		logrus.Infof("获取到设备激活码: %s", otaResp.Activation.Code)
	}
	return &otaResp, nil
}

// CheckFirmwareUpdate 检查是否有新版本
func (c *OTAClient) CheckFirmwareUpdate(ctx context.Context) (string, bool, error) {
	resp, err := c.RequestActivation(ctx)
	if err != nil {
		return "", false, err
	}

	currentVersion := c.DeviceInfo.Application.Version
	latestVersion := resp.Firmware.Version
	if latestVersion == "" || currentVersion == latestVersion {
		logrus.Infof("当前版本已是最新: %s", currentVersion)
		return currentVersion, false, nil
	}
	logrus.Infof("发现新版本: %s，当前版本: %s", latestVersion, currentVersion)
	return latestVersion, true, nil
}

// PollActivation 按interval轮询直到设备激活或ctx取消，
// 返回最后一次的响应
func (c *OTAClient) PollActivation(ctx context.Context, interval time.Duration, onCode func(code string)) (*OTAResponse, error) {
	lastCode := ""
	for {
		resp, err := c.RequestActivation(ctx)
		if err != nil {
			return nil, err
		}
		if resp.Activated() {
			return resp, nil
		}
		if resp.Activation.Code != lastCode {
			lastCode = resp.Activation.Code
			if onCode != nil {
				onCode(lastCode)
			}
		}

		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-time.After(interval):
		}
	}
}
