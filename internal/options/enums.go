package options

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidValue 枚举取值不在允许集合内
var ErrInvalidValue = errors.New("无效的枚举取值")

// CRMode 采集/渲染路由模式，决定麦克风采集与扬声器渲染分别由宿主程序还是SDK负责。
// 取值从1开始，与原生SDK保持一致。
type CRMode int32

const (
	CRModeExterCaptureSDKRender   CRMode = 1 // 外部采集 + SDK渲染
	CRModeSDKCaptureExterRender   CRMode = 2 // SDK采集 + 外部渲染
	CRModeSDKCaptureSDKRender     CRMode = 3 // SDK采集 + SDK渲染
	CRModeExterCaptureExterRender CRMode = 4 // 外部采集 + 外部渲染
)

var crModeNames = map[CRMode]string{
	CRModeExterCaptureSDKRender:   "exter-capture-sdk-render",
	CRModeSDKCaptureExterRender:   "sdk-capture-exter-render",
	CRModeSDKCaptureSDKRender:     "sdk-capture-sdk-render",
	CRModeExterCaptureExterRender: "exter-capture-exter-render",
}

// Valid 检查取值是否合法
func (m CRMode) Valid() bool {
	_, ok := crModeNames[m]
	return ok
}

func (m CRMode) String() string {
	if name, ok := crModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("CRMode(%d)", int32(m))
}

// SDKCapture 采集是否由SDK负责
func (m CRMode) SDKCapture() bool {
	return m == CRModeSDKCaptureExterRender || m == CRModeSDKCaptureSDKRender
}

// SDKRender 渲染是否由SDK负责
func (m CRMode) SDKRender() bool {
	return m == CRModeExterCaptureSDKRender || m == CRModeSDKCaptureSDKRender
}

// CRModeFromInt 将原生整数值转换为CRMode
func CRModeFromInt(n int) (CRMode, error) {
	m := CRMode(n)
	if n < 0 || int(m) != n || !m.Valid() {
		return 0, fmt.Errorf("CRMode %d: %w", n, ErrInvalidValue)
	}
	return m, nil
}

// ParseCRMode 解析名称或整数形式的CRMode
func ParseCRMode(s string) (CRMode, error) {
	if n, ok := parseInt(s); ok {
		return CRModeFromInt(n)
	}
	for m, name := range crModeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("CRMode %q: %w", s, ErrInvalidValue)
}

func (m CRMode) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("CRMode %d: %w", int32(m), ErrInvalidValue)
	}
	return json.Marshal(int32(m))
}

func (m *CRMode) UnmarshalJSON(data []byte) error {
	n, err := unmarshalInt(data)
	if err != nil {
		return err
	}
	v, err := CRModeFromInt(n)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// IOUnitType 原生音频单元类型
type IOUnitType int32

const (
	IOUnitTypeVPIO     IOUnitType = iota // 语音处理单元（回声消除）
	IOUnitTypeRemoteIO                   // 普通RemoteIO单元
)

var ioUnitNames = map[IOUnitType]string{
	IOUnitTypeVPIO:     "vpio",
	IOUnitTypeRemoteIO: "remote-io",
}

func (t IOUnitType) Valid() bool {
	_, ok := ioUnitNames[t]
	return ok
}

func (t IOUnitType) String() string {
	if name, ok := ioUnitNames[t]; ok {
		return name
	}
	return fmt.Sprintf("IOUnitType(%d)", int32(t))
}

func IOUnitTypeFromInt(n int) (IOUnitType, error) {
	t := IOUnitType(n)
	if n < 0 || int(t) != n || !t.Valid() {
		return 0, fmt.Errorf("IOUnitType %d: %w", n, ErrInvalidValue)
	}
	return t, nil
}

func ParseIOUnitType(s string) (IOUnitType, error) {
	if n, ok := parseInt(s); ok {
		return IOUnitTypeFromInt(n)
	}
	for t, name := range ioUnitNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("IOUnitType %q: %w", s, ErrInvalidValue)
}

func (t IOUnitType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("IOUnitType %d: %w", int32(t), ErrInvalidValue)
	}
	return json.Marshal(int32(t))
}

func (t *IOUnitType) UnmarshalJSON(data []byte) error {
	n, err := unmarshalInt(data)
	if err != nil {
		return err
	}
	v, err := IOUnitTypeFromInt(n)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ChannelMode 频道场景，影响音频会话的调优
type ChannelMode int32

const (
	ChannelModeCommunication ChannelMode = 0 // 通话
	ChannelModeLiveBroadcast ChannelMode = 1 // 直播
)

var channelModeNames = map[ChannelMode]string{
	ChannelModeCommunication: "communication",
	ChannelModeLiveBroadcast: "live-broadcast",
}

func (c ChannelMode) Valid() bool {
	_, ok := channelModeNames[c]
	return ok
}

func (c ChannelMode) String() string {
	if name, ok := channelModeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ChannelMode(%d)", int32(c))
}

func ChannelModeFromInt(n int) (ChannelMode, error) {
	c := ChannelMode(n)
	if n < 0 || int(c) != n || !c.Valid() {
		return 0, fmt.Errorf("ChannelMode %d: %w", n, ErrInvalidValue)
	}
	return c, nil
}

func ParseChannelMode(s string) (ChannelMode, error) {
	if n, ok := parseInt(s); ok {
		return ChannelModeFromInt(n)
	}
	for c, name := range channelModeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("ChannelMode %q: %w", s, ErrInvalidValue)
}

func (c ChannelMode) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("ChannelMode %d: %w", int32(c), ErrInvalidValue)
	}
	return json.Marshal(int32(c))
}

func (c *ChannelMode) UnmarshalJSON(data []byte) error {
	n, err := unmarshalInt(data)
	if err != nil {
		return err
	}
	v, err := ChannelModeFromInt(n)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ClientRole 客户端角色，主播发送音频，观众只接收
type ClientRole int32

const (
	ClientRoleAudience  ClientRole = 0 // 观众
	ClientRoleBroadcast ClientRole = 1 // 主播
)

var clientRoleNames = map[ClientRole]string{
	ClientRoleAudience:  "audience",
	ClientRoleBroadcast: "broadcaster",
}

func (r ClientRole) Valid() bool {
	_, ok := clientRoleNames[r]
	return ok
}

func (r ClientRole) String() string {
	if name, ok := clientRoleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ClientRole(%d)", int32(r))
}

func ClientRoleFromInt(n int) (ClientRole, error) {
	r := ClientRole(n)
	if n < 0 || int(r) != n || !r.Valid() {
		return 0, fmt.Errorf("ClientRole %d: %w", n, ErrInvalidValue)
	}
	return r, nil
}

func ParseClientRole(s string) (ClientRole, error) {
	if n, ok := parseInt(s); ok {
		return ClientRoleFromInt(n)
	}
	for r, name := range clientRoleNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("ClientRole %q: %w", s, ErrInvalidValue)
}

func (r ClientRole) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("ClientRole %d: %w", int32(r), ErrInvalidValue)
	}
	return json.Marshal(int32(r))
}

func (r *ClientRole) UnmarshalJSON(data []byte) error {
	n, err := unmarshalInt(data)
	if err != nil {
		return err
	}
	v, err := ClientRoleFromInt(n)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// 线上格式只接受整数，null同样非法
func unmarshalInt(data []byte) (int, error) {
	if string(bytes.TrimSpace(data)) == "null" {
		return 0, fmt.Errorf("null: %w", ErrInvalidValue)
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("%s: %w", string(data), ErrInvalidValue)
	}
	return n, nil
}
