package options

import "fmt"

// Options 一次会话使用的全部音频选项
type Options struct {
	CRMode      CRMode      `json:"cr_mode"`
	IOUnit      IOUnitType  `json:"io_unit"`
	ChannelMode ChannelMode `json:"channel_mode"`
	ClientRole  ClientRole  `json:"client_role"`
}

// Default 返回默认选项：SDK采集+SDK渲染、语音处理单元、通话场景、主播
func Default() Options {
	return Options{
		CRMode:      CRModeSDKCaptureSDKRender,
		IOUnit:      IOUnitTypeVPIO,
		ChannelMode: ChannelModeCommunication,
		ClientRole:  ClientRoleBroadcast,
	}
}

// Validate 检查所有字段
func (o Options) Validate() error {
	if !o.CRMode.Valid() {
		return fmt.Errorf("cr_mode %d: %w", int32(o.CRMode), ErrInvalidValue)
	}
	if !o.IOUnit.Valid() {
		return fmt.Errorf("io_unit %d: %w", int32(o.IOUnit), ErrInvalidValue)
	}
	if !o.ChannelMode.Valid() {
		return fmt.Errorf("channel_mode %d: %w", int32(o.ChannelMode), ErrInvalidValue)
	}
	if !o.ClientRole.Valid() {
		return fmt.Errorf("client_role %d: %w", int32(o.ClientRole), ErrInvalidValue)
	}
	return nil
}

// EffectiveRole 角色只在直播场景下生效，通话场景下所有人都是主播
func (o Options) EffectiveRole() ClientRole {
	if o.ChannelMode == ChannelModeCommunication {
		return ClientRoleBroadcast
	}
	return o.ClientRole
}

// Transmits 本端是否发送音频
func (o Options) Transmits() bool {
	return o.EffectiveRole() == ClientRoleBroadcast
}

func (o Options) String() string {
	return fmt.Sprintf("cr_mode=%s io_unit=%s channel_mode=%s client_role=%s",
		o.CRMode, o.IOUnit, o.ChannelMode, o.ClientRole)
}
