package protocol

import (
	"encoding/json"

	"github.com/justa-cai/audioio/internal/options"
)

// 消息类型
const (
	TypeHello  = "hello"
	TypeListen = "listen"
	TypeAbort  = "abort"
	TypeRole   = "role"
	TypeSTT    = "stt"
	TypeTTS    = "tts"
	TypeError  = "error"
	TypePing   = "ping"
)

// 协议版本
const Version = 1

// AudioParams 定义音频参数结构
type AudioParams struct {
	Format        string `json:"format"`         // 音频编码格式，例如"opus"
	SampleRate    int    `json:"sample_rate"`    // 采样率，例如16000
	Channels      int    `json:"channels"`       // 声道数，例如1
	FrameDuration int    `json:"frame_duration"` // 帧时长(毫秒)，例如60
}

// HelloMessage 定义客户端初始hello消息
type HelloMessage struct {
	Type        string           `json:"type"`      // 必须为"hello"
	Version     int              `json:"version"`   // 协议版本号
	Transport   string           `json:"transport"` // 必须为"websocket"
	AudioParams AudioParams      `json:"audio_params"`
	Options     *options.Options `json:"options,omitempty"` // 四个枚举均以整数传输
}

// ServerHelloMessage 定义服务器响应的hello消息
type ServerHelloMessage struct {
	Type        string           `json:"type"`
	Transport   string           `json:"transport"`
	SessionID   string           `json:"session_id,omitempty"`
	AudioParams *AudioParams     `json:"audio_params,omitempty"`
	Options     *options.Options `json:"options,omitempty"`
}

// ListenMessage 定义开始/停止录音的消息
type ListenMessage struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`           // 必须为"listen"
	State     string `json:"state"`          // "start", "stop"
	Mode      string `json:"mode,omitempty"` // "auto", "manual"
}

// AbortMessage 定义终止消息的结构
type AbortMessage struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`   // 必须为"abort"
	Reason    string `json:"reason"` // 例如"wake_word_detected"
}

// RoleMessage 通知服务器客户端角色变化
type RoleMessage struct {
	SessionID string              `json:"session_id"`
	Type      string              `json:"type"`        // 必须为"role"
	Role      *options.ClientRole `json:"client_role"` // 服务器下发时必须携带
}

// STTMessage 定义语音识别结果消息
type STTMessage struct {
	Type    string `json:"type"` // 必须为"stt"
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"` // 是否为最终结果
}

// TTSMessage 定义文本转语音控制消息
type TTSMessage struct {
	Type  string `json:"type"`           // 必须为"tts"
	State string `json:"state"`          // "start", "stop", "sentence_start"
	Text  string `json:"text,omitempty"` // state为"sentence_start"时要朗读的文本
}

// ErrorMessage 服务器报告的错误
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// PingMessage 心跳
type PingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// MessageType 从JSON数据中提取消息类型，解析失败返回空字符串
func MessageType(data []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	return envelope.Type
}
