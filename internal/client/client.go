package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justa-cai/audioio/internal/options"
	"github.com/justa-cai/audioio/internal/protocol"
	"github.com/sirupsen/logrus"
)

// 客户端状态常量
const (
	StateIdle       = "idle"       // 空闲状态
	StateConnecting = "connecting" // 正在连接状态
	StateListening  = "listening"  // 监听状态（录音中）
	StateSpeaking   = "speaking"   // 播放状态（播放TTS）
)

// 监听模式常量
const (
	ListenModeAuto   = "auto"
	ListenModeManual = "manual"
)

const (
	DefaultHelloTimeout   = 10 * time.Second
	DefaultConnectTimeout = 15 * time.Second
)

var (
	ErrAudienceCannotSend = errors.New("观众角色不能发送音频")
	ErrNotListening       = errors.New("客户端不在监听状态")
	ErrNotIdle            = errors.New("客户端不在空闲状态")
	ErrChannelClosed      = errors.New("音频通道未打开")
)

// Client 语音会话客户端
type Client struct {
	protocol protocol.Protocol

	mu          sync.Mutex
	state       string
	channelOpen bool
	sessionID   string
	deviceID    string
	clientID    string
	token       string
	listenMode  string
	opts        options.Options
	audioParams protocol.AudioParams
	serverAudio *protocol.AudioParams

	helloTimeout   time.Duration
	connectTimeout time.Duration

	onStateChanged       func(oldState, newState string)
	onNetworkError       func(err error)
	onRecognizedText     func(text string, isFinal bool)
	onSpeakText          func(text string)
	onAudioData          func(data []byte)
	onRoleChanged        func(role options.ClientRole)
	onAudioChannelOpen   func()
	onAudioChannelClosed func()

	helloReceived chan struct{}
}

// New 创建一个新的客户端实例，使用默认选项
func New(p protocol.Protocol) *Client {
	client := &Client{
		protocol: p,
		state:    StateIdle,
		opts:     options.Default(),
		audioParams: protocol.AudioParams{
			Format:        "opus",
			SampleRate:    16000,
			Channels:      1,
			FrameDuration: 60,
		},
		helloTimeout:   DefaultHelloTimeout,
		connectTimeout: DefaultConnectTimeout,
		helloReceived:  make(chan struct{}, 1),
	}

	p.SetOnJSONMessage(client.handleJSONMessage)
	p.SetOnBinaryMessage(client.handleBinaryMessage)
	p.SetOnDisconnected(client.handleDisconnected)
	p.SetOnConnected(client.handleConnected)
	return client
}

// SetDeviceID 设置设备ID
func (c *Client) SetDeviceID(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = deviceID
}

// SetClientID 设置客户端ID
func (c *Client) SetClientID(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = clientID
}

// SetToken 设置访问令牌
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetHelloTimeout 设置等待服务器hello的超时
func (c *Client) SetHelloTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.helloTimeout = timeout
}

// SetAudioParams 设置hello中声明的音频参数
func (c *Client) SetAudioParams(params protocol.AudioParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioParams = params
}

// ServerAudioParams 服务器hello中返回的音频参数，可能为nil
func (c *Client) ServerAudioParams() *protocol.AudioParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverAudio
}

// SetOptions 设置全部音频选项，只能在通道打开前调用
func (c *Client) SetOptions(opts options.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelOpen || c.state != StateIdle {
		return ErrNotIdle
	}
	c.opts = opts
	return nil
}

// Options 当前音频选项
func (c *Client) Options() options.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// SetChannelMode 切换频道场景，只能在音频通道打开前调用。
// 频道场景随hello协商，通道打开后修改不会通知服务器。
func (c *Client) SetChannelMode(mode options.ChannelMode) error {
	if !mode.Valid() {
		return fmt.Errorf("ChannelMode %d: %w", int32(mode), options.ErrInvalidValue)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelOpen || c.state != StateIdle {
		return ErrNotIdle
	}
	c.opts.ChannelMode = mode
	logrus.Infof("频道场景切换为 %s", mode)
	return nil
}

// SetClientRole 切换角色，已连接时通知服务器。
// 监听中切换为观众会先停止监听。
func (c *Client) SetClientRole(role options.ClientRole) error {
	if !role.Valid() {
		return fmt.Errorf("ClientRole %d: %w", int32(role), options.ErrInvalidValue)
	}

	c.mu.Lock()
	next := c.opts
	next.ClientRole = role
	stopFirst := c.state == StateListening && !next.Transmits()
	c.mu.Unlock()

	if stopFirst {
		logrus.Info("切换为观众，先停止监听")
		if err := c.stopListening(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.opts.ClientRole = role
	sessionID := c.sessionID
	connected := c.channelOpen && c.protocol.IsConnected()
	onRoleChanged := c.onRoleChanged
	c.mu.Unlock()

	if connected {
		msg := protocol.RoleMessage{SessionID: sessionID, Type: protocol.TypeRole, Role: &role}
		if err := c.protocol.SendJSON(msg); err != nil {
			return fmt.Errorf("发送角色消息失败: %w", err)
		}
	}
	if onRoleChanged != nil {
		onRoleChanged(role)
	}
	return nil
}

// SetOnStateChanged 设置状态变更的回调
func (c *Client) SetOnStateChanged(callback func(oldState, newState string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChanged = callback
}

// SetOnNetworkError 设置网络错误的回调
func (c *Client) SetOnNetworkError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNetworkError = callback
}

// SetOnRecognizedText 设置识别文本的回调
func (c *Client) SetOnRecognizedText(callback func(text string, isFinal bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRecognizedText = callback
}

// SetOnSpeakText 设置朗读文本的回调
func (c *Client) SetOnSpeakText(callback func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSpeakText = callback
}

// SetOnAudioData 设置音频数据的回调
func (c *Client) SetOnAudioData(callback func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudioData = callback
}

// SetOnRoleChanged 角色变化（本地或服务器下发）的回调
func (c *Client) SetOnRoleChanged(callback func(role options.ClientRole)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRoleChanged = callback
}

// SetOnAudioChannelOpen 设置音频通道打开的回调
func (c *Client) SetOnAudioChannelOpen(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudioChannelOpen = callback
}

// SetOnAudioChannelClosed 设置音频通道关闭的回调
func (c *Client) SetOnAudioChannelClosed(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudioChannelClosed = callback
}

// GetState 获取当前状态
func (c *Client) GetState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAudioChannelOpened 音频通道是否已打开
func (c *Client) IsAudioChannelOpened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelOpen
}

// SetState 更新状态并触发回调
func (c *Client) SetState(newState string) {
	c.mu.Lock()
	oldState := c.state
	c.state = newState
	onStateChanged := c.onStateChanged
	c.mu.Unlock()

	if oldState != newState && onStateChanged != nil {
		onStateChanged(oldState, newState)
	}
}

// prepareHeaders 设置连接请求头，缺少的设备ID和客户端ID自动生成
func (c *Client) prepareHeaders() {
	if c.token != "" {
		c.protocol.SetHeader("Authorization", "Bearer "+c.token)
	}
	c.protocol.SetHeader("Protocol-Version", fmt.Sprint(protocol.Version))

	if c.deviceID == "" {
		c.deviceID = macAddress()
	}
	if c.deviceID != "" {
		c.protocol.SetHeader("Device-Id", c.deviceID)
	}
	if c.clientID == "" {
		c.clientID = uuid.New().String()
		logrus.Debugf("生成Client-Id: %s", c.clientID)
	}
	c.protocol.SetHeader("Client-Id", c.clientID)
}

// macAddress 第一个有硬件地址的网卡的MAC
func macAddress() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, i := range interfaces {
		if len(i.HardwareAddr) > 0 {
			return i.HardwareAddr.String()
		}
	}
	return ""
}

// OpenAudioChannel 连接服务器并完成hello握手
func (c *Client) OpenAudioChannel(ctx context.Context, url string) error {
	c.mu.Lock()
	if c.state != StateIdle || c.channelOpen {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.prepareHeaders()
	// 丢弃上一次残留的hello
	select {
	case <-c.helloReceived:
	default:
	}
	opts := c.opts
	hello := protocol.HelloMessage{
		Type:        protocol.TypeHello,
		Version:     protocol.Version,
		Transport:   "websocket",
		AudioParams: c.audioParams,
		Options:     &opts,
	}
	helloTimeout := c.helloTimeout
	connectTimeout := c.connectTimeout
	c.state = StateConnecting
	onStateChanged := c.onStateChanged
	c.mu.Unlock()

	if onStateChanged != nil {
		onStateChanged(StateIdle, StateConnecting)
	}
	logrus.Infof("WebSocket地址: %s", url)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := c.protocol.Connect(connectCtx, url)
	cancel()
	if err != nil {
		logrus.Errorf("WebSocket连接失败: %v", err)
		c.SetState(StateIdle)
		return err
	}

	if logJSON, err := json.Marshal(hello); err == nil {
		logrus.Debugf("发送hello消息: %s", logJSON)
	}
	if err := c.protocol.SendJSON(hello); err != nil {
		logrus.Errorf("发送hello消息失败: %v", err)
		c.protocol.Disconnect()
		c.SetState(StateIdle)
		return err
	}

	timer := time.NewTimer(helloTimeout)
	defer timer.Stop()
	select {
	case <-c.helloReceived:
	case <-timer.C:
		logrus.Error("等待服务器hello响应超时")
		c.protocol.Disconnect()
		c.SetState(StateIdle)
		return errors.New("等待服务器Hello响应超时")
	case <-ctx.Done():
		c.protocol.Disconnect()
		c.SetState(StateIdle)
		return ctx.Err()
	}

	logrus.Info("音频通道已打开")
	c.mu.Lock()
	c.channelOpen = true
	onAudioChannelOpen := c.onAudioChannelOpen
	c.mu.Unlock()
	c.SetState(StateIdle)

	if onAudioChannelOpen != nil {
		onAudioChannelOpen()
	}
	return nil
}

// CloseAudioChannel 关闭音频通道
func (c *Client) CloseAudioChannel() error {
	c.mu.Lock()
	if !c.channelOpen && c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.protocol.Disconnect()
	c.handleDisconnected(nil)
	return err
}

// SendStartListening 发送开始监听的消息
func (c *Client) SendStartListening(mode string) error {
	c.mu.Lock()
	if !c.opts.Transmits() {
		c.mu.Unlock()
		return ErrAudienceCannotSend
	}
	if !c.channelOpen {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.state != StateIdle && c.state != StateSpeaking {
		c.mu.Unlock()
		return fmt.Errorf("客户端状态 %s 不允许开始监听", c.state)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.New().String()
	}
	if mode == "" {
		mode = ListenModeManual
	}
	c.listenMode = mode
	sessionID := c.sessionID
	c.mu.Unlock()

	listen := protocol.ListenMessage{
		SessionID: sessionID,
		Type:      protocol.TypeListen,
		State:     "start",
		Mode:      mode,
	}
	if err := c.protocol.SendJSON(listen); err != nil {
		return err
	}
	c.SetState(StateListening)
	return nil
}

// SendStopListening 发送停止监听的消息
func (c *Client) SendStopListening() error {
	c.mu.Lock()
	transmits := c.opts.Transmits()
	c.mu.Unlock()
	if !transmits {
		return ErrAudienceCannotSend
	}
	return c.stopListening()
}

func (c *Client) stopListening() error {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return ErrNotListening
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	listen := protocol.ListenMessage{
		SessionID: sessionID,
		Type:      protocol.TypeListen,
		State:     "stop",
	}
	if err := c.protocol.SendJSON(listen); err != nil {
		return err
	}
	c.SetState(StateIdle)
	return nil
}

// SendAbortSpeaking 发送终止当前会话的消息
func (c *Client) SendAbortSpeaking(reason string) error {
	c.mu.Lock()
	if !c.channelOpen {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	return c.protocol.SendJSON(protocol.AbortMessage{
		SessionID: sessionID,
		Type:      protocol.TypeAbort,
		Reason:    reason,
	})
}

// SendAudioData 发送编码后的音频帧
func (c *Client) SendAudioData(data []byte) error {
	c.mu.Lock()
	if !c.opts.Transmits() {
		c.mu.Unlock()
		return ErrAudienceCannotSend
	}
	if c.state != StateListening {
		c.mu.Unlock()
		return ErrNotListening
	}
	c.mu.Unlock()

	return c.protocol.SendBinary(data)
}

// SendPing 发送心跳
func (c *Client) SendPing() error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	return c.protocol.SendJSON(protocol.PingMessage{Type: protocol.TypePing, SessionID: sessionID})
}

// KeepAlive 按interval发送心跳直到ctx取消或连接断开
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.IsAudioChannelOpened() {
				return
			}
			if err := c.SendPing(); err != nil {
				logrus.Warnf("发送心跳失败: %v", err)
			}
		}
	}
}

func (c *Client) handleConnected() {
	logrus.Info("WebSocket已连接")
}

// handleDisconnected 处理连接断开事件
func (c *Client) handleDisconnected(err error) {
	c.mu.Lock()
	wasOpen := c.channelOpen
	c.channelOpen = false
	c.sessionID = ""
	c.serverAudio = nil
	onAudioChannelClosed := c.onAudioChannelClosed
	onNetworkError := c.onNetworkError
	c.mu.Unlock()

	c.SetState(StateIdle)

	if wasOpen && onAudioChannelClosed != nil {
		onAudioChannelClosed()
	}
	if err != nil && onNetworkError != nil {
		onNetworkError(err)
	}
}

// handleJSONMessage 处理JSON消息
func (c *Client) handleJSONMessage(data []byte) {
	if len(data) < 1000 {
		logrus.Debugf("收到WebSocket JSON消息: %s", data)
	} else {
		logrus.Debugf("收到WebSocket JSON消息，长度: %d字节", len(data))
	}

	switch msgType := protocol.MessageType(data); msgType {
	case protocol.TypeHello:
		c.handleHelloMessage(data)
	case protocol.TypeSTT:
		c.handleSTTMessage(data)
	case protocol.TypeTTS:
		c.handleTTSMessage(data)
	case protocol.TypeRole:
		c.handleRoleMessage(data)
	case protocol.TypeError:
		c.handleErrorMessage(data)
	case protocol.TypePing:
		logrus.Trace("收到心跳")
	default:
		logrus.Warnf("收到未知类型的WebSocket消息: %q", msgType)
	}
}

// handleBinaryMessage 处理接收到的音频数据，监听期间忽略
func (c *Client) handleBinaryMessage(data []byte) {
	c.mu.Lock()
	if c.state == StateListening {
		c.mu.Unlock()
		return
	}
	onAudioData := c.onAudioData
	c.mu.Unlock()

	if onAudioData != nil {
		onAudioData(data)
	}
}

func (c *Client) handleHelloMessage(data []byte) {
	var hello protocol.ServerHelloMessage
	if err := json.Unmarshal(data, &hello); err != nil {
		logrus.Errorf("解析Hello消息失败: %v", err)
		return
	}
	if hello.Transport != "websocket" {
		logrus.Errorf("服务器返回的Hello消息格式不正确: transport=%q", hello.Transport)
		c.protocol.Disconnect()
		return
	}

	c.mu.Lock()
	c.serverAudio = hello.AudioParams
	if hello.SessionID != "" {
		c.sessionID = hello.SessionID
	}
	if hello.Options != nil && *hello.Options != c.opts {
		logrus.Warnf("服务器选项与本地不一致: 本地[%s] 服务器[%s]", c.opts, hello.Options)
	}
	c.mu.Unlock()

	select {
	case c.helloReceived <- struct{}{}:
	default:
	}
}

func (c *Client) handleSTTMessage(data []byte) {
	var stt protocol.STTMessage
	if err := json.Unmarshal(data, &stt); err != nil {
		logrus.Errorf("解析STT消息失败: %v", err)
		return
	}

	c.mu.Lock()
	onRecognizedText := c.onRecognizedText
	c.mu.Unlock()

	if onRecognizedText != nil {
		onRecognizedText(stt.Text, stt.IsFinal)
	}
}

func (c *Client) handleTTSMessage(data []byte) {
	var tts protocol.TTSMessage
	if err := json.Unmarshal(data, &tts); err != nil {
		logrus.Errorf("解析TTS消息失败: %v", err)
		return
	}

	switch tts.State {
	case "start":
		c.SetState(StateSpeaking)
	case "stop":
		c.SetState(StateIdle)
	case "sentence_start":
		c.mu.Lock()
		onSpeakText := c.onSpeakText
		c.mu.Unlock()
		if onSpeakText != nil && tts.Text != "" {
			onSpeakText(tts.Text)
		}
	}
}

// handleRoleMessage 服务器下发角色变化
func (c *Client) handleRoleMessage(data []byte) {
	var msg protocol.RoleMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logrus.Errorf("解析角色消息失败: %v", err)
		return
	}
	if msg.Role == nil {
		logrus.Errorf("角色消息缺少client_role，忽略: %s", data)
		return
	}
	role := *msg.Role

	c.mu.Lock()
	c.opts.ClientRole = role
	stop := c.state == StateListening && !c.opts.Transmits()
	onRoleChanged := c.onRoleChanged
	c.mu.Unlock()

	logrus.Infof("服务器设置角色为 %s", role)
	if stop {
		if err := c.stopListening(); err != nil {
			logrus.Warnf("停止监听失败: %v", err)
		}
	}
	if onRoleChanged != nil {
		onRoleChanged(role)
	}
}

func (c *Client) handleErrorMessage(data []byte) {
	var errMsg protocol.ErrorMessage
	if err := json.Unmarshal(data, &errMsg); err != nil {
		logrus.Errorf("解析错误消息失败: %v", err)
		return
	}
	logrus.Errorf("收到服务器错误: 代码=%d, 消息=%s", errMsg.Code, errMsg.Message)

	c.mu.Lock()
	onNetworkError := c.onNetworkError
	c.mu.Unlock()

	if onNetworkError != nil {
		onNetworkError(fmt.Errorf("服务器错误: %s (代码: %d)", errMsg.Message, errMsg.Code))
	}
}

// GetProtocol 获取协议实例
func (c *Client) GetProtocol() protocol.Protocol {
	return c.protocol
}

// ListenMode 最近一次开始监听的模式
func (c *Client) ListenMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listenMode
}
