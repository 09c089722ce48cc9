package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebsocketProtocol 实现了Protocol接口，使用WebSocket作为通信方式
type WebsocketProtocol struct {
	conn             *websocket.Conn
	url              string
	mu               sync.Mutex
	writeMu          sync.Mutex
	connected        bool
	onJSONMessage    func(data []byte)
	onBinaryMessage  func(data []byte)
	onDisconnected   func(err error)
	onConnected      func()
	headers          map[string]string
	readTimeout      time.Duration
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	skipTLSVerify    bool
	stopChan         chan struct{}
}

var _ Protocol = (*WebsocketProtocol)(nil)

// NewWebsocketProtocol 创建一个新的WebSocket协议实例
func NewWebsocketProtocol() *WebsocketProtocol {
	return &WebsocketProtocol{
		headers:          make(map[string]string),
		readTimeout:      30 * time.Second,
		writeTimeout:     30 * time.Second,
		handshakeTimeout: 30 * time.Second,
		stopChan:         make(chan struct{}),
	}
}

// SetHeader 设置WebSocket连接的请求头
func (wp *WebsocketProtocol) SetHeader(key, value string) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.headers[key] = value
}

// GetHeaders 获取所有设置的请求头的副本
func (wp *WebsocketProtocol) GetHeaders() map[string]string {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	headersCopy := make(map[string]string, len(wp.headers))
	for k, v := range wp.headers {
		headersCopy[k] = v
	}
	return headersCopy
}

// SetReadTimeout 设置读取超时时间
func (wp *WebsocketProtocol) SetReadTimeout(timeout time.Duration) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.readTimeout = timeout
}

// SetWriteTimeout 设置写入超时时间
func (wp *WebsocketProtocol) SetWriteTimeout(timeout time.Duration) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.writeTimeout = timeout
}

// SetHandshakeTimeout 设置握手超时时间
func (wp *WebsocketProtocol) SetHandshakeTimeout(timeout time.Duration) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.handshakeTimeout = timeout
}

// SetSkipTLSVerify 设置是否跳过TLS证书验证
func (wp *WebsocketProtocol) SetSkipTLSVerify(skip bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.skipTLSVerify = skip
}

// Connect 连接到WebSocket服务器
func (wp *WebsocketProtocol) Connect(ctx context.Context, rawURL string) error {
	if _, err := parseWebSocketURL(rawURL); err != nil {
		logrus.Errorf("解析WebSocket URL失败: %v", err)
		return err
	}

	wp.mu.Lock()
	if wp.connected {
		wp.mu.Unlock()
		return errors.New("已经连接到服务器")
	}
	wp.url = rawURL
	header := make(http.Header, len(wp.headers))
	for k, v := range wp.headers {
		header.Set(k, v)
		logrus.Debugf("  %s: %s", k, v)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: wp.handshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: wp.skipTLSVerify,
		},
	}
	wp.mu.Unlock()

	if len(header) == 0 {
		logrus.Warn("WebSocket连接没有设置任何请求头")
	}
	logrus.Debugf("开始WebSocket连接: %s (跳过TLS验证: %v)", rawURL, dialer.TLSClientConfig.InsecureSkipVerify)

	startTime := time.Now()
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	elapsed := time.Since(startTime)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			logrus.Errorf("连接WebSocket服务器失败: %v, HTTP状态码: %d, 响应体: %s, 用时: %v",
				err, resp.StatusCode, string(body), elapsed)
			return fmt.Errorf("连接WebSocket服务器失败(HTTP %d): %w", resp.StatusCode, err)
		}
		logrus.Errorf("连接WebSocket服务器失败: %v, 用时: %v", err, elapsed)
		return fmt.Errorf("连接WebSocket服务器失败: %w", err)
	}
	logrus.Infof("WebSocket连接成功, 用时: %v", elapsed)

	wp.mu.Lock()
	wp.conn = conn
	wp.connected = true
	wp.stopChan = make(chan struct{})
	stopChan := wp.stopChan
	onConnected := wp.onConnected
	wp.mu.Unlock()

	go wp.readPump(conn, stopChan)

	if onConnected != nil {
		onConnected()
	}
	return nil
}

// ParsedWSURL WebSocket地址的组成部分
type ParsedWSURL struct {
	Hostname string
	Port     string
	Path     string
	SSL      bool
}

func parseWebSocketURL(wsURL string) (ParsedWSURL, error) {
	var result ParsedWSURL
	u, err := url.Parse(wsURL)
	if err != nil {
		return result, fmt.Errorf("不支持的WebSocket URL格式: %s: %w", wsURL, err)
	}
	switch u.Scheme {
	case "wss":
		result.SSL = true
	case "ws":
	default:
		return result, fmt.Errorf("不支持的WebSocket URL格式: %s", wsURL)
	}
	if u.Hostname() == "" {
		return result, fmt.Errorf("WebSocket URL缺少主机名: %s", wsURL)
	}

	result.Hostname = u.Hostname()
	result.Port = u.Port()
	if result.Port == "" {
		if result.SSL {
			result.Port = "443"
		} else {
			result.Port = "80"
		}
	}
	result.Path = u.Path
	if result.Path == "" {
		result.Path = "/"
	}
	return result, nil
}

// Disconnect 断开与WebSocket服务器的连接，不等待关闭握手
func (wp *WebsocketProtocol) Disconnect() error {
	wp.mu.Lock()
	if !wp.connected || wp.conn == nil {
		wp.mu.Unlock()
		return nil
	}
	wp.connected = false
	conn := wp.conn
	wp.conn = nil
	wp.closeStopChan()
	wp.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("关闭WebSocket连接时发生异常: %v", r)
			}
		}()
		wp.writeMu.Lock()
		// 不关心关闭消息是否送达
		conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		wp.writeMu.Unlock()
		conn.Close()
	}()
	return nil
}

func (wp *WebsocketProtocol) closeStopChan() {
	select {
	case <-wp.stopChan:
	default:
		close(wp.stopChan)
	}
}

// SendJSON 发送JSON消息
func (wp *WebsocketProtocol) SendJSON(data interface{}) error {
	conn, timeout, err := wp.writer()
	if err != nil {
		return err
	}
	wp.writeMu.Lock()
	defer wp.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteJSON(data)
}

// SendBinary 发送二进制数据
func (wp *WebsocketProtocol) SendBinary(data []byte) error {
	conn, timeout, err := wp.writer()
	if err != nil {
		return err
	}
	wp.writeMu.Lock()
	defer wp.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (wp *WebsocketProtocol) writer() (*websocket.Conn, time.Duration, error) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if !wp.connected || wp.conn == nil {
		return nil, 0, ErrNotConnected
	}
	return wp.conn, wp.writeTimeout, nil
}

// SetOnJSONMessage 设置接收JSON消息的回调
func (wp *WebsocketProtocol) SetOnJSONMessage(callback func(data []byte)) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.onJSONMessage = callback
}

// SetOnBinaryMessage 设置接收二进制消息的回调
func (wp *WebsocketProtocol) SetOnBinaryMessage(callback func(data []byte)) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.onBinaryMessage = callback
}

// SetOnDisconnected 设置连接断开的回调
func (wp *WebsocketProtocol) SetOnDisconnected(callback func(err error)) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.onDisconnected = callback
}

// SetOnConnected 设置连接成功的回调
func (wp *WebsocketProtocol) SetOnConnected(callback func()) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.onConnected = callback
}

// IsConnected 返回当前连接状态
func (wp *WebsocketProtocol) IsConnected() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.connected
}

// readPump 处理从WebSocket接收的消息
func (wp *WebsocketProtocol) readPump(conn *websocket.Conn, stopChan chan struct{}) {
	var readErr error
	defer func() {
		if readErr == nil {
			readErr = errors.New("WebSocket读取循环结束")
		}
		wp.handleDisconnect(conn, readErr)
	}()

	for {
		select {
		case <-stopChan:
			return
		default:
		}

		wp.mu.Lock()
		timeout := wp.readTimeout
		wp.mu.Unlock()
		conn.SetReadDeadline(time.Now().Add(timeout))

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopChan:
				// 主动断开
				return
			default:
			}
			logrus.Errorf("读取WebSocket消息失败: %v", err)
			readErr = err
			return
		}

		wp.mu.Lock()
		onJSON, onBinary := wp.onJSONMessage, wp.onBinaryMessage
		wp.mu.Unlock()

		switch messageType {
		case websocket.TextMessage:
			if onJSON != nil {
				onJSON(message)
			}
		case websocket.BinaryMessage:
			if onBinary != nil {
				onBinary(message)
			}
		}
	}
}

// handleDisconnect 处理远端断开，主动断开时不触发回调
func (wp *WebsocketProtocol) handleDisconnect(conn *websocket.Conn, err error) {
	wp.mu.Lock()
	if !wp.connected || wp.conn != conn {
		wp.mu.Unlock()
		return
	}
	wp.connected = false
	wp.conn = nil
	wp.closeStopChan()
	onDisconnected := wp.onDisconnected
	wp.mu.Unlock()

	conn.Close()
	if onDisconnected != nil {
		onDisconnected(err)
	}
}
