package native

import (
	"errors"
	"sync"

	"github.com/justa-cai/audioio/internal/audio"
	"github.com/justa-cai/go-libopus/opus"
)

// 单个Opus包的最大字节数
const maxPacketSize = 4000

// ErrCodecClosed Close之后再编解码
var ErrCodecClosed = errors.New("编解码器已关闭")

// OpusCodec 实现Opus编解码
type OpusCodec struct {
	mu      sync.Mutex
	encoder *opus.OpusEncoder
	decoder *opus.OpusDecoder
	buffer  []byte
}

var (
	_ audio.Encoder = (*OpusCodec)(nil)
	_ audio.Decoder = (*OpusCodec)(nil)
)

// NewOpusCodec 创建新的Opus编解码器
func NewOpusCodec(sampleRate, channelCount int) (*OpusCodec, error) {
	encoder, err := opus.NewEncoder(sampleRate, channelCount, opus.OpusApplicationAudio)
	if err != nil {
		return nil, err
	}
	decoder, err := opus.NewDecoder(sampleRate, channelCount)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &OpusCodec{
		encoder: encoder,
		decoder: decoder,
		buffer:  make([]byte, maxPacketSize),
	}, nil
}

// Encode 将PCM数据编码为Opus格式
func (c *OpusCodec) Encode(pcmData []int16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder == nil {
		return nil, ErrCodecClosed
	}
	n, err := c.encoder.Encode(audio.PCMToBytes(pcmData), c.buffer)
	if err != nil {
		return nil, err
	}
	result := make([]byte, n)
	copy(result, c.buffer[:n])
	return result, nil
}

// Decode 将Opus格式解码为PCM数据，返回每通道采样数
func (c *OpusCodec) Decode(opusData []byte, pcmData []int16) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decoder == nil {
		return 0, ErrCodecClosed
	}
	output := make([]byte, len(pcmData)*2)
	nSamples, err := c.decoder.Decode(opusData, output)
	if err != nil {
		return 0, err
	}
	audio.BytesToPCM(output, pcmData)
	return nSamples, nil
}

// Close 释放资源
func (c *OpusCodec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}
