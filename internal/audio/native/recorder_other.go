//go:build !linux && !windows

package native

import (
	"sync"

	"github.com/justa-cai/audioio/internal/audio"
)

// unsupportedRecorder 在没有录音实现的平台上使用，
// 只能配合外部采集模式运行
type unsupportedRecorder struct {
	mu        sync.Mutex
	onPCMData func([]int16, int)
}

func newRecorder(RecorderOptions) audio.Capturer {
	return &unsupportedRecorder{}
}

func (r *unsupportedRecorder) StartRecording() error { return ErrUnsupported }
func (r *unsupportedRecorder) StopRecording() error  { return nil }
func (r *unsupportedRecorder) Close() error          { return nil }
func (r *unsupportedRecorder) IsRecording() bool     { return false }

func (r *unsupportedRecorder) SetPCMDataCallback(cb func([]int16, int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPCMData = cb
}
