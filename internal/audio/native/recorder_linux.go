//go:build linux

package native

/*
#cgo pkg-config: libpulse-simple
#include <pulse/simple.h>
#include <pulse/error.h>
#include <stdlib.h>

typedef struct pa_simple pa_simple;

static pa_simple* open_pulse_capture(unsigned int sampleRate, int channels, int* error) {
    pa_sample_spec ss;
    ss.format = PA_SAMPLE_S16LE;
    ss.rate = sampleRate;
    ss.channels = channels;
    return pa_simple_new(NULL, "audioio", PA_STREAM_RECORD, NULL, "capture", &ss, NULL, NULL, error);
}
static int read_pulse(pa_simple* s, void* buf, int bytes, int* error) {
    return pa_simple_read(s, buf, bytes, error);
}
static void close_pulse(pa_simple* s) {
    if (s) pa_simple_free(s);
}
static const char* pulse_error(int error) {
    return pa_strerror(error);
}
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/justa-cai/audioio/internal/audio"
	"github.com/sirupsen/logrus"
)

type pulseRecorder struct {
	opts        RecorderOptions
	isRecording bool
	onPCMData   func([]int16, int)
	stopCh      chan struct{}
	mu          sync.Mutex
	handle      *C.pa_simple
	wg          sync.WaitGroup
}

func newRecorder(opts RecorderOptions) audio.Capturer {
	return &pulseRecorder{opts: opts}
}

func (r *pulseRecorder) StartRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRecording {
		return ErrAlreadyRecording
	}
	var errorCode C.int
	samples := r.opts.FramesPerBuffer * r.opts.ChannelCount
	bufSize := samples * 2

	h := C.open_pulse_capture(C.uint(r.opts.SampleRate), C.int(r.opts.ChannelCount), &errorCode)
	if h == nil {
		return fmt.Errorf("打开PulseAudio录音设备失败: %s", C.GoString(C.pulse_error(errorCode)))
	}
	r.handle = h
	r.isRecording = true
	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		buf := make([]int16, samples)
		var readErr C.int
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			if C.read_pulse(h, unsafe.Pointer(&buf[0]), C.int(bufSize), &readErr) != 0 {
				logrus.Debugf("PulseAudio读取失败: %s", C.GoString(C.pulse_error(readErr)))
				continue
			}
			r.mu.Lock()
			cb := r.onPCMData
			r.mu.Unlock()
			if cb != nil {
				pcm := make([]int16, samples)
				copy(pcm, buf)
				cb(pcm, samples)
			}
		}
	}()
	logrus.Debugf("PulseAudio录音已启动: %dHz, %d通道", r.opts.SampleRate, r.opts.ChannelCount)
	return nil
}

func (r *pulseRecorder) StopRecording() error {
	r.mu.Lock()
	if !r.isRecording {
		r.mu.Unlock()
		return nil
	}
	close(r.stopCh)
	r.isRecording = false
	handle := r.handle
	r.handle = nil
	r.mu.Unlock()

	// 等待录音goroutine退出后再释放handle
	r.wg.Wait()
	if handle != nil {
		C.close_pulse(handle)
	}
	return nil
}

func (r *pulseRecorder) Close() error {
	return r.StopRecording()
}

func (r *pulseRecorder) SetPCMDataCallback(cb func([]int16, int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPCMData = cb
}

func (r *pulseRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRecording
}
