//go:build windows

package native

/*
#cgo LDFLAGS: -lwinmm
#include <windows.h>
#include <mmsystem.h>
#include <stdlib.h>
#include <string.h>

static HWAVEIN hWaveIn;
static WAVEHDR waveHdr;
static short *buffer;

static int start_recording(int sampleRate, int channels, int bufsize) {
    WAVEFORMATEX wfx;
    wfx.wFormatTag = WAVE_FORMAT_PCM;
    wfx.nChannels = channels;
    wfx.nSamplesPerSec = sampleRate;
    wfx.wBitsPerSample = 16;
    wfx.nBlockAlign = wfx.nChannels * wfx.wBitsPerSample / 8;
    wfx.nAvgBytesPerSec = wfx.nSamplesPerSec * wfx.nBlockAlign;
    wfx.cbSize = 0;

    buffer = (short*)malloc(bufsize * sizeof(short));
    if (waveInOpen(&hWaveIn, WAVE_MAPPER, &wfx, 0, 0, CALLBACK_NULL) != MMSYSERR_NOERROR) {
        free(buffer);
        return -1;
    }
    waveHdr.lpData = (LPSTR)buffer;
    waveHdr.dwBufferLength = bufsize * sizeof(short);
    waveHdr.dwFlags = 0;
    waveHdr.dwLoops = 0;
    if (waveInPrepareHeader(hWaveIn, &waveHdr, sizeof(WAVEHDR)) != MMSYSERR_NOERROR) {
        return -2;
    }
    if (waveInAddBuffer(hWaveIn, &waveHdr, sizeof(WAVEHDR)) != MMSYSERR_NOERROR) {
        return -3;
    }
    if (waveInStart(hWaveIn) != MMSYSERR_NOERROR) {
        return -4;
    }
    return 0;
}
// 缓冲区写满时返回采样数并重新提交缓冲区
static int read_pcm(short *dst, int bufsize) {
    if (!(waveHdr.dwFlags & WHDR_DONE)) {
        return 0;
    }
    int n = waveHdr.dwBytesRecorded / sizeof(short);
    if (n > bufsize) n = bufsize;
    memcpy(dst, buffer, n * sizeof(short));
    waveHdr.dwFlags &= ~WHDR_DONE;
    waveInAddBuffer(hWaveIn, &waveHdr, sizeof(WAVEHDR));
    return n;
}
static void stop_recording() {
    waveInStop(hWaveIn);
    waveInReset(hWaveIn);
    waveInUnprepareHeader(hWaveIn, &waveHdr, sizeof(WAVEHDR));
    waveInClose(hWaveIn);
    free(buffer);
}
*/
import "C"
import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/justa-cai/audioio/internal/audio"
)

type winRecorder struct {
	opts        RecorderOptions
	isRecording bool
	onPCMData   func([]int16, int)
	stopCh      chan struct{}
	mu          sync.Mutex
	wg          sync.WaitGroup
}

func newRecorder(opts RecorderOptions) audio.Capturer {
	return &winRecorder{opts: opts}
}

func (r *winRecorder) StartRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRecording {
		return ErrAlreadyRecording
	}
	samples := r.opts.FramesPerBuffer * r.opts.ChannelCount
	if code := C.start_recording(C.int(r.opts.SampleRate), C.int(r.opts.ChannelCount), C.int(samples)); code != 0 {
		return fmt.Errorf("打开Windows录音设备失败: %d", int(code))
	}
	r.isRecording = true
	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		buf := make([]int16, samples)
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			n := int(C.read_pcm((*C.short)(unsafe.Pointer(&buf[0])), C.int(samples)))
			if n == 0 {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			r.mu.Lock()
			cb := r.onPCMData
			r.mu.Unlock()
			if cb != nil {
				pcm := make([]int16, n)
				copy(pcm, buf[:n])
				cb(pcm, n)
			}
		}
	}()
	return nil
}

func (r *winRecorder) StopRecording() error {
	r.mu.Lock()
	if !r.isRecording {
		r.mu.Unlock()
		return nil
	}
	close(r.stopCh)
	r.isRecording = false
	r.mu.Unlock()

	r.wg.Wait()
	C.stop_recording()
	return nil
}

func (r *winRecorder) Close() error {
	return r.StopRecording()
}

func (r *winRecorder) SetPCMDataCallback(cb func([]int16, int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPCMData = cb
}

func (r *winRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRecording
}
