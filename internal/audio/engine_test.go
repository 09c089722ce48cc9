package audio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/justa-cai/audioio/internal/options"
)

// 测试用编解码器：编码结果为PCM字节流，解码反之
type fakeCodec struct {
	mu      sync.Mutex
	encoded int
}

func (c *fakeCodec) Encode(pcm []int16) ([]byte, error) {
	c.mu.Lock()
	c.encoded++
	c.mu.Unlock()
	return PCMToBytes(pcm), nil
}

func (c *fakeCodec) Decode(data []byte, pcm []int16) (int, error) {
	return BytesToPCM(data, pcm), nil
}

type fakeCapturer struct {
	mu        sync.Mutex
	cb        func([]int16, int)
	recording bool
	closed    bool
	startErr  error
}

func (c *fakeCapturer) StartRecording() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = true
	return nil
}

func (c *fakeCapturer) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = false
	return nil
}

func (c *fakeCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCapturer) SetPCMDataCallback(cb func([]int16, int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

func (c *fakeCapturer) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// emit 模拟录音线程送出一帧
func (c *fakeCapturer) emit(pcm []int16) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(pcm, len(pcm))
	}
}

type fakeRenderer struct {
	mu      sync.Mutex
	queued  [][]int16
	playing bool
	closed  bool
}

func (r *fakeRenderer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = true
	return nil
}

func (r *fakeRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = false
	return nil
}

func (r *fakeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRenderer) QueuePCMAudio(pcm []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, pcm)
}

func (r *fakeRenderer) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

func testOptions(mode options.CRMode, unit options.IOUnitType) EngineOptions {
	opts := options.Default()
	opts.CRMode = mode
	opts.IOUnit = unit
	return EngineOptions{
		Options:       opts,
		SampleRate:    16000,
		ChannelCount:  1,
		FrameDuration: 10, // 160个采样
	}
}

func newTestEngine(t *testing.T, opts EngineOptions) (*Engine, *fakeCapturer, *fakeRenderer, *fakeCodec) {
	t.Helper()
	capturer := &fakeCapturer{}
	renderer := &fakeRenderer{}
	codec := &fakeCodec{}
	e, err := NewEngine(opts, Devices{Capturer: capturer, Renderer: renderer, Encoder: codec, Decoder: codec})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, capturer, renderer, codec
}

func constFrame(n int, v int16) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = v
	}
	return pcm
}

func TestNewEngineValidatesDevices(t *testing.T) {
	codec := &fakeCodec{}
	if _, err := NewEngine(testOptions(options.CRModeSDKCaptureSDKRender, options.IOUnitTypeRemoteIO),
		Devices{Encoder: codec, Decoder: codec}); err == nil {
		t.Fatal("SDK capture without capturer should fail")
	}
	if _, err := NewEngine(testOptions(options.CRModeExterCaptureExterRender, options.IOUnitTypeRemoteIO),
		Devices{Encoder: codec, Decoder: codec}); err != nil {
		t.Fatalf("external capture/render needs no devices: %v", err)
	}
	bad := testOptions(options.CRMode(0), options.IOUnitTypeRemoteIO)
	if _, err := NewEngine(bad, Devices{Encoder: codec, Decoder: codec}); !errors.Is(err, options.ErrInvalidValue) {
		t.Fatalf("invalid CRMode err = %v", err)
	}
}

func TestNewEngineRejectsEmptyFrame(t *testing.T) {
	codec := &fakeCodec{}
	opts := testOptions(options.CRModeExterCaptureExterRender, options.IOUnitTypeRemoteIO)
	opts.SampleRate = 100
	opts.FrameDuration = 5
	if _, err := NewEngine(opts, Devices{Encoder: codec, Decoder: codec}); err == nil {
		t.Fatal("100Hz x 5ms has no samples per frame and should be rejected")
	}
}

func TestSDKCaptureRoutesDeviceFrames(t *testing.T) {
	e, capturer, renderer, _ := newTestEngine(t, testOptions(options.CRModeSDKCaptureSDKRender, options.IOUnitTypeRemoteIO))
	var frames [][]byte
	e.SetFrameCallback(func(b []byte) { frames = append(frames, b) })

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !capturer.IsRecording() || !renderer.IsPlaying() {
		t.Fatal("devices should be started")
	}
	capturer.emit(constFrame(160, 100))
	capturer.emit(constFrame(80, 100))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	capturer.emit(constFrame(80, 100))
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}

	if err := e.PushExternalAudioFrame(constFrame(160, 1), time.Now()); !errors.Is(err, ErrCaptureNotExternal) {
		t.Fatalf("push in SDK capture mode err = %v", err)
	}
}

func TestExternalCaptureRequiresStart(t *testing.T) {
	e, capturer, _, _ := newTestEngine(t, testOptions(options.CRModeExterCaptureSDKRender, options.IOUnitTypeRemoteIO))
	if err := e.PushExternalAudioFrame(constFrame(160, 1), time.Now()); !errors.Is(err, ErrEngineNotStarted) {
		t.Fatalf("push before start err = %v", err)
	}
	var got [][]int16
	e.SetPCMCallback(func(pcm []int16) { got = append(got, pcm) })
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if capturer.IsRecording() {
		t.Fatal("external capture must not start the device recorder")
	}
	if err := e.PushExternalAudioFrame(constFrame(320, 7), time.Now()); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(got) != 2 || got[1][0] != 7 {
		t.Fatalf("pcm frames = %d", len(got))
	}
}

func TestAudienceDoesNotEncode(t *testing.T) {
	opts := testOptions(options.CRModeExterCaptureExterRender, options.IOUnitTypeRemoteIO)
	opts.Options.ChannelMode = options.ChannelModeLiveBroadcast
	opts.Options.ClientRole = options.ClientRoleAudience
	e, _, _, codec := newTestEngine(t, opts)

	var frames, pcms int
	e.SetFrameCallback(func([]byte) { frames++ })
	e.SetPCMCallback(func([]int16) { pcms++ })
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = e.PushExternalAudioFrame(constFrame(160, 5), time.Now())
	if frames != 0 || codec.encoded != 0 {
		t.Fatalf("audience encoded %d frames", frames)
	}
	if pcms != 1 {
		t.Fatalf("pcm callback should still fire, got %d", pcms)
	}

	if err := e.SetClientRole(options.ClientRoleBroadcast); err != nil {
		t.Fatalf("SetClientRole: %v", err)
	}
	_ = e.PushExternalAudioFrame(constFrame(160, 5), time.Now())
	if frames != 1 {
		t.Fatalf("broadcaster frames = %d, want 1", frames)
	}
	if err := e.SetClientRole(options.ClientRole(3)); !errors.Is(err, options.ErrInvalidValue) {
		t.Fatalf("invalid role err = %v", err)
	}
}

func TestSDKRenderQueuesToDevice(t *testing.T) {
	e, _, renderer, _ := newTestEngine(t, testOptions(options.CRModeExterCaptureSDKRender, options.IOUnitTypeRemoteIO))
	if err := e.PlayEncoded(PCMToBytes(constFrame(160, 42))); err != nil {
		t.Fatalf("PlayEncoded: %v", err)
	}
	if len(renderer.queued) != 1 || len(renderer.queued[0]) != 160 || renderer.queued[0][0] != 42 {
		t.Fatalf("renderer queue = %v", len(renderer.queued))
	}
	if _, err := e.PullPlaybackAudioFrame(make([]int16, 10)); !errors.Is(err, ErrRenderNotExternal) {
		t.Fatalf("pull in SDK render mode err = %v", err)
	}
}

func TestExternalRenderPull(t *testing.T) {
	e, _, renderer, _ := newTestEngine(t, testOptions(options.CRModeSDKCaptureExterRender, options.IOUnitTypeRemoteIO))
	if err := e.PlayPCM([]int16{1, 2, 3}); err != nil {
		t.Fatalf("PlayPCM: %v", err)
	}
	if len(renderer.queued) != 0 {
		t.Fatal("external render must not touch the device renderer")
	}
	if e.PendingPlayback() != 3 {
		t.Fatalf("pending = %d, want 3", e.PendingPlayback())
	}

	buf := []int16{9, 9, 9, 9, 9}
	n, err := e.PullPlaybackAudioFrame(buf)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}
	want := []int16{1, 2, 3, 0, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("buf = %v, want %v", buf, want)
		}
	}

	n, _ = e.PullPlaybackAudioFrame(buf)
	if n != 0 || buf[0] != 0 {
		t.Fatalf("empty pull n=%d buf=%v", n, buf)
	}
}

func TestVPIODucksCaptureWhileRendering(t *testing.T) {
	e, _, _, _ := newTestEngine(t, testOptions(options.CRModeExterCaptureExterRender, options.IOUnitTypeVPIO))
	var got [][]int16
	e.SetPCMCallback(func(pcm []int16) { got = append(got, pcm) })
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tone := make([]int16, 160)
	for i := range tone {
		if i%2 == 0 {
			tone[i] = 10000
		} else {
			tone[i] = -10000
		}
	}
	_ = e.PushExternalAudioFrame(tone, time.Now())
	_ = e.PlayPCM(tone)
	_ = e.PushExternalAudioFrame(tone, time.Now())

	if len(got) != 2 {
		t.Fatalf("frames = %d", len(got))
	}
	if peak(got[1]) >= peak(got[0])/2 {
		t.Fatalf("capture not ducked: before=%d after=%d", peak(got[0]), peak(got[1]))
	}
}

func TestRemoteIOPassesThrough(t *testing.T) {
	e, _, _, _ := newTestEngine(t, testOptions(options.CRModeExterCaptureExterRender, options.IOUnitTypeRemoteIO))
	var got []int16
	e.SetPCMCallback(func(pcm []int16) { got = pcm })
	_ = e.Start()
	in := constFrame(160, 1234)
	_ = e.PushExternalAudioFrame(in, time.Now())
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e, capturer, renderer, _ := newTestEngine(t, testOptions(options.CRModeSDKCaptureSDKRender, options.IOUnitTypeVPIO))
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !capturer.closed || !renderer.closed {
		t.Fatal("devices should be closed")
	}
	if err := e.Start(); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("Start after Close err = %v", err)
	}
	if err := e.PlayPCM([]int16{1}); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("PlayPCM after Close err = %v", err)
	}
}

func TestStartFailureResetsState(t *testing.T) {
	opts := testOptions(options.CRModeSDKCaptureSDKRender, options.IOUnitTypeRemoteIO)
	capturer := &fakeCapturer{startErr: errors.New("no device")}
	renderer := &fakeRenderer{}
	codec := &fakeCodec{}
	e, err := NewEngine(opts, Devices{Capturer: capturer, Renderer: renderer, Encoder: codec, Decoder: codec})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(); err == nil {
		t.Fatal("Start should fail")
	}
	if e.IsRunning() || renderer.IsPlaying() {
		t.Fatal("engine and renderer should be stopped after failed start")
	}
}

func peak(pcm []int16) int {
	m := 0
	for _, s := range pcm {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}
