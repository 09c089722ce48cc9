package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justa-cai/audioio/internal/options"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audioio.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.SampleRate != def.SampleRate || cfg.CRMode != def.CRMode || cfg.VAD.SpeechTimeout != def.VAD.SpeechTimeout {
		t.Fatalf("cfg = %+v", cfg)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts != options.Default() {
		t.Fatalf("opts = %s", opts)
	}
}

func TestLoadFileAcceptsNamesAndIntegers(t *testing.T) {
	path := writeFile(t, `
server_url: ws://127.0.0.1:8000/ws
cr_mode: 4
io_unit: remote-io
channel_mode: 1
client_role: Audience
frame_duration: 20
vad:
  amplitude_threshold: 800
  speech_timeout: 500ms
render_buffer: 2s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "ws://127.0.0.1:8000/ws" || cfg.FrameDuration != 20 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.VAD.AmplitudeThreshold != 800 || cfg.VAD.SpeechTimeout != 500*time.Millisecond {
		t.Fatalf("vad = %+v", cfg.VAD)
	}
	if cfg.VAD.MaxSpeechLength != 30*time.Second {
		t.Fatalf("max speech length default lost: %v", cfg.VAD.MaxSpeechLength)
	}

	eo, err := cfg.EngineOptions()
	if err != nil {
		t.Fatalf("EngineOptions: %v", err)
	}
	want := options.Options{
		CRMode:      options.CRModeExterCaptureExterRender,
		IOUnit:      options.IOUnitTypeRemoteIO,
		ChannelMode: options.ChannelModeLiveBroadcast,
		ClientRole:  options.ClientRoleAudience,
	}
	if eo.Options != want || eo.RenderBuffer != 2*time.Second || eo.FrameDuration != 20 {
		t.Fatalf("engine options = %+v", eo)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "client_role: broadcaster\nsample_rate: 16000\n")
	t.Setenv("AUDIOIO_CLIENT_ROLE", "0")
	t.Setenv("AUDIOIO_VAD_AMPLITUDE_THRESHOLD", "2500")
	t.Setenv("AUDIOIO_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClientRole != "0" || cfg.VAD.AmplitudeThreshold != 2500 || cfg.Token != "env-token" {
		t.Fatalf("cfg = %+v", cfg)
	}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.ClientRole != options.ClientRoleAudience {
		t.Fatalf("role = %s", opts.ClientRole)
	}
}

func TestInvalidEnumRejected(t *testing.T) {
	cfg := Default()
	cfg.CRMode = "5"
	if _, err := cfg.Options(); !errors.Is(err, options.ErrInvalidValue) {
		t.Fatalf("Options err = %v", err)
	}
	if _, err := cfg.EngineOptions(); err == nil {
		t.Fatal("EngineOptions should fail")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"http server url", func(c *Config) { c.ServerURL = "http://example.com" }, false},
		{"bad ota url", func(c *Config) { c.OTAURL = "ftp://example.com" }, false},
		{"bad sample rate", func(c *Config) { c.SampleRate = 44100 }, false},
		{"bad channels", func(c *Config) { c.Channels = 3 }, false},
		{"bad frame duration", func(c *Config) { c.FrameDuration = 30 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "audioio.yaml")
	cfg := Default()
	cfg.Token = "secret"
	cfg.SetOptions(options.Options{
		CRMode:      options.CRModeSDKCaptureExterRender,
		IOUnit:      options.IOUnitTypeRemoteIO,
		ChannelMode: options.ChannelModeLiveBroadcast,
		ClientRole:  options.ClientRoleAudience,
	})
	cfg.VAD.SpeechTimeout = 1500 * time.Millisecond

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("perm = %o, want 600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Token != "secret" || loaded.VAD.SpeechTimeout != 1500*time.Millisecond {
		t.Fatalf("loaded = %+v", loaded)
	}
	opts, err := loaded.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.CRMode != options.CRModeSDKCaptureExterRender || opts.ClientRole != options.ClientRoleAudience {
		t.Fatalf("opts = %s", opts)
	}
}
