package ota

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justa-cai/audioio/internal/options"
)

func newTestClient(url string) *OTAClient {
	c := NewOTAClient("aa:bb:cc:dd:ee:ff", "1.0.0", "desktop", options.Default())
	c.Endpoint = url
	return c
}

func TestRequestActivation(t *testing.T) {
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Device-Id") != "aa:bb:cc:dd:ee:ff" {
			t.Errorf("Device-Id = %q", r.Header.Get("Device-Id"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"firmware": {"version": "1.1.0"},
			"activation": {"code": "123456", "message": "请在控制台输入验证码"},
			"websocket": {"url": "wss://example.com/ws", "token": "tok"},
			"options": {"cr_mode": 4, "client_role": 0}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.RequestActivation(context.Background())
	if err != nil {
		t.Fatalf("RequestActivation: %v", err)
	}
	if resp.Activated() || resp.Activation.Code != "123456" {
		t.Fatalf("activation = %+v", resp.Activation)
	}
	if resp.Websocket.URL != "wss://example.com/ws" || resp.Websocket.Token != "tok" {
		t.Fatalf("websocket = %+v", resp.Websocket)
	}

	var sent map[string]int
	if err := json.Unmarshal(gotBody["audio_options"], &sent); err != nil {
		t.Fatalf("audio_options: %v", err)
	}
	if sent["cr_mode"] != 3 || sent["io_unit"] != 0 || sent["client_role"] != 1 {
		t.Fatalf("audio_options = %v", sent)
	}

	merged, err := resp.Options.Apply(options.Default())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := options.Options{
		CRMode:      options.CRModeExterCaptureExterRender,
		IOUnit:      options.IOUnitTypeVPIO,
		ChannelMode: options.ChannelModeCommunication,
		ClientRole:  options.ClientRoleAudience,
	}
	if merged != want {
		t.Fatalf("merged = %s, want %s", merged, want)
	}
}

func TestServerOptionsRejectInvalid(t *testing.T) {
	bad := 7
	so := &ServerOptions{IOUnit: &bad}
	base := options.Default()
	got, err := so.Apply(base)
	if !errors.Is(err, options.ErrInvalidValue) {
		t.Fatalf("err = %v", err)
	}
	if got != base {
		t.Fatalf("base modified: %s", got)
	}

	var nilOpts *ServerOptions
	if got, err := nilOpts.Apply(base); err != nil || got != base {
		t.Fatalf("nil Apply = %s, %v", got, err)
	}
}

func TestRequestActivationHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).RequestActivation(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRequestActivationInvalidOptions(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	c.DeviceInfo.Options.CRMode = options.CRMode(0)
	if _, err := c.RequestActivation(context.Background()); !errors.Is(err, options.ErrInvalidValue) {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckFirmwareUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"firmware":{"version":"2.0.0"},"activation":{}}`))
	}))
	defer srv.Close()

	version, newer, err := newTestClient(srv.URL).CheckFirmwareUpdate(context.Background())
	if err != nil || !newer || version != "2.0.0" {
		t.Fatalf("CheckFirmwareUpdate = %s, %v, %v", version, newer, err)
	}
}

func TestPollActivation(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Write([]byte(`{"activation":{"code":"654321"}}`))
			return
		}
		w.Write([]byte(`{"activation":{},"websocket":{"url":"ws://example.com","token":"t"}}`))
	}))
	defer srv.Close()

	var codes []string
	resp, err := newTestClient(srv.URL).PollActivation(context.Background(), time.Millisecond, func(code string) {
		codes = append(codes, code)
	})
	if err != nil {
		t.Fatalf("PollActivation: %v", err)
	}
	if !resp.Activated() || resp.Websocket.Token != "t" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(codes) != 1 || codes[0] != "654321" {
		t.Fatalf("codes = %v", codes)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d", calls)
	}
}
