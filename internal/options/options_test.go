package options

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEnumValuesAreStable(t *testing.T) {
	tests := []struct {
		name string
		got  int32
		want int32
	}{
		{"CRModeExterCaptureSDKRender", int32(CRModeExterCaptureSDKRender), 1},
		{"CRModeSDKCaptureExterRender", int32(CRModeSDKCaptureExterRender), 2},
		{"CRModeSDKCaptureSDKRender", int32(CRModeSDKCaptureSDKRender), 3},
		{"CRModeExterCaptureExterRender", int32(CRModeExterCaptureExterRender), 4},
		{"IOUnitTypeVPIO", int32(IOUnitTypeVPIO), 0},
		{"IOUnitTypeRemoteIO", int32(IOUnitTypeRemoteIO), 1},
		{"ChannelModeCommunication", int32(ChannelModeCommunication), 0},
		{"ChannelModeLiveBroadcast", int32(ChannelModeLiveBroadcast), 1},
		{"ClientRoleAudience", int32(ClientRoleAudience), 0},
		{"ClientRoleBroadcast", int32(ClientRoleBroadcast), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestValidSets(t *testing.T) {
	valid := 0
	for n := -2; n <= 6; n++ {
		if CRMode(n).Valid() {
			valid++
		}
	}
	if valid != 4 {
		t.Fatalf("CRMode has %d valid values in [-2,6], want 4", valid)
	}
	if CRMode(0).Valid() {
		t.Fatal("CRMode 0 must be invalid")
	}

	for n := -2; n <= 4; n++ {
		want := n == 0 || n == 1
		if got := IOUnitType(n).Valid(); got != want {
			t.Errorf("IOUnitType(%d).Valid() = %v, want %v", n, got, want)
		}
		if got := ChannelMode(n).Valid(); got != want {
			t.Errorf("ChannelMode(%d).Valid() = %v, want %v", n, got, want)
		}
		if got := ClientRole(n).Valid(); got != want {
			t.Errorf("ClientRole(%d).Valid() = %v, want %v", n, got, want)
		}
	}
}

func TestFromIntRejectsOutOfRange(t *testing.T) {
	for _, n := range []int{0, 5, -1, 100} {
		if _, err := CRModeFromInt(n); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("CRModeFromInt(%d) err = %v, want ErrInvalidValue", n, err)
		}
	}
	for _, n := range []int{2, -1} {
		if _, err := IOUnitTypeFromInt(n); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("IOUnitTypeFromInt(%d) err = %v", n, err)
		}
		if _, err := ChannelModeFromInt(n); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("ChannelModeFromInt(%d) err = %v", n, err)
		}
		if _, err := ClientRoleFromInt(n); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("ClientRoleFromInt(%d) err = %v", n, err)
		}
	}
	m, err := CRModeFromInt(4)
	if err != nil || m != CRModeExterCaptureExterRender {
		t.Fatalf("CRModeFromInt(4) = %v, %v", m, err)
	}
}

func TestCRModeRouting(t *testing.T) {
	tests := []struct {
		mode       CRMode
		sdkCapture bool
		sdkRender  bool
	}{
		{CRModeExterCaptureSDKRender, false, true},
		{CRModeSDKCaptureExterRender, true, false},
		{CRModeSDKCaptureSDKRender, true, true},
		{CRModeExterCaptureExterRender, false, false},
	}
	for _, tt := range tests {
		if got := tt.mode.SDKCapture(); got != tt.sdkCapture {
			t.Errorf("%s.SDKCapture() = %v, want %v", tt.mode, got, tt.sdkCapture)
		}
		if got := tt.mode.SDKRender(); got != tt.sdkRender {
			t.Errorf("%s.SDKRender() = %v, want %v", tt.mode, got, tt.sdkRender)
		}
	}
}

func TestParse(t *testing.T) {
	if m, err := ParseCRMode("SDK-Capture-Exter-Render"); err != nil || m != CRModeSDKCaptureExterRender {
		t.Fatalf("ParseCRMode name = %v, %v", m, err)
	}
	if m, err := ParseCRMode(" 3 "); err != nil || m != CRModeSDKCaptureSDKRender {
		t.Fatalf("ParseCRMode int = %v, %v", m, err)
	}
	if _, err := ParseCRMode("0"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("ParseCRMode(0) err = %v", err)
	}
	if u, err := ParseIOUnitType("remote-io"); err != nil || u != IOUnitTypeRemoteIO {
		t.Fatalf("ParseIOUnitType = %v, %v", u, err)
	}
	if c, err := ParseChannelMode("live-broadcast"); err != nil || c != ChannelModeLiveBroadcast {
		t.Fatalf("ParseChannelMode = %v, %v", c, err)
	}
	if r, err := ParseClientRole("audience"); err != nil || r != ClientRoleAudience {
		t.Fatalf("ParseClientRole = %v, %v", r, err)
	}
	if _, err := ParseClientRole("host"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("ParseClientRole(host) err = %v", err)
	}
}

func TestStringOfInvalidValue(t *testing.T) {
	if got := CRMode(9).String(); got != "CRMode(9)" {
		t.Fatalf("CRMode(9).String() = %q", got)
	}
	if got := ClientRoleBroadcast.String(); got != "broadcaster" {
		t.Fatalf("ClientRoleBroadcast.String() = %q", got)
	}
}

func TestJSONUsesIntegers(t *testing.T) {
	o := Options{
		CRMode:      CRModeExterCaptureExterRender,
		IOUnit:      IOUnitTypeRemoteIO,
		ChannelMode: ChannelModeLiveBroadcast,
		ClientRole:  ClientRoleAudience,
	}
	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"cr_mode":4,"io_unit":1,"channel_mode":1,"client_role":0}`
	if string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}

	var back Options
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != o {
		t.Fatalf("Unmarshal = %+v, want %+v", back, o)
	}
}

func TestJSONRejectsInvalid(t *testing.T) {
	bad := []string{
		`{"cr_mode":0}`,
		`{"cr_mode":"sdk-capture-sdk-render"}`,
		`{"io_unit":2}`,
		`{"channel_mode":-1}`,
		`{"client_role":7}`,
		`{"client_role":null}`,
		`{"cr_mode":null}`,
	}
	for _, in := range bad {
		var o Options
		if err := json.Unmarshal([]byte(in), &o); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Unmarshal(%s) err = %v, want ErrInvalidValue", in, err)
		}
	}
	if _, err := json.Marshal(CRMode(0)); err == nil {
		t.Fatal("Marshal(CRMode(0)) should fail")
	}
}

func TestEffectiveRole(t *testing.T) {
	o := Default()
	o.ClientRole = ClientRoleAudience
	if !o.Transmits() {
		t.Fatal("communication mode should always transmit")
	}
	o.ChannelMode = ChannelModeLiveBroadcast
	if o.Transmits() {
		t.Fatal("audience in live broadcast should not transmit")
	}
	o.ClientRole = ClientRoleBroadcast
	if o.EffectiveRole() != ClientRoleBroadcast {
		t.Fatal("broadcaster in live broadcast should transmit")
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	var zero Options
	if err := zero.Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("zero Options should fail on cr_mode, got %v", err)
	}
}
