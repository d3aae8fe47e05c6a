package signaling

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
)

func TestDefaultParameters(t *testing.T) {
	p := DefaultParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if !p.VideoCallEnabled || p.VideoFPS != 24 {
		t.Errorf("unexpected defaults %+v", p)
	}
	cfg := p.Configuration()
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != pc.DefaultICEServer {
		t.Errorf("ICE servers = %+v", cfg.ICEServers)
	}
	if cfg.BundlePolicy != "max-bundle" || cfg.RTCPMuxPolicy != "require" || cfg.SDPSemantics != "unified-plan" {
		t.Errorf("policies = %+v", cfg)
	}
}

func TestParseParameters(t *testing.T) {
	data := []byte(`
video_call_enabled: false
video_codec: VP9
video_max_bitrate: 1700
audio_codec: ISAC
audio_start_bitrate: 32
data_channel:
  label: chat
  ordered: true
  max_retransmits: -1
  max_retransmit_time_ms: -1
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: u
    credential: p
`)
	p, err := ParseParameters(data)
	if err != nil {
		t.Fatalf("ParseParameters() = %v", err)
	}
	if p.VideoCallEnabled || p.VideoCodec != "VP9" || p.VideoMaxBitrate != 1700 {
		t.Errorf("video fields = %+v", p)
	}
	if !p.PreferISAC() || p.AudioStartBitrate != 32 {
		t.Errorf("audio fields = %+v", p)
	}
	if p.DataChannel == nil || p.DataChannel.Label != "chat" || !p.DataChannel.Ordered {
		t.Errorf("data channel = %+v", p.DataChannel)
	}
	// Unset keys keep their defaults.
	if p.VideoWidth != 1280 || p.VideoHeight != 720 {
		t.Errorf("defaults lost: %dx%d", p.VideoWidth, p.VideoHeight)
	}
	cfg := p.Configuration()
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].Username != "u" {
		t.Errorf("ICE servers = %+v", cfg.ICEServers)
	}
}

func TestParseParametersInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"video codec", "video_codec: MJPEG"},
		{"audio codec", "audio_codec: AAC"},
		{"bitrate", "audio_start_bitrate: -5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseParameters([]byte(tt.data)); !errors.Is(err, ErrInvalidParameters) {
				t.Errorf("ParseParameters() = %v, want ErrInvalidParameters", err)
			}
		})
	}

	if _, err := ParseParameters([]byte("video_fps: [")); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestLoadParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte("video_fps: 30\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := LoadParameters(path)
	if err != nil {
		t.Fatalf("LoadParameters() = %v", err)
	}
	if p.VideoFPS != 30 {
		t.Errorf("VideoFPS = %d, want 30", p.VideoFPS)
	}

	if _, err := LoadParameters(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadParameters on a missing file should fail")
	}
}

func TestSDPVideoCodecName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"VP8", "VP8"},
		{"VP9", "VP9"},
		{"H264 Baseline", "H264"},
		{"H264 High", "H264"},
		{"", "VP8"},
		{"whatever", "VP8"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SDPVideoCodecName(tt.in); got != tt.want {
				t.Errorf("SDPVideoCodecName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestProxySink(t *testing.T) {
	var p ProxySink
	f := frame.NewI420Frame(2, 2)

	// Unbound sinks drop frames.
	p.OnFrame(f)

	var got *frame.VideoFrame
	p.SetTarget(frame.VideoSinkFunc(func(v *frame.VideoFrame) { got = v }))
	p.OnFrame(f)
	if got != f {
		t.Error("bound sink did not forward the frame")
	}

	got = nil
	p.SetTarget(nil)
	p.OnFrame(f)
	if got != nil || p.Target() != nil {
		t.Error("unbound sink still forwards frames")
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{RoleOfferer.String(), "offerer"},
		{RoleAnswerer.String(), "answerer"},
		{Role(9).String(), "unknown"},
		{DirectionSendRecv.String(), "sendrecv"},
		{StateLocalSDPPending.String(), "local-sdp-pending"},
		{StateNegotiated.String(), "negotiated"},
		{State(99).String(), "unknown"},
		{EventRemoteVideoTrack.String(), "remote-video-track"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
	if !DirectionSendOnly.Sends() || DirectionSendOnly.Receives() || !DirectionRecvOnly.Receives() {
		t.Error("unexpected Direction predicates")
	}
}
