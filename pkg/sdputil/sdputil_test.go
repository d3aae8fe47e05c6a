package sdputil

import (
	"strings"
	"testing"
)

const offerSDP = "v=0\r\n" +
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0 1\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 103 9 0\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendrecv\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=rtpmap:103 ISAC/16000\r\n" +
	"a=rtpmap:9 G722/8000\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97 98 99 102\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n" +
	"a=recvonly\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtpmap:97 rtx/90000\r\n" +
	"a=fmtp:97 apt=96\r\n" +
	"a=rtpmap:98 VP9/90000\r\n" +
	"a=rtpmap:99 H264/90000\r\n" +
	"a=fmtp:99 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f\r\n" +
	"a=rtpmap:102 H264/90000\r\n" +
	"a=fmtp:102 level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=42e01f\r\n"

func mLine(t *testing.T, sdp, prefix string) string {
	t.Helper()
	for _, line := range SplitLines(sdp) {
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
	t.Fatalf("no %q line", prefix)
	return ""
}

func TestSplitJoinRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"offer", offerSDP},
		{"single line", "v=0\r\n"},
		{"lf inside lines", "v=0\r\na=x\nstill-x\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinLines(SplitLines(tt.body), true); got != tt.body {
				t.Errorf("round trip mismatch:\n got %q\nwant %q", got, tt.body)
			}
		})
	}
}

func TestSplitLinesDropsTrailingEmpty(t *testing.T) {
	lines := SplitLines("a\r\nb\r\n\r\n")
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("SplitLines = %q", lines)
	}
	// A trailing blank line does not survive the round trip.
	if got := JoinLines(SplitLines("a\r\n\r\n"), true); got != "a\r\n" {
		t.Errorf("round trip of trailing blank line = %q", got)
	}
	if JoinLines(nil, true) != "" {
		t.Error("JoinLines(nil) should be empty")
	}
}

func TestPreferCodecIdentity(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		codec string
		audio bool
	}{
		{"codec absent", offerSDP, "AV1", false},
		{"audio codec absent", offerSDP, "G729", true},
		{"no media line", "v=0\r\na=rtpmap:96 VP8/90000\r\n", "VP8", false},
		{"media line without formats", "v=0\r\nm=video 9 UDP/TLS/RTP/SAVPF\r\na=rtpmap:96 VP8/90000\r\n", "VP8", false},
		{"case sensitive", offerSDP, "OPUS", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreferCodec(tt.body, tt.codec, tt.audio); got != tt.body {
				t.Errorf("PreferCodec changed input:\n%q", got)
			}
		})
	}
}

func TestPreferCodecOrdering(t *testing.T) {
	tests := []struct {
		name  string
		codec string
		audio bool
		want  string
	}{
		{"h264 to front keeps both payload types in order", "H264", false, "m=video 9 UDP/TLS/RTP/SAVPF 99 102 96 97 98"},
		{"vp9 single payload type", "VP9", false, "m=video 9 UDP/TLS/RTP/SAVPF 98 96 97 99 102"},
		{"vp8 already first", "VP8", false, "m=video 9 UDP/TLS/RTP/SAVPF 96 97 98 99 102"},
		{"isac on audio", "ISAC", true, "m=audio 9 UDP/TLS/RTP/SAVPF 103 111 9 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := PreferCodec(offerSDP, tt.codec, tt.audio)
			prefix := "m=video "
			if tt.audio {
				prefix = "m=audio "
			}
			if got := mLine(t, out, prefix); got != tt.want {
				t.Errorf("m-line = %q, want %q", got, tt.want)
			}
			if !strings.HasSuffix(out, LineTerminator) {
				t.Error("output lost its trailing terminator")
			}
			if len(SplitLines(out)) != len(SplitLines(offerSDP)) {
				t.Error("PreferCodec must not add or remove lines")
			}
		})
	}
}

func TestPreferCodecLeavesOtherSection(t *testing.T) {
	out := PreferCodec(offerSDP, "H264", false)
	if got := mLine(t, out, "m=audio "); got != "m=audio 9 UDP/TLS/RTP/SAVPF 111 103 9 0" {
		t.Errorf("audio m-line changed: %q", got)
	}
}

func TestSetStartBitrateIdentity(t *testing.T) {
	if got := SetStartBitrate("AV1", true, offerSDP, 500); got != offerSDP {
		t.Errorf("SetStartBitrate changed input without rtpmap:\n%q", got)
	}
	if got := SetStartBitrate("opus", false, "", 32); got != "" {
		t.Errorf("SetStartBitrate on empty body = %q", got)
	}
}

func TestSetStartBitrateInsertsOpusLine(t *testing.T) {
	out := SetStartBitrate("opus", false, offerSDP, 32)
	lines := SplitLines(out)

	idx := -1
	for i, line := range lines {
		if line == "a=rtpmap:111 opus/48000/2" {
			idx = i
		}
	}
	if idx == -1 || idx+1 >= len(lines) {
		t.Fatalf("rtpmap line missing from output")
	}
	if lines[idx+1] != "a=fmtp:111 maxaveragebitrate=32000" {
		t.Errorf("line after rtpmap = %q", lines[idx+1])
	}
	if len(lines) != len(SplitLines(offerSDP))+1 {
		t.Errorf("expected exactly one inserted line")
	}
}

func TestSetStartBitrateUpdatesExistingFmtp(t *testing.T) {
	out := SetStartBitrate("H264", true, offerSDP, 800)

	want := "a=fmtp:99 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f; x-google-start-bitrate=800"
	if !strings.Contains(out, want+LineTerminator) {
		t.Errorf("fmtp not updated, got:\n%s", out)
	}
	// Only the first rtpmap match is updated.
	if strings.Contains(out, "packetization-mode=0;profile-level-id=42e01f; x-google") {
		t.Error("second H264 payload type should not be updated")
	}
}

func TestSetStartBitrateSingleFmtpPerPayloadType(t *testing.T) {
	body := "m=video 9 UDP/TLS/RTP/SAVPF 99\r\n" +
		"a=rtpmap:99 H264/90000\r\n" +
		"a=fmtp:99 level-asymmetry-allowed=1;packetization-mode=1\r\n"
	out := SetStartBitrate("H264", true, body, 800)

	if n := strings.Count(out, "a=fmtp:99 "); n != 1 {
		t.Fatalf("a=fmtp:99 lines = %d, want 1:\n%s", n, out)
	}
	want := "a=fmtp:99 level-asymmetry-allowed=1;packetization-mode=1; x-google-start-bitrate=800\r\n"
	if !strings.HasSuffix(out, want) {
		t.Errorf("fmtp not extended:\n%s", out)
	}
}

func TestSetStartBitrateVideoInsert(t *testing.T) {
	out := SetStartBitrate("VP9", true, offerSDP, 1500)
	if !strings.Contains(out, "a=rtpmap:98 VP9/90000\r\na=fmtp:98 x-google-start-bitrate=1500\r\n") {
		t.Errorf("fmtp line not inserted after VP9 rtpmap:\n%s", out)
	}
}

func TestSetStartBitrateDuplicateAppend(t *testing.T) {
	once := SetStartBitrate("opus", false, offerSDP, 32)
	twice := SetStartBitrate("opus", false, once, 32)

	want := "a=fmtp:111 maxaveragebitrate=32000; maxaveragebitrate=32000"
	if !strings.Contains(twice, want) {
		t.Errorf("second call should append a duplicate parameter, got:\n%s", twice)
	}
}

func TestTransformsCompose(t *testing.T) {
	out := PreferCodec(offerSDP, "ISAC", true)
	out = PreferCodec(out, "H264", false)
	out = SetStartBitrate("opus", false, out, 32)

	if got := mLine(t, out, "m=audio "); got != "m=audio 9 UDP/TLS/RTP/SAVPF 103 111 9 0" {
		t.Errorf("audio preference lost: %q", got)
	}
	if got := mLine(t, out, "m=video "); got != "m=video 9 UDP/TLS/RTP/SAVPF 99 102 96 97 98" {
		t.Errorf("video preference lost: %q", got)
	}
	if !strings.Contains(out, "a=fmtp:111 maxaveragebitrate=32000\r\n") {
		t.Error("bitrate line missing")
	}
}

func TestInspect(t *testing.T) {
	s, err := Inspect(offerSDP)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(s.Media) != 2 {
		t.Fatalf("len(Media) = %d, want 2", len(s.Media))
	}

	audio, ok := s.Find("audio")
	if !ok || audio.MID != "0" || audio.Direction != "sendrecv" {
		t.Errorf("audio = %+v", audio)
	}
	video, ok := s.Find("video")
	if !ok || video.Direction != "recvonly" {
		t.Errorf("video = %+v", video)
	}

	c, ok := s.PreferredCodec("audio")
	if !ok || c.Name != "opus" || c.PayloadType != 111 || c.ClockRate != 48000 {
		t.Errorf("PreferredCodec(audio) = %+v", c)
	}
	if _, ok := s.Find("application"); ok {
		t.Error("unexpected application section")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(offerSDP); err != nil {
		t.Errorf("Validate(offer) = %v", err)
	}
	if err := Validate("v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\n"); err != ErrNoMedia {
		t.Errorf("Validate(no media) = %v, want ErrNoMedia", err)
	}
	if err := Validate("not an sdp"); err == nil {
		t.Error("Validate(garbage) should fail")
	}
}
