// Package sdputil rewrites SDP bodies line by line and inspects their
// structure.
//
// The transforms are pure: they never fail, and when there is nothing to
// rewrite they return the input unchanged.
package sdputil

import (
	"regexp"
	"strconv"
	"strings"
)

// LineTerminator is the SDP wire line terminator.
const LineTerminator = "\r\n"

// Bitrate parameter names injected into a=fmtp lines.
const (
	VideoStartBitrateParam = "x-google-start-bitrate"
	AudioMaxBitrateParam   = "maxaveragebitrate"
)

// SplitLines splits an SDP body on CRLF. Trailing empty lines are dropped,
// so a body that ends with a terminator does not yield an empty last line.
// A body ending in a blank line ("...\r\n\r\n") therefore loses it on a
// round trip through JoinLines; SDP never carries blank lines.
func SplitLines(sdp string) []string {
	lines := strings.Split(sdp, LineTerminator)
	end := len(lines)
	for end > 1 && lines[end-1] == "" {
		end--
	}
	return lines[:end]
}

// JoinLines joins lines with CRLF, optionally terminating the last line too.
func JoinLines(lines []string, terminate bool) string {
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, LineTerminator)
	if terminate {
		s += LineTerminator
	}
	return s
}

func rtpmapPattern(codecName string) *regexp.Regexp {
	// a=rtpmap:<payload type> <encoding name>/<clock rate> [/<encoding parameters>]
	return regexp.MustCompile(`^a=rtpmap:(\d+) ` + regexp.QuoteMeta(codecName) + `(/\d+)+[\r]?$`)
}

func findMediaLine(lines []string, audio bool) int {
	prefix := "m=video "
	if audio {
		prefix = "m=audio "
	}
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			return i
		}
	}
	return -1
}

// movePayloadTypesToFront rewrites "m=<media> <port> <proto> <fmt> ..." so
// that preferred comes right after the proto field. It returns false when the
// line has no format list.
func movePayloadTypesToFront(preferred []string, mLine string) (string, bool) {
	parts := strings.Split(mLine, " ")
	if len(parts) <= 3 {
		return "", false
	}
	skip := make(map[string]struct{}, len(preferred))
	for _, pt := range preferred {
		skip[pt] = struct{}{}
	}

	out := make([]string, 0, len(parts)+len(preferred))
	out = append(out, parts[:3]...)
	out = append(out, preferred...)
	for _, pt := range parts[3:] {
		if _, ok := skip[pt]; !ok {
			out = append(out, pt)
		}
	}
	return strings.Join(out, " "), true
}

// PreferCodec moves every payload type whose rtpmap names codecName to the
// front of the first audio (or video) media line. Payload types keep their
// relative order within both groups.
func PreferCodec(sdp, codecName string, audio bool) string {
	lines := SplitLines(sdp)
	mLineIndex := findMediaLine(lines, audio)
	if mLineIndex == -1 {
		return sdp
	}

	pattern := rtpmapPattern(codecName)
	var payloadTypes []string
	for _, line := range lines {
		if m := pattern.FindStringSubmatch(line); m != nil {
			payloadTypes = append(payloadTypes, m[1])
		}
	}
	if len(payloadTypes) == 0 {
		return sdp
	}

	newMLine, ok := movePayloadTypesToFront(payloadTypes, lines[mLineIndex])
	if !ok {
		return sdp
	}
	lines[mLineIndex] = newMLine
	return JoinLines(lines, true)
}

// SetStartBitrate injects a bitrate parameter for codecName.
//
// Video codecs get x-google-start-bitrate in kbps; audio codecs get
// maxaveragebitrate in bps. An existing a=fmtp line for the codec's payload
// type is extended with "; param=value". Otherwise a new a=fmtp line is
// inserted right after the rtpmap line. Calling it twice appends the
// parameter twice.
func SetStartBitrate(codecName string, video bool, sdp string, bitrateKbps int) string {
	lines := SplitLines(sdp)

	rtpmapIndex := -1
	payloadType := ""
	pattern := rtpmapPattern(codecName)
	for i, line := range lines {
		if m := pattern.FindStringSubmatch(line); m != nil {
			payloadType = m[1]
			rtpmapIndex = i
			break
		}
	}
	if rtpmapIndex == -1 {
		return sdp
	}

	param, value := AudioMaxBitrateParam, strconv.Itoa(bitrateKbps*1000)
	if video {
		param, value = VideoStartBitrateParam, strconv.Itoa(bitrateKbps)
	}

	updated := false
	// Any parameter list counts, including hyphenated names like
	// level-asymmetry-allowed; a payload type may carry one fmtp line only.
	fmtp := regexp.MustCompile(`^a=fmtp:` + payloadType + ` \S`)
	for i, line := range lines {
		if fmtp.MatchString(line) {
			lines[i] = line + "; " + param + "=" + value
			updated = true
			break
		}
	}

	out := make([]string, 0, len(lines)+1)
	for i, line := range lines {
		out = append(out, line)
		if !updated && i == rtpmapIndex {
			out = append(out, "a=fmtp:"+payloadType+" "+param+"="+value)
		}
	}
	return JoinLines(out, true)
}
