// Package codec defines the codec types negotiated in ZLMediaKit WebRTC sessions.
package codec

import "strings"

// Type represents a video or audio codec type.
type Type int

const (
	Unknown Type = iota

	// Video codecs
	H264
	H265
	VP8
	VP9
	AV1

	// Audio codecs
	Opus
	ISAC
	PCMU
	PCMA
	AAC
)

// String returns the string representation of the codec type.
func (t Type) String() string {
	switch t {
	case H264:
		return "H264"
	case H265:
		return "H265"
	case VP8:
		return "VP8"
	case VP9:
		return "VP9"
	case AV1:
		return "AV1"
	case Opus:
		return "Opus"
	case ISAC:
		return "ISAC"
	case PCMU:
		return "PCMU"
	case PCMA:
		return "PCMA"
	case AAC:
		return "AAC"
	default:
		return "Unknown"
	}
}

// SDPName returns the encoding name used in a=rtpmap lines.
// Matching against rtpmap lines is case sensitive, so opus stays lower case.
func (t Type) SDPName() string {
	switch t {
	case H264:
		return "H264"
	case H265:
		return "H265"
	case VP8:
		return "VP8"
	case VP9:
		return "VP9"
	case AV1:
		return "AV1"
	case Opus:
		return "opus"
	case ISAC:
		return "ISAC"
	case PCMU:
		return "PCMU"
	case PCMA:
		return "PCMA"
	case AAC:
		return "MPEG4-GENERIC"
	default:
		return ""
	}
}

// MimeType returns the MIME type for the codec.
func (t Type) MimeType() string {
	name := t.SDPName()
	switch {
	case name == "":
		return ""
	case t.IsVideo():
		return "video/" + name
	default:
		return "audio/" + name
	}
}

// IsVideo returns true if this is a video codec.
func (t Type) IsVideo() bool {
	switch t {
	case H264, H265, VP8, VP9, AV1:
		return true
	default:
		return false
	}
}

// IsAudio returns true if this is an audio codec.
func (t Type) IsAudio() bool {
	switch t {
	case Opus, ISAC, PCMU, PCMA, AAC:
		return true
	default:
		return false
	}
}

// ClockRate returns the RTP clock rate for the codec.
func (t Type) ClockRate() uint32 {
	switch t {
	case H264, H265, VP8, VP9, AV1:
		return 90000
	case Opus:
		return 48000
	case ISAC:
		return 16000
	case AAC:
		return 44100
	case PCMU, PCMA:
		return 8000
	default:
		return 0
	}
}

// Channels returns the channel count advertised in rtpmap, 0 for video.
func (t Type) Channels() uint16 {
	switch t {
	case Opus:
		return 2
	case ISAC, PCMU, PCMA, AAC:
		return 1
	default:
		return 0
	}
}

// ParseSDPName maps an rtpmap encoding name or MIME type to a codec type.
// The comparison ignores case; unrecognized names yield Unknown.
func ParseSDPName(name string) Type {
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	switch strings.ToUpper(name) {
	case "H264":
		return H264
	case "H265", "HEVC":
		return H265
	case "VP8":
		return VP8
	case "VP9":
		return VP9
	case "AV1":
		return AV1
	case "OPUS":
		return Opus
	case "ISAC":
		return ISAC
	case "PCMU":
		return PCMU
	case "PCMA":
		return PCMA
	case "MPEG4-GENERIC", "AAC":
		return AAC
	default:
		return Unknown
	}
}

// Video codec names accepted in client parameters.
const (
	VideoNameVP8          = "VP8"
	VideoNameVP9          = "VP9"
	VideoNameH264         = "H264"
	VideoNameH264Baseline = "H264 Baseline"
	VideoNameH264High     = "H264 High"
)

// Audio codec names accepted in client parameters.
const (
	AudioNameOpus = "OPUS"
	AudioNameISAC = "ISAC"
)

// PreferredVideoCodec maps a parameter video codec name to the codec whose
// payload types are moved to the front of the video m-line.
// Both H264 profiles map to H264; anything unrecognized falls back to VP8.
func PreferredVideoCodec(name string) Type {
	switch name {
	case VideoNameVP8:
		return VP8
	case VideoNameVP9:
		return VP9
	case VideoNameH264, VideoNameH264Baseline, VideoNameH264High:
		return H264
	default:
		return VP8
	}
}

// H264Profile identifies an H.264 profile by its profile-level-id.
type H264Profile string

const (
	H264ProfileConstrainedBaseline H264Profile = "42e01f"
	H264ProfileHigh                H264Profile = "640c1f"
)

// H264ProfileFor returns the profile requested by a parameter codec name.
func H264ProfileFor(name string) H264Profile {
	if name == VideoNameH264High {
		return H264ProfileHigh
	}
	return H264ProfileConstrainedBaseline
}

// FMTP returns the a=fmtp parameters used when registering the profile.
func (p H264Profile) FMTP() string {
	return "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=" + string(p)
}

// ZLMediaKit player codec ids, as reported by the on_mk_play_data callback.
const (
	ZLMCodecH264  = 0
	ZLMCodecH265  = 1
	ZLMCodecAAC   = 2
	ZLMCodecG711A = 3
	ZLMCodecG711U = 4
)

// FromZLMCodecID maps a ZLMediaKit codec id to a codec type.
func FromZLMCodecID(id int) Type {
	switch id {
	case ZLMCodecH264:
		return H264
	case ZLMCodecH265:
		return H265
	case ZLMCodecAAC:
		return AAC
	case ZLMCodecG711A:
		return PCMA
	case ZLMCodecG711U:
		return PCMU
	default:
		return Unknown
	}
}
