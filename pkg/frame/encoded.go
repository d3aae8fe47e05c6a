package frame

import (
	"time"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
)

// TrackType is the ZLMediaKit track kind a player frame belongs to.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
	TrackTitle
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackTitle:
		return "title"
	default:
		return "unknown"
	}
}

// Prefix sizes of the bitstreams a ZLMediaKit player emits.
const (
	AnnexBPrefixSize = 4
	ADTSHeaderSize   = 7
)

// PlayerFrame is one demuxed frame from a native ZLMediaKit player.
type PlayerFrame struct {
	Track TrackType
	Codec codec.Type

	// DTS and PTS are in milliseconds.
	DTS uint32
	PTS uint32

	KeyFrame bool

	// PrefixSize is the length of the Annex-B start code or ADTS header
	// at the front of Data.
	PrefixSize int

	Data []byte
}

// NewPlayerFrame builds a frame from the values passed to the player data
// callback. Data is retained, not copied.
func NewPlayerFrame(track TrackType, c codec.Type, data []byte, dts, pts uint32) *PlayerFrame {
	f := &PlayerFrame{
		Track: track,
		Codec: c,
		DTS:   dts,
		PTS:   pts,
		Data:  data,
	}
	switch c {
	case codec.H264, codec.H265:
		f.PrefixSize = annexBPrefix(data)
		f.KeyFrame = isKeyNAL(c, data, f.PrefixSize)
	case codec.AAC:
		if len(data) >= ADTSHeaderSize && data[0] == 0xFF && data[1]&0xF0 == 0xF0 {
			f.PrefixSize = ADTSHeaderSize
		}
	}
	return f
}

// Payload returns the frame bytes after the prefix.
func (f *PlayerFrame) Payload() []byte {
	if f.PrefixSize >= len(f.Data) {
		return nil
	}
	return f.Data[f.PrefixSize:]
}

// ConfigFrame reports whether the frame carries parameter sets only.
func (f *PlayerFrame) ConfigFrame() bool {
	if f.PrefixSize >= len(f.Data) {
		return false
	}
	switch f.Codec {
	case codec.H264:
		t := f.Data[f.PrefixSize] & 0x1F
		return t == 7 || t == 8
	case codec.H265:
		t := (f.Data[f.PrefixSize] >> 1) & 0x3F
		return t >= 32 && t <= 34
	}
	return false
}

// VideoFrame converts a video player frame into an encoded frame for a sink.
func (f *PlayerFrame) VideoFrame() *VideoFrame {
	if f.Track != TrackVideo {
		return nil
	}
	return NewEncodedFrame(f.Codec, f.Data, time.Duration(f.PTS)*time.Millisecond, f.KeyFrame)
}

func annexBPrefix(b []byte) int {
	switch {
	case len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1:
		return 4
	case len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1:
		return 3
	default:
		return 0
	}
}

func isKeyNAL(c codec.Type, b []byte, prefix int) bool {
	if prefix >= len(b) {
		return false
	}
	if c == codec.H264 {
		return b[prefix]&0x1F == 5
	}
	// H.265 IRAP pictures: BLA, IDR and CRA.
	t := (b[prefix] >> 1) & 0x3F
	return t >= 16 && t <= 21
}
