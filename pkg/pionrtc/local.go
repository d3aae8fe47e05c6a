package pionrtc

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
)

// Errors
var (
	ErrNotRTPTrack    = errors.New("track does not accept rtp packets")
	ErrNotSampleTrack = errors.New("track does not accept samples")
)

// LocalTrack is an encoded media source shared by every transport a
// factory creates. Frames written to it go to all bound peers.
type LocalTrack struct {
	track      webrtc.TrackLocal
	sample     *webrtc.TrackLocalStaticSample
	packets    *webrtc.TrackLocalStaticRTP
	codec      codec.Type
	maxBitrate atomic.Uint32
	lastTS     atomic.Int64
}

var _ frame.VideoSink = (*LocalTrack)(nil)

// NewLocalTrack creates a track that sends c. For H.264 the profile is the
// constrained baseline unless fmtp overrides it.
func NewLocalTrack(c codec.Type, id, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(capabilityFor(c), id, streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{track: track, sample: track, codec: c}, nil
}

// NewLocalRTPTrack creates a track fed with ready-made RTP packets. The
// payload type and SSRC are rewritten for each peer.
func NewLocalRTPTrack(c codec.Type, id, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(capabilityFor(c), id, streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{track: track, packets: track, codec: c}, nil
}

func capabilityFor(c codec.Type) webrtc.RTPCodecCapability {
	capability := webrtc.RTPCodecCapability{
		MimeType:  c.MimeType(),
		ClockRate: c.ClockRate(),
		Channels:  c.Channels(),
	}
	if c == codec.H264 {
		capability.SDPFmtpLine = codec.H264ProfileConstrainedBaseline.FMTP()
	}
	return capability
}

// Codec returns the codec the track sends.
func (t *LocalTrack) Codec() codec.Type { return t.codec }

// Kind returns "audio" or "video".
func (t *LocalTrack) Kind() string { return t.track.Kind().String() }

// WriteSample sends one encoded frame lasting d.
func (t *LocalTrack) WriteSample(data []byte, d time.Duration) error {
	if t.sample == nil {
		return ErrNotSampleTrack
	}
	return t.sample.WriteSample(media.Sample{Data: data, Duration: d})
}

// WriteRTP sends packets on an RTP track.
func (t *LocalTrack) WriteRTP(packets ...*rtp.Packet) error {
	if t.packets == nil {
		return ErrNotRTPTrack
	}
	for _, p := range packets {
		if err := t.packets.WriteRTP(p); err != nil {
			return err
		}
	}
	return nil
}

// OnFrame implements frame.VideoSink for encoded frames. The duration is
// derived from the previous frame's timestamp.
func (t *LocalTrack) OnFrame(f *frame.VideoFrame) {
	if f == nil || f.Format != frame.PixelFormatEncoded {
		return
	}
	prev := time.Duration(t.lastTS.Swap(int64(f.Timestamp)))
	d := f.Timestamp - prev
	if prev == 0 || d <= 0 || d > time.Second {
		d = time.Second / 30
	}
	_ = t.WriteSample(f.Payload(), d)
}

// MaxBitrate returns the sender cap in bps set through the signaling client;
// 0 means unlimited. Encoders feeding the track should honor it.
func (t *LocalTrack) MaxBitrate() uint32 { return t.maxBitrate.Load() }
