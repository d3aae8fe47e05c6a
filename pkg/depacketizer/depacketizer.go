// Package depacketizer reassembles RTP packets into encoded frames.
package depacketizer

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
)

// Errors
var (
	ErrDepacketizerClosed = errors.New("depacketizer is closed")
	ErrNeedMoreData       = errors.New("need more data")
	ErrBufferTooSmall     = errors.New("buffer too small")
	ErrUnsupportedCodec   = errors.New("unsupported codec")
)

// maxLate is how many packets the builder waits for a missing one.
const maxLate = 128

// FrameInfo contains metadata about a reassembled frame.
type FrameInfo struct {
	Size       int
	Timestamp  uint32
	IsKeyframe bool
}

// Depacketizer reassembles RTP packets into complete frames.
type Depacketizer interface {
	// Push adds a marshalled RTP packet to the reassembly buffer.
	Push(packet []byte) error

	// PushPacket adds a parsed RTP packet.
	PushPacket(pkt *rtp.Packet) error

	// PopInto attempts to pop a complete frame into the provided buffer.
	// Returns ErrNeedMoreData if no complete frame is available. On
	// ErrBufferTooSmall the frame stays queued.
	PopInto(dst []byte) (FrameInfo, error)

	// Close releases resources.
	Close() error
}

type depacketizer struct {
	builder   *samplebuilder.SampleBuilder
	codecType codec.Type
	pending   *media.Sample
	closed    atomic.Bool
	mu        sync.Mutex
}

// New creates a new RTP depacketizer.
func New(codecType codec.Type) (Depacketizer, error) {
	var d rtp.Depacketizer
	switch codecType {
	case codec.H264:
		d = &codecs.H264Packet{}
	case codec.VP8:
		d = &codecs.VP8Packet{}
	case codec.VP9:
		d = &codecs.VP9Packet{}
	case codec.Opus:
		d = &codecs.OpusPacket{}
	default:
		return nil, errors.Join(ErrUnsupportedCodec, errors.New(codecType.String()))
	}

	return &depacketizer{
		builder:   samplebuilder.New(maxLate, d, codecType.ClockRate()),
		codecType: codecType,
	}, nil
}

func (d *depacketizer) Push(packet []byte) error {
	if len(packet) == 0 {
		return nil
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(packet); err != nil {
		return err
	}
	return d.PushPacket(pkt)
}

func (d *depacketizer) PushPacket(pkt *rtp.Packet) error {
	if d.closed.Load() {
		return ErrDepacketizerClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.builder.Push(pkt)
	return nil
}

func (d *depacketizer) PopInto(dst []byte) (FrameInfo, error) {
	if d.closed.Load() {
		return FrameInfo{}, ErrDepacketizerClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.pending
	if s == nil {
		if s = d.builder.Pop(); s == nil {
			return FrameInfo{}, ErrNeedMoreData
		}
	}
	if len(s.Data) > len(dst) {
		d.pending = s
		return FrameInfo{Size: len(s.Data)}, ErrBufferTooSmall
	}
	d.pending = nil

	n := copy(dst, s.Data)
	return FrameInfo{
		Size:       n,
		Timestamp:  s.PacketTimestamp,
		IsKeyframe: IsKeyframe(d.codecType, s.Data),
	}, nil
}

func (d *depacketizer) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
	return nil
}

// IsKeyframe reports whether an encoded frame can be decoded on its own.
// H.264 data is expected in Annex-B form.
func IsKeyframe(c codec.Type, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch c {
	case codec.H264:
		return h264HasIDR(data)
	case codec.VP8:
		// Inverse key frame flag in the first bit of the frame tag.
		return data[0]&0x01 == 0
	case codec.VP9:
		return vp9IsKeyframe(data[0])
	case codec.Opus, codec.PCMA, codec.PCMU, codec.AAC:
		return true
	}
	return false
}

func h264HasIDR(b []byte) bool {
	zeros := 0
	for i, c := range b {
		switch {
		case c == 0:
			zeros++
			continue
		case c == 1 && zeros >= 2 && i+1 < len(b):
			if b[i+1]&0x1F == 5 {
				return true
			}
		}
		zeros = 0
	}
	return false
}

// vp9IsKeyframe reads the first byte of the uncompressed header.
func vp9IsKeyframe(b byte) bool {
	if b>>6 != 0x2 {
		return false
	}
	profile := (b>>5)&1 | ((b>>4)&1)<<1
	shift := uint(3)
	if profile == 3 {
		shift = 2
	}
	if (b>>shift)&1 == 1 { // show_existing_frame
		return false
	}
	return (b>>(shift-1))&1 == 0
}
