// Package packetizer splits encoded frames into RTP packets with pion/rtp.
package packetizer

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
)

// Errors
var (
	ErrPacketizerClosed = errors.New("packetizer is closed")
	ErrBufferTooSmall   = errors.New("buffer too small")
	ErrInvalidData      = errors.New("invalid data")
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// rtpHeaderSize is the size of a header without CSRCs or extensions.
const rtpHeaderSize = 12

// Config configures an RTP packetizer.
type Config struct {
	Codec       codec.Type
	SSRC        uint32
	PayloadType uint8
	MTU         uint16 // Maximum transmission unit (typically 1200)
	ClockRate   uint32 // RTP clock rate (90000 for video, 48000 for Opus)
}

// PacketInfo describes a single RTP packet in the output buffer.
type PacketInfo struct {
	Offset int // Offset into the buffer where this packet starts
	Size   int // Size of this packet
}

// Packetizer converts encoded frames into RTP packets.
type Packetizer interface {
	// Packetize returns the packets of one frame. The last one has the
	// marker bit set.
	Packetize(data []byte, timestamp uint32) ([]*rtp.Packet, error)

	// PacketizeInto marshals the packets of one frame contiguously into dst
	// and describes each one in packets. Returns the number of packets
	// written.
	PacketizeInto(data []byte, timestamp uint32, dst []byte, packets []PacketInfo) (int, error)

	// MaxPackets returns the maximum number of packets that could be generated
	// for a frame of the given size.
	MaxPackets(frameSize int) int

	// MaxPacketSize returns the maximum size of a single RTP packet.
	MaxPacketSize() int

	// SequenceNumber returns the sequence number of the last packet.
	SequenceNumber() uint16

	// Close releases resources.
	Close() error
}

type packetizer struct {
	config    Config
	payloader rtp.Payloader
	sequencer rtp.Sequencer
	lastSeq   uint16
	closed    atomic.Bool
	mu        sync.Mutex
}

// New creates a new RTP packetizer.
func New(cfg Config) (Packetizer, error) {
	payloader, err := payloaderFor(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if cfg.MTU == 0 {
		cfg.MTU = 1200
	}
	if cfg.ClockRate == 0 {
		cfg.ClockRate = cfg.Codec.ClockRate()
	}
	return &packetizer{
		config:    cfg,
		payloader: payloader,
		sequencer: rtp.NewRandomSequencer(),
	}, nil
}

func payloaderFor(c codec.Type) (rtp.Payloader, error) {
	switch c {
	case codec.H264:
		return &codecs.H264Payloader{}, nil
	case codec.VP8:
		return &codecs.VP8Payloader{EnablePictureID: true}, nil
	case codec.VP9:
		return &codecs.VP9Payloader{}, nil
	case codec.Opus:
		return &codecs.OpusPayloader{}, nil
	case codec.PCMU, codec.PCMA:
		return &codecs.G711Payloader{}, nil
	default:
		return nil, errors.Join(ErrUnsupportedCodec, errors.New(c.String()))
	}
}

func (p *packetizer) Packetize(data []byte, timestamp uint32) ([]*rtp.Packet, error) {
	if p.closed.Load() {
		return nil, ErrPacketizerClosed
	}
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	payloads := p.payloader.Payload(p.config.MTU-rtpHeaderSize, data)
	packets := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		p.lastSeq = p.sequencer.NextSequenceNumber()
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    p.config.PayloadType,
				SequenceNumber: p.lastSeq,
				Timestamp:      timestamp,
				SSRC:           p.config.SSRC,
			},
			Payload: payload,
		}
	}
	return packets, nil
}

func (p *packetizer) PacketizeInto(data []byte, timestamp uint32, dst []byte, packets []PacketInfo) (int, error) {
	pkts, err := p.Packetize(data, timestamp)
	if err != nil {
		return 0, err
	}
	if len(pkts) > len(packets) {
		return 0, ErrBufferTooSmall
	}

	offset := 0
	for i, pkt := range pkts {
		size := pkt.MarshalSize()
		if offset+size > len(dst) {
			return 0, ErrBufferTooSmall
		}
		n, err := pkt.MarshalTo(dst[offset:])
		if err != nil {
			return 0, err
		}
		packets[i] = PacketInfo{Offset: offset, Size: n}
		offset += n
	}
	return len(pkts), nil
}

func (p *packetizer) MaxPackets(frameSize int) int {
	// Payload headers are at most a few bytes; 100 bytes of slack per
	// packet keeps the estimate an upper bound for every payloader.
	payloadPerPacket := int(p.config.MTU) - 100
	if payloadPerPacket <= 0 {
		payloadPerPacket = 1000
	}
	return (frameSize + payloadPerPacket - 1) / payloadPerPacket
}

func (p *packetizer) MaxPacketSize() int {
	return int(p.config.MTU)
}

func (p *packetizer) SequenceNumber() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeq
}

func (p *packetizer) Close() error {
	p.closed.Store(true)
	return nil
}
