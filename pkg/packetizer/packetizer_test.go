package packetizer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pion/rtp"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
)

func TestNewDefaults(t *testing.T) {
	configs := []struct {
		name      string
		codec     codec.Type
		clockRate uint32
	}{
		{"H264", codec.H264, 90000},
		{"VP8", codec.VP8, 90000},
		{"VP9", codec.VP9, 90000},
		{"Opus", codec.Opus, 48000},
	}

	for _, tc := range configs {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(Config{Codec: tc.codec, SSRC: 1, PayloadType: 96})
			if err != nil {
				t.Fatal(err)
			}
			cfg := p.(*packetizer).config
			if cfg.ClockRate != tc.clockRate {
				t.Errorf("ClockRate = %v, want %v", cfg.ClockRate, tc.clockRate)
			}
			if cfg.MTU != 1200 {
				t.Errorf("MTU = %v, want 1200", cfg.MTU)
			}
		})
	}
}

func TestNewUnsupportedCodec(t *testing.T) {
	for _, c := range []codec.Type{codec.AAC, codec.H265, codec.Unknown} {
		if _, err := New(Config{Codec: c}); !errors.Is(err, ErrUnsupportedCodec) {
			t.Errorf("New(%v) = %v, want ErrUnsupportedCodec", c, err)
		}
	}
}

// h264Frame is an SPS, a PPS and an IDR slice large enough to fragment.
func h264Frame(sliceSize int) []byte {
	f := []byte{0, 0, 0, 1, 0x67, 0x42, 0xe0, 0x1f, 0, 0, 0, 1, 0x68, 0xce, 0x3c, 0x80, 0, 0, 0, 1, 0x65}
	return append(f, bytes.Repeat([]byte{0xab}, sliceSize)...)
}

func TestPacketize(t *testing.T) {
	p, err := New(Config{Codec: codec.H264, SSRC: 42, PayloadType: 102, MTU: 1200})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	pkts, err := p.Packetize(h264Frame(5000), 3000)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) < 5 || len(pkts) > p.MaxPackets(5000)+2 {
		t.Fatalf("got %d packets", len(pkts))
	}
	for i, pkt := range pkts {
		if pkt.SSRC != 42 || pkt.PayloadType != 102 || pkt.Timestamp != 3000 {
			t.Errorf("packet %d header = %+v", i, pkt.Header)
		}
		if pkt.MarshalSize() > p.MaxPacketSize() {
			t.Errorf("packet %d is %d bytes", i, pkt.MarshalSize())
		}
		if want := i == len(pkts)-1; pkt.Marker != want {
			t.Errorf("packet %d marker = %v", i, pkt.Marker)
		}
		if i > 0 && pkt.SequenceNumber != pkts[i-1].SequenceNumber+1 {
			t.Errorf("packet %d sequence %d does not follow %d", i, pkt.SequenceNumber, pkts[i-1].SequenceNumber)
		}
	}
	if p.SequenceNumber() != pkts[len(pkts)-1].SequenceNumber {
		t.Errorf("SequenceNumber() = %d", p.SequenceNumber())
	}
}

func TestPacketizeInto(t *testing.T) {
	p, err := New(Config{Codec: codec.VP8, SSRC: 7, PayloadType: 96})
	if err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte{0x10}, 3000)

	dst := make([]byte, p.MaxPackets(len(data))*p.MaxPacketSize())
	infos := make([]PacketInfo, p.MaxPackets(len(data)))
	n, err := p.PacketizeInto(data, 90000, dst, infos)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("no packets written")
	}

	offset := 0
	for i := 0; i < n; i++ {
		if infos[i].Offset != offset {
			t.Errorf("packets[%d].Offset = %d, want %d", i, infos[i].Offset, offset)
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(dst[infos[i].Offset : infos[i].Offset+infos[i].Size]); err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if pkt.SSRC != 7 || pkt.Timestamp != 90000 {
			t.Errorf("packet %d header = %+v", i, pkt.Header)
		}
		offset += infos[i].Size
	}

	if _, err := p.PacketizeInto(data, 0, make([]byte, 100), infos); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("small dst: %v, want ErrBufferTooSmall", err)
	}
	if _, err := p.PacketizeInto(data, 0, dst, infos[:1]); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("short packets: %v, want ErrBufferTooSmall", err)
	}
}

func TestPacketizeErrors(t *testing.T) {
	p, err := New(Config{Codec: codec.Opus})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Packetize(nil, 0); !errors.Is(err, ErrInvalidData) {
		t.Errorf("empty frame: %v, want ErrInvalidData", err)
	}
	p.Close()
	if _, err := p.Packetize([]byte{1}, 0); !errors.Is(err, ErrPacketizerClosed) {
		t.Errorf("after close: %v, want ErrPacketizerClosed", err)
	}
}

func TestMaxPacketsCalculation(t *testing.T) {
	p := &packetizer{
		config: Config{
			MTU: 1200,
		},
	}

	tests := []struct {
		frameSize   int
		minExpected int
	}{
		{1000, 1},     // Small frame, single packet
		{5000, 4},     // Medium frame
		{50000, 40},   // Large frame (keyframe)
		{200000, 180}, // Very large frame (4K keyframe)
	}

	for _, tt := range tests {
		maxPkts := p.MaxPackets(tt.frameSize)
		if maxPkts < tt.minExpected {
			t.Errorf("MaxPackets(%d) = %d, want at least %d", tt.frameSize, maxPkts, tt.minExpected)
		}
	}
}

func BenchmarkPacketize(b *testing.B) {
	p, err := New(Config{Codec: codec.H264, SSRC: 1, PayloadType: 96})
	if err != nil {
		b.Fatal(err)
	}
	frame := h264Frame(50000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Packetize(frame, uint32(i*3000)); err != nil {
			b.Fatal(err)
		}
	}
}
