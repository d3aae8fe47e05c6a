package zlm

import (
	"sync"

	"github.com/pion/rtp"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/packetizer"
)

// PacketWriter receives the packets of one frame.
type PacketWriter interface {
	WriteRTP(packets ...*rtp.Packet) error
}

// Relay turns player frames into RTP for one video and one audio writer.
// Frames of a codec the writer does not carry are counted and dropped.
type Relay struct {
	Video PacketWriter
	Audio PacketWriter
	// VideoCodec and AudioCodec are the codecs the writers were negotiated
	// for; codec.Unknown accepts the first codec seen.
	VideoCodec codec.Type
	AudioCodec codec.Type
	MTU        uint16

	mu      sync.Mutex
	video   packetizer.Packetizer
	audio   packetizer.Packetizer
	dropped uint64
}

// OnFrame packetizes f and writes it. It is safe as a PlayerOptions.OnFrame.
func (r *Relay) OnFrame(f *frame.PlayerFrame) {
	if err := r.relay(f); err != nil {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Dropped returns how many frames could not be relayed.
func (r *Relay) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Relay) relay(f *frame.PlayerFrame) error {
	if f == nil {
		return packetizer.ErrInvalidData
	}
	var w PacketWriter
	r.mu.Lock()
	var p packetizer.Packetizer
	var err error
	switch f.Track {
	case frame.TrackVideo:
		w = r.Video
		p, err = r.packetizerFor(&r.video, &r.VideoCodec, f.Codec)
	case frame.TrackAudio:
		w = r.Audio
		p, err = r.packetizerFor(&r.audio, &r.AudioCodec, f.Codec)
	default:
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}

	data := f.Data
	if f.Codec == codec.AAC {
		data = f.Payload()
	}
	packets, err := p.Packetize(data, RTPTimestamp(f.PTS, f.Codec))
	if err != nil {
		return err
	}
	if len(packets) == 0 {
		return nil
	}
	return w.WriteRTP(packets...)
}

// packetizerFor returns the packetizer in slot, creating it on first use.
// Must be called with r.mu held.
func (r *Relay) packetizerFor(slot *packetizer.Packetizer, want *codec.Type, got codec.Type) (packetizer.Packetizer, error) {
	if *want != codec.Unknown && got != *want {
		return nil, packetizer.ErrUnsupportedCodec
	}
	if *slot != nil {
		return *slot, nil
	}
	p, err := packetizer.New(packetizer.Config{Codec: got, MTU: r.MTU, ClockRate: got.ClockRate()})
	if err != nil {
		return nil, err
	}
	*slot = p
	*want = got
	return p, nil
}

// Close releases the packetizers.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range []packetizer.Packetizer{r.video, r.audio} {
		if p != nil {
			_ = p.Close()
		}
	}
	r.video, r.audio = nil, nil
	return nil
}

// RTPTimestamp converts a millisecond player timestamp to the RTP clock of c.
func RTPTimestamp(ms uint32, c codec.Type) uint32 {
	return uint32(uint64(ms) * uint64(c.ClockRate()) / 1000)
}
