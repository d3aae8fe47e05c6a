package pionrtc

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/depacketizer"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

// RemoteVideo is a received video track. Sinks get encoded frames; pion does
// not decode. Sinks must be comparable so RemoveSink can find them.
type RemoteVideo struct {
	track     *webrtc.TrackRemote
	codec     codec.Type
	writeRTCP func([]rtcp.Packet) error
	log       logging.LeveledLogger

	enabled atomic.Bool
	mu      sync.RWMutex
	sinks   []frame.VideoSink
}

var _ signaling.RemoteVideoTrack = (*RemoteVideo)(nil)

func newRemoteVideo(track *webrtc.TrackRemote, writeRTCP func([]rtcp.Packet) error, log logging.LeveledLogger) *RemoteVideo {
	r := &RemoteVideo{
		track:     track,
		codec:     codec.ParseSDPName(track.Codec().MimeType),
		writeRTCP: writeRTCP,
		log:       log,
	}
	r.enabled.Store(true)
	return r
}

// Codec returns the negotiated codec.
func (r *RemoteVideo) Codec() codec.Type { return r.codec }

// AddSink implements signaling.RemoteVideoTrack.
func (r *RemoteVideo) AddSink(sink frame.VideoSink) {
	if sink == nil {
		return
	}
	r.mu.Lock()
	r.sinks = append(r.sinks, sink)
	r.mu.Unlock()
}

// RemoveSink implements signaling.RemoteVideoTrack.
func (r *RemoteVideo) RemoveSink(sink frame.VideoSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sinks {
		if s == sink {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			return
		}
	}
}

// SetEnabled implements signaling.RemoteVideoTrack. A disabled track keeps
// reading RTP but drops frames. Enabling asks the sender for a key frame.
func (r *RemoteVideo) SetEnabled(enabled bool) {
	if r.enabled.Swap(enabled) == enabled || !enabled {
		return
	}
	if err := r.RequestKeyFrame(); err != nil {
		r.log.Debugf("request key frame: %v", err)
	}
}

// RequestKeyFrame sends a picture loss indication to the sender.
func (r *RemoteVideo) RequestKeyFrame() error {
	return r.writeRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(r.track.SSRC())},
	})
}

func (r *RemoteVideo) deliver(f *frame.VideoFrame) {
	if !r.enabled.Load() {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sinks {
		s.OnFrame(f)
	}
}

// readLoop runs until the track ends.
func (r *RemoteVideo) readLoop() {
	d, err := depacketizer.New(r.codec)
	if err != nil {
		r.log.Warnf("remote video %s: %v; dropping RTP", r.track.Codec().MimeType, err)
		drain(r.track)
		return
	}
	defer d.Close()

	if err := r.RequestKeyFrame(); err != nil {
		r.log.Debugf("request key frame: %v", err)
	}

	clockRate := r.track.Codec().ClockRate
	if clockRate == 0 {
		clockRate = 90000
	}
	buf := make([]byte, 256<<10)
	for {
		pkt, _, err := r.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debugf("read remote video: %v", err)
			}
			return
		}
		if err := d.PushPacket(pkt); err != nil {
			return
		}
		for {
			info, err := d.PopInto(buf)
			if errors.Is(err, depacketizer.ErrBufferTooSmall) {
				buf = make([]byte, info.Size*2)
				continue
			}
			if err != nil {
				break
			}
			data := make([]byte, info.Size)
			copy(data, buf)
			ts := time.Duration(info.Timestamp) * time.Second / time.Duration(clockRate)
			r.deliver(frame.NewEncodedFrame(r.codec, data, ts, info.IsKeyframe))
		}
	}
}

// drain reads and discards RTP so interceptors keep running.
func drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
