package nativertc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

// frameWriter is the part of pc.Track a source writes to.
type frameWriter interface {
	WriteVideoFrame(f *frame.VideoFrame) error
}

// VideoSource fans I420 frames out to the local video track of every
// transport it is attached to. It is the capturer of a video call.
type VideoSource struct {
	mu      sync.RWMutex
	tracks  []frameWriter
	dropped atomic.Uint64
}

var _ frame.VideoSink = (*VideoSource)(nil)

// OnFrame implements frame.VideoSink. Encoded frames are dropped; libwebrtc
// encodes on its own.
func (s *VideoSource) OnFrame(f *frame.VideoFrame) {
	if f == nil || f.Format != frame.PixelFormatI420 {
		s.dropped.Add(1)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if err := t.WriteVideoFrame(f); err != nil {
			s.dropped.Add(1)
		}
	}
}

// Dropped returns how many frames could not be delivered.
func (s *VideoSource) Dropped() uint64 { return s.dropped.Load() }

func (s *VideoSource) attach(t frameWriter) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *VideoSource) detach(t frameWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.tracks {
		if x == t {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return
		}
	}
}

// videoTrack is the part of pc.Track a RemoteVideo drives.
type videoTrack interface {
	SetOnVideoFrame(handler func(f *frame.VideoFrame)) error
	SetEnabled(enabled bool)
}

// RemoteVideo is a received libwebrtc video track delivering decoded I420
// frames to its sinks.
type RemoteVideo struct {
	track videoTrack
	log   logging.LeveledLogger

	mu    sync.RWMutex
	sinks []frame.VideoSink
	bound bool
}

var _ signaling.RemoteVideoTrack = (*RemoteVideo)(nil)

func newRemoteVideo(track videoTrack, log logging.LeveledLogger) *RemoteVideo {
	return &RemoteVideo{track: track, log: log}
}

// AddSink implements signaling.RemoteVideoTrack. The native sink is
// installed with the first one.
func (r *RemoteVideo) AddSink(sink frame.VideoSink) {
	if sink == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
	if r.bound {
		return
	}
	if err := r.track.SetOnVideoFrame(r.deliver); err != nil {
		r.log.Warnf("install video sink: %v", err)
		return
	}
	r.bound = true
}

// RemoveSink implements signaling.RemoteVideoTrack.
func (r *RemoteVideo) RemoveSink(sink frame.VideoSink) {
	r.mu.Lock()
	for i, s := range r.sinks {
		if s == sink {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			break
		}
	}
	unbind := len(r.sinks) == 0 && r.bound
	if unbind {
		r.bound = false
	}
	r.mu.Unlock()

	// Outside the lock: removing the native sink waits for a frame in
	// delivery.
	if unbind {
		_ = r.track.SetOnVideoFrame(nil)
	}
}

// SetEnabled implements signaling.RemoteVideoTrack.
func (r *RemoteVideo) SetEnabled(enabled bool) {
	r.track.SetEnabled(enabled)
}

func (r *RemoteVideo) deliver(f *frame.VideoFrame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sinks {
		s.OnFrame(f)
	}
}

func (r *RemoteVideo) close() {
	r.mu.Lock()
	r.sinks = nil
	unbind := r.bound
	r.bound = false
	r.mu.Unlock()
	if unbind {
		_ = r.track.SetOnVideoFrame(nil)
	}
}

var (
	_ frameWriter = (*pc.Track)(nil)
	_ videoTrack  = (*pc.Track)(nil)
)
