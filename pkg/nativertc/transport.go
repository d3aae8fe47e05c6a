// Package nativertc implements signaling.Transport on libwebrtc through the
// pc package. It decodes remote video to I420 and can send a local video
// track fed with raw frames.
package nativertc

import (
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

// Options configures the transports a factory builds.
type Options struct {
	// VideoSource feeds the local video track. Without it nothing is sent.
	VideoSource *VideoSource
}

// NewFactory returns a signaling.TransportFactory building native transports.
func NewFactory(opts Options) signaling.TransportFactory {
	return func(cfg signaling.TransportConfig, h signaling.TransportHandler) (signaling.Transport, error) {
		return New(cfg, h, opts)
	}
}

// Transport is one libwebrtc PeerConnection driven by a signaling.Client.
// libwebrtc calls are synchronous, so operations run on a private executor
// and report through the handler.
type Transport struct {
	pc      *pc.PeerConnection
	handler signaling.TransportHandler
	ops     *signaling.Executor
	log     logging.LeveledLogger

	source      *VideoSource
	videoTrack  *pc.Track
	videoSender *pc.RTPSender

	mu     sync.Mutex
	closed bool
	remote []*RemoteVideo
}

var _ signaling.Transport = (*Transport)(nil)

// New creates a transport for cfg reporting to h.
func New(cfg signaling.TransportConfig, h signaling.TransportHandler, opts Options) (*Transport, error) {
	lf := cfg.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	peer, err := pc.NewPeerConnection(cfg.Params.Configuration())
	if err != nil {
		return nil, err
	}

	t := &Transport{
		pc:      peer,
		handler: h,
		log:     lf.NewLogger("nativertc"),
	}
	t.ops = signaling.NewExecutor(t.log)
	t.bindEvents()

	if err := t.addMedia(cfg, opts); err != nil {
		t.ops.Shutdown()
		_ = peer.Close()
		return nil, err
	}
	if cfg.Role == signaling.RoleOfferer && cfg.Params.DataChannel != nil {
		if err := t.createDataChannel(cfg.Params.DataChannel); err != nil {
			t.ops.Shutdown()
			_ = peer.Close()
			return nil, err
		}
	}
	return t, nil
}

func (t *Transport) emit(ev signaling.TransportEvent) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if !closed {
		t.handler(ev)
	}
}

func (t *Transport) bindEvents() {
	t.pc.OnICECandidate = func(c *pc.ICECandidate) {
		t.emit(signaling.TransportEvent{Kind: signaling.EventICECandidate, Candidate: c})
	}
	t.pc.OnICECandidatesRemoved = func(cs []*pc.ICECandidate) {
		t.emit(signaling.TransportEvent{Kind: signaling.EventICECandidatesRemoved, Candidates: cs})
	}
	t.pc.OnICEConnectionStateChange = func(s pc.ICEConnectionState) {
		t.emit(signaling.TransportEvent{Kind: signaling.EventICEConnectionState, ICEState: s})
	}
	t.pc.OnTrack = func(track *pc.Track) {
		if track.Kind() != "video" {
			return
		}
		rv := newRemoteVideo(track, t.log)
		t.mu.Lock()
		t.remote = append(t.remote, rv)
		t.mu.Unlock()
		t.emit(signaling.TransportEvent{Kind: signaling.EventRemoteVideoTrack, Track: rv})
	}
	t.pc.OnDataChannel = t.bindDataChannel
}

func (t *Transport) bindDataChannel(dc *pc.DataChannel) {
	label := dc.Label()
	dc.SetOnMessage(func(data []byte, binary bool) {
		t.emit(signaling.TransportEvent{
			Kind:   signaling.EventDataChannelMessage,
			Label:  label,
			Data:   data,
			Binary: binary,
		})
	})
}

func (t *Transport) addMedia(cfg signaling.TransportConfig, opts Options) error {
	dir := cfg.Direction
	if cfg.Role == signaling.RoleOfferer && dir.Receives() {
		if err := t.pc.AddTransceiver("audio", pc.TransceiverDirectionRecvOnly); err != nil {
			return err
		}
		if cfg.Params.VideoCallEnabled && (opts.VideoSource == nil || !dir.Sends()) {
			if err := t.pc.AddTransceiver("video", pc.TransceiverDirectionRecvOnly); err != nil {
				return err
			}
		}
	}

	if opts.VideoSource == nil || !dir.Sends() || !cfg.Params.VideoCallEnabled {
		return nil
	}
	p := cfg.Params
	track, sender, err := t.pc.AddVideoTrack("video0", "ARDAMS", p.VideoWidth, p.VideoHeight)
	if err != nil {
		return fmt.Errorf("add video track: %w", err)
	}
	t.source = opts.VideoSource
	t.videoTrack = track
	t.videoSender = sender
	t.source.attach(track)
	return nil
}

func (t *Transport) createDataChannel(p *signaling.DataChannelParameters) error {
	ordered := p.Ordered
	init := &pc.DataChannelInit{Ordered: &ordered, Protocol: p.Protocol, Negotiated: p.Negotiated}
	if p.MaxRetransmits >= 0 {
		v := uint16(p.MaxRetransmits)
		init.MaxRetransmits = &v
	}
	if p.MaxRetransmitTimeMs >= 0 {
		v := uint16(p.MaxRetransmitTimeMs)
		init.MaxPacketLifeTime = &v
	}
	if p.Negotiated {
		id := uint16(p.ID)
		init.ID = &id
	}
	dc, err := t.pc.CreateDataChannel(p.Label, init)
	if err != nil {
		return err
	}
	t.bindDataChannel(dc)
	return nil
}

func (t *Transport) submit(op func()) {
	if !t.ops.Submit(op) {
		t.log.Debug("operation after close dropped")
	}
}

// CreateOffer implements signaling.Transport.
func (t *Transport) CreateOffer() {
	t.submit(func() { t.emitCreate(t.pc.CreateOffer()) })
}

// CreateAnswer implements signaling.Transport.
func (t *Transport) CreateAnswer() {
	t.submit(func() { t.emitCreate(t.pc.CreateAnswer()) })
}

func (t *Transport) emitCreate(desc *pc.SessionDescription, err error) {
	if err != nil {
		t.emit(signaling.TransportEvent{Kind: signaling.EventCreateFailure, Err: err})
		return
	}
	t.emit(signaling.TransportEvent{Kind: signaling.EventCreateSuccess, Description: desc})
}

// SetLocalDescription implements signaling.Transport.
func (t *Transport) SetLocalDescription(desc *pc.SessionDescription) {
	t.submit(func() { t.emitSet(desc, false, t.pc.SetLocalDescription(desc)) })
}

// SetRemoteDescription implements signaling.Transport.
func (t *Transport) SetRemoteDescription(desc *pc.SessionDescription) {
	t.submit(func() { t.emitSet(desc, true, t.pc.SetRemoteDescription(desc)) })
}

func (t *Transport) emitSet(desc *pc.SessionDescription, remote bool, err error) {
	kind := signaling.EventSetSuccess
	if err != nil {
		kind = signaling.EventSetFailure
	}
	t.emit(signaling.TransportEvent{Kind: kind, Remote: remote, Description: desc, Err: err})
}

// AddICECandidate implements signaling.Transport.
func (t *Transport) AddICECandidate(c *pc.ICECandidate) error {
	return t.pc.AddICECandidate(c)
}

// RemoveICECandidates implements signaling.Transport.
func (t *Transport) RemoveICECandidates(cs []*pc.ICECandidate) error {
	return t.pc.RemoveICECandidates(cs)
}

// HasLocalVideo implements signaling.Transport.
func (t *Transport) HasLocalVideo() bool { return t.videoTrack != nil }

// SetVideoMaxBitrate implements signaling.Transport.
func (t *Transport) SetVideoMaxBitrate(maxBitrateBps *uint32) error {
	if t.videoSender == nil {
		return signaling.ErrSenderNotReady
	}
	params, err := t.videoSender.GetParameters()
	if err != nil {
		return err
	}
	if len(params.Encodings) == 0 {
		return signaling.ErrSenderNotReady
	}
	return t.videoSender.SetMaxBitrate(maxBitrateBps)
}

// SetAudioEnabled implements signaling.Transport. Native transports send no
// local audio, so there is nothing to toggle.
func (t *Transport) SetAudioEnabled(enabled bool) {
	t.log.Tracef("audio enabled: %v", enabled)
}

// SetVideoEnabled implements signaling.Transport.
func (t *Transport) SetVideoEnabled(enabled bool) {
	if t.videoTrack != nil {
		t.videoTrack.SetEnabled(enabled)
	}
}

// Close implements signaling.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	remote := t.remote
	t.remote = nil
	t.mu.Unlock()

	t.ops.Shutdown()
	for _, rv := range remote {
		rv.close()
	}
	if t.source != nil {
		t.source.detach(t.videoTrack)
	}
	return t.pc.Close()
}
