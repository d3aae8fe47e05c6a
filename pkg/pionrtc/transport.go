// Package pionrtc implements signaling.Transport on pion/webrtc, a pure-Go
// WebRTC stack. It needs no native libraries, which makes it the default
// engine of the command line tool and the transport of the integration tests.
package pionrtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

// Options configures the transports a factory builds.
type Options struct {
	// Video and Audio are local sources; nil means nothing is sent on that
	// kind.
	Video *LocalTrack
	Audio *LocalTrack

	// PLIInterval makes receivers request a key frame periodically. Zero
	// keeps the interceptor's default of three seconds.
	PLIInterval time.Duration

	// SettingEngine tweaks ICE and networking, e.g. for tests.
	SettingEngine *webrtc.SettingEngine
}

// NewFactory returns a signaling.TransportFactory building pion transports.
func NewFactory(opts Options) signaling.TransportFactory {
	return func(cfg signaling.TransportConfig, h signaling.TransportHandler) (signaling.Transport, error) {
		return New(cfg, h, opts)
	}
}

func newAPI(opts Options, lf logging.LoggerFactory) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}
	var pliOpts []intervalpli.GeneratorOption
	if opts.PLIInterval > 0 {
		pliOpts = append(pliOpts, intervalpli.GeneratorInterval(opts.PLIInterval))
	}
	pli, err := intervalpli.NewReceiverInterceptor(pliOpts...)
	if err != nil {
		return nil, fmt.Errorf("create PLI interceptor: %w", err)
	}
	ir.Add(pli)

	se := webrtc.SettingEngine{}
	if opts.SettingEngine != nil {
		se = *opts.SettingEngine
	}
	se.LoggerFactory = lf

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// Configuration converts an RTC configuration to pion's. Pion only speaks
// unified plan, so SDPSemantics is ignored.
func Configuration(c pc.Configuration) webrtc.Configuration {
	out := webrtc.Configuration{
		ICECandidatePoolSize: uint8(c.ICECandidatePoolSize),
	}
	for _, s := range c.ICEServers {
		out.ICEServers = append(out.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	switch c.BundlePolicy {
	case "balanced":
		out.BundlePolicy = webrtc.BundlePolicyBalanced
	case "max-compat":
		out.BundlePolicy = webrtc.BundlePolicyMaxCompat
	case "max-bundle":
		out.BundlePolicy = webrtc.BundlePolicyMaxBundle
	}
	switch c.RTCPMuxPolicy {
	case "negotiate":
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyNegotiate
	case "require":
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyRequire
	}
	switch c.ICETransportPolicy {
	case "all":
		out.ICETransportPolicy = webrtc.ICETransportPolicyAll
	case "relay":
		out.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return out
}

// Transport is one pion PeerConnection driven by a signaling.Client.
type Transport struct {
	pc      *webrtc.PeerConnection
	handler signaling.TransportHandler
	ops     *signaling.Executor
	log     logging.LeveledLogger

	video       *LocalTrack
	videoSender *webrtc.RTPSender
	audio       *LocalTrack
	audioSender *webrtc.RTPSender

	// disabled is keyed by kind; a disabled sender carries no track.
	disabled map[string]bool

	mu     sync.Mutex
	closed bool
}

var _ signaling.Transport = (*Transport)(nil)

// New creates a transport for cfg reporting to h.
func New(cfg signaling.TransportConfig, h signaling.TransportHandler, opts Options) (*Transport, error) {
	lf := cfg.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	api, err := newAPI(opts, lf)
	if err != nil {
		return nil, err
	}
	peer, err := api.NewPeerConnection(Configuration(cfg.Params.Configuration()))
	if err != nil {
		return nil, err
	}

	t := &Transport{
		pc:       peer,
		handler:  h,
		log:      lf.NewLogger("pionrtc"),
		disabled: make(map[string]bool),
	}
	t.ops = signaling.NewExecutor(t.log)
	t.bindEvents()

	if err := t.addMedia(cfg, opts); err != nil {
		_ = peer.Close()
		t.ops.Shutdown()
		return nil, err
	}
	if cfg.Role == signaling.RoleOfferer && cfg.Params.DataChannel != nil {
		if err := t.createDataChannel(cfg.Params.DataChannel); err != nil {
			_ = peer.Close()
			t.ops.Shutdown()
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
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		cand := &pc.ICECandidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			cand.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			cand.SDPMLineIndex = *init.SDPMLineIndex
		}
		if init.UsernameFragment != nil {
			cand.UsernameFragment = *init.UsernameFragment
		}
		t.emit(signaling.TransportEvent{Kind: signaling.EventICECandidate, Candidate: cand})
	})

	t.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		t.emit(signaling.TransportEvent{Kind: signaling.EventICEConnectionState, ICEState: iceState(s)})
	})

	t.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeVideo {
			go drain(remote)
			return
		}
		rv := newRemoteVideo(remote, t.pc.WriteRTCP, t.log)
		t.emit(signaling.TransportEvent{Kind: signaling.EventRemoteVideoTrack, Track: rv})
		go rv.readLoop()
	})

	t.pc.OnDataChannel(t.bindDataChannel)
}

func (t *Transport) bindDataChannel(dc *webrtc.DataChannel) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.emit(signaling.TransportEvent{
			Kind:   signaling.EventDataChannelMessage,
			Label:  dc.Label(),
			Data:   msg.Data,
			Binary: !msg.IsString,
		})
	})
}

func iceState(s webrtc.ICEConnectionState) pc.ICEConnectionState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return pc.ICEConnectionStateChecking
	case webrtc.ICEConnectionStateConnected:
		return pc.ICEConnectionStateConnected
	case webrtc.ICEConnectionStateCompleted:
		return pc.ICEConnectionStateCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return pc.ICEConnectionStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return pc.ICEConnectionStateFailed
	case webrtc.ICEConnectionStateClosed:
		return pc.ICEConnectionStateClosed
	default:
		return pc.ICEConnectionStateNew
	}
}

func transceiverDirection(sends, receives bool) webrtc.RTPTransceiverDirection {
	switch {
	case sends && receives:
		return webrtc.RTPTransceiverDirectionSendrecv
	case sends:
		return webrtc.RTPTransceiverDirectionSendonly
	default:
		return webrtc.RTPTransceiverDirectionRecvonly
	}
}

// addMedia sets up one transceiver per kind. An answerer gets its
// transceivers from the remote offer; it only attaches local tracks.
func (t *Transport) addMedia(cfg signaling.TransportConfig, opts Options) error {
	dir := cfg.Direction
	kinds := []struct {
		kind   webrtc.RTPCodecType
		local  *LocalTrack
		wanted bool
	}{
		{webrtc.RTPCodecTypeAudio, opts.Audio, true},
		{webrtc.RTPCodecTypeVideo, opts.Video, cfg.Params.VideoCallEnabled},
	}

	for _, k := range kinds {
		if !k.wanted {
			continue
		}
		local := k.local
		if !dir.Sends() {
			local = nil
		}

		var sender *webrtc.RTPSender
		switch {
		case local != nil && cfg.Role == signaling.RoleAnswerer:
			s, err := t.pc.AddTrack(local.track)
			if err != nil {
				return fmt.Errorf("add %s track: %w", k.kind, err)
			}
			sender = s
		case local != nil:
			tr, err := t.pc.AddTransceiverFromTrack(local.track, webrtc.RTPTransceiverInit{
				Direction: transceiverDirection(true, dir.Receives()),
			})
			if err != nil {
				return fmt.Errorf("add %s transceiver: %w", k.kind, err)
			}
			sender = tr.Sender()
		case cfg.Role == signaling.RoleOfferer && dir.Receives():
			if _, err := t.pc.AddTransceiverFromKind(k.kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return fmt.Errorf("add %s transceiver: %w", k.kind, err)
			}
		}

		if sender != nil {
			go drainRTCP(sender)
			if k.kind == webrtc.RTPCodecTypeVideo {
				t.video, t.videoSender = local, sender
			} else {
				t.audio, t.audioSender = local, sender
			}
		}
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors process NACKs and reports.
func drainRTCP(s *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.Read(buf); err != nil {
			return
		}
	}
}

func (t *Transport) createDataChannel(p *signaling.DataChannelParameters) error {
	init := &webrtc.DataChannelInit{Ordered: &p.Ordered}
	if p.MaxRetransmits >= 0 {
		v := uint16(p.MaxRetransmits)
		init.MaxRetransmits = &v
	}
	if p.MaxRetransmitTimeMs >= 0 {
		v := uint16(p.MaxRetransmitTimeMs)
		init.MaxPacketLifeTime = &v
	}
	if p.Protocol != "" {
		init.Protocol = &p.Protocol
	}
	if p.Negotiated {
		negotiated := true
		id := uint16(p.ID)
		init.Negotiated = &negotiated
		init.ID = &id
	}
	dc, err := t.pc.CreateDataChannel(p.Label, init)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	t.bindDataChannel(dc)
	return nil
}

// CreateOffer implements signaling.Transport.
func (t *Transport) CreateOffer() {
	t.submit(func() {
		offer, err := t.pc.CreateOffer(nil)
		t.emitCreate(offer, err)
	})
}

// CreateAnswer implements signaling.Transport.
func (t *Transport) CreateAnswer() {
	t.submit(func() {
		answer, err := t.pc.CreateAnswer(nil)
		t.emitCreate(answer, err)
	})
}

func (t *Transport) emitCreate(desc webrtc.SessionDescription, err error) {
	if err != nil {
		t.emit(signaling.TransportEvent{Kind: signaling.EventCreateFailure, Err: err})
		return
	}
	t.emit(signaling.TransportEvent{Kind: signaling.EventCreateSuccess, Description: fromPion(desc)})
}

// SetLocalDescription implements signaling.Transport.
func (t *Transport) SetLocalDescription(desc *pc.SessionDescription) {
	t.submit(func() {
		t.emitSet(desc, false, t.pc.SetLocalDescription(toPion(desc)))
	})
}

// SetRemoteDescription implements signaling.Transport.
func (t *Transport) SetRemoteDescription(desc *pc.SessionDescription) {
	t.submit(func() {
		t.emitSet(desc, true, t.pc.SetRemoteDescription(toPion(desc)))
	})
}

func (t *Transport) emitSet(desc *pc.SessionDescription, remote bool, err error) {
	if err != nil {
		t.emit(signaling.TransportEvent{Kind: signaling.EventSetFailure, Remote: remote, Err: err})
		return
	}
	t.emit(signaling.TransportEvent{Kind: signaling.EventSetSuccess, Remote: remote, Description: desc})
}

func (t *Transport) submit(op func()) {
	if !t.ops.Submit(op) {
		t.log.Debug("operation after close dropped")
	}
}

func toPion(d *pc.SessionDescription) webrtc.SessionDescription {
	var typ webrtc.SDPType
	switch d.Type {
	case pc.SDPTypeOffer:
		typ = webrtc.SDPTypeOffer
	case pc.SDPTypePranswer:
		typ = webrtc.SDPTypePranswer
	case pc.SDPTypeAnswer:
		typ = webrtc.SDPTypeAnswer
	case pc.SDPTypeRollback:
		typ = webrtc.SDPTypeRollback
	}
	return webrtc.SessionDescription{Type: typ, SDP: d.SDP}
}

func fromPion(d webrtc.SessionDescription) *pc.SessionDescription {
	typ, err := pc.ParseSDPType(d.Type.String())
	if err != nil {
		typ = pc.SDPTypeOffer
	}
	return &pc.SessionDescription{Type: typ, SDP: d.SDP}
}

// AddICECandidate implements signaling.Transport.
func (t *Transport) AddICECandidate(c *pc.ICECandidate) error {
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &c.SDPMid,
		SDPMLineIndex: &c.SDPMLineIndex,
	}
	if c.UsernameFragment != "" {
		init.UsernameFragment = &c.UsernameFragment
	}
	return t.pc.AddICECandidate(init)
}

// RemoveICECandidates implements signaling.Transport. Pion cannot remove
// remote candidates; they are logged and ignored.
func (t *Transport) RemoveICECandidates(cs []*pc.ICECandidate) error {
	t.log.Debugf("ignoring removal of %d remote candidates", len(cs))
	return nil
}

// HasLocalVideo implements signaling.Transport.
func (t *Transport) HasLocalVideo() bool { return t.videoSender != nil }

// SetVideoMaxBitrate implements signaling.Transport. Pion has no encoder, so
// the cap is stored on the local track for whatever produces its frames.
func (t *Transport) SetVideoMaxBitrate(maxBitrateBps *uint32) error {
	if t.videoSender == nil || len(t.videoSender.GetParameters().Encodings) == 0 {
		return signaling.ErrSenderNotReady
	}
	var v uint32
	if maxBitrateBps != nil {
		v = *maxBitrateBps
	}
	t.video.maxBitrate.Store(v)
	return nil
}

// SetAudioEnabled implements signaling.Transport.
func (t *Transport) SetAudioEnabled(enabled bool) {
	t.setSenderTrack(t.audioSender, t.audio, enabled)
}

// SetVideoEnabled implements signaling.Transport.
func (t *Transport) SetVideoEnabled(enabled bool) {
	t.setSenderTrack(t.videoSender, t.video, enabled)
}

func (t *Transport) setSenderTrack(s *webrtc.RTPSender, local *LocalTrack, enabled bool) {
	if s == nil {
		return
	}
	t.mu.Lock()
	changed := t.disabled[local.Kind()] == enabled
	t.disabled[local.Kind()] = !enabled
	t.mu.Unlock()
	if !changed {
		return
	}
	var track webrtc.TrackLocal
	if enabled {
		track = local.track
	}
	if err := s.ReplaceTrack(track); err != nil {
		t.log.Warnf("replace %s track: %v", local.Kind(), err)
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
	t.mu.Unlock()

	t.ops.Shutdown()
	return t.pc.Close()
}
