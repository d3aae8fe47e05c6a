// Package pc provides a browser-like PeerConnection API backed by libwebrtc.
// This wraps libwebrtc's native PeerConnection, not Pion's.
package pc

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ZLMediaKit/ZLMediaKit/internal/ffi"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
)

// Errors
var (
	ErrPeerConnectionClosed  = errors.New("peer connection closed")
	ErrCreateOfferFailed     = errors.New("create offer failed")
	ErrCreateAnswerFailed    = errors.New("create answer failed")
	ErrSetDescriptionFailed  = errors.New("set description failed")
	ErrAddICECandidateFailed = errors.New("add ice candidate failed")
	ErrInvalidFrame          = errors.New("invalid I420 frame")
	ErrNotVideoTrack         = errors.New("not a video track")
)

// maxEncodings bounds the encodings read back from a sender.
const maxEncodings = 8

// RTPSender represents the native sender of a local track.
type RTPSender struct {
	handle uintptr
	track  *Track
	mu     sync.Mutex
}

// Track returns the sender's track.
func (s *RTPSender) Track() *Track { return s.track }

// GetParameters gets current parameters.
func (s *RTPSender) GetParameters() (RTPSendParameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	encs, err := s.encodings()
	if err != nil {
		return RTPSendParameters{}, err
	}
	params := RTPSendParameters{Encodings: make([]RTPEncodingParameters, len(encs))}
	for i, e := range encs {
		params.Encodings[i] = RTPEncodingParameters{
			RID:                   cString(e.RID[:]),
			Active:                e.Active != 0,
			MaxBitrate:            e.MaxBitrateBps,
			MaxFramerate:          e.MaxFramerate,
			ScaleResolutionDownBy: e.ScaleResolutionDownBy,
		}
	}
	return params, nil
}

// SetMaxBitrate caps every encoding of the sender at bps. nil removes the
// cap.
func (s *RTPSender) SetMaxBitrate(bps *uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	encs, err := s.encodings()
	if err != nil {
		return err
	}
	for i := range encs {
		encs[i].MaxBitrateBps = 0
		if bps != nil {
			encs[i].MaxBitrateBps = *bps
		}
	}
	return ffi.RTPSenderSetParameters(s.handle, encs)
}

func (s *RTPSender) encodings() ([]ffi.RTPEncodingParameters, error) {
	buf := make([]ffi.RTPEncodingParameters, maxEncodings)
	n, err := ffi.RTPSenderGetParameters(s.handle, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Track represents a media track (can be local or remote).
type Track struct {
	handle  uintptr
	id      string
	kind    string // "video" or "audio"
	enabled atomic.Bool

	// Local video source for frame injection.
	sourceHandle uintptr

	mu      sync.Mutex
	sinking bool
}

// ID returns the track ID.
func (t *Track) ID() string { return t.id }

// Kind returns "video" or "audio".
func (t *Track) Kind() string { return t.kind }

// Enabled returns whether the track is enabled.
func (t *Track) Enabled() bool { return t.enabled.Load() }

// SetEnabled enables or disables the track. A disabled video track sends
// black frames; a disabled remote track stops rendering.
func (t *Track) SetEnabled(e bool) {
	t.enabled.Store(e)
	ffi.TrackSetEnabled(t.handle, e)
}

// SetOnVideoFrame sets a callback to receive decoded frames from a remote
// video track. nil removes it.
func (t *Track) SetOnVideoFrame(handler func(f *frame.VideoFrame)) error {
	if t.kind != "video" {
		return ErrNotVideoTrack
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sinking {
		ffi.TrackRemoveVideoSink(t.handle)
		t.sinking = false
	}
	if handler == nil {
		return nil
	}

	err := ffi.TrackSetVideoSink(t.handle, func(width, height int, y, u, v []byte, yStride, uStride, vStride int, timestampUs int64) {
		handler(&frame.VideoFrame{
			Width:     width,
			Height:    height,
			Format:    frame.PixelFormatI420,
			Data:      [][]byte{y, u, v},
			Stride:    []int{yStride, uStride, vStride},
			Timestamp: time.Duration(timestampUs) * time.Microsecond,
		})
	})
	if err != nil {
		return err
	}
	t.sinking = true
	return nil
}

// WriteVideoFrame pushes an I420 frame into a local video track.
func (t *Track) WriteVideoFrame(f *frame.VideoFrame) error {
	if t.kind != "video" {
		return ErrNotVideoTrack
	}
	if !t.enabled.Load() {
		return nil
	}
	if f.Format != frame.PixelFormatI420 || len(f.Data) < 3 || len(f.Stride) < 3 {
		return ErrInvalidFrame
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sourceHandle == 0 {
		return ErrPeerConnectionClosed
	}
	return ffi.VideoTrackSourcePushFrame(t.sourceHandle,
		f.Data[0], f.Data[1], f.Data[2],
		f.Stride[0], f.Stride[1], f.Stride[2],
		f.Timestamp.Microseconds())
}

// DataChannel represents a data channel.
type DataChannel struct {
	handle uintptr
	label  string
}

// Label returns the data channel label.
func (dc *DataChannel) Label() string { return dc.label }

// SetOnMessage sets the callback for when a message is received.
func (dc *DataChannel) SetOnMessage(cb func(data []byte, binary bool)) {
	ffi.DataChannelSetOnMessage(dc.handle, ffi.DataChannelMessageCallback(cb))
}

// Send sends binary data on the channel.
func (dc *DataChannel) Send(data []byte) error {
	return ffi.DataChannelSend(dc.handle, data, true)
}

// SendText sends text data on the channel.
func (dc *DataChannel) SendText(text string) error {
	return ffi.DataChannelSend(dc.handle, []byte(text), false)
}

// Close closes the data channel.
func (dc *DataChannel) Close() error {
	ffi.DataChannelClose(dc.handle)
	return nil
}

// PeerConnection wraps libwebrtc's native PeerConnection. Operations are
// synchronous; the shim blocks until libwebrtc's observers complete.
type PeerConnection struct {
	handle uintptr
	config Configuration

	iceConnectionState atomic.Value
	signalingState     SignalingState

	localDescription  *SessionDescription
	remoteDescription *SessionDescription

	senders    []*RTPSender
	remotes    []*Track
	channels   []*DataChannel
	localVideo *Track

	// Event handlers (browser-like callbacks). Set them before negotiating.
	OnICECandidate             func(candidate *ICECandidate)
	OnICECandidatesRemoved     func(candidates []*ICECandidate)
	OnICEConnectionStateChange func(state ICEConnectionState)
	OnTrack                    func(track *Track)
	OnDataChannel              func(dc *DataChannel)

	mu     sync.RWMutex
	closed atomic.Bool
}

// ffiConfigData holds FFI config and keeps allocations alive
type ffiConfigData struct {
	config     *ffi.PeerConnectionConfig
	iceServers []ffi.ICEServerConfig
	urlArrays  [][]uintptr
	strings    [][]byte
}

func (d *ffiConfigData) cstr(s string) uintptr {
	if s == "" {
		return 0
	}
	b := ffi.CString(s)
	d.strings = append(d.strings, b)
	return ffi.ByteSlicePtr(b)
}

// buildFFIConfig converts a Configuration to FFI-compatible format.
// Returns config data that must be kept alive during the FFI call.
func buildFFIConfig(config *Configuration) *ffiConfigData {
	data := &ffiConfigData{
		config: &ffi.PeerConnectionConfig{
			ICECandidatePoolSize: int32(config.ICECandidatePoolSize),
		},
	}

	if len(config.ICEServers) > 0 {
		data.iceServers = make([]ffi.ICEServerConfig, len(config.ICEServers))
		for i, server := range config.ICEServers {
			if len(server.URLs) > 0 {
				urlPtrs := make([]uintptr, len(server.URLs))
				for j, url := range server.URLs {
					urlPtrs[j] = data.cstr(url)
				}
				data.urlArrays = append(data.urlArrays, urlPtrs)
				data.iceServers[i].URLs = uintptrSlicePtr(urlPtrs)
				data.iceServers[i].URLCount = int32(len(urlPtrs))
			}
			data.iceServers[i].Username = data.cstr(server.Username)
			data.iceServers[i].Credential = data.cstr(server.Credential)
		}
		data.config.ICEServers = iceServersPtr(data.iceServers)
		data.config.ICEServerCount = int32(len(data.iceServers))
	}

	data.config.BundlePolicy = data.cstr(config.BundlePolicy)
	data.config.RTCPMuxPolicy = data.cstr(config.RTCPMuxPolicy)
	data.config.SDPSemantics = data.cstr(config.SDPSemantics)
	data.config.ICETransportPolicy = data.cstr(config.ICETransportPolicy)

	return data
}

// NewPeerConnection creates a new libwebrtc-backed PeerConnection.
func NewPeerConnection(config Configuration) (*PeerConnection, error) {
	if err := ffi.LoadLibrary(); err != nil {
		return nil, err
	}

	pc := &PeerConnection{config: config}
	pc.iceConnectionState.Store(ICEConnectionStateNew)

	configData := buildFFIConfig(&config)
	handle := ffi.CreatePeerConnection(configData.config)
	keepAlive(configData)
	if handle == 0 {
		return nil, errors.New("failed to create peer connection")
	}
	pc.handle = handle

	ffi.PeerConnectionSetOnICECandidate(handle, func(candidate, sdpMid string, sdpMLineIndex int) {
		if pc.closed.Load() || pc.OnICECandidate == nil {
			return
		}
		pc.OnICECandidate(&ICECandidate{
			Candidate:     candidate,
			SDPMid:        sdpMid,
			SDPMLineIndex: uint16(sdpMLineIndex),
		})
	})

	ffi.PeerConnectionSetOnICECandidatesRemoved(handle, func(cs []ffi.CandidateArgs) {
		if pc.closed.Load() || pc.OnICECandidatesRemoved == nil {
			return
		}
		out := make([]*ICECandidate, len(cs))
		for i, c := range cs {
			out[i] = &ICECandidate{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: uint16(c.SDPMLineIndex)}
		}
		pc.OnICECandidatesRemoved(out)
	})

	ffi.PeerConnectionSetOnICEConnectionStateChange(handle, func(state int) {
		if pc.closed.Load() {
			return
		}
		newState := ICEConnectionState(state)
		pc.iceConnectionState.Store(newState)
		if pc.OnICEConnectionStateChange != nil {
			pc.OnICEConnectionStateChange(newState)
		}
	})

	ffi.PeerConnectionSetOnTrack(handle, func(trackHandle uintptr, kind string) {
		if pc.closed.Load() {
			return
		}
		track := &Track{handle: trackHandle, kind: kind}
		track.enabled.Store(true)

		pc.mu.Lock()
		pc.remotes = append(pc.remotes, track)
		pc.mu.Unlock()

		if pc.OnTrack != nil {
			pc.OnTrack(track)
		}
	})

	ffi.PeerConnectionSetOnDataChannel(handle, func(dcHandle uintptr) {
		if pc.closed.Load() {
			return
		}
		dc := &DataChannel{handle: dcHandle, label: ffi.DataChannelLabel(dcHandle)}
		pc.mu.Lock()
		pc.channels = append(pc.channels, dc)
		pc.mu.Unlock()
		if pc.OnDataChannel != nil {
			pc.OnDataChannel(dc)
		}
	})

	return pc, nil
}

// CreateOffer creates an SDP offer.
func (pc *PeerConnection) CreateOffer() (*SessionDescription, error) {
	if pc.closed.Load() {
		return nil, ErrPeerConnectionClosed
	}
	// Don't hold the lock during FFI calls; they can trigger callbacks.
	sdp, err := ffi.PeerConnectionCreateOffer(pc.handle)
	if err != nil {
		return nil, errors.Join(ErrCreateOfferFailed, err)
	}
	return &SessionDescription{Type: SDPTypeOffer, SDP: sdp}, nil
}

// CreateAnswer creates an SDP answer.
func (pc *PeerConnection) CreateAnswer() (*SessionDescription, error) {
	if pc.closed.Load() {
		return nil, ErrPeerConnectionClosed
	}
	sdp, err := ffi.PeerConnectionCreateAnswer(pc.handle)
	if err != nil {
		return nil, errors.Join(ErrCreateAnswerFailed, err)
	}
	return &SessionDescription{Type: SDPTypeAnswer, SDP: sdp}, nil
}

// SetLocalDescription sets the local description.
func (pc *PeerConnection) SetLocalDescription(desc *SessionDescription) error {
	if pc.closed.Load() {
		return ErrPeerConnectionClosed
	}
	if err := ffi.PeerConnectionSetLocalDescription(pc.handle, int(desc.Type), desc.SDP); err != nil {
		return errors.Join(ErrSetDescriptionFailed, err)
	}
	pc.mu.Lock()
	pc.localDescription = desc
	pc.signalingState = nextSignalingState(pc.signalingState, true, desc.Type)
	pc.mu.Unlock()
	return nil
}

// SetRemoteDescription sets the remote description.
func (pc *PeerConnection) SetRemoteDescription(desc *SessionDescription) error {
	if pc.closed.Load() {
		return ErrPeerConnectionClosed
	}
	if err := ffi.PeerConnectionSetRemoteDescription(pc.handle, int(desc.Type), desc.SDP); err != nil {
		return errors.Join(ErrSetDescriptionFailed, err)
	}
	pc.mu.Lock()
	pc.remoteDescription = desc
	pc.signalingState = nextSignalingState(pc.signalingState, false, desc.Type)
	pc.mu.Unlock()
	return nil
}

// AddICECandidate adds a remote ICE candidate.
func (pc *PeerConnection) AddICECandidate(candidate *ICECandidate) error {
	if pc.closed.Load() {
		return ErrPeerConnectionClosed
	}
	if err := ffi.PeerConnectionAddICECandidate(pc.handle, candidate.Candidate, candidate.SDPMid, int(candidate.SDPMLineIndex)); err != nil {
		return errors.Join(ErrAddICECandidateFailed, err)
	}
	return nil
}

// RemoveICECandidates removes previously added remote candidates.
func (pc *PeerConnection) RemoveICECandidates(candidates []*ICECandidate) error {
	if pc.closed.Load() {
		return ErrPeerConnectionClosed
	}
	args := make([]ffi.CandidateArgs, len(candidates))
	for i, c := range candidates {
		args[i] = ffi.CandidateArgs{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: int(c.SDPMLineIndex)}
	}
	return ffi.PeerConnectionRemoveICECandidates(pc.handle, args)
}

// LocalDescription returns the local description.
func (pc *PeerConnection) LocalDescription() *SessionDescription {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.localDescription
}

// RemoteDescription returns the remote description.
func (pc *PeerConnection) RemoteDescription() *SessionDescription {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.remoteDescription
}

// SignalingState returns the signaling state implied by the descriptions
// applied so far.
func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.signalingState
}

// nextSignalingState follows the JSEP transitions for an applied description.
func nextSignalingState(cur SignalingState, local bool, t SDPType) SignalingState {
	if cur == SignalingStateClosed {
		return cur
	}
	switch t {
	case SDPTypeOffer:
		if local {
			return SignalingStateHaveLocalOffer
		}
		return SignalingStateHaveRemoteOffer
	case SDPTypePranswer:
		if local {
			return SignalingStateHaveLocalPranswer
		}
		return SignalingStateHaveRemotePranswer
	case SDPTypeAnswer, SDPTypeRollback:
		return SignalingStateStable
	}
	return cur
}

// ICEConnectionState returns the ICE connection state.
func (pc *PeerConnection) ICEConnectionState() ICEConnectionState {
	return pc.iceConnectionState.Load().(ICEConnectionState)
}

// TransceiverDirection is the direction of a transceiver.
type TransceiverDirection int

const (
	TransceiverDirectionSendRecv TransceiverDirection = iota
	TransceiverDirectionSendOnly
	TransceiverDirectionRecvOnly
)

func (d TransceiverDirection) ffi() int32 {
	switch d {
	case TransceiverDirectionSendOnly:
		return ffi.DirectionSendOnly
	case TransceiverDirectionRecvOnly:
		return ffi.DirectionRecvOnly
	default:
		return ffi.DirectionSendRecv
	}
}

// AddTransceiver adds a transceiver of kind "audio" or "video".
func (pc *PeerConnection) AddTransceiver(kind string, direction TransceiverDirection) error {
	if pc.closed.Load() {
		return ErrPeerConnectionClosed
	}
	var mediaKind int32
	switch kind {
	case "audio":
		mediaKind = ffi.MediaKindAudio
	case "video":
		mediaKind = ffi.MediaKindVideo
	default:
		return errors.New("unknown media kind: " + kind)
	}
	if ffi.PeerConnectionAddTransceiver(pc.handle, mediaKind, direction.ffi()) == 0 {
		return errors.New("failed to add " + kind + " transceiver")
	}
	return nil
}

// AddVideoTrack creates a local video track fed through WriteVideoFrame and
// adds it to the connection.
func (pc *PeerConnection) AddVideoTrack(id, streamID string, width, height int) (*Track, *RTPSender, error) {
	if pc.closed.Load() {
		return nil, nil, ErrPeerConnectionClosed
	}
	if width <= 0 || height <= 0 {
		return nil, nil, errors.New("invalid video dimensions")
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	source := ffi.VideoTrackSourceCreate(pc.handle, width, height)
	if source == 0 {
		return nil, nil, errors.New("failed to create video track source")
	}
	senderHandle := ffi.PeerConnectionAddVideoTrack(pc.handle, source, id, streamID)
	if senderHandle == 0 {
		ffi.VideoTrackSourceDestroy(source)
		return nil, nil, errors.New("failed to add track")
	}

	track := &Track{id: id, kind: "video", sourceHandle: source}
	track.enabled.Store(true)
	sender := &RTPSender{handle: senderHandle, track: track}
	pc.senders = append(pc.senders, sender)
	pc.localVideo = track
	return track, sender, nil
}

// LocalVideoTrack returns the track added by AddVideoTrack, if any.
func (pc *PeerConnection) LocalVideoTrack() *Track {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.localVideo
}

// GetSenders returns all senders.
func (pc *PeerConnection) GetSenders() []*RTPSender {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	result := make([]*RTPSender, len(pc.senders))
	copy(result, pc.senders)
	return result
}

// CreateDataChannel creates a data channel.
func (pc *PeerConnection) CreateDataChannel(label string, options *DataChannelInit) (*DataChannel, error) {
	if pc.closed.Load() {
		return nil, ErrPeerConnectionClosed
	}

	args := ffi.DataChannelArgs{Ordered: true, MaxRetransmits: -1, MaxRetransmitTimeMs: -1, ID: -1}
	if options != nil {
		if options.Ordered != nil {
			args.Ordered = *options.Ordered
		}
		if options.MaxRetransmits != nil {
			args.MaxRetransmits = int(*options.MaxRetransmits)
		}
		if options.MaxPacketLifeTime != nil {
			args.MaxRetransmitTimeMs = int(*options.MaxPacketLifeTime)
		}
		if options.ID != nil {
			args.ID = int(*options.ID)
		}
		args.Protocol = options.Protocol
		args.Negotiated = options.Negotiated
	}

	handle := ffi.PeerConnectionCreateDataChannel(pc.handle, label, args)
	if handle == 0 {
		return nil, errors.New("failed to create data channel")
	}
	dc := &DataChannel{handle: handle, label: label}

	pc.mu.Lock()
	pc.channels = append(pc.channels, dc)
	pc.mu.Unlock()
	return dc, nil
}

// Close closes the peer connection and releases every native object it
// owns. It is safe to call more than once.
func (pc *PeerConnection) Close() error {
	if !pc.closed.CompareAndSwap(false, true) {
		return nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	for _, t := range pc.remotes {
		ffi.TrackRemoveVideoSink(t.handle)
	}
	for _, dc := range pc.channels {
		ffi.DataChannelClose(dc.handle)
	}
	if pc.localVideo != nil {
		pc.localVideo.mu.Lock()
		ffi.VideoTrackSourceDestroy(pc.localVideo.sourceHandle)
		pc.localVideo.sourceHandle = 0
		pc.localVideo.mu.Unlock()
	}

	// PeerConnectionClose unregisters callbacks before the handle is
	// destroyed.
	ffi.PeerConnectionClose(pc.handle)
	ffi.PeerConnectionDestroy(pc.handle)
	pc.handle = 0
	pc.signalingState = SignalingStateClosed
	pc.iceConnectionState.Store(ICEConnectionStateClosed)
	return nil
}

func uintptrSlicePtr(s []uintptr) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0]))
}

func iceServersPtr(s []ffi.ICEServerConfig) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0]))
}

//go:noinline
func keepAlive(d *ffiConfigData) {
	runtime.KeepAlive(d)
}
