package ffi

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// maxSDPSize bounds the buffer handed to create offer/answer.
const maxSDPSize = 64 * 1024

// PeerConnectionConfig matches ShimPeerConnectionConfig in shim.h
type PeerConnectionConfig struct {
	ICEServers           uintptr // Pointer to array of ICEServerConfig
	ICEServerCount       int32
	ICECandidatePoolSize int32
	BundlePolicy         uintptr // C string
	RTCPMuxPolicy        uintptr // C string
	SDPSemantics         uintptr // C string
	ICETransportPolicy   uintptr // C string
}

// ICEServerConfig matches ShimICEServer in shim.h
type ICEServerConfig struct {
	URLs       uintptr // Pointer to array of C strings
	URLCount   int32
	Username   uintptr // C string
	Credential uintptr // C string
}

// ICECandidate matches ShimICECandidate in shim.h.
type ICECandidate struct {
	Candidate     uintptr
	SDPMid        uintptr
	SDPMLineIndex int32
}

// RTPEncodingParameters matches ShimRTPEncodingParameters in shim.h
type RTPEncodingParameters struct {
	RID                   [64]byte
	MaxBitrateBps         uint32
	MinBitrateBps         uint32
	MaxFramerate          float64
	ScaleResolutionDownBy float64
	Active                int32
	_                     [4]byte
}

// Media kinds and transceiver directions understood by the shim.
const (
	MediaKindAudio int32 = 0
	MediaKindVideo int32 = 1

	DirectionSendRecv int32 = 0
	DirectionSendOnly int32 = 1
	DirectionRecvOnly int32 = 2
)

// CreatePeerConnection creates a native PeerConnection. The config and
// everything it points to must stay alive for the duration of the call.
func CreatePeerConnection(config *PeerConnectionConfig) uintptr {
	if !IsLoaded() {
		return 0
	}
	return shimPeerConnectionCreate(uintptr(unsafe.Pointer(config)))
}

// PeerConnectionClose closes the connection and drops every callback
// registered for it.
func PeerConnectionClose(pc uintptr) {
	if !IsLoaded() || pc == 0 {
		return
	}
	onICECandidate.delete(pc)
	onCandidatesRemoved.delete(pc)
	onICEState.delete(pc)
	onTrack.delete(pc)
	onDataChannel.delete(pc)
	shimPeerConnectionClose(pc)
}

// PeerConnectionDestroy releases the native object.
func PeerConnectionDestroy(pc uintptr) {
	if !IsLoaded() || pc == 0 {
		return
	}
	shimPeerConnectionDestroy(pc)
}

func createSDP(fn func(pc, buf uintptr, size int32, outLen uintptr) int32, pc uintptr) (string, error) {
	buf := make([]byte, maxSDPSize)
	var n int32
	if err := ShimError(fn(pc, ByteSlicePtr(buf), int32(len(buf)), Int32Ptr(&n))); err != nil {
		return "", err
	}
	if n < 0 || int(n) > len(buf) {
		return "", ErrBufferTooSmall
	}
	return string(buf[:n]), nil
}

// PeerConnectionCreateOffer creates an SDP offer.
func PeerConnectionCreateOffer(pc uintptr) (string, error) {
	if !IsLoaded() {
		return "", ErrLibraryNotLoaded
	}
	return createSDP(shimPeerConnectionCreateOffer, pc)
}

// PeerConnectionCreateAnswer creates an SDP answer.
func PeerConnectionCreateAnswer(pc uintptr) (string, error) {
	if !IsLoaded() {
		return "", ErrLibraryNotLoaded
	}
	return createSDP(shimPeerConnectionCreateAnswer, pc)
}

// PeerConnectionSetLocalDescription sets the local SDP description.
func PeerConnectionSetLocalDescription(pc uintptr, sdpType int, sdp string) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	s := CString(sdp)
	result := shimPeerConnectionSetLocalDescription(pc, int32(sdpType), ByteSlicePtr(s))
	runtime.KeepAlive(s)
	return ShimError(result)
}

// PeerConnectionSetRemoteDescription sets the remote SDP description.
func PeerConnectionSetRemoteDescription(pc uintptr, sdpType int, sdp string) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	s := CString(sdp)
	result := shimPeerConnectionSetRemoteDescription(pc, int32(sdpType), ByteSlicePtr(s))
	runtime.KeepAlive(s)
	return ShimError(result)
}

// PeerConnectionAddICECandidate adds a remote ICE candidate.
func PeerConnectionAddICECandidate(pc uintptr, candidate, sdpMid string, sdpMLineIndex int) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	c := CString(candidate)
	m := CString(sdpMid)
	result := shimPeerConnectionAddICECandidate(pc, ByteSlicePtr(c), ByteSlicePtr(m), int32(sdpMLineIndex))
	runtime.KeepAlive(c)
	runtime.KeepAlive(m)
	return ShimError(result)
}

// CandidateArgs is the Go form of one candidate passed to
// PeerConnectionRemoveICECandidates.
type CandidateArgs struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex int
}

// PeerConnectionRemoveICECandidates removes previously added candidates.
func PeerConnectionRemoveICECandidates(pc uintptr, cs []CandidateArgs) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	if len(cs) == 0 {
		return nil
	}
	arr := make([]ICECandidate, len(cs))
	keep := make([][]byte, 0, 2*len(cs))
	for i, c := range cs {
		cand, mid := CString(c.Candidate), CString(c.SDPMid)
		keep = append(keep, cand, mid)
		arr[i] = ICECandidate{
			Candidate:     ByteSlicePtr(cand),
			SDPMid:        ByteSlicePtr(mid),
			SDPMLineIndex: int32(c.SDPMLineIndex),
		}
	}
	result := shimPeerConnectionRemoveICECandidates(pc, uintptr(unsafe.Pointer(&arr[0])), int32(len(arr)))
	runtime.KeepAlive(arr)
	runtime.KeepAlive(keep)
	return ShimError(result)
}

// PeerConnectionAddTransceiver adds a transceiver and returns its sender
// handle (0 on failure).
func PeerConnectionAddTransceiver(pc uintptr, kind, direction int32) uintptr {
	if !IsLoaded() {
		return 0
	}
	return shimPeerConnectionAddTransceiver(pc, kind, direction)
}

// VideoTrackSourceCreate creates a frame-injection source for a local
// video track.
func VideoTrackSourceCreate(pc uintptr, width, height int) uintptr {
	if !IsLoaded() {
		return 0
	}
	return shimVideoTrackSourceCreate(pc, int32(width), int32(height))
}

// VideoTrackSourcePushFrame pushes one I420 frame into a source.
func VideoTrackSourcePushFrame(source uintptr, y, u, v []byte, yStride, uStride, vStride int, timestampUs int64) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	result := shimVideoTrackSourcePushFrame(source,
		ByteSlicePtr(y), ByteSlicePtr(u), ByteSlicePtr(v),
		int32(yStride), int32(uStride), int32(vStride), timestampUs)
	runtime.KeepAlive(y)
	runtime.KeepAlive(u)
	runtime.KeepAlive(v)
	return ShimError(result)
}

// VideoTrackSourceDestroy destroys a video track source.
func VideoTrackSourceDestroy(source uintptr) {
	if !IsLoaded() || source == 0 {
		return
	}
	shimVideoTrackSourceDestroy(source)
}

// PeerConnectionAddVideoTrack adds a track fed by source and returns the
// sender handle (0 on failure).
func PeerConnectionAddVideoTrack(pc, source uintptr, trackID, streamID string) uintptr {
	if !IsLoaded() {
		return 0
	}
	t := CString(trackID)
	s := CString(streamID)
	sender := shimPeerConnectionAddVideoTrack(pc, source, ByteSlicePtr(t), ByteSlicePtr(s))
	runtime.KeepAlive(t)
	runtime.KeepAlive(s)
	return sender
}

// DataChannelArgs carries the creation options of a data channel. Negative
// values mean unset.
type DataChannelArgs struct {
	Ordered             bool
	MaxRetransmits      int
	MaxRetransmitTimeMs int
	Protocol            string
	Negotiated          bool
	ID                  int
}

// PeerConnectionCreateDataChannel creates a data channel (0 on failure).
func PeerConnectionCreateDataChannel(pc uintptr, label string, args DataChannelArgs) uintptr {
	if !IsLoaded() {
		return 0
	}
	l := CString(label)
	p := CString(args.Protocol)
	dc := shimPeerConnectionCreateDataChannel(pc, ByteSlicePtr(l),
		boolInt(args.Ordered), int32(args.MaxRetransmits), int32(args.MaxRetransmitTimeMs),
		ByteSlicePtr(p), boolInt(args.Negotiated), int32(args.ID))
	runtime.KeepAlive(l)
	runtime.KeepAlive(p)
	return dc
}

// RTPSenderGetParameters reads up to len(encodings) encodings of a sender.
func RTPSenderGetParameters(sender uintptr, encodings []RTPEncodingParameters) (int, error) {
	if !IsLoaded() {
		return 0, ErrLibraryNotLoaded
	}
	if len(encodings) == 0 {
		return 0, ErrInvalidParam
	}
	var n int32
	result := shimRTPSenderGetParameters(sender, uintptr(unsafe.Pointer(&encodings[0])), int32(len(encodings)), Int32Ptr(&n))
	if err := ShimError(result); err != nil {
		return 0, err
	}
	return int(n), nil
}

// RTPSenderSetParameters applies encodings to a sender.
func RTPSenderSetParameters(sender uintptr, encodings []RTPEncodingParameters) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	var ptr uintptr
	if len(encodings) > 0 {
		ptr = uintptr(unsafe.Pointer(&encodings[0]))
	}
	result := shimRTPSenderSetParameters(sender, ptr, int32(len(encodings)))
	runtime.KeepAlive(encodings)
	return ShimError(result)
}

// TrackSetEnabled toggles a native media track.
func TrackSetEnabled(track uintptr, enabled bool) {
	if !IsLoaded() || track == 0 {
		return
	}
	shimTrackSetEnabled(track, boolInt(enabled))
}

// TrackKind returns "audio" or "video".
func TrackKind(track uintptr) string {
	if !IsLoaded() {
		return ""
	}
	return GoString(shimTrackKind(track))
}

// DataChannelSend sends a message on a data channel.
func DataChannelSend(dc uintptr, data []byte, binary bool) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	result := shimDataChannelSend(dc, ByteSlicePtr(data), int32(len(data)), boolInt(binary))
	runtime.KeepAlive(data)
	return ShimError(result)
}

// DataChannelLabel returns the label of a data channel.
func DataChannelLabel(dc uintptr) string {
	if !IsLoaded() {
		return ""
	}
	return GoString(shimDataChannelLabel(dc))
}

// DataChannelClose closes and destroys a data channel.
func DataChannelClose(dc uintptr) {
	if !IsLoaded() || dc == 0 {
		return
	}
	onDCMessage.delete(dc)
	shimDataChannelClose(dc)
	shimDataChannelDestroy(dc)
}

// ============================================================================
// Callbacks
// ============================================================================

// ICECandidateCallback receives a locally gathered candidate.
type ICECandidateCallback func(candidate, sdpMid string, sdpMLineIndex int)

// CandidatesRemovedCallback receives candidates the engine withdrew.
type CandidatesRemovedCallback func(cs []CandidateArgs)

// StateCallback receives a native state enum value.
type StateCallback func(state int)

// TrackCallback receives a new remote track and its kind.
type TrackCallback func(track uintptr, kind string)

// DataChannelCallback receives a remotely opened data channel.
type DataChannelCallback func(dc uintptr)

// DataChannelMessageCallback receives one message.
type DataChannelMessageCallback func(data []byte, binary bool)

// VideoFrameCallback is called when a decoded frame arrives on a remote track.
type VideoFrameCallback func(width, height int, y, u, v []byte, yStride, uStride, vStride int, timestampUs int64)

var (
	onICECandidate      callbackTable[ICECandidateCallback]
	onCandidatesRemoved callbackTable[CandidatesRemovedCallback]
	onICEState          callbackTable[StateCallback]
	onTrack             callbackTable[TrackCallback]
	onDataChannel       callbackTable[DataChannelCallback]
	onDCMessage         callbackTable[DataChannelMessageCallback]
	onVideoFrame        callbackTable[VideoFrameCallback]

	trampolineOnce sync.Once

	iceCandidateTrampoline      uintptr
	candidatesRemovedTrampoline uintptr
	iceStateTrampoline          uintptr
	trackTrampoline             uintptr
	dataChannelTrampoline       uintptr
	dcMessageTrampoline         uintptr
	videoFrameTrampoline        uintptr
)

func readCandidate(p uintptr) CandidateArgs {
	c := (*ICECandidate)(unsafe.Pointer(p))
	return CandidateArgs{
		Candidate:     GoString(c.Candidate),
		SDPMid:        GoString(c.SDPMid),
		SDPMLineIndex: int(c.SDPMLineIndex),
	}
}

// initTrampolines creates one C-callable function per callback signature.
// purego callbacks are never freed, so they are created exactly once.
//
//go:nocheckptr
func initTrampolines() {
	trampolineOnce.Do(func() {
		iceCandidateTrampoline = purego.NewCallback(func(ctx, candidate uintptr) {
			cb, ok := onICECandidate.get(ctx)
			if !ok || candidate == 0 {
				return
			}
			c := readCandidate(candidate)
			safeCallback(func() { cb(c.Candidate, c.SDPMid, c.SDPMLineIndex) })
		})

		candidatesRemovedTrampoline = purego.NewCallback(func(ctx, candidates uintptr, count int32) {
			cb, ok := onCandidatesRemoved.get(ctx)
			if !ok || candidates == 0 || count <= 0 {
				return
			}
			arr := unsafe.Slice((*ICECandidate)(unsafe.Pointer(candidates)), count)
			cs := make([]CandidateArgs, len(arr))
			for i := range arr {
				cs[i] = readCandidate(uintptr(unsafe.Pointer(&arr[i])))
			}
			safeCallback(func() { cb(cs) })
		})

		// NOTE: C uses 'int' (32-bit) for state, so we must use int32 to match
		iceStateTrampoline = purego.NewCallback(func(ctx uintptr, state int32) {
			if cb, ok := onICEState.get(ctx); ok {
				safeCallback(func() { cb(int(state)) })
			}
		})

		trackTrampoline = purego.NewCallback(func(ctx, track uintptr) {
			if cb, ok := onTrack.get(ctx); ok && track != 0 {
				kind := TrackKind(track)
				safeCallback(func() { cb(track, kind) })
			}
		})

		dataChannelTrampoline = purego.NewCallback(func(ctx, dc uintptr) {
			if cb, ok := onDataChannel.get(ctx); ok && dc != 0 {
				safeCallback(func() { cb(dc) })
			}
		})

		dcMessageTrampoline = purego.NewCallback(func(ctx, data uintptr, size, binary int32) {
			if cb, ok := onDCMessage.get(ctx); ok {
				msg := GoBytes(data, int(size))
				safeCallback(func() { cb(msg, binary != 0) })
			}
		})

		videoFrameTrampoline = purego.NewCallback(func(ctx uintptr, width, height int32, y, u, v uintptr, yStride, uStride, vStride int32, timestampUs int64) {
			cb, ok := onVideoFrame.get(ctx)
			if !ok {
				return
			}
			if width <= 0 || height <= 0 || width > 8192 || height > 8192 {
				return
			}
			if yStride < width || uStride <= 0 || vStride <= 0 {
				return
			}
			uvHeight := (int(height) + 1) / 2
			yData := GoBytes(y, int(yStride)*int(height))
			uData := GoBytes(u, int(uStride)*uvHeight)
			vData := GoBytes(v, int(vStride)*uvHeight)
			safeCallback(func() {
				cb(int(width), int(height), yData, uData, vData, int(yStride), int(uStride), int(vStride), timestampUs)
			})
		})
	})
}

// PeerConnectionSetOnICECandidate registers the local candidate callback.
func PeerConnectionSetOnICECandidate(pc uintptr, cb ICECandidateCallback) {
	if !IsLoaded() {
		return
	}
	initTrampolines()
	onICECandidate.set(pc, cb)
	shimPeerConnectionSetOnICECandidate(pc, iceCandidateTrampoline, pc)
}

// PeerConnectionSetOnICECandidatesRemoved registers the removal callback.
func PeerConnectionSetOnICECandidatesRemoved(pc uintptr, cb CandidatesRemovedCallback) {
	if !IsLoaded() {
		return
	}
	initTrampolines()
	onCandidatesRemoved.set(pc, cb)
	shimPeerConnectionSetOnICECandidatesRemoved(pc, candidatesRemovedTrampoline, pc)
}

// PeerConnectionSetOnICEConnectionStateChange registers the ICE state callback.
func PeerConnectionSetOnICEConnectionStateChange(pc uintptr, cb StateCallback) {
	if !IsLoaded() {
		return
	}
	initTrampolines()
	onICEState.set(pc, cb)
	shimPeerConnectionSetOnICEConnectionStateChange(pc, iceStateTrampoline, pc)
}

// PeerConnectionSetOnTrack registers the remote track callback.
func PeerConnectionSetOnTrack(pc uintptr, cb TrackCallback) {
	if !IsLoaded() {
		return
	}
	initTrampolines()
	onTrack.set(pc, cb)
	shimPeerConnectionSetOnTrack(pc, trackTrampoline, pc)
}

// PeerConnectionSetOnDataChannel registers the remote data channel callback.
func PeerConnectionSetOnDataChannel(pc uintptr, cb DataChannelCallback) {
	if !IsLoaded() {
		return
	}
	initTrampolines()
	onDataChannel.set(pc, cb)
	shimPeerConnectionSetOnDataChannel(pc, dataChannelTrampoline, pc)
}

// DataChannelSetOnMessage registers the message callback of a channel.
func DataChannelSetOnMessage(dc uintptr, cb DataChannelMessageCallback) {
	if !IsLoaded() {
		return
	}
	initTrampolines()
	onDCMessage.set(dc, cb)
	shimDataChannelSetOnMessage(dc, dcMessageTrampoline, dc)
}

// TrackSetVideoSink attaches a frame callback to a remote video track.
func TrackSetVideoSink(track uintptr, cb VideoFrameCallback) error {
	if !IsLoaded() {
		return ErrLibraryNotLoaded
	}
	initTrampolines()
	onVideoFrame.set(track, cb)
	return ShimError(shimTrackSetVideoSink(track, videoFrameTrampoline, track))
}

// TrackRemoveVideoSink detaches the frame callback of a remote video track.
func TrackRemoveVideoSink(track uintptr) {
	onVideoFrame.delete(track)
	if !IsLoaded() || track == 0 {
		return
	}
	shimTrackRemoveVideoSink(track)
}
