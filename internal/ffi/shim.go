package ffi

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// libwebrtc_shim exports. Populated by bindShim once the library is open.
var (
	shimVersion func() uintptr

	shimPeerConnectionCreate               func(config uintptr) uintptr
	shimPeerConnectionDestroy              func(pc uintptr)
	shimPeerConnectionClose                func(pc uintptr)
	shimPeerConnectionCreateOffer          func(pc, buf uintptr, size int32, outLen uintptr) int32
	shimPeerConnectionCreateAnswer         func(pc, buf uintptr, size int32, outLen uintptr) int32
	shimPeerConnectionSetLocalDescription  func(pc uintptr, sdpType int32, sdp uintptr) int32
	shimPeerConnectionSetRemoteDescription func(pc uintptr, sdpType int32, sdp uintptr) int32
	shimPeerConnectionAddICECandidate      func(pc, candidate, sdpMid uintptr, sdpMLineIndex int32) int32
	shimPeerConnectionRemoveICECandidates  func(pc, candidates uintptr, count int32) int32
	shimPeerConnectionAddTransceiver       func(pc uintptr, kind, direction int32) uintptr
	shimPeerConnectionAddVideoTrack        func(pc, source, trackID, streamID uintptr) uintptr
	shimPeerConnectionCreateDataChannel    func(pc, label uintptr, ordered, maxRetransmits, maxRetransmitTimeMs int32, protocol uintptr, negotiated, id int32) uintptr

	shimPeerConnectionSetOnICECandidate             func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnICECandidatesRemoved     func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnICEConnectionStateChange func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnTrack                    func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnDataChannel              func(pc, cb, ctx uintptr)

	shimVideoTrackSourceCreate    func(pc uintptr, width, height int32) uintptr
	shimVideoTrackSourcePushFrame func(source, y, u, v uintptr, yStride, uStride, vStride int32, timestampUs int64) int32
	shimVideoTrackSourceDestroy   func(source uintptr)

	shimRTPSenderGetParameters func(sender, encodings uintptr, max int32, outCount uintptr) int32
	shimRTPSenderSetParameters func(sender, encodings uintptr, count int32) int32

	shimTrackSetEnabled      func(track uintptr, enabled int32)
	shimTrackKind            func(track uintptr) uintptr
	shimTrackSetVideoSink    func(track, cb, ctx uintptr) int32
	shimTrackRemoveVideoSink func(track uintptr)

	shimDataChannelSetOnMessage func(dc, cb, ctx uintptr)
	shimDataChannelSend         func(dc, data uintptr, size, binary int32) int32
	shimDataChannelLabel        func(dc uintptr) uintptr
	shimDataChannelClose        func(dc uintptr)
	shimDataChannelDestroy      func(dc uintptr)
)

type binding struct {
	fptr any
	name string
}

func shimBindings() []binding {
	return []binding{
		{&shimVersion, "shim_version"},
		{&shimPeerConnectionCreate, "shim_peer_connection_create"},
		{&shimPeerConnectionDestroy, "shim_peer_connection_destroy"},
		{&shimPeerConnectionClose, "shim_peer_connection_close"},
		{&shimPeerConnectionCreateOffer, "shim_peer_connection_create_offer"},
		{&shimPeerConnectionCreateAnswer, "shim_peer_connection_create_answer"},
		{&shimPeerConnectionSetLocalDescription, "shim_peer_connection_set_local_description"},
		{&shimPeerConnectionSetRemoteDescription, "shim_peer_connection_set_remote_description"},
		{&shimPeerConnectionAddICECandidate, "shim_peer_connection_add_ice_candidate"},
		{&shimPeerConnectionRemoveICECandidates, "shim_peer_connection_remove_ice_candidates"},
		{&shimPeerConnectionAddTransceiver, "shim_peer_connection_add_transceiver"},
		{&shimPeerConnectionAddVideoTrack, "shim_peer_connection_add_video_track_from_source"},
		{&shimPeerConnectionCreateDataChannel, "shim_peer_connection_create_data_channel"},
		{&shimPeerConnectionSetOnICECandidate, "shim_peer_connection_set_on_ice_candidate"},
		{&shimPeerConnectionSetOnICECandidatesRemoved, "shim_peer_connection_set_on_ice_candidates_removed"},
		{&shimPeerConnectionSetOnICEConnectionStateChange, "shim_peer_connection_set_on_ice_connection_state_change"},
		{&shimPeerConnectionSetOnTrack, "shim_peer_connection_set_on_track"},
		{&shimPeerConnectionSetOnDataChannel, "shim_peer_connection_set_on_data_channel"},
		{&shimVideoTrackSourceCreate, "shim_video_track_source_create"},
		{&shimVideoTrackSourcePushFrame, "shim_video_track_source_push_frame"},
		{&shimVideoTrackSourceDestroy, "shim_video_track_source_destroy"},
		{&shimRTPSenderGetParameters, "shim_rtp_sender_get_parameters"},
		{&shimRTPSenderSetParameters, "shim_rtp_sender_set_parameters"},
		{&shimTrackSetEnabled, "shim_track_set_enabled"},
		{&shimTrackKind, "shim_track_kind"},
		{&shimTrackSetVideoSink, "shim_track_set_video_sink"},
		{&shimTrackRemoveVideoSink, "shim_track_remove_video_sink"},
		{&shimDataChannelSetOnMessage, "shim_data_channel_set_on_message"},
		{&shimDataChannelSend, "shim_data_channel_send"},
		{&shimDataChannelLabel, "shim_data_channel_label"},
		{&shimDataChannelClose, "shim_data_channel_close"},
		{&shimDataChannelDestroy, "shim_data_channel_destroy"},
	}
}

// registerAll resolves every symbol first so a partial library never
// leaves half of the function variables bound.
func registerAll(handle uintptr, bindings []binding) error {
	syms := make([]uintptr, len(bindings))
	for i, b := range bindings {
		sym, err := dlsymLibrary(handle, b.name)
		if err != nil || sym == 0 {
			return fmt.Errorf("%w: %s", ErrSymbolNotFound, b.name)
		}
		syms[i] = sym
	}
	for i, b := range bindings {
		purego.RegisterFunc(b.fptr, syms[i])
	}
	return nil
}

func bindShim(handle uintptr) error {
	return registerAll(handle, shimBindings())
}

// ShimVersion returns the shim library version, or "" when not loaded.
func ShimVersion() string {
	if !IsLoaded() {
		return ""
	}
	return GoString(shimVersion())
}
