package signaling

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/sdputil"
)

// Everything in this file runs on the executor goroutine.

func (c *Client) reportError(peerID *big.Int, err error) {
	c.log.Errorf("peer connection error for %s: %v", peerID, err)
	if c.isError {
		return
	}
	c.isError = true
	c.events.OnPeerConnectionError(peerID, err)
}

func (c *Client) createPeerConnection(peerID *big.Int, role Role) *record {
	if c.isError {
		return nil
	}
	if old := c.reg.get(peerID); old != nil {
		c.log.Infof("replacing peer connection for %s", peerID)
		c.dispose(old, false)
	}

	rec := newRecord(peerID, role)
	t, err := c.factory(TransportConfig{
		PeerID:        rec.peerID,
		Role:          role,
		Direction:     c.direction,
		Params:        c.params,
		LoggerFactory: c.loggerFactory,
	}, c.handlerFor(rec))
	if err != nil {
		c.reportError(peerID, fmt.Errorf("%w: create peer connection: %w", ErrTransportFailure, err))
		return nil
	}
	rec.transport = t
	c.reg.put(rec)
	c.log.Debugf("created %s peer connection for %s", role, peerID)

	t.SetAudioEnabled(c.audioEnabled)
	rec.videoCall = c.params.VideoCallEnabled
	if rec.videoCall && c.direction.Sends() {
		if t.HasLocalVideo() {
			t.SetVideoEnabled(c.videoEnabled)
			c.events.OnLocalRender(rec.peerID)
		} else {
			c.log.Warn("video call enabled but no video source provided")
			rec.videoCall = false
		}
	}
	return rec
}

// handlerFor re-submits transport events so they are applied in order with
// the caller's operations.
func (c *Client) handlerFor(rec *record) TransportHandler {
	return func(ev TransportEvent) {
		if !c.exec.Submit(func() { c.handleTransportEvent(rec, ev) }) {
			c.log.Debugf("%s event for %s after close", ev.Kind, rec.peerID)
		}
	}
}

func (c *Client) handleTransportEvent(rec *record, ev TransportEvent) {
	if rec.closed || c.reg.get(rec.peerID) != rec {
		c.log.Debugf("ignoring %s event for stale peer connection %s", ev.Kind, rec.peerID)
		return
	}

	switch ev.Kind {
	case EventCreateSuccess:
		c.onCreateSuccess(rec, ev.Description)
	case EventCreateFailure:
		rec.creating = false
		c.reportError(rec.peerID, fmt.Errorf("%w: createSDP error: %w", ErrTransportFailure, ev.Err))
	case EventSetSuccess:
		c.onSetSuccess(rec, ev)
	case EventSetFailure:
		c.reportError(rec.peerID, fmt.Errorf("%w: setSDP error: %w", ErrTransportFailure, ev.Err))
	case EventICECandidate:
		c.events.OnICECandidate(rec.peerID, ev.Candidate)
	case EventICECandidatesRemoved:
		c.events.OnICECandidatesRemoved(rec.peerID, ev.Candidates)
	case EventICEConnectionState:
		c.onICEConnectionState(rec, ev.ICEState)
	case EventRemoteVideoTrack:
		c.onRemoteVideoTrack(rec, ev.Track)
	case EventDataChannelMessage:
		if c.params.DataChannel == nil {
			return
		}
		if ev.Binary {
			c.log.Debugf("received binary message over %s", ev.Label)
			return
		}
		c.log.Infof("got message %q over %s", string(ev.Data), ev.Label)
	default:
		c.log.Warnf("unknown transport event %d", ev.Kind)
	}
}

func (c *Client) onICEConnectionState(rec *record, state pc.ICEConnectionState) {
	c.log.Debugf("ICE connection state for %s: %s", rec.peerID, state)
	switch state {
	case pc.ICEConnectionStateConnected:
		c.events.OnICEConnected(rec.peerID)
	case pc.ICEConnectionStateDisconnected:
		c.events.OnICEDisconnected(rec.peerID)
	case pc.ICEConnectionStateFailed:
		c.reportError(rec.peerID, ErrICEFailed)
	}
}

func (c *Client) onRemoteVideoTrack(rec *record, track RemoteVideoTrack) {
	if c.isError || track == nil {
		return
	}
	if rec.remoteVideo != nil {
		rec.remoteVideo.RemoveSink(rec.videoSink)
	}
	rec.remoteVideo = track
	track.SetEnabled(c.videoEnabled)
	track.AddSink(rec.videoSink)
	c.events.OnRemoteRender(rec.peerID)
}

func (c *Client) createOffer(peerID *big.Int) {
	if c.isError {
		return
	}
	rec := c.reg.get(peerID)
	switch {
	case rec == nil:
		c.reportError(peerID, fmt.Errorf("create offer: %w", ErrNoPeer))
		return
	case rec.role != RoleOfferer:
		c.reportError(peerID, fmt.Errorf("create offer: %w", ErrNotOfferer))
		return
	case rec.creating || rec.localDescription != nil:
		c.reportError(peerID, ErrMultipleSDPCreate)
		return
	}

	c.log.Debugf("create offer for %s", peerID)
	rec.creating = true
	rec.state = StateLocalSDPPending
	rec.transport.CreateOffer()
}

func (c *Client) handleRemoteOffer(peerID *big.Int, offer *pc.SessionDescription) {
	if c.isError {
		return
	}
	rec := c.reg.get(peerID)
	switch {
	case rec == nil, rec.role == RoleAnswerer && (rec.creating || rec.localDescription != nil):
		// A new offer for an answered peer starts a fresh connection; one
		// created by early candidates is reused along with its queue.
		if rec = c.createPeerConnection(peerID, RoleAnswerer); rec == nil {
			return
		}
	case rec.role != RoleAnswerer:
		c.reportError(peerID, fmt.Errorf("handle remote offer: %w", ErrNotAnswerer))
		return
	}

	c.applyRemoteDescription(rec, offer)
	c.log.Debugf("create answer for %s", peerID)
	rec.creating = true
	rec.transport.CreateAnswer()
}

func (c *Client) setRemoteDescription(peerID *big.Int, desc *pc.SessionDescription) {
	if c.isError {
		return
	}
	rec := c.reg.get(peerID)
	if rec == nil {
		c.reportError(peerID, fmt.Errorf("set remote description: %w", ErrNoPeer))
		return
	}
	c.applyRemoteDescription(rec, desc)
}

// applyRemoteDescription rewrites desc with the local codec and bitrate
// preferences before handing it to the transport.
func (c *Client) applyRemoteDescription(rec *record, desc *pc.SessionDescription) {
	sdp := desc.SDP
	if c.params.PreferISAC() {
		sdp = sdputil.PreferCodec(sdp, codec.ISAC.SDPName(), true)
	}
	if rec.videoCall {
		sdp = sdputil.PreferCodec(sdp, SDPVideoCodecName(c.params.VideoCodec), false)
	}
	if c.params.AudioStartBitrate > 0 {
		sdp = sdputil.SetStartBitrate(codec.Opus.SDPName(), false, sdp, c.params.AudioStartBitrate)
	}

	c.log.Debugf("set remote %s for %s", desc.Type, rec.peerID)
	rec.state = StateRemoteSDPPending
	rec.transport.SetRemoteDescription(&pc.SessionDescription{Type: desc.Type, SDP: sdp})
}

func (c *Client) onCreateSuccess(rec *record, desc *pc.SessionDescription) {
	if rec.localDescription != nil {
		c.reportError(rec.peerID, ErrMultipleSDPCreate)
		return
	}
	rec.creating = false
	if c.isError || desc == nil {
		return
	}

	sdp := desc.SDP
	if c.params.PreferISAC() {
		sdp = sdputil.PreferCodec(sdp, codec.ISAC.SDPName(), true)
	}
	if rec.videoCall {
		sdp = sdputil.PreferCodec(sdp, SDPVideoCodecName(c.params.VideoCodec), false)
	}

	rec.localDescription = &pc.SessionDescription{Type: desc.Type, SDP: sdp}
	rec.state = StateLocalSDPPending
	c.log.Debugf("set local %s for %s", desc.Type, rec.peerID)
	rec.transport.SetLocalDescription(rec.localDescription)
}

func (c *Client) onSetSuccess(rec *record, ev TransportEvent) {
	if c.isError {
		return
	}
	if ev.Remote {
		rec.remoteDescription = ev.Description
	} else {
		rec.localApplied = true
	}

	switch rec.role {
	case RoleOfferer:
		switch {
		case rec.remoteDescription == nil:
			// The offer is applied; it goes out before any answer arrives.
			rec.state = StateLocalSDPSet
			c.events.OnLocalDescription(rec.peerID, rec.localDescription)
		case rec.localApplied:
			c.log.Debugf("remote answer set for %s", rec.peerID)
			c.drainCandidates(rec)
			rec.state = StateNegotiated
		default:
			rec.state = StateRemoteSDPSet
		}
	case RoleAnswerer:
		if !rec.localApplied {
			// Remote offer applied; the answer is still being created.
			rec.state = StateRemoteSDPSet
			return
		}
		c.events.OnLocalDescription(rec.peerID, rec.localDescription)
		c.drainCandidates(rec)
		rec.state = StateNegotiated
	}
}

func (c *Client) drainCandidates(rec *record) {
	if rec.queuedRemoteCandidates == nil {
		return
	}
	c.log.Debugf("add %d remote candidates for %s", len(rec.queuedRemoteCandidates), rec.peerID)
	for _, cand := range rec.queuedRemoteCandidates {
		if err := rec.transport.AddICECandidate(cand); err != nil {
			c.log.Warnf("add queued candidate for %s: %v", rec.peerID, err)
		}
	}
	rec.queuedRemoteCandidates = nil
}

func (c *Client) addRemoteICECandidate(peerID *big.Int, cand *pc.ICECandidate) {
	if c.isError {
		return
	}
	rec := c.reg.get(peerID)
	if rec == nil {
		if rec = c.createPeerConnection(peerID, RoleAnswerer); rec == nil {
			return
		}
	}
	if rec.queuedRemoteCandidates != nil {
		rec.queuedRemoteCandidates = append(rec.queuedRemoteCandidates, cand)
		return
	}
	if err := rec.transport.AddICECandidate(cand); err != nil {
		c.log.Warnf("add candidate for %s: %v", peerID, err)
	}
}

func (c *Client) removeRemoteICECandidates(peerID *big.Int, cs []*pc.ICECandidate) {
	if c.isError {
		return
	}
	rec := c.reg.get(peerID)
	if rec == nil {
		c.log.Warnf("remove candidates: %v %s", ErrNoPeer, peerID)
		return
	}
	// Queued candidates go first so an add followed by a remove keeps its order.
	c.drainCandidates(rec)
	if err := rec.transport.RemoveICECandidates(cs); err != nil {
		c.log.Warnf("remove candidates for %s: %v", peerID, err)
	}
}

func (c *Client) setVideoMaxBitrate(peerID *big.Int, kbps *int) {
	if c.isError {
		return
	}
	rec := c.reg.get(peerID)
	if rec == nil {
		c.log.Warnf("set video max bitrate: %v %s", ErrNoPeer, peerID)
		return
	}

	var bps *uint32
	if kbps != nil {
		if *kbps < 0 {
			c.log.Warnf("set video max bitrate for %s: negative %d kbps ignored", peerID, *kbps)
			return
		}
		v := uint32(math.MaxUint32)
		if *kbps <= math.MaxUint32/1000 {
			v = uint32(*kbps) * 1000
		}
		bps = &v
	}
	err := rec.transport.SetVideoMaxBitrate(bps)
	switch {
	case errors.Is(err, ErrSenderNotReady):
		c.log.Warnf("sender is not ready for %s", peerID)
	case err != nil:
		c.log.Errorf("set sender parameters for %s: %v", peerID, err)
	case kbps == nil:
		c.log.Debugf("removed max video bitrate for %s", peerID)
	default:
		c.log.Debugf("configured max video bitrate for %s to %d kbps", peerID, *kbps)
	}
}

func (c *Client) dispose(rec *record, notify bool) {
	if rec.closed {
		return
	}
	c.reg.remove(rec)
	if err := rec.release(); err != nil {
		c.log.Warnf("close transport for %s: %v", rec.peerID, err)
	}
	c.log.Debugf("disposed peer connection %s", rec.peerID)
	if notify {
		c.events.OnPeerConnectionClosed(rec.peerID)
	}
}
