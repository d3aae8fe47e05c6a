package signaling_test

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZLMediaKit/ZLMediaKit/internal/testutil"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

type harness struct {
	t       *testing.T
	client  *signaling.Client
	factory *testutil.FakeFactory
	events  *testutil.RecordingEvents
}

func newHarness(t *testing.T, params signaling.Parameters, dir signaling.Direction, ff *testutil.FakeFactory) *harness {
	t.Helper()
	if ff == nil {
		ff = &testutil.FakeFactory{}
	}
	events := &testutil.RecordingEvents{}
	client, err := signaling.NewClient(signaling.Config{
		Params:        params,
		Direction:     dir,
		Factory:       ff.New,
		Events:        events,
		LoggerFactory: testutil.LoggerFactory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return &harness{t: t, client: client, factory: ff, events: events}
}

// sync waits for queued work, including the events it re-submits.
func (h *harness) sync() {
	h.t.Helper()
	for i := 0; i < 8; i++ {
		require.NoError(h.t, h.client.Sync(testutil.Context(h.t)))
	}
}

// complete finishes the oldest pending transport operation.
func (h *harness) complete(tr *testutil.FakeTransport) {
	h.t.Helper()
	require.True(h.t, tr.CompleteNext(), "nothing pending on transport")
	h.sync()
}

func (h *harness) state(id *big.Int) signaling.State {
	h.t.Helper()
	s, err := h.client.PeerState(testutil.Context(h.t), id)
	require.NoError(h.t, err)
	return s
}

func candidate(n string) *pc.ICECandidate {
	return &pc.ICECandidate{
		Candidate: "candidate:" + n + " 1 udp 2122260223 192.168.1.2 5000" + n + " typ host",
		SDPMid:    "0",
	}
}

func mLine(sdp, kind string) string {
	for _, line := range strings.Split(sdp, "\r\n") {
		if strings.HasPrefix(line, "m="+kind+" ") {
			return line
		}
	}
	return ""
}

func TestOffererNegotiation(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
	id := big.NewInt(42)

	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	h.client.CreateOffer(id)
	h.sync()

	tr := h.factory.Last()
	require.NotNil(t, tr)
	assert.Equal(t, signaling.RoleOfferer, tr.Config.Role)
	assert.Equal(t, []string{"CreateOffer"}, tr.Methods("CreateOffer", "SetLocalDescription"))
	assert.Equal(t, signaling.StateLocalSDPPending, h.state(id))

	h.complete(tr) // offer created
	local, ok := tr.Last("SetLocalDescription")
	require.True(t, ok)
	assert.Equal(t, pc.SDPTypeOffer, local.Desc.Type)
	assert.Equal(t, "m=video 9 UDP/TLS/RTP/SAVPF 102 96", mLine(local.Desc.SDP, "video"),
		"H264 should be preferred in the local offer")
	assert.Empty(t, h.events.Named("LocalDescription"))

	h.complete(tr) // local set
	got := h.events.Named("LocalDescription")
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].PeerID)
	assert.Equal(t, local.Desc.SDP, got[0].Desc.SDP)
	assert.Equal(t, signaling.StateLocalSDPSet, h.state(id))

	h.client.SetRemoteDescription(id, &pc.SessionDescription{Type: pc.SDPTypeAnswer, SDP: testutil.AnswerSDP})
	h.sync()
	assert.Equal(t, signaling.StateRemoteSDPPending, h.state(id))

	h.complete(tr) // remote set
	assert.Equal(t, signaling.StateNegotiated, h.state(id))
	assert.Len(t, h.events.Named("LocalDescription"), 1)
	assert.Empty(t, h.events.Named("PeerConnectionError"))
}

func TestCandidatesQueueUntilBothDescriptionsSet(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
	id := big.NewInt(7)

	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	h.client.AddRemoteICECandidate(id, candidate("1"))
	h.client.CreateOffer(id)
	h.sync()
	tr := h.factory.Last()
	assert.Empty(t, tr.AddedCandidates(), "candidate forwarded before any description")

	h.complete(tr) // offer created
	h.complete(tr) // local set
	h.client.AddRemoteICECandidate(id, candidate("2"))
	h.sync()
	assert.Empty(t, tr.AddedCandidates(), "candidate forwarded before the remote description")

	h.client.SetRemoteDescription(id, &pc.SessionDescription{Type: pc.SDPTypeAnswer, SDP: testutil.AnswerSDP})
	h.sync()
	h.complete(tr) // remote set
	assert.Equal(t, []*pc.ICECandidate{candidate("1"), candidate("2")}, tr.AddedCandidates())

	h.client.AddRemoteICECandidate(id, candidate("3"))
	h.sync()
	added := tr.AddedCandidates()
	require.Len(t, added, 3)
	assert.Equal(t, candidate("3"), added[2])
}

func TestAnswererDrainsQueuedCandidatesOnce(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
	id := big.NewInt(9)
	c1, c2 := candidate("1"), candidate("2")

	h.client.HandleRemoteOffer(id, &pc.SessionDescription{Type: pc.SDPTypeOffer, SDP: testutil.OfferSDP})
	h.client.AddRemoteICECandidate(id, c1)
	h.client.AddRemoteICECandidate(id, c2)
	h.sync()

	require.Equal(t, 1, h.factory.Count(), "candidates must reuse the answerer")
	tr := h.factory.Last()
	assert.Equal(t, signaling.RoleAnswerer, tr.Config.Role)
	assert.Equal(t, []string{"SetRemoteDescription", "CreateAnswer"},
		tr.Methods("SetRemoteDescription", "CreateAnswer", "SetLocalDescription"))

	h.complete(tr) // remote set
	assert.Empty(t, tr.AddedCandidates())
	assert.Empty(t, h.events.Named("LocalDescription"))
	assert.Equal(t, signaling.StateRemoteSDPSet, h.state(id))

	h.complete(tr) // answer created
	assert.Empty(t, tr.AddedCandidates())

	h.complete(tr) // local set
	assert.Equal(t, []*pc.ICECandidate{c1, c2}, tr.AddedCandidates())
	require.Len(t, h.events.Named("LocalDescription"), 1)
	assert.Equal(t, pc.SDPTypeAnswer, h.events.Named("LocalDescription")[0].Desc.Type)
	assert.Equal(t, signaling.StateNegotiated, h.state(id))

	assert.False(t, tr.CompleteNext())
	h.client.RemoveRemoteICECandidates(id, []*pc.ICECandidate{c1})
	h.sync()
	assert.Len(t, tr.AddedCandidates(), 2, "drain must happen exactly once")
}

func TestDoubleCreateOffer(t *testing.T) {
	t.Run("second request", func(t *testing.T) {
		h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
		id := big.NewInt(1)

		h.client.CreatePeerConnection(id, signaling.RoleOfferer)
		h.client.CreateOffer(id)
		h.client.CreateOffer(id)
		h.sync()

		tr := h.factory.Last()
		assert.Len(t, tr.Methods("CreateOffer"), 1)
		errs := h.events.Named("PeerConnectionError")
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0].Err, signaling.ErrMultipleSDPCreate)

		h.complete(tr)
		assert.Empty(t, tr.Methods("SetLocalDescription"))
		assert.Empty(t, h.events.Named("LocalDescription"))
	})

	t.Run("second completion", func(t *testing.T) {
		h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
		id := big.NewInt(2)

		h.client.CreatePeerConnection(id, signaling.RoleOfferer)
		h.client.CreateOffer(id)
		h.sync()
		tr := h.factory.Last()

		offer := &pc.SessionDescription{Type: pc.SDPTypeOffer, SDP: testutil.OfferSDP}
		tr.Emit(signaling.TransportEvent{Kind: signaling.EventCreateSuccess, Description: offer})
		tr.Emit(signaling.TransportEvent{Kind: signaling.EventCreateSuccess, Description: offer})
		h.sync()

		assert.Len(t, tr.Methods("SetLocalDescription"), 1)
		errs := h.events.Named("PeerConnectionError")
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0].Err, signaling.ErrMultipleSDPCreate)
	})
}

func TestStickyError(t *testing.T) {
	tests := []struct {
		name string
		fail func(h *harness, id *big.Int)
		want error
	}{
		{
			name: "create offer failure",
			fail: func(h *harness, id *big.Int) {
				h.client.CreatePeerConnection(id, signaling.RoleOfferer)
				h.client.CreateOffer(id)
				h.sync()
				require.True(h.t, h.factory.Last().FailNext())
				h.sync()
			},
			want: testutil.ErrFake,
		},
		{
			name: "transport creation failure",
			fail: func(h *harness, id *big.Int) {
				h.client.CreatePeerConnection(id, signaling.RoleOfferer)
				h.sync()
				h.factory.Err = testutil.ErrFake
				h.client.CreatePeerConnection(big.NewInt(102), signaling.RoleOfferer)
				h.sync()
			},
			want: testutil.ErrFake,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
			id := big.NewInt(100)
			tt.fail(h, id)

			errs := h.events.Named("PeerConnectionError")
			require.Len(t, errs, 1)
			assert.ErrorIs(t, errs[0].Err, signaling.ErrTransportFailure)
			assert.ErrorIs(t, errs[0].Err, tt.want)

			before := h.factory.Count()
			tr := h.factory.At(0)
			calls := len(tr.Calls())

			other := big.NewInt(101)
			h.client.CreatePeerConnection(other, signaling.RoleOfferer)
			h.client.CreateOffer(id)
			h.client.CreateOffer(other)
			h.client.AddRemoteICECandidate(id, candidate("1"))
			h.client.SetRemoteDescription(id, &pc.SessionDescription{Type: pc.SDPTypeAnswer, SDP: testutil.AnswerSDP})
			h.client.HandleRemoteOffer(other, &pc.SessionDescription{Type: pc.SDPTypeOffer, SDP: testutil.OfferSDP})
			h.sync()

			assert.Equal(t, before, h.factory.Count(), "no transport may be created after an error")
			assert.Len(t, tr.Calls(), calls, "no transport call may happen after an error")

			h.client.Dispose(id)
			h.sync()
			assert.Equal(t, 1, tr.Closes(), "dispose must still run")
			assert.Len(t, h.events.Named("PeerConnectionClosed"), 1)
			assert.Len(t, h.events.Named("PeerConnectionError"), 1, "the error fires once")
		})
	}
}

func TestDispose(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
	id := big.NewInt(5)

	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	h.client.Dispose(id)
	h.client.Dispose(id)
	h.client.Dispose(big.NewInt(6))
	h.sync()

	tr := h.factory.Last()
	assert.Equal(t, 1, tr.Closes())
	assert.Len(t, h.events.Named("PeerConnectionClosed"), 1)

	_, err := h.client.PeerState(testutil.Context(t), id)
	assert.ErrorIs(t, err, signaling.ErrNoPeer)

	// Events from a disposed transport are dropped.
	tr.Emit(signaling.TransportEvent{Kind: signaling.EventICECandidate, Candidate: candidate("1")})
	h.sync()
	assert.Empty(t, h.events.Named("ICECandidate"))
}

func TestRecreateDisposesPrevious(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
	id := big.NewInt(5)

	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	h.sync()

	require.Equal(t, 2, h.factory.Count())
	first, second := h.factory.At(0), h.factory.At(1)
	assert.Equal(t, 1, first.Closes())
	assert.Equal(t, 0, second.Closes())

	first.Emit(signaling.TransportEvent{Kind: signaling.EventICECandidate, Candidate: candidate("1")})
	second.Emit(signaling.TransportEvent{Kind: signaling.EventICECandidate, Candidate: candidate("2")})
	h.sync()
	got := h.events.Named("ICECandidate")
	require.Len(t, got, 1)
	assert.Equal(t, candidate("2"), got[0].Candidate)
}

func TestICEConnectionStates(t *testing.T) {
	tests := []struct {
		state pc.ICEConnectionState
		want  string
	}{
		{pc.ICEConnectionStateConnected, "ICEConnected"},
		{pc.ICEConnectionStateDisconnected, "ICEDisconnected"},
		{pc.ICEConnectionStateFailed, "PeerConnectionError"},
		{pc.ICEConnectionStateChecking, ""},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
			id := big.NewInt(3)
			h.client.CreatePeerConnection(id, signaling.RoleOfferer)
			h.sync()

			h.factory.Last().Emit(signaling.TransportEvent{Kind: signaling.EventICEConnectionState, ICEState: tt.state})
			h.sync()

			names := h.events.Names()
			if tt.want == "" {
				assert.Empty(t, names)
				return
			}
			assert.Equal(t, []string{tt.want}, names)
			if tt.want == "PeerConnectionError" {
				assert.ErrorIs(t, h.events.Named(tt.want)[0].Err, signaling.ErrICEFailed)
			}
		})
	}
}

func TestCandidateEventsForwarded(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
	id := big.NewInt(11)
	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	h.sync()

	tr := h.factory.Last()
	tr.Emit(signaling.TransportEvent{Kind: signaling.EventICECandidate, Candidate: candidate("1")})
	tr.Emit(signaling.TransportEvent{Kind: signaling.EventICECandidatesRemoved, Candidates: []*pc.ICECandidate{candidate("1")}})
	h.sync()

	assert.Equal(t, []string{"ICECandidate", "ICECandidatesRemoved"}, h.events.Names())
	assert.Equal(t, "11", h.events.All()[0].PeerID)
}

func TestRemoteVideoRender(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
	id := big.NewInt(12)
	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	h.sync()

	track := &testutil.FakeVideoTrack{}
	h.factory.Last().Emit(signaling.TransportEvent{Kind: signaling.EventRemoteVideoTrack, Track: track})
	h.sync()

	assert.Equal(t, []string{"RemoteRender"}, h.events.Names())
	assert.Equal(t, 1, track.Sinks())
	assert.True(t, track.Enabled())

	// Unbound: dropped.
	track.Push(testutil.CreateTestVideoFrame(4, 4))

	var got []*frame.VideoFrame
	h.client.SetVideoRender(id, frame.VideoSinkFunc(func(f *frame.VideoFrame) { got = append(got, f) }))
	h.sync()
	track.Push(testutil.CreateTestVideoFrame(4, 4))
	assert.Len(t, got, 1)

	h.client.SetVideoEnabled(false)
	h.sync()
	assert.False(t, track.Enabled())

	h.client.Dispose(id)
	h.sync()
	assert.Equal(t, 0, track.Sinks())
	track.Push(testutil.CreateTestVideoFrame(4, 4))
	assert.Len(t, got, 1)
}

func TestRemoteDescriptionTransforms(t *testing.T) {
	params := signaling.DefaultParameters()
	params.AudioCodec = "ISAC"
	params.AudioStartBitrate = 32
	params.VideoCodec = "VP8"
	h := newHarness(t, params, signaling.DirectionRecvOnly, nil)
	id := big.NewInt(13)

	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	h.client.SetRemoteDescription(id, &pc.SessionDescription{Type: pc.SDPTypeAnswer, SDP: testutil.OfferSDP})
	h.sync()

	call, ok := h.factory.Last().Last("SetRemoteDescription")
	require.True(t, ok)
	assert.Equal(t, pc.SDPTypeAnswer, call.Desc.Type)
	assert.Equal(t, "m=audio 9 UDP/TLS/RTP/SAVPF 103 111", mLine(call.Desc.SDP, "audio"))
	assert.Equal(t, "m=video 9 UDP/TLS/RTP/SAVPF 96 102", mLine(call.Desc.SDP, "video"))
	assert.Contains(t, call.Desc.SDP, "a=rtpmap:111 opus/48000/2\r\na=fmtp:111 maxaveragebitrate=32000\r\n")

	// Remote only: no event until the offer is applied.
	h.complete(h.factory.Last())
	assert.Empty(t, h.events.Names())
	assert.Equal(t, signaling.StateRemoteSDPSet, h.state(id))
}

func TestLocalVideoSource(t *testing.T) {
	tests := []struct {
		name       string
		localVideo bool
		wantRender bool
		wantVideo  string
	}{
		{"with source", true, true, "m=video 9 UDP/TLS/RTP/SAVPF 102 96"},
		{"without source", false, false, "m=video 9 UDP/TLS/RTP/SAVPF 96 102"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ff := &testutil.FakeFactory{LocalVideo: tt.localVideo}
			h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionSendRecv, ff)
			id := big.NewInt(14)

			h.client.CreatePeerConnection(id, signaling.RoleOfferer)
			h.client.CreateOffer(id)
			h.sync()
			h.complete(ff.Last())

			assert.Equal(t, tt.wantRender, len(h.events.Named("LocalRender")) == 1)
			call, ok := ff.Last().Last("SetLocalDescription")
			require.True(t, ok)
			assert.Equal(t, tt.wantVideo, mLine(call.Desc.SDP, "video"))
		})
	}
}

func TestSetVideoMaxBitrate(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionSendRecv, &testutil.FakeFactory{SenderReady: true})
	id := big.NewInt(15)
	h.client.CreatePeerConnection(id, signaling.RoleOfferer)

	kbps := 500
	h.client.SetVideoMaxBitrate(id, &kbps)
	kbps = 1 // the client copies the value
	h.sync()
	tr := h.factory.Last()
	require.NotNil(t, tr.MaxBitrate())
	assert.Equal(t, uint32(500000), *tr.MaxBitrate())

	h.client.SetVideoMaxBitrate(id, nil)
	h.sync()
	assert.Nil(t, tr.MaxBitrate())

	tr.SenderReady = false
	h.client.SetVideoMaxBitrate(id, &kbps)
	h.sync()
	assert.Empty(t, h.events.Named("PeerConnectionError"), "an unready sender only warns")
}

func TestSetVideoMaxBitrateBounds(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionSendRecv, &testutil.FakeFactory{SenderReady: true})
	id := big.NewInt(16)
	h.client.CreatePeerConnection(id, signaling.RoleOfferer)
	tr := h.factory.Last()

	huge := 5_000_000
	h.client.SetVideoMaxBitrate(id, &huge)
	h.sync()
	require.NotNil(t, tr.MaxBitrate())
	assert.Equal(t, uint32(math.MaxUint32), *tr.MaxBitrate(), "large caps saturate instead of wrapping")

	edge := math.MaxUint32 / 1000
	h.client.SetVideoMaxBitrate(id, &edge)
	h.sync()
	assert.Equal(t, uint32(edge*1000), *tr.MaxBitrate())

	negative := -1
	h.client.SetVideoMaxBitrate(id, &negative)
	h.sync()
	assert.Equal(t, uint32(edge*1000), *tr.MaxBitrate(), "a negative cap is ignored")
	assert.Empty(t, h.events.Named("PeerConnectionError"))
}

func TestProtocolViolations(t *testing.T) {
	tests := []struct {
		name string
		run  func(c *signaling.Client, id *big.Int)
		want error
	}{
		{
			name: "offer without peer",
			run:  func(c *signaling.Client, id *big.Int) { c.CreateOffer(id) },
			want: signaling.ErrNoPeer,
		},
		{
			name: "offer on answerer",
			run: func(c *signaling.Client, id *big.Int) {
				c.CreatePeerConnection(id, signaling.RoleAnswerer)
				c.CreateOffer(id)
			},
			want: signaling.ErrNotOfferer,
		},
		{
			name: "remote offer on offerer",
			run: func(c *signaling.Client, id *big.Int) {
				c.CreatePeerConnection(id, signaling.RoleOfferer)
				c.HandleRemoteOffer(id, &pc.SessionDescription{Type: pc.SDPTypeOffer, SDP: testutil.OfferSDP})
			},
			want: signaling.ErrNotAnswerer,
		},
		{
			name: "remote description without peer",
			run: func(c *signaling.Client, id *big.Int) {
				c.SetRemoteDescription(id, &pc.SessionDescription{Type: pc.SDPTypeAnswer, SDP: testutil.AnswerSDP})
			},
			want: signaling.ErrNoPeer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
			tt.run(h.client, big.NewInt(20))
			h.sync()

			errs := h.events.Named("PeerConnectionError")
			require.Len(t, errs, 1)
			assert.True(t, errors.Is(errs[0].Err, tt.want), "got %v, want %v", errs[0].Err, tt.want)
		})
	}
}

func TestCloseDisposesEveryPeer(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, nil)
	h.client.CreatePeerConnection(big.NewInt(1), signaling.RoleOfferer)
	h.client.HandleRemoteOffer(big.NewInt(2), &pc.SessionDescription{Type: pc.SDPTypeOffer, SDP: testutil.OfferSDP})

	require.NoError(t, h.client.Close())
	require.NoError(t, h.client.Close())

	require.Equal(t, 2, h.factory.Count())
	assert.Equal(t, 1, h.factory.At(0).Closes())
	assert.Equal(t, 1, h.factory.At(1).Closes())
	assert.Equal(t, []string{"PeerConnectionClosed", "PeerConnectionClosed"}, h.events.Names())

	h.client.CreateOffer(big.NewInt(1))
	assert.ErrorIs(t, h.client.Sync(testutil.Context(t)), signaling.ErrClientClosed)
}

func TestAutoCompletingTransport(t *testing.T) {
	h := newHarness(t, signaling.DefaultParameters(), signaling.DirectionRecvOnly, &testutil.FakeFactory{Auto: true})
	id := big.NewInt(30)

	h.client.HandleRemoteOffer(id, &pc.SessionDescription{Type: pc.SDPTypeOffer, SDP: testutil.OfferSDP})
	h.client.AddRemoteICECandidate(id, candidate("1"))
	h.sync()

	assert.Equal(t, []string{"LocalDescription"}, h.events.Names())
	assert.Equal(t, signaling.StateNegotiated, h.state(id))
	assert.Len(t, h.factory.Last().AddedCandidates(), 1)
}

func TestNewClientValidation(t *testing.T) {
	_, err := signaling.NewClient(signaling.Config{Params: signaling.DefaultParameters()})
	assert.ErrorIs(t, err, signaling.ErrNoFactory)

	params := signaling.DefaultParameters()
	params.VideoCodec = "MJPEG"
	ff := &testutil.FakeFactory{}
	_, err = signaling.NewClient(signaling.Config{Params: params, Factory: ff.New})
	assert.ErrorIs(t, err, signaling.ErrInvalidParameters)
}
