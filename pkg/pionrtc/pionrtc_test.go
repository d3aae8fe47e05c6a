package pionrtc_test

import (
	"bytes"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZLMediaKit/ZLMediaKit/internal/testutil"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pionrtc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

func TestConfiguration(t *testing.T) {
	c := pionrtc.Configuration(pc.Configuration{
		ICEServers:           []pc.ICEServer{{URLs: []string{"turn:t"}, Username: "u", Credential: "p"}},
		BundlePolicy:         "max-bundle",
		RTCPMuxPolicy:        "require",
		ICETransportPolicy:   "relay",
		ICECandidatePoolSize: 3,
	})
	require.Len(t, c.ICEServers, 1)
	assert.Equal(t, "u", c.ICEServers[0].Username)
	assert.Equal(t, webrtc.BundlePolicyMaxBundle, c.BundlePolicy)
	assert.Equal(t, webrtc.RTCPMuxPolicyRequire, c.RTCPMuxPolicy)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, c.ICETransportPolicy)
	assert.EqualValues(t, 3, c.ICECandidatePoolSize)
}

func TestNewLocalTrack(t *testing.T) {
	v, err := pionrtc.NewLocalTrack(codec.H264, "video0", "stream")
	require.NoError(t, err)
	assert.Equal(t, "video", v.Kind())
	assert.Equal(t, codec.H264, v.Codec())
	assert.Zero(t, v.MaxBitrate())

	a, err := pionrtc.NewLocalTrack(codec.Opus, "audio0", "stream")
	require.NoError(t, err)
	assert.Equal(t, "audio", a.Kind())

	// Unbound tracks swallow frames.
	v.OnFrame(frame.NewEncodedFrame(codec.H264, []byte{0, 0, 0, 1, 0x65}, 0, true))
	v.OnFrame(frame.NewI420Frame(2, 2))
}

func loopbackEngine() *webrtc.SettingEngine {
	se := &webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	return se
}

type peer struct {
	client    *signaling.Client
	connected chan struct{}
	rendering chan struct{}
	errs      chan error
}

func newPeer(t *testing.T, dir signaling.Direction, opts pionrtc.Options, events *signaling.EventFuncs) *peer {
	t.Helper()
	p := &peer{
		connected: make(chan struct{}, 1),
		rendering: make(chan struct{}, 1),
		errs:      make(chan error, 1),
	}
	events.ICEConnected = func(*big.Int) { signal(p.connected) }
	events.RemoteRender = func(*big.Int) { signal(p.rendering) }
	events.PeerConnectionError = func(_ *big.Int, err error) {
		select {
		case p.errs <- err:
		default:
		}
	}

	params := signaling.DefaultParameters()
	params.VideoCodec = codec.VideoNameVP8
	params.ICEServers = []pc.ICEServer{{URLs: []string{"stun:127.0.0.1:9"}}}

	opts.SettingEngine = loopbackEngine()
	client, err := signaling.NewClient(signaling.Config{
		Params:        params,
		Direction:     dir,
		Factory:       pionrtc.NewFactory(opts),
		Events:        events,
		LoggerFactory: testutil.LoggerFactory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	p.client = client
	return p
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func wait(t *testing.T, p *peer, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case err := <-p.errs:
		t.Fatalf("%s: peer connection error: %v", what, err)
	case <-time.After(15 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestLoopbackVideoCall(t *testing.T) {
	if testing.Short() {
		t.Skip("opens UDP sockets")
	}

	video, err := pionrtc.NewLocalTrack(codec.VP8, "video0", "zlm")
	require.NoError(t, err)

	id := big.NewInt(1)
	var sender, receiver *peer
	senderEvents := &signaling.EventFuncs{
		LocalDescription: func(_ *big.Int, d *pc.SessionDescription) { receiver.client.HandleRemoteOffer(id, d) },
		ICECandidate:     func(_ *big.Int, c *pc.ICECandidate) { receiver.client.AddRemoteICECandidate(id, c) },
	}
	receiverEvents := &signaling.EventFuncs{
		LocalDescription: func(_ *big.Int, d *pc.SessionDescription) { sender.client.SetRemoteDescription(id, d) },
		ICECandidate:     func(_ *big.Int, c *pc.ICECandidate) { sender.client.AddRemoteICECandidate(id, c) },
	}
	sender = newPeer(t, signaling.DirectionSendOnly, pionrtc.Options{Video: video}, senderEvents)
	receiver = newPeer(t, signaling.DirectionRecvOnly, pionrtc.Options{}, receiverEvents)

	sender.client.CreatePeerConnection(id, signaling.RoleOfferer)
	sender.client.CreateOffer(id)

	// The remote track only surfaces once RTP arrives, so samples flow from
	// the start; writes before the binding are dropped by the track.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(33 * time.Millisecond)
		defer tick.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-tick.C:
			}
			first := byte(0x11)
			if i%30 == 0 {
				first = 0x10
			}
			payload := append([]byte{first}, bytes.Repeat([]byte{byte(i)}, 1500)...)
			_ = video.WriteSample(payload, 33*time.Millisecond)
		}
	}()

	wait(t, sender, sender.connected, "sender ICE")
	wait(t, receiver, receiver.connected, "receiver ICE")
	wait(t, receiver, receiver.rendering, "remote render")

	var frames atomic.Int32
	var sawKey atomic.Bool
	receiver.client.SetVideoRender(id, frame.VideoSinkFunc(func(f *frame.VideoFrame) {
		assert.Equal(t, frame.PixelFormatEncoded, f.Format)
		if f.IsKeyframe {
			sawKey.Store(true)
		}
		frames.Add(1)
	}))

	kbps := 500
	sender.client.SetVideoMaxBitrate(id, &kbps)
	require.NoError(t, sender.client.Sync(testutil.Context(t)))
	assert.EqualValues(t, 500000, video.MaxBitrate())

	require.Eventually(t, func() bool { return frames.Load() >= 5 }, 10*time.Second, 50*time.Millisecond)
	assert.True(t, sawKey.Load(), "no key frame delivered")

	state, err := sender.client.PeerState(testutil.Context(t), id)
	require.NoError(t, err)
	assert.Equal(t, signaling.StateNegotiated, state)
}

func TestDataChannelOffer(t *testing.T) {
	offers := make(chan string, 1)
	params := signaling.DefaultParameters()
	params.VideoCodec = codec.VideoNameVP8
	params.DataChannel = &signaling.DataChannelParameters{Label: "chat", Ordered: true, MaxRetransmits: -1, MaxRetransmitTimeMs: -1}

	client, err := signaling.NewClient(signaling.Config{
		Params:    params,
		Direction: signaling.DirectionRecvOnly,
		Factory:   pionrtc.NewFactory(pionrtc.Options{SettingEngine: loopbackEngine()}),
		Events: &signaling.EventFuncs{
			LocalDescription: func(_ *big.Int, d *pc.SessionDescription) { offers <- d.SDP },
		},
		LoggerFactory: testutil.LoggerFactory(),
	})
	require.NoError(t, err)
	defer client.Close()

	id := big.NewInt(3)
	client.CreatePeerConnection(id, signaling.RoleOfferer)
	client.CreateOffer(id)

	select {
	case sdp := <-offers:
		assert.Contains(t, sdp, "m=application")
		assert.Contains(t, sdp, "webrtc-datachannel")
	case <-time.After(5 * time.Second):
		t.Fatal("no local offer")
	}
}
