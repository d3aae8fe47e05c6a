// Package e2e runs calls between the native and pion engines through two
// signaling clients, the way a ZLMediaKit session pairs a publisher with a
// player.
package e2e

import (
	"context"
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
	"github.com/ZLMediaKit/ZLMediaKit/pkg/nativertc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pionrtc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

const connectTimeout = 15 * time.Second

type endpoint struct {
	client    *signaling.Client
	connected chan struct{}
	rendering chan struct{}
	errs      chan error
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func newEndpoint(t *testing.T, dir signaling.Direction, factory signaling.TransportFactory, events *signaling.EventFuncs) *endpoint {
	t.Helper()
	e := &endpoint{
		connected: make(chan struct{}, 1),
		rendering: make(chan struct{}, 1),
		errs:      make(chan error, 1),
	}
	events.ICEConnected = func(*big.Int) { notify(e.connected) }
	events.RemoteRender = func(*big.Int) { notify(e.rendering) }
	events.PeerConnectionError = func(_ *big.Int, err error) {
		select {
		case e.errs <- err:
		default:
		}
	}

	params := signaling.DefaultParameters()
	params.VideoCodec = codec.VideoNameVP8
	params.ICEServers = nil

	client, err := signaling.NewClient(signaling.Config{
		Params:        params,
		Direction:     dir,
		Factory:       factory,
		Events:        events,
		LoggerFactory: testutil.LoggerFactory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	e.client = client
	return e
}

func (e *endpoint) wait(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case err := <-e.errs:
		t.Fatalf("%s: %v", what, err)
	case <-time.After(connectTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func loopback() *webrtc.SettingEngine {
	se := &webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	return se
}

// pair wires offerer and answerer events to each other for peer id.
func pair(id *big.Int) (offerer, answerer *signaling.EventFuncs, bind func(o, a *endpoint)) {
	var o, a *endpoint
	offerer = &signaling.EventFuncs{
		LocalDescription: func(_ *big.Int, d *pc.SessionDescription) { a.client.HandleRemoteOffer(id, d) },
		ICECandidate:     func(_ *big.Int, c *pc.ICECandidate) { a.client.AddRemoteICECandidate(id, c) },
	}
	answerer = &signaling.EventFuncs{
		LocalDescription: func(_ *big.Int, d *pc.SessionDescription) { o.client.SetRemoteDescription(id, d) },
		ICECandidate:     func(_ *big.Int, c *pc.ICECandidate) { o.client.AddRemoteICECandidate(id, c) },
	}
	return offerer, answerer, func(oe, ae *endpoint) { o, a = oe, ae }
}

func feed(ctx context.Context, sink frame.VideoSink) {
	tick := time.NewTicker(33 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		f := testutil.CreateTestVideoFrame(320, 240)
		f.Timestamp = time.Duration(i) * 33 * time.Millisecond
		sink.OnFrame(f)
	}
}

func TestNativePublisherPionPlayer(t *testing.T) {
	if testing.Short() {
		t.Skip("opens UDP sockets")
	}
	testutil.SkipIfNoShim(t)

	id := big.NewInt(7)
	source := &nativertc.VideoSource{}
	oev, aev, bind := pair(id)
	pub := newEndpoint(t, signaling.DirectionSendOnly, nativertc.NewFactory(nativertc.Options{VideoSource: source}), oev)
	player := newEndpoint(t, signaling.DirectionRecvOnly, pionrtc.NewFactory(pionrtc.Options{SettingEngine: loopback()}), aev)
	bind(pub, player)

	pub.client.CreatePeerConnection(id, signaling.RoleOfferer)
	pub.client.CreateOffer(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed(ctx, source)

	pub.wait(t, pub.connected, "publisher ICE")
	player.wait(t, player.connected, "player ICE")
	player.wait(t, player.rendering, "remote render")

	var frames atomic.Int32
	player.client.SetVideoRender(id, frame.VideoSinkFunc(func(f *frame.VideoFrame) {
		assert.Equal(t, codec.VP8, f.Codec)
		frames.Add(1)
	}))
	require.Eventually(t, func() bool { return frames.Load() >= 3 }, 10*time.Second, 50*time.Millisecond)

	state, err := player.client.PeerState(testutil.Context(t), id)
	require.NoError(t, err)
	assert.Equal(t, signaling.StateNegotiated, state)
}

func TestPionPublisherNativePlayer(t *testing.T) {
	if testing.Short() {
		t.Skip("opens UDP sockets")
	}
	testutil.SkipIfNoShim(t)

	video, err := pionrtc.NewLocalTrack(codec.VP8, "video0", "zlm")
	require.NoError(t, err)

	id := big.NewInt(8)
	oev, aev, bind := pair(id)
	pub := newEndpoint(t, signaling.DirectionSendOnly, pionrtc.NewFactory(pionrtc.Options{Video: video, SettingEngine: loopback()}), oev)
	player := newEndpoint(t, signaling.DirectionRecvOnly, nativertc.NewFactory(nativertc.Options{}), aev)
	bind(pub, player)

	pub.client.CreatePeerConnection(id, signaling.RoleOfferer)
	pub.client.CreateOffer(id)

	pub.wait(t, pub.connected, "publisher ICE")
	player.wait(t, player.connected, "player ICE")

	kbps := 800
	pub.client.SetVideoMaxBitrate(id, &kbps)
	require.NoError(t, pub.client.Sync(testutil.Context(t)))
	assert.EqualValues(t, 800_000, video.MaxBitrate())

	for _, e := range []*endpoint{pub, player} {
		state, err := e.client.PeerState(testutil.Context(t), id)
		require.NoError(t, err)
		assert.Equal(t, signaling.StateNegotiated, state)
	}
}
