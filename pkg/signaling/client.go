// Package signaling coordinates WebRTC offer/answer negotiation for many
// remote peers.
//
// A Client keeps one record per peer id and runs every operation on a single
// executor goroutine, in submission order. Callers never see return values
// from negotiation operations; results arrive through Events.
//
//	client, _ := signaling.NewClient(signaling.Config{
//		Params:  signaling.DefaultParameters(),
//		Factory: pionrtc.NewFactory(pionrtc.Options{}),
//		Events:  session,
//	})
//	client.CreatePeerConnection(id, signaling.RoleOfferer)
//	client.CreateOffer(id)
package signaling

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
)

// Errors reported through Events.OnPeerConnectionError or returned by the
// synchronous helpers.
var (
	ErrMultipleSDPCreate = errors.New("multiple SDP create")
	ErrNotOfferer        = errors.New("peer connection is not an offerer")
	ErrNotAnswerer       = errors.New("peer connection is not an answerer")
	ErrNoPeer            = errors.New("no peer connection for peer id")
	ErrTransportFailure  = errors.New("transport failure")
	ErrICEFailed         = errors.New("ICE connection failed")
	ErrClientClosed      = errors.New("signaling client closed")
	ErrSenderNotReady    = errors.New("video sender not ready")
	ErrNoFactory         = errors.New("no transport factory")
	ErrInvalidParameters = errors.New("invalid parameters")
)

// Config configures a Client.
type Config struct {
	Params    Parameters
	Direction Direction
	Factory   TransportFactory
	// Events may be nil while a caller is still being wired up.
	Events        Events
	LoggerFactory logging.LoggerFactory
}

// Client is the serialized negotiation facade. All fields below exec are
// owned by the executor goroutine.
type Client struct {
	params        Parameters
	direction     Direction
	factory       TransportFactory
	events        Events
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	exec      *Executor
	closeOnce sync.Once

	reg          *registry
	isError      bool
	audioEnabled bool
	videoEnabled bool
}

// NewClient validates cfg and starts the executor.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Factory == nil {
		return nil, ErrNoFactory
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.Events == nil {
		cfg.Events = &EventFuncs{}
	}

	log := cfg.LoggerFactory.NewLogger("signaling")
	return &Client{
		params:        cfg.Params,
		direction:     cfg.Direction,
		factory:       cfg.Factory,
		events:        cfg.Events,
		loggerFactory: cfg.LoggerFactory,
		log:           log,
		exec:          NewExecutor(log),
		reg:           newRegistry(),
		audioEnabled:  true,
		videoEnabled:  true,
	}, nil
}

func (c *Client) submit(op string, task func()) {
	if !c.exec.Submit(task) {
		c.log.Warnf("%s dropped: %v", op, ErrClientClosed)
	}
}

func clonePeerID(peerID *big.Int) *big.Int {
	return new(big.Int).Set(peerID)
}

// CreatePeerConnection creates the peer connection for peerID, replacing
// and disposing any existing one.
func (c *Client) CreatePeerConnection(peerID *big.Int, role Role) {
	id := clonePeerID(peerID)
	c.submit("create peer connection", func() {
		c.createPeerConnection(id, role)
	})
}

// CreateOffer asks the offerer for peerID to produce its local description.
func (c *Client) CreateOffer(peerID *big.Int) {
	id := clonePeerID(peerID)
	c.submit("create offer", func() {
		c.createOffer(id)
	})
}

// HandleRemoteOffer applies a remote offer and answers it, creating the
// answerer for peerID if needed.
func (c *Client) HandleRemoteOffer(peerID *big.Int, offer *pc.SessionDescription) {
	id := clonePeerID(peerID)
	c.submit("handle remote offer", func() {
		c.handleRemoteOffer(id, offer)
	})
}

// SetRemoteDescription applies a remote description to an existing peer.
func (c *Client) SetRemoteDescription(peerID *big.Int, desc *pc.SessionDescription) {
	id := clonePeerID(peerID)
	c.submit("set remote description", func() {
		c.setRemoteDescription(id, desc)
	})
}

// AddRemoteICECandidate queues or applies a remote candidate.
func (c *Client) AddRemoteICECandidate(peerID *big.Int, candidate *pc.ICECandidate) {
	id := clonePeerID(peerID)
	c.submit("add remote candidate", func() {
		c.addRemoteICECandidate(id, candidate)
	})
}

// RemoveRemoteICECandidates drains queued candidates, then removes cs.
func (c *Client) RemoveRemoteICECandidates(peerID *big.Int, cs []*pc.ICECandidate) {
	id := clonePeerID(peerID)
	c.submit("remove remote candidates", func() {
		c.removeRemoteICECandidates(id, cs)
	})
}

// SetVideoRender redirects the remote video of peerID to sink.
func (c *Client) SetVideoRender(peerID *big.Int, sink frame.VideoSink) {
	id := clonePeerID(peerID)
	c.submit("set video render", func() {
		rec := c.reg.get(id)
		if rec == nil {
			c.log.Warnf("set video render: %v %s", ErrNoPeer, id)
			return
		}
		rec.videoSink.SetTarget(sink)
	})
}

// SetVideoMaxBitrate limits the local video sender. A nil kbps removes the
// limit.
func (c *Client) SetVideoMaxBitrate(peerID *big.Int, kbps *int) {
	id := clonePeerID(peerID)
	var limit *int
	if kbps != nil {
		v := *kbps
		limit = &v
	}
	c.submit("set video max bitrate", func() {
		c.setVideoMaxBitrate(id, limit)
	})
}

// SetAudioEnabled toggles local audio on every peer connection.
func (c *Client) SetAudioEnabled(enabled bool) {
	c.submit("set audio enabled", func() {
		c.audioEnabled = enabled
		for _, rec := range c.reg.all() {
			rec.transport.SetAudioEnabled(enabled)
		}
	})
}

// SetVideoEnabled toggles local and remote video on every peer connection.
func (c *Client) SetVideoEnabled(enabled bool) {
	c.submit("set video enabled", func() {
		c.videoEnabled = enabled
		for _, rec := range c.reg.all() {
			rec.transport.SetVideoEnabled(enabled)
			if rec.remoteVideo != nil {
				rec.remoteVideo.SetEnabled(enabled)
			}
		}
	})
}

// Dispose releases the peer connection for peerID. Disposing an unknown or
// already disposed peer does nothing.
func (c *Client) Dispose(peerID *big.Int) {
	id := clonePeerID(peerID)
	c.submit("dispose", func() {
		if rec := c.reg.get(id); rec != nil {
			c.dispose(rec, true)
		}
	})
}

// Close disposes every peer connection and stops the executor after the
// work queued so far has run. It must not be called from an Events method.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.exec.Submit(func() {
			for _, rec := range c.reg.all() {
				c.dispose(rec, true)
			}
		})
		c.exec.Shutdown()
	})
	return nil
}

// Sync waits for every operation submitted before it to finish.
func (c *Client) Sync(ctx context.Context) error {
	return c.exec.Sync(ctx)
}

// PeerState returns the negotiation state of peerID.
func (c *Client) PeerState(ctx context.Context, peerID *big.Int) (State, error) {
	id := clonePeerID(peerID)
	type result struct {
		state State
		ok    bool
	}
	ch := make(chan result, 1)
	if !c.exec.Submit(func() {
		rec := c.reg.get(id)
		if rec == nil {
			ch <- result{}
			return
		}
		ch <- result{state: rec.state, ok: true}
	}) {
		return 0, ErrClientClosed
	}

	select {
	case r := <-ch:
		if !r.ok {
			return 0, ErrNoPeer
		}
		return r.state, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
