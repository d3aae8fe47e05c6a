// Package zlmrtc plays and pushes ZLMediaKit streams over WebRTC. A Session
// owns a signaling.Client with a single offerer peer and trades its offer for
// the server's answer through a whep.Negotiator.
package zlmrtc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/whep"
)

// Errors
var (
	ErrStopped     = errors.New("session stopped")
	ErrNegotiation = errors.New("negotiation failed")
	ErrStarted     = errors.New("session already started")
)

// Options configures a Session.
type Options struct {
	Params     signaling.Parameters
	Factory    signaling.TransportFactory
	Negotiator whep.Negotiator
	// OnEvent, if set, observes every peer event after the session has
	// handled it. It must not block; negotiation errors are reported from
	// the goroutine that ran the exchange, everything else from the
	// signaling executor.
	OnEvent       func(Event)
	LoggerFactory logging.LoggerFactory
}

// EventKind names a session notification.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventRemoteRender
	EventClosed
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventRemoteRender:
		return "remote-render"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a session notification.
type Event struct {
	Kind EventKind
	Err  error
}

// Session is one play or push of a stream.
type Session struct {
	client *signaling.Client
	neg    whep.Negotiator
	peerID *big.Int
	play   bool
	log    logging.LeveledLogger
	notify func(Event)

	// ctx bounds negotiation; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	connected chan struct{}
	failed    chan struct{}
	once      sync.Once
	errOnce   sync.Once
	err       error

	mu      sync.Mutex
	sink    frame.VideoSink
	started bool
	stopped bool
}

// NewPlayer returns a receive-only session rendering remote video to sink.
func NewPlayer(opts Options, sink frame.VideoSink) (*Session, error) {
	return newSession(opts, signaling.DirectionRecvOnly, true, sink)
}

// NewPusher returns a send-only session publishing the factory's local
// tracks.
func NewPusher(opts Options) (*Session, error) {
	return newSession(opts, signaling.DirectionSendOnly, false, nil)
}

func newSession(opts Options, dir signaling.Direction, play bool, sink frame.VideoSink) (*Session, error) {
	if opts.Negotiator == nil {
		return nil, fmt.Errorf("%w: no negotiator", ErrNegotiation)
	}
	lf := opts.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	s := &Session{
		neg:       opts.Negotiator,
		peerID:    big.NewInt(rand.Int63()),
		play:      play,
		log:       lf.NewLogger("zlmrtc"),
		notify:    opts.OnEvent,
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
		sink:      sink,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	client, err := signaling.NewClient(signaling.Config{
		Params:        opts.Params,
		Direction:     dir,
		Factory:       opts.Factory,
		Events:        s,
		LoggerFactory: lf,
	})
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.client = client
	return s, nil
}

// PeerID returns the id of the session's peer connection.
func (s *Session) PeerID() *big.Int { return new(big.Int).Set(s.peerID) }

// Client exposes the underlying signaling client.
func (s *Session) Client() *signaling.Client { return s.client }

// Start creates the peer connection and its offer. Negotiation continues in
// the background; use Wait for the outcome.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return ErrStopped
	case s.started:
		return ErrStarted
	}
	s.started = true
	s.client.CreatePeerConnection(s.peerID, signaling.RoleOfferer)
	s.client.CreateOffer(s.peerID)
	return nil
}

// Wait blocks until ICE connects, the session fails or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.connected:
		return nil
	case <-s.failed:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the session fails; Err then returns the cause.
func (s *Session) Done() <-chan struct{} { return s.failed }

// Err returns the first failure, or nil.
func (s *Session) Err() error {
	select {
	case <-s.failed:
		return s.err
	default:
		return nil
	}
}

// SetSink redirects remote video. It takes effect immediately when video
// is already rendering.
func (s *Session) SetSink(sink frame.VideoSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	select {
	case <-s.connected:
		s.client.SetVideoRender(s.peerID, sink)
	default:
	}
}

// SetVideoMaxBitrate caps the sent video in kbps; nil removes the cap.
func (s *Session) SetVideoMaxBitrate(kbps *int) {
	s.client.SetVideoMaxBitrate(s.peerID, kbps)
}

// SetAudioEnabled mutes or unmutes local audio.
func (s *Session) SetAudioEnabled(enabled bool) { s.client.SetAudioEnabled(enabled) }

// SetVideoEnabled pauses or resumes video in both directions.
func (s *Session) SetVideoEnabled(enabled bool) { s.client.SetVideoEnabled(enabled) }

// Stop disposes the peer connection, closes the client and ends the server
// session. Only the first call has an effect.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.client.Dispose(s.peerID)
	_ = s.client.Close()
	if err := s.neg.Bye(ctx); err != nil {
		s.log.Warnf("bye: %v", err)
		return err
	}
	return nil
}

func (s *Session) fail(err error) {
	s.errOnce.Do(func() {
		s.err = err
		close(s.failed)
	})
}

func (s *Session) emit(kind EventKind, err error) {
	if s.notify != nil {
		s.notify(Event{Kind: kind, Err: err})
	}
}

func (s *Session) isPeer(peerID *big.Int) bool {
	return peerID != nil && peerID.Cmp(s.peerID) == 0
}

// OnLocalDescription implements signaling.Events. The HTTP exchange runs off
// the executor.
func (s *Session) OnLocalDescription(peerID *big.Int, desc *pc.SessionDescription) {
	if !s.isPeer(peerID) {
		return
	}
	id := new(big.Int).Set(peerID)
	offer := desc.SDP
	go func() {
		answer, err := s.neg.Negotiate(s.ctx, offer)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			err = fmt.Errorf("%w: %w", ErrNegotiation, err)
			s.log.Errorf("negotiate: %v", err)
			s.fail(err)
			s.emit(EventError, err)
			return
		}
		s.log.Debug("answer received")
		s.client.SetRemoteDescription(id, &pc.SessionDescription{Type: pc.SDPTypeAnswer, SDP: answer})
	}()
}

// OnICECandidate implements signaling.Events. ZLMediaKit answers carry
// their candidates and ignore trickled ones.
func (s *Session) OnICECandidate(*big.Int, *pc.ICECandidate) {}

// OnICECandidatesRemoved implements signaling.Events.
func (s *Session) OnICECandidatesRemoved(*big.Int, []*pc.ICECandidate) {}

// OnICEConnected implements signaling.Events.
func (s *Session) OnICEConnected(peerID *big.Int) {
	if !s.isPeer(peerID) {
		return
	}
	s.log.Info("ICE connected")
	s.once.Do(func() { close(s.connected) })
	s.emit(EventConnected, nil)
}

// OnICEDisconnected implements signaling.Events.
func (s *Session) OnICEDisconnected(peerID *big.Int) {
	if !s.isPeer(peerID) {
		return
	}
	s.log.Warn("ICE disconnected")
	s.emit(EventDisconnected, nil)
}

// OnPeerConnectionClosed implements signaling.Events.
func (s *Session) OnPeerConnectionClosed(peerID *big.Int) {
	if !s.isPeer(peerID) {
		return
	}
	s.emit(EventClosed, nil)
}

// OnPeerConnectionError implements signaling.Events.
func (s *Session) OnPeerConnectionError(peerID *big.Int, err error) {
	s.log.Errorf("peer connection error: %v", err)
	s.fail(err)
	s.emit(EventError, err)
}

// OnLocalRender implements signaling.Events.
func (s *Session) OnLocalRender(*big.Int) {}

// OnRemoteRender implements signaling.Events. It binds the session sink.
func (s *Session) OnRemoteRender(peerID *big.Int) {
	if !s.isPeer(peerID) {
		return
	}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		s.client.SetVideoRender(peerID, sink)
	}
	s.emit(EventRemoteRender, nil)
}

var _ signaling.Events = (*Session)(nil)
