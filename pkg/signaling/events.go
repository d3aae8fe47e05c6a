package signaling

import (
	"math/big"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
)

// Events receives the results of Client operations. Every method is called
// on the client's executor goroutine, so implementations must not block.
type Events interface {
	OnLocalDescription(peerID *big.Int, desc *pc.SessionDescription)
	OnICECandidate(peerID *big.Int, c *pc.ICECandidate)
	OnICECandidatesRemoved(peerID *big.Int, cs []*pc.ICECandidate)
	OnICEConnected(peerID *big.Int)
	OnICEDisconnected(peerID *big.Int)
	OnPeerConnectionClosed(peerID *big.Int)
	OnPeerConnectionError(peerID *big.Int, err error)
	OnLocalRender(peerID *big.Int)
	OnRemoteRender(peerID *big.Int)
}

// EventFuncs adapts optional callbacks to Events. Nil fields are skipped.
type EventFuncs struct {
	LocalDescription     func(peerID *big.Int, desc *pc.SessionDescription)
	ICECandidate         func(peerID *big.Int, c *pc.ICECandidate)
	ICECandidatesRemoved func(peerID *big.Int, cs []*pc.ICECandidate)
	ICEConnected         func(peerID *big.Int)
	ICEDisconnected      func(peerID *big.Int)
	PeerConnectionClosed func(peerID *big.Int)
	PeerConnectionError  func(peerID *big.Int, err error)
	LocalRender          func(peerID *big.Int)
	RemoteRender         func(peerID *big.Int)
}

var _ Events = (*EventFuncs)(nil)

func (f *EventFuncs) OnLocalDescription(peerID *big.Int, desc *pc.SessionDescription) {
	if f.LocalDescription != nil {
		f.LocalDescription(peerID, desc)
	}
}

func (f *EventFuncs) OnICECandidate(peerID *big.Int, c *pc.ICECandidate) {
	if f.ICECandidate != nil {
		f.ICECandidate(peerID, c)
	}
}

func (f *EventFuncs) OnICECandidatesRemoved(peerID *big.Int, cs []*pc.ICECandidate) {
	if f.ICECandidatesRemoved != nil {
		f.ICECandidatesRemoved(peerID, cs)
	}
}

func (f *EventFuncs) OnICEConnected(peerID *big.Int) {
	if f.ICEConnected != nil {
		f.ICEConnected(peerID)
	}
}

func (f *EventFuncs) OnICEDisconnected(peerID *big.Int) {
	if f.ICEDisconnected != nil {
		f.ICEDisconnected(peerID)
	}
}

func (f *EventFuncs) OnPeerConnectionClosed(peerID *big.Int) {
	if f.PeerConnectionClosed != nil {
		f.PeerConnectionClosed(peerID)
	}
}

func (f *EventFuncs) OnPeerConnectionError(peerID *big.Int, err error) {
	if f.PeerConnectionError != nil {
		f.PeerConnectionError(peerID, err)
	}
}

func (f *EventFuncs) OnLocalRender(peerID *big.Int) {
	if f.LocalRender != nil {
		f.LocalRender(peerID)
	}
}

func (f *EventFuncs) OnRemoteRender(peerID *big.Int) {
	if f.RemoteRender != nil {
		f.RemoteRender(peerID)
	}
}
