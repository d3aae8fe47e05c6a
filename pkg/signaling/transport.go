package signaling

import (
	"math/big"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
)

// Role is the side a peer connection plays in offer/answer.
type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "unknown"
	}
}

// Direction is which way local media flows.
type Direction int

const (
	DirectionRecvOnly Direction = iota
	DirectionSendOnly
	DirectionSendRecv
)

func (d Direction) String() string {
	switch d {
	case DirectionRecvOnly:
		return "recvonly"
	case DirectionSendOnly:
		return "sendonly"
	case DirectionSendRecv:
		return "sendrecv"
	default:
		return "unknown"
	}
}

// Sends reports whether the direction carries local media.
func (d Direction) Sends() bool { return d == DirectionSendOnly || d == DirectionSendRecv }

// Receives reports whether the direction carries remote media.
func (d Direction) Receives() bool { return d == DirectionRecvOnly || d == DirectionSendRecv }

// EventKind tags a TransportEvent.
type EventKind int

const (
	// EventCreateSuccess carries the offer or answer in Description.
	EventCreateSuccess EventKind = iota
	// EventCreateFailure carries the native error in Err.
	EventCreateFailure
	// EventSetSuccess carries the applied description; Remote tells which side.
	EventSetSuccess
	EventSetFailure
	EventICECandidate
	EventICECandidatesRemoved
	EventICEConnectionState
	// EventRemoteVideoTrack carries the single video track of a remote stream.
	EventRemoteVideoTrack
	// EventDataChannelMessage carries one message of a remote data channel.
	EventDataChannelMessage
)

func (k EventKind) String() string {
	switch k {
	case EventCreateSuccess:
		return "create-success"
	case EventCreateFailure:
		return "create-failure"
	case EventSetSuccess:
		return "set-success"
	case EventSetFailure:
		return "set-failure"
	case EventICECandidate:
		return "ice-candidate"
	case EventICECandidatesRemoved:
		return "ice-candidates-removed"
	case EventICEConnectionState:
		return "ice-connection-state"
	case EventRemoteVideoTrack:
		return "remote-video-track"
	case EventDataChannelMessage:
		return "data-channel-message"
	default:
		return "unknown"
	}
}

// TransportEvent is everything a transport reports back. Only the fields
// of the event's Kind are set.
type TransportEvent struct {
	Kind EventKind

	Description *pc.SessionDescription
	Remote      bool

	Candidate  *pc.ICECandidate
	Candidates []*pc.ICECandidate

	ICEState pc.ICEConnectionState

	Track RemoteVideoTrack

	Label  string
	Data   []byte
	Binary bool

	Err error
}

// TransportHandler receives transport events. Transports may call it from
// any goroutine.
type TransportHandler func(TransportEvent)

// RemoteVideoTrack is a received video track frames can be drawn from.
type RemoteVideoTrack interface {
	AddSink(sink frame.VideoSink)
	RemoveSink(sink frame.VideoSink)
	SetEnabled(enabled bool)
}

// Transport is one WebRTC peer connection as seen by the state machine.
//
// CreateOffer, CreateAnswer, SetLocalDescription and SetRemoteDescription
// complete asynchronously: each call produces exactly one success or failure
// event. The remaining methods act synchronously.
type Transport interface {
	CreateOffer()
	CreateAnswer()
	SetLocalDescription(desc *pc.SessionDescription)
	SetRemoteDescription(desc *pc.SessionDescription)

	AddICECandidate(c *pc.ICECandidate) error
	RemoveICECandidates(cs []*pc.ICECandidate) error

	// HasLocalVideo reports whether a local video track was attached.
	HasLocalVideo() bool
	// SetVideoMaxBitrate limits every encoding of the local video sender.
	// nil removes the limit. It returns ErrSenderNotReady when there is no
	// sender or no encodings yet.
	SetVideoMaxBitrate(maxBitrateBps *uint32) error
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)

	Close() error
}

// TransportConfig is what a factory needs to build a transport.
type TransportConfig struct {
	PeerID        *big.Int
	Role          Role
	Direction     Direction
	Params        Parameters
	LoggerFactory logging.LoggerFactory
}

// TransportFactory builds a transport that reports to h.
type TransportFactory func(cfg TransportConfig, h TransportHandler) (Transport, error)
