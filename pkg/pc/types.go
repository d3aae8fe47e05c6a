package pc

import (
	"errors"
	"strings"
)

// SignalingState represents the signaling state.
type SignalingState int

const (
	SignalingStateStable SignalingState = iota
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEConnectionState represents the ICE connection state.
type ICEConnectionState int

const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateDisconnected
	ICEConnectionStateFailed
	ICEConnectionStateClosed
)

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SDPType represents the type of session description.
type SDPType int

const (
	SDPTypeOffer SDPType = iota
	SDPTypePranswer
	SDPTypeAnswer
	SDPTypeRollback
)

func (t SDPType) String() string {
	switch t {
	case SDPTypeOffer:
		return "offer"
	case SDPTypePranswer:
		return "pranswer"
	case SDPTypeAnswer:
		return "answer"
	case SDPTypeRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// ParseSDPType maps the JSON/wire name of a description type.
func ParseSDPType(s string) (SDPType, error) {
	switch strings.ToLower(s) {
	case "offer":
		return SDPTypeOffer, nil
	case "pranswer":
		return SDPTypePranswer, nil
	case "answer":
		return SDPTypeAnswer, nil
	case "rollback":
		return SDPTypeRollback, nil
	}
	return 0, errors.New("unknown sdp type: " + s)
}

// SessionDescription represents an SDP session description.
type SessionDescription struct {
	Type SDPType
	SDP  string
}

// ICECandidate represents an ICE candidate.
type ICECandidate struct {
	Candidate        string `json:"candidate"`
	SDPMid           string `json:"sdpMid"`
	SDPMLineIndex    uint16 `json:"sdpMLineIndex"`
	UsernameFragment string `json:"usernameFragment,omitempty"`
}

// ICEServer represents an ICE server configuration.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// DefaultICEServer is the STUN server used when none is configured.
const DefaultICEServer = "stun:stun.freeswitch.org"

// Configuration for PeerConnection.
type Configuration struct {
	ICEServers           []ICEServer
	ICETransportPolicy   string // "all" or "relay"
	BundlePolicy         string // "balanced", "max-compat", "max-bundle"
	RTCPMuxPolicy        string // "require" or "negotiate"
	SDPSemantics         string // "unified-plan" or "plan-b"
	ICECandidatePoolSize int
}

// DefaultConfiguration returns a default configuration.
func DefaultConfiguration() Configuration {
	return Configuration{
		ICEServers: []ICEServer{
			{URLs: []string{DefaultICEServer}},
		},
		BundlePolicy:  "max-bundle",
		RTCPMuxPolicy: "require",
		SDPSemantics:  "unified-plan",
	}
}

// RTPSendParameters for sender configuration.
type RTPSendParameters struct {
	Encodings []RTPEncodingParameters
}

// RTPEncodingParameters for per-encoding configuration.
type RTPEncodingParameters struct {
	RID                   string  // RTP stream ID (for simulcast)
	Active                bool    // Whether this encoding is active
	MaxBitrate            uint32  // Max bitrate in bps, 0 for no limit
	MaxFramerate          float64 // Max framerate
	ScaleResolutionDownBy float64 // Scale factor for resolution
}

// DataChannelInit for CreateDataChannel.
type DataChannelInit struct {
	Ordered           *bool
	MaxPacketLifeTime *uint16
	MaxRetransmits    *uint16
	Protocol          string
	Negotiated        bool
	ID                *uint16
}
