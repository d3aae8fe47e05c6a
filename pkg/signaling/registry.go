package signaling

import (
	"math/big"
	"sort"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
)

// State is the negotiation progress of one peer connection.
type State int

const (
	StateCreated State = iota
	StateLocalSDPPending
	StateLocalSDPSet
	StateRemoteSDPPending
	StateRemoteSDPSet
	StateNegotiated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLocalSDPPending:
		return "local-sdp-pending"
	case StateLocalSDPSet:
		return "local-sdp-set"
	case StateRemoteSDPPending:
		return "remote-sdp-pending"
	case StateRemoteSDPSet:
		return "remote-sdp-set"
	case StateNegotiated:
		return "negotiated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// record is the per-peer state. It is only touched on the executor.
type record struct {
	peerID    *big.Int
	transport Transport
	role      Role
	state     State
	videoCall bool

	// creating is set between a create request and its completion.
	creating bool

	localDescription  *pc.SessionDescription
	localApplied      bool
	remoteDescription *pc.SessionDescription

	// queuedRemoteCandidates is nil once drained.
	queuedRemoteCandidates []*pc.ICECandidate

	videoSink   *ProxySink
	remoteVideo RemoteVideoTrack

	closed bool
}

func newRecord(peerID *big.Int, role Role) *record {
	return &record{
		peerID:                 new(big.Int).Set(peerID),
		role:                   role,
		state:                  StateCreated,
		queuedRemoteCandidates: make([]*pc.ICECandidate, 0),
		videoSink:              &ProxySink{},
	}
}

// release unbinds rendering and closes the transport. It runs at most once.
func (r *record) release() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.state = StateClosed
	r.videoSink.SetTarget(nil)
	if r.remoteVideo != nil {
		r.remoteVideo.RemoveSink(r.videoSink)
		r.remoteVideo = nil
	}
	if r.transport == nil {
		return nil
	}
	t := r.transport
	r.transport = nil
	return t.Close()
}

type registry struct {
	records map[string]*record
}

func newRegistry() *registry {
	return &registry{records: make(map[string]*record)}
}

func peerKey(peerID *big.Int) string {
	return peerID.Text(10)
}

func (r *registry) get(peerID *big.Int) *record {
	return r.records[peerKey(peerID)]
}

func (r *registry) put(rec *record) {
	r.records[peerKey(rec.peerID)] = rec
}

// remove deletes rec only if it is still the registered record for its peer.
func (r *registry) remove(rec *record) {
	key := peerKey(rec.peerID)
	if r.records[key] == rec {
		delete(r.records, key)
	}
}

func (r *registry) len() int { return len(r.records) }

// all returns the records ordered by peer id.
func (r *registry) all() []*record {
	out := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].peerID.Cmp(out[j].peerID) < 0 })
	return out
}
