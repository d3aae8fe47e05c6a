package testutil

import (
	"math/big"
	"sync"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

// Event is one recorded signaling event.
type Event struct {
	Name       string
	PeerID     string
	Desc       *pc.SessionDescription
	Candidate  *pc.ICECandidate
	Candidates []*pc.ICECandidate
	Err        error
}

// RecordingEvents implements signaling.Events by appending to a list.
type RecordingEvents struct {
	mu     sync.Mutex
	events []Event
}

var _ signaling.Events = (*RecordingEvents)(nil)

func (r *RecordingEvents) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *RecordingEvents) OnLocalDescription(id *big.Int, desc *pc.SessionDescription) {
	r.add(Event{Name: "LocalDescription", PeerID: id.String(), Desc: desc})
}

func (r *RecordingEvents) OnICECandidate(id *big.Int, c *pc.ICECandidate) {
	r.add(Event{Name: "ICECandidate", PeerID: id.String(), Candidate: c})
}

func (r *RecordingEvents) OnICECandidatesRemoved(id *big.Int, cs []*pc.ICECandidate) {
	r.add(Event{Name: "ICECandidatesRemoved", PeerID: id.String(), Candidates: cs})
}

func (r *RecordingEvents) OnICEConnected(id *big.Int) {
	r.add(Event{Name: "ICEConnected", PeerID: id.String()})
}

func (r *RecordingEvents) OnICEDisconnected(id *big.Int) {
	r.add(Event{Name: "ICEDisconnected", PeerID: id.String()})
}

func (r *RecordingEvents) OnPeerConnectionClosed(id *big.Int) {
	r.add(Event{Name: "PeerConnectionClosed", PeerID: id.String()})
}

func (r *RecordingEvents) OnPeerConnectionError(id *big.Int, err error) {
	r.add(Event{Name: "PeerConnectionError", PeerID: id.String(), Err: err})
}

func (r *RecordingEvents) OnLocalRender(id *big.Int) {
	r.add(Event{Name: "LocalRender", PeerID: id.String()})
}

func (r *RecordingEvents) OnRemoteRender(id *big.Int) {
	r.add(Event{Name: "RemoteRender", PeerID: id.String()})
}

// All returns a copy of the recorded events.
func (r *RecordingEvents) All() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name.
func (r *RecordingEvents) Named(name string) []Event {
	var out []Event
	for _, e := range r.All() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Names returns the names of all recorded events in order.
func (r *RecordingEvents) Names() []string {
	var out []string
	for _, e := range r.All() {
		out = append(out, e.Name)
	}
	return out
}
