package testutil

import (
	"errors"
	"sync"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

// Minimal descriptions for fakes. They parse with pion/sdp.
const (
	OfferSDP = "v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111 103\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"a=rtpmap:103 ISAC/16000\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96 102\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:1\r\n" +
		"a=rtpmap:96 VP8/90000\r\n" +
		"a=rtpmap:102 H264/90000\r\n"

	AnswerSDP = "v=0\r\n" +
		"o=- 2 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 102\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:1\r\n" +
		"a=rtpmap:102 H264/90000\r\n"
)

// ErrFake is the error fakes report for scripted failures.
var ErrFake = errors.New("fake transport failure")

// Call is one recorded transport call.
type Call struct {
	Method     string
	Desc       *pc.SessionDescription
	Candidate  *pc.ICECandidate
	Candidates []*pc.ICECandidate
	Bitrate    *uint32
	Enabled    bool
}

// FakeTransport records every call and lets a test decide when the
// asynchronous operations complete. With Auto set, creates and sets complete
// as soon as they are called.
type FakeTransport struct {
	Config signaling.TransportConfig

	Auto        bool
	LocalVideo  bool
	SenderReady bool

	mu       sync.Mutex
	handler  signaling.TransportHandler
	calls    []Call
	closes   int
	pending  []Call
	bitrate  *uint32
	audioOn  bool
	videoOn  bool
	closeErr error
}

var _ signaling.Transport = (*FakeTransport)(nil)

func (f *FakeTransport) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	if c.Method == "CreateOffer" || c.Method == "CreateAnswer" ||
		c.Method == "SetLocalDescription" || c.Method == "SetRemoteDescription" {
		f.pending = append(f.pending, c)
	}
	auto := f.Auto
	f.mu.Unlock()

	if auto {
		f.CompleteNext()
	}
}

func (f *FakeTransport) CreateOffer()  { f.record(Call{Method: "CreateOffer"}) }
func (f *FakeTransport) CreateAnswer() { f.record(Call{Method: "CreateAnswer"}) }

func (f *FakeTransport) SetLocalDescription(desc *pc.SessionDescription) {
	f.record(Call{Method: "SetLocalDescription", Desc: desc})
}

func (f *FakeTransport) SetRemoteDescription(desc *pc.SessionDescription) {
	f.record(Call{Method: "SetRemoteDescription", Desc: desc})
}

func (f *FakeTransport) AddICECandidate(c *pc.ICECandidate) error {
	f.record(Call{Method: "AddICECandidate", Candidate: c})
	return nil
}

func (f *FakeTransport) RemoveICECandidates(cs []*pc.ICECandidate) error {
	f.record(Call{Method: "RemoveICECandidates", Candidates: cs})
	return nil
}

func (f *FakeTransport) HasLocalVideo() bool { return f.LocalVideo }

func (f *FakeTransport) SetVideoMaxBitrate(bps *uint32) error {
	f.record(Call{Method: "SetVideoMaxBitrate", Bitrate: bps})
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.SenderReady {
		return signaling.ErrSenderNotReady
	}
	f.bitrate = bps
	return nil
}

func (f *FakeTransport) SetAudioEnabled(enabled bool) {
	f.record(Call{Method: "SetAudioEnabled", Enabled: enabled})
	f.mu.Lock()
	f.audioOn = enabled
	f.mu.Unlock()
}

func (f *FakeTransport) SetVideoEnabled(enabled bool) {
	f.record(Call{Method: "SetVideoEnabled", Enabled: enabled})
	f.mu.Lock()
	f.videoOn = enabled
	f.mu.Unlock()
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "Close"})
	f.closes++
	return f.closeErr
}

// Emit delivers ev as if the native engine raised it.
func (f *FakeTransport) Emit(ev signaling.TransportEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// CompleteNext succeeds the oldest pending create or set. Offers and
// answers carry OfferSDP and AnswerSDP. It reports false when nothing is
// pending.
func (f *FakeTransport) CompleteNext() bool {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false
	}
	c := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()

	switch c.Method {
	case "CreateOffer":
		f.Emit(signaling.TransportEvent{
			Kind:        signaling.EventCreateSuccess,
			Description: &pc.SessionDescription{Type: pc.SDPTypeOffer, SDP: OfferSDP},
		})
	case "CreateAnswer":
		f.Emit(signaling.TransportEvent{
			Kind:        signaling.EventCreateSuccess,
			Description: &pc.SessionDescription{Type: pc.SDPTypeAnswer, SDP: AnswerSDP},
		})
	case "SetLocalDescription":
		f.Emit(signaling.TransportEvent{Kind: signaling.EventSetSuccess, Description: c.Desc})
	case "SetRemoteDescription":
		f.Emit(signaling.TransportEvent{Kind: signaling.EventSetSuccess, Description: c.Desc, Remote: true})
	}
	return true
}

// FailNext fails the oldest pending create or set with ErrFake.
func (f *FakeTransport) FailNext() bool {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false
	}
	c := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()

	kind := signaling.EventSetFailure
	if c.Method == "CreateOffer" || c.Method == "CreateAnswer" {
		kind = signaling.EventCreateFailure
	}
	f.Emit(signaling.TransportEvent{Kind: kind, Err: ErrFake})
	return true
}

// Pending returns how many creates and sets await completion.
func (f *FakeTransport) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Calls returns a copy of the recorded calls.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Methods returns the names of the recorded calls, optionally filtered.
func (f *FakeTransport) Methods(only ...string) []string {
	var out []string
	for _, c := range f.Calls() {
		if len(only) == 0 || contains(only, c.Method) {
			out = append(out, c.Method)
		}
	}
	return out
}

// Last returns the most recent call with the given method.
func (f *FakeTransport) Last(method string) (Call, bool) {
	calls := f.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Method == method {
			return calls[i], true
		}
	}
	return Call{}, false
}

// AddedCandidates returns the candidates passed to AddICECandidate in order.
func (f *FakeTransport) AddedCandidates() []*pc.ICECandidate {
	var out []*pc.ICECandidate
	for _, c := range f.Calls() {
		if c.Method == "AddICECandidate" {
			out = append(out, c.Candidate)
		}
	}
	return out
}

// Closes returns how many times Close ran.
func (f *FakeTransport) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// MaxBitrate returns the last accepted sender limit.
func (f *FakeTransport) MaxBitrate() *uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bitrate
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FakeFactory builds FakeTransports and remembers them.
type FakeFactory struct {
	Auto        bool
	LocalVideo  bool
	SenderReady bool
	Err         error

	mu         sync.Mutex
	transports []*FakeTransport
}

// New is a signaling.TransportFactory.
func (ff *FakeFactory) New(cfg signaling.TransportConfig, h signaling.TransportHandler) (signaling.Transport, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.Err != nil {
		return nil, ff.Err
	}
	t := &FakeTransport{
		Config:      cfg,
		Auto:        ff.Auto,
		LocalVideo:  ff.LocalVideo,
		SenderReady: ff.SenderReady,
		handler:     h,
	}
	ff.transports = append(ff.transports, t)
	return t, nil
}

// Count returns how many transports were built.
func (ff *FakeFactory) Count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.transports)
}

// Last returns the newest transport, or nil.
func (ff *FakeFactory) Last() *FakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.transports) == 0 {
		return nil
	}
	return ff.transports[len(ff.transports)-1]
}

// At returns the i-th transport built.
func (ff *FakeFactory) At(i int) *FakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.transports[i]
}

// FakeVideoTrack is a remote video track driven by the test.
type FakeVideoTrack struct {
	mu      sync.Mutex
	sinks   []frame.VideoSink
	enabled bool
}

var _ signaling.RemoteVideoTrack = (*FakeVideoTrack)(nil)

func (t *FakeVideoTrack) AddSink(sink frame.VideoSink) {
	t.mu.Lock()
	t.sinks = append(t.sinks, sink)
	t.mu.Unlock()
}

func (t *FakeVideoTrack) RemoveSink(sink frame.VideoSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.sinks {
		if s == sink {
			t.sinks = append(t.sinks[:i], t.sinks[i+1:]...)
			return
		}
	}
}

func (t *FakeVideoTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Enabled reports the last SetEnabled value.
func (t *FakeVideoTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Sinks returns how many sinks are attached.
func (t *FakeVideoTrack) Sinks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sinks)
}

// Push delivers f to every attached sink.
func (t *FakeVideoTrack) Push(f *frame.VideoFrame) {
	t.mu.Lock()
	sinks := append([]frame.VideoSink(nil), t.sinks...)
	t.mu.Unlock()
	for _, s := range sinks {
		s.OnFrame(f)
	}
}
