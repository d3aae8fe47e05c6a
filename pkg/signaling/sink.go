package signaling

import (
	"sync"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
)

// ProxySink forwards frames to a target that can be swapped at any time.
// Frames are dropped while no target is bound.
type ProxySink struct {
	mu     sync.RWMutex
	target frame.VideoSink
}

var _ frame.VideoSink = (*ProxySink)(nil)

// SetTarget binds the sink to target; nil unbinds it.
func (p *ProxySink) SetTarget(target frame.VideoSink) {
	p.mu.Lock()
	p.target = target
	p.mu.Unlock()
}

// Target returns the current target.
func (p *ProxySink) Target() frame.VideoSink {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

// OnFrame implements frame.VideoSink.
func (p *ProxySink) OnFrame(f *frame.VideoFrame) {
	p.mu.RLock()
	target := p.target
	p.mu.RUnlock()
	if target == nil {
		return
	}
	target.OnFrame(f)
}
