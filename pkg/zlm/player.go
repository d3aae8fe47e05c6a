package zlm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/internal/ffi"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
)

// ErrPlayerReleased is returned by operations on a released player.
var ErrPlayerReleased = errors.New("player released")

// PlayError is a non-zero play result or shutdown code.
type PlayError struct {
	Code int
	Msg  string
}

func (e *PlayError) Error() string {
	return fmt.Sprintf("play error %d: %s", e.Code, e.Msg)
}

// RTP transport of RTSP players, passed as the "rtp_type" option.
const (
	RTPOverTCP       = "0"
	RTPOverUDP       = "1"
	RTPOverMulticast = "2"
)

// PlayerOptions configures a Player. Callbacks run on ZLMediaKit threads
// and must not block.
type PlayerOptions struct {
	// OnResult reports the outcome of Play; err is nil on success.
	OnResult func(err error)
	// OnShutdown reports the end of playback.
	OnShutdown func(err error)
	// OnFrame receives every demuxed frame.
	OnFrame func(f *frame.PlayerFrame)

	// RTPType selects the RTSP transport; empty keeps the default.
	RTPType       string
	LoggerFactory logging.LoggerFactory
}

// TrackInfo describes the tracks of a playing stream.
type TrackInfo struct {
	VideoCodec codec.Type
	Width      int
	Height     int
	FPS        int
	AudioCodec codec.Type
}

// Player is a native ZLMediaKit player for rtsp, rtmp, hls and http-flv URLs.
type Player struct {
	ctx    uintptr
	handle uintptr
	log    logging.LeveledLogger

	// mu is held for reading across every native call and for writing by
	// Release, so the native player is never freed under a caller.
	mu       sync.RWMutex
	released bool
}

// NewPlayer creates a player. Init must have succeeded first.
func NewPlayer(opts PlayerOptions) (*Player, error) {
	lf := opts.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	p := &Player{log: lf.NewLogger("zlm")}

	cbs := &ffi.PlayerCallbacks{
		OnResult: func(code int, msg string) {
			err := playError(code, msg)
			if err != nil {
				p.log.Warnf("play failed: %v", err)
			} else {
				p.log.Info("play succeeded")
			}
			if opts.OnResult != nil {
				opts.OnResult(err)
			}
		},
		OnShutdown: func(code int, msg string) {
			err := playError(code, msg)
			p.log.Infof("play shutdown: %v", err)
			if opts.OnShutdown != nil {
				opts.OnShutdown(err)
			}
		},
	}
	if opts.OnFrame != nil {
		cbs.OnData = func(trackType, codecID int, data []byte, dts, pts uint32) {
			opts.OnFrame(frame.NewPlayerFrame(frame.TrackType(trackType), codec.FromZLMCodecID(codecID), data, dts, pts))
		}
	}

	ctx, handle, err := ffi.PlayerCreate(cbs)
	if err != nil {
		return nil, err
	}
	p.ctx, p.handle = ctx, handle
	if opts.RTPType != "" {
		ffi.PlayerSetOption(ctx, "rtp_type", opts.RTPType)
	}
	return p, nil
}

func playError(code int, msg string) error {
	if code == 0 {
		return nil
	}
	return &PlayError{Code: code, Msg: msg}
}

func (p *Player) withLive(fn func(ctx uintptr)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.released {
		return ErrPlayerReleased
	}
	fn(p.ctx)
	return nil
}

// Play starts playing url. The outcome arrives through OnResult.
func (p *Player) Play(url string) error {
	return p.withLive(func(ctx uintptr) {
		p.log.Debugf("play %s", url)
		ffi.PlayerPlay(ctx, url)
	})
}

// Pause pauses or resumes playback.
func (p *Player) Pause(pause bool) error {
	return p.withLive(func(ctx uintptr) { ffi.PlayerPause(ctx, pause) })
}

// Info returns the track information; it is valid after a successful result.
func (p *Player) Info() (TrackInfo, error) {
	var info TrackInfo
	err := p.withLive(func(ctx uintptr) {
		i := ffi.PlayerInfo(ctx)
		info = TrackInfo{
			VideoCodec: codec.FromZLMCodecID(i.VideoCodecID),
			Width:      i.Width,
			Height:     i.Height,
			FPS:        i.FPS,
			AudioCodec: codec.FromZLMCodecID(i.AudioCodecID),
		}
	})
	return info, err
}

// Release stops the player and frees it. Only the first call has an effect.
// It waits for in-flight Play, Pause and Info calls, so it must not be
// called from inside one of them.
func (p *Player) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	ffi.PlayerRelease(p.ctx, p.handle)
	p.ctx, p.handle = 0, 0
	p.log.Debug("player released")
}
