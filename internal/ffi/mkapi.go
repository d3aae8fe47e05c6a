package ffi

import (
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

// libmk_api exports (see ZLMediaKit api/include).
var (
	mkEnvInit1        func(threads, logLevel, logMask int32, logPath uintptr, logDays, iniIsPath int32, ini uintptr, sslIsPath int32, ssl, sslPwd uintptr)
	mkSetOption       func(key, val uintptr)
	mkRTCServerStart  func(port uint16) uint16
	mkHTTPServerStart func(port uint16, ssl int32) uint16
	mkStopAllServer   func()

	mkPlayerCreate        func() uintptr
	mkPlayerRelease       func(ctx uintptr)
	mkPlayerSetOption     func(ctx, key, val uintptr)
	mkPlayerPlay          func(ctx, url uintptr)
	mkPlayerPause         func(ctx uintptr, pause int32)
	mkPlayerSetOnResult   func(ctx, cb, userData uintptr)
	mkPlayerSetOnShutdown func(ctx, cb, userData uintptr)
	mkPlayerSetOnData     func(ctx, cb, userData uintptr)
	mkPlayerVideoCodecID  func(ctx uintptr) int32
	mkPlayerVideoWidth    func(ctx uintptr) int32
	mkPlayerVideoHeight   func(ctx uintptr) int32
	mkPlayerVideoFPS      func(ctx uintptr) int32
	mkPlayerAudioCodecID  func(ctx uintptr) int32

	mkWebRTCGetAnswerSDP func(userData, cb, kind, offer, url uintptr)
)

func mkAPIBindings() []binding {
	return []binding{
		{&mkEnvInit1, "mk_env_init1"},
		{&mkSetOption, "mk_set_option"},
		{&mkRTCServerStart, "mk_rtc_server_start"},
		{&mkHTTPServerStart, "mk_http_server_start"},
		{&mkStopAllServer, "mk_stop_all_server"},
		{&mkPlayerCreate, "mk_player_create"},
		{&mkPlayerRelease, "mk_player_release"},
		{&mkPlayerSetOption, "mk_player_set_option"},
		{&mkPlayerPlay, "mk_player_play"},
		{&mkPlayerPause, "mk_player_pause"},
		{&mkPlayerSetOnResult, "mk_player_set_on_result"},
		{&mkPlayerSetOnShutdown, "mk_player_set_on_shutdown"},
		{&mkPlayerSetOnData, "mk_player_set_on_data"},
		{&mkPlayerVideoCodecID, "mk_player_video_codecId"},
		{&mkPlayerVideoWidth, "mk_player_video_width"},
		{&mkPlayerVideoHeight, "mk_player_video_height"},
		{&mkPlayerVideoFPS, "mk_player_video_fps"},
		{&mkPlayerAudioCodecID, "mk_player_audio_codecId"},
		{&mkWebRTCGetAnswerSDP, "mk_webrtc_get_answer_sdp"},
	}
}

func bindMKAPI(handle uintptr) error {
	return registerAll(handle, mkAPIBindings())
}

// MKEnvConfig mirrors the arguments of mk_env_init1.
type MKEnvConfig struct {
	Threads  int
	LogLevel int
	// LogMask selects console (1), file (2) and callback (4) output.
	LogMask int
	LogPath string
	LogDays int
	// INI is a config file path, or the config text when INIIsPath is false.
	INI       string
	INIIsPath bool
}

// MKEnvInit initializes the ZLMediaKit environment. Call it once per
// process before creating players or servers.
func MKEnvInit(cfg MKEnvConfig) error {
	if !IsMKAPILoaded() {
		return ErrLibraryNotLoaded
	}
	logPath := optCString(cfg.LogPath)
	ini := optCString(cfg.INI)
	mkEnvInit1(int32(cfg.Threads), int32(cfg.LogLevel), int32(cfg.LogMask), ByteSlicePtr(logPath),
		int32(cfg.LogDays), boolInt(cfg.INIIsPath), ByteSlicePtr(ini), 0, 0, 0)
	runtime.KeepAlive(logPath)
	runtime.KeepAlive(ini)
	return nil
}

// optCString returns nil for "", which the C API reads as NULL.
func optCString(s string) []byte {
	if s == "" {
		return nil
	}
	return CString(s)
}

// MKSetOption sets a global ZLMediaKit option such as "rtc.externIP".
func MKSetOption(key, val string) {
	if !IsMKAPILoaded() {
		return
	}
	k, v := CString(key), CString(val)
	mkSetOption(ByteSlicePtr(k), ByteSlicePtr(v))
	runtime.KeepAlive(k)
	runtime.KeepAlive(v)
}

// MKStartRTCServer starts the embedded WebRTC UDP/TCP server and returns the
// bound port (0 on failure).
func MKStartRTCServer(port uint16) uint16 {
	if !IsMKAPILoaded() {
		return 0
	}
	return mkRTCServerStart(port)
}

// MKStartHTTPServer starts the embedded HTTP API server.
func MKStartHTTPServer(port uint16, ssl bool) uint16 {
	if !IsMKAPILoaded() {
		return 0
	}
	return mkHTTPServerStart(port, boolInt(ssl))
}

// MKStopAllServers stops every embedded server.
func MKStopAllServers() {
	if IsMKAPILoaded() {
		mkStopAllServer()
	}
}

// PlayEventCallback receives the result and shutdown notifications.
type PlayEventCallback func(code int, msg string)

// PlayDataCallback receives one demuxed frame. Data is a Go copy.
type PlayDataCallback func(trackType, codecID int, data []byte, dts, pts uint32)

// PlayerCallbacks groups the callbacks of one native player.
type PlayerCallbacks struct {
	OnResult   PlayEventCallback
	OnShutdown PlayEventCallback
	OnData     PlayDataCallback
}

var (
	players callbackTable[*PlayerCallbacks]
	answers callbackTable[func(answer, errMsg string)]

	mkTrampolineOnce     sync.Once
	playResultTrampoline uintptr
	playCloseTrampoline  uintptr
	playDataTrampoline   uintptr
	answerTrampoline     uintptr
)

//go:nocheckptr
func initMKTrampolines() {
	mkTrampolineOnce.Do(func() {
		playResultTrampoline = purego.NewCallback(func(userData uintptr, code int32, msg uintptr) {
			if cbs, ok := players.get(userData); ok && cbs.OnResult != nil {
				m := GoString(msg)
				safeCallback(func() { cbs.OnResult(int(code), m) })
			}
		})
		playCloseTrampoline = purego.NewCallback(func(userData uintptr, code int32, msg uintptr) {
			if cbs, ok := players.get(userData); ok && cbs.OnShutdown != nil {
				m := GoString(msg)
				safeCallback(func() { cbs.OnShutdown(int(code), m) })
			}
		})
		playDataTrampoline = purego.NewCallback(func(userData uintptr, trackType, codecID int32, data uintptr, size int32, dts, pts uint32) {
			if cbs, ok := players.get(userData); ok && cbs.OnData != nil {
				b := GoBytes(data, int(size))
				safeCallback(func() { cbs.OnData(int(trackType), int(codecID), b, dts, pts) })
			}
		})
		answerTrampoline = purego.NewCallback(func(userData, answer, errMsg uintptr) {
			cb, ok := answers.get(userData)
			if !ok {
				return
			}
			answers.delete(userData)
			a, e := GoString(answer), GoString(errMsg)
			safeCallback(func() { cb(a, e) })
		})
	})
}

// PlayerCreate creates a native player and wires cbs to it. The returned
// user-data handle must be passed to PlayerRelease.
func PlayerCreate(cbs *PlayerCallbacks) (ctx, handle uintptr, err error) {
	if !IsMKAPILoaded() {
		return 0, 0, ErrLibraryNotLoaded
	}
	initMKTrampolines()
	ctx = mkPlayerCreate()
	if ctx == 0 {
		return 0, 0, ErrInitFailed
	}
	handle = newHandle()
	players.set(handle, cbs)
	mkPlayerSetOnResult(ctx, playResultTrampoline, handle)
	mkPlayerSetOnShutdown(ctx, playCloseTrampoline, handle)
	mkPlayerSetOnData(ctx, playDataTrampoline, handle)
	return ctx, handle, nil
}

// PlayerRelease releases the player and drops its callbacks.
func PlayerRelease(ctx, handle uintptr) {
	players.delete(handle)
	if !IsMKAPILoaded() || ctx == 0 {
		return
	}
	mkPlayerRelease(ctx)
}

// PlayerSetOption sets a per-player option, e.g. "rtp_type".
func PlayerSetOption(ctx uintptr, key, val string) {
	if !IsMKAPILoaded() {
		return
	}
	k, v := CString(key), CString(val)
	mkPlayerSetOption(ctx, ByteSlicePtr(k), ByteSlicePtr(v))
	runtime.KeepAlive(k)
	runtime.KeepAlive(v)
}

// PlayerPlay starts playing url.
func PlayerPlay(ctx uintptr, url string) {
	if !IsMKAPILoaded() {
		return
	}
	u := CString(url)
	mkPlayerPlay(ctx, ByteSlicePtr(u))
	runtime.KeepAlive(u)
}

// PlayerPause pauses or resumes playback.
func PlayerPause(ctx uintptr, pause bool) {
	if IsMKAPILoaded() {
		mkPlayerPause(ctx, boolInt(pause))
	}
}

// PlayerTrackInfo is valid after a successful play result.
type PlayerTrackInfo struct {
	VideoCodecID int
	Width        int
	Height       int
	FPS          int
	AudioCodecID int
}

// PlayerInfo reads the track information of a playing player.
func PlayerInfo(ctx uintptr) PlayerTrackInfo {
	if !IsMKAPILoaded() || ctx == 0 {
		return PlayerTrackInfo{}
	}
	return PlayerTrackInfo{
		VideoCodecID: int(mkPlayerVideoCodecID(ctx)),
		Width:        int(mkPlayerVideoWidth(ctx)),
		Height:       int(mkPlayerVideoHeight(ctx)),
		FPS:          int(mkPlayerVideoFPS(ctx)),
		AudioCodecID: int(mkPlayerAudioCodecID(ctx)),
	}
}

// WebRTCGetAnswerSDP asks the embedded server to answer offer. kind is
// "play", "push" or "echo"; url looks like rtc://__defaultVhost/app/stream.
// cb runs once, on a ZLMediaKit thread.
func WebRTCGetAnswerSDP(kind, offer, url string, cb func(answer, errMsg string)) error {
	if !IsMKAPILoaded() {
		return ErrLibraryNotLoaded
	}
	initMKTrampolines()
	handle := newHandle()
	answers.set(handle, cb)
	k, o, u := CString(kind), CString(offer), CString(url)
	mkWebRTCGetAnswerSDP(handle, answerTrampoline, ByteSlicePtr(k), ByteSlicePtr(o), ByteSlicePtr(u))
	runtime.KeepAlive(k)
	runtime.KeepAlive(o)
	runtime.KeepAlive(u)
	return nil
}
