// Package zlm binds the ZLMediaKit C API (libmk_api): the embedded media
// server environment, native players and in-process WebRTC answers.
package zlm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ZLMediaKit/ZLMediaKit/internal/ffi"
)

// Errors
var (
	ErrServerStart = errors.New("media server failed to start")
	ErrAnswer      = errors.New("webrtc answer failed")
)

// EnvConfig configures the ZLMediaKit environment.
type EnvConfig struct {
	// Threads is the event poller count; 0 uses the CPU count.
	Threads int
	// LogLevel ranges from 0 (trace) to 4 (error).
	LogLevel int
	LogPath  string
	LogDays  int
	// INI is a config file path, or config text when INIIsPath is false.
	INI       string
	INIIsPath bool
}

var (
	initOnce sync.Once
	initErr  error
)

// Init loads libmk_api and initializes the environment. Only the first call
// has an effect; later calls return its result.
func Init(cfg EnvConfig) error {
	initOnce.Do(func() {
		if initErr = ffi.LoadMKAPI(); initErr != nil {
			return
		}
		initErr = ffi.MKEnvInit(ffi.MKEnvConfig{
			Threads:   cfg.Threads,
			LogLevel:  cfg.LogLevel,
			LogMask:   1,
			LogPath:   cfg.LogPath,
			LogDays:   cfg.LogDays,
			INI:       cfg.INI,
			INIIsPath: cfg.INIIsPath,
		})
	})
	return initErr
}

// SetOption sets a global option such as "rtc.externIP".
func SetOption(key, val string) {
	ffi.MKSetOption(key, val)
}

// StartRTCServer starts the WebRTC server on port and returns the bound port.
func StartRTCServer(port uint16) (uint16, error) {
	got := ffi.MKStartRTCServer(port)
	if got == 0 {
		return 0, fmt.Errorf("%w: rtc port %d", ErrServerStart, port)
	}
	return got, nil
}

// StartHTTPServer starts the HTTP API server, which also serves the WHEP
// and WHIP endpoints.
func StartHTTPServer(port uint16, ssl bool) (uint16, error) {
	got := ffi.MKStartHTTPServer(port, ssl)
	if got == 0 {
		return 0, fmt.Errorf("%w: http port %d", ErrServerStart, port)
	}
	return got, nil
}

// StopAll stops every server started through this package.
func StopAll() {
	ffi.MKStopAllServers()
}

// AnswerSDP asks the embedded server to answer offer. kind is "play",
// "push" or "echo"; url looks like rtc://__defaultVhost/app/stream.
func AnswerSDP(ctx context.Context, kind, offer, url string) (string, error) {
	type result struct {
		answer string
		err    string
	}
	done := make(chan result, 1)
	err := ffi.WebRTCGetAnswerSDP(kind, offer, url, func(answer, errMsg string) {
		done <- result{answer, errMsg}
	})
	if err != nil {
		return "", err
	}

	select {
	case r := <-done:
		if r.err != "" {
			return "", fmt.Errorf("%w: %s", ErrAnswer, r.err)
		}
		if r.answer == "" {
			return "", fmt.Errorf("%w: empty answer", ErrAnswer)
		}
		return r.answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
