// Package testutil provides shared helpers for the module's tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/internal/ffi"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
)

// SkipIfNoShim skips the test when libwebrtc_shim cannot be loaded.
func SkipIfNoShim(tb testing.TB) {
	tb.Helper()
	if err := ffi.LoadLibrary(); err != nil {
		tb.Skipf("shim library not available: %v", err)
	}
}

// SkipIfNoZLM skips the test when libmk_api cannot be loaded.
func SkipIfNoZLM(tb testing.TB) {
	tb.Helper()
	if err := ffi.LoadMKAPI(); err != nil {
		tb.Skipf("mk_api library not available: %v", err)
	}
}

// Context returns a context that is cancelled when the test ends or after
// five seconds.
func Context(tb testing.TB) context.Context {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	tb.Cleanup(cancel)
	return ctx
}

// LoggerFactory returns a factory that only prints errors, keeping test
// output readable.
func LoggerFactory() logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = logging.LogLevelError
	return f
}

// CreateTestVideoFrame creates an I420 video frame with a diagonal gradient.
func CreateTestVideoFrame(width, height int) *frame.VideoFrame {
	f := frame.NewI420Frame(width, height)
	for i := range f.Data[0] {
		y := i / width
		x := i % width
		f.Data[0][i] = byte((x + y) % 256)
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 128
		f.Data[2][i] = 128
	}
	return f
}
