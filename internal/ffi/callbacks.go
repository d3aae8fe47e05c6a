package ffi

import (
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
)

var (
	logMu  sync.RWMutex
	ffiLog logging.LeveledLogger = logging.NewDefaultLoggerFactory().NewLogger("ffi")
)

// SetLoggerFactory replaces the logger used for load messages and for
// panics recovered in native callbacks.
func SetLoggerFactory(f logging.LoggerFactory) {
	if f == nil {
		return
	}
	logMu.Lock()
	ffiLog = f.NewLogger("ffi")
	logMu.Unlock()
}

func logger() logging.LeveledLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	return ffiLog
}

// safeCallback wraps a callback invocation with panic recovery.
// A panic must never unwind through C stack frames.
func safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger().Errorf("panic recovered in native callback: %v", r)
		}
	}()
	fn()
}

// callbackTable maps the user-data pointer handed to C back to a Go
// callback. Native trampolines are created once per signature; the table
// routes each call to the right object.
type callbackTable[T any] struct {
	mu sync.RWMutex
	m  map[uintptr]T
}

func (t *callbackTable[T]) set(key uintptr, cb T) {
	t.mu.Lock()
	if t.m == nil {
		t.m = make(map[uintptr]T)
	}
	t.m[key] = cb
	t.mu.Unlock()
}

func (t *callbackTable[T]) get(key uintptr) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cb, ok := t.m[key]
	return cb, ok
}

func (t *callbackTable[T]) delete(key uintptr) {
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
}

func (t *callbackTable[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

var handleSeq atomic.Uintptr

// newHandle returns a process-unique, non-zero user-data value for
// callbacks that are not keyed by a native object pointer.
func newHandle() uintptr {
	return handleSeq.Add(1)
}
