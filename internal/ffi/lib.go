// Package ffi binds the two native libraries the SDK can drive at runtime:
// libwebrtc_shim (a flat C ABI over libwebrtc) and libmk_api (the
// ZLMediaKit C API). Both are loaded with purego, so no cgo toolchain is
// needed to build the module.
package ffi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrLibraryNotLoaded is returned when a binding is used before its
	// library was loaded.
	ErrLibraryNotLoaded = errors.New("native library not loaded")

	// ErrLibraryNotFound is returned when no candidate path exists.
	ErrLibraryNotFound = errors.New("native library not found")

	// ErrSymbolNotFound is returned when a library lacks an expected export.
	ErrSymbolNotFound = errors.New("symbol not found")

	// FFI error sentinels. These match shim error codes and support errors.Is().
	ErrInvalidParam        = errors.New("invalid parameter")
	ErrInitFailed          = errors.New("initialization failed")
	ErrOutOfMemory         = errors.New("out of memory")
	ErrNotSupported        = errors.New("not supported")
	ErrBufferTooSmall      = errors.New("buffer too small")
	ErrNotFound            = errors.New("not found")
	ErrRenegotiationNeeded = errors.New("renegotiation needed")
)

// Error codes from shim (int32 to match C int)
const (
	ShimOK                     int32 = 0
	ShimErrInvalidParam        int32 = -1
	ShimErrInitFailed          int32 = -2
	ShimErrOutOfMemory         int32 = -5
	ShimErrNotSupported        int32 = -6
	ShimErrBufferTooSmall      int32 = -8
	ShimErrNotFound            int32 = -9
	ShimErrRenegotiationNeeded int32 = -10
)

// Environment variables that override the library search.
const (
	ShimPathEnv  = "LIBWEBRTC_SHIM_PATH"
	MKAPIPathEnv = "ZLM_API_PATH"
)

// library is one dlopen'ed shared object and the bindings registered on it.
type library struct {
	baseName string
	env      string
	bind     func(handle uintptr) error

	mu     sync.Mutex
	handle uintptr
	loaded atomic.Bool
}

func (l *library) load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded.Load() {
		return nil
	}

	path, ok := findLibrary(l.env, libraryFileName(l.baseName, runtime.GOOS))
	if !ok {
		return fmt.Errorf("%w: %s (set %s)", ErrLibraryNotFound, l.baseName, l.env)
	}

	handle, err := dlopenLibrary(path, RTLD_NOW|RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	if err := l.bind(handle); err != nil {
		_ = dlcloseLibrary(handle)
		return err
	}

	l.handle = handle
	l.loaded.Store(true)
	logger().Infof("loaded %s", path)
	return nil
}

func (l *library) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded.Load() {
		return nil
	}
	if err := dlcloseLibrary(l.handle); err != nil {
		return err
	}
	l.loaded.Store(false)
	l.handle = 0
	return nil
}

var (
	shimLib  = &library{baseName: "libwebrtc_shim", env: ShimPathEnv, bind: bindShim}
	mkAPILib = &library{baseName: "libmk_api", env: MKAPIPathEnv, bind: bindMKAPI}
)

// LoadLibrary loads libwebrtc_shim.
// It searches in the following locations:
// 1. Path specified by LIBWEBRTC_SHIM_PATH environment variable
// 2. ./lib/{os}_{arch}/ relative to the executable and working directory
// 3. ./lib/{os}_{arch}/ relative to the module root
func LoadLibrary() error { return shimLib.load() }

// IsLoaded reports whether libwebrtc_shim is loaded.
func IsLoaded() bool { return shimLib.loaded.Load() }

// Close unloads libwebrtc_shim.
func Close() error { return shimLib.close() }

// LoadMKAPI loads libmk_api using the same search as LoadLibrary, with
// ZLM_API_PATH as the override.
func LoadMKAPI() error { return mkAPILib.load() }

// IsMKAPILoaded reports whether libmk_api is loaded.
func IsMKAPILoaded() bool { return mkAPILib.loaded.Load() }

// CloseMKAPI unloads libmk_api.
func CloseMKAPI() error { return mkAPILib.close() }

func findLibrary(env, libName string) (string, bool) {
	if path := os.Getenv(env); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	platformDir := fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)

	var searchPaths []string

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		searchPaths = append(searchPaths, filepath.Join(execDir, "lib", platformDir, libName))
	}

	if wd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(wd, "lib", platformDir, libName),
			filepath.Join(wd, "..", "lib", platformDir, libName),
			filepath.Join(wd, "..", "..", "lib", platformDir, libName),
		)
	}

	// thisFile is .../internal/ffi/lib.go; lib/ sits at the module root.
	if _, thisFile, _, ok := runtime.Caller(0); ok {
		moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
		searchPaths = append(searchPaths, filepath.Join(moduleRoot, "lib", platformDir, libName))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			return absPath, true
		}
	}

	return "", false
}

func libraryFileName(base, goos string) string {
	switch goos {
	case "darwin":
		return base + ".dylib"
	case "windows":
		return base + ".dll"
	default:
		return base + ".so"
	}
}

// ShimError converts a shim error code to a Go error.
// Returns sentinel errors that support errors.Is() comparisons.
func ShimError(code int32) error {
	switch code {
	case ShimOK:
		return nil
	case ShimErrInvalidParam:
		return ErrInvalidParam
	case ShimErrInitFailed:
		return ErrInitFailed
	case ShimErrOutOfMemory:
		return ErrOutOfMemory
	case ShimErrNotSupported:
		return ErrNotSupported
	case ShimErrBufferTooSmall:
		return ErrBufferTooSmall
	case ShimErrNotFound:
		return ErrNotFound
	case ShimErrRenegotiationNeeded:
		return ErrRenegotiationNeeded
	default:
		return fmt.Errorf("unknown shim error: %d", code)
	}
}
