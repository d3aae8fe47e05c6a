package ffi

import (
	"unsafe"
)

// ByteSlicePtr returns a uintptr to the first element of a byte slice.
// Returns 0 if the slice is empty.
func ByteSlicePtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Int32Ptr returns a uintptr to an int32 variable.
func Int32Ptr(p *int32) uintptr {
	return uintptr(unsafe.Pointer(p))
}

// CString allocates a null-terminated C string from a Go string.
// The caller is responsible for keeping the returned byte slice alive
// for as long as the C code needs it.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return b
}

// GoString copies a null-terminated C string into Go memory.
func GoString(p uintptr) string {
	if p == 0 {
		return ""
	}
	return goString(unsafe.Pointer(p))
}

func goString(p unsafe.Pointer) string {
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// GoBytes copies size bytes of C memory into a Go slice.
func GoBytes(p uintptr, size int) []byte {
	if p == 0 || size <= 0 {
		return nil
	}
	return goBytes(unsafe.Pointer(p), size)
}

func goBytes(p unsafe.Pointer, size int) []byte {
	data := make([]byte, size)
	copy(data, unsafe.Slice((*byte)(p), size))
	return data
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
