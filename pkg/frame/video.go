// Package frame provides the media frame types that flow from remote tracks
// and native players to rendering sinks.
package frame

import (
	"time"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
)

// PixelFormat represents the layout of a video frame's data.
type PixelFormat int

const (
	// PixelFormatI420 is the standard YUV 4:2:0 planar format.
	// Y plane followed by U plane followed by V plane.
	PixelFormatI420 PixelFormat = iota

	// PixelFormatEncoded means Data holds a single compressed access unit
	// of the frame's Codec.
	PixelFormatEncoded
)

// String returns the string representation of the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatI420:
		return "I420"
	case PixelFormatEncoded:
		return "Encoded"
	default:
		return "Unknown"
	}
}

// VideoFrame is a video frame delivered to a sink.
// libwebrtc tracks deliver decoded I420 frames; pion tracks and ZLMediaKit
// players deliver encoded access units.
type VideoFrame struct {
	// Width and Height are zero for encoded frames whose size is unknown.
	Width  int
	Height int

	Format PixelFormat

	// Codec is set for encoded frames.
	Codec codec.Type

	// Data contains the pixel data.
	// For I420: [Y, U, V] planes
	// For Encoded: [access unit]
	Data [][]byte

	// Stride is the number of bytes per row for each I420 plane.
	Stride []int

	// Timestamp is the presentation timestamp.
	Timestamp time.Duration

	IsKeyframe bool
}

// Clone creates a deep copy of the frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Width:      f.Width,
		Height:     f.Height,
		Format:     f.Format,
		Codec:      f.Codec,
		Timestamp:  f.Timestamp,
		IsKeyframe: f.IsKeyframe,
		Data:       make([][]byte, len(f.Data)),
		Stride:     make([]int, len(f.Stride)),
	}

	for i, plane := range f.Data {
		clone.Data[i] = make([]byte, len(plane))
		copy(clone.Data[i], plane)
	}
	copy(clone.Stride, f.Stride)

	return clone
}

// YPlane returns the Y plane data for I420 frames.
func (f *VideoFrame) YPlane() []byte {
	if f.Format == PixelFormatI420 && len(f.Data) > 0 {
		return f.Data[0]
	}
	return nil
}

// UPlane returns the U plane data for I420 frames.
func (f *VideoFrame) UPlane() []byte {
	if f.Format == PixelFormatI420 && len(f.Data) > 1 {
		return f.Data[1]
	}
	return nil
}

// VPlane returns the V plane data for I420 frames.
func (f *VideoFrame) VPlane() []byte {
	if f.Format == PixelFormatI420 && len(f.Data) > 2 {
		return f.Data[2]
	}
	return nil
}

// Payload returns the access unit of an encoded frame.
func (f *VideoFrame) Payload() []byte {
	if f.Format == PixelFormatEncoded && len(f.Data) > 0 {
		return f.Data[0]
	}
	return nil
}

// NewI420Frame creates a new I420 video frame with allocated buffers.
func NewI420Frame(width, height int) *VideoFrame {
	ySize := width * height
	uvWidth := (width + 1) / 2
	uvHeight := (height + 1) / 2
	uvSize := uvWidth * uvHeight

	return &VideoFrame{
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
		Data: [][]byte{
			make([]byte, ySize),
			make([]byte, uvSize),
			make([]byte, uvSize),
		},
		Stride: []int{width, uvWidth, uvWidth},
	}
}

// NewEncodedFrame wraps a compressed access unit. The payload is not copied.
func NewEncodedFrame(c codec.Type, payload []byte, ts time.Duration, keyframe bool) *VideoFrame {
	return &VideoFrame{
		Format:     PixelFormatEncoded,
		Codec:      c,
		Data:       [][]byte{payload},
		Timestamp:  ts,
		IsKeyframe: keyframe,
	}
}

// VideoSink consumes video frames. OnFrame may be called from any goroutine.
type VideoSink interface {
	OnFrame(f *VideoFrame)
}

// VideoSinkFunc adapts a function to VideoSink.
type VideoSinkFunc func(f *VideoFrame)

// OnFrame calls fn(f).
func (fn VideoSinkFunc) OnFrame(f *VideoFrame) { fn(f) }
