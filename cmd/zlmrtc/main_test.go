package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
)

func TestLoggerFactory(t *testing.T) {
	for level, want := range map[string]logging.LogLevel{
		"disabled": logging.LogLevelDisabled,
		"ERROR":    logging.LogLevelError,
		"warn":     logging.LogLevelWarn,
		"info":     logging.LogLevelInfo,
		"debug":    logging.LogLevelDebug,
		"trace":    logging.LogLevelTrace,
	} {
		lf, err := loggerFactory(level)
		require.NoError(t, err, level)
		assert.Equal(t, want, lf.(*logging.DefaultLoggerFactory).DefaultLogLevel, level)
	}
	_, err := loggerFactory("loud")
	assert.Error(t, err)
}

func TestParametersFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("video_codec: VP9\nvideo_max_bitrate: 300\nvideo_width: 640\n"), 0o600))

	o := &options{config: path}
	p, err := o.parameters()
	require.NoError(t, err)
	assert.Equal(t, codec.VideoNameVP9, p.VideoCodec)
	assert.Equal(t, 300, p.VideoMaxBitrate)
	assert.Equal(t, 640, p.VideoWidth)
	assert.True(t, p.VideoCallEnabled)

	o = &options{config: path, videoCodec: codec.VideoNameVP8, maxBitrate: 900, noVideo: true}
	p, err = o.parameters()
	require.NoError(t, err)
	assert.Equal(t, codec.VideoNameVP8, p.VideoCodec)
	assert.Equal(t, 900, p.VideoMaxBitrate)
	assert.False(t, p.VideoCallEnabled)

	o = &options{videoCodec: "MPEG2"}
	_, err = o.parameters()
	assert.Error(t, err)
}

func TestWithDuration(t *testing.T) {
	ctx, cancel, err := withDuration(context.Background(), "")
	require.NoError(t, err)
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	cancel()
	assert.Error(t, ctx.Err())

	ctx, cancel, err = withDuration(context.Background(), "2s")
	require.NoError(t, err)
	defer cancel()
	dl, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), dl, time.Second)

	for _, bad := range []string{"soon", "-1s", "0s"} {
		_, _, err := withDuration(context.Background(), bad)
		assert.Error(t, err, bad)
	}
}

func TestRunArguments(t *testing.T) {
	assert.Error(t, run(nil))
	assert.Error(t, run([]string{"dance"}))
	assert.Error(t, run([]string{"play"}))
	assert.Error(t, run([]string{"play", "--engine", "carrier-pigeon", "webrtc://127.0.0.1/live/test"}))
	assert.Error(t, run([]string{"push", "webrtc://127.0.0.1/live/test"}), "pion push needs a source")
	assert.Error(t, run([]string{"play", "rtsp://127.0.0.1/live/test"}))
	assert.Error(t, run([]string{"serve", "--log-level", "loud"}))
	assert.NoError(t, run([]string{"play", "--help"}))
}

func TestFrameStatsAndPattern(t *testing.T) {
	s := &frameStats{}
	f := frame.NewI420Frame(32, 16)
	fillPattern(f, 3)
	assert.NotEqual(t, f.Data[0][0], f.Data[0][31])
	s.OnFrame(f)
	s.OnFrame(frame.NewEncodedFrame(codec.VP8, make([]byte, 100), 0, true))

	assert.EqualValues(t, 2, s.frames.Load())
	assert.EqualValues(t, 1, s.keyframes.Load())
	assert.EqualValues(t, 100, s.bytes.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var n int
	generatePattern(ctx, frame.VideoSinkFunc(func(f *frame.VideoFrame) {
		n++
		assert.Equal(t, 16, f.Width)
	}), 16, 8, 50)
	assert.Greater(t, n, 2)
}
