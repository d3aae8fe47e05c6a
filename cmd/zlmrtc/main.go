// zlmrtc plays and pushes ZLMediaKit streams over WebRTC, or answers calls
// from browsers over a websocket.
//
//	zlmrtc play webrtc://127.0.0.1/live/test
//	zlmrtc push --source rtsp://127.0.0.1/live/cam webrtc://127.0.0.1/live/test
//	zlmrtc serve --ws :8000
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/logging"
	"github.com/spf13/pflag"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags shared by every command.
type options struct {
	config     string
	engine     string
	logLevel   string
	legacy     bool
	embedded   bool
	rtcPort    uint16
	videoCodec string
	maxBitrate int
	noVideo    bool
	source     string
	output     string
	ws         string
	duration   string
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.config, "config", "", "peer connection parameters (YAML)")
	fs.StringVar(&o.engine, "engine", "pion", "WebRTC engine: pion or native")
	fs.StringVar(&o.logLevel, "log-level", "info", "error, warn, info, debug, trace or disabled")
	fs.BoolVar(&o.legacy, "legacy", false, "negotiate through /index/api/webrtc instead of WHEP/WHIP")
	fs.BoolVar(&o.embedded, "embedded", false, "answer with an in-process ZLMediaKit server")
	fs.Uint16Var(&o.rtcPort, "rtc-port", 8000, "WebRTC port of the embedded server")
	fs.StringVar(&o.videoCodec, "video-codec", "", "VP8, VP9, H264 Baseline or H264 High (overrides --config)")
	fs.IntVar(&o.maxBitrate, "max-bitrate", 0, "video sender cap in kbps (overrides --config)")
	fs.BoolVar(&o.noVideo, "no-video", false, "audio only")
	fs.StringVar(&o.source, "source", "", "push: rtsp/rtmp/http-flv URL relayed through a ZLMediaKit player")
	fs.StringVar(&o.output, "output", "", "play: write received video frames to this file")
	fs.StringVar(&o.ws, "ws", ":8000", "serve: websocket listen address")
	fs.StringVar(&o.duration, "duration", "", "stop after this long, e.g. 30s")
}

func run(args []string) error {
	if len(args) == 0 {
		printHelp(nil)
		return errors.New("missing command")
	}
	cmd := args[0]

	var o options
	fs := pflag.NewFlagSet("zlmrtc "+cmd, pflag.ContinueOnError)
	o.addFlags(fs)
	fs.BoolP("help", "h", false, "show help")
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(fs)
			return nil
		}
		return err
	}
	if help, _ := fs.GetBool("help"); help {
		printHelp(fs)
		return nil
	}

	lf, err := loggerFactory(o.logLevel)
	if err != nil {
		return err
	}
	params, err := o.parameters()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel, err := withDuration(ctx, o.duration)
	if err != nil {
		return err
	}
	defer cancel()

	switch cmd {
	case "play", "push":
		if fs.NArg() != 1 {
			return fmt.Errorf("%s needs one webrtc:// url", cmd)
		}
		if cmd == "play" {
			return runPlay(ctx, &o, params, fs.Arg(0), lf)
		}
		return runPush(ctx, &o, params, fs.Arg(0), lf)
	case "serve":
		return runServe(ctx, &o, params, lf)
	case "help":
		printHelp(fs)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parameters loads --config and applies the flags over it.
func (o *options) parameters() (signaling.Parameters, error) {
	p := signaling.DefaultParameters()
	if o.config != "" {
		var err error
		if p, err = signaling.LoadParameters(o.config); err != nil {
			return p, err
		}
	}
	if o.videoCodec != "" {
		p.VideoCodec = o.videoCodec
	}
	if o.maxBitrate > 0 {
		p.VideoMaxBitrate = o.maxBitrate
	}
	if o.noVideo {
		p.VideoCallEnabled = false
	}
	return p, p.Validate()
}

func loggerFactory(level string) (logging.LoggerFactory, error) {
	f := logging.NewDefaultLoggerFactory()
	switch strings.ToLower(level) {
	case "disabled", "off":
		f.DefaultLogLevel = logging.LogLevelDisabled
	case "error":
		f.DefaultLogLevel = logging.LogLevelError
	case "warn", "warning":
		f.DefaultLogLevel = logging.LogLevelWarn
	case "info":
		f.DefaultLogLevel = logging.LogLevelInfo
	case "debug":
		f.DefaultLogLevel = logging.LogLevelDebug
	case "trace":
		f.DefaultLogLevel = logging.LogLevelTrace
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return f, nil
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, `zlmrtc: WebRTC client for ZLMediaKit.

Usage:
  zlmrtc play  [flags] webrtc[s]://host[:port]/app/stream[?params]
  zlmrtc push  [flags] webrtc[s]://host[:port]/app/stream[?params]
  zlmrtc serve [flags]

play receives a stream over WHEP and reports the video it renders.
push publishes over WHIP; the pion engine relays --source, the native
engine sends a generated test pattern.
serve answers websocket offers ({type, sdp, candidate} JSON) at /ws.

Flags:
`)
	if fs != nil {
		fs.SetOutput(os.Stderr)
		fs.PrintDefaults()
	}
}
