package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/frame"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/nativertc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pionrtc"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/signaling"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/whep"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/wsignal"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/zlm"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/zlmrtc"
)

const statsInterval = 5 * time.Second

func withDuration(ctx context.Context, d string) (context.Context, context.CancelFunc, error) {
	if d == "" {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	dur, err := time.ParseDuration(d)
	if err != nil || dur <= 0 {
		return nil, nil, fmt.Errorf("bad --duration %q", d)
	}
	ctx, cancel := context.WithTimeout(ctx, dur)
	return ctx, cancel, nil
}

func (o *options) initZLM(lf logging.LoggerFactory) error {
	if err := zlm.Init(zlm.EnvConfig{LogLevel: 3}); err != nil {
		return fmt.Errorf("init ZLMediaKit: %w", err)
	}
	if o.embedded {
		port, err := zlm.StartRTCServer(o.rtcPort)
		if err != nil {
			return err
		}
		lf.NewLogger("zlmrtc").Infof("embedded rtc server on port %d", port)
	}
	return nil
}

func (o *options) negotiator(u *whep.URL, play bool, lf logging.LoggerFactory) (whep.Negotiator, error) {
	if o.embedded {
		return &zlmrtc.Embedded{URL: u, Play: play}, nil
	}
	return zlmrtc.NewNegotiator(u, play, o.legacy, whep.Config{LoggerFactory: lf})
}

// frameStats is a sink counting what it renders and optionally dumping the
// payloads.
type frameStats struct {
	frames    atomic.Uint64
	keyframes atomic.Uint64
	bytes     atomic.Uint64
	width     atomic.Int64
	height    atomic.Int64
	out       *os.File
}

func (s *frameStats) OnFrame(f *frame.VideoFrame) {
	s.frames.Add(1)
	if f.IsKeyframe {
		s.keyframes.Add(1)
	}
	s.width.Store(int64(f.Width))
	s.height.Store(int64(f.Height))
	if f.Format == frame.PixelFormatEncoded {
		s.bytes.Add(uint64(len(f.Payload())))
	}
	if s.out == nil {
		return
	}
	for _, plane := range f.Data {
		_, _ = s.out.Write(plane)
	}
}

func (s *frameStats) report(log logging.LeveledLogger) {
	log.Infof("video: %d frames (%d key), %d bytes, %dx%d",
		s.frames.Load(), s.keyframes.Load(), s.bytes.Load(), s.width.Load(), s.height.Load())
}

func runPlay(ctx context.Context, o *options, params signaling.Parameters, raw string, lf logging.LoggerFactory) error {
	log := lf.NewLogger("zlmrtc")
	u, err := whep.ParseURL(raw)
	if err != nil {
		return err
	}
	if o.embedded {
		if err := o.initZLM(lf); err != nil {
			return err
		}
	}

	stats := &frameStats{}
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		stats.out = f
	}

	var factory signaling.TransportFactory
	switch o.engine {
	case "pion":
		factory = pionrtc.NewFactory(pionrtc.Options{})
	case "native":
		factory = nativertc.NewFactory(nativertc.Options{})
	default:
		return fmt.Errorf("unknown engine %q", o.engine)
	}

	neg, err := o.negotiator(u, true, lf)
	if err != nil {
		return err
	}
	s, err := zlmrtc.NewPlayer(zlmrtc.Options{
		Params:        params,
		Factory:       factory,
		Negotiator:    neg,
		LoggerFactory: lf,
	}, stats)
	if err != nil {
		return err
	}
	return drive(ctx, s, log, func() { stats.report(log) })
}

func runPush(ctx context.Context, o *options, params signaling.Parameters, raw string, lf logging.LoggerFactory) error {
	log := lf.NewLogger("zlmrtc")
	u, err := whep.ParseURL(raw)
	if err != nil {
		return err
	}

	var (
		factory signaling.TransportFactory
		report  func()
		feed    func(context.Context) error
	)
	switch o.engine {
	case "pion":
		if o.source == "" {
			return errors.New("pion push needs --source")
		}
		if err := o.initZLM(lf); err != nil {
			return err
		}
		vc := codec.PreferredVideoCodec(params.VideoCodec)
		track, err := pionrtc.NewLocalRTPTrack(vc, "video", "zlmrtc")
		if err != nil {
			return err
		}
		relay := &zlm.Relay{Video: track, VideoCodec: vc}
		defer relay.Close()
		factory = pionrtc.NewFactory(pionrtc.Options{Video: track})
		report = func() { log.Infof("relay: %d frames dropped", relay.Dropped()) }
		feed = func(ctx context.Context) error { return relaySource(ctx, o.source, relay, lf) }
	case "native":
		if o.embedded {
			if err := o.initZLM(lf); err != nil {
				return err
			}
		}
		source := &nativertc.VideoSource{}
		factory = nativertc.NewFactory(nativertc.Options{VideoSource: source})
		report = func() { log.Infof("source: %d frames dropped", source.Dropped()) }
		feed = func(ctx context.Context) error {
			generatePattern(ctx, source, params.VideoWidth, params.VideoHeight, params.VideoFPS)
			return nil
		}
	default:
		return fmt.Errorf("unknown engine %q", o.engine)
	}

	neg, err := o.negotiator(u, false, lf)
	if err != nil {
		return err
	}
	s, err := zlmrtc.NewPusher(zlmrtc.Options{
		Params:        params,
		Factory:       factory,
		Negotiator:    neg,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	feedErr := make(chan error, 1)
	go func() { feedErr <- feed(feedCtx) }()

	if params.VideoMaxBitrate > 0 {
		kbps := params.VideoMaxBitrate
		go func() {
			if s.Wait(ctx) == nil {
				s.SetVideoMaxBitrate(&kbps)
			}
		}()
	}

	err = drive(ctx, s, log, report)
	stopFeed()
	if ferr := <-feedErr; ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// drive starts s and runs until ctx ends or the session fails, reporting
// periodically.
func drive(ctx context.Context, s *zlmrtc.Session, log logging.LeveledLogger, report func()) error {
	if err := s.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	if err := s.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info("connected")

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			report()
			return nil
		case <-s.Done():
			report()
			return s.Err()
		case <-ticker.C:
			report()
		}
	}
}

// relaySource plays url with a native player and relays its frames until
// ctx ends or playback stops.
func relaySource(ctx context.Context, url string, relay *zlm.Relay, lf logging.LoggerFactory) error {
	ended := make(chan error, 1)
	p, err := zlm.NewPlayer(zlm.PlayerOptions{
		OnResult: func(err error) {
			if err != nil {
				select {
				case ended <- err:
				default:
				}
			}
		},
		OnShutdown: func(err error) {
			select {
			case ended <- err:
			default:
			}
		},
		OnFrame:       relay.OnFrame,
		RTPType:       zlm.RTPOverTCP,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}
	defer p.Release()
	if err := p.Play(url); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-ended:
		return err
	}
}

// generatePattern feeds moving I420 bars to sink at fps.
func generatePattern(ctx context.Context, sink frame.VideoSink, width, height, fps int) {
	if fps <= 0 {
		fps = 24
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	start := time.Now()
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		f := frame.NewI420Frame(width, height)
		fillPattern(f, n)
		f.Timestamp = time.Since(start)
		sink.OnFrame(f)
	}
}

func fillPattern(f *frame.VideoFrame, n int) {
	for y := 0; y < f.Height; y++ {
		row := f.Data[0][y*f.Stride[0]:]
		for x := 0; x < f.Width; x++ {
			row[x] = byte((x + n*4) / 8 * 32)
		}
	}
	u := byte(128 + 64*((n/30)%2))
	for i := range f.Data[1] {
		f.Data[1][i] = u
		f.Data[2][i] = 128
	}
}

func runServe(ctx context.Context, o *options, params signaling.Parameters, lf logging.LoggerFactory) error {
	log := lf.NewLogger("zlmrtc")
	var factory signaling.TransportFactory
	switch o.engine {
	case "pion":
		factory = pionrtc.NewFactory(pionrtc.Options{})
	case "native":
		factory = nativertc.NewFactory(nativertc.Options{})
	default:
		return fmt.Errorf("unknown engine %q", o.engine)
	}

	srv := wsignal.NewServer(lf)
	client, err := signaling.NewClient(signaling.Config{
		Params:        params,
		Direction:     signaling.DirectionRecvOnly,
		Factory:       factory,
		Events:        srv,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	srv.Bind(client)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	hs := &http.Server{Addr: o.ws, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	log.Infof("answering websocket offers on %s/ws", o.ws)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
