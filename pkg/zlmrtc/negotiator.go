package zlmrtc

import (
	"context"
	"fmt"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/whep"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/zlm"
)

// Embedded answers offers with the ZLMediaKit server running in this
// process. zlm.Init and zlm.StartRTCServer must have succeeded.
type Embedded struct {
	URL  *whep.URL
	Play bool
}

var _ whep.Negotiator = (*Embedded)(nil)

// Negotiate implements whep.Negotiator.
func (e *Embedded) Negotiate(ctx context.Context, offer string) (string, error) {
	if e.URL == nil {
		return "", fmt.Errorf("%w: URL is required", whep.ErrBadURL)
	}
	kind := "push"
	if e.Play {
		kind = "play"
	}
	return zlm.AnswerSDP(ctx, kind, offer, e.URL.RTCURL())
}

// Bye implements whep.Negotiator. The server drops the session when the
// peer connection closes.
func (e *Embedded) Bye(context.Context) error { return nil }

// NewNegotiator picks the signaling for u: the legacy JSON API when legacy is
// set, otherwise WHEP for players and WHIP for pushers.
func NewNegotiator(u *whep.URL, play, legacy bool, cfg whep.Config) (whep.Negotiator, error) {
	cfg.URL, cfg.Play = u, play
	if legacy {
		return whep.NewLegacyClient(cfg)
	}
	return whep.NewClient(cfg)
}
