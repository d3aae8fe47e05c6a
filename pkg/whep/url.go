// Package whep negotiates WebRTC sessions with a ZLMediaKit server over
// HTTP: WHEP for playing, WHIP for pushing, and the older
// /index/api/webrtc JSON API.
package whep

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Errors
var (
	ErrBadURL           = errors.New("bad webrtc url")
	ErrUnexpectedStatus = errors.New("unexpected http status")
	ErrInvalidAnswer    = errors.New("invalid sdp answer")
)

// DefaultVhost is the virtual host used for IP and localhost servers.
const DefaultVhost = "__defaultVhost__"

// URL is a parsed webrtc:// or webrtcs:// stream address.
type URL struct {
	Secure bool
	Host   string
	Port   int
	Vhost  string
	App    string
	Stream string
	// Params is the raw query, passed through to the server.
	Params string
}

// ParseURL parses webrtc[s]://host[:port]/app/stream[?params]. The stream id
// may span several path segments. The port defaults to 80, or 443 for
// webrtcs.
func ParseURL(raw string) (*URL, error) {
	rest, params, _ := strings.Cut(raw, "?")
	u := &URL{Params: params}

	if scheme, after, ok := strings.Cut(rest, "://"); ok {
		switch strings.ToLower(scheme) {
		case "webrtcs":
			u.Secure = true
		case "webrtc":
		default:
			return nil, fmt.Errorf("%w: scheme %q", ErrBadURL, scheme)
		}
		rest = after
	}

	segs := strings.Split(rest, "/")
	if segs[0] == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrBadURL, raw)
	}
	u.Port = 80
	if u.Secure {
		u.Port = 443
	}
	host, port, err := net.SplitHostPort(segs[0])
	if err != nil {
		u.Host = segs[0]
	} else {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("%w: port %q", ErrBadURL, port)
		}
		u.Host, u.Port = host, p
	}

	if len(segs) > 1 {
		u.App = segs[1]
	}
	if len(segs) > 2 {
		u.Stream = strings.TrimSuffix(strings.Join(segs[2:], "/"), "/")
	}
	if u.App == "" || u.Stream == "" {
		return nil, fmt.Errorf("%w: need /app/stream in %q", ErrBadURL, raw)
	}

	u.Vhost = u.Host
	if u.Host == "localhost" || net.ParseIP(u.Host) != nil {
		u.Vhost = DefaultVhost
	}
	if q, err := url.ParseQuery(params); err == nil && q.Get("vhost") != "" {
		u.Vhost = q.Get("vhost")
	}
	return u, nil
}

func (u *URL) base() string {
	scheme := "http"
	if u.Secure {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

func (u *URL) query(extra ...string) string {
	q := "app=" + u.App + "&stream=" + u.Stream
	for i := 0; i+1 < len(extra); i += 2 {
		q += "&" + extra[i] + "=" + extra[i+1]
	}
	if u.Params != "" {
		q += "&" + u.Params
	}
	return q
}

// NegotiateURL returns the WHEP endpoint when play is true, else WHIP.
func (u *URL) NegotiateURL(play bool) string {
	path := "/index/api/whip"
	if play {
		path = "/index/api/whep"
	}
	return u.base() + path + "?" + u.query()
}

// LegacyURL returns the /index/api/webrtc endpoint for play or push.
func (u *URL) LegacyURL(play bool) string {
	kind := "push"
	if play {
		kind = "play"
	}
	return u.base() + "/index/api/webrtc?" + u.query("type", kind)
}

// RTCURL returns the rtc:// address the embedded server answers for.
func (u *URL) RTCURL() string {
	s := "rtc://" + u.Vhost + "/" + u.App + "/" + u.Stream
	if u.Params != "" {
		s += "?" + u.Params
	}
	return s
}

func (u *URL) String() string {
	scheme := "webrtc"
	if u.Secure {
		scheme = "webrtcs"
	}
	s := scheme + "://" + net.JoinHostPort(u.Host, strconv.Itoa(u.Port)) + "/" + u.App + "/" + u.Stream
	if u.Params != "" {
		s += "?" + u.Params
	}
	return s
}
