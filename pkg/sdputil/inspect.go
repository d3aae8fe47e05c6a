package sdputil

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pion/sdp/v3"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
)

// ErrNoMedia is returned when a description carries no media sections.
var ErrNoMedia = errors.New("sdp has no media sections")

// Media summarizes one m= section.
type Media struct {
	Kind       string // "audio", "video" or "application"
	MID        string
	Direction  string // sendrecv, sendonly, recvonly or inactive
	Codecs     []Codec
	Candidates int
}

// Codec is one payload type mapping of a media section.
type Codec struct {
	PayloadType uint8
	Name        string
	ClockRate   uint32
	Fmtp        string
}

// Type maps the codec name to a codec.Type.
func (c Codec) Type() codec.Type { return codec.ParseSDPName(c.Name) }

// Summary is the structured view of a description used for logging and for
// validating answers received over HTTP.
type Summary struct {
	Media []Media
}

// Inspect parses body with pion/sdp and summarizes its media sections.
func Inspect(body string) (*Summary, error) {
	var desc sdp.SessionDescription
	if err := desc.UnmarshalString(body); err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}

	s := &Summary{}
	for _, md := range desc.MediaDescriptions {
		m := Media{
			Kind:      md.MediaName.Media,
			Direction: "sendrecv",
		}
		for _, attr := range md.Attributes {
			switch attr.Key {
			case "mid":
				m.MID = attr.Value
			case "sendrecv", "sendonly", "recvonly", "inactive":
				m.Direction = attr.Key
			case "candidate":
				m.Candidates++
			}
		}
		for _, format := range md.MediaName.Formats {
			pt, err := strconv.ParseUint(format, 10, 8)
			if err != nil {
				continue
			}
			c, err := desc.GetCodecForPayloadType(uint8(pt))
			if err != nil {
				continue
			}
			m.Codecs = append(m.Codecs, Codec{
				PayloadType: c.PayloadType,
				Name:        c.Name,
				ClockRate:   c.ClockRate,
				Fmtp:        c.Fmtp,
			})
		}
		s.Media = append(s.Media, m)
	}
	return s, nil
}

// Validate reports whether body parses and has at least one media section.
func Validate(body string) error {
	s, err := Inspect(body)
	if err != nil {
		return err
	}
	if len(s.Media) == 0 {
		return ErrNoMedia
	}
	return nil
}

// Find returns the first media section of the given kind.
func (s *Summary) Find(kind string) (Media, bool) {
	for _, m := range s.Media {
		if m.Kind == kind {
			return m, true
		}
	}
	return Media{}, false
}

// PreferredCodec returns the first codec listed for the given kind, which is
// the codec a remote answerer selected.
func (s *Summary) PreferredCodec(kind string) (Codec, bool) {
	m, ok := s.Find(kind)
	if !ok || len(m.Codecs) == 0 {
		return Codec{}, false
	}
	return m.Codecs[0], true
}
