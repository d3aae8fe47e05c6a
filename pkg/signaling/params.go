package signaling

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZLMediaKit/ZLMediaKit/pkg/codec"
	"github.com/ZLMediaKit/ZLMediaKit/pkg/pc"
)

// DataChannelParameters configures the data channel an offerer opens.
type DataChannelParameters struct {
	Label          string `yaml:"label"`
	Ordered        bool   `yaml:"ordered"`
	MaxRetransmits int    `yaml:"max_retransmits"`
	// MaxRetransmitTimeMs is the packet lifetime; -1 leaves it unset.
	MaxRetransmitTimeMs int    `yaml:"max_retransmit_time_ms"`
	Protocol            string `yaml:"protocol"`
	Negotiated          bool   `yaml:"negotiated"`
	ID                  int    `yaml:"id"`
}

// Parameters configures every peer connection a Client creates.
type Parameters struct {
	VideoCallEnabled bool `yaml:"video_call_enabled"`
	VideoWidth       int  `yaml:"video_width"`
	VideoHeight      int  `yaml:"video_height"`
	VideoFPS         int  `yaml:"video_fps"`
	// VideoMaxBitrate is in kbps; 0 leaves the sender unlimited.
	VideoMaxBitrate int `yaml:"video_max_bitrate"`
	// VideoCodec is one of "VP8", "VP9", "H264 Baseline" or "H264 High".
	VideoCodec               string `yaml:"video_codec"`
	VideoCodecHWAcceleration bool   `yaml:"video_codec_hw_acceleration"`

	// AudioStartBitrate is in kbps; 0 keeps the codec default.
	AudioStartBitrate int `yaml:"audio_start_bitrate"`
	// AudioCodec is "OPUS" or "ISAC".
	AudioCodec string `yaml:"audio_codec"`

	DataChannel *DataChannelParameters `yaml:"data_channel,omitempty"`
	ICEServers  []pc.ICEServer         `yaml:"ice_servers"`
}

// DefaultParameters returns the parameters of a receive-mostly video call.
func DefaultParameters() Parameters {
	return Parameters{
		VideoCallEnabled: true,
		VideoWidth:       1280,
		VideoHeight:      720,
		VideoFPS:         24,
		VideoCodec:       codec.VideoNameH264Baseline,
		AudioCodec:       codec.AudioNameOpus,
		ICEServers:       []pc.ICEServer{{URLs: []string{pc.DefaultICEServer}}},
	}
}

// ParseParameters decodes YAML over the defaults.
func ParseParameters(data []byte) (Parameters, error) {
	p := DefaultParameters()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Parameters{}, fmt.Errorf("parse parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// LoadParameters reads a YAML parameters file.
func LoadParameters(path string) (Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("read parameters: %w", err)
	}
	return ParseParameters(data)
}

// Validate rejects values the client cannot act on.
func (p *Parameters) Validate() error {
	switch p.VideoCodec {
	case "", codec.VideoNameVP8, codec.VideoNameVP9, codec.VideoNameH264Baseline, codec.VideoNameH264High, codec.VideoNameH264:
	default:
		return fmt.Errorf("%w: video codec %q", ErrInvalidParameters, p.VideoCodec)
	}
	switch p.AudioCodec {
	case "", codec.AudioNameOpus, codec.AudioNameISAC:
	default:
		return fmt.Errorf("%w: audio codec %q", ErrInvalidParameters, p.AudioCodec)
	}
	if p.VideoMaxBitrate < 0 || p.AudioStartBitrate < 0 {
		return fmt.Errorf("%w: negative bitrate", ErrInvalidParameters)
	}
	return nil
}

// PreferISAC reports whether ISAC is moved to the front of audio m-lines.
func (p *Parameters) PreferISAC() bool {
	return p.AudioCodec == codec.AudioNameISAC
}

// Configuration builds the RTC configuration for a new peer connection.
func (p *Parameters) Configuration() pc.Configuration {
	cfg := pc.DefaultConfiguration()
	if len(p.ICEServers) > 0 {
		cfg.ICEServers = p.ICEServers
	}
	return cfg
}

// SDPVideoCodecName maps a configured video codec to its SDP encoding name.
func SDPVideoCodecName(videoCodec string) string {
	return codec.PreferredVideoCodec(videoCodec).SDPName()
}
