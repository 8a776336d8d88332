package room

import "github.com/rainstream/mediasfu/mediasoup"

// MediaCodecs is the default codec set offered to every new Router,
// until a config-driven override lands (original_source/Src/ClusterServer/Settings.cpp
// hardcodes an equivalent list).
var MediaCodecs = []mediasoup.RtpCodecCapability{
	{Kind: mediasoup.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	{Kind: mediasoup.MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000},
	{Kind: mediasoup.MediaKindVideo, MimeType: "video/H264", ClockRate: 90000},
}

// WebRtcTransportConfig carries the listen IPs and bitrate knobs
// createWebRtcTransport needs (spec.md §4.7 "createWebRtcTransport").
type WebRtcTransportConfig struct {
	ListenIps                       []mediasoup.TransportListenIp
	InitialAvailableOutgoingBitrate int
	MaxIncomingBitrate              int
	MaxSctpMessageSize              int
}

// Config bundles everything a Room needs to build Router/Transport
// options, kept separate from internal/config so this package has no
// dependency on flag/JSON parsing.
type Config struct {
	MediaCodecs  []mediasoup.RtpCodecCapability
	WebRtcConfig WebRtcTransportConfig
}

// DefaultConfig returns sane defaults mirroring a single-host deployment.
func DefaultConfig() Config {
	return Config{
		MediaCodecs: MediaCodecs,
		WebRtcConfig: WebRtcTransportConfig{
			ListenIps:                       []mediasoup.TransportListenIp{{Ip: "0.0.0.0", AnnouncedIp: ""}},
			InitialAvailableOutgoingBitrate: 1000000,
			MaxSctpMessageSize:              262144,
		},
	}
}
