package mediasoup

// MediaKind is either "audio" or "video" (data model table, spec.md §3).
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// RtpCapabilities describes what media a Router, or an endpoint, can
// receive. Forwarded verbatim to/from the worker; the orchestrator only
// inspects it for canConsume() (ortc.go).
type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs,omitempty"`
	HeaderExtensions []RtpHeaderExtension `json:"headerExtensions,omitempty"`
	FecMechanisms    []string             `json:"fecMechanisms,omitempty"`
}

type RtpCodecCapability struct {
	Kind                 MediaKind      `json:"kind,omitempty"`
	MimeType             string         `json:"mimeType,omitempty"`
	PreferredPayloadType int            `json:"preferredPayloadType,omitempty"`
	ClockRate            int            `json:"clockRate,omitempty"`
	Channels             int            `json:"channels,omitempty"`
	Parameters           H              `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtcpFeedback struct {
	Type      string `json:"type,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

type RtpHeaderExtensionDirection string

const (
	RtpHeaderExtensionDirectionSendRecv RtpHeaderExtensionDirection = "sendrecv"
	RtpHeaderExtensionDirectionSendOnly RtpHeaderExtensionDirection = "sendonly"
	RtpHeaderExtensionDirectionRecvOnly RtpHeaderExtensionDirection = "recvonly"
	RtpHeaderExtensionDirectionInactive RtpHeaderExtensionDirection = "inactive"
)

type RtpHeaderExtension struct {
	Kind             MediaKind                   `json:"kind,omitempty"`
	Uri              string                      `json:"uri,omitempty"`
	PreferredId      int                         `json:"preferredId,omitempty"`
	PreferredEncrypt bool                        `json:"preferredEncrypt,omitempty"`
	Direction        RtpHeaderExtensionDirection `json:"direction,omitempty"`
}

// RtpParameters are the negotiated parameters of a Producer or Consumer's
// RTP stream. The orchestrator never parses these beyond forwarding them;
// only the worker and the remote endpoint interpret them.
type RtpParameters struct {
	Mid              string               `json:"mid,omitempty"`
	Codecs           []RtpCodecParameters `json:"codecs,omitempty"`
	HeaderExtensions []RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []RtpEncodingParameters        `json:"encodings,omitempty"`
	Rtcp             RtcpParameters                 `json:"rtcp,omitempty"`
}

type RtpCodecParameters struct {
	MimeType     string         `json:"mimeType,omitempty"`
	PayloadType  int            `json:"payloadType"`
	ClockRate    int            `json:"clockRate,omitempty"`
	Channels     int            `json:"channels,omitempty"`
	Parameters   H              `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtensionParameters struct {
	Uri     string `json:"uri,omitempty"`
	Id      int    `json:"id,omitempty"`
	Encrypt bool   `json:"encrypt,omitempty"`
}

type RtpEncodingParameters struct {
	Ssrc            uint32 `json:"ssrc,omitempty"`
	Rid             string `json:"rid,omitempty"`
	CodecPayloadType *int  `json:"codecPayloadType,omitempty"`
	Dtx             bool   `json:"dtx,omitempty"`
	ScalabilityMode string `json:"scalabilityMode,omitempty"`
	MaxBitrate      int    `json:"maxBitrate,omitempty"`
}

type RtcpParameters struct {
	Cname       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize,omitempty"`
	Mux         bool   `json:"mux,omitempty"`
}
