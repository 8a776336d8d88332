package mediasoup

// NumSctpStreams declares the SCTP association's outgoing/incoming stream
// counts, negotiated once per Transport at creation.
type NumSctpStreams struct {
	// OS is the initial number of outgoing SCTP streams.
	OS uint16 `json:"OS"`
	// MIS is the maximum number of incoming SCTP streams, bounding the
	// Transport's stream-id pool (spec.md §4.5 "Stream-id pool").
	MIS uint16 `json:"MIS"`
}

type SctpCapabilities struct {
	NumStreams NumSctpStreams `json:"numStreams"`
}

type SctpParameters struct {
	Port               int    `json:"port"`
	OS                 uint16 `json:"OS"`
	MIS                uint16 `json:"MIS"`
	MaxMessageSize      int   `json:"maxMessageSize"`
}

type SctpStreamParameters struct {
	StreamId          int    `json:"streamId"`
	Ordered           *bool  `json:"ordered,omitempty"`
	MaxPacketLifeTime int    `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits    int    `json:"maxRetransmits,omitempty"`
}

// SctpState mirrors the Transport.sctpstatechange notification payload.
type SctpState string

const (
	SctpStateNew        SctpState = "new"
	SctpStateConnecting SctpState = "connecting"
	SctpStateConnected  SctpState = "connected"
	SctpStateFailed     SctpState = "failed"
	SctpStateClosed     SctpState = "closed"
)
