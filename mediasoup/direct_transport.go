package mediasoup

// DirectTransportOptions configures DirectTransport creation. A
// DirectTransport has no RTP/ICE/DTLS network side at all: its Producers
// and Consumers exist only so the server itself can inject or receive
// RTP/data directly over the PayloadChannel (spec.md §3 "Transport" row,
// SPEC_FULL.md §3 supplement for server-originated data channels).
type DirectTransportOptions struct {
	MaxMessageSize int         `json:"maxMessageSize,omitempty"`
	AppData        interface{} `json:"-"`
}

// DirectTransport is grounded on the shared Transport base; it adds no
// state of its own beyond what transport.go already tracks.
//
//   - @emits trace - (trace *TraceEventData)
type DirectTransport struct {
	*Transport
}

func newDirectTransport(internal internalData, channel *Channel, payload *PayloadChannel, appData interface{}) *DirectTransport {
	t := &DirectTransport{
		Transport: newTransportBase(internal, channel, payload, 0, "DirectTransport"),
	}
	return t
}

// SendRtp injects a raw RTP packet via the transport's direct Producer.
// The worker delivers it downstream to any Consumer routed off that
// Producer, bypassing the network entirely.
func (t *DirectTransport) SendRtp(producerId string, rtpPacket []byte) error {
	return t.payload.Notify(producerId, "producer.send", nil, rtpPacket)
}
