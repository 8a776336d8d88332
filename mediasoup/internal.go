package mediasoup

// internalData carries the id path a worker request needs to route to the
// right object, per spec.md §4.5 item 1. Only the ids relevant to the
// current object (and its ancestors) are populated; the rest are left
// blank and rendered as "undefined" on the wire.
type internalData struct {
	RouterId       string `json:"routerId,omitempty"`
	TransportId    string `json:"transportId,omitempty"`
	ProducerId     string `json:"producerId,omitempty"`
	ConsumerId     string `json:"consumerId,omitempty"`
	DataProducerId string `json:"dataProducerId,omitempty"`
	DataConsumerId string `json:"dataConsumerId,omitempty"`
	RtpObserverId  string `json:"rtpObserverId,omitempty"`
	WebRtcServerId string `json:"webRtcServerId,omitempty"`
}
