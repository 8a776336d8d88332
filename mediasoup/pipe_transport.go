package mediasoup

// PipeTransportOptions configures PipeTransport creation, grounded on
// itzmanish-mediasoup-go/pipe_transport.go. Reserved for inter-MediaServer
// piping (SPEC_FULL.md §3): not wired into the client-facing Room
// protocol, which only ever creates WebRtcTransports.
type PipeTransportOptions struct {
	ListenIp           TransportListenIp `json:"listenIp"`
	EnableSctp         bool              `json:"enableSctp,omitempty"`
	NumSctpStreams     NumSctpStreams    `json:"numSctpStreams,omitempty"`
	EnableRtx          bool              `json:"enableRtx,omitempty"`
	EnableSrtp         bool              `json:"enableSrtp,omitempty"`
	AppData            interface{}       `json:"-"`
}

type pipeTransportData struct {
	Tuple          TransportTuple  `json:"tuple"`
	SctpParameters *SctpParameters `json:"sctpParameters,omitempty"`
	SctpState      SctpState       `json:"sctpState,omitempty"`
	Rtx            bool            `json:"rtx"`
	SrtpParameters *SrtpParameters `json:"srtpParameters,omitempty"`
}

// PipeTransport forwards RTP/RTCP/SCTP between two Routers (possibly on
// different Workers/hosts) without transcoding.
//
//   - @emits sctpstatechange - (sctpState SctpState)
//   - @emits trace - (trace *TraceEventData)
type PipeTransport struct {
	*Transport
	data pipeTransportData
}

func newPipeTransport(internal internalData, data pipeTransportData, channel *Channel, payload *PayloadChannel, appData interface{}, mis uint16) *PipeTransport {
	t := &PipeTransport{
		Transport: newTransportBase(internal, channel, payload, mis, "PipeTransport"),
		data:      data,
	}
	return t
}

func (t *PipeTransport) Tuple() TransportTuple { return t.data.Tuple }
func (t *PipeTransport) Rtx() bool             { return t.data.Rtx }

// Connect provides the remote PipeTransport's listening ip/port (and SRTP
// parameters if enabled).
func (t *PipeTransport) Connect(ip string, port int, srtpParameters *SrtpParameters) error {
	reqData := H{"ip": ip, "port": port}
	if srtpParameters != nil {
		reqData["srtpParameters"] = srtpParameters
	}
	resp := t.channel.Request("transport.connect", t.internal, reqData)

	var result struct {
		Tuple TransportTuple `json:"tuple"`
	}
	if err := resp.Unmarshal(&result); err != nil {
		return err
	}
	t.data.Tuple = result.Tuple
	return nil
}
