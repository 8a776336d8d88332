package mediasoup

import "encoding/json"

// PlainTransportOptions configures PlainTransport creation — a transport
// without ICE/DTLS, useful for RTP bridging to non-mediasoup peers
// (spec.md §3 data model "Transport" row; SPEC_FULL.md §3 supplement).
type PlainTransportOptions struct {
	ListenIp       TransportListenIp `json:"listenIp"`
	RtcpMux        bool              `json:"rtcpMux,omitempty"`
	Comedia        bool              `json:"comedia,omitempty"`
	EnableSctp     bool              `json:"enableSctp,omitempty"`
	NumSctpStreams NumSctpStreams    `json:"numSctpStreams,omitempty"`
	EnableSrtp     bool              `json:"enableSrtp,omitempty"`
	AppData        interface{}       `json:"-"`
}

type plainTransportData struct {
	Tuple          TransportTuple  `json:"tuple"`
	RtcpTuple      *TransportTuple `json:"rtcpTuple,omitempty"`
	SctpParameters *SctpParameters `json:"sctpParameters,omitempty"`
	SctpState      SctpState       `json:"sctpState,omitempty"`
	SrtpParameters *SrtpParameters `json:"srtpParameters,omitempty"`
}

// PlainTransport carries plain RTP/RTCP (optionally SRTP) to/from a single
// remote IP:port pair, no ICE/DTLS negotiation.
//
//   - @emits tuple - (tuple *TransportTuple)
//   - @emits rtcptuple - (tuple *TransportTuple)
//   - @emits sctpstatechange - (sctpState SctpState)
//   - @emits trace - (trace *TraceEventData)
type PlainTransport struct {
	*Transport
	data plainTransportData

	onTuple func(*TransportTuple)
}

func newPlainTransport(internal internalData, data plainTransportData, channel *Channel, payload *PayloadChannel, appData interface{}, mis uint16) *PlainTransport {
	t := &PlainTransport{
		Transport: newTransportBase(internal, channel, payload, mis, "PlainTransport"),
		data:      data,
	}
	t.handleNotifications()
	return t
}

func (t *PlainTransport) Tuple() TransportTuple        { return t.data.Tuple }
func (t *PlainTransport) RtcpTuple() *TransportTuple    { return t.data.RtcpTuple }
func (t *PlainTransport) SrtpParameters() *SrtpParameters { return t.data.SrtpParameters }

// Connect provides the remote IP:port (and, if SRTP is enabled, the
// remote SRTP parameters) for a "comedia"-less PlainTransport.
func (t *PlainTransport) Connect(ip string, port int, rtcpPort int, srtpParameters *SrtpParameters) error {
	reqData := H{"ip": ip, "port": port}
	if rtcpPort != 0 {
		reqData["rtcpPort"] = rtcpPort
	}
	if srtpParameters != nil {
		reqData["srtpParameters"] = srtpParameters
	}
	resp := t.channel.Request("transport.connect", t.internal, reqData)
	return resp.Unmarshal(&t.data)
}

func (t *PlainTransport) handleNotifications() {
	t.channel.Subscribe(t.Id(), func(event string, data []byte) {
		switch event {
		case "tuple":
			var body struct {
				Tuple TransportTuple `json:"tuple"`
			}
			if json.Unmarshal(data, &body) == nil {
				t.data.Tuple = body.Tuple
				t.SafeEmit("tuple", &body.Tuple)
				if t.onTuple != nil {
					t.onTuple(&body.Tuple)
				}
			}
		case "rtcptuple":
			var body struct {
				RtcpTuple TransportTuple `json:"rtcpTuple"`
			}
			if json.Unmarshal(data, &body) == nil {
				t.data.RtcpTuple = &body.RtcpTuple
				t.SafeEmit("rtcptuple", &body.RtcpTuple)
			}
		default:
		}
	})
}
