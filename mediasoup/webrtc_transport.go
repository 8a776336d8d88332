package mediasoup

import "encoding/json"

// WebRtcTransportOptions configures WebRtcTransport creation (spec.md
// §4.7 "createWebRtcTransport").
type WebRtcTransportOptions struct {
	ListenIps                       []TransportListenIp `json:"listenIps"`
	EnableUdp                       bool                `json:"enableUdp"`
	EnableTcp                       bool                `json:"enableTcp"`
	PreferUdp                       bool                `json:"preferUdp,omitempty"`
	PreferTcp                       bool                `json:"preferTcp,omitempty"`
	InitialAvailableOutgoingBitrate int                 `json:"initialAvailableOutgoingBitrate,omitempty"`
	EnableSctp                      bool                `json:"enableSctp,omitempty"`
	NumSctpStreams                  NumSctpStreams      `json:"numSctpStreams,omitempty"`
	MaxSctpMessageSize              int                 `json:"maxSctpMessageSize,omitempty"`
	AppData                         interface{}         `json:"-"`
}

type webRtcTransportData struct {
	IceRole          string           `json:"iceRole"`
	IceParameters    IceParameters    `json:"iceParameters"`
	IceCandidates    []IceCandidate   `json:"iceCandidates"`
	IceState         IceState         `json:"iceState"`
	IceSelectedTuple *TransportTuple  `json:"iceSelectedTuple,omitempty"`
	DtlsParameters   DtlsParameters   `json:"dtlsParameters"`
	DtlsState        DtlsState        `json:"dtlsState"`
	SctpParameters   *SctpParameters  `json:"sctpParameters,omitempty"`
	SctpState        SctpState        `json:"sctpState,omitempty"`
}

// WebRtcTransport carries ICE/DTLS/SRTP media to and from one client
// (spec.md §3 "Transport (Webrtc/...)" row).
//
//   - @emits icestatechange - (iceState IceState)
//   - @emits iceselectedtuplechange - (tuple *TransportTuple)
//   - @emits dtlsstatechange - (dtlsState DtlsState)
//   - @emits sctpstatechange - (sctpState SctpState)
//   - @emits trace - (trace *TraceEventData)
type WebRtcTransport struct {
	*Transport
	data webRtcTransportData

	onIceStateChange     func(IceState)
	onDtlsStateChange    func(DtlsState)
	onIceSelectedTuple   func(*TransportTuple)
}

func newWebRtcTransport(internal internalData, data webRtcTransportData, channel *Channel, payload *PayloadChannel, appData interface{}, mis uint16) *WebRtcTransport {
	t := &WebRtcTransport{
		Transport: newTransportBase(internal, channel, payload, mis, "WebRtcTransport"),
		data:      data,
	}
	t.handleNotifications()
	return t
}

func (t *WebRtcTransport) IceParameters() IceParameters { return t.data.IceParameters }
func (t *WebRtcTransport) IceCandidates() []IceCandidate { return t.data.IceCandidates }
func (t *WebRtcTransport) IceState() IceState           { return t.data.IceState }
func (t *WebRtcTransport) DtlsParameters() DtlsParameters { return t.data.DtlsParameters }
func (t *WebRtcTransport) DtlsState() DtlsState         { return t.data.DtlsState }
func (t *WebRtcTransport) SctpState() SctpState         { return t.data.SctpState }
func (t *WebRtcTransport) SctpParameters() *SctpParameters { return t.data.SctpParameters }

func (t *WebRtcTransport) OnIceStateChange(handler func(IceState))   { t.onIceStateChange = handler }
func (t *WebRtcTransport) OnDtlsStateChange(handler func(DtlsState)) { t.onDtlsStateChange = handler }

// Connect provides the client's DTLS parameters, completing the DTLS
// handshake negotiation.
func (t *WebRtcTransport) Connect(dtlsParameters DtlsParameters) error {
	resp := t.channel.Request("transport.connect", t.internal, H{"dtlsParameters": dtlsParameters})
	var result struct {
		DtlsLocalRole string `json:"dtlsLocalRole"`
	}
	return resp.Unmarshal(&result)
}

// RestartIce regenerates ICE username fragment/password and returns them.
func (t *WebRtcTransport) RestartIce() (*IceParameters, error) {
	resp := t.channel.Request("transport.restartIce", t.internal)
	var ice IceParameters
	if err := resp.Unmarshal(&ice); err != nil {
		return nil, err
	}
	t.data.IceParameters = ice
	return &ice, nil
}

// SetMaxIncomingBitrate caps the incoming bitrate this transport will
// accept (best-effort per spec.md §4.7: failure is logged, not fatal).
func (t *WebRtcTransport) SetMaxIncomingBitrate(bitrate int) error {
	resp := t.channel.Request("transport.setMaxIncomingBitrate", t.internal, H{"bitrate": bitrate})
	return resp.Err()
}

// SetMaxOutgoingBitrate caps the outgoing bitrate.
func (t *WebRtcTransport) SetMaxOutgoingBitrate(bitrate int) error {
	resp := t.channel.Request("transport.setMaxOutgoingBitrate", t.internal, H{"bitrate": bitrate})
	return resp.Err()
}

// EnableTraceEvent enables "trace" notifications of the given types.
func (t *WebRtcTransport) EnableTraceEvent(types ...string) error {
	resp := t.channel.Request("transport.enableTraceEvent", t.internal, H{"types": types})
	return resp.Err()
}

func (t *WebRtcTransport) handleNotifications() {
	t.channel.Subscribe(t.Id(), func(event string, data []byte) {
		switch event {
		case "icestatechange":
			var body struct {
				IceState IceState `json:"iceState"`
			}
			if json.Unmarshal(data, &body) == nil {
				t.data.IceState = body.IceState
				t.SafeEmit("icestatechange", body.IceState)
				if t.onIceStateChange != nil {
					t.onIceStateChange(body.IceState)
				}
			}
		case "iceselectedtuplechange":
			var body struct {
				IceSelectedTuple TransportTuple `json:"iceSelectedTuple"`
			}
			if json.Unmarshal(data, &body) == nil {
				t.data.IceSelectedTuple = &body.IceSelectedTuple
				t.SafeEmit("iceselectedtuplechange", &body.IceSelectedTuple)
				if t.onIceSelectedTuple != nil {
					t.onIceSelectedTuple(&body.IceSelectedTuple)
				}
			}
		case "dtlsstatechange":
			var body struct {
				DtlsState DtlsState `json:"dtlsState"`
			}
			if json.Unmarshal(data, &body) == nil {
				t.data.DtlsState = body.DtlsState
				t.SafeEmit("dtlsstatechange", body.DtlsState)
				if t.onDtlsStateChange != nil {
					t.onDtlsStateChange(body.DtlsState)
				}
			}
		// "sctpstatechange" and "trace" are handled by the embedded
		// Transport's own subscription.
		default:
		}
	})
}
