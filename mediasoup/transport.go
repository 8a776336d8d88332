package mediasoup

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// TransportListenIp pairs the IP mediasoup listens on with the IP
// advertised to the remote endpoint (for NAT traversal).
type TransportListenIp struct {
	Ip          string `json:"ip"`
	AnnouncedIp string `json:"announcedIp,omitempty"`
}

// TransportTuple is the local/remote address pair a transport currently
// uses, plus the protocol ("udp"/"tcp").
type TransportTuple struct {
	LocalIp    string `json:"localIp"`
	LocalPort  int    `json:"localPort"`
	RemoteIp   string `json:"remoteIp,omitempty"`
	RemotePort int    `json:"remotePort,omitempty"`
	Protocol   string `json:"protocol"`
}

type IceState string

const (
	IceStateNew          IceState = "new"
	IceStateConnected    IceState = "connected"
	IceStateCompleted    IceState = "completed"
	IceStateDisconnected IceState = "disconnected"
	IceStateClosed       IceState = "closed"
)

type DtlsState string

const (
	DtlsStateNew        DtlsState = "new"
	DtlsStateConnecting DtlsState = "connecting"
	DtlsStateConnected  DtlsState = "connected"
	DtlsStateFailed     DtlsState = "failed"
	DtlsStateClosed     DtlsState = "closed"
)

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Ip         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       int    `json:"port"`
	Type       string `json:"type"`
	TcpType    string `json:"tcpType,omitempty"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DtlsParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

type SrtpParameters struct {
	CryptoSuite string `json:"cryptoSuite"`
	KeyBase64   string `json:"keyBase64"`
}

// TraceEventData is the common payload shape of a Transport "trace" event.
type TraceEventData struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Direction string `json:"direction"`
	Info      H      `json:"info,omitempty"`
}

// ProducerOptions creates a server-side Producer on a Transport.
type ProducerOptions struct {
	Id            string        `json:"id,omitempty"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
	Paused        bool          `json:"paused,omitempty"`
	AppData       interface{}   `json:"-"`
}

// DataProducerOptions creates a server-side DataProducer on a Transport.
type DataProducerOptions struct {
	Id                   string               `json:"id,omitempty"`
	SctpStreamParameters SctpStreamParameters `json:"sctpStreamParameters,omitempty"`
	Label                string               `json:"label,omitempty"`
	Protocol             string               `json:"protocol,omitempty"`
	AppData              interface{}          `json:"-"`
}

// DataConsumerOptions creates a server-side DataConsumer on a Transport.
type DataConsumerOptions struct {
	DataProducerId string      `json:"dataProducerId"`
	Ordered        *bool       `json:"ordered,omitempty"`
	MaxPacketLifeTime int      `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits int         `json:"maxRetransmits,omitempty"`
	AppData        interface{} `json:"-"`
}

// transportData is embedded by every transport subtype as its shared,
// mutable state (spec.md §3 data model "Transport" row). Guarded by the
// owning Transport's mu.
type transportData struct {
	SctpParameters *SctpParameters
	SctpState      SctpState
}

// Transport is the common base every Webrtc/Plain/Pipe/Direct transport
// embeds; it owns Producers/Consumers/DataProducers/DataConsumers and
// cascades their closure (spec.md §3 invariants).
type Transport struct {
	IEventEmitter
	logger   logr.Logger
	internal internalData
	channel  *Channel
	payload  *PayloadChannel
	closed   uint32

	mu            sync.Mutex
	producers     map[string]*Producer
	consumers     map[string]*Consumer
	dataProducers map[string]*DataProducer
	dataConsumers map[string]*DataConsumer

	streamIdPool *sctpStreamIdPool
	state        transportData

	onClose func()
}

func newTransportBase(internal internalData, channel *Channel, payload *PayloadChannel, mis uint16, loggerName string) *Transport {
	t := &Transport{
		IEventEmitter: NewEventEmitter(),
		logger:        NewLogger(loggerName),
		internal:      internal,
		channel:       channel,
		payload:       payload,
		producers:     make(map[string]*Producer),
		consumers:     make(map[string]*Consumer),
		dataProducers: make(map[string]*DataProducer),
		dataConsumers: make(map[string]*DataConsumer),
	}
	if mis > 0 {
		t.streamIdPool = newSctpStreamIdPool(mis)
	}
	t.handleWorkerNotifications()
	return t
}

func (t *Transport) Id() string { return t.internal.TransportId }

func (t *Transport) Closed() bool { return atomic.LoadUint32(&t.closed) > 0 }

// OnClose registers the local-teardown hook the owning Router/Peer uses to
// deregister this transport (mirrors @close in spec.md §9).
func (t *Transport) OnClose(handler func()) { t.onClose = handler }

// GetStats returns transport stats (forwarded verbatim from the worker).
func (t *Transport) GetStats() (json.RawMessage, error) {
	resp := t.channel.Request("transport.getStats", t.internal)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.data, nil
}

func (t *Transport) handleWorkerNotifications() {
	t.channel.Subscribe(t.Id(), func(event string, data []byte) {
		switch event {
		case "sctpstatechange":
			var body struct {
				SctpState SctpState `json:"sctpState"`
			}
			if unmarshalOrLog(t.logger, data, &body) {
				t.mu.Lock()
				t.state.SctpState = body.SctpState
				t.mu.Unlock()
				t.SafeEmit("sctpstatechange", body.SctpState)
			}
		case "trace":
			var trace TraceEventData
			if unmarshalOrLog(t.logger, data, &trace) {
				t.SafeEmit("trace", &trace)
			}
		default:
			t.logger.V(1).Info("ignoring unknown transport notification", "event", event)
		}
	})
}

// Close tears down the transport: cascades to every child, unsubscribes,
// requests router.closeTransport on the worker, and emits @close (spec.md §3
// "Lifecycle").
func (t *Transport) Close() error {
	if !atomic.CompareAndSwapUint32(&t.closed, 0, 1) {
		return nil
	}
	t.logger.V(1).Info("close()")

	t.channel.Unsubscribe(t.Id())
	t.payload.Unsubscribe(t.Id())

	t.closeChildren()

	resp := t.channel.Request("router.closeTransport", t.internal, H{"transportId": t.internal.TransportId})
	if err := resp.Err(); err != nil {
		t.logger.Error(err, "transport close failed")
	}

	t.Emit("@close")
	if t.onClose != nil {
		t.onClose()
	}
	t.RemoveAllListeners()
	return nil
}

// routerClosed tears the transport down without sending a worker request,
// used when the Router drove the close (spec.md §4.5 "parentClosed").
func (t *Transport) routerClosed() {
	if !atomic.CompareAndSwapUint32(&t.closed, 0, 1) {
		return
	}
	t.logger.V(1).Info("routerClosed()")

	t.channel.Unsubscribe(t.Id())
	t.payload.Unsubscribe(t.Id())

	t.closeChildren()

	t.SafeEmit("routerclose")
	if t.onClose != nil {
		t.onClose()
	}
	t.RemoveAllListeners()
}

func (t *Transport) closeChildren() {
	t.mu.Lock()
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	dataProducers := make([]*DataProducer, 0, len(t.dataProducers))
	for _, dp := range t.dataProducers {
		dataProducers = append(dataProducers, dp)
	}
	dataConsumers := make([]*DataConsumer, 0, len(t.dataConsumers))
	for _, dc := range t.dataConsumers {
		dataConsumers = append(dataConsumers, dc)
	}
	t.producers = make(map[string]*Producer)
	t.consumers = make(map[string]*Consumer)
	t.dataProducers = make(map[string]*DataProducer)
	t.dataConsumers = make(map[string]*DataConsumer)
	t.mu.Unlock()

	for _, p := range producers {
		p.transportClosed()
	}
	for _, c := range consumers {
		c.transportClosed()
	}
	for _, dp := range dataProducers {
		dp.transportClosed()
	}
	for _, dc := range dataConsumers {
		dc.transportClosed()
	}
}

// Produce creates a server-side Producer on this transport, paused only
// when opts.Paused is set (the Room always passes false, per spec.md §4.7
// "produce").
func (t *Transport) Produce(opts ProducerOptions) (*Producer, error) {
	if t.Closed() {
		return nil, ErrInvalidState
	}

	id := opts.Id
	if id == "" {
		id = uuid.NewString()
	}

	internal := t.internal
	internal.ProducerId = id

	reqData := H{
		"producerId":    id,
		"kind":          opts.Kind,
		"rtpParameters": opts.RtpParameters,
		"paused":        opts.Paused,
	}

	resp := t.channel.Request("transport.produce", internal, reqData)
	var result struct {
		Type ProducerType `json:"type"`
	}
	if err := resp.Unmarshal(&result); err != nil {
		return nil, err
	}

	producer := newProducer(producerParams{
		internal: internal,
		data: producerData{
			Kind:          opts.Kind,
			RtpParameters: opts.RtpParameters,
			Type:          result.Type,
		},
		channel:  t.channel,
		payload:  t.payload,
		appData:  opts.AppData,
		paused:   opts.Paused,
	})

	t.mu.Lock()
	t.producers[producer.Id()] = producer
	t.mu.Unlock()

	producer.On("@close", func(...interface{}) {
		t.mu.Lock()
		delete(t.producers, producer.Id())
		t.mu.Unlock()
	})

	// Tell the owning Router to index this producer too, so RtpObservers
	// and CanConsume() can resolve it by id (spec.md §4.5/§4.7).
	t.Emit("@newproducer", producer)

	return producer, nil
}

// Consume creates a server-side Consumer on this transport, always paused
// (spec.md §4.5 "Consumer creation rules"), bound to producerId. The
// caller (Room._createConsumer) is responsible for the canConsume() gate
// described in spec.md §4.5; the worker itself computes the Consumer's
// rtpParameters/type/producerPaused from the producer plus the consuming
// endpoint's declared rtpCapabilities.
func (t *Transport) Consume(opts ConsumerOptions) (*Consumer, error) {
	if t.Closed() {
		return nil, ErrInvalidState
	}

	id := uuid.NewString()
	internal := t.internal
	internal.ConsumerId = id
	internal.ProducerId = opts.ProducerId

	reqData := H{
		"producerId":      opts.ProducerId,
		"rtpCapabilities": opts.RtpCapabilities,
		"paused":          true,
	}

	resp := t.channel.Request("transport.consume", internal, reqData)
	var result struct {
		Kind           MediaKind     `json:"kind"`
		RtpParameters  RtpParameters `json:"rtpParameters"`
		Type           ConsumerType  `json:"type"`
		ProducerPaused bool          `json:"producerPaused"`
	}
	if err := resp.Unmarshal(&result); err != nil {
		return nil, err
	}

	consumer := newConsumer(consumerParams{
		internal: internal,
		data: consumerData{
			ProducerId:    opts.ProducerId,
			Kind:          result.Kind,
			Type:          result.Type,
			RtpParameters: result.RtpParameters,
		},
		channel:        t.channel,
		payloadChannel: t.payload,
		appData:        opts.AppData,
		paused:         true,
		producerPaused: result.ProducerPaused,
	})

	t.mu.Lock()
	t.consumers[consumer.Id()] = consumer
	t.mu.Unlock()

	consumer.OnClose(func() {
		t.mu.Lock()
		delete(t.consumers, consumer.Id())
		t.mu.Unlock()
	})

	return consumer, nil
}

// ProduceData creates a server-side DataProducer on this transport.
func (t *Transport) ProduceData(opts DataProducerOptions) (*DataProducer, error) {
	if t.Closed() {
		return nil, ErrInvalidState
	}

	id := opts.Id
	if id == "" {
		id = uuid.NewString()
	}
	internal := t.internal
	internal.DataProducerId = id

	reqData := H{
		"dataProducerId":       id,
		"type":                 "sctp",
		"sctpStreamParameters": opts.SctpStreamParameters,
		"label":                opts.Label,
		"protocol":             opts.Protocol,
	}

	resp := t.channel.Request("transport.produceData", internal, reqData)
	var result struct {
		Type DataProducerType `json:"type"`
	}
	if err := resp.Unmarshal(&result); err != nil {
		return nil, err
	}

	dp := newDataProducer(dataProducerParams{
		internal: internal,
		data: dataProducerData{
			Type:                 result.Type,
			SctpStreamParameters: opts.SctpStreamParameters,
			Label:                opts.Label,
			Protocol:             opts.Protocol,
		},
		channel: t.channel,
		payload: t.payload,
		appData: opts.AppData,
	})

	t.mu.Lock()
	t.dataProducers[dp.Id()] = dp
	t.mu.Unlock()

	dp.On("@close", func(...interface{}) {
		t.mu.Lock()
		delete(t.dataProducers, dp.Id())
		t.mu.Unlock()
	})

	return dp, nil
}

// ConsumeData creates a server-side DataConsumer bound to dataProducerId,
// assigning it the next available SCTP stream id from this transport's
// pool (spec.md §4.5 "Stream-id pool").
func (t *Transport) ConsumeData(opts DataConsumerOptions) (*DataConsumer, error) {
	if t.Closed() {
		return nil, ErrInvalidState
	}

	streamId, err := t.GetNextSctpStreamId()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	internal := t.internal
	internal.DataConsumerId = id
	internal.DataProducerId = opts.DataProducerId

	sctpStreamParameters := SctpStreamParameters{
		StreamId:          streamId,
		Ordered:           opts.Ordered,
		MaxPacketLifeTime: opts.MaxPacketLifeTime,
		MaxRetransmits:    opts.MaxRetransmits,
	}

	reqData := H{
		"dataConsumerId":       id,
		"dataProducerId":       opts.DataProducerId,
		"sctpStreamParameters": sctpStreamParameters,
	}

	resp := t.channel.Request("transport.consumeData", internal, reqData)
	var result struct {
		Type     DataProducerType `json:"type"`
		Label    string           `json:"label"`
		Protocol string           `json:"protocol"`
	}
	if err := resp.Unmarshal(&result); err != nil {
		t.releaseSctpStreamId(streamId)
		return nil, err
	}

	dc := newDataConsumer(dataConsumerParams{
		internal: internal,
		data: dataConsumerData{
			DataProducerId:       opts.DataProducerId,
			Type:                 result.Type,
			SctpStreamParameters: sctpStreamParameters,
			Label:                result.Label,
			Protocol:             result.Protocol,
		},
		channel: t.channel,
		payload: t.payload,
		appData: opts.AppData,
	})

	t.mu.Lock()
	t.dataConsumers[dc.Id()] = dc
	t.mu.Unlock()

	dc.On("@close", func(...interface{}) {
		t.releaseSctpStreamId(streamId)
		t.mu.Lock()
		delete(t.dataConsumers, dc.Id())
		t.mu.Unlock()
	})

	return dc, nil
}

// GetNextSctpStreamId returns the lowest unused SCTP stream id and marks
// it used (spec.md §4.5 "Stream-id pool").
func (t *Transport) GetNextSctpStreamId() (int, error) {
	if t.streamIdPool == nil {
		return 0, &TypeError{Reason: "transport has no SCTP capability"}
	}
	return t.streamIdPool.Acquire()
}

func (t *Transport) releaseSctpStreamId(id int) {
	if t.streamIdPool != nil {
		t.streamIdPool.Release(id)
	}
}

// ConsumerOptions is used by Transport.Consume; Room._createConsumer
// composes this from the consuming peer's declared RtpCapabilities plus
// the target producer's id (spec.md §4.5/§4.7).
type ConsumerOptions struct {
	ProducerId      string
	RtpCapabilities RtpCapabilities
	AppData         interface{}
}

func unmarshalOrLog(logger logr.Logger, data []byte, v interface{}) bool {
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Error(err, "failed to unmarshal notification payload")
		return false
	}
	return true
}
