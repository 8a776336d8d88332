package mediasoup

import (
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// RouterOptions configures Router creation; MediaCodecs seeds the
// worker's supported codec list, from which the worker computes the
// Router's final RtpCapabilities.
type RouterOptions struct {
	MediaCodecs []RtpCodecCapability `json:"mediaCodecs,omitempty"`
	AppData     interface{}          `json:"-"`
}

// Router is the per-room media context inside the worker: it owns
// Transports and RtpObservers, and mediates whether a given
// RtpCapabilities can consume a given Producer (spec.md §3/§4.5).
//
//   - @emits workerclose
//   - @emits @close
type Router struct {
	IEventEmitter
	logger          logr.Logger
	internal        internalData
	rtpCapabilities RtpCapabilities
	appData         interface{}
	channel         *Channel
	payload         *PayloadChannel
	closed          uint32

	mu           sync.Mutex
	transports   map[string]*Transport
	producers    map[string]*Producer
	rtpObservers map[string]*rtpObserver

	observer IEventEmitter
	onClose  func()
}

func newRouter(internal internalData, rtpCapabilities RtpCapabilities, channel *Channel, payload *PayloadChannel, appData interface{}) *Router {
	r := &Router{
		IEventEmitter:   NewEventEmitter(),
		logger:          NewLogger("Router"),
		internal:        internal,
		rtpCapabilities: rtpCapabilities,
		appData:         appData,
		channel:         channel,
		payload:         payload,
		transports:      make(map[string]*Transport),
		producers:       make(map[string]*Producer),
		rtpObservers:    make(map[string]*rtpObserver),
		observer:        NewEventEmitter(),
	}
	r.logger.V(1).Info("constructor()", "internal", internal)
	return r
}

func (r *Router) Id() string                        { return r.internal.RouterId }
func (r *Router) Closed() bool                       { return atomic.LoadUint32(&r.closed) > 0 }
func (r *Router) RtpCapabilities() RtpCapabilities    { return r.rtpCapabilities }
func (r *Router) AppData() interface{}               { return r.appData }
func (r *Router) Observer() IEventEmitter            { return r.observer }
func (r *Router) OnClose(handler func())             { r.onClose = handler }

// GetProducerById returns a tracked Producer, or nil. Used by RtpObservers
// to resolve the producer they're asked to watch.
func (r *Router) GetProducerById(id string) *Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producers[id]
}

// CanConsume reports whether consumerRtpCapabilities is compatible with
// the given producer's negotiated RtpParameters (spec.md §4.5).
func (r *Router) CanConsume(producerId string, consumerRtpCapabilities RtpCapabilities) bool {
	producer := r.GetProducerById(producerId)
	if producer == nil {
		r.logger.V(1).Info("canConsume() | producer not found", "producerId", producerId)
		return false
	}
	return canConsume(producer.RtpParameters(), consumerRtpCapabilities)
}

// Close tears the Router down: cascades to every Transport and
// RtpObserver, then requests worker.closeRouter.
func (r *Router) Close() error {
	if !atomic.CompareAndSwapUint32(&r.closed, 0, 1) {
		return nil
	}
	r.logger.V(1).Info("close()")

	r.closeChildren()

	resp := r.channel.Request("worker.closeRouter", r.internal, H{"routerId": r.internal.RouterId})
	if err := resp.Err(); err != nil {
		r.logger.Error(err, "router close failed")
	}

	r.Emit("@close")
	if r.onClose != nil {
		r.onClose()
	}
	r.RemoveAllListeners()
	r.observer.SafeEmit("close")
	r.observer.RemoveAllListeners()
	return nil
}

func (r *Router) workerClosed() {
	if !atomic.CompareAndSwapUint32(&r.closed, 0, 1) {
		return
	}
	r.closeChildren()
	r.SafeEmit("workerclose")
	if r.onClose != nil {
		r.onClose()
	}
	r.RemoveAllListeners()
	r.observer.SafeEmit("close")
	r.observer.RemoveAllListeners()
}

func (r *Router) closeChildren() {
	r.mu.Lock()
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	observers := make([]*rtpObserver, 0, len(r.rtpObservers))
	for _, o := range r.rtpObservers {
		observers = append(observers, o)
	}
	r.transports = make(map[string]*Transport)
	r.producers = make(map[string]*Producer)
	r.rtpObservers = make(map[string]*rtpObserver)
	r.mu.Unlock()

	for _, t := range transports {
		t.routerClosed()
	}
	for _, o := range observers {
		o.routerClosed()
	}
}

func (r *Router) registerTransport(t *Transport) {
	r.mu.Lock()
	r.transports[t.Id()] = t
	r.mu.Unlock()

	t.On("@close", func(...interface{}) {
		r.mu.Lock()
		delete(r.transports, t.Id())
		r.mu.Unlock()
	})

	// A Producer created on this transport also needs to be discoverable
	// by the Router for canConsume()/RtpObserver lookups.
	t.On("@newproducer", func(args ...interface{}) {
		if len(args) == 1 {
			if p, ok := args[0].(*Producer); ok {
				r.mu.Lock()
				r.producers[p.Id()] = p
				r.mu.Unlock()
				p.On("@close", func(...interface{}) {
					r.mu.Lock()
					delete(r.producers, p.Id())
					r.mu.Unlock()
				})
			}
		}
	})
}

// CreateWebRtcTransport creates a WebRtcTransport on this Router's worker.
func (r *Router) CreateWebRtcTransport(opts WebRtcTransportOptions) (*WebRtcTransport, error) {
	if r.Closed() {
		return nil, ErrInvalidState
	}

	internal := r.internal
	internal.TransportId = uuid.NewString()

	reqData := H{
		"transportId":                      internal.TransportId,
		"listenIps":                        opts.ListenIps,
		"enableUdp":                        opts.EnableUdp,
		"enableTcp":                        opts.EnableTcp,
		"preferUdp":                        opts.PreferUdp,
		"preferTcp":                        opts.PreferTcp,
		"initialAvailableOutgoingBitrate":  opts.InitialAvailableOutgoingBitrate,
		"enableSctp":                       opts.EnableSctp,
		"numSctpStreams":                   opts.NumSctpStreams,
		"maxSctpMessageSize":               opts.MaxSctpMessageSize,
	}

	resp := r.channel.Request("router.createWebRtcTransport", internal, reqData)
	var data webRtcTransportData
	if err := resp.Unmarshal(&data); err != nil {
		return nil, err
	}

	transport := newWebRtcTransport(internal, data, r.channel, r.payload, opts.AppData, opts.NumSctpStreams.MIS)
	r.registerTransport(transport.Transport)
	r.emitNewTransport(transport.Transport)
	return transport, nil
}

// CreatePlainTransport creates a PlainTransport.
func (r *Router) CreatePlainTransport(opts PlainTransportOptions) (*PlainTransport, error) {
	if r.Closed() {
		return nil, ErrInvalidState
	}

	internal := r.internal
	internal.TransportId = uuid.NewString()

	reqData := H{
		"transportId":        internal.TransportId,
		"listenIp":           opts.ListenIp,
		"rtcpMux":            opts.RtcpMux,
		"comedia":            opts.Comedia,
		"enableSctp":         opts.EnableSctp,
		"numSctpStreams":     opts.NumSctpStreams,
		"enableSrtp":         opts.EnableSrtp,
	}

	resp := r.channel.Request("router.createPlainTransport", internal, reqData)
	var data plainTransportData
	if err := resp.Unmarshal(&data); err != nil {
		return nil, err
	}

	transport := newPlainTransport(internal, data, r.channel, r.payload, opts.AppData, opts.NumSctpStreams.MIS)
	r.registerTransport(transport.Transport)
	r.emitNewTransport(transport.Transport)
	return transport, nil
}

// CreatePipeTransport creates a PipeTransport (used for inter-MediaServer
// piping; not currently wired into the client-facing Room protocol, per
// SPEC_FULL.md §3).
func (r *Router) CreatePipeTransport(opts PipeTransportOptions) (*PipeTransport, error) {
	if r.Closed() {
		return nil, ErrInvalidState
	}

	internal := r.internal
	internal.TransportId = uuid.NewString()

	reqData := H{
		"transportId":        internal.TransportId,
		"listenIp":           opts.ListenIp,
		"enableSctp":         opts.EnableSctp,
		"numSctpStreams":     opts.NumSctpStreams,
		"enableRtx":          opts.EnableRtx,
		"enableSrtp":         opts.EnableSrtp,
	}

	resp := r.channel.Request("router.createPipeTransport", internal, reqData)
	var data pipeTransportData
	if err := resp.Unmarshal(&data); err != nil {
		return nil, err
	}

	transport := newPipeTransport(internal, data, r.channel, r.payload, opts.AppData, opts.NumSctpStreams.MIS)
	r.registerTransport(transport.Transport)
	r.emitNewTransport(transport.Transport)
	return transport, nil
}

// CreateDirectTransport creates a DirectTransport (in-process, no RTP
// network transport; used for server-generated media/data).
func (r *Router) CreateDirectTransport(opts DirectTransportOptions) (*DirectTransport, error) {
	if r.Closed() {
		return nil, ErrInvalidState
	}

	internal := r.internal
	internal.TransportId = uuid.NewString()

	reqData := H{
		"transportId":     internal.TransportId,
		"maxMessageSize":  opts.MaxMessageSize,
	}

	resp := r.channel.Request("router.createDirectTransport", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	transport := newDirectTransport(internal, r.channel, r.payload, opts.AppData)
	r.registerTransport(transport.Transport)
	r.emitNewTransport(transport.Transport)
	return transport, nil
}

func (r *Router) emitNewTransport(t *Transport) {
	r.observer.SafeEmit("newtransport", t)
}

// CreateAudioLevelObserver creates an AudioLevelObserver on this Router.
func (r *Router) CreateAudioLevelObserver(opts AudioLevelObserverOptions) (*AudioLevelObserver, error) {
	if r.Closed() {
		return nil, ErrInvalidState
	}

	internal := r.internal
	internal.RtpObserverId = uuid.NewString()

	reqData := H{
		"rtpObserverId": internal.RtpObserverId,
		"maxEntries":    opts.MaxEntries,
		"threshold":     opts.Threshold,
		"interval":      opts.Interval,
	}

	resp := r.channel.Request("router.createAudioLevelObserver", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	observer := newAudioLevelObserver(internal, r.channel, r.payload, opts.AppData, r.GetProducerById)
	r.registerRtpObserver(observer.rtpObserver)
	return observer, nil
}

// CreateActiveSpeakerObserver creates an ActiveSpeakerObserver (supplemented
// feature, SPEC_FULL.md §3).
func (r *Router) CreateActiveSpeakerObserver(opts ActiveSpeakerObserverOptions) (*ActiveSpeakerObserver, error) {
	if r.Closed() {
		return nil, ErrInvalidState
	}

	internal := r.internal
	internal.RtpObserverId = uuid.NewString()

	reqData := H{
		"rtpObserverId": internal.RtpObserverId,
		"interval":      opts.Interval,
	}

	resp := r.channel.Request("router.createActiveSpeakerObserver", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	observer := newActiveSpeakerObserver(internal, r.channel, r.payload, opts.AppData, r.GetProducerById)
	r.registerRtpObserver(observer.rtpObserver)
	return observer, nil
}

func (r *Router) registerRtpObserver(o *rtpObserver) {
	r.mu.Lock()
	r.rtpObservers[o.Id()] = o
	r.mu.Unlock()

	o.On("@close", func(...interface{}) {
		r.mu.Lock()
		delete(r.rtpObservers, o.Id())
		r.mu.Unlock()
	})
}
