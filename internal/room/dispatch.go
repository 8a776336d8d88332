package room

import (
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rainstream/mediasfu/internal/protoo"
	"github.com/rainstream/mediasfu/mediasoup"
)

// handleRequest is the client protocol dispatcher (spec.md §4.7). It
// always runs on the Room's actor goroutine.
func (r *Room) handleRequest(p *peer, req *protoo.Request) {
	var err error
	switch req.Method {
	case "getRouterRtpCapabilities":
		err = req.Accept(r.router.RtpCapabilities())
	case "join":
		err = r.onJoin(p, req)
	case "createWebRtcTransport":
		err = r.onCreateWebRtcTransport(p, req)
	case "connectWebRtcTransport":
		err = r.onConnectWebRtcTransport(p, req)
	case "restartIce":
		err = r.onRestartIce(p, req)
	case "produce":
		err = r.onProduce(p, req)
	case "produceData":
		err = r.onProduceData(p, req)
	case "closeProducer":
		err = r.onCloseProducer(p, req)
	case "pauseProducer":
		err = r.onPauseProducer(p, req)
	case "resumeProducer":
		err = r.onResumeProducer(p, req)
	case "pauseConsumer":
		err = r.onPauseConsumer(p, req)
	case "resumeConsumer":
		err = r.onResumeConsumer(p, req)
	case "setConsumerPreferredLayers":
		err = r.onSetConsumerPreferredLayers(p, req)
	case "setConsumerPriority":
		err = r.onSetConsumerPriority(p, req)
	case "requestConsumerKeyFrame":
		err = r.onRequestConsumerKeyFrame(p, req)
	case "changeDisplayName":
		err = r.onChangeDisplayName(p, req)
	case "getTransportStats":
		err = r.onGetTransportStats(p, req)
	case "getProducerStats":
		err = r.onGetProducerStats(p, req)
	case "getConsumerStats":
		err = r.onGetConsumerStats(p, req)
	default:
		err = req.Reject(500, fmt.Sprintf("unknown request.method %s", req.Method))
	}
	if err != nil {
		r.logger.Error(err, "failed writing response", "method", req.Method, "peerId", p.id)
	}
}

func requireJoined(p *peer, req *protoo.Request) bool {
	if !p.Joined() {
		_ = req.Reject(500, "peer not yet joined")
		return false
	}
	return true
}

// onJoin implements spec.md §4.7 "join".
func (r *Room) onJoin(p *peer, req *protoo.Request) error {
	if p.Joined() {
		return req.Reject(500, "peer already joined")
	}

	var body struct {
		DisplayName      string                      `json:"displayName"`
		Device           PeerDevice                  `json:"device"`
		RtpCapabilities  mediasoup.RtpCapabilities    `json:"rtpCapabilities"`
		SctpCapabilities *mediasoup.SctpCapabilities  `json:"sctpCapabilities"`
	}
	if err := req.Unmarshal(&body); err != nil {
		return req.Reject(400, "malformed join request")
	}

	p.SetProfile(body.DisplayName, body.Device, body.RtpCapabilities, body.SctpCapabilities)

	others := make([]otherPeerInfo, 0, len(r.peers))
	for id, other := range r.peers {
		if id == p.id || !other.Joined() {
			continue
		}
		others = append(others, other.info())
	}

	if err := req.Accept(map[string]interface{}{"peers": others}); err != nil {
		return err
	}

	p.MarkJoined()

	// Fan out one _createConsumer/_createDataConsumer per pre-existing
	// peer+producer pair concurrently (spec.md §4.7 "join"): each is an
	// independent round trip to the worker, so they needn't be
	// serialised through the actor one at a time.
	var eg errgroup.Group
	for id, other := range r.peers {
		if id == p.id || !other.Joined() {
			continue
		}
		for _, producer := range other.Producers() {
			other, producer := other, producer
			eg.Go(func() error {
				r.createConsumer(p, other, producer)
				return nil
			})
		}
		for _, dataProducer := range other.DataProducers() {
			other, dataProducer := other, dataProducer
			eg.Go(func() error {
				r.createDataConsumer(p, other, dataProducer)
				return nil
			})
		}
	}
	_ = eg.Wait()

	r.notifyOthers(p.id, "newPeer", p.info())
	return nil
}

// onCreateWebRtcTransport implements spec.md §4.7 "createWebRtcTransport".
func (r *Room) onCreateWebRtcTransport(p *peer, req *protoo.Request) error {
	var body struct {
		ForceTcp         bool                        `json:"forceTcp"`
		Producing        bool                        `json:"producing"`
		Consuming        bool                        `json:"consuming"`
		SctpCapabilities *mediasoup.SctpCapabilities `json:"sctpCapabilities"`
	}
	if err := req.Unmarshal(&body); err != nil {
		return req.Reject(400, "malformed createWebRtcTransport request")
	}

	wcfg := r.cfg.WebRtcConfig
	opts := mediasoup.WebRtcTransportOptions{
		ListenIps:                       wcfg.ListenIps,
		EnableUdp:                       !body.ForceTcp,
		EnableTcp:                       true,
		PreferUdp:                       true,
		InitialAvailableOutgoingBitrate: wcfg.InitialAvailableOutgoingBitrate,
		MaxSctpMessageSize:              wcfg.MaxSctpMessageSize,
		AppData:                         map[string]bool{"producing": body.Producing, "consuming": body.Consuming},
	}
	if body.SctpCapabilities != nil {
		opts.EnableSctp = true
		opts.NumSctpStreams = body.SctpCapabilities.NumStreams
	}

	transport, err := r.router.CreateWebRtcTransport(opts)
	if err != nil {
		return req.Reject(500, err.Error())
	}

	p.AddTransport(transport.Id(), transport, body.Producing, body.Consuming)

	transport.On("sctpstatechange", func(...interface{}) {})
	transport.OnDtlsStateChange(func(mediasoup.DtlsState) {})
	transport.On("trace", func(args ...interface{}) {
		trace, ok := args[0].(*mediasoup.TraceEventData)
		if !ok || trace.Type != "bwe" {
			return
		}
		if err := p.proto.Notify("downlinkBwe", trace.Info); err != nil {
			r.logger.Error(err, "downlinkBwe notify failed", "peerId", p.id)
		}
	})

	if wcfg.MaxIncomingBitrate > 0 {
		if err := transport.SetMaxIncomingBitrate(wcfg.MaxIncomingBitrate); err != nil {
			r.logger.Error(err, "setMaxIncomingBitrate failed", "transportId", transport.Id())
		}
	}

	return req.Accept(map[string]interface{}{
		"id":              transport.Id(),
		"iceParameters":   transport.IceParameters(),
		"iceCandidates":   transport.IceCandidates(),
		"dtlsParameters":  transport.DtlsParameters(),
		"sctpParameters":  transport.SctpParameters(),
	})
}

func (r *Room) onConnectWebRtcTransport(p *peer, req *protoo.Request) error {
	var body struct {
		TransportId    string                    `json:"transportId"`
		DtlsParameters mediasoup.DtlsParameters  `json:"dtlsParameters"`
	}
	if err := req.Unmarshal(&body); err != nil {
		return req.Reject(400, "malformed connectWebRtcTransport request")
	}
	pt := p.GetTransport(body.TransportId)
	if pt == nil {
		return req.Reject(500, "transport not found")
	}
	if err := pt.transport.Connect(body.DtlsParameters); err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(struct{}{})
}

func (r *Room) onRestartIce(p *peer, req *protoo.Request) error {
	var body struct {
		TransportId string `json:"transportId"`
	}
	if err := req.Unmarshal(&body); err != nil {
		return req.Reject(400, "malformed restartIce request")
	}
	pt := p.GetTransport(body.TransportId)
	if pt == nil {
		return req.Reject(500, "transport not found")
	}
	iceParameters, err := pt.transport.RestartIce()
	if err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(iceParameters)
}

// onProduce implements spec.md §4.7 "produce".
func (r *Room) onProduce(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}

	var body struct {
		TransportId   string                   `json:"transportId"`
		Kind          mediasoup.MediaKind      `json:"kind"`
		RtpParameters mediasoup.RtpParameters  `json:"rtpParameters"`
		AppData       map[string]interface{}   `json:"appData"`
	}
	if err := req.Unmarshal(&body); err != nil {
		return req.Reject(400, "malformed produce request")
	}
	pt := p.GetTransport(body.TransportId)
	if pt == nil {
		return req.Reject(500, "transport not found")
	}

	appData := body.AppData
	if appData == nil {
		appData = map[string]interface{}{}
	}
	appData["peerId"] = p.id

	producer, err := pt.transport.Produce(mediasoup.ProducerOptions{
		Kind:          body.Kind,
		RtpParameters: body.RtpParameters,
		Paused:        false,
		AppData:       appData,
	})
	if err != nil {
		return req.Reject(500, err.Error())
	}

	p.AddProducer(producer)

	producer.OnScore(func(score []*mediasoup.ProducerScore) {
		r.submit(func() {
			if err := p.proto.Notify("producerScore", map[string]interface{}{"producerId": producer.Id(), "score": score}); err != nil {
				r.logger.Error(err, "producerScore notify failed")
			}
		})
	})
	producer.On("videoorientationchange", func(...interface{}) {
		r.logger.V(1).Info("videoorientationchange", "producerId", producer.Id())
	})
	producer.On("trace", func(...interface{}) {
		r.logger.V(1).Info("producer trace event", "producerId", producer.Id())
	})
	producer.On("@close", func(...interface{}) {
		r.submit(func() { p.RemoveProducer(producer.Id()) })
	})

	if err := req.Accept(map[string]string{"id": producer.Id()}); err != nil {
		return err
	}

	for id, other := range r.peers {
		if id == p.id || !other.Joined() {
			continue
		}
		r.createConsumer(other, p, producer)
	}

	if producer.Kind() == mediasoup.MediaKindAudio {
		if err := r.audioLevel.AddProducer(producer.Id()); err != nil {
			r.logger.Error(err, "audioLevel.AddProducer failed", "producerId", producer.Id())
		}
		if err := r.activeSpeaker.AddProducer(producer.Id()); err != nil {
			r.logger.Error(err, "activeSpeaker.AddProducer failed", "producerId", producer.Id())
		}
	}

	return nil
}

// createConsumer implements spec.md §4.7 "_createConsumer".
func (r *Room) createConsumer(consumerPeer, producerPeer *peer, producer *mediasoup.Producer) {
	rtpCaps := consumerPeer.RtpCapabilities()
	if rtpCaps == nil || !r.router.CanConsume(producer.Id(), *rtpCaps) {
		return
	}

	pt := consumerPeer.consumingTransport()
	if pt == nil {
		r.logger.V(1).Info("_createConsumer: no consuming transport", "peerId", consumerPeer.id)
		return
	}

	consumer, err := pt.transport.Consume(mediasoup.ConsumerOptions{
		ProducerId:      producer.Id(),
		RtpCapabilities: *rtpCaps,
		AppData:         producer.AppData(),
	})
	if err != nil {
		r.logger.Error(err, "_createConsumer failed", "peerId", consumerPeer.id, "producerId", producer.Id())
		return
	}

	consumerPeer.AddConsumer(consumer)

	consumer.OnTransportClose(func() {
		r.submit(func() { consumerPeer.RemoveConsumer(consumer.Id()) })
	})
	consumer.OnProducerClose(func() {
		r.submit(func() {
			consumerPeer.RemoveConsumer(consumer.Id())
			_ = consumerPeer.proto.Notify("consumerClosed", map[string]string{"consumerId": consumer.Id()})
		})
	})
	consumer.OnProducerPause(func() {
		r.submit(func() {
			_ = consumerPeer.proto.Notify("consumerPaused", map[string]string{"consumerId": consumer.Id()})
		})
	})
	consumer.OnProducerResume(func() {
		r.submit(func() {
			_ = consumerPeer.proto.Notify("consumerResumed", map[string]string{"consumerId": consumer.Id()})
		})
	})
	consumer.OnScore(func(score *mediasoup.ConsumerScore) {
		r.submit(func() {
			_ = consumerPeer.proto.Notify("consumerScore", map[string]interface{}{"consumerId": consumer.Id(), "score": score})
		})
	})
	consumer.OnLayersChange(func(layers *mediasoup.ConsumerLayers) {
		r.submit(func() {
			payload := map[string]interface{}{"consumerId": consumer.Id()}
			if layers != nil {
				payload["spatialLayer"] = layers.SpatialLayer
				payload["temporalLayer"] = layers.TemporalLayer
			} else {
				payload["spatialLayer"] = nil
				payload["temporalLayer"] = nil
			}
			_ = consumerPeer.proto.Notify("consumerLayersChanged", payload)
		})
	})
	consumer.OnTrace(func(*mediasoup.TraceEventData) {
		r.logger.V(1).Info("consumer trace event", "consumerId", consumer.Id())
	})

	_, err = consumerPeer.proto.Request("newConsumer", map[string]interface{}{
		"peerId":         producerPeer.id,
		"producerId":     producer.Id(),
		"id":             consumer.Id(),
		"kind":           consumer.Kind(),
		"rtpParameters":  consumer.RtpParameters(),
		"type":           consumer.Type(),
		"appData":        producer.AppData(),
		"producerPaused": consumer.ProducerPaused(),
	}, protoo.DefaultRequestTimeout)
	if err != nil {
		r.logger.Error(err, "_createConsumer failed: newConsumer rejected", "consumerId", consumer.Id())
		_ = consumer.Close()
		return
	}

	if err := consumer.Resume(); err != nil {
		r.logger.Error(err, "_createConsumer failed: resume", "consumerId", consumer.Id())
		return
	}
	_ = consumerPeer.proto.Notify("consumerScore", map[string]interface{}{"consumerId": consumer.Id(), "score": consumer.Score()})
}

func (r *Room) onProduceData(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	var body struct {
		TransportId          string                         `json:"transportId"`
		SctpStreamParameters mediasoup.SctpStreamParameters `json:"sctpStreamParameters"`
		Label                string                         `json:"label"`
		Protocol              string                        `json:"protocol"`
	}
	if err := req.Unmarshal(&body); err != nil {
		return req.Reject(400, "malformed produceData request")
	}
	pt := p.GetTransport(body.TransportId)
	if pt == nil {
		return req.Reject(500, "transport not found")
	}

	dataProducer, err := pt.transport.ProduceData(mediasoup.DataProducerOptions{
		SctpStreamParameters: body.SctpStreamParameters,
		Label:                body.Label,
		Protocol:             body.Protocol,
		AppData:              map[string]interface{}{"peerId": p.id},
	})
	if err != nil {
		return req.Reject(500, err.Error())
	}
	p.AddDataProducer(dataProducer)
	dataProducer.OnClose(func() {
		r.submit(func() { p.RemoveDataProducer(dataProducer.Id()) })
	})

	if err := req.Accept(map[string]string{"id": dataProducer.Id()}); err != nil {
		return err
	}

	for id, other := range r.peers {
		if id == p.id || !other.Joined() {
			continue
		}
		r.createDataConsumer(other, p, dataProducer)
	}
	return nil
}

// createDataConsumer is the DataProducer/DataConsumer analogue of
// _createConsumer (spec.md §9's "future extension", implemented here).
func (r *Room) createDataConsumer(consumerPeer, producerPeer *peer, dataProducer *mediasoup.DataProducer) {
	pt := consumerPeer.consumingTransport()
	if pt == nil {
		return
	}
	dataConsumer, err := pt.transport.ConsumeData(mediasoup.DataConsumerOptions{DataProducerId: dataProducer.Id()})
	if err != nil {
		r.logger.Error(err, "_createDataConsumer failed", "peerId", consumerPeer.id)
		return
	}
	consumerPeer.AddDataConsumer(dataConsumer)
	dataConsumer.OnClose(func() {
		r.submit(func() { consumerPeer.RemoveDataConsumer(dataConsumer.Id()) })
	})
	dataConsumer.OnDataProducerClose(func() {
		r.submit(func() { consumerPeer.RemoveDataConsumer(dataConsumer.Id()) })
	})

	_ = consumerPeer.proto.Notify("newDataConsumer", map[string]interface{}{
		"peerId":         producerPeer.id,
		"dataProducerId": dataProducer.Id(),
		"id":             dataConsumer.Id(),
		"label":          dataConsumer.Label(),
		"protocol":       dataConsumer.Protocol(),
	})
}

func (r *Room) onCloseProducer(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	id, ok := stringField(req, "producerId")
	if !ok {
		return req.Reject(400, "malformed closeProducer request")
	}
	producer := p.GetProducer(id)
	if producer == nil {
		return req.Reject(500, "producer not found")
	}
	if err := producer.Close(); err != nil {
		return req.Reject(500, err.Error())
	}
	p.RemoveProducer(id)
	return req.Accept(struct{}{})
}

func (r *Room) onPauseProducer(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	id, ok := stringField(req, "producerId")
	if !ok {
		return req.Reject(400, "malformed pauseProducer request")
	}
	producer := p.GetProducer(id)
	if producer == nil {
		return req.Reject(500, "producer not found")
	}
	if err := producer.Pause(); err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(struct{}{})
}

func (r *Room) onResumeProducer(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	id, ok := stringField(req, "producerId")
	if !ok {
		return req.Reject(400, "malformed resumeProducer request")
	}
	producer := p.GetProducer(id)
	if producer == nil {
		return req.Reject(500, "producer not found")
	}
	if err := producer.Resume(); err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(struct{}{})
}

func (r *Room) onPauseConsumer(p *peer, req *protoo.Request) error {
	consumer, ok := r.lookupConsumer(p, req)
	if !ok {
		return nil
	}
	if err := consumer.Pause(); err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(struct{}{})
}

func (r *Room) onResumeConsumer(p *peer, req *protoo.Request) error {
	consumer, ok := r.lookupConsumer(p, req)
	if !ok {
		return nil
	}
	if err := consumer.Resume(); err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(struct{}{})
}

func (r *Room) onSetConsumerPreferredLayers(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	var body struct {
		ConsumerId    string `json:"consumerId"`
		SpatialLayer  uint8  `json:"spatialLayer"`
		TemporalLayer uint8  `json:"temporalLayer"`
	}
	if err := req.Unmarshal(&body); err != nil {
		return req.Reject(400, "malformed setConsumerPreferredLayers request")
	}
	consumer := p.GetConsumer(body.ConsumerId)
	if consumer == nil {
		return req.Reject(500, "consumer not found")
	}
	layers := mediasoup.ConsumerLayers{SpatialLayer: body.SpatialLayer, TemporalLayer: body.TemporalLayer}
	if err := consumer.SetPreferredLayers(layers); err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(struct{}{})
}

func (r *Room) onSetConsumerPriority(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	var body struct {
		ConsumerId string `json:"consumerId"`
		Priority   uint32 `json:"priority"`
	}
	if err := req.Unmarshal(&body); err != nil {
		return req.Reject(400, "malformed setConsumerPriority request")
	}
	consumer := p.GetConsumer(body.ConsumerId)
	if consumer == nil {
		return req.Reject(500, "consumer not found")
	}
	if err := consumer.SetPriority(body.Priority); err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(struct{}{})
}

func (r *Room) onRequestConsumerKeyFrame(p *peer, req *protoo.Request) error {
	consumer, ok := r.lookupConsumer(p, req)
	if !ok {
		return nil
	}
	if err := consumer.RequestKeyFrame(); err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(struct{}{})
}

func (r *Room) onChangeDisplayName(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	displayName, ok := stringField(req, "displayName")
	if !ok {
		return req.Reject(400, "malformed changeDisplayName request")
	}
	p.SetDisplayName(displayName)
	if err := req.Accept(struct{}{}); err != nil {
		return err
	}
	r.notifyOthers(p.id, "peerDisplayNameChanged", map[string]string{"peerId": p.id, "displayName": displayName})
	return nil
}

func (r *Room) onGetTransportStats(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	id, ok := stringField(req, "transportId")
	if !ok {
		return req.Reject(400, "malformed getTransportStats request")
	}
	pt := p.GetTransport(id)
	if pt == nil {
		return req.Reject(500, "transport not found")
	}
	stats, err := pt.transport.GetStats()
	if err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(stats)
}

func (r *Room) onGetProducerStats(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	id, ok := stringField(req, "producerId")
	if !ok {
		return req.Reject(400, "malformed getProducerStats request")
	}
	producer := p.GetProducer(id)
	if producer == nil {
		return req.Reject(500, "producer not found")
	}
	stats, err := producer.GetStats()
	if err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(stats)
}

func (r *Room) onGetConsumerStats(p *peer, req *protoo.Request) error {
	if !requireJoined(p, req) {
		return nil
	}
	id, ok := stringField(req, "consumerId")
	if !ok {
		return req.Reject(400, "malformed getConsumerStats request")
	}
	consumer := p.GetConsumer(id)
	if consumer == nil {
		return req.Reject(500, "consumer not found")
	}
	stats, err := consumer.GetStats()
	if err != nil {
		return req.Reject(500, err.Error())
	}
	return req.Accept(stats)
}

func (r *Room) lookupConsumer(p *peer, req *protoo.Request) (*mediasoup.Consumer, bool) {
	if !requireJoined(p, req) {
		return nil, false
	}
	id, ok := stringField(req, "consumerId")
	if !ok {
		_ = req.Reject(400, "malformed request")
		return nil, false
	}
	consumer := p.GetConsumer(id)
	if consumer == nil {
		_ = req.Reject(500, "consumer not found")
		return nil, false
	}
	return consumer, true
}

func stringField(req *protoo.Request, field string) (string, bool) {
	var body map[string]json.RawMessage
	if err := req.Unmarshal(&body); err != nil {
		return "", false
	}
	raw, ok := body[field]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}
