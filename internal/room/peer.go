package room

import (
	"sync"

	"github.com/rainstream/mediasfu/internal/protoo"
	"github.com/rainstream/mediasfu/mediasoup"
)

// peerTransport pairs a WebRtcTransport with the producing/consuming
// flags the Room stored as appData at creation time (spec.md §4.7
// "createWebRtcTransport... stores appData={producing,consuming}").
type peerTransport struct {
	transport *mediasoup.WebRtcTransport
	producing bool
	consuming bool
}

// PeerDevice is the client-reported device info carried on join and
// echoed back in newPeer/peers listings (spec.md §4.7 "join").
type PeerDevice struct {
	Flag    string `json:"flag,omitempty"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// otherPeerInfo is the shape sent in join's reply and in newPeer
// notifications (spec.md §4.7 "the list of other joined peers").
type otherPeerInfo struct {
	Id          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	Device      PeerDevice `json:"device"`
}

// peer is the Room-side bookkeeping record for one connected client
// (spec.md §4.6/§4.7). Request dispatch is serialized by the owning
// Room's actor; the mutex additionally guards the object maps against
// the concurrent _createConsumer fan-out (spec.md §4.7 "join") and
// against worker-notification callbacks, both of which run off-actor.
type peer struct {
	id    string
	proto *protoo.Peer

	mu               sync.Mutex
	joined           bool
	consume          bool
	displayName      string
	device           PeerDevice
	rtpCapabilities  *mediasoup.RtpCapabilities
	sctpCapabilities *mediasoup.SctpCapabilities

	transports    map[string]*peerTransport
	producers     map[string]*mediasoup.Producer
	consumers     map[string]*mediasoup.Consumer
	dataProducers map[string]*mediasoup.DataProducer
	dataConsumers map[string]*mediasoup.DataConsumer
}

func newPeer(id string, proto *protoo.Peer) *peer {
	return &peer{
		id:            id,
		proto:         proto,
		transports:    make(map[string]*peerTransport),
		producers:     make(map[string]*mediasoup.Producer),
		consumers:     make(map[string]*mediasoup.Consumer),
		dataProducers: make(map[string]*mediasoup.DataProducer),
		dataConsumers: make(map[string]*mediasoup.DataConsumer),
	}
}

func (p *peer) Joined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joined
}

func (p *peer) SetConsume(v bool) {
	p.mu.Lock()
	p.consume = v
	p.mu.Unlock()
}

// SetProfile records the join payload (spec.md §4.7 "join... stores
// displayName, device, rtpCapabilities, sctpCapabilities").
func (p *peer) SetProfile(displayName string, device PeerDevice, rtpCaps mediasoup.RtpCapabilities, sctpCaps *mediasoup.SctpCapabilities) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.displayName = displayName
	p.device = device
	p.rtpCapabilities = &rtpCaps
	p.sctpCapabilities = sctpCaps
}

func (p *peer) MarkJoined() {
	p.mu.Lock()
	p.joined = true
	p.mu.Unlock()
}

func (p *peer) SetDisplayName(name string) {
	p.mu.Lock()
	p.displayName = name
	p.mu.Unlock()
}

func (p *peer) RtpCapabilities() *mediasoup.RtpCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rtpCapabilities
}

func (p *peer) info() otherPeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return otherPeerInfo{Id: p.id, DisplayName: p.displayName, Device: p.device}
}

func (p *peer) AddTransport(id string, t *mediasoup.WebRtcTransport, producing, consuming bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transports[id] = &peerTransport{transport: t, producing: producing, consuming: consuming}
}

func (p *peer) GetTransport(id string) *peerTransport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transports[id]
}

// consumingTransport returns a transport this peer created with
// appData.consuming == true (spec.md §4.7 "_createConsumer" step b). When
// several qualify, which one is returned is not defined.
func (p *peer) consumingTransport() *peerTransport {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.transports {
		if t.consuming {
			return t
		}
	}
	return nil
}

// closeTransports cascades Close to every transport the peer owns; each
// Transport.Close already tears down its own producers/consumers.
func (p *peer) closeTransports() {
	p.mu.Lock()
	transports := make([]*peerTransport, 0, len(p.transports))
	for _, t := range p.transports {
		transports = append(transports, t)
	}
	p.transports = make(map[string]*peerTransport)
	p.mu.Unlock()

	for _, t := range transports {
		_ = t.transport.Close()
	}
}

func (p *peer) AddProducer(prod *mediasoup.Producer) {
	p.mu.Lock()
	p.producers[prod.Id()] = prod
	p.mu.Unlock()
}

func (p *peer) GetProducer(id string) *mediasoup.Producer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.producers[id]
}

func (p *peer) RemoveProducer(id string) {
	p.mu.Lock()
	delete(p.producers, id)
	p.mu.Unlock()
}

func (p *peer) Producers() []*mediasoup.Producer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*mediasoup.Producer, 0, len(p.producers))
	for _, prod := range p.producers {
		out = append(out, prod)
	}
	return out
}

func (p *peer) AddConsumer(c *mediasoup.Consumer) {
	p.mu.Lock()
	p.consumers[c.Id()] = c
	p.mu.Unlock()
}

func (p *peer) GetConsumer(id string) *mediasoup.Consumer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumers[id]
}

func (p *peer) RemoveConsumer(id string) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

func (p *peer) AddDataProducer(dp *mediasoup.DataProducer) {
	p.mu.Lock()
	p.dataProducers[dp.Id()] = dp
	p.mu.Unlock()
}

func (p *peer) RemoveDataProducer(id string) {
	p.mu.Lock()
	delete(p.dataProducers, id)
	p.mu.Unlock()
}

func (p *peer) DataProducers() []*mediasoup.DataProducer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*mediasoup.DataProducer, 0, len(p.dataProducers))
	for _, dp := range p.dataProducers {
		out = append(out, dp)
	}
	return out
}

func (p *peer) AddDataConsumer(dc *mediasoup.DataConsumer) {
	p.mu.Lock()
	p.dataConsumers[dc.Id()] = dc
	p.mu.Unlock()
}

func (p *peer) RemoveDataConsumer(id string) {
	p.mu.Lock()
	delete(p.dataConsumers, id)
	p.mu.Unlock()
}

func (p *peer) GetDataConsumer(id string) *mediasoup.DataConsumer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dataConsumers[id]
}
