// Package room implements the Room/Peer orchestration layer: one Router
// per room, the set of joined Peers, and the client protocol dispatcher
// described in spec.md §4.7.
package room

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/rainstream/mediasfu/internal/protoo"
	"github.com/rainstream/mediasfu/mediasoup"
)

// CloseGrace is how long an empty Room lingers before actually closing,
// tolerating a reconnect (spec.md §9(c); decision recorded in DESIGN.md).
const CloseGrace = 5 * time.Second

// Room holds one Router and the set of joined Peers, and is the
// dispatcher for client protocol requests (spec.md §4.7). All mutation
// of Room-level state (the peers map) happens on the single goroutine
// started by run(), its "actor": per the concurrency model in spec.md §5,
// a Room is a single-writer actor so producer/consumer fan-out, peer close
// and incoming requests linearise naturally. Per-peer maps are also
// written by the join fan-out goroutines, under each peer's own mutex.
type Room struct {
	id     string
	router *mediasoup.Router
	cfg    Config
	logger logr.Logger

	audioLevel    *mediasoup.AudioLevelObserver
	activeSpeaker *mediasoup.ActiveSpeakerObserver

	actions chan func()
	closed  uint32
	done    chan struct{}

	peers map[string]*peer

	onClose func(id string)
}

// NewRoom creates a Room bound to a fresh Router on worker, and starts
// its actor goroutine. onClose is invoked exactly once, after the Router
// has closed, so the caller (a Registry) can drop the room from its
// index (spec.md §4.9 "Rooms are keyed by roomId in a process-wide map").
func NewRoom(id string, worker *mediasoup.Worker, cfg Config, onClose func(id string)) (*Room, error) {
	router, err := worker.CreateRouter(mediasoup.RouterOptions{MediaCodecs: cfg.MediaCodecs})
	if err != nil {
		return nil, err
	}

	audioLevel, err := router.CreateAudioLevelObserver(mediasoup.AudioLevelObserverOptions{MaxEntries: 1, Threshold: -80, Interval: 800})
	if err != nil {
		router.Close()
		return nil, err
	}

	activeSpeaker, err := router.CreateActiveSpeakerObserver(mediasoup.ActiveSpeakerObserverOptions{Interval: 300})
	if err != nil {
		router.Close()
		return nil, err
	}

	r := &Room{
		id:            id,
		router:        router,
		cfg:           cfg,
		logger:        mediasoup.NewLogger("Room"),
		audioLevel:    audioLevel,
		activeSpeaker: activeSpeaker,
		actions:       make(chan func(), 256),
		done:          make(chan struct{}),
		peers:         make(map[string]*peer),
		onClose:       onClose,
	}

	audioLevel.OnVolumes(func(volumes []mediasoup.AudioLevelObserverVolume) {
		r.submit(func() { r.broadcastActiveSpeaker(volumes) })
	})
	activeSpeaker.OnDominantSpeaker(func(producerId string) {
		r.submit(func() { r.broadcastDominantSpeaker(producerId) })
	})

	go r.run()
	return r, nil
}

func (r *Room) Id() string { return r.id }

func (r *Room) Closed() bool { return atomic.LoadUint32(&r.closed) > 0 }

func (r *Room) run() {
	for task := range r.actions {
		task()
		if r.Closed() {
			return
		}
	}
}

// submit enqueues a task to run on the actor goroutine. Dropped silently
// once the Room has closed: spec.md §9(a)'s AwaitQueue decision is that a
// closed Room simply stops accepting new work rather than leaving it
// half-applied.
func (r *Room) submit(task func()) {
	if r.Closed() {
		return
	}
	select {
	case r.actions <- task:
	case <-r.done:
	}
}

// submitRequest is like submit but rejects the request with 500 if the
// Room is already closed, instead of silently dropping it.
func (r *Room) submitRequest(req *protoo.Request, task func()) {
	if r.Closed() {
		_ = req.Reject(500, ErrRoomClosed.Error())
		return
	}
	select {
	case r.actions <- task:
	case <-r.done:
		_ = req.Reject(500, ErrRoomClosed.Error())
	}
}

// Accept wires a freshly upgraded WebSocket connection into the room as
// peerId, replacing any existing peer with the same id (spec.md §4.7
// "Admission"). The returned protoo.Peer's Run() must be driven by the
// caller (spec.md §4.8's connection-accept path).
func (r *Room) Accept(peerId string, conn *websocket.Conn, logger logr.Logger) *protoo.Peer {
	proto := protoo.NewPeer(conn, logger)
	p := newPeer(peerId, proto)

	proto.OnRequest(func(req *protoo.Request) {
		r.submitRequest(req, func() { r.handleRequest(p, req) })
	})
	proto.OnNotification(func(method string, data json.RawMessage) {
		r.submit(func() { r.handleNotification(p, method, data) })
	})
	proto.OnClose(func() {
		r.submit(func() { r.handlePeerClose(p) })
	})

	r.submit(func() { r.admit(p) })
	return proto
}

func (r *Room) admit(p *peer) {
	if existing := r.peers[p.id]; existing != nil {
		existing.proto.Close()
		delete(r.peers, p.id)
	}
	p.SetConsume(true)
	r.peers[p.id] = p
}

func (r *Room) handleNotification(p *peer, method string, data json.RawMessage) {
	r.logger.V(1).Info("ignoring client notification", "method", method, "peerId", p.id)
}

// handlePeerClose tears the peer down (spec.md §4.7 "Peer close") and, if
// the room becomes empty, schedules the grace-period close.
func (r *Room) handlePeerClose(p *peer) {
	if r.peers[p.id] != p {
		return
	}
	delete(r.peers, p.id)

	if p.Joined() {
		r.notifyOthers(p.id, "peerClosed", map[string]string{"peerId": p.id})
	}
	p.closeTransports()

	if len(r.peers) == 0 {
		time.AfterFunc(CloseGrace, func() {
			r.submit(func() {
				if len(r.peers) == 0 {
					r.doClose()
				}
			})
		})
	}
}

// doClose closes the Router (cascading to every Transport/RtpObserver)
// and notifies the owner to drop this room from its index.
func (r *Room) doClose() {
	if !atomic.CompareAndSwapUint32(&r.closed, 0, 1) {
		return
	}
	close(r.done)
	if r.router != nil {
		_ = r.router.Close()
	}
	if r.onClose != nil {
		r.onClose(r.id)
	}
}

// notifyOthers sends a notification to every joined peer other than
// exceptId.
func (r *Room) notifyOthers(exceptId, method string, data interface{}) {
	for id, p := range r.peers {
		if id == exceptId || !p.Joined() {
			continue
		}
		if err := p.proto.Notify(method, data); err != nil {
			r.logger.Error(err, "notify failed", "peerId", id, "method", method)
		}
	}
}

func (r *Room) broadcastActiveSpeaker(volumes []mediasoup.AudioLevelObserverVolume) {
	if len(volumes) == 0 {
		_ = r.notifyAll("active-speaker", map[string]interface{}{"peerId": nil, "volume": nil})
		return
	}
	top := volumes[0]
	var speakerId string
	for id, p := range r.peers {
		if p.GetProducer(top.ProducerId) != nil {
			speakerId = id
			break
		}
	}
	_ = r.notifyAll("active-speaker", map[string]interface{}{"peerId": speakerId, "volume": top.Volume})
}

// broadcastDominantSpeaker translates an ActiveSpeakerObserver
// "dominantspeaker" event into the same client-facing "active-speaker"
// notification broadcastActiveSpeaker sends (SPEC_FULL.md §3:
// AudioLevelObserver and ActiveSpeakerObserver both feed it).
func (r *Room) broadcastDominantSpeaker(producerId string) {
	var speakerId string
	for id, p := range r.peers {
		if p.GetProducer(producerId) != nil {
			speakerId = id
			break
		}
	}
	if speakerId == "" {
		return
	}
	_ = r.notifyAll("active-speaker", map[string]interface{}{"peerId": speakerId, "volume": nil})
}

func (r *Room) notifyAll(method string, data interface{}) error {
	var firstErr error
	for id, p := range r.peers {
		if !p.Joined() {
			continue
		}
		if err := p.proto.Notify(method, data); err != nil {
			r.logger.Error(err, "notify failed", "peerId", id, "method", method)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PeerCount reports how many peers (joined or not) currently hold a
// connection to this room; used only by tests.
func (r *Room) PeerCount() int {
	done := make(chan int, 1)
	r.submit(func() { done <- len(r.peers) })
	select {
	case n := <-done:
		return n
	case <-r.done:
		return 0
	}
}
