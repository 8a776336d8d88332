package protoo

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

// DefaultRequestTimeout is the per-request deadline recommended by
// spec.md §4.6 ("recommended 20-30s").
const DefaultRequestTimeout = 25 * time.Second

type pendingRequest struct {
	resolve chan struct{}
	data    json.RawMessage
	err     error
}

// Peer wraps one client WebSocket connection (spec.md §4.6), owning its
// pending-request table and dispatching incoming envelopes to the
// callbacks a Room installs.
type Peer struct {
	logger logr.Logger
	conn   *websocket.Conn

	writeMu sync.Mutex
	nextId  uint32

	mu      sync.Mutex
	pending map[uint32]*pendingRequest

	closed uint32
	done   chan struct{}

	onRequest      func(*Request)
	onNotification func(method string, data json.RawMessage)
	onClose        func()
}

// NewPeer wraps an already-upgraded WebSocket connection.
func NewPeer(conn *websocket.Conn, logger logr.Logger) *Peer {
	return &Peer{
		logger:  logger,
		conn:    conn,
		pending: make(map[uint32]*pendingRequest),
		done:    make(chan struct{}),
	}
}

// OnRequest installs the handler for inbound {request:true} envelopes.
func (p *Peer) OnRequest(handler func(*Request)) { p.onRequest = handler }

// OnNotification installs the handler for inbound {notification:true}
// envelopes.
func (p *Peer) OnNotification(handler func(method string, data json.RawMessage)) {
	p.onNotification = handler
}

// OnClose installs the handler invoked once, when the Peer closes for any
// reason (socket error, explicit Close, or remote close frame).
func (p *Peer) OnClose(handler func()) { p.onClose = handler }

// Run blocks reading and dispatching envelopes until the socket closes.
// Call it from its own goroutine per accepted connection.
func (p *Peer) Run() {
	defer p.Close()
	for {
		_, payload, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.V(1).Info("read error, closing peer", "error", err.Error())
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			p.logger.Error(err, "received malformed envelope")
			continue
		}
		p.dispatch(env)
	}
}

func (p *Peer) dispatch(env Envelope) {
	switch {
	case env.Request:
		if p.onRequest != nil {
			p.onRequest(&Request{Id: env.Id, Method: env.Method, Data: env.Data, peer: p})
		}
	case env.Response:
		p.mu.Lock()
		pr, ok := p.pending[env.Id]
		if ok {
			delete(p.pending, env.Id)
		}
		p.mu.Unlock()
		if !ok {
			p.logger.V(1).Info("received response for unknown request id, discarding", "id", env.Id)
			return
		}
		if env.Ok {
			pr.data = env.Data
		} else {
			pr.err = &RemoteError{Code: env.ErrorCode, Reason: env.ErrorReason}
		}
		close(pr.resolve)
	case env.Notification:
		if p.onNotification != nil {
			p.onNotification(env.Method, env.Data)
		}
	default:
		p.logger.V(1).Info("received envelope matching no known shape")
	}
}

func (p *Peer) write(payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

// Notify sends a fire-and-forget notification (spec.md §4.6 "notify").
func (p *Peer) Notify(method string, data interface{}) error {
	if p.Closed() {
		return ErrPeerClosed
	}
	payload, err := encodeNotification(method, data)
	if err != nil {
		return err
	}
	return p.write(payload)
}

// Request sends a request envelope and blocks for the matching response
// or timeout (spec.md §4.6 "request... awaits reply").
func (p *Peer) Request(method string, data interface{}, timeout time.Duration) (json.RawMessage, error) {
	if p.Closed() {
		return nil, ErrPeerClosed
	}

	id := p.nextRequestId()
	payload, err := encodeRequest(id, method, data)
	if err != nil {
		return nil, err
	}

	pr := &pendingRequest{resolve: make(chan struct{})}
	p.mu.Lock()
	p.pending[id] = pr
	p.mu.Unlock()

	if err := p.write(payload); err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-pr.resolve:
		return pr.data, pr.err
	case <-timer.C:
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, ErrRequestTimeout
	case <-p.done:
		return nil, ErrPeerClosed
	}
}

func (p *Peer) nextRequestId() uint32 {
	for {
		old := atomic.LoadUint32(&p.nextId)
		next := old + 1
		if next == 0 {
			next = 1
		}
		if atomic.CompareAndSwapUint32(&p.nextId, old, next) {
			return next
		}
	}
}

// Close rejects every pending request and closes the underlying socket
// (spec.md §4.6 "On socket close... mark closed, reject all pending
// requests"). Safe to call more than once.
func (p *Peer) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return nil
	}
	close(p.done)

	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[uint32]*pendingRequest)
	p.mu.Unlock()

	for _, pr := range pending {
		pr.err = ErrPeerClosed
		close(pr.resolve)
	}

	err := p.conn.Close()
	if p.onClose != nil {
		p.onClose()
	}
	return err
}

// Closed reports whether Close has run.
func (p *Peer) Closed() bool { return atomic.LoadUint32(&p.closed) > 0 }

// Done returns a channel closed once the Peer has closed, letting a
// caller select on it alongside other work instead of polling Closed.
func (p *Peer) Done() <-chan struct{} { return p.done }
