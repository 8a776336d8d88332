package mediasoup

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// Response is the resolved/rejected outcome of a Channel.Request, mirroring
// the teacher's pattern of a value object with Err()/Unmarshal() helpers
// instead of a bare (json.RawMessage, error) pair.
type Response struct {
	data []byte
	err  error
}

// Err returns the request's terminal error, if any.
func (r *Response) Err() error { return r.err }

// Unmarshal decodes the successful response's data into v. If the request
// failed, the original error is returned instead.
func (r *Response) Unmarshal(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(r.data) == 0 {
		return nil
	}
	return json.Unmarshal(r.data, v)
}

type pendingRequest struct {
	resolve chan struct{}
	resp    Response
}

type notificationFrame struct {
	TargetId string          `json:"targetId"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type responseFrame struct {
	Id       uint32          `json:"id"`
	Accepted bool            `json:"accepted,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Channel is the bidirectional request/response+notification carrier over
// the worker control socket's length-prefixed frame codec (spec.md §4.2).
type Channel struct {
	logger  logr.Logger
	writer  *frameWriter
	reader  *frameReader
	closed  uint32
	nextId  uint32
	mu      sync.Mutex
	pending map[uint32]*pendingRequest

	listenersMu sync.Mutex
	listeners   map[string][]func(event string, data []byte)

	done chan struct{}
}

// NewChannel wraps an already-connected full-duplex worker socket (or an
// in-library pipe emulating one) in the Channel protocol.
func NewChannel(conn io.ReadWriter, maxSize int) *Channel {
	c := &Channel{
		logger:    NewLogger("Channel"),
		writer:    newFrameWriter(conn, maxSize),
		reader:    newFrameReader(conn, maxSize),
		pending:   make(map[uint32]*pendingRequest),
		listeners: make(map[string][]func(event string, data []byte)),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Subscribe registers a notification listener under targetId (typically
// the owning proxy object's own id).
func (c *Channel) Subscribe(targetId string, listener func(event string, data []byte)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[targetId] = append(c.listeners[targetId], listener)
}

// Unsubscribe removes every listener registered under targetId.
func (c *Channel) Unsubscribe(targetId string) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.listeners, targetId)
}

func (c *Channel) readLoop() {
	for {
		payload, err := c.reader.ReadFrame()
		if err != nil {
			if err != io.EOF {
				c.logger.Error(err, "frame read error, closing channel")
			}
			c.Close()
			return
		}
		if len(payload) == 0 {
			continue
		}
		c.handleFrame(payload)
	}
}

func (c *Channel) handleFrame(payload []byte) {
	var probe struct {
		Id *uint32 `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		c.logger.Error(err, "received malformed frame", "payload", string(payload))
		return
	}

	if probe.Id != nil {
		var resp responseFrame
		if err := json.Unmarshal(payload, &resp); err != nil {
			c.logger.Error(err, "failed to decode response frame")
			return
		}

		c.mu.Lock()
		pr, ok := c.pending[resp.Id]
		if ok {
			delete(c.pending, resp.Id)
		}
		c.mu.Unlock()

		if !ok {
			c.logger.V(1).Info("received response for unknown request id, discarding", "id", resp.Id)
			return
		}

		if resp.Accepted {
			pr.resp = Response{data: resp.Data}
		} else if resp.Error != "" {
			if resp.Error == "TypeError" {
				pr.resp = Response{err: &TypeError{Reason: resp.Reason}}
			} else {
				pr.resp = Response{err: &workerError{Reason: resp.Reason}}
			}
		} else {
			pr.resp = Response{data: []byte("{}")}
		}
		close(pr.resolve)
		return
	}

	var notif notificationFrame
	if err := json.Unmarshal(payload, &notif); err != nil {
		c.logger.Error(err, "failed to decode notification frame")
		return
	}

	c.listenersMu.Lock()
	targets := append([]func(event string, data []byte){}, c.listeners[notif.TargetId]...)
	c.listenersMu.Unlock()

	for _, l := range targets {
		l(notif.Event, notif.Data)
	}
}

// handlerIdFor derives the worker-side routing id for method, following
// the "<parent>.<op>" naming scheme of spec.md §4.5.
func handlerIdFor(method string, internal internalData) string {
	prefix := method
	if i := strings.IndexByte(method, '.'); i >= 0 {
		prefix = method[:i]
	}
	switch prefix {
	case "worker":
		return ""
	case "webRtcServer":
		return internal.WebRtcServerId
	case "router":
		return internal.RouterId
	case "transport":
		return internal.TransportId
	case "producer":
		return internal.ProducerId
	case "consumer":
		return internal.ConsumerId
	case "dataProducer":
		return internal.DataProducerId
	case "dataConsumer":
		return internal.DataConsumerId
	case "rtpObserver":
		return internal.RtpObserverId
	default:
		return ""
	}
}

// channelRequestTimeout bounds how long Channel.Request waits for a reply.
const channelRequestTimeout = 25 * time.Second

// Request sends method (optionally with a single data payload) and blocks
// until the worker replies, the channel closes, or channelRequestTimeout
// elapses (ErrRequestTimeout).
func (c *Channel) Request(method string, internal internalData, data ...H) *Response {
	if atomic.LoadUint32(&c.closed) > 0 {
		return &Response{err: ErrChannelClosed}
	}

	id := c.nextRequestId()
	handlerId := handlerIdFor(method, internal)

	handlerPart := "undefined"
	if handlerId != "" {
		handlerPart = handlerId
	}

	dataPart := "undefined"
	if len(data) > 0 && data[0] != nil {
		encoded, err := json.Marshal(data[0])
		if err != nil {
			return &Response{err: err}
		}
		dataPart = string(encoded)
	}

	request := fmt.Sprintf("%d:%s:%s:%s", id, method, handlerPart, dataPart)

	pr := &pendingRequest{resolve: make(chan struct{})}

	c.mu.Lock()
	if atomic.LoadUint32(&c.closed) > 0 {
		c.mu.Unlock()
		return &Response{err: ErrChannelClosed}
	}
	c.pending[id] = pr
	c.mu.Unlock()

	if err := c.writer.WriteFrame([]byte(request)); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if err == ErrRequestTooBig {
			return &Response{err: ErrRequestTooBig}
		}
		return &Response{err: err}
	}

	timer := time.NewTimer(channelRequestTimeout)
	defer timer.Stop()

	select {
	case <-pr.resolve:
		return &pr.resp
	case <-c.done:
		return &Response{err: ErrChannelClosed}
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return &Response{err: ErrRequestTimeout}
	}
}

func (c *Channel) nextRequestId() uint32 {
	for {
		old := atomic.LoadUint32(&c.nextId)
		next := old + 1
		if next == 0 {
			// old was 2^32-1; wrap to 1, never 0 (spec.md invariant).
			next = 1
		}
		if atomic.CompareAndSwapUint32(&c.nextId, old, next) {
			return next
		}
	}
}

// Close marks the channel closed and rejects every pending request with
// ErrChannelClosed (spec.md §4.2 "Failure").
func (c *Channel) Close() {
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return
	}
	close(c.done)

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*pendingRequest)
	c.mu.Unlock()

	for _, pr := range pending {
		pr.resp = Response{err: ErrChannelClosed}
		close(pr.resolve)
	}
}

// Closed reports whether Close has run.
func (c *Channel) Closed() bool {
	return atomic.LoadUint32(&c.closed) > 0
}
