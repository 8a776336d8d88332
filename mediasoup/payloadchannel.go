package mediasoup

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// payloadChannelHeader is the JSON header frame that precedes every binary
// payload frame on the PayloadChannel (spec.md §4.3). It doubles as a
// notification header ({targetId, event}), a request header ({id, method,
// handlerId}), and a response header ({id, accepted|error}).
type payloadChannelHeader struct {
	Id        *uint32         `json:"id,omitempty"`
	TargetId  string          `json:"targetId,omitempty"`
	Event     string          `json:"event,omitempty"`
	Method    string          `json:"request,omitempty"`
	HandlerId string          `json:"handlerId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Accepted  bool            `json:"accepted,omitempty"`
	Error     string          `json:"error,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// PayloadChannel is the companion channel for bulk payload notifications
// and requests (e.g. DataProducer messages, Consumer RTP retransmission),
// carrying a (header, payload) pair per logical unit.
type PayloadChannel struct {
	logger  logr.Logger
	writer  *frameWriter
	reader  *frameReader
	writeMu sync.Mutex

	closed  uint32
	nextId  uint32
	mu      sync.Mutex
	pending map[uint32]*pendingRequest

	listenersMu sync.Mutex
	listeners   map[string][]func(event string, data, payload []byte)

	done chan struct{}
}

func NewPayloadChannel(conn io.ReadWriter, maxSize int) *PayloadChannel {
	pc := &PayloadChannel{
		logger:    NewLogger("PayloadChannel"),
		writer:    newFrameWriter(conn, maxSize),
		reader:    newFrameReader(conn, maxSize),
		pending:   make(map[uint32]*pendingRequest),
		listeners: make(map[string][]func(event string, data, payload []byte)),
		done:      make(chan struct{}),
	}
	go pc.readLoop()
	return pc
}

func (pc *PayloadChannel) Subscribe(targetId string, listener func(event string, data, payload []byte)) {
	pc.listenersMu.Lock()
	defer pc.listenersMu.Unlock()
	pc.listeners[targetId] = append(pc.listeners[targetId], listener)
}

func (pc *PayloadChannel) Unsubscribe(targetId string) {
	pc.listenersMu.Lock()
	defer pc.listenersMu.Unlock()
	delete(pc.listeners, targetId)
}

// readLoop enforces the "awaiting payload" invariant of spec.md §4.3: a
// header is never dispatched until its payload frame has also arrived, so
// a partial read of the pair cannot desynchronize the stream.
func (pc *PayloadChannel) readLoop() {
	for {
		headerBytes, err := pc.reader.ReadFrame()
		if err != nil {
			if err != io.EOF {
				pc.logger.Error(err, "header frame read error, closing payload channel")
			}
			pc.Close()
			return
		}

		var header payloadChannelHeader
		if err := json.Unmarshal(headerBytes, &header); err != nil {
			pc.logger.Error(err, "received malformed payload channel header")
			continue
		}

		payload, err := pc.reader.ReadFrame()
		if err != nil {
			if err != io.EOF {
				pc.logger.Error(err, "payload frame read error, closing payload channel")
			}
			pc.Close()
			return
		}

		pc.dispatch(header, payload)
	}
}

func (pc *PayloadChannel) dispatch(header payloadChannelHeader, payload []byte) {
	if header.Id != nil && header.Method == "" {
		pc.mu.Lock()
		pr, ok := pc.pending[*header.Id]
		if ok {
			delete(pc.pending, *header.Id)
		}
		pc.mu.Unlock()

		if !ok {
			pc.logger.V(1).Info("received response for unknown request id, discarding", "id", *header.Id)
			return
		}

		if header.Accepted {
			pr.resp = Response{data: header.Data}
		} else if header.Error != "" {
			pr.resp = Response{err: &workerError{Reason: header.Reason}}
		} else {
			pr.resp = Response{data: []byte("{}")}
		}
		close(pr.resolve)
		return
	}

	pc.listenersMu.Lock()
	targets := append([]func(event string, data, payload []byte){}, pc.listeners[header.TargetId]...)
	pc.listenersMu.Unlock()

	for _, l := range targets {
		l(header.Event, header.Data, payload)
	}
}

// Request sends a (header, payload) request pair and blocks for the
// matching response header.
func (pc *PayloadChannel) Request(method string, internal internalData, data H, payload []byte) *Response {
	if atomic.LoadUint32(&pc.closed) > 0 {
		return &Response{err: ErrChannelClosed}
	}

	id := pc.nextRequestId()

	var encoded json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return &Response{err: err}
		}
		encoded = b
	}

	header := payloadChannelHeader{
		Id:        &id,
		Method:    method,
		HandlerId: handlerIdFor(method, internal),
		Data:      encoded,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return &Response{err: err}
	}

	pr := &pendingRequest{resolve: make(chan struct{})}
	pc.mu.Lock()
	if atomic.LoadUint32(&pc.closed) > 0 {
		pc.mu.Unlock()
		return &Response{err: ErrChannelClosed}
	}
	pc.pending[id] = pr
	pc.mu.Unlock()

	pc.writeMu.Lock()
	err = pc.writer.WriteFrame(headerBytes)
	if err == nil {
		err = pc.writer.WriteFrame(payload)
	}
	pc.writeMu.Unlock()

	if err != nil {
		pc.mu.Lock()
		delete(pc.pending, id)
		pc.mu.Unlock()
		return &Response{err: err}
	}

	select {
	case <-pr.resolve:
		return &pr.resp
	case <-pc.done:
		return &Response{err: ErrChannelClosed}
	}
}

// Notify sends a fire-and-forget (header, payload) pair.
func (pc *PayloadChannel) Notify(targetId, event string, data H, payload []byte) error {
	if atomic.LoadUint32(&pc.closed) > 0 {
		return ErrChannelClosed
	}

	var encoded json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		encoded = b
	}

	header := payloadChannelHeader{TargetId: targetId, Event: event, Data: encoded}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}

	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if err := pc.writer.WriteFrame(headerBytes); err != nil {
		return err
	}
	return pc.writer.WriteFrame(payload)
}

func (pc *PayloadChannel) nextRequestId() uint32 {
	for {
		old := atomic.LoadUint32(&pc.nextId)
		next := old + 1
		if next == 0 {
			next = 1
		}
		if atomic.CompareAndSwapUint32(&pc.nextId, old, next) {
			return next
		}
	}
}

func (pc *PayloadChannel) Close() {
	if !atomic.CompareAndSwapUint32(&pc.closed, 0, 1) {
		return
	}
	close(pc.done)

	pc.mu.Lock()
	pending := pc.pending
	pc.pending = make(map[uint32]*pendingRequest)
	pc.mu.Unlock()

	for _, pr := range pending {
		pr.resp = Response{err: ErrChannelClosed}
		close(pr.resolve)
	}
}

func (pc *PayloadChannel) Closed() bool {
	return atomic.LoadUint32(&pc.closed) > 0
}
