package protoo

import (
	"encoding/json"
	"sync/atomic"
)

// Request is one inbound {request:true} envelope, answerable exactly once
// via Accept or Reject (spec.md §4.6 "build a Request object... deliver
// to the Room").
type Request struct {
	Id     uint32
	Method string
	Data   json.RawMessage

	peer      *Peer
	responded uint32
}

// Unmarshal decodes the request's data payload into v.
func (r *Request) Unmarshal(v interface{}) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Accept sends a response-ok envelope. Only the first Accept/Reject call
// has effect.
func (r *Request) Accept(data interface{}) error {
	if !atomic.CompareAndSwapUint32(&r.responded, 0, 1) {
		return nil
	}
	payload, err := encodeAccept(r.Id, data)
	if err != nil {
		return err
	}
	return r.peer.write(payload)
}

// Reject sends a response-err envelope carrying {errorCode, errorReason}
// (spec.md §7 "reject(500, message)" / "unknown request.method").
func (r *Request) Reject(code int, reason string) error {
	if !atomic.CompareAndSwapUint32(&r.responded, 0, 1) {
		return nil
	}
	payload, err := encodeReject(r.Id, code, reason)
	if err != nil {
		return err
	}
	return r.peer.write(payload)
}
