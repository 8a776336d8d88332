// Package protoo implements the client-facing WebSocket envelope protocol
// (spec.md §4.8/§6): a request/response/notification JSON wrapper carried
// over the "protoo" (inbound) / "secret-media" (outbound) sub-protocols,
// grounded on gorilla/websocket the way 1ureka-roj1/internal/signaling/ws.go
// wires it.
package protoo

import "encoding/json"

// Envelope is the outer shape every text frame decodes into; exactly one
// of Request/Response/Notification is true (spec.md §6).
type Envelope struct {
	Request      bool            `json:"request,omitempty"`
	Response     bool            `json:"response,omitempty"`
	Notification bool            `json:"notification,omitempty"`
	Id           uint32          `json:"id,omitempty"`
	Method       string          `json:"method,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Ok           bool            `json:"ok,omitempty"`
	ErrorCode    int             `json:"errorCode,omitempty"`
	ErrorReason  string          `json:"errorReason,omitempty"`
}

func encodeRequest(id uint32, method string, data interface{}) ([]byte, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Request: true, Id: id, Method: method, Data: raw})
}

func encodeNotification(method string, data interface{}) ([]byte, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Notification: true, Method: method, Data: raw})
}

func encodeAccept(id uint32, data interface{}) ([]byte, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Response: true, Id: id, Ok: true, Data: raw})
}

func encodeReject(id uint32, code int, reason string) ([]byte, error) {
	return json.Marshal(Envelope{Response: true, Id: id, Ok: false, ErrorCode: code, ErrorReason: reason})
}

func marshalData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(data)
}
