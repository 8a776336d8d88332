package protoo

import "fmt"

// ErrPeerClosed rejects every pending request the instant a Peer closes
// (spec.md §4.6 "On socket close... reject all pending requests").
var ErrPeerClosed = fmt.Errorf("protoo: peer closed")

// ErrRequestTimeout marks a request that received no reply before its
// deadline (spec.md §4.6 "per-request timeout is mandatory").
var ErrRequestTimeout = fmt.Errorf("protoo: request timeout")

// RemoteError wraps an {errorCode, errorReason} response-err envelope
// (spec.md §6).
type RemoteError struct {
	Code   int
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("protoo: remote error %d: %s", e.Code, e.Reason)
}
