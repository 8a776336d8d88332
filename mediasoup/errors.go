package mediasoup

import "fmt"

// Error kinds surfaced across the Channel/PayloadChannel/Worker/proxy
// object boundary, per the propagation policy in spec.md §7.
var (
	// ErrChannelClosed is returned by Channel.Request / PayloadChannel.Request
	// once the channel has been closed; every pending request is rejected
	// with this error at the moment of close.
	ErrChannelClosed = fmt.Errorf("mediasoup: channel closed")

	// ErrRequestTimeout is returned by Channel.Request when the worker sends
	// no reply within channelRequestTimeout. Non-recoverable for that call;
	// no retry at this layer.
	ErrRequestTimeout = fmt.Errorf("mediasoup: request timeout")

	// ErrRequestTooBig is returned when an encoded request frame would
	// exceed the configured maximum frame size.
	ErrRequestTooBig = fmt.Errorf("mediasoup: request too big")

	// ErrInvalidState is returned for operations attempted on a closed
	// object.
	ErrInvalidState = fmt.Errorf("mediasoup: invalid state")

	// ErrWorkerDied marks an unexpected worker subprocess exit.
	ErrWorkerDied = fmt.Errorf("mediasoup: worker died")
)

// TypeError wraps a malformed-input error reported either locally or by the
// worker (the worker signals this in its error reply reason).
type TypeError struct {
	Reason string
}

func (e *TypeError) Error() string {
	return "mediasoup: type error: " + e.Reason
}

// WrongSettingsError is raised when the worker subprocess exits with code
// 42 ("wrong settings") during startup.
type WrongSettingsError struct {
	Reason string
}

func (e *WrongSettingsError) Error() string {
	return "mediasoup: wrong settings: " + e.Reason
}

// workerError is the generic, non-typed reply error a worker request can
// fail with (anything that isn't a TypeError).
type workerError struct {
	Reason string
}

func (e *workerError) Error() string {
	return e.Reason
}
