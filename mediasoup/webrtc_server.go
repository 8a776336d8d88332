package mediasoup

import (
	"sync/atomic"

	"github.com/go-logr/logr"
)

// WebRtcServerListenInfo is one ip/port/protocol the WebRtcServer should
// listen on. Unlike a bare WebRtcTransport's per-transport listen ips,
// a WebRtcServer pre-binds a shared pool of sockets that many
// WebRtcTransports can multiplex over (spec.md §4.4 "createWebRtcServer").
type WebRtcServerListenInfo struct {
	Protocol         string `json:"protocol"`
	Ip               string `json:"ip"`
	AnnouncedIp      string `json:"announcedIp,omitempty"`
	Port             uint16 `json:"port,omitempty"`
}

// WebRtcServerOptions configures WebRtcServer creation.
type WebRtcServerOptions struct {
	ListenInfos []WebRtcServerListenInfo `json:"listenInfos"`
	AppData     interface{}              `json:"-"`
}

// WebRtcServer owns a pool of pre-bound ICE/DTLS sockets a Worker's
// WebRtcTransports can share instead of each opening its own (spec.md
// §4.4, §3 data model "Worker" row lists it as a direct child).
//
//   - @emits workerclose
//   - @emits @close
type WebRtcServer struct {
	IEventEmitter
	logger   logr.Logger
	internal internalData
	appData  interface{}
	channel  *Channel
	closed   uint32

	observer IEventEmitter
	onClose  func()
}

func newWebRtcServer(internal internalData, channel *Channel, appData interface{}) *WebRtcServer {
	s := &WebRtcServer{
		IEventEmitter: NewEventEmitter(),
		logger:        NewLogger("WebRtcServer"),
		internal:      internal,
		appData:       appData,
		channel:       channel,
		observer:      NewEventEmitter(),
	}
	s.logger.V(1).Info("constructor()", "internal", internal)
	return s
}

func (s *WebRtcServer) Id() string             { return s.internal.WebRtcServerId }
func (s *WebRtcServer) Closed() bool            { return atomic.LoadUint32(&s.closed) > 0 }
func (s *WebRtcServer) AppData() interface{}    { return s.appData }
func (s *WebRtcServer) Observer() IEventEmitter { return s.observer }
func (s *WebRtcServer) OnClose(handler func())  { s.onClose = handler }

// Close requests worker.closeWebRtcServer and tears the proxy down.
func (s *WebRtcServer) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return nil
	}
	s.logger.V(1).Info("close()")

	resp := s.channel.Request("worker.closeWebRtcServer", s.internal, H{"webRtcServerId": s.internal.WebRtcServerId})
	if err := resp.Err(); err != nil {
		s.logger.Error(err, "webRtcServer close failed")
	}

	s.Emit("@close")
	if s.onClose != nil {
		s.onClose()
	}
	s.RemoveAllListeners()
	s.observer.SafeEmit("close")
	s.observer.RemoveAllListeners()
	return nil
}

func (s *WebRtcServer) workerClosed() {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return
	}
	s.SafeEmit("workerclose")
	if s.onClose != nil {
		s.onClose()
	}
	s.RemoveAllListeners()
	s.observer.SafeEmit("close")
	s.observer.RemoveAllListeners()
}
