package mediasoup

import (
	"sync/atomic"

	"github.com/go-logr/logr"
)

// RtpObserverAddRemoveProducerOptions identifies the producer an
// RtpObserver should start/stop watching.
type RtpObserverAddRemoveProducerOptions struct {
	ProducerId string `json:"producerId"`
}

// rtpObserver is the shared base of AudioLevelObserver and
// ActiveSpeakerObserver (spec.md §3 "RtpObserver" row / GLOSSARY).
//
//   - @emits routerclose
//   - @emits @close
type rtpObserver struct {
	IEventEmitter
	logger   logr.Logger
	internal internalData
	channel  *Channel
	payload  *PayloadChannel
	appData  interface{}
	paused   bool
	closed   uint32
	observer IEventEmitter

	getProducerById func(string) *Producer

	onClose func()
}

func newRtpObserver(internal internalData, channel *Channel, payload *PayloadChannel, appData interface{}, getProducerById func(string) *Producer, loggerName string) *rtpObserver {
	o := &rtpObserver{
		IEventEmitter:   NewEventEmitter(),
		logger:          NewLogger(loggerName),
		internal:        internal,
		channel:         channel,
		payload:         payload,
		appData:         appData,
		getProducerById: getProducerById,
		observer:        NewEventEmitter(),
	}
	return o
}

func (o *rtpObserver) Id() string             { return o.internal.RtpObserverId }
func (o *rtpObserver) Closed() bool           { return atomic.LoadUint32(&o.closed) > 0 }
func (o *rtpObserver) Paused() bool           { return o.paused }
func (o *rtpObserver) AppData() interface{}   { return o.appData }
func (o *rtpObserver) Observer() IEventEmitter { return o.observer }
func (o *rtpObserver) OnClose(handler func()) { o.onClose = handler }

func (o *rtpObserver) Close() error {
	if !atomic.CompareAndSwapUint32(&o.closed, 0, 1) {
		return nil
	}
	o.logger.V(1).Info("close()")

	o.channel.Unsubscribe(o.Id())

	resp := o.channel.Request("router.closeRtpObserver", o.internal, H{"rtpObserverId": o.internal.RtpObserverId})
	if err := resp.Err(); err != nil {
		o.logger.Error(err, "rtpObserver close failed")
	}

	o.Emit("@close")
	o.RemoveAllListeners()
	o.observer.SafeEmit("close")
	o.observer.RemoveAllListeners()
	if o.onClose != nil {
		o.onClose()
	}
	return nil
}

func (o *rtpObserver) routerClosed() {
	if !atomic.CompareAndSwapUint32(&o.closed, 0, 1) {
		return
	}
	o.channel.Unsubscribe(o.Id())
	o.SafeEmit("routerclose")
	o.RemoveAllListeners()
	o.observer.SafeEmit("close")
	o.observer.RemoveAllListeners()
	if o.onClose != nil {
		o.onClose()
	}
}

func (o *rtpObserver) Pause() error {
	resp := o.channel.Request("rtpObserver.pause", o.internal)
	if err := resp.Err(); err != nil {
		return err
	}
	wasPaused := o.paused
	o.paused = true
	if !wasPaused {
		o.observer.SafeEmit("pause")
	}
	return nil
}

func (o *rtpObserver) Resume() error {
	resp := o.channel.Request("rtpObserver.resume", o.internal)
	if err := resp.Err(); err != nil {
		return err
	}
	wasPaused := o.paused
	o.paused = false
	if wasPaused {
		o.observer.SafeEmit("resume")
	}
	return nil
}

// AddProducer starts watching producerId (spec.md §3 "RtpObserver" row
// "tracks producers by id").
func (o *rtpObserver) AddProducer(producerId string) error {
	resp := o.channel.Request("rtpObserver.addProducer", o.internal, H{"producerId": producerId})
	return resp.Err()
}

// RemoveProducer stops watching producerId.
func (o *rtpObserver) RemoveProducer(producerId string) error {
	resp := o.channel.Request("rtpObserver.removeProducer", o.internal, H{"producerId": producerId})
	return resp.Err()
}
