package mediasoup

import (
	"sync/atomic"

	"github.com/go-logr/logr"
)

// DataProducerType distinguishes an SCTP-backed DataProducer from a
// direct-transport one that forwards messages without SCTP framing
// (spec.md §3 "DataProducer" row).
type DataProducerType string

const (
	DataProducerTypeSctp   DataProducerType = "sctp"
	DataProducerTypeDirect DataProducerType = "direct"
)

type dataProducerData struct {
	Type                 DataProducerType     `json:"type,omitempty"`
	SctpStreamParameters SctpStreamParameters `json:"sctpStreamParameters,omitempty"`
	Label                string               `json:"label,omitempty"`
	Protocol             string               `json:"protocol,omitempty"`
}

type dataProducerParams struct {
	internal internalData
	data     dataProducerData
	channel  *Channel
	payload  *PayloadChannel
	appData  interface{}
}

// DataProducer is the SCTP (DataChannel) analogue of Producer.
//
//   - @emits transportclose
//   - @emits @close
type DataProducer struct {
	IEventEmitter
	logger   logr.Logger
	internal internalData
	data     dataProducerData
	channel  *Channel
	payload  *PayloadChannel
	appData  interface{}
	closed   uint32
	observer IEventEmitter

	onClose func()
}

func newDataProducer(params dataProducerParams) *DataProducer {
	dp := &DataProducer{
		IEventEmitter: NewEventEmitter(),
		logger:        NewLogger("DataProducer"),
		internal:      params.internal,
		data:          params.data,
		channel:       params.channel,
		payload:       params.payload,
		appData:       params.appData,
		observer:      NewEventEmitter(),
	}
	dp.handleWorkerNotifications()
	return dp
}

func (dp *DataProducer) Id() string     { return dp.internal.DataProducerId }
func (dp *DataProducer) Closed() bool   { return atomic.LoadUint32(&dp.closed) > 0 }
func (dp *DataProducer) Label() string  { return dp.data.Label }
func (dp *DataProducer) Protocol() string { return dp.data.Protocol }
func (dp *DataProducer) AppData() interface{} { return dp.appData }
func (dp *DataProducer) OnClose(handler func()) { dp.onClose = handler }

func (dp *DataProducer) Close() error {
	if !atomic.CompareAndSwapUint32(&dp.closed, 0, 1) {
		return nil
	}
	dp.logger.V(1).Info("close()")

	dp.channel.Unsubscribe(dp.Id())
	dp.payload.Unsubscribe(dp.Id())

	resp := dp.channel.Request("transport.closeDataProducer", dp.internal, H{"dataProducerId": dp.internal.DataProducerId})
	if err := resp.Err(); err != nil {
		dp.logger.Error(err, "dataProducer close failed")
	}

	dp.Emit("@close")
	dp.RemoveAllListeners()
	dp.close()
	return nil
}

func (dp *DataProducer) close() {
	dp.observer.SafeEmit("close")
	dp.observer.RemoveAllListeners()
	if dp.onClose != nil {
		dp.onClose()
	}
}

func (dp *DataProducer) transportClosed() {
	if !atomic.CompareAndSwapUint32(&dp.closed, 0, 1) {
		return
	}
	dp.logger.V(1).Info("transportClosed()")

	dp.channel.Unsubscribe(dp.Id())
	dp.payload.Unsubscribe(dp.Id())

	dp.SafeEmit("transportclose")
	dp.RemoveAllListeners()
	dp.close()
}

// Send forwards a message (SCTP DataChannel payload) to the worker over
// the PayloadChannel, per spec.md §4.3.
func (dp *DataProducer) Send(payload []byte, ppid int) error {
	resp := dp.payload.Request("dataProducer.send", dp.internal, H{"ppid": ppid}, payload)
	return resp.Err()
}

func (dp *DataProducer) handleWorkerNotifications() {
	dp.channel.Subscribe(dp.Id(), func(event string, data []byte) {
		dp.logger.V(1).Info("ignoring unknown event in channel listener", "event", event)
	})
}
