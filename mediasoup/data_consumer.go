package mediasoup

import (
	"encoding/json"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/pion/sctp"
)

type dataConsumerData struct {
	DataProducerId       string               `json:"dataProducerId,omitempty"`
	Type                 DataProducerType     `json:"type,omitempty"`
	SctpStreamParameters SctpStreamParameters `json:"sctpStreamParameters,omitempty"`
	Label                string               `json:"label,omitempty"`
	Protocol             string               `json:"protocol,omitempty"`
}

type dataConsumerParams struct {
	internal internalData
	data     dataConsumerData
	channel  *Channel
	payload  *PayloadChannel
	appData  interface{}
}

// DataConsumer is the SCTP (DataChannel) analogue of Consumer.
//
//   - @emits transportclose
//   - @emits dataproducerclose
//   - @emits message - (payload []byte, ppid int)
//   - @emits sctpsendbufferfull
//   - @emits bufferedamountlow - (bufferedAmount uint32)
//   - @emits @close
//   - @emits @dataproducerclose
type DataConsumer struct {
	IEventEmitter
	logger         logr.Logger
	internal       internalData
	data           dataConsumerData
	channel        *Channel
	payload        *PayloadChannel
	appData        interface{}
	closed         uint32
	bufferedAmount uint32
	observer       IEventEmitter

	onClose            func()
	onDataProducerClose func()
	onMessage          func(payload []byte, ppid int)
}

func newDataConsumer(params dataConsumerParams) *DataConsumer {
	dc := &DataConsumer{
		IEventEmitter: NewEventEmitter(),
		logger:        NewLogger("DataConsumer"),
		internal:      params.internal,
		data:          params.data,
		channel:       params.channel,
		payload:       params.payload,
		appData:       params.appData,
		observer:      NewEventEmitter(),
	}
	dc.handleWorkerNotifications()
	return dc
}

func (dc *DataConsumer) Id() string             { return dc.internal.DataConsumerId }
func (dc *DataConsumer) Closed() bool           { return atomic.LoadUint32(&dc.closed) > 0 }
func (dc *DataConsumer) DataProducerId() string { return dc.data.DataProducerId }
func (dc *DataConsumer) Label() string          { return dc.data.Label }
func (dc *DataConsumer) Protocol() string       { return dc.data.Protocol }
func (dc *DataConsumer) BufferedAmount() uint32  { return dc.bufferedAmount }
func (dc *DataConsumer) AppData() interface{}   { return dc.appData }

func (dc *DataConsumer) OnClose(handler func())              { dc.onClose = handler }
func (dc *DataConsumer) OnDataProducerClose(handler func())  { dc.onDataProducerClose = handler }
func (dc *DataConsumer) OnMessage(handler func([]byte, int)) { dc.onMessage = handler }

func (dc *DataConsumer) Close(releaseStreamId func(int)) error {
	if !atomic.CompareAndSwapUint32(&dc.closed, 0, 1) {
		return nil
	}
	dc.logger.V(1).Info("close()")

	dc.channel.Unsubscribe(dc.Id())
	dc.payload.Unsubscribe(dc.Id())

	resp := dc.channel.Request("transport.closeDataConsumer", dc.internal, H{"dataConsumerId": dc.internal.DataConsumerId})
	if err := resp.Err(); err != nil {
		dc.logger.Error(err, "dataConsumer close failed")
	}

	if releaseStreamId != nil {
		releaseStreamId(dc.data.SctpStreamParameters.StreamId)
	}

	dc.Emit("@close")
	dc.RemoveAllListeners()
	dc.close()
	return nil
}

func (dc *DataConsumer) close() {
	dc.observer.SafeEmit("close")
	dc.observer.RemoveAllListeners()
	if dc.onClose != nil {
		dc.onClose()
	}
}

func (dc *DataConsumer) transportClosed() {
	if !atomic.CompareAndSwapUint32(&dc.closed, 0, 1) {
		return
	}
	dc.channel.Unsubscribe(dc.Id())
	dc.payload.Unsubscribe(dc.Id())
	dc.SafeEmit("transportclose")
	dc.RemoveAllListeners()
	dc.close()
}

// sctpStreamState maps an open/closed flag to pion/sctp's stream state
// enum. It is not called anywhere in this package; the worker, not this
// process, drives the actual association.
func sctpStreamState(open bool) sctp.StreamState {
	if open {
		return sctp.StreamStateOpen
	}
	return sctp.StreamStateClosed
}

func (dc *DataConsumer) handleWorkerNotifications() {
	dc.channel.Subscribe(dc.Id(), func(event string, data []byte) {
		switch event {
		case "dataproducerclose":
			if atomic.CompareAndSwapUint32(&dc.closed, 0, 1) {
				dc.channel.Unsubscribe(dc.Id())
				dc.payload.Unsubscribe(dc.Id())

				dc.Emit("@dataproducerclose")
				dc.SafeEmit("dataproducerclose")
				dc.RemoveAllListeners()

				if dc.onDataProducerClose != nil {
					dc.onDataProducerClose()
				}
				dc.close()
			}
		case "sctpsendbufferfull":
			dc.SafeEmit("sctpsendbufferfull")
		case "bufferedamountlow":
			var body struct {
				BufferedAmount uint32 `json:"bufferedAmount"`
			}
			if err := json.Unmarshal(data, &body); err == nil {
				dc.bufferedAmount = body.BufferedAmount
				dc.SafeEmit("bufferedamountlow", body.BufferedAmount)
			}
		default:
			dc.logger.V(1).Info("ignoring unknown event in channel listener", "event", event)
		}
	})

	dc.payload.Subscribe(dc.Id(), func(event string, data, payload []byte) {
		switch event {
		case "message":
			if dc.Closed() {
				return
			}
			var header struct {
				Ppid int `json:"ppid"`
			}
			_ = json.Unmarshal(data, &header)
			dc.SafeEmit("message", payload, header.Ppid)
			if dc.onMessage != nil {
				dc.onMessage(payload, header.Ppid)
			}
		default:
			dc.logger.V(1).Info("ignoring unknown event in payload channel listener", "event", event)
		}
	})
}
