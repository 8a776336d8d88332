package mediasoup

import (
	"encoding/json"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// ProducerType mirrors ConsumerType's simple/simulcast/svc vocabulary
// (spec.md §3 data model).
type ProducerType string

const (
	ProducerTypeSimple    ProducerType = "simple"
	ProducerTypeSimulcast ProducerType = "simulcast"
	ProducerTypeSvc       ProducerType = "svc"
)

// ProducerScore is the "score" event payload: one entry per encoding for
// simulcast/SVC producers.
type ProducerScore struct {
	Ssrc  uint32 `json:"ssrc"`
	Rid   string `json:"rid,omitempty"`
	Score uint16 `json:"score"`
}

type ProducerTraceEventType string

const (
	ProducerTraceEventRtp      ProducerTraceEventType = "rtp"
	ProducerTraceEventKeyframe ProducerTraceEventType = "keyframe"
	ProducerTraceEventNack     ProducerTraceEventType = "nack"
	ProducerTraceEventPli      ProducerTraceEventType = "pli"
	ProducerTraceEventFir      ProducerTraceEventType = "fir"
)

type producerData struct {
	Kind          MediaKind     `json:"kind,omitempty"`
	RtpParameters RtpParameters `json:"rtpParameters,omitempty"`
	Type          ProducerType  `json:"type,omitempty"`
}

type producerParams struct {
	internal internalData
	data     producerData
	channel  *Channel
	payload  *PayloadChannel
	appData  interface{}
	paused   bool
}

// Producer represents an audio or video source being injected into a
// mediasoup router by one client (spec.md §3 "Producer" row).
//
//   - @emits transportclose
//   - @emits score - (score []*ProducerScore)
//   - @emits videoorientationchange
//   - @emits trace - (trace *TraceEventData)
//   - @emits @close
type Producer struct {
	IEventEmitter
	logger   logr.Logger
	internal internalData
	data     producerData
	channel  *Channel
	payload  *PayloadChannel
	appData  interface{}
	paused   bool
	closed   uint32
	score    []*ProducerScore
	observer IEventEmitter

	onClose func()
	onScore func([]*ProducerScore)
}

func newProducer(params producerParams) *Producer {
	p := &Producer{
		IEventEmitter: NewEventEmitter(),
		logger:        NewLogger("Producer"),
		internal:      params.internal,
		data:          params.data,
		channel:       params.channel,
		payload:       params.payload,
		appData:       params.appData,
		paused:        params.paused,
		observer:      NewEventEmitter(),
	}
	p.logger.V(1).Info("constructor()", "internal", p.internal)
	p.handleWorkerNotifications()
	return p
}

func (p *Producer) Id() string              { return p.internal.ProducerId }
func (p *Producer) Closed() bool            { return atomic.LoadUint32(&p.closed) > 0 }
func (p *Producer) Kind() MediaKind         { return p.data.Kind }
func (p *Producer) RtpParameters() RtpParameters { return p.data.RtpParameters }
func (p *Producer) Type() ProducerType      { return p.data.Type }
func (p *Producer) Paused() bool            { return p.paused }
func (p *Producer) Score() []*ProducerScore { return p.score }
func (p *Producer) AppData() interface{}    { return p.appData }
func (p *Producer) Observer() IEventEmitter { return p.observer }

func (p *Producer) OnClose(handler func())               { p.onClose = handler }
func (p *Producer) OnScore(handler func([]*ProducerScore)) { p.onScore = handler }

// Close the Producer: sends transport.closeProducer, unsubscribes, and
// emits @close once (spec.md §3 "Lifecycle").
func (p *Producer) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return nil
	}
	p.logger.V(1).Info("close()")

	p.channel.Unsubscribe(p.Id())
	p.payload.Unsubscribe(p.Id())

	resp := p.channel.Request("transport.closeProducer", p.internal, H{"producerId": p.internal.ProducerId})
	if err := resp.Err(); err != nil {
		p.logger.Error(err, "producer close failed")
	}

	p.Emit("@close")
	p.RemoveAllListeners()
	p.close()
	return nil
}

func (p *Producer) close() {
	p.observer.SafeEmit("close")
	p.observer.RemoveAllListeners()
	if p.onClose != nil {
		p.onClose()
	}
}

// transportClosed tears the producer down without a worker request, used
// when the owning Transport drove the close.
func (p *Producer) transportClosed() {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return
	}
	p.logger.V(1).Info("transportClosed()")

	p.channel.Unsubscribe(p.Id())
	p.payload.Unsubscribe(p.Id())

	p.SafeEmit("transportclose")
	p.RemoveAllListeners()
	p.close()
}

// Pause the Producer.
func (p *Producer) Pause() error {
	resp := p.channel.Request("producer.pause", p.internal)
	if err := resp.Err(); err != nil {
		return err
	}
	wasPaused := p.paused
	p.paused = true
	if !wasPaused {
		p.observer.SafeEmit("pause")
	}
	return nil
}

// Resume the Producer.
func (p *Producer) Resume() error {
	resp := p.channel.Request("producer.resume", p.internal)
	if err := resp.Err(); err != nil {
		return err
	}
	wasPaused := p.paused
	p.paused = false
	if wasPaused {
		p.observer.SafeEmit("resume")
	}
	return nil
}

// GetStats returns Producer stats (forwarded verbatim from the worker).
func (p *Producer) GetStats() (json.RawMessage, error) {
	resp := p.channel.Request("producer.getStats", p.internal)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.data, nil
}

// EnableTraceEvent enables "trace" notifications for the given types.
func (p *Producer) EnableTraceEvent(types ...ProducerTraceEventType) error {
	if types == nil {
		types = []ProducerTraceEventType{}
	}
	resp := p.channel.Request("producer.enableTraceEvent", p.internal, H{"types": types})
	return resp.Err()
}

func (p *Producer) handleWorkerNotifications() {
	p.channel.Subscribe(p.Id(), func(event string, data []byte) {
		switch event {
		case "score":
			var score []*ProducerScore
			if unmarshalOrLog(p.logger, data, &score) {
				p.score = score
				p.SafeEmit("score", score)
				p.observer.SafeEmit("score", score)
				if p.onScore != nil {
					p.onScore(score)
				}
			}
		case "videoorientationchange":
			p.logger.V(1).Info("videoorientationchange event")
			p.SafeEmit("videoorientationchange")
		case "trace":
			var trace TraceEventData
			if unmarshalOrLog(p.logger, data, &trace) {
				p.SafeEmit("trace", &trace)
				p.observer.SafeEmit("trace", &trace)
			}
		default:
			p.logger.Error(nil, "ignoring unknown event in channel listener", "event", event)
		}
	})
}
