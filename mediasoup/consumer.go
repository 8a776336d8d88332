package mediasoup

import (
	"encoding/json"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// ConsumerTraceEventType is valid types for "trace" events.
type ConsumerTraceEventType string

const (
	ConsumerTraceEventTypeRtp      ConsumerTraceEventType = "rtp"
	ConsumerTraceEventTypeKeyframe ConsumerTraceEventType = "keyframe"
	ConsumerTraceEventTypeNack     ConsumerTraceEventType = "nack"
	ConsumerTraceEventTypePli      ConsumerTraceEventType = "pli"
	ConsumerTraceEventTypeFir      ConsumerTraceEventType = "fir"
)

// ConsumerScore is the "score" event payload.
type ConsumerScore struct {
	// Score of the RTP stream of the consumer.
	Score uint16 `json:"score"`
	// ProducerScore is the score of the currently selected RTP stream of
	// the producer.
	ProducerScore uint16 `json:"producerScore"`
	// ProducerScores are the scores of all RTP streams in the producer,
	// ordered by encoding (useful when the producer uses simulcast).
	ProducerScores []uint16 `json:"producerScores,omitempty"`
}

// ConsumerLayers is the "layerschange" event payload and also the shape
// of SetPreferredLayers' argument.
type ConsumerLayers struct {
	SpatialLayer  uint8 `json:"spatialLayer"`
	TemporalLayer uint8 `json:"temporalLayer"`
}

// ConsumerType mirrors ProducerType plus "pipe" (spec.md §3).
type ConsumerType string

const (
	ConsumerTypeSimple    ConsumerType = "simple"
	ConsumerTypeSimulcast ConsumerType = "simulcast"
	ConsumerTypeSvc       ConsumerType = "svc"
	ConsumerTypePipe      ConsumerType = "pipe"
)

type consumerData struct {
	ProducerId    string        `json:"producerId,omitempty"`
	Kind          MediaKind     `json:"kind,omitempty"`
	Type          ConsumerType  `json:"type,omitempty"`
	RtpParameters RtpParameters `json:"rtpParameters,omitempty"`
}

type consumerParams struct {
	internal        internalData
	data            consumerData
	channel         *Channel
	payloadChannel  *PayloadChannel
	appData         interface{}
	paused          bool
	producerPaused  bool
	score           *ConsumerScore
	preferredLayers *ConsumerLayers
}

// Consumer represents an audio or video source being forwarded from a
// mediasoup router to an endpoint. It is created on top of a transport
// that carries the media packets (spec.md §3 "Consumer" row).
//
//   - @emits transportclose
//   - @emits producerclose
//   - @emits producerpause
//   - @emits producerresume
//   - @emits score - (score *ConsumerScore)
//   - @emits layerschange - (layers *ConsumerLayers | nil)
//   - @emits trace - (trace *TraceEventData)
//   - @emits @close
//   - @emits @producerclose
type Consumer struct {
	IEventEmitter
	logger           logr.Logger
	internal         internalData
	data             consumerData
	channel          *Channel
	payloadChannel   *PayloadChannel
	appData          interface{}
	paused           bool
	closed           uint32
	producerPaused   bool
	priority         uint32
	score            *ConsumerScore
	preferredLayers  *ConsumerLayers
	currentLayers    *ConsumerLayers
	observer         IEventEmitter

	onClose          func()
	onProducerClose  func()
	onTransportClose func()
	onPause          func()
	onResume         func()
	onProducerPause  func()
	onProducerResume func()
	onScore          func(*ConsumerScore)
	onLayersChange   func(*ConsumerLayers)
	onTrace          func(*TraceEventData)
}

func newConsumer(params consumerParams) *Consumer {
	logger := NewLogger("Consumer")
	logger.V(1).Info("constructor()", "internal", params.internal)

	score := params.score
	if score == nil {
		score = &ConsumerScore{Score: 10, ProducerScore: 10, ProducerScores: []uint16{}}
	}

	consumer := &Consumer{
		IEventEmitter:   NewEventEmitter(),
		logger:          logger,
		internal:        params.internal,
		data:            params.data,
		channel:         params.channel,
		payloadChannel:  params.payloadChannel,
		appData:         params.appData,
		paused:          params.paused,
		producerPaused:  params.producerPaused,
		priority:        1,
		score:           score,
		preferredLayers: params.preferredLayers,
		observer:        NewEventEmitter(),
	}

	consumer.handleWorkerNotifications()
	return consumer
}

func (consumer *Consumer) Id() string                  { return consumer.internal.ConsumerId }
func (consumer *Consumer) ConsumerId() string           { return consumer.internal.ConsumerId }
func (consumer *Consumer) ProducerId() string           { return consumer.data.ProducerId }
func (consumer *Consumer) Closed() bool                 { return atomic.LoadUint32(&consumer.closed) > 0 }
func (consumer *Consumer) Kind() MediaKind              { return consumer.data.Kind }
func (consumer *Consumer) RtpParameters() RtpParameters { return consumer.data.RtpParameters }
func (consumer *Consumer) Type() ConsumerType           { return consumer.data.Type }
func (consumer *Consumer) Paused() bool                 { return consumer.paused }
func (consumer *Consumer) ProducerPaused() bool         { return consumer.producerPaused }
func (consumer *Consumer) Priority() uint32             { return consumer.priority }
func (consumer *Consumer) Score() *ConsumerScore        { return consumer.score }
func (consumer *Consumer) PreferredLayers() *ConsumerLayers { return consumer.preferredLayers }
func (consumer *Consumer) CurrentLayers() *ConsumerLayers   { return consumer.currentLayers }
func (consumer *Consumer) AppData() interface{}         { return consumer.appData }
func (consumer *Consumer) Observer() IEventEmitter      { return consumer.observer }

func (consumer *Consumer) OnClose(handler func())                          { consumer.onClose = handler }
func (consumer *Consumer) OnProducerClose(handler func())                  { consumer.onProducerClose = handler }
func (consumer *Consumer) OnTransportClose(handler func())                 { consumer.onTransportClose = handler }
func (consumer *Consumer) OnPause(handler func())                          { consumer.onPause = handler }
func (consumer *Consumer) OnResume(handler func())                         { consumer.onResume = handler }
func (consumer *Consumer) OnProducerPause(handler func())                  { consumer.onProducerPause = handler }
func (consumer *Consumer) OnProducerResume(handler func())                 { consumer.onProducerResume = handler }
func (consumer *Consumer) OnScore(handler func(score *ConsumerScore))      { consumer.onScore = handler }
func (consumer *Consumer) OnLayersChange(handler func(layers *ConsumerLayers)) { consumer.onLayersChange = handler }
func (consumer *Consumer) OnTrace(handler func(trace *TraceEventData))     { consumer.onTrace = handler }

// Close the Consumer.
func (consumer *Consumer) Close() (err error) {
	if atomic.CompareAndSwapUint32(&consumer.closed, 0, 1) {
		consumer.logger.V(1).Info("close()")

		consumer.channel.Unsubscribe(consumer.internal.ConsumerId)
		consumer.payloadChannel.Unsubscribe(consumer.internal.ConsumerId)

		reqData := H{"consumerId": consumer.internal.ConsumerId}

		response := consumer.channel.Request("transport.closeConsumer", consumer.internal, reqData)
		if err = response.Err(); err != nil {
			consumer.logger.Error(err, "consumer close failed")
		}

		consumer.Emit("@close")
		consumer.RemoveAllListeners()

		consumer.close()
	}
	return
}

func (consumer *Consumer) close() {
	consumer.observer.SafeEmit("close")
	consumer.observer.RemoveAllListeners()

	if handler := consumer.onClose; handler != nil {
		handler()
	}
}

// transportClosed is called when the owning transport was closed.
func (consumer *Consumer) transportClosed() {
	if atomic.CompareAndSwapUint32(&consumer.closed, 0, 1) {
		consumer.logger.V(1).Info("transportClosed()")

		consumer.channel.Unsubscribe(consumer.internal.ConsumerId)
		consumer.payloadChannel.Unsubscribe(consumer.internal.ConsumerId)

		consumer.SafeEmit("transportclose")
		consumer.RemoveAllListeners()

		if handler := consumer.onTransportClose; handler != nil {
			handler()
		}

		consumer.close()
	}
}

// GetStats returns Consumer stats (forwarded verbatim from the worker).
func (consumer *Consumer) GetStats() (json.RawMessage, error) {
	resp := consumer.channel.Request("consumer.getStats", consumer.internal)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.data, nil
}

// Pause the Consumer.
func (consumer *Consumer) Pause() (err error) {
	consumer.logger.V(1).Info("pause()")

	wasPaused := consumer.paused || consumer.producerPaused

	response := consumer.channel.Request("consumer.pause", consumer.internal)
	if err = response.Err(); err != nil {
		return
	}

	consumer.paused = true

	if !wasPaused {
		consumer.observer.SafeEmit("pause")
		if handler := consumer.onPause; handler != nil {
			handler()
		}
	}
	return
}

// Resume the Consumer.
func (consumer *Consumer) Resume() (err error) {
	consumer.logger.V(1).Info("resume()")

	wasPaused := consumer.paused || consumer.producerPaused

	response := consumer.channel.Request("consumer.resume", consumer.internal)
	if err = response.Err(); err != nil {
		return
	}

	consumer.paused = false

	if wasPaused && !consumer.producerPaused {
		consumer.observer.SafeEmit("resume")
		if handler := consumer.onResume; handler != nil {
			handler()
		}
	}
	return
}

// SetPreferredLayers sets preferred video layers for simulcast/SVC.
func (consumer *Consumer) SetPreferredLayers(layers ConsumerLayers) (err error) {
	consumer.logger.V(1).Info("setPreferredLayers()")

	response := consumer.channel.Request("consumer.setPreferredLayers", consumer.internal, H{
		"spatialLayer":  layers.SpatialLayer,
		"temporalLayer": layers.TemporalLayer,
	})
	return response.Unmarshal(&consumer.preferredLayers)
}

// SetPriority sets the Consumer's bandwidth-allocation priority.
func (consumer *Consumer) SetPriority(priority uint32) (err error) {
	consumer.logger.V(1).Info("setPriority()")

	response := consumer.channel.Request("consumer.setPriority", consumer.internal, H{"priority": priority})

	var result struct {
		Priority uint32 `json:"priority"`
	}
	if err = response.Unmarshal(&result); err != nil {
		return
	}
	consumer.priority = result.Priority
	return
}

// UnsetPriority resets priority to the default (1).
func (consumer *Consumer) UnsetPriority() error {
	return consumer.SetPriority(1)
}

// RequestKeyFrame requests a key frame from the Producer.
func (consumer *Consumer) RequestKeyFrame() error {
	consumer.logger.V(1).Info("requestKeyFrame()")
	response := consumer.channel.Request("consumer.requestKeyFrame", consumer.internal)
	return response.Err()
}

// EnableTraceEvent enables "trace" events of the given types.
func (consumer *Consumer) EnableTraceEvent(types ...ConsumerTraceEventType) error {
	consumer.logger.V(1).Info("enableTraceEvent()")
	if types == nil {
		types = []ConsumerTraceEventType{}
	}
	response := consumer.channel.Request("consumer.enableTraceEvent", consumer.internal, H{"types": types})
	return response.Err()
}

func (consumer *Consumer) handleWorkerNotifications() {
	logger := consumer.logger

	consumer.channel.Subscribe(consumer.Id(), func(event string, data []byte) {
		switch event {
		case "producerclose":
			if atomic.CompareAndSwapUint32(&consumer.closed, 0, 1) {
				consumer.channel.Unsubscribe(consumer.internal.ConsumerId)
				consumer.payloadChannel.Unsubscribe(consumer.internal.ConsumerId)

				consumer.Emit("@producerclose")
				consumer.SafeEmit("producerclose")
				consumer.RemoveAllListeners()

				if handler := consumer.onProducerClose; handler != nil {
					handler()
				}
				consumer.close()
			}

		case "producerpause":
			if consumer.producerPaused {
				break
			}
			wasPaused := consumer.paused || consumer.producerPaused
			consumer.producerPaused = true

			consumer.SafeEmit("producerpause")
			if handler := consumer.onProducerPause; handler != nil {
				handler()
			}

			if !wasPaused {
				consumer.observer.SafeEmit("pause")
				if handler := consumer.onPause; handler != nil {
					handler()
				}
			}

		case "producerresume":
			if !consumer.producerPaused {
				break
			}
			wasPaused := consumer.paused || consumer.producerPaused
			consumer.producerPaused = false

			consumer.SafeEmit("producerresume")
			if handler := consumer.onProducerResume; handler != nil {
				handler()
			}

			if wasPaused && !consumer.paused {
				consumer.observer.SafeEmit("resume")
				if handler := consumer.onResume; handler != nil {
					handler()
				}
			}

		case "score":
			var score *ConsumerScore
			if err := json.Unmarshal(data, &score); err != nil {
				logger.Error(err, "failed to unmarshal score", "data", json.RawMessage(data))
				return
			}
			consumer.score = score

			consumer.SafeEmit("score", score)
			consumer.observer.SafeEmit("score", score)
			if handler := consumer.onScore; handler != nil {
				handler(score)
			}

		case "layerschange":
			var layers *ConsumerLayers
			if err := json.Unmarshal(data, &layers); err != nil {
				logger.Error(err, "failed to unmarshal layers", "data", json.RawMessage(data))
				return
			}
			consumer.currentLayers = layers

			consumer.SafeEmit("layerschange", layers)
			consumer.observer.SafeEmit("layerschange", layers)
			if handler := consumer.onLayersChange; handler != nil {
				handler(layers)
			}

		case "trace":
			var trace *TraceEventData
			if err := json.Unmarshal(data, &trace); err != nil {
				logger.Error(err, "failed to unmarshal trace", "data", json.RawMessage(data))
				return
			}
			consumer.SafeEmit("trace", trace)
			consumer.observer.SafeEmit("trace", trace)
			if handler := consumer.onTrace; handler != nil {
				handler(trace)
			}

		default:
			consumer.logger.Error(nil, "ignoring unknown event in channel listener", "event", event)
		}
	})

	consumer.payloadChannel.Subscribe(consumer.Id(), func(event string, data, payload []byte) {
		switch event {
		case "rtp":
			if consumer.Closed() {
				return
			}
			consumer.SafeEmit("rtp", payload)
		default:
			consumer.logger.Error(nil, "ignoring unknown event in payload channel listener", "event", event)
		}
	})
}
