package mediasoup

import "encoding/json"

// ActiveSpeakerObserverOptions configures ActiveSpeakerObserver creation.
// Supplemented feature, per SPEC_FULL.md §3 — the natural sibling of
// AudioLevelObserver that spec.md's distillation did not name.
type ActiveSpeakerObserverOptions struct {
	Interval int         `json:"interval,omitempty"`
	AppData  interface{} `json:"-"`
}

// ActiveSpeakerObserver watches a set of audio Producers and reports which
// one is currently dominant, translated by Room into the client-facing
// "active-speaker" notification (spec.md §6).
//
//   - @emits dominantspeaker - (producerId string)
type ActiveSpeakerObserver struct {
	*rtpObserver
	onDominantSpeaker func(string)
}

func newActiveSpeakerObserver(internal internalData, channel *Channel, payload *PayloadChannel, appData interface{}, getProducerById func(string) *Producer) *ActiveSpeakerObserver {
	o := &ActiveSpeakerObserver{
		rtpObserver: newRtpObserver(internal, channel, payload, appData, getProducerById, "ActiveSpeakerObserver"),
	}
	o.handleWorkerNotifications()
	return o
}

func (o *ActiveSpeakerObserver) OnDominantSpeaker(handler func(string)) { o.onDominantSpeaker = handler }

func (o *ActiveSpeakerObserver) handleWorkerNotifications() {
	o.channel.Subscribe(o.Id(), func(event string, data []byte) {
		switch event {
		case "dominantspeaker":
			var body struct {
				ProducerId string `json:"producerId"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				o.logger.Error(err, "failed to unmarshal dominantspeaker")
				return
			}
			o.SafeEmit("dominantspeaker", body.ProducerId)
			if o.onDominantSpeaker != nil {
				o.onDominantSpeaker(body.ProducerId)
			}
		default:
			o.logger.V(1).Info("ignoring unknown event in channel listener", "event", event)
		}
	})
}
