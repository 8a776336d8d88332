package mediasoup

import "encoding/json"

// AudioLevelObserverOptions configures AudioLevelObserver creation.
type AudioLevelObserverOptions struct {
	MaxEntries int         `json:"maxEntries,omitempty"`
	Threshold  int         `json:"threshold,omitempty"`
	Interval   int         `json:"interval,omitempty"`
	AppData    interface{} `json:"-"`
}

// AudioLevelObserverVolume is one entry of a "volumes" notification.
type AudioLevelObserverVolume struct {
	ProducerId string `json:"producerId"`
	Volume     int    `json:"volume"`
}

// AudioLevelObserver watches a set of audio Producers and reports their
// volumes (spec.md §3 "RtpObserver (AudioLevel / ActiveSpeaker)"; wired
// from Room.produce when kind==audio, spec.md §4.7).
//
//   - @emits volumes - (volumes []AudioLevelObserverVolume)
//   - @emits silence
type AudioLevelObserver struct {
	*rtpObserver
	onVolumes func([]AudioLevelObserverVolume)
	onSilence func()
}

func newAudioLevelObserver(internal internalData, channel *Channel, payload *PayloadChannel, appData interface{}, getProducerById func(string) *Producer) *AudioLevelObserver {
	o := &AudioLevelObserver{
		rtpObserver: newRtpObserver(internal, channel, payload, appData, getProducerById, "AudioLevelObserver"),
	}
	o.handleWorkerNotifications()
	return o
}

func (o *AudioLevelObserver) OnVolumes(handler func([]AudioLevelObserverVolume)) { o.onVolumes = handler }
func (o *AudioLevelObserver) OnSilence(handler func())                          { o.onSilence = handler }

func (o *AudioLevelObserver) handleWorkerNotifications() {
	o.channel.Subscribe(o.Id(), func(event string, data []byte) {
		switch event {
		case "volumes":
			var volumes []AudioLevelObserverVolume
			if err := json.Unmarshal(data, &volumes); err != nil {
				o.logger.Error(err, "failed to unmarshal volumes")
				return
			}
			o.SafeEmit("volumes", volumes)
			if o.onVolumes != nil {
				o.onVolumes(volumes)
			}
		case "silence":
			o.SafeEmit("silence")
			if o.onSilence != nil {
				o.onSilence()
			}
		default:
			o.logger.V(1).Info("ignoring unknown event in channel listener", "event", event)
		}
	})
}
