package mediasoup

import "strings"

// canConsume implements the simplified matching rule spec.md §4.5 names as
// "the router's canConsume(producerId, consumerRtpCapabilities)": a
// consuming endpoint can consume a producer's RTP stream only if its
// declared RtpCapabilities advertise a codec whose mime type matches one
// of the producer's negotiated codecs. The real worker additionally
// intersects header extensions and payload-type mappings; that
// negotiation detail is the worker's concern (spec.md §1 non-goals), so
// the orchestrator only performs the coarse compatibility check that
// gates whether a Consumer should be attempted at all.
func canConsume(producerRtpParameters RtpParameters, consumerRtpCapabilities RtpCapabilities) bool {
	if len(producerRtpParameters.Codecs) == 0 {
		return false
	}

	for _, producerCodec := range producerRtpParameters.Codecs {
		for _, capCodec := range consumerRtpCapabilities.Codecs {
			if strings.EqualFold(producerCodec.MimeType, capCodec.MimeType) {
				return true
			}
		}
	}
	return false
}
