package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainstream/mediasfu/mediasoup"
)

func TestPeerConsumingTransportSelection(t *testing.T) {
	p := newPeer("a", nil)
	assert.Nil(t, p.consumingTransport())

	p.transports["t1"] = &peerTransport{producing: true, consuming: false}
	assert.Nil(t, p.consumingTransport())

	p.transports["t2"] = &peerTransport{producing: false, consuming: true}
	require.NotNil(t, p.consumingTransport())
}

func TestPeerProfileAndJoinState(t *testing.T) {
	p := newPeer("a", nil)
	assert.False(t, p.Joined())
	assert.Nil(t, p.RtpCapabilities())

	caps := mediasoup.RtpCapabilities{Codecs: []mediasoup.RtpCodecCapability{{Kind: mediasoup.MediaKindAudio}}}
	p.SetProfile("Alice", PeerDevice{Name: "chrome"}, caps, nil)
	assert.False(t, p.Joined())
	require.NotNil(t, p.RtpCapabilities())
	assert.Equal(t, caps, *p.RtpCapabilities())

	p.MarkJoined()
	assert.True(t, p.Joined())

	info := p.info()
	assert.Equal(t, "a", info.Id)
	assert.Equal(t, "Alice", info.DisplayName)
	assert.Equal(t, "chrome", info.Device.Name)
}

func TestPeerProducerBookkeeping(t *testing.T) {
	p := newPeer("a", nil)
	assert.Empty(t, p.Producers())

	p.producers["p1"] = &mediasoup.Producer{}
	assert.Len(t, p.Producers(), 1)
	p.RemoveProducer("p1")
	assert.Empty(t, p.Producers())
}
