package mediaserver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rainstream/mediasfu/mediasoup"
)

func TestGetMediasoupWorkerRoundRobins(t *testing.T) {
	w1, w2 := &mediasoup.Worker{}, &mediasoup.Worker{}
	s := &Server{workers: []*mediasoup.Worker{w1, w2}}

	assert.Same(t, w1, s.getMediasoupWorker())
	assert.Same(t, w2, s.getMediasoupWorker())
	assert.Same(t, w1, s.getMediasoupWorker())
}
