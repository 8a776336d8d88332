package clusterserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainstream/mediasfu/mediasoup"
)

func TestGetMediasoupWorkerRoundRobins(t *testing.T) {
	w1, w2, w3 := &mediasoup.Worker{}, &mediasoup.Worker{}, &mediasoup.Worker{}
	s := &Server{workers: []*mediasoup.Worker{w1, w2, w3}}

	got := []*mediasoup.Worker{
		s.getMediasoupWorker(),
		s.getMediasoupWorker(),
		s.getMediasoupWorker(),
		s.getMediasoupWorker(),
	}

	require.Len(t, got, 4)
	assert.Same(t, w1, got[0])
	assert.Same(t, w2, got[1])
	assert.Same(t, w3, got[2])
	assert.Same(t, w1, got[3])
}

func TestServeHTTPRejectsMissingSubprotocol(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/?roomId=r&peerId=p", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServeHTTPRejectsMissingParams(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Sec-WebSocket-Protocol", protooSubprotocol)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
