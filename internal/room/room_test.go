package room

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainstream/mediasfu/internal/protoo"
)

func discardLogger() logr.Logger { return logr.Discard() }

// newConnectedPeer dials a real (test-server-backed) WebSocket so the
// returned peer's protoo.Peer has a live conn, the way
// internal/protoo/peer_test.go's dialPeerPair avoids exercising Close
// against a nil conn.
func newConnectedPeer(t *testing.T, id string) *peer {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srvCh := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		srvCh <- conn
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	var serverConn *websocket.Conn
	select {
	case serverConn = <-srvCh:
	case <-time.After(time.Second):
		t.Fatal("server side of test websocket never connected")
	}

	return newPeer(id, protoo.NewPeer(serverConn, discardLogger()))
}

// newBareRoom builds a Room with no backing Router/Worker, sufficient for
// exercising the actor's peer-bookkeeping and notification logic in
// isolation (spec.md §8 "Testable properties" 1 and part of 3).
func newBareRoom(t *testing.T) *Room {
	t.Helper()
	closedRooms := make(chan string, 4)
	r := &Room{
		id:      "r",
		logger:  discardLogger(),
		actions: make(chan func(), 64),
		done:    make(chan struct{}),
		peers:   make(map[string]*peer),
		onClose: func(id string) { closedRooms <- id },
	}
	go r.run()
	t.Cleanup(func() {
		r.submit(func() { r.doClose() })
	})
	return r
}

func (r *Room) syncDo(fn func()) {
	done := make(chan struct{})
	r.submit(func() { fn(); close(done) })
	<-done
}

// TestAdmissionReplacesExistingPeer exercises spec.md §8 property 1:
// "a second insertion with the same id first removes the incumbent".
func TestAdmissionReplacesExistingPeer(t *testing.T) {
	r := newBareRoom(t)

	first := newConnectedPeer(t, "a")
	r.syncDo(func() { r.admit(first) })
	assert.Equal(t, 1, r.PeerCount())

	second := newConnectedPeer(t, "a")
	r.syncDo(func() { r.admit(second) })

	assert.Equal(t, 1, r.PeerCount())
	r.syncDo(func() {
		require.Same(t, second, r.peers["a"])
	})
}

// TestLastPeerLeavesClosesRoom exercises spec.md §8 S6: the room closes
// itself once its peer set becomes empty, after the grace period.
func TestLastPeerLeavesClosesRoom(t *testing.T) {
	closed := make(chan string, 1)
	r := &Room{
		id:      "r",
		logger:  discardLogger(),
		actions: make(chan func(), 64),
		done:    make(chan struct{}),
		peers:   make(map[string]*peer),
		onClose: func(id string) { closed <- id },
	}
	go r.run()

	p := newConnectedPeer(t, "a")
	r.syncDo(func() { r.admit(p) })

	r.submit(func() { r.handlePeerClose(p) })

	select {
	case id := <-closed:
		t.Fatalf("room closed before grace period elapsed: %s", id)
	case <-time.After(CloseGrace / 2):
	}

	select {
	case id := <-closed:
		assert.Equal(t, "r", id)
	case <-time.After(CloseGrace):
		t.Fatal("room never closed after grace period")
	}
	assert.True(t, r.Closed())
}
