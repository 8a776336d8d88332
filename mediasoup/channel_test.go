package mediasoup

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorkerConn pairs a Channel with the other end of a net.Pipe acting
// as a minimal worker: it reads a colon-framed request, parses out the
// leading id, and lets the test script a JSON response frame back.
func fakeWorkerConn(t *testing.T) (*Channel, *frameReader, *frameWriter) {
	t.Helper()
	client, worker := net.Pipe()
	t.Cleanup(func() { client.Close(); worker.Close() })

	c := NewChannel(client, 0)
	return c, newFrameReader(worker, 0), newFrameWriter(worker, 0)
}

func readRequestId(t *testing.T, payload []byte) uint32 {
	t.Helper()
	parts := strings.SplitN(string(payload), ":", 2)
	require.Len(t, parts, 2)
	id, err := strconv.ParseUint(parts[0], 10, 32)
	require.NoError(t, err)
	return uint32(id)
}

func TestChannelRequestResponseCorrelation(t *testing.T) {
	c, workerReader, workerWriter := fakeWorkerConn(t)

	done := make(chan *Response, 1)
	go func() {
		done <- c.Request("router.dump", internalData{RouterId: "r1"})
	}()

	payload, err := workerReader.ReadFrame()
	require.NoError(t, err)
	id := readRequestId(t, payload)

	reply, err := json.Marshal(responseFrame{Id: id, Accepted: true, Data: json.RawMessage(`{"ok":true}`)})
	require.NoError(t, err)
	require.NoError(t, workerWriter.WriteFrame(reply))

	select {
	case resp := <-done:
		require.NoError(t, resp.Err())
		var body struct{ Ok bool }
		require.NoError(t, resp.Unmarshal(&body))
		assert.True(t, body.Ok)
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
}

func TestChannelRequestRejection(t *testing.T) {
	c, workerReader, workerWriter := fakeWorkerConn(t)

	done := make(chan *Response, 1)
	go func() {
		done <- c.Request("router.dump", internalData{RouterId: "r1"})
	}()

	payload, err := workerReader.ReadFrame()
	require.NoError(t, err)
	id := readRequestId(t, payload)

	reply, err := json.Marshal(responseFrame{Id: id, Accepted: false, Error: "TypeError", Reason: "bad router id"})
	require.NoError(t, err)
	require.NoError(t, workerWriter.WriteFrame(reply))

	resp := <-done
	require.Error(t, resp.Err())
	var typeErr *TypeError
	assert.ErrorAs(t, resp.Err(), &typeErr)
}

func TestChannelRequestUnknownResponseIdIsDiscarded(t *testing.T) {
	c, workerReader, workerWriter := fakeWorkerConn(t)

	done := make(chan *Response, 1)
	go func() {
		done <- c.Request("router.dump", internalData{RouterId: "r1"})
	}()

	payload, err := workerReader.ReadFrame()
	require.NoError(t, err)
	id := readRequestId(t, payload)

	// A response for an id nobody is waiting on must be silently
	// discarded, not matched against the real pending request.
	stray, err := json.Marshal(responseFrame{Id: id + 1000, Accepted: true})
	require.NoError(t, err)
	require.NoError(t, workerWriter.WriteFrame(stray))

	reply, err := json.Marshal(responseFrame{Id: id, Accepted: true})
	require.NoError(t, err)
	require.NoError(t, workerWriter.WriteFrame(reply))

	select {
	case resp := <-done:
		assert.NoError(t, resp.Err())
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
}

func TestChannelRequestAfterCloseFailsFast(t *testing.T) {
	c, _, _ := fakeWorkerConn(t)
	c.Close()

	resp := c.Request("router.dump", internalData{RouterId: "r1"})
	assert.Equal(t, ErrChannelClosed, resp.Err())
}

func TestChannelNotificationDispatchesToSubscriber(t *testing.T) {
	c, _, workerWriter := fakeWorkerConn(t)

	received := make(chan string, 1)
	c.Subscribe("router1", func(event string, data []byte) {
		received <- event
	})

	payload, err := json.Marshal(notificationFrame{TargetId: "router1", Event: "workerclose"})
	require.NoError(t, err)
	require.NoError(t, workerWriter.WriteFrame(payload))

	select {
	case event := <-received:
		assert.Equal(t, "workerclose", event)
	case <-time.After(time.Second):
		t.Fatal("notification never dispatched")
	}
}

// TestChannelNextRequestIdWrapsPastZero exercises spec.md §8's id
// monotonicity-with-wrap property: ids never reuse 0 (reserved), wrapping
// from the uint32 max back to 1.
func TestChannelNextRequestIdWrapsPastZero(t *testing.T) {
	c := &Channel{nextId: ^uint32(0)}

	first := c.nextRequestId()
	assert.EqualValues(t, 1, first)

	second := c.nextRequestId()
	assert.EqualValues(t, 2, second)
}
