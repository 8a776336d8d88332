package mediasoup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeTransport(t *testing.T) (*PipeTransport, *frameReader, *frameWriter) {
	t.Helper()
	channel, workerReader, workerWriter := fakeWorkerConn(t)
	pt := newPipeTransport(
		internalData{TransportId: "pt1"},
		pipeTransportData{Rtx: true},
		channel, nil, nil, 0,
	)
	return pt, workerReader, workerWriter
}

func TestPipeTransportConnectUpdatesTuple(t *testing.T) {
	pt, workerReader, workerWriter := newTestPipeTransport(t)

	done := make(chan error, 1)
	go func() {
		done <- pt.Connect("127.0.0.1", 5000, nil)
	}()

	payload, err := workerReader.ReadFrame()
	require.NoError(t, err)
	id := readRequestId(t, payload)

	reply, err := json.Marshal(responseFrame{
		Id:       id,
		Accepted: true,
		Data:     json.RawMessage(`{"tuple":{"localIp":"127.0.0.1","localPort":4000,"remoteIp":"127.0.0.1","remotePort":5000,"protocol":"udp"}}`),
	})
	require.NoError(t, err)
	require.NoError(t, workerWriter.WriteFrame(reply))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Connect never resolved")
	}

	assert.Equal(t, 5000, pt.Tuple().RemotePort)
	assert.Equal(t, "udp", pt.Tuple().Protocol)
}

func TestPipeTransportConnectPropagatesRejection(t *testing.T) {
	pt, workerReader, workerWriter := newTestPipeTransport(t)

	done := make(chan error, 1)
	go func() {
		done <- pt.Connect("127.0.0.1", 5000, nil)
	}()

	payload, err := workerReader.ReadFrame()
	require.NoError(t, err)
	id := readRequestId(t, payload)

	reply, err := json.Marshal(responseFrame{Id: id, Accepted: false, Error: "TypeError", Reason: "invalid ip"})
	require.NoError(t, err)
	require.NoError(t, workerWriter.WriteFrame(reply))

	select {
	case err := <-done:
		require.Error(t, err)
		var typeErr *TypeError
		assert.ErrorAs(t, err, &typeErr)
	case <-time.After(time.Second):
		t.Fatal("Connect never resolved")
	}
}

func TestPipeTransportRtxAccessor(t *testing.T) {
	pt, _, _ := newTestPipeTransport(t)
	assert.True(t, pt.Rtx())
}
