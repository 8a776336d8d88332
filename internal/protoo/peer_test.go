package protoo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialPeerPair(t *testing.T) (client *websocket.Conn, server *Peer) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srvCh := make(chan *Peer, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		srvCh <- NewPeer(conn, discardLogger())
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case p := <-srvCh:
		return conn, p
	case <-time.After(time.Second):
		t.Fatal("server peer never connected")
		return nil, nil
	}
}

func TestPeerRequestResponse(t *testing.T) {
	client, server := dialPeerPair(t)
	go server.Run()

	server.OnRequest(func(r *Request) {
		var data map[string]string
		require.NoError(t, r.Unmarshal(&data))
		require.NoError(t, r.Accept(map[string]string{"echo": data["value"]}))
	})

	require.NoError(t, client.WriteJSON(Envelope{Request: true, Id: 1, Method: "echo", Data: rawJSON(t, map[string]string{"value": "hi"})}))

	_, payload, err := client.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	require.True(t, env.Ok)

	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "hi", data["echo"])
}

func TestPeerCloseRejectsPending(t *testing.T) {
	_, server := dialPeerPair(t)
	go server.Run()

	done := make(chan error, 1)
	go func() {
		_, err := server.Request("neverAnswered", nil, time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrPeerClosed)
	case <-time.After(time.Second):
		t.Fatal("Request never returned after Close")
	}
}

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func discardLogger() logr.Logger { return logr.Discard() }
