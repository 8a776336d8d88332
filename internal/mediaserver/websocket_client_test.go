package mediaserver

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

var upgrader = websocket.Upgrader{Subprotocols: []string{secretMediaSubprotocol}}

func echoServer(t *testing.T, out chan<- map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go func() {
			defer conn.Close()
			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var env map[string]interface{}
				if json.Unmarshal(payload, &env) == nil {
					out <- env
				}
				if env["request"] == true {
					reply, _ := json.Marshal(map[string]interface{}{
						"response": true, "id": env["id"], "ok": true, "data": map[string]interface{}{},
					})
					_ = conn.WriteMessage(websocket.TextMessage, reply)
				}
			}
		}()
	}))
}

func TestRegisterNodeRoundTrips(t *testing.T) {
	envelopes := make(chan map[string]interface{}, 4)
	srv := echoServer(t, envelopes)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := dial(url, logr.Discard())
	require.NoError(t, err)
	defer c.close()
	go c.peer.Run()

	done := make(chan error, 1)
	go func() { done <- c.registerNode("node-1") }()

	select {
	case env := <-envelopes:
		require.Equal(t, "registerNode", env["method"])
	case <-time.After(time.Second):
		t.Fatal("server never received registerNode")
	}

	require.NoError(t, <-done)
}

func TestReportNodeOnlineIsFireAndForget(t *testing.T) {
	envelopes := make(chan map[string]interface{}, 4)
	srv := echoServer(t, envelopes)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := dial(url, logr.Discard())
	require.NoError(t, err)
	defer c.close()
	go c.peer.Run()

	require.NoError(t, c.reportNodeOnline("node-1", 3))

	select {
	case env := <-envelopes:
		require.Equal(t, "reportNodeOnline", env["method"])
		require.Equal(t, true, env["notification"])
	case <-time.After(time.Second):
		t.Fatal("server never received reportNodeOnline")
	}
}
