package mediaserver

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/rainstream/mediasfu/internal/protoo"
)

// secretMediaSubprotocol is the outbound control sub-protocol (spec.md
// §4.8 "secret-media (outbound control)").
const secretMediaSubprotocol = "secret-media"

const requestTimeout = 10 * time.Second

// client wraps the outbound control connection to the signaling
// coordinator in a protoo.Peer, reusing the same envelope framing the
// inbound ClusterServer endpoint speaks (spec.md §6).
type client struct {
	peer *protoo.Peer
}

// dial connects to url with the secret-media sub-protocol negotiated,
// mirroring protoo::WebSocketClient::Connect.
func dial(url string, logger logr.Logger) (*client, error) {
	dialer := &websocket.Dialer{
		Subprotocols:     []string{secretMediaSubprotocol},
		HandshakeTimeout: requestTimeout,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	c := &client{peer: protoo.NewPeer(conn, logger)}
	c.peer.OnRequest(func(req *protoo.Request) {
		// Requests relayed by the coordinator are not routed into a Room
		// (see DESIGN.md); each one is rejected with 500 rather than left
		// unanswered.
		_ = req.Reject(500, "mediaserver: request relay not implemented")
	})
	return c, nil
}

// registerNodeData mirrors the JSON body MediaServer::OnConnected sends
// ("registerNode"), trimmed to the fields this node can honestly report.
type registerNodeData struct {
	NodeId          string `json:"nodeId"`
	ServiceType     string `json:"serviceType"`
	MaxRoomCount    int    `json:"maxRoomCount"`
	MaxPeerCount    int    `json:"maxPeerCount"`
	ActiveRoomCount int    `json:"activeRoomCount"`
	ActivePeerCount int    `json:"activePeerCount"`
	Status          int    `json:"status"`
}

func (c *client) registerNode(nodeId string) error {
	_, err := c.peer.Request("registerNode", registerNodeData{
		NodeId:      nodeId,
		ServiceType: "media_server",
		Status:      1,
	}, requestTimeout)
	return err
}

// reportNodeOnlineData mirrors the commented periodic body in
// MediaServer.cpp's OnConnected.
type reportNodeOnlineData struct {
	NodeId          string `json:"nodeId"`
	ActiveRoomCount int    `json:"activeRoomCount"`
	ActivePeerCount int    `json:"activePeerCount"`
	Status          int    `json:"status"`
}

func (c *client) reportNodeOnline(nodeId string, activeRoomCount int) error {
	return c.peer.Notify("reportNodeOnline", reportNodeOnlineData{
		NodeId:          nodeId,
		ActiveRoomCount: activeRoomCount,
		Status:          1,
	})
}

func (c *client) close() error {
	return c.peer.Close()
}
