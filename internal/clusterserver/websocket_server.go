package clusterserver

import (
	"net/http"

	"github.com/gorilla/websocket"
)

const protooSubprotocol = "protoo"

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{protooSubprotocol},
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ServeHTTP is the inbound WebSocket endpoint (spec.md §4.8 "connection
// accept path"): it validates the protoo sub-protocol and the roomId/
// peerId query parameters before ever upgrading the connection (spec.md
// "close with 403"/"400 on malformed URL parameters" are HTTP-level
// rejections here; 1000 on normal close is handled by protoo.Peer
// itself once the connection is established).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !hasSubprotocol(r, protooSubprotocol) {
		http.Error(w, "unsupported sub-protocol", http.StatusForbidden)
		return
	}

	roomId := r.URL.Query().Get("roomId")
	peerId := r.URL.Query().Get("peerId")
	if roomId == "" || peerId == "" {
		http.Error(w, "roomId and peerId are required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(err, "upgrade failed", "roomId", roomId, "peerId", peerId)
		return
	}

	rm, err := s.rooms.GetOrCreate(roomId, s.getMediasoupWorker())
	if err != nil {
		s.logger.Error(err, "room creation failed", "roomId", roomId)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "room creation failed"))
		conn.Close()
		return
	}

	logger := s.logger.WithValues("roomId", roomId, "peerId", peerId)
	peer := rm.Accept(peerId, conn, logger)
	peer.Run()
}

func hasSubprotocol(r *http.Request, name string) bool {
	for _, p := range websocket.Subprotocols(r) {
		if p == name {
			return true
		}
	}
	return false
}
