// Package mediaserver composes the MediaServer process (spec.md §4.9):
// a pool of mediasoup Workers plus a Room registry, identical to
// clusterserver's, but reached as a worker node of a signaling
// coordinator instead of directly by clients. It dials out over the
// "secret-media" sub-protocol, registers itself, and reports liveness
// on an interval (original_source/Src/MediaServer/MediaServer.cpp
// "OnConnected"/the commented-out reportNodeOnline timer).
package mediaserver

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/rainstream/mediasfu/internal/config"
	"github.com/rainstream/mediasfu/internal/room"
	"github.com/rainstream/mediasfu/mediasoup"
)

// heartbeatInterval is how often reportNodeOnline is re-sent, matching
// the original's comment ("如每分2分钟", roughly every 1-2 minutes).
const heartbeatInterval = 90 * time.Second

// Server is the MediaServer: it owns a Worker pool and Room registry
// exactly like clusterserver.Server, plus the outbound control
// connection that registers this node with the coordinator.
type Server struct {
	cfg     config.MediaServer
	logger  logr.Logger
	workers []*mediasoup.Worker
	next    uint32
	rooms   *room.Registry

	client *client
}

// New spawns cfg.NumWorkers mediasoup Workers. The control connection is
// established separately by Connect, so construction never blocks on
// network I/O.
func New(cfg config.MediaServer, roomCfg room.Config) (*Server, error) {
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("mediaserver: numWorkers must be positive, got %d", cfg.NumWorkers)
	}

	workers := make([]*mediasoup.Worker, 0, cfg.NumWorkers)
	for i := 0; i < cfg.NumWorkers; i++ {
		w, err := mediasoup.NewWorker(mediasoup.WorkerSettings{
			LogLevel:   cfg.LogLevel,
			LogTags:    cfg.LogTags,
			RtcMinPort: cfg.RtcMinPort,
			RtcMaxPort: cfg.RtcMaxPort,
		})
		if err != nil {
			for _, existing := range workers {
				existing.Close()
			}
			return nil, fmt.Errorf("mediaserver: spawning worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}

	return &Server{
		cfg:     cfg,
		logger:  mediasoup.NewLogger("MediaServer"),
		workers: workers,
		rooms:   room.NewRegistry(roomCfg),
	}, nil
}

func (s *Server) getMediasoupWorker() *mediasoup.Worker {
	idx := atomic.AddUint32(&s.next, 1) - 1
	return s.workers[int(idx)%len(s.workers)]
}

// Rooms exposes the registry, mirroring clusterserver.Server.
func (s *Server) Rooms() *room.Registry { return s.rooms }

// Connect dials the coordinator at cfg.ServerUrl, registers this node,
// and starts the reportNodeOnline heartbeat. It blocks until the
// connection is established; the read loop runs on its own goroutine.
func (s *Server) Connect() error {
	c, err := dial(s.cfg.ServerUrl, s.logger)
	if err != nil {
		return fmt.Errorf("mediaserver: connecting to %s: %w", s.cfg.ServerUrl, err)
	}
	s.client = c
	go c.peer.Run()

	if err := c.registerNode(s.cfg.NodeId); err != nil {
		c.close()
		return fmt.Errorf("mediaserver: registerNode: %w", err)
	}

	go s.heartbeat()

	return nil
}

func (s *Server) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.client.reportNodeOnline(s.cfg.NodeId, s.rooms.Count()); err != nil {
				s.logger.Error(err, "reportNodeOnline failed")
			}
		case <-s.client.peer.Done():
			return
		}
	}
}

// Close shuts down the control connection and every worker.
func (s *Server) Close() {
	if s.client != nil {
		s.client.close()
	}
	for _, w := range s.workers {
		w.Close()
	}
}
