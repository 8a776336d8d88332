// Package clusterserver composes the ClusterServer process (spec.md
// §4.9): a pool of mediasoup Workers, a process-wide Room registry, and
// the inbound WebSocket endpoint clients connect to over the "protoo"
// sub-protocol.
package clusterserver

import (
	"fmt"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/rainstream/mediasfu/internal/config"
	"github.com/rainstream/mediasfu/internal/room"
	"github.com/rainstream/mediasfu/mediasoup"
)

// Server is the ClusterServer: it owns a fixed pool of mediasoup Workers
// handed out round-robin to new Rooms (spec.md §4.9 "creating rooms on
// demand... picks a worker"), and the Room registry every inbound
// connection is dispatched into.
type Server struct {
	cfg     config.ClusterServer
	logger  logr.Logger
	workers []*mediasoup.Worker
	next    uint32
	rooms   *room.Registry
}

// New spawns cfg.NumWorkers mediasoup Workers and returns a Server ready
// to accept connections via ServeHTTP.
func New(cfg config.ClusterServer, roomCfg room.Config) (*Server, error) {
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("clusterserver: numWorkers must be positive, got %d", cfg.NumWorkers)
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
			return nil, fmt.Errorf("clusterserver: spawning worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}

	return &Server{
		cfg:     cfg,
		logger:  mediasoup.NewLogger("ClusterServer"),
		workers: workers,
		rooms:   room.NewRegistry(roomCfg),
	}, nil
}

// getMediasoupWorker hands out workers round-robin, the same load
// spreading the original ClusterServer does across its worker pool.
func (s *Server) getMediasoupWorker() *mediasoup.Worker {
	idx := atomic.AddUint32(&s.next, 1) - 1
	return s.workers[int(idx)%len(s.workers)]
}

// Rooms exposes the registry so tests and the HTTP layer can resolve
// rooms on demand.
func (s *Server) Rooms() *room.Registry { return s.rooms }

// Close shuts down every worker owned by the server.
func (s *Server) Close() {
	for _, w := range s.workers {
		w.Close()
	}
}
