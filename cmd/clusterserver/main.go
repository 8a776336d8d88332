// Command clusterserver runs the inbound, client-facing ClusterServer
// process (spec.md §4.9): a WebSocket endpoint clients connect to over
// the protoo sub-protocol, backed by a pool of mediasoup Workers.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/rainstream/mediasfu/internal/clusterserver"
	"github.com/rainstream/mediasfu/internal/config"
	"github.com/rainstream/mediasfu/internal/room"
	"github.com/rainstream/mediasfu/mediasoup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "clusterserver:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClusterServer(os.Args[1:])
	if err != nil {
		return err
	}

	logger := mediasoup.NewLogger("main")
	logger.Info("starting clusterserver", "serverIP", cfg.ServerIP, "serverPort", cfg.ServerPort, "numWorkers", cfg.NumWorkers)

	srv, err := clusterserver.New(cfg, room.DefaultConfig())
	if err != nil {
		return err
	}
	defer srv.Close()

	addr := fmt.Sprintf("%s:%d", cfg.ServerIP, cfg.ServerPort)
	logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, srv)
}
