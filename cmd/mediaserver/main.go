// Command mediaserver runs a MediaServer node (spec.md §4.9): a pool of
// mediasoup Workers registered with a signaling coordinator over the
// secret-media sub-protocol.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rainstream/mediasfu/internal/config"
	"github.com/rainstream/mediasfu/internal/mediaserver"
	"github.com/rainstream/mediasfu/internal/room"
	"github.com/rainstream/mediasfu/mediasoup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mediaserver:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadMediaServer(os.Args[1:])
	if err != nil {
		return err
	}

	logger := mediasoup.NewLogger("main")
	logger.Info("starting mediaserver", "nodeId", cfg.NodeId, "serverUrl", cfg.ServerUrl, "numWorkers", cfg.NumWorkers)

	srv, err := mediaserver.New(cfg, room.DefaultConfig())
	if err != nil {
		return err
	}
	defer srv.Close()

	if err := srv.Connect(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}
