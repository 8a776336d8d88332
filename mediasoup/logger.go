package mediasoup

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

var root logr.Logger

func init() {
	level := zerolog.InfoLevel
	if os.Getenv("MEDIASOUP_DEBUG") != "" {
		level = zerolog.DebugLevel
	}

	zerologr.SetMaxV(1)

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	root = zerologr.New(&zl)
}

// NewLogger returns a named child logger used by every proxy object and
// channel constructor, mirroring the teacher's per-object `logger` field.
func NewLogger(name string) logr.Logger {
	return root.WithName(name)
}

// SetLogger overrides the package-wide root logger, letting a hosting
// process (ClusterServer/MediaServer) install its own zerolog sink.
func SetLogger(l logr.Logger) {
	root = l
}
