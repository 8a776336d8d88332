// Package config loads ClusterServer/MediaServer configuration from a
// JSON file plus CLI flags, grounded on
// original_source/Src/{ClusterServer,MediaServer}/Settings.cpp. CLI
// parsing and config-file loading are ambient, out-of-spec concerns, so
// this package is deliberately built on the standard library (`flag`,
// `encoding/json`) rather than a third-party CLI framework; see
// DESIGN.md.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"

	"github.com/rainstream/mediasfu/mediasoup"
)

// ClusterServer holds the settings of the inbound, client-facing process
// (spec.md §4.9 "ClusterServer"), mirroring Settings::Configuration in
// the original ClusterServer.
type ClusterServer struct {
	ServerIP   string                   `json:"serverIP"`
	ServerPort uint16                   `json:"serverPort"`
	LogLevel   mediasoup.WorkerLogLevel `json:"logLevel"`
	LogTags    []mediasoup.WorkerLogTag `json:"logTags"`
	NumWorkers int                      `json:"numWorkers"`
	RtcMinPort uint16                   `json:"rtcMinPort"`
	RtcMaxPort uint16                   `json:"rtcMaxPort"`
}

// MediaServer holds the settings of the outbound signaling client
// (spec.md §4.9 "MediaServer"), mirroring Settings::Configuration in the
// original MediaServer.
type MediaServer struct {
	ServerUrl  string                   `json:"serverUrl"`
	NodeId     string                   `json:"nodeId"`
	LogLevel   mediasoup.WorkerLogLevel `json:"logLevel"`
	LogTags    []mediasoup.WorkerLogTag `json:"logTags"`
	NumWorkers int                      `json:"numWorkers"`
	RtcMinPort uint16                   `json:"rtcMinPort"`
	RtcMaxPort uint16                   `json:"rtcMaxPort"`
}

func defaultClusterServer() ClusterServer {
	return ClusterServer{
		ServerIP:   "0.0.0.0",
		ServerPort: 3443,
		LogLevel:   mediasoup.WorkerLogLevelError,
		NumWorkers: 1,
		RtcMinPort: 10000,
		RtcMaxPort: 59999,
	}
}

func defaultMediaServer() MediaServer {
	return MediaServer{
		LogLevel:   mediasoup.WorkerLogLevelError,
		NumWorkers: 1,
		RtcMinPort: 10000,
		RtcMaxPort: 59999,
	}
}

// allLogTags is the enum `--logTag` patterns are matched against,
// mirroring Settings::SetLogTags' fixed tag set.
var allLogTags = []mediasoup.WorkerLogTag{
	mediasoup.WorkerLogTagInfo, mediasoup.WorkerLogTagIce, mediasoup.WorkerLogTagDtls,
	mediasoup.WorkerLogTagRtp, mediasoup.WorkerLogTagSrtp, mediasoup.WorkerLogTagRtcp,
	mediasoup.WorkerLogTagRtx, mediasoup.WorkerLogTagBwe, mediasoup.WorkerLogTagScore,
	mediasoup.WorkerLogTagSimulcast, mediasoup.WorkerLogTagSvc, mediasoup.WorkerLogTagSctp,
	mediasoup.WorkerLogTagMessage,
}

// matchLogTags expands a list of `--logTag` glob patterns (e.g. "rt*")
// against the known tag enum, exactly as SetLogTags did with a literal
// list; a glob library replaces the original's exact-match loop so
// patterns like "rt*" or "{ice,dtls}" also work.
func matchLogTags(patterns []string) ([]mediasoup.WorkerLogTag, error) {
	var tags []mediasoup.WorkerLogTag
	seen := make(map[mediasoup.WorkerLogTag]bool)
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("config: invalid --logTag pattern %q: %w", pattern, err)
		}
		for _, tag := range allLogTags {
			if g.Match(string(tag)) && !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags, nil
}

// loadFile merges a JSON config file over dst, if configFile is set.
func loadFile(configFile string, dst interface{}) error {
	if configFile == "" {
		return nil
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", configFile, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: parsing %s: %w", configFile, err)
	}
	return nil
}

// LoadClusterServer parses CLI flags (overriding any --configFile
// contents loaded first) into a ClusterServer configuration, mirroring
// Settings::SetConfiguration's getopt_long_only loop.
func LoadClusterServer(args []string) (ClusterServer, error) {
	cfg := defaultClusterServer()

	fs := flag.NewFlagSet("clusterserver", flag.ContinueOnError)
	configFile := fs.String("configFile", "", "path to a JSON configuration file")
	logLevel := fs.String("logLevel", "", "worker log level: debug, warn, error, none")
	logTagList := fs.String("logTag", "", "comma separated log tag glob patterns")
	serverIP := fs.String("serverIP", "", "listen IP")
	serverPort := fs.Uint("serverPort", 0, "listen port")
	numWorkers := fs.Int("numWorkers", 0, "number of mediasoup workers")
	if err := fs.Parse(args); err != nil {
		return ClusterServer{}, err
	}

	if err := loadFile(*configFile, &cfg); err != nil {
		return ClusterServer{}, err
	}

	if *logLevel != "" {
		cfg.LogLevel = mediasoup.WorkerLogLevel(*logLevel)
	}
	if *logTagList != "" {
		tags, err := matchLogTags(strings.Split(*logTagList, ","))
		if err != nil {
			return ClusterServer{}, err
		}
		cfg.LogTags = tags
	}
	if *serverIP != "" {
		cfg.ServerIP = *serverIP
	}
	if *serverPort != 0 {
		cfg.ServerPort = uint16(*serverPort)
	}
	if *numWorkers != 0 {
		cfg.NumWorkers = *numWorkers
	}

	return cfg, nil
}

// LoadMediaServer parses CLI flags into a MediaServer configuration,
// mirroring the original MediaServer's Settings::SetConfiguration.
func LoadMediaServer(args []string) (MediaServer, error) {
	cfg := defaultMediaServer()

	fs := flag.NewFlagSet("mediaserver", flag.ContinueOnError)
	configFile := fs.String("configFile", "", "path to a JSON configuration file")
	serverUrl := fs.String("serverUrl", "", "ClusterServer signaling URL")
	nodeId := fs.String("nodeId", "", "this node's id")
	logLevel := fs.String("logLevel", "", "worker log level: debug, warn, error, none")
	logTagList := fs.String("logTag", "", "comma separated log tag glob patterns")
	numWorkers := fs.Int("numWorkers", 0, "number of mediasoup workers")
	if err := fs.Parse(args); err != nil {
		return MediaServer{}, err
	}

	if err := loadFile(*configFile, &cfg); err != nil {
		return MediaServer{}, err
	}

	if *serverUrl != "" {
		cfg.ServerUrl = *serverUrl
	}
	if *nodeId != "" {
		cfg.NodeId = *nodeId
	}
	if *logLevel != "" {
		cfg.LogLevel = mediasoup.WorkerLogLevel(*logLevel)
	}
	if *logTagList != "" {
		tags, err := matchLogTags(strings.Split(*logTagList, ","))
		if err != nil {
			return MediaServer{}, err
		}
		cfg.LogTags = tags
	}
	if *numWorkers != 0 {
		cfg.NumWorkers = *numWorkers
	}

	return cfg, nil
}
