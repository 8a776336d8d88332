package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainstream/mediasfu/mediasoup"
)

func TestLoadClusterServerDefaults(t *testing.T) {
	cfg, err := LoadClusterServer(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.ServerIP)
	assert.EqualValues(t, 3443, cfg.ServerPort)
	assert.Equal(t, 1, cfg.NumWorkers)
}

func TestLoadClusterServerFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"serverIP":"10.0.0.1","serverPort":4000,"numWorkers":2}`), 0o644))

	cfg, err := LoadClusterServer([]string{
		"--configFile", path,
		"--serverPort", "5000",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.ServerIP)
	assert.EqualValues(t, 5000, cfg.ServerPort)
	assert.Equal(t, 2, cfg.NumWorkers)
}

func TestMatchLogTagsExpandsGlob(t *testing.T) {
	tags, err := matchLogTags([]string{"rt*"})
	require.NoError(t, err)

	assert.Contains(t, tags, mediasoup.WorkerLogTagRtp)
	assert.Contains(t, tags, mediasoup.WorkerLogTagRtcp)
	assert.Contains(t, tags, mediasoup.WorkerLogTagRtx)
	assert.NotContains(t, tags, mediasoup.WorkerLogTagIce)
}

func TestLoadMediaServerDefaults(t *testing.T) {
	cfg, err := LoadMediaServer([]string{"--nodeId", "n1", "--serverUrl", "ws://localhost:3443/node"})
	require.NoError(t, err)

	assert.Equal(t, "n1", cfg.NodeId)
	assert.Equal(t, "ws://localhost:3443/node", cfg.ServerUrl)
	assert.Equal(t, 1, cfg.NumWorkers)
}
