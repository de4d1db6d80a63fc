package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelayHomeOverridesEverything(t *testing.T) {
	t.Setenv("RELAY_HOME", "/custom/relay")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	assert.Equal(t, "/custom/relay/config", ConfigDir())
	assert.Equal(t, "/custom/relay/data", DataDir())
	assert.Equal(t, "/custom/relay/state", StateDir())
}

func TestXDGDirs(t *testing.T) {
	t.Setenv("RELAY_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	assert.Equal(t, filepath.Join("/xdg/config", "relay"), ConfigDir())
	assert.Equal(t, filepath.Join("/xdg/data", "relay"), DataDir())
	assert.Equal(t, filepath.Join("/xdg/state", "relay"), StateDir())
}

func TestDerivedPaths(t *testing.T) {
	t.Setenv("RELAY_HOME", "/r")

	assert.Equal(t, "/r/config/relay.yml", ConfigFilePath())
	assert.Equal(t, "/r/data/sessions.db", DatabasePath())
	assert.Equal(t, "/r/state/relayd.pid", PidFilePath())
}
