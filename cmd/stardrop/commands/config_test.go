package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfig(t *testing.T) {
	assert.NoError(t, checkConfig(config.GetDefault()))

	tests := []struct {
		name   string
		modify func(*config.Config)
		field  string
	}{
		{"relay", func(c *config.Config) { c.Relay = "http://broker.example.com" }, "relay"},
		{"tui style", func(c *config.Config) { c.TuiStyle = "fancy" }, "tui_style"},
		{"code policy", func(c *config.Config) { c.CodePolicy = "first-wins" }, "code_policy"},
		{"chunk size too large", func(c *config.Config) { c.ChunkSize = 1 << 20 }, "chunk_size"},
		{"chunk size zero", func(c *config.Config) { c.ChunkSize = 0 }, "chunk_size"},
		{"relay port", func(c *config.Config) { c.RelayPort = 70000 }, "relay_port"},
		{"stun scheme", func(c *config.Config) { c.STUNServers = []string{"stun.l.google.com:19302"} }, "stun_servers"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.GetDefault()
			tc.modify(&cfg)
			err := checkConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}

	t.Run("reports every invalid option", func(t *testing.T) {
		cfg := config.GetDefault()
		cfg.TuiStyle = "fancy"
		cfg.CodePolicy = "first-wins"
		err := checkConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tui_style")
		assert.Contains(t, err.Error(), "code_policy")
	})
}

func TestReloadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	path := filepath.Join(t.TempDir(), "config.yml")
	viper.SetConfigFile(path)

	require.NoError(t, os.WriteFile(path, config.GetDefault().Yaml(), 0644))
	require.NoError(t, reloadConfig())

	require.NoError(t, os.WriteFile(path, []byte("tui_style: \"fancy\"\ncode_policy: \"reject\"\n"), 0644))
	err := reloadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tui_style")
	assert.NotContains(t, err.Error(), "code_policy")
}
