package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYaml(t *testing.T) {
	v := viper.New()
	v.SetConfigType(CONFIG_FILE_EXT)
	require.NoError(t, v.ReadConfig(bytes.NewReader(GetDefault().Yaml())))

	var got Config
	require.NoError(t, v.Unmarshal(&got))
	assert.Equal(t, GetDefault(), got)
}

func TestInit(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := filepath.Join(t.TempDir(), STARDROP_CONFIG_DIR_NAME)

	require.NoError(t, initIn(dir))
	path := filepath.Join(dir, "config.yml")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, GetDefault().Yaml(), b)
	assert.Equal(t, path, viper.ConfigFileUsed())
	assert.Equal(t, "localhost:8080", viper.GetString("relay"))
	assert.True(t, IsDefault("relay"))

	// A second run reads the existing file.
	require.NoError(t, os.WriteFile(path, []byte("relay: \"broker.example.com:80\"\n"), 0644))
	viper.Reset()
	require.NoError(t, initIn(dir))
	assert.Equal(t, "broker.example.com:80", viper.GetString("relay"))
	assert.False(t, IsDefault("relay"))
	assert.Equal(t, GetDefault().STUNServers, viper.GetStringSlice("stun_servers"))
}
