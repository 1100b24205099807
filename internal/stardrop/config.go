//nolint:errcheck
package stardrop

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/SpatiumPortae/stardrop/protocol/transfer"
)

// defaultConfig specifies the default config for the stardrop module. No STUN
// servers are used by default, which limits peers to host candidates.
var defaultConfig = Config{
	BrokerAddr: "localhost:8080",
	ChunkSize:  transfer.MaxChunkSize,
}

// Config specifies a config for the stardrop module.
type Config struct {
	BrokerAddr  string        `json:"BrokerAddr,omitempty"`
	STUNServers []string      `json:"STUNServers,omitempty"`
	ChunkSize   int           `json:"ChunkSize,omitempty"`
	ResetDelay  time.Duration `json:"ResetDelay,omitempty"`
}

// MergeConfigReader merges the config from the reader
// into the provided config. Values in the reader
// will override values in the provided config.
func MergeConfigReader(dst Config, r io.Reader) Config {
	json.NewDecoder(r).Decode(&dst)
	return dst
}

// MergeConfig merges the specified source config into the
// specified destination config. Values present in the source
// config will override values in the destination config.
func MergeConfig(dst Config, src *Config) Config {
	if src == nil {
		return dst
	}
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(src)
	return MergeConfigReader(dst, &buf)
}
