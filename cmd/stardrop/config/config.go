package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"github.com/fatih/structs"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	CONFIGS_DIR_NAME         = ".config"
	STARDROP_CONFIG_DIR_NAME = "stardrop"
	CONFIG_FILE_NAME         = "config"
	CONFIG_FILE_EXT          = "yml"

	StyleRich = "rich"
	StyleRaw  = "raw"
)

type Config struct {
	Relay          string   `mapstructure:"relay"`
	Verbose        bool     `mapstructure:"verbose"`
	TuiStyle       string   `mapstructure:"tui_style"`
	STUNServers    []string `mapstructure:"stun_servers"`
	OutputDir      string   `mapstructure:"output_dir"`
	OverwriteFiles bool     `mapstructure:"overwrite_files"`
	ChunkSize      int      `mapstructure:"chunk_size"`
	RelayPort      int      `mapstructure:"relay_port"`
	CodePolicy     string   `mapstructure:"code_policy"`
	SingleUseCodes bool     `mapstructure:"single_use_codes"`
}

func GetDefault() Config {
	return Config{
		Relay:          "localhost:8080",
		Verbose:        false,
		TuiStyle:       StyleRich,
		STUNServers:    []string{"stun:stun.l.google.com:19302"},
		OutputDir:      ".",
		OverwriteFiles: false,
		ChunkSize:      transfer.MaxChunkSize,
		RelayPort:      8080,
		CodePolicy:     "overwrite",
		SingleUseCodes: false,
	}
}

func (config Config) Map() map[string]any {
	m := map[string]any{}
	for _, field := range structs.Fields(config) {
		key := field.Tag("mapstructure")
		value := field.Value()
		m[key] = value
	}
	return m
}

// Yaml renders the config as a YAML document with sorted keys.
func (config Config) Yaml() []byte {
	m := config.Map()
	keys := maps.Keys(m)
	slices.Sort(keys)
	var builder strings.Builder
	for _, k := range keys {
		switch v := m[k].(type) {
		case []string:
			quoted := make([]string, 0, len(v))
			for _, s := range v {
				quoted = append(quoted, fmt.Sprintf("%q", s))
			}
			builder.WriteString(fmt.Sprintf("%s: [%s]", k, strings.Join(quoted, ", ")))
		case string:
			builder.WriteString(fmt.Sprintf("%s: %q", k, v))
		default:
			builder.WriteString(fmt.Sprintf("%s: %v", k, v))
		}
		builder.WriteRune('\n')
	}
	return []byte(builder.String())
}

func IsDefault(key string) bool {
	defaults := GetDefault().Map()
	return reflect.DeepEqual(viper.Get(key), defaults[key])
}

// Init initializes the viper config.
// `config.yml` is created in $HOME/.config/stardrop if not already existing.
// NOTE: The precedence levels of viper are the following: flags -> config file -> defaults.
func Init() error {
	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("resolving home dir: %w", err)
	}
	return initIn(filepath.Join(home, CONFIGS_DIR_NAME, STARDROP_CONFIG_DIR_NAME))
}

func initIn(configPath string) error {
	viper.AddConfigPath(configPath)
	viper.SetConfigName(CONFIG_FILE_NAME)
	viper.SetConfigType(CONFIG_FILE_EXT)

	for k, v := range GetDefault().Map() {
		viper.SetDefault(k, v)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Create config file if not found.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("could not read config file: %w", err)
		}
		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			return fmt.Errorf("could not create config directory: %w", err)
		}
		file := filepath.Join(configPath, fmt.Sprintf("%s.%s", CONFIG_FILE_NAME, CONFIG_FILE_EXT))
		if err := os.WriteFile(file, GetDefault().Yaml(), 0644); err != nil {
			return fmt.Errorf("could not write defaults to config file: %w", err)
		}
		viper.SetConfigFile(file)
	}
	return nil
}
