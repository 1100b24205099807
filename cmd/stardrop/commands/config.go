package commands

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/config"
	"github.com/SpatiumPortae/stardrop/internal/rendezvous"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"github.com/alecthomas/chroma/quick"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var stunSchemes = []string{"stun:", "stuns:", "turn:", "turns:"}

// Config returns the command managing the stardrop config file.
func Config() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View and configure options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	configCmd.AddCommand(
		configPathCmd(),
		configViewCmd(),
		configEditCmd(),
		configResetCmd(),
		configCheckCmd(),
	)
	return configCmd
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Output the path of the config file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(viper.ConfigFileUsed())
		},
	}
}

func configViewCmd() *cobra.Command {
	var defaults bool
	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "View the configured options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			contents := config.GetDefault().Yaml()
			if !defaults {
				configPath := viper.ConfigFileUsed()
				b, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("config file (%s) could not be read: %w", configPath, err)
				}
				contents = b
			}
			if err := quick.Highlight(os.Stdout, string(contents), "yaml", "terminal256", "onedark"); err != nil {
				fmt.Println(string(contents))
			}
			return nil
		},
	}
	viewCmd.Flags().BoolVar(&defaults, "defaults", false, "Show the default options instead of the config file")
	return viewCmd
}

func configEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit the configuration file",
		Long:  "Opens the config file in $EDITOR and checks the saved options once the editor exits.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := viper.ConfigFileUsed()
			// exec.Command looks up the bare executable, so editor arguments are dropped.
			editor, _, _ := strings.Cut(os.Getenv("EDITOR"), " ")
			if editor == "" {
				//lint:ignore ST1005 error string is command output
				return fmt.Errorf("Could not find default editor (is the $EDITOR variable set?)\nOptionally you can open the file (%s) manually", configPath)
			}
			editorCmd := exec.Command(editor, configPath)
			editorCmd.Stdin = os.Stdin
			editorCmd.Stdout = os.Stdout
			editorCmd.Stderr = os.Stderr
			if err := editorCmd.Run(); err != nil {
				return fmt.Errorf("failed to open file (%s) in editor (%s): %w", configPath, editor, err)
			}
			return reloadConfig()
		},
	}
}

func configResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset to the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := viper.ConfigFileUsed()
			if err := os.WriteFile(configPath, config.GetDefault().Yaml(), 0644); err != nil {
				return fmt.Errorf("config file (%s) could not be written: %w", configPath, err)
			}
			if err := reloadConfig(); err != nil {
				return err
			}
			fmt.Printf("Reset %s to the default options\n", configPath)
			return nil
		},
	}
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the configured options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := reloadConfig(); err != nil {
				return err
			}
			fmt.Println("Config is valid")
			return nil
		},
	}
}

// reloadConfig re-reads the config file into viper and checks its options.
func reloadConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("could not decode config file: %w", err)
	}
	if err := checkConfig(cfg); err != nil {
		return fmt.Errorf("config file (%s) has invalid options:\n%w", viper.ConfigFileUsed(), err)
	}
	return nil
}

// checkConfig reports every option of cfg that stardrop cannot run with.
func checkConfig(cfg config.Config) error {
	var errs []error
	if err := validateAddress(cfg.Relay); err != nil {
		errs = append(errs, fmt.Errorf("relay: %w: %q", err, cfg.Relay))
	}
	switch cfg.TuiStyle {
	case config.StyleRich, config.StyleRaw:
	default:
		errs = append(errs, fmt.Errorf("tui_style: expected %s or %s, got %q", config.StyleRich, config.StyleRaw, cfg.TuiStyle))
	}
	if _, err := rendezvous.ParsePolicy(cfg.CodePolicy); err != nil {
		errs = append(errs, fmt.Errorf("code_policy: %w", err))
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > transfer.MaxChunkSize {
		errs = append(errs, fmt.Errorf("chunk_size: must be between 1 and %d, got %d", transfer.MaxChunkSize, cfg.ChunkSize))
	}
	if cfg.RelayPort <= 0 || cfg.RelayPort > 65535 {
		errs = append(errs, fmt.Errorf("relay_port: must be between 1 and 65535, got %d", cfg.RelayPort))
	}
	for _, server := range cfg.STUNServers {
		if !hasSTUNScheme(server) {
			errs = append(errs, fmt.Errorf("stun_servers: %q lacks a stun: or turn: scheme", server))
		}
	}
	return errors.Join(errs...)
}

func hasSTUNScheme(server string) bool {
	for _, scheme := range stunSchemes {
		if strings.HasPrefix(server, scheme) {
			return true
		}
	}
	return false
}
