package main

import (
	"fmt"
	"os"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/commands"
	"github.com/SpatiumPortae/stardrop/cmd/stardrop/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X main.version=vX.Y.Z".
var version = "v0.1.0"

// rootCmd is the top level `stardrop` command on which the other subcommands are attached to.
var rootCmd = &cobra.Command{
	Use:   "stardrop",
	Short: "Stardrop pairs two computers with a short code and sends a file directly between them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		if err := viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose")); err != nil {
			return fmt.Errorf("binding verbose flag: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

// Entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information to a file on the format `.stardrop-[command].log` in the current directory")
	rootCmd.AddCommand(commands.Send(version))
	rootCmd.AddCommand(commands.Receive(version))
	rootCmd.AddCommand(commands.Serve(version))
	rootCmd.AddCommand(commands.Config())
	rootCmd.AddCommand(commands.Version(version))
}
