package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Version(version string) *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Display the installed version of stardrop",
		Long:  "The version command displays the installed version, and with --check the version of the configured broker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			check, _ := cmd.Flags().GetBool("check")
			if !check {
				return nil
			}
			local, err := semver.Parse(version)
			if err != nil {
				return fmt.Errorf("parsing version: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			relayAddr := viper.GetString("relay")
			remote, err := semver.GetBrokerVersion(ctx, relayAddr)
			if err != nil {
				return err
			}
			compatibility := "compatible"
			if !local.Compatible(remote) {
				compatibility = "incompatible"
			}
			fmt.Printf("broker %s: %s (%s)\n", relayAddr, remote, compatibility)
			return nil
		},
	}
	versionCmd.Flags().Bool("check", false, "also query the version of the configured broker")
	return versionCmd
}
