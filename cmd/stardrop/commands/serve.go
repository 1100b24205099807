package commands

import (
	"fmt"

	"github.com/SpatiumPortae/stardrop/internal/rendezvous"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Serve(version string) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pairing broker",
		Long:  "The serve command runs the pairing broker that hands out codes and relays handshakes between endpoints.",
		Args:  cobra.MatchAll(cobra.ExactArgs(0), cobra.NoArgs),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("relay_port", cmd.Flags().Lookup("port")); err != nil {
				return fmt.Errorf("binding port flag: %w", err)
			}
			if err := viper.BindPFlag("code_policy", cmd.Flags().Lookup("code-policy")); err != nil {
				return fmt.Errorf("binding code-policy flag: %w", err)
			}
			if err := viper.BindPFlag("single_use_codes", cmd.Flags().Lookup("single-use")); err != nil {
				return fmt.Errorf("binding single-use flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ver, err := semver.Parse(version)
			if err != nil {
				return fmt.Errorf("server requires version to be set: %w", err)
			}
			policy, err := rendezvous.ParsePolicy(viper.GetString("code_policy"))
			if err != nil {
				return err
			}
			server := rendezvous.NewServer(viper.GetInt("relay_port"), ver,
				rendezvous.WithCodePolicy(policy),
				rendezvous.WithSingleUseCodes(viper.GetBool("single_use_codes")),
			)
			server.Start()
			return nil
		},
	}
	serveCmd.Flags().IntP("port", "p", 0, "port to run the pairing broker on")
	serveCmd.Flags().String("code-policy", "", "what happens when a taken code is registered again (overwrite|reject)")
	serveCmd.Flags().Bool("single-use", false, "forget a code once a sender has joined with it")
	return serveCmd
}
