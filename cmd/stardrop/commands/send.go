package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/config"
	sender_tui "github.com/SpatiumPortae/stardrop/cmd/stardrop/tui/sender"
	"github.com/SpatiumPortae/stardrop/internal/code"
	"github.com/SpatiumPortae/stardrop/internal/file"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/SpatiumPortae/stardrop/internal/session"
	"github.com/SpatiumPortae/stardrop/internal/stardrop"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// -------------------------------------------------------- Send -------------------------------------------------------

func Send(version string) *cobra.Command {
	sendCmd := &cobra.Command{
		Use:               "send code file",
		Short:             "Send a file",
		Long:              "The send command sends a file to the receiver waiting behind the provided pairing code.",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: codeCompletion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("relay", cmd.Flags().Lookup("relay")); err != nil {
				return fmt.Errorf("binding relay flag: %w", err)
			}
			if err := viper.BindPFlag("tui_style", cmd.Flags().Lookup("tui-style")); err != nil {
				return fmt.Errorf("binding tui-style flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRelayFromViper(); err != nil {
				return err
			}
			pairingCode, err := code.Normalize(args[0])
			if err != nil {
				return fmt.Errorf("%w: got %q", err, args[0])
			}

			logger, err := setupLoggingFromViper("send")
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			f, info, err := file.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			src := session.Source{Info: info, Reader: f}

			switch viper.GetString("tui_style") {
			case config.StyleRich:
				if err := handleSendCommand(version, pairingCode, args[1], src, logger); err != nil {
					return fmt.Errorf("running rich send command: %w", err)
				}
			case config.StyleRaw:
				if err := handleSendCommandRaw(version, pairingCode, src); err != nil {
					return fmt.Errorf("running raw send command: %w", err)
				}
			default:
				return errors.New("invalid tui style provided")
			}
			return nil
		},
	}
	sendCmd.Flags().StringP("relay", "r", "", relayFlagDesc)
	sendCmd.Flags().StringP("tui-style", "s", "", tuiStyleFlagDesc)
	return sendCmd
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleSendCommand is the sender application.
func handleSendCommand(version string, pairingCode string, path string, src session.Source, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []sender_tui.Option{sender_tui.WithLogger(logger)}
	ver, err := semver.Parse(version)
	// Conditionally add option to sender ui
	if err == nil {
		opts = append(opts, sender_tui.WithVersion(ver))
	}
	sender := sender_tui.New(ctx, endpointConfigFromViper(), pairingCode, path, src, opts...)
	m, err := sender.Run()
	if err != nil {
		return fmt.Errorf("running tui: %w", err)
	}
	fmt.Println("")
	return sender_tui.Result(m)
}

func handleSendCommandRaw(version string, pairingCode string, src session.Source) error {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := checkBrokerVersion(ctx, version); err != nil {
		return err
	}
	cnf := endpointConfigFromViper()
	if err := stardrop.Send(ctx, pairingCode, src, &cnf); err != nil {
		return fmt.Errorf("sending %s: %w", src.Info.Name, err)
	}
	fmt.Printf("sent %s (%d bytes)\n", src.Info.Name, src.Info.Size)
	return nil
}

// checkBrokerVersion fails when the configured broker runs an incompatible version.
func checkBrokerVersion(ctx context.Context, version string) error {
	ver, err := semver.Parse(version)
	if err != nil {
		return fmt.Errorf("parsing version: %w", err)
	}
	serverVer, err := semver.GetBrokerVersion(ctx, viper.GetString("relay"))
	if err != nil {
		return fmt.Errorf("fetching version from broker: %w", err)
	}
	if !ver.Compatible(serverVer) {
		return fmt.Errorf("incompatible version %s -> %s", ver, serverVer)
	}
	return nil
}

// -------------------------------------------------- Code Completion --------------------------------------------------

// codeCompletion inserts the separator once the first half of a code is typed.
func codeCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	directive := cobra.ShellCompDirectiveNoSpace | cobra.ShellCompDirectiveNoFileComp
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	if len(toComplete) == 3 && strings.Trim(toComplete, "0123456789") == "" {
		return []string{toComplete + "-"}, directive
	}
	return nil, directive
}
