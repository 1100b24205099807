package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/config"
	receiver_tui "github.com/SpatiumPortae/stardrop/cmd/stardrop/tui/receiver"
	"github.com/SpatiumPortae/stardrop/internal/file"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/SpatiumPortae/stardrop/internal/stardrop"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ------------------------------------------------------ Receive ------------------------------------------------------

func Receive(version string) *cobra.Command {
	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive a file",
		Long:  "The receive command requests a pairing code and waits for a sender to join with it.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to viper.
			if err := viper.BindPFlag("relay", cmd.Flags().Lookup("relay")); err != nil {
				return fmt.Errorf("binding relay flag: %w", err)
			}
			if err := viper.BindPFlag("tui_style", cmd.Flags().Lookup("tui-style")); err != nil {
				return fmt.Errorf("binding tui-style flag: %w", err)
			}
			if err := viper.BindPFlag("overwrite_files", cmd.Flags().Lookup("yes")); err != nil {
				return fmt.Errorf("binding yes flag: %w", err)
			}
			if err := viper.BindPFlag("output_dir", cmd.Flags().Lookup("output")); err != nil {
				return fmt.Errorf("binding output flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRelayFromViper(); err != nil {
				return err
			}

			logger, err := setupLoggingFromViper("receive")
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			switch viper.GetString("tui_style") {
			case config.StyleRich:
				if err := handleReceiveCommand(version, logger); err != nil {
					return fmt.Errorf("running rich receive command: %w", err)
				}
				return nil
			case config.StyleRaw:
				if err := handleReceiveCommandRaw(version); err != nil {
					return fmt.Errorf("running raw receive command: %w", err)
				}
				return nil
			default:
				return errors.New("invalid tui style provided")
			}
		},
	}
	receiveCmd.Flags().StringP("relay", "r", "", relayFlagDesc)
	receiveCmd.Flags().BoolP("yes", "y", false, "Overwrite existing files without [Y/n] prompts")
	receiveCmd.Flags().StringP("output", "o", "", "Directory the received file is stored in")
	receiveCmd.Flags().StringP("tui-style", "s", "", tuiStyleFlagDesc)
	return receiveCmd
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleReceiveCommand is the receive application.
func handleReceiveCommand(version string, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []receiver_tui.Option{
		receiver_tui.WithLogger(logger),
		receiver_tui.WithOverwrite(viper.GetBool("overwrite_files")),
		receiver_tui.WithCopyCommand(sendCommand),
	}
	ver, err := semver.Parse(version)
	if err == nil {
		opts = append(opts, receiver_tui.WithVersion(ver))
	}
	receiver := receiver_tui.New(ctx, endpointConfigFromViper(), viper.GetString("output_dir"), opts...)

	m, err := receiver.Run()
	if err != nil {
		return fmt.Errorf("running receiver tui: %w", err)
	}
	fmt.Println("")
	_, err = receiver_tui.Result(m)
	return err
}

func handleReceiveCommandRaw(version string) error {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := checkBrokerVersion(ctx, version); err != nil {
		return err
	}
	codes := make(chan string, 1)
	go func() {
		select {
		case c := <-codes:
			fmt.Println(c)
		case <-ctx.Done():
		}
	}()
	cnf := endpointConfigFromViper()
	artifact, err := stardrop.Receive(ctx, codes, &cnf)
	if err != nil {
		return fmt.Errorf("receiving file: %w", err)
	}
	path, err := file.Commit(viper.GetString("output_dir"), artifact, viper.GetBool("overwrite_files"))
	if err != nil {
		return fmt.Errorf("storing %s: %w", artifact.Name, err)
	}
	fmt.Println(path)
	return nil
}

// sendCommand renders the command a sender runs to reach this receiver.
func sendCommand(pairingCode string) string {
	var builder strings.Builder
	builder.WriteString("stardrop send ")
	builder.WriteString(pairingCode)

	relayAddrKey := "relay"
	if !config.IsDefault(relayAddrKey) {
		builder.WriteString(fmt.Sprintf(" --%s %s", relayAddrKey, viper.GetString(relayAddrKey)))
	}
	builder.WriteString(" <file>")
	return builder.String()
}
