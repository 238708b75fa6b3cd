package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	channelEnvelopePath string
	channelDeviceID     string
	channelDevicesPath  string
	channelOutputPath   string

	// ChannelCmd is the top-level channel command.
	ChannelCmd = &cobra.Command{
		Use:   "channel",
		Short: "Share channel secrets and protect message content",
		Long: `Provides commands for encrypted channels.

A channel secret is wrapped once per participant device with prepare. Each
device unwraps its envelope to encrypt and decrypt message content.

Examples:
  # Wrap a fresh secret for every participant device
  tiaki channel prepare --devices participants.json > secrets.json

  # Encrypt a message with this device's envelope
  tiaki channel encrypt --envelope secrets.json "kia ora" > message.json

  # Decrypt it again
  tiaki channel decrypt --envelope secrets.json message.json`,
		PersistentPreRun: initCommand,
	}
)

func init() {
	addCommonFlags(ChannelCmd)

	ChannelCmd.AddCommand(prepareCmd)
	ChannelCmd.AddCommand(encryptCmd)
	ChannelCmd.AddCommand(decryptCmd)

	prepareCmd.Flags().StringVar(&channelDevicesPath, "devices", "", "JSON list of participant devices (- for stdin)")
	_ = prepareCmd.MarkFlagRequired("devices")

	for _, cmd := range []*cobra.Command{prepareCmd, encryptCmd} {
		cmd.Flags().StringVarP(&channelOutputPath, "output", "o", "", "write the result to a file instead of stdout")
	}
	decryptCmd.Flags().StringVarP(&channelOutputPath, "output", "o", "", "write the plaintext to a file instead of stdout")

	for _, cmd := range []*cobra.Command{encryptCmd, decryptCmd} {
		cmd.Flags().StringVar(&channelEnvelopePath, "envelope", "", "envelope, participant secret or prepare output (- for stdin)")
		cmd.Flags().StringVar(&channelDeviceID, "device", "", "device whose envelope to use (default: this device)")
		_ = cmd.MarkFlagRequired("envelope")
	}
}

func resetChannelCommandState() {
	channelEnvelopePath = ""
	channelDeviceID = ""
	channelDevicesPath = ""
	channelOutputPath = ""
}

// GetChannelCmd returns the ChannelCmd for testing.
func GetChannelCmd() *cobra.Command {
	return ChannelCmd
}

func writeOutput(data []byte) error {
	if channelOutputPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(channelOutputPath, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", channelOutputPath, err)
	}
	Logger.Infof("Wrote %s", channelOutputPath)
	return nil
}

func writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(data)
}
