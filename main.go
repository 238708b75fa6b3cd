package main

import (
	"fmt"
	"os"

	"github.com/PolarWolf314/tiaki/cmd"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tiaki",
	Short: "Tiaki - end-to-end encryption keys for your devices.",
	Long: `Tiaki manages this device's end-to-end encryption key and the channel
secrets shared between participant devices.

Features:
  - Generate and register an RSA device key, sealed in a local vault
  - Wrap a channel secret for every device in a channel
  - Encrypt and decrypt message content with AES-256-CBC

Usage:
  tiaki <command> [flags]

Available Commands:
  device     Manage this device's key
  channel    Share channel secrets and protect message content

Run 'tiaki help <command>' for more details on a specific command.
`,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to Tiaki! Run 'tiaki --help' to see available commands.")
	},
}

func init() {
	rootCmd.AddCommand(cmd.GetDeviceCmd())
	rootCmd.AddCommand(cmd.GetChannelCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
