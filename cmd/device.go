package cmd

import (
	"github.com/PolarWolf314/tiaki/internal/configs"
	logger "github.com/PolarWolf314/tiaki/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	verbose    bool
	debug      bool
	dataDir    string
	passphrase string
	Logger     logger.Logger

	// DeviceCmd is the top-level device command.
	DeviceCmd = &cobra.Command{
		Use:   "device",
		Short: "Manage this device's end-to-end encryption key",
		Long: `Provides commands for the device key lifecycle.

A new key is generated as the pending device. Once the directory service
has issued this device an id, register the key under it and enable it.

Examples:
  # Generate a key pair and print the public key
  tiaki device generate

  # Store the key under the issued device id
  tiaki device register 5f0c2a

  # Mark the device as enabled
  tiaki device enable

  # Check the device against the account's device list
  tiaki device status --devices devices.json`,
		PersistentPreRun: initCommand,
	}
)

func init() {
	addCommonFlags(DeviceCmd)

	DeviceCmd.AddCommand(generateCmd)
	DeviceCmd.AddCommand(registerCmd)
	DeviceCmd.AddCommand(enableCmd)
	DeviceCmd.AddCommand(statusCmd)
	DeviceCmd.AddCommand(showCmd)
	DeviceCmd.AddCommand(flushCmd)
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the key store and vault (default $"+configs.EnvDataDir+")")
	cmd.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "key vault passphrase (default $"+configs.EnvPassphrase+")")
}

func initCommand(cmd *cobra.Command, args []string) {
	Logger = logger.Logger{
		Verbose: verbose,
		Debug:   debug,
	}
	Logger.Debugf("Initializing %s command with verbose=%t, debug=%t", cmd.Name(), verbose, debug)

	if dataDir != "" {
		Logger.Debugf("Using data directory %s", dataDir)
		configs.TiakiSettings.UseDataDir(dataDir)
	}
}

// Helper functions for testing

// GetDeviceCmd returns the DeviceCmd for testing.
func GetDeviceCmd() *cobra.Command {
	return DeviceCmd
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	dataDir = ""
	passphrase = ""
	resetStatusCommandState()
	resetShowCommandState()
	resetChannelCommandState()
	resetCobraFlagState(DeviceCmd)
	resetCobraFlagState(ChannelCmd)
}

// resetCobraFlagState marks every flag of cmd and its subcommands unchanged
// to prevent test pollution.
func resetCobraFlagState(cmd *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		flag.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetCobraFlagState(sub)
	}
}

// SetLogger sets the logger for testing.
func SetLogger(l logger.Logger) {
	Logger = l
}
