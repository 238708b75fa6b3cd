package cmd

import (
	"fmt"

	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Wrap a fresh channel secret for every participant device",
	Long: `Generates a channel secret and wraps it with the public key of every
device in --devices. The list is a JSON array of devices, or an object with a
"devices" array as returned by the directory service.

Either every device gets an envelope or none does: if any device has no RSA
messaging key the command fails without output.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting prepare command")

		data, err := readFileOrStdin(channelDevicesPath)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		devices, err := workflows.ParseDevices(data)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}
		Logger.Debugf("Preparing secrets for %d devices", len(devices))

		opts, err := sessionOptions(false, channelDevicesPath == "-")
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		result, err := workflows.Prepare(cmd.Context(), workflows.PrepareOptions{
			SessionOptions: opts,
			Devices:        devices,
		})
		if err != nil {
			return fmt.Errorf("%s", formatError(err))
		}

		return writeJSON(result.Secrets)
	},
}
