package cmd

import (
	"github.com/PolarWolf314/tiaki/internal/ui"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable end-to-end encryption for this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting enable command")

		opts, err := sessionOptions(false, false)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		spinner, cleanup := startSpinner("Enabling device...")
		defer cleanup()

		result, err := workflows.Enable(cmd.Context(), opts)
		if err != nil {
			Logger.Errorf("Enable failed: %v", err)
			spinner.FinalMSG = formatError(err)
			return nil
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " End-to-end encryption enabled for device " + ui.Device.Sprint(result.DeviceID)
		return nil
	},
}
