package cmd

import (
	"fmt"

	"github.com/PolarWolf314/tiaki/internal/ui"
	"github.com/PolarWolf314/tiaki/internal/utils"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register [device-id]",
	Short: "Store the device key under the id issued by the directory service",
	Long: `Stores this device's key pair under device-id and makes it the active
device. A key pair is generated first if there is none.

Without device-id an id is derived from the hostname.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting register command")

		deviceID := ""
		if len(args) > 0 {
			deviceID = args[0]
		} else {
			deviceID = utils.SuggestDeviceID(nil)
			Logger.Infof("No device id given, using %s", deviceID)
		}

		if !utils.IsValidDeviceID(deviceID) {
			finalMessage := ui.Error.Sprint("✗") + " Invalid device id " + ui.Device.Sprint(deviceID) + "\n" +
				ui.Info.Sprint("→") + " Device ids start with a letter or digit and contain only letters, digits, " +
				ui.Code.Sprint("_ . : -")
			fmt.Print(ui.EnsureNewline(finalMessage))
			return nil
		}

		opts, err := sessionOptions(true, false)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		spinner, cleanup := startSpinner("Registering device " + deviceID + "...")
		defer cleanup()

		result, err := workflows.Register(cmd.Context(), workflows.RegisterOptions{
			SessionOptions: opts,
			DeviceID:       deviceID,
		})
		if err != nil {
			Logger.Errorf("Register failed: %v", err)
			spinner.FinalMSG = formatError(err)
			return nil
		}

		finalMessage := ui.Success.Sprint("✓") + " Registered device " + ui.Device.Sprint(result.DeviceID)
		if result.PreviousDeviceID != "" && result.PreviousDeviceID != result.DeviceID {
			finalMessage += " " + ui.Muted.Sprint("was "+result.PreviousDeviceID)
		}
		finalMessage += "\nFingerprint: " + ui.KeyID.Sprint(result.Fingerprint) + "\n" +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("tiaki device enable") + " once the directory service lists this device"
		spinner.FinalMSG = finalMessage
		return nil
	},
}
