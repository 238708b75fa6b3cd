package cmd

import (
	"github.com/PolarWolf314/tiaki/internal/ui"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate this device's key pair",
	Long: `Generates an RSA key pair for this device and stores it as the pending
device. If the device already has a key, that key is printed instead.

The private key is sealed in the key vault and never leaves it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting generate command")

		opts, err := sessionOptions(true, false)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		spinner, cleanup := startSpinner("Generating device key pair...")
		defer cleanup()

		result, err := workflows.Generate(cmd.Context(), opts)
		if err != nil {
			Logger.Errorf("Generate failed: %v", err)
			spinner.FinalMSG = formatError(err)
			return nil
		}

		headline := ui.Success.Sprint("✓") + " Generated a key pair for device " + ui.Device.Sprint(result.DeviceID)
		if result.Reused {
			headline = ui.Success.Sprint("✓") + " Device " + ui.Device.Sprint(result.DeviceID) + " already has a key pair"
		}

		spinner.FinalMSG = headline + "\n" +
			"Fingerprint: " + ui.KeyID.Sprint(result.Fingerprint) + "\n" +
			result.PublicKey +
			ui.Info.Sprint("→") + " Upload the public key to the directory service, then run " +
			ui.Code.Sprint("tiaki device register <device-id>")
		return nil
	},
}
