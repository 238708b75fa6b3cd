package cmd

import (
	"fmt"

	"github.com/PolarWolf314/tiaki/internal/ui"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Delete this device's records and keys",
	Long: `Deletes every device record, the active device pointer and the sealed
private keys. Use it after the device has been revoked, or to start over.

Flushing does not need the vault passphrase.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting flush command")

		opts, err := sessionOptions(false, false)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		spinner, cleanup := startSpinner("Flushing device keys...")
		defer cleanup()

		result, err := workflows.Flush(cmd.Context(), opts)
		if err != nil {
			Logger.Errorf("Flush failed: %v", err)
			spinner.FinalMSG = formatError(err)
			return nil
		}

		if result.Records == 0 {
			spinner.FinalMSG = ui.Success.Sprint("✓") + " Nothing to flush"
			return nil
		}

		finalMessage := ui.Success.Sprint("✓") + fmt.Sprintf(" Flushed %d device record(s)", result.Records)
		if result.DeviceID != "" {
			finalMessage += " " + ui.Muted.Sprint("active device was "+result.DeviceID)
		}
		spinner.FinalMSG = finalMessage
		return nil
	},
}
