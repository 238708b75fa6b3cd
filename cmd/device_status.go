package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/PolarWolf314/tiaki/internal/ui"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	statusDevicesPath    string
	statusFlushIfRevoked bool
	statusJSONOutput     bool
)

func init() {
	statusCmd.Flags().StringVar(&statusDevicesPath, "devices", "", "JSON device list from the directory service (- for stdin)")
	statusCmd.Flags().BoolVar(&statusFlushIfRevoked, "flush-if-revoked", false, "flush the device when the account no longer lists it")
	statusCmd.Flags().BoolVar(&statusJSONOutput, "json", false, "output in JSON format")
}

func resetStatusCommandState() {
	statusDevicesPath = ""
	statusFlushIfRevoked = false
	statusJSONOutput = false
}

// StatusOutput is the JSON form of the status command.
type StatusOutput struct {
	DeviceID    string `json:"device_id,omitempty"`
	LocalStatus string `json:"local_status"`
	Checked     bool   `json:"checked"`
	Enabled     bool   `json:"enabled"`
	Revoked     bool   `json:"revoked,omitempty"`
	Flushed     bool   `json:"flushed,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether this device can take part in encrypted channels",
	Long: `Shows the device's local encryption status.

With --devices the device is also checked against the account's device list.
A device that is enabled locally but missing from the list has been revoked
elsewhere; --flush-if-revoked then deletes its key.

Use --json for machine-readable output.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting status command")

		opts, err := sessionOptions(false, statusDevicesPath == "-")
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		statusOpts := workflows.StatusOptions{
			SessionOptions: opts,
			FlushIfRevoked: statusFlushIfRevoked,
		}
		if statusDevicesPath != "" {
			data, err := readFileOrStdin(statusDevicesPath)
			if err != nil {
				return Logger.ErrorfAndReturn("%v", err)
			}
			devices, err := workflows.ParseDevices(data)
			if err != nil {
				return Logger.ErrorfAndReturn("%v", err)
			}
			Logger.Debugf("Loaded %d devices from %s", len(devices), statusDevicesPath)
			statusOpts.Devices = devices
		}

		result, err := workflows.Status(cmd.Context(), statusOpts)
		if err != nil {
			if statusJSONOutput {
				return Logger.ErrorfAndReturn("%v", err)
			}
			fmt.Println(formatError(err))
			return nil
		}

		if statusJSONOutput {
			return outputStatusJSON(result)
		}
		printStatus(result)
		return nil
	},
}

func outputStatusJSON(result *workflows.StatusResult) error {
	out := StatusOutput{
		DeviceID:    result.DeviceID,
		LocalStatus: result.LocalStatus.String(),
		Checked:     result.Checked,
		Enabled:     result.Enabled,
		Revoked:     result.Revoked,
		Flushed:     result.Flushed,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printStatus(result *workflows.StatusResult) {
	if result.DeviceID == "" {
		fmt.Println(ui.Warning.Sprint("!") + " This device has no key")
		fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("tiaki device generate") + " to create one")
		return
	}

	fmt.Println("Device:  " + ui.Device.Sprint(result.DeviceID))
	fmt.Println("Local:   " + result.LocalStatus.String())

	switch {
	case result.Flushed:
		fmt.Println(ui.Error.Sprint("✗") + " The account no longer lists this device; its key has been flushed")
	case result.Revoked:
		fmt.Println(ui.Error.Sprint("✗") + " The account no longer lists this device")
		fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("tiaki device flush") + " to delete its key")
	case result.Checked && result.Enabled:
		fmt.Println(ui.Success.Sprint("✓") + " End-to-end encryption is enabled")
	case result.Checked:
		fmt.Println(ui.Warning.Sprint("!") + " End-to-end encryption is not enabled")
	}
}
