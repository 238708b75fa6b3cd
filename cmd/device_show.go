package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PolarWolf314/tiaki/internal/ui"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var showJSONOutput bool

func init() {
	showCmd.Flags().BoolVar(&showJSONOutput, "json", false, "output in JSON format")
}

func resetShowCommandState() {
	showJSONOutput = false
}

// ShowOutput is the JSON form of the show command.
type ShowOutput struct {
	DeviceID    string `json:"device_id"`
	Status      string `json:"encryption_status"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
	Backend     string `json:"backend"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show this device's public key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting show command")

		opts, err := sessionOptions(false, false)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		result, err := workflows.Show(cmd.Context(), opts)
		if err != nil {
			if showJSONOutput {
				return Logger.ErrorfAndReturn("%v", err)
			}
			fmt.Println(formatError(err))
			return nil
		}

		if showJSONOutput {
			out := ShowOutput{
				DeviceID:    result.DeviceID,
				Status:      result.Status.String(),
				Fingerprint: result.Fingerprint,
				PublicKey:   result.PublicKey,
				Backend:     result.Backend,
				CreatedAt:   formatTime(result.CreatedAt),
				UpdatedAt:   formatTime(result.UpdatedAt),
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println("Device:      " + ui.Device.Sprint(result.DeviceID))
		fmt.Println("Status:      " + result.Status.String())
		fmt.Println("Fingerprint: " + ui.KeyID.Sprint(ui.ShortKeyID(result.Fingerprint)))
		fmt.Println("Key store:   " + result.Backend)
		if !result.CreatedAt.IsZero() {
			fmt.Println("Created:     " + formatTime(result.CreatedAt))
		}
		fmt.Print(ui.EnsureNewline(result.PublicKey))
		return nil
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
