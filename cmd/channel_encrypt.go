package cmd

import (
	"fmt"

	"github.com/PolarWolf314/tiaki/internal/utils"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [message|-]",
	Short: "Encrypt a message with a channel secret",
	Long: `Encrypts message, or stdin, with the channel secret in --envelope and
prints the encrypted content as JSON.

The envelope is unwrapped with this device's private key, so the vault
passphrase is required.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting encrypt command")

		contentOpts, stdinBusy, err := loadContentOptions(args)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		plaintext, err := utils.ReadInput(args)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		contentOpts.SessionOptions, err = sessionOptions(true, stdinBusy)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		result, err := workflows.Encrypt(cmd.Context(), workflows.EncryptOptions{
			ContentOptions: contentOpts,
			Plaintext:      plaintext,
		})
		if err != nil {
			return fmt.Errorf("%s", formatError(err))
		}
		Logger.Infof("Encrypted with key %s", result.KeyID)

		return writeJSON(result.Content)
	},
}

// loadContentOptions reads --envelope. stdinBusy reports whether the
// envelope or the positional input is read from stdin.
func loadContentOptions(args []string) (workflows.ContentOptions, bool, error) {
	inputFromStdin := len(args) == 0 || args[0] == "-"
	if channelEnvelopePath == "-" && inputFromStdin {
		return workflows.ContentOptions{}, false, fmt.Errorf("the envelope and the input cannot both come from stdin")
	}

	data, err := readFileOrStdin(channelEnvelopePath)
	if err != nil {
		return workflows.ContentOptions{}, false, err
	}

	return workflows.ContentOptions{
		EnvelopeData: data,
		DeviceID:     channelDeviceID,
	}, inputFromStdin || channelEnvelopePath == "-", nil
}
